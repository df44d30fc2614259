package testutil

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
)

// policyConfigTemplate mirrors the system bus default-deny policy and lets
// the current user (numeric UID) own and call com.nokia.mce and the desktop
// notification daemon.
//
// The full default policy block must be present: without the receive_type
// allows, method_return replies are rejected by the bus.
//
// Args: sockPath, uid
const policyConfigTemplate = `<?xml version="1.0"?>
<!DOCTYPE busconfig PUBLIC "-//freedesktop//DTD D-BUS Bus Configuration 1.0//EN"
 "http://www.freedesktop.org/standards/dbus/1.0/busconfig.dtd">
<busconfig>
  <type>session</type>
  <listen>unix:path=%s</listen>
  <policy context="default">
    <allow user="*"/>
    <deny own="*"/>
    <deny send_type="method_call"/>
    <allow send_type="signal"/>
    <allow send_requested_reply="true" send_type="method_return"/>
    <allow send_requested_reply="true" send_type="error"/>
    <allow receive_type="method_call"/>
    <allow receive_type="method_return"/>
    <allow receive_type="error"/>
    <allow receive_type="signal"/>
    <allow send_destination="org.freedesktop.DBus"/>
  </policy>
  <policy user="%s">
    <allow own="com.nokia.mce"/>
    <allow send_destination="com.nokia.mce"/>
    <allow own="org.freedesktop.Notifications"/>
    <allow send_destination="org.freedesktop.Notifications"/>
  </policy>
</busconfig>`

// StartDBusDaemon starts a private dbus-daemon and returns its address. The
// test is skipped when dbus-daemon is not installed. Filesystem sockets are
// used instead of abstract ones so parallel tests do not collide.
func StartDBusDaemon(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("dbus-daemon"); err != nil {
		t.Skip("dbus-daemon not installed")
	}

	tmpDir := t.TempDir()
	sockPath := filepath.Join(tmpDir, "test.sock")
	confPath := filepath.Join(tmpDir, "policy.conf")

	conf := fmt.Sprintf(policyConfigTemplate, sockPath, fmt.Sprint(os.Getuid()))
	if err := os.WriteFile(confPath, []byte(conf), 0600); err != nil {
		t.Fatalf("write policy config: %v", err)
	}

	cmd := exec.Command("dbus-daemon", "--config-file="+confPath, "--nofork")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start dbus-daemon: %v", err)
	}
	t.Cleanup(func() {
		cmd.Process.Kill() //nolint:errcheck
		cmd.Wait()         //nolint:errcheck
	})

	// 50 * 100ms = 5s max.
	for range 50 {
		if _, err := os.Stat(sockPath); err == nil {
			return "unix:path=" + sockPath
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("dbus-daemon socket not created in time")
	return ""
}

// StartMockMCE connects to addr, registers a MockMCE and closes the
// connection when the test ends.
func StartMockMCE(t *testing.T, addr string) (*MockMCE, *dbus.Conn) {
	t.Helper()
	conn, err := dbus.Connect(addr)
	if err != nil {
		t.Fatalf("connect mock: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	mock := NewMockMCE()
	if err := mock.Register(conn); err != nil {
		t.Fatalf("register mock: %v", err)
	}
	return mock, conn
}

// Eventually polls cond every 20ms until it holds or timeout expires.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out: %s", msg)
}

package testutil

import (
	"fmt"
	"sync"
	"testing"

	"github.com/godbus/dbus/v5"
)

// Notification is one Notify call received by MockNotifications.
type Notification struct {
	ID       uint32
	Replaces uint32
	Summary  string
	Body     string
	Urgency  byte
}

// MockNotifications implements the Notify and CloseNotification methods of
// a desktop notification daemon.
type MockNotifications struct {
	mu       sync.Mutex
	nextID   uint32
	received []Notification
	closed   []uint32
}

// StartMockNotifications claims the notification daemon name on addr.
func StartMockNotifications(t *testing.T, addr string) *MockNotifications {
	t.Helper()
	conn, err := dbus.Connect(addr)
	if err != nil {
		t.Fatalf("connect notifications mock: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	m := &MockNotifications{}
	table := map[string]any{
		"Notify":            m.notify,
		"CloseNotification": m.closeNotification,
	}
	if err := conn.ExportMethodTable(table, "/org/freedesktop/Notifications", "org.freedesktop.Notifications"); err != nil {
		t.Fatalf("export notifications: %v", err)
	}
	reply, err := conn.RequestName("org.freedesktop.Notifications", dbus.NameFlagDoNotQueue)
	if err != nil || reply != dbus.RequestNameReplyPrimaryOwner {
		t.Fatalf("request notifications name: reply=%d err=%v", reply, err)
	}
	return m
}

func (m *MockNotifications) notify(appName string, replaces uint32, icon, summary, body string,
	actions []string, hints map[string]dbus.Variant, timeout int32) (uint32, *dbus.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := replaces
	if id == 0 {
		m.nextID++
		id = m.nextID
	}
	n := Notification{ID: id, Replaces: replaces, Summary: summary, Body: body}
	if v, ok := hints["urgency"]; ok {
		if u, ok := v.Value().(byte); ok {
			n.Urgency = u
		}
	}
	m.received = append(m.received, n)
	return id, nil
}

func (m *MockNotifications) closeNotification(id uint32) *dbus.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = append(m.closed, id)
	return nil
}

// Received returns the notifications shown so far.
func (m *MockNotifications) Received() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification(nil), m.received...)
}

// Closed returns the IDs passed to CloseNotification.
func (m *MockNotifications) Closed() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint32(nil), m.closed...)
}

func (n Notification) String() string {
	return fmt.Sprintf("#%d %q %q", n.ID, n.Summary, n.Body)
}

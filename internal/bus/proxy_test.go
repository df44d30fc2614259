package bus_test

import (
	"context"
	"testing"
	"time"

	. "github.com/nikicat/mcewatch/internal/bus"
	mcedbus "github.com/nikicat/mcewatch/internal/dbus"
	"github.com/nikicat/mcewatch/internal/eventloop"
	"github.com/nikicat/mcewatch/internal/mce"
	"github.com/nikicat/mcewatch/internal/testutil"
)

func startLoop(t *testing.T) *eventloop.Loop {
	t.Helper()
	loop := eventloop.New(0)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx) //nolint:errcheck
	t.Cleanup(cancel)
	return loop
}

// onLoop runs fn on the loop and returns its result.
func onLoop[T any](t *testing.T, loop *eventloop.Loop, fn func() T) T {
	t.Helper()
	var v T
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := loop.Call(ctx, func() { v = fn() }); err != nil {
		t.Fatalf("loop call: %v", err)
	}
	return v
}

func newRegistry(addr string, loop *eventloop.Loop) *mce.Registry {
	return mce.NewRegistry(Dialer(Config{Address: addr, Loop: loop, ReconnectInterval: 100 * time.Millisecond}), nil)
}

func TestOpen_RequiresLoop(t *testing.T) {
	if _, err := Open(Config{}); err != ErrNoLoop {
		t.Errorf("Open() error = %v, want ErrNoLoop", err)
	}
}

func TestProxy_ServicePresentAtStart(t *testing.T) {
	addr := testutil.StartDBusDaemon(t)
	mock, _ := testutil.StartMockMCE(t, addr)
	loop := startLoop(t)
	reg := newRegistry(addr, loop)

	battery := onLoop(t, loop, func() *mce.Battery {
		b, err := mce.NewBattery(reg)
		if err != nil {
			t.Errorf("NewBattery: %v", err)
		}
		return b
	})
	if battery == nil {
		t.FailNow()
	}
	defer onLoop(t, loop, func() bool { battery.Close(); return true })

	testutil.Eventually(t, 5*time.Second, func() bool {
		return onLoop(t, loop, battery.Valid)
	}, "battery never became valid")

	if got := onLoop(t, loop, battery.Level); got != 50 {
		t.Errorf("Level() = %d, want 50", got)
	}
	if got := onLoop(t, loop, battery.Status); got != mce.BatteryOK {
		t.Errorf("Status() = %v, want ok", got)
	}

	if err := mock.SetBatteryLevel(150); err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, 5*time.Second, func() bool {
		return onLoop(t, loop, battery.Level) == 100
	}, "clamped push value not seen")

	if n := mock.Calls(mcedbus.GetBatteryLevel); n != 1 {
		t.Errorf("get_battery_level called %d times, want 1", n)
	}
}

func TestProxy_ServiceComesAndGoes(t *testing.T) {
	addr := testutil.StartDBusDaemon(t)
	loop := startLoop(t)
	reg := newRegistry(addr, loop)

	lock := onLoop(t, loop, func() *mce.Tklock {
		l, err := mce.NewTklock(reg)
		if err != nil {
			t.Errorf("NewTklock: %v", err)
		}
		return l
	})
	if lock == nil {
		t.FailNow()
	}
	defer onLoop(t, loop, func() bool { lock.Close(); return true })

	// Let the proxy attach to the bus with no MCE around.
	time.Sleep(200 * time.Millisecond)
	if onLoop(t, loop, lock.Valid) {
		t.Fatal("valid without MCE on the bus")
	}

	mock, mockConn := testutil.StartMockMCE(t, addr)
	testutil.Eventually(t, 5*time.Second, func() bool {
		return onLoop(t, loop, lock.Valid)
	}, "lock never became valid after MCE appeared")
	if onLoop(t, loop, lock.Locked) {
		t.Error("mock starts unlocked")
	}

	if err := mock.SetTklockMode(mcedbus.TkLockedDim); err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, 5*time.Second, func() bool {
		return onLoop(t, loop, lock.Mode) == mce.TklockLockedDim
	}, "mode push not seen")
	if !onLoop(t, loop, lock.Locked) {
		t.Error("locked-dim should be locked")
	}

	mockConn.Close()
	testutil.Eventually(t, 5*time.Second, func() bool {
		return !onLoop(t, loop, lock.Valid)
	}, "lock still valid after MCE left")
}

func TestProxy_QueryFailureHoldsBackValidity(t *testing.T) {
	addr := testutil.StartDBusDaemon(t)
	mock, _ := testutil.StartMockMCE(t, addr)
	mock.FailMethod(mcedbus.GetChargerState)
	loop := startLoop(t)
	reg := newRegistry(addr, loop)

	charger := onLoop(t, loop, func() *mce.Charger {
		c, err := mce.NewCharger(reg)
		if err != nil {
			t.Errorf("NewCharger: %v", err)
		}
		return c
	})
	if charger == nil {
		t.FailNow()
	}
	defer onLoop(t, loop, func() bool { charger.Close(); return true })

	testutil.Eventually(t, 5*time.Second, func() bool {
		return mock.Calls(mcedbus.GetChargerState) == 1
	}, "charger state never queried")
	time.Sleep(100 * time.Millisecond)
	if onLoop(t, loop, charger.Valid) {
		t.Fatal("valid although the query failed")
	}

	if err := mock.SetChargerState(mcedbus.ChargerStateOn); err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, 5*time.Second, func() bool {
		return onLoop(t, loop, charger.Valid)
	}, "push did not populate the charger")
	if got := onLoop(t, loop, charger.State); got != mce.ChargerOn {
		t.Errorf("State() = %v, want on", got)
	}
	if n := mock.Calls(mcedbus.GetChargerState); n != 1 {
		t.Errorf("failed query retried: %d calls", n)
	}
}

func TestAcquire_SharesPerAddress(t *testing.T) {
	loop := startLoop(t)
	cfg := Config{Address: "unix:path=/nonexistent/mcewatch-test.sock", Loop: loop, ReconnectInterval: time.Hour}

	p1, err := Acquire(cfg)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := Acquire(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 {
		t.Error("Acquire returned different proxies for one address")
	}
	p1.Release()
	p2.Release()

	p3, err := Acquire(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer p3.Release()
	if p3 == p1 {
		t.Error("released proxy was reused")
	}
	if onLoop(t, loop, p3.Connected) {
		t.Error("connected to a nonexistent bus")
	}
}

func TestAcquire_SeparatesLoops(t *testing.T) {
	loopA, loopB := startLoop(t), startLoop(t)
	addr := "unix:path=/nonexistent/mcewatch-test.sock"

	pa, err := Acquire(Config{Address: addr, Loop: loopA, ReconnectInterval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	defer pa.Release()
	pb, err := Acquire(Config{Address: addr, Loop: loopB, ReconnectInterval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	defer pb.Release()
	if pa == pb {
		t.Fatal("proxies on different loops were shared")
	}

	pa2, err := Acquire(Config{Address: addr, Loop: loopA, ReconnectInterval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	defer pa2.Release()
	if pa2 != pa {
		t.Error("same address and loop got a new proxy")
	}
}

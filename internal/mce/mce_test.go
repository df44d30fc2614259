package mce

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"

	mcedbus "github.com/nikicat/mcewatch/internal/dbus"
)

func TestSharedInstance(t *testing.T) {
	reg, conn := newTestRegistry()
	conn.connected = true

	b1, err := NewBattery(reg)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := NewBattery(reg)
	if err != nil {
		t.Fatal(err)
	}
	if conn.dials != 1 {
		t.Errorf("dials = %d, want 1", conn.dials)
	}
	if got := reg.Refs(KindBattery); got < 2 {
		t.Errorf("refs = %d, want at least 2", got)
	}

	conn.requests.answer(map[string]any{
		mcedbus.GetBatteryLevel:  int32(42),
		mcedbus.GetBatteryStatus: "ok",
	})
	if !b1.Valid() || !b2.Valid() {
		t.Fatal("both facades should be valid")
	}

	var seen []int
	b2.AddLevelChangedHandler(func(b *Battery, changed Field) {
		if b != b2 || changed != FieldLevel {
			t.Errorf("handler got (%p, %s)", b, changed)
		}
		seen = append(seen, b.Level())
	})
	conn.signals.emit(mcedbus.BatteryLevelSig, int32(41))
	if b1.Level() != 41 {
		t.Errorf("b1.Level() = %d, want 41", b1.Level())
	}
	if !slices.Equal(seen, []int{41}) {
		t.Errorf("seen = %v", seen)
	}

	b1.Close()
	b1.Close()
	if !reg.Live(KindBattery) {
		t.Fatal("instance destroyed while b2 holds it")
	}
	conn.signals.emit(mcedbus.BatteryLevelSig, int32(40))
	if b2.Level() != 40 {
		t.Errorf("b2.Level() = %d after b1.Close, want 40", b2.Level())
	}

	b2.Close()
	if reg.Live(KindBattery) {
		t.Fatal("instance still live after last Close")
	}
	if conn.refs != 0 {
		t.Errorf("connection refs = %d, want 0", conn.refs)
	}

	b3, err := NewBattery(reg)
	if err != nil {
		t.Fatal(err)
	}
	defer b3.Close()
	if b3.Valid() || b3.Level() != 0 {
		t.Errorf("recycled instance not fresh: valid=%v level=%d", b3.Valid(), b3.Level())
	}
	if conn.dials != 2 {
		t.Errorf("dials = %d, want 2", conn.dials)
	}
}

func TestPendingQueryKeepsInstance(t *testing.T) {
	reg, conn := newTestRegistry()
	conn.connected = true

	c, err := NewCharger(reg)
	if err != nil {
		t.Fatal(err)
	}
	c.Close()
	if !reg.Live(KindCharger) {
		t.Fatal("instance destroyed with a query in flight")
	}
	conn.requests.answer(map[string]any{mcedbus.GetChargerState: "on"})
	if reg.Live(KindCharger) {
		t.Fatal("instance not destroyed after the reply")
	}
}

func TestClosedFacadeHandlersRemoved(t *testing.T) {
	reg, conn := newTestRegistry()
	conn.connected = true

	d1, _ := NewDisplay(reg)
	d2, _ := NewDisplay(reg)
	defer d2.Close()

	calls := 0
	d1.AddStateChangedHandler(func(*Display, Field) { calls++ })
	d1.Close()

	conn.signals.emit(mcedbus.DisplaySig, "dim")
	if calls != 0 {
		t.Errorf("closed facade handler ran %d times", calls)
	}
	if d2.State() != DisplayDim {
		t.Errorf("State() = %v, want dim", d2.State())
	}
}

func TestRemoveHandlerIgnoresOtherFacades(t *testing.T) {
	reg, conn := newTestRegistry()
	conn.connected = true

	a, _ := NewBattery(reg)
	defer a.Close()
	b, _ := NewBattery(reg)
	defer b.Close()
	conn.requests.answer(map[string]any{
		mcedbus.GetBatteryLevel:  int32(42),
		mcedbus.GetBatteryStatus: "ok",
	})

	calls := 0
	id := a.AddLevelChangedHandler(func(*Battery, Field) { calls++ })
	b.RemoveHandler(id)

	conn.signals.emit(mcedbus.BatteryLevelSig, int32(40))
	if calls != 1 {
		t.Errorf("handler ran %d times after foreign RemoveHandler, want 1", calls)
	}
	a.RemoveHandler(id)
	conn.signals.emit(mcedbus.BatteryLevelSig, int32(41))
	if calls != 1 {
		t.Errorf("handler ran %d times after RemoveHandler, want 1", calls)
	}
}

func TestDecodeFallbacks(t *testing.T) {
	reg, conn := newTestRegistry()
	conn.connected = true

	b, _ := NewBattery(reg)
	defer b.Close()
	c, _ := NewCharger(reg)
	defer c.Close()
	d, _ := NewDisplay(reg)
	defer d.Close()
	i, _ := NewInactivity(reg)
	defer i.Close()

	conn.signals.emit(mcedbus.BatteryStatusSig, "full")
	conn.signals.emit(mcedbus.BatteryStatusSig, "overheated")
	if b.Status() != BatteryUnknown {
		t.Errorf("battery status = %v, want unknown", b.Status())
	}

	conn.signals.emit(mcedbus.BatteryLevelSig, int32(-5))
	if b.Level() != 0 {
		t.Errorf("level = %d, want 0", b.Level())
	}
	conn.signals.emit(mcedbus.BatteryLevelSig, int32(150))
	if b.Level() != 100 {
		t.Errorf("level = %d, want 100", b.Level())
	}

	conn.signals.emit(mcedbus.ChargerStateSig, "maybe")
	if c.State() != ChargerUnknown {
		t.Errorf("charger = %v, want unknown", c.State())
	}

	conn.signals.emit(mcedbus.DisplaySig, "bright")
	if d.State() != DisplayOn {
		t.Errorf("display = %v, want on", d.State())
	}

	conn.signals.emit(mcedbus.InactivitySig, true)
	conn.signals.emit(mcedbus.InactivitySig, "yes")
	if !i.Status() {
		t.Error("undecodable inactivity value replaced the cached one")
	}
}

func TestTklockLockedDerived(t *testing.T) {
	reg, conn := newTestRegistry()
	conn.connected = true

	lock, err := NewTklock(reg)
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Close()

	if lock.Mode() != TklockLocked || !lock.Locked() {
		t.Fatalf("default = %v/%v, want locked/true", lock.Mode(), lock.Locked())
	}

	var changes []Field
	lock.AddModeChangedHandler(func(_ *Tklock, f Field) { changes = append(changes, f) })
	lock.AddLockedChangedHandler(func(_ *Tklock, f Field) { changes = append(changes, f) })

	conn.signals.emit(mcedbus.TklockModeSig, "silent-unlocked")
	if lock.Mode() != TklockSilentUnlocked || lock.Locked() {
		t.Errorf("got %v/%v", lock.Mode(), lock.Locked())
	}
	if !slices.Equal(changes, []Field{FieldMode, FieldLocked}) {
		t.Errorf("changes = %v", changes)
	}

	changes = nil
	conn.signals.emit(mcedbus.TklockModeSig, "unlocked")
	if !slices.Equal(changes, []Field{FieldMode}) {
		t.Errorf("unlocked to unlocked changed %v", changes)
	}

	changes = nil
	conn.signals.emit(mcedbus.TklockModeSig, "half-locked")
	if lock.Mode() != TklockUnlocked || len(changes) != 0 {
		t.Errorf("unknown mode: got %v, changes %v", lock.Mode(), changes)
	}

	conn.signals.emit(mcedbus.TklockModeSig, "locked-delay")
	if !lock.Locked() {
		t.Error("locked-delay should be locked")
	}
}

func TestValidityAcrossReconnect(t *testing.T) {
	reg, conn := newTestRegistry()

	inact, _ := NewInactivity(reg)
	defer inact.Close()

	var valid []bool
	inact.AddValidChangedHandler(func(i *Inactivity, f Field) {
		if f != FieldValid {
			t.Errorf("field = %s", f)
		}
		valid = append(valid, i.Valid())
	})

	conn.setConnected(true)
	conn.requests.answer(map[string]any{mcedbus.GetInactivityStatus: true})
	conn.setConnected(false)
	conn.setConnected(true)
	if len(conn.requests.pending) != 1 {
		t.Fatalf("pending = %d after reconnect, want 1", len(conn.requests.pending))
	}
	conn.requests.answer(map[string]any{mcedbus.GetInactivityStatus: true})

	if !slices.Equal(valid, []bool{true, false, true}) {
		t.Errorf("valid transitions = %v", valid)
	}
}

func TestEntityInterface(t *testing.T) {
	reg, conn := newTestRegistry()
	conn.connected = true

	for _, kind := range Kinds() {
		e, err := Open(reg, kind)
		if err != nil {
			t.Fatalf("Open(%s): %v", kind, err)
		}
		if e.Kind() != kind {
			t.Errorf("Kind() = %s, want %s", e.Kind(), kind)
		}
		var got []Field
		ids := e.AddChangedHandler(func(f Field) { got = append(got, f) })
		if len(ids) != len(e.Fields())+1 {
			t.Errorf("%s: %d handler ids for %d fields", kind, len(ids), len(e.Fields()))
		}
		e.RemoveHandlers(ids)
		for _, id := range ids {
			if id != 0 {
				t.Errorf("%s: RemoveHandlers left id %d", kind, id)
			}
		}
		e.Close()
	}

	if _, err := Open(reg, "keyboard"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Open(keyboard) error = %v", err)
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
		err  bool
	}{
		{"battery", KindBattery, false},
		{" Display ", KindDisplay, false},
		{"lock", KindTklock, false},
		{"tklock", KindTklock, false},
		{"radio", "", true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("ParseKind(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestEnumStrings(t *testing.T) {
	if s := TklockSilentLockedDim.String(); s != "silent_locked_dim" {
		t.Errorf("String() = %q", s)
	}
	if s := BatteryStatus(17).String(); s != "17" {
		t.Errorf("out of range String() = %q", s)
	}
	out, err := json.Marshal(map[string]any{"status": BatteryFull, "state": DisplayDim})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"state":"dim","status":"full"}` {
		t.Errorf("json = %s", out)
	}
}

package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/nikicat/mcewatch/internal/mce"
	"github.com/nikicat/mcewatch/internal/monitor"
)

func tklockSnapshot(mode mce.TklockMode, valid bool) monitor.Snapshot {
	return monitor.Snapshot{
		Kind:  mce.KindTklock,
		Valid: valid,
		Fields: monitor.Fields{
			{Field: mce.FieldMode, Value: mode},
			{Field: mce.FieldLocked, Value: mode.Locked()},
		},
	}
}

func TestSnapshotLine(t *testing.T) {
	tests := []struct {
		name string
		snap monitor.Snapshot
		want string
	}{
		{
			name: "battery typed",
			snap: monitor.Snapshot{Kind: mce.KindBattery, Valid: true, Fields: monitor.Fields{
				{Field: mce.FieldLevel, Value: 50},
				{Field: mce.FieldStatus, Value: mce.BatteryOK},
			}},
			want: "battery: valid=true level=50 status=ok",
		},
		{
			name: "battery from json",
			snap: monitor.Snapshot{Kind: mce.KindBattery, Valid: false, Fields: monitor.Fields{
				{Field: mce.FieldLevel, Value: float64(7)},
				{Field: mce.FieldStatus, Value: "low"},
			}},
			want: "battery: valid=false level=7 status=low",
		},
		{
			name: "tklock",
			snap: tklockSnapshot(mce.TklockLockedDim, true),
			want: "tklock: valid=true mode=locked_dim locked=true",
		},
		{
			name: "missing value",
			snap: monitor.Snapshot{Kind: mce.KindDisplay, Fields: monitor.Fields{{Field: mce.FieldState}}},
			want: "display: valid=false state=-",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SnapshotLine(tt.snap); got != tt.want {
				t.Errorf("SnapshotLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEventLine(t *testing.T) {
	e := monitor.Event{
		Kind:     mce.KindTklock,
		Changed:  mce.FieldLocked,
		Snapshot: tklockSnapshot(mce.TklockUnlocked, true),
	}
	want := "tklock: valid=true mode=unlocked locked=false (locked changed)"
	if got := EventLine(e); got != want {
		t.Errorf("EventLine() = %q, want %q", got, want)
	}
}

func TestFormatSnapshots_Text(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf, false)

	if err := f.FormatSnapshots(nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No entities watched") {
		t.Errorf("empty output = %q", buf.String())
	}

	buf.Reset()
	snaps := []monitor.Snapshot{
		{Kind: mce.KindCharger, Valid: true, Fields: monitor.Fields{{Field: mce.FieldState, Value: mce.ChargerOn}}},
		{Kind: mce.KindInactivity, Valid: true, Fields: monitor.Fields{{Field: mce.FieldStatus, Value: false}}},
	}
	if err := f.FormatSnapshots(snaps); err != nil {
		t.Fatal(err)
	}
	want := "charger: valid=true state=on\ninactivity: valid=true status=false\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestFormatEvent_JSON(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf, true)
	e := monitor.Event{
		Kind:     mce.KindDisplay,
		Changed:  mce.FieldState,
		Snapshot: monitor.Snapshot{Kind: mce.KindDisplay, Valid: true, Fields: monitor.Fields{{Field: mce.FieldState, Value: mce.DisplayDim}}},
	}
	if err := f.FormatEvent(e); err != nil {
		t.Fatal(err)
	}
	var back monitor.Event
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("unmarshal %s: %v", buf.String(), err)
	}
	if back.Changed != mce.FieldState || back.Snapshot.Fields.Get(mce.FieldState) != "dim" {
		t.Errorf("event = %+v", back)
	}
}

func TestFormatStatus_JSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(&buf, true).FormatSnapshots(nil); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("output = %q, want []", buf.String())
	}
}

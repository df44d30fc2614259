package mce

import (
	"strconv"

	mcedbus "github.com/nikicat/mcewatch/internal/dbus"
)

// BatteryStatus is the coarse battery charge state.
type BatteryStatus int

const (
	BatteryUnknown BatteryStatus = iota
	BatteryEmpty
	BatteryLow
	BatteryOK
	BatteryFull
)

var batteryStatusNames = []string{"unknown", "empty", "low", "ok", "full"}

func (s BatteryStatus) String() string { return enumName(batteryStatusNames, int(s)) }

func (s BatteryStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

var batteryStatusWire = map[string]BatteryStatus{
	mcedbus.BatteryStatusUnknown: BatteryUnknown,
	mcedbus.BatteryStatusEmpty:   BatteryEmpty,
	mcedbus.BatteryStatusLow:     BatteryLow,
	mcedbus.BatteryStatusOK:      BatteryOK,
	mcedbus.BatteryStatusFull:    BatteryFull,
}

// ChargerState tells whether a charger is connected.
type ChargerState int

const (
	ChargerUnknown ChargerState = iota
	ChargerOn
	ChargerOff
)

var chargerStateNames = []string{"unknown", "on", "off"}

func (s ChargerState) String() string { return enumName(chargerStateNames, int(s)) }

func (s ChargerState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

var chargerStateWire = map[string]ChargerState{
	mcedbus.ChargerStateUnknown: ChargerUnknown,
	mcedbus.ChargerStateOn:      ChargerOn,
	mcedbus.ChargerStateOff:     ChargerOff,
}

// DisplayState is the display power state.
type DisplayState int

const (
	DisplayOff DisplayState = iota
	DisplayDim
	DisplayOn
)

var displayStateNames = []string{"off", "dim", "on"}

func (s DisplayState) String() string { return enumName(displayStateNames, int(s)) }

func (s DisplayState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

var displayStateWire = map[string]DisplayState{
	mcedbus.DisplayOff: DisplayOff,
	mcedbus.DisplayDim: DisplayDim,
	mcedbus.DisplayOn:  DisplayOn,
}

// TklockMode is the touchscreen/keypad lock mode.
type TklockMode int

const (
	TklockLocked TklockMode = iota
	TklockSilentLocked
	TklockLockedDim
	TklockLockedDelay
	TklockSilentLockedDim
	TklockUnlocked
	TklockSilentUnlocked
)

var tklockModeNames = []string{
	"locked",
	"silent_locked",
	"locked_dim",
	"locked_delay",
	"silent_locked_dim",
	"unlocked",
	"silent_unlocked",
}

func (m TklockMode) String() string { return enumName(tklockModeNames, int(m)) }

func (m TklockMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Locked reports whether the mode keeps the touchscreen and keypad locked.
func (m TklockMode) Locked() bool {
	return m != TklockUnlocked && m != TklockSilentUnlocked
}

var tklockModeWire = map[string]TklockMode{
	mcedbus.TkLocked:          TklockLocked,
	mcedbus.TkSilentLocked:    TklockSilentLocked,
	mcedbus.TkLockedDim:       TklockLockedDim,
	mcedbus.TkLockedDelay:     TklockLockedDelay,
	mcedbus.TkSilentLockedDim: TklockSilentLockedDim,
	mcedbus.TkUnlocked:        TklockUnlocked,
	mcedbus.TkSilentUnlocked:  TklockSilentUnlocked,
}

func enumName(names []string, v int) string {
	if v >= 0 && v < len(names) {
		return names[v]
	}
	return strconv.Itoa(v)
}

package mce

import (
	mcedbus "github.com/nikicat/mcewatch/internal/dbus"
	"github.com/nikicat/mcewatch/internal/property"
)

var batterySet = property.NewSet([]property.Descriptor{
	{
		Name:     string(FieldLevel),
		Signal:   mcedbus.BatteryLevelSig,
		Method:   mcedbus.GetBatteryLevel,
		Decode:   decodeInt,
		Default:  0,
		Range:    &property.Range{Min: 0, Max: 100},
		Required: true,
	},
	{
		Name:     string(FieldStatus),
		Signal:   mcedbus.BatteryStatusSig,
		Method:   mcedbus.GetBatteryStatus,
		Decode:   decodeString(batteryStatusWire),
		Default:  BatteryUnknown,
		Unknown:  BatteryUnknown,
		Required: true,
	},
})

var chargerSet = property.NewSet([]property.Descriptor{
	{
		Name:     string(FieldState),
		Signal:   mcedbus.ChargerStateSig,
		Method:   mcedbus.GetChargerState,
		Decode:   decodeString(chargerStateWire),
		Default:  ChargerUnknown,
		Unknown:  ChargerUnknown,
		Required: true,
	},
})

var displaySet = property.NewSet([]property.Descriptor{
	{
		Name:     string(FieldState),
		Signal:   mcedbus.DisplaySig,
		Method:   mcedbus.GetDisplayStatus,
		Decode:   decodeString(displayStateWire),
		Default:  DisplayOff,
		Unknown:  DisplayOn,
		Required: true,
	},
})

// Unrecognized lock modes leave the mode unchanged.
var tklockSet = property.NewSet([]property.Descriptor{
	{
		Name:     string(FieldMode),
		Signal:   mcedbus.TklockModeSig,
		Method:   mcedbus.GetTklockMode,
		Decode:   decodeString(tklockModeWire),
		Default:  TklockLocked,
		Required: true,
	},
}, property.Derived{
	Name:    string(FieldLocked),
	From:    string(FieldMode),
	Default: true,
	Compute: func(v any) any {
		m, _ := v.(TklockMode)
		return m.Locked()
	},
})

var inactivitySet = property.NewSet([]property.Descriptor{
	{
		Name:     string(FieldStatus),
		Signal:   mcedbus.InactivitySig,
		Method:   mcedbus.GetInactivityStatus,
		Decode:   decodeBool,
		Default:  false,
		Required: true,
	},
})

func setFor(kind Kind) *property.Set {
	switch kind {
	case KindBattery:
		return batterySet
	case KindCharger:
		return chargerSet
	case KindDisplay:
		return displaySet
	case KindTklock:
		return tklockSet
	case KindInactivity:
		return inactivitySet
	}
	return nil
}

func decodeInt(wire any) (any, bool) {
	switch v := wire.(type) {
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case int:
		return v, true
	case uint32:
		return int(v), true
	}
	return nil, false
}

func decodeBool(wire any) (any, bool) {
	v, ok := wire.(bool)
	return v, ok
}

func decodeString[T any](table map[string]T) property.DecodeFunc {
	return func(wire any) (any, bool) {
		s, ok := wire.(string)
		if !ok {
			return nil, false
		}
		v, ok := table[s]
		if !ok {
			return nil, false
		}
		return v, true
	}
}

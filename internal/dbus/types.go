// Package dbus provides D-Bus names and wire strings for the MCE API.
package dbus

import "github.com/godbus/dbus/v5"

// D-Bus names for the mode control entity.
const (
	BusName = "com.nokia.mce"

	RequestPath      = dbus.ObjectPath("/com/nokia/mce/request")
	RequestInterface = "com.nokia.mce.request"

	SignalPath      = dbus.ObjectPath("/com/nokia/mce/signal")
	SignalInterface = "com.nokia.mce.signal"

	DBusName      = "org.freedesktop.DBus"
	DBusInterface = "org.freedesktop.DBus"
)

// Request methods (pull queries).
const (
	GetBatteryLevel     = "get_battery_level"
	GetBatteryStatus    = "get_battery_status"
	GetChargerState     = "get_charger_state"
	GetDisplayStatus    = "get_display_status"
	GetTklockMode       = "get_tklock_mode"
	GetInactivityStatus = "get_inactivity_status"
)

// Signal members (push notifications).
const (
	BatteryLevelSig  = "battery_level_ind"
	BatteryStatusSig = "battery_status_ind"
	ChargerStateSig  = "charger_state_ind"
	DisplaySig       = "display_status_ind"
	TklockModeSig    = "tklock_mode_ind"
	InactivitySig    = "system_inactivity_ind"
)

// Battery status strings.
const (
	BatteryStatusUnknown = "unknown"
	BatteryStatusEmpty   = "empty"
	BatteryStatusLow     = "low"
	BatteryStatusOK      = "ok"
	BatteryStatusFull    = "full"
)

// Charger state strings.
const (
	ChargerStateUnknown = "unknown"
	ChargerStateOn      = "on"
	ChargerStateOff     = "off"
)

// Display state strings.
const (
	DisplayOff = "off"
	DisplayDim = "dim"
	DisplayOn  = "on"
)

// Touchscreen/keypad lock mode strings.
const (
	TkLocked          = "locked"
	TkSilentLocked    = "silent-locked"
	TkLockedDim       = "locked-dim"
	TkLockedDelay     = "locked-delay"
	TkSilentLockedDim = "silent-locked-dim"
	TkUnlocked        = "unlocked"
	TkSilentUnlocked  = "silent-unlocked"
)

// Error names returned by the bus daemon.
const (
	ErrNameHasNoOwner = "org.freedesktop.DBus.Error.NameHasNoOwner"
	ErrUnknownMethod  = "org.freedesktop.DBus.Error.UnknownMethod"
)

// NewDBusError creates a D-Bus error with the given name and message.
func NewDBusError(name, message string) *dbus.Error {
	return &dbus.Error{
		Name: name,
		Body: []interface{}{message},
	}
}

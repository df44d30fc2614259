// Package mce exposes typed, cached views of the MCE entities: battery,
// charger, display, touchscreen/keypad lock and user inactivity.
//
// Facades for the same kind share one cache. Everything here, including
// handler callbacks, runs on the event loop that drives the connection.
package mce

import (
	"fmt"
	"strings"

	"github.com/nikicat/mcewatch/internal/property"
)

// Kind names an MCE entity.
type Kind string

const (
	KindBattery    Kind = "battery"
	KindCharger    Kind = "charger"
	KindDisplay    Kind = "display"
	KindTklock     Kind = "tklock"
	KindInactivity Kind = "inactivity"
)

// Kinds returns every kind in presentation order.
func Kinds() []Kind {
	return []Kind{KindBattery, KindCharger, KindDisplay, KindTklock, KindInactivity}
}

// ParseKind accepts a kind name. "lock" is an alias for tklock.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "lock" {
		return KindTklock, nil
	}
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown kind %q", s)
}

// Field names a cached value of an entity.
type Field string

const (
	FieldValid  Field = property.ValidField
	FieldLevel  Field = "level"
	FieldStatus Field = "status"
	FieldState  Field = "state"
	FieldMode   Field = "mode"
	FieldLocked Field = "locked"
)

// HandlerID identifies a registered change handler. Zero means none.
type HandlerID = property.HandlerID

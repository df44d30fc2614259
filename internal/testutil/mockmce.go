// Package testutil provides test utilities including a mock MCE service.
package testutil

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	mcedbus "github.com/nikicat/mcewatch/internal/dbus"
)

// MockMCE is a minimal mode control entity for testing. It answers the
// request methods from its current state and broadcasts a signal whenever a
// setter changes that state.
type MockMCE struct {
	conn *dbus.Conn

	mu            sync.Mutex
	level         int32
	batteryStatus string
	chargerState  string
	displayStatus string
	tklockMode    string
	inactive      bool
	failing       map[string]bool
	calls         map[string]int
}

// NewMockMCE creates a mock with a half-charged battery, no charger, the
// display on and the lock open.
func NewMockMCE() *MockMCE {
	return &MockMCE{
		level:         50,
		batteryStatus: mcedbus.BatteryStatusOK,
		chargerState:  mcedbus.ChargerStateOff,
		displayStatus: mcedbus.DisplayOn,
		tklockMode:    mcedbus.TkUnlocked,
		failing:       make(map[string]bool),
		calls:         make(map[string]int),
	}
}

// Register exports the request interface on conn and claims the MCE name.
func (m *MockMCE) Register(conn *dbus.Conn) error {
	m.conn = conn

	table := map[string]any{
		mcedbus.GetBatteryLevel:     m.getBatteryLevel,
		mcedbus.GetBatteryStatus:    m.stringGetter(mcedbus.GetBatteryStatus, &m.batteryStatus),
		mcedbus.GetChargerState:     m.stringGetter(mcedbus.GetChargerState, &m.chargerState),
		mcedbus.GetDisplayStatus:    m.stringGetter(mcedbus.GetDisplayStatus, &m.displayStatus),
		mcedbus.GetTklockMode:       m.stringGetter(mcedbus.GetTklockMode, &m.tklockMode),
		mcedbus.GetInactivityStatus: m.getInactivityStatus,
	}
	if err := conn.ExportMethodTable(table, mcedbus.RequestPath, mcedbus.RequestInterface); err != nil {
		return fmt.Errorf("export request interface: %w", err)
	}

	node := &introspect.Node{
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name: mcedbus.RequestInterface,
				Methods: []introspect.Method{
					getter(mcedbus.GetBatteryLevel, "i"),
					getter(mcedbus.GetBatteryStatus, "s"),
					getter(mcedbus.GetChargerState, "s"),
					getter(mcedbus.GetDisplayStatus, "s"),
					getter(mcedbus.GetTklockMode, "s"),
					getter(mcedbus.GetInactivityStatus, "b"),
				},
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), mcedbus.RequestPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspectable: %w", err)
	}

	reply, err := conn.RequestName(mcedbus.BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("not primary owner (reply=%d)", reply)
	}
	return nil
}

func getter(name, sig string) introspect.Method {
	return introspect.Method{
		Name: name,
		Args: []introspect.Arg{{Name: "value", Type: sig, Direction: "out"}},
	}
}

// FailMethod makes the named request method return an error.
func (m *MockMCE) FailMethod(method string) {
	m.mu.Lock()
	m.failing[method] = true
	m.mu.Unlock()
}

// Calls returns how many times method was called.
func (m *MockMCE) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// enter records a call and reports the error to return, if any.
func (m *MockMCE) enter(method string) *dbus.Error {
	m.calls[method]++
	if m.failing[method] {
		return mcedbus.NewDBusError("com.nokia.mce.Error.Failed", method+" failed")
	}
	return nil
}

func (m *MockMCE) getBatteryLevel() (int32, *dbus.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(mcedbus.GetBatteryLevel); err != nil {
		return 0, err
	}
	return m.level, nil
}

func (m *MockMCE) getInactivityStatus() (bool, *dbus.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(mcedbus.GetInactivityStatus); err != nil {
		return false, err
	}
	return m.inactive, nil
}

func (m *MockMCE) stringGetter(method string, field *string) func() (string, *dbus.Error) {
	return func() (string, *dbus.Error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if err := m.enter(method); err != nil {
			return "", err
		}
		return *field, nil
	}
}

// SetBatteryLevel updates the level and broadcasts battery_level_ind.
// Out-of-range values are sent as is.
func (m *MockMCE) SetBatteryLevel(level int32) error {
	m.mu.Lock()
	m.level = level
	m.mu.Unlock()
	return m.emit(mcedbus.BatteryLevelSig, level)
}

// SetBatteryStatus updates the status and broadcasts battery_status_ind.
func (m *MockMCE) SetBatteryStatus(status string) error {
	return m.setString(&m.batteryStatus, mcedbus.BatteryStatusSig, status)
}

// SetChargerState updates the charger state and broadcasts charger_state_ind.
func (m *MockMCE) SetChargerState(state string) error {
	return m.setString(&m.chargerState, mcedbus.ChargerStateSig, state)
}

// SetDisplayStatus updates the display state and broadcasts display_status_ind.
func (m *MockMCE) SetDisplayStatus(state string) error {
	return m.setString(&m.displayStatus, mcedbus.DisplaySig, state)
}

// SetTklockMode updates the lock mode and broadcasts tklock_mode_ind.
func (m *MockMCE) SetTklockMode(mode string) error {
	return m.setString(&m.tklockMode, mcedbus.TklockModeSig, mode)
}

// SetInactivity updates the inactivity status and broadcasts
// system_inactivity_ind.
func (m *MockMCE) SetInactivity(inactive bool) error {
	m.mu.Lock()
	m.inactive = inactive
	m.mu.Unlock()
	return m.emit(mcedbus.InactivitySig, inactive)
}

func (m *MockMCE) setString(field *string, member, value string) error {
	m.mu.Lock()
	*field = value
	m.mu.Unlock()
	return m.emit(member, value)
}

func (m *MockMCE) emit(member string, value any) error {
	if m.conn == nil {
		return nil
	}
	if err := m.conn.Emit(mcedbus.SignalPath, mcedbus.SignalInterface+"."+member, value); err != nil {
		return fmt.Errorf("emit %s: %w", member, err)
	}
	return nil
}

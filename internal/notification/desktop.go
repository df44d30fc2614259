// Package notification shows desktop notifications for power events.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/nikicat/mcewatch/internal/mce"
	"github.com/nikicat/mcewatch/internal/monitor"
)

const (
	notifyDest      = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"
	notifyInterface = "org.freedesktop.Notifications"

	appName = "mcewatch"
)

// Urgency levels from the desktop notifications protocol.
type Urgency byte

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyCritical
)

// Notifier defines the interface for sending desktop notifications.
type Notifier interface {
	// Notify shows a notification, replacing replaces if non-zero, and
	// returns its ID.
	Notify(replaces uint32, summary, body, icon string, urgency Urgency) (uint32, error)
	// Close closes a notification by ID.
	Close(id uint32) error
}

// DBusNotifier sends notifications over the session bus.
// It reconnects if the connection drops.
type DBusNotifier struct {
	address string

	mu   sync.Mutex
	conn *dbus.Conn
}

// NewDBusNotifier connects to the session bus, or to address if non-empty.
func NewDBusNotifier(address string) (*DBusNotifier, error) {
	n := &DBusNotifier{address: address}
	if err := n.connect(); err != nil {
		return nil, err
	}
	return n, nil
}

// connect must be called with n.mu held (or during construction).
func (n *DBusNotifier) connect() error {
	var conn *dbus.Conn
	var err error
	if n.address == "" {
		conn, err = dbus.ConnectSessionBus()
	} else {
		conn, err = dbus.Connect(n.address)
	}
	if err != nil {
		return fmt.Errorf("connect to session bus: %w", err)
	}
	n.conn = conn
	return nil
}

// reconnect must be called with n.mu held.
func (n *DBusNotifier) reconnect() error {
	if n.conn != nil {
		n.conn.Close()
	}
	if err := n.connect(); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	slog.Info("reconnected to D-Bus session bus")
	return nil
}

// Stop closes the D-Bus connection.
func (n *DBusNotifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		n.conn.Close()
	}
}

// Notify sends a desktop notification.
// If the D-Bus connection is dead, it reconnects and retries once.
func (n *DBusNotifier) Notify(replaces uint32, summary, body, icon string, urgency Urgency) (uint32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id, err := n.doNotify(replaces, summary, body, icon, urgency)
	if err != nil && errors.Is(err, dbus.ErrClosed) {
		if reconnErr := n.reconnect(); reconnErr != nil {
			return 0, fmt.Errorf("notify call: %w (reconnect failed: %v)", err, reconnErr)
		}
		id, err = n.doNotify(replaces, summary, body, icon, urgency)
	}
	return id, err
}

func (n *DBusNotifier) doNotify(replaces uint32, summary, body, icon string, urgency Urgency) (uint32, error) {
	obj := n.conn.Object(notifyDest, notifyPath)
	call := obj.Call(
		notifyInterface+".Notify",
		0,
		appName,
		replaces,
		icon,
		summary,
		body,
		[]string{}, // actions
		map[string]dbus.Variant{
			"urgency": dbus.MakeVariant(byte(urgency)),
		},
		int32(-1), // expire_timeout (-1 = server default)
	)
	if call.Err != nil {
		return 0, fmt.Errorf("notify call: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("store notify result: %w", err)
	}
	return id, nil
}

// Close closes a notification by ID.
// If the D-Bus connection is dead, it reconnects and retries once.
func (n *DBusNotifier) Close(id uint32) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	err := n.doClose(id)
	if err != nil && errors.Is(err, dbus.ErrClosed) {
		if reconnErr := n.reconnect(); reconnErr != nil {
			return fmt.Errorf("close notification: %w (reconnect failed: %v)", err, reconnErr)
		}
		err = n.doClose(id)
	}
	return err
}

func (n *DBusNotifier) doClose(id uint32) error {
	obj := n.conn.Object(notifyDest, notifyPath)
	call := obj.Call(notifyInterface+".CloseNotification", 0, id)
	if call.Err != nil {
		return fmt.Errorf("close notification: %w", call.Err)
	}
	return nil
}

// alert is one notification to show or withdraw. A zero summary withdraws.
type alert struct {
	kind    mce.Kind
	summary string
	body    string
	icon    string
	urgency Urgency
}

// Handler turns monitor events into notifications: a warning while the
// battery is low or empty and a short note when the charger is plugged in
// or out. At most one notification per kind is on screen.
type Handler struct {
	notifier Notifier
	queue    chan alert
	log      *slog.Logger

	// loop-owned
	lastBattery mce.BatteryStatus
	lastCharger mce.ChargerState

	// Run-owned
	shown map[mce.Kind]uint32
}

// NewHandler creates a notification handler. Call Run to deliver alerts.
func NewHandler(notifier Notifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		notifier: notifier,
		queue:    make(chan alert, 16),
		log:      logger,
		shown:    make(map[mce.Kind]uint32),
	}
}

// OnEvent implements monitor.Observer. It never blocks; D-Bus calls happen
// in Run.
func (h *Handler) OnEvent(e monitor.Event) {
	if !e.Snapshot.Valid {
		return
	}
	switch e.Kind {
	case mce.KindBattery:
		if e.Changed != mce.FieldStatus && e.Changed != mce.FieldValid {
			return
		}
		h.batteryChanged(e.Snapshot)
	case mce.KindCharger:
		if e.Changed != mce.FieldState && e.Changed != mce.FieldValid {
			return
		}
		h.chargerChanged(e.Snapshot, e.Changed == mce.FieldValid)
	}
}

func (h *Handler) batteryChanged(s monitor.Snapshot) {
	status, _ := s.Fields.Get(mce.FieldStatus).(mce.BatteryStatus)
	if status == h.lastBattery {
		return
	}
	h.lastBattery = status
	level, _ := s.Fields.Get(mce.FieldLevel).(int)

	switch status {
	case mce.BatteryLow:
		h.enqueue(alert{
			kind:    mce.KindBattery,
			summary: "Battery low",
			body:    fmt.Sprintf("%d%% remaining", level),
			icon:    "battery-low",
			urgency: UrgencyNormal,
		})
	case mce.BatteryEmpty:
		h.enqueue(alert{
			kind:    mce.KindBattery,
			summary: "Battery empty",
			body:    fmt.Sprintf("%d%% remaining, connect a charger", level),
			icon:    "battery-empty",
			urgency: UrgencyCritical,
		})
	default:
		h.enqueue(alert{kind: mce.KindBattery})
	}
}

// chargerChanged notes plug events. The state seen when the charger first
// becomes valid is remembered but not announced.
func (h *Handler) chargerChanged(s monitor.Snapshot, initial bool) {
	state, _ := s.Fields.Get(mce.FieldState).(mce.ChargerState)
	prev := h.lastCharger
	h.lastCharger = state
	if initial || state == prev {
		return
	}
	switch state {
	case mce.ChargerOn:
		h.enqueue(alert{
			kind:    mce.KindCharger,
			summary: "Charger connected",
			icon:    "battery-good-charging",
			urgency: UrgencyLow,
		})
	case mce.ChargerOff:
		h.enqueue(alert{
			kind:    mce.KindCharger,
			summary: "Charger disconnected",
			icon:    "battery-good",
			urgency: UrgencyLow,
		})
	}
}

func (h *Handler) enqueue(a alert) {
	select {
	case h.queue <- a:
	default:
		h.log.Warn("notification queue full, dropping", "kind", a.kind, "summary", a.summary)
	}
}

// Run delivers queued alerts until ctx is cancelled, then withdraws any
// notification still on screen.
func (h *Handler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for kind := range h.shown {
				h.deliver(alert{kind: kind})
			}
			return
		case a := <-h.queue:
			h.deliver(a)
		}
	}
}

func (h *Handler) deliver(a alert) {
	prev := h.shown[a.kind]
	if a.summary == "" {
		if prev == 0 {
			return
		}
		delete(h.shown, a.kind)
		if err := h.notifier.Close(prev); err != nil {
			h.log.Warn("failed to close notification", "kind", a.kind, "error", err)
		}
		return
	}
	id, err := h.notifier.Notify(prev, a.summary, a.body, a.icon, a.urgency)
	if err != nil {
		h.log.Warn("failed to show notification", "kind", a.kind, "error", err)
		return
	}
	h.shown[a.kind] = id
	h.log.Debug("notification shown", "kind", a.kind, "summary", a.summary, "id", id)
}

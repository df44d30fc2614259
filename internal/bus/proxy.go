// Package bus implements the connection handle to MCE on the system D-Bus.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	mcedbus "github.com/nikicat/mcewatch/internal/dbus"
	"github.com/nikicat/mcewatch/internal/eventloop"
	"github.com/nikicat/mcewatch/internal/property"
)

const (
	defaultReconnectInterval = 5 * time.Second
	nameOwnerChanged         = mcedbus.DBusInterface + ".NameOwnerChanged"
)

// ErrNoLoop is returned by Open when no event loop is configured.
var ErrNoLoop = errors.New("bus: event loop required")

// Config holds the connection parameters.
type Config struct {
	// Address is the D-Bus address to connect to. Empty means the system
	// bus; tests point it at a private dbus-daemon.
	Address string
	// ReconnectInterval is the delay before redialing a lost bus.
	ReconnectInterval time.Duration
	// Loop receives every callback the proxy produces.
	Loop   *eventloop.Loop
	Logger *slog.Logger
}

// Proxy tracks whether MCE is on the bus and exposes its signal and request
// interfaces once they are usable. It implements property.Connection.
//
// The dial/receive goroutine never touches the fields below "loop-owned";
// it posts closures to the event loop instead.
type Proxy struct {
	cfg    Config
	loop   *eventloop.Loop
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	// loop-owned
	owner    string
	signals  *signalSource
	requests *requestSource
	handlers property.Handlers
	closed   bool
}

// Open creates a proxy and starts connecting in the background. The proxy
// reports itself as not connected until the bus is up and MCE owns its name.
func Open(cfg Config) (*Proxy, error) {
	if cfg.Loop == nil {
		return nil, ErrNoLoop
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Proxy{
		cfg:    cfg,
		loop:   cfg.Loop,
		log:    logger.With("component", "bus"),
		ctx:    ctx,
		cancel: cancel,
	}
	go p.run()
	return p, nil
}

// Connected reports whether MCE currently owns its bus name and the request
// interface is usable.
func (p *Proxy) Connected() bool {
	return p.owner != "" && p.requests != nil
}

// Owner returns the unique name of the current MCE instance, if any.
func (p *Proxy) Owner() string {
	return p.owner
}

// Signals returns the notification source, or nil.
func (p *Proxy) Signals() property.SignalSource {
	if p.signals == nil {
		return nil
	}
	return p.signals
}

// Requests returns the request source, or nil.
func (p *Proxy) Requests() property.RequestSource {
	if p.requests == nil {
		return nil
	}
	return p.requests
}

// AddValidChangedHandler registers fn to run after any readiness change.
func (p *Proxy) AddValidChangedHandler(fn func()) property.HandlerID {
	if fn == nil {
		return 0
	}
	return p.handlers.Add(property.ValidField, func(string) { fn() })
}

// RemoveHandler unregisters a handler.
func (p *Proxy) RemoveHandler(id property.HandlerID) {
	p.handlers.Remove(id)
}

// Close stops the background goroutine and closes the bus connection. It
// must be called from the event loop.
func (p *Proxy) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.cancel()
	p.signals = nil
	p.requests = nil
	p.owner = ""
	return nil
}

// post runs fn on the loop unless the proxy has been closed by then.
func (p *Proxy) post(fn func()) {
	p.loop.Post(func() {
		if p.closed {
			return
		}
		fn()
	})
}

func (p *Proxy) emit() {
	p.handlers.Emit(property.ValidField)
}

func (p *Proxy) dial() (*dbus.Conn, error) {
	opts := []dbus.ConnOption{
		dbus.WithContext(p.ctx),
		dbus.WithSignalHandler(dbus.NewSequentialSignalHandler()),
	}
	if p.cfg.Address == "" {
		return dbus.ConnectSystemBus(opts...)
	}
	return dbus.Connect(p.cfg.Address, opts...)
}

// run dials the bus, serves it until it drops, and redials.
func (p *Proxy) run() {
	for {
		conn, err := p.dial()
		if err != nil {
			p.log.Error("failed to attach to bus", "address", p.cfg.Address, "error", err)
		} else {
			p.serve(conn)
			conn.Close()
		}

		select {
		case <-p.ctx.Done():
			return
		case <-time.After(p.cfg.ReconnectInterval):
		}
	}
}

func (p *Proxy) serve(conn *dbus.Conn) {
	ch := make(chan *dbus.Signal, 64)
	if err := p.subscribe(conn); err != nil {
		p.log.Error("failed to set up MCE match rules", "error", err)
		return
	}
	conn.Signal(ch)
	defer conn.RemoveSignal(ch)

	owner, err := nameOwner(conn)
	if err != nil {
		p.log.Warn("failed to query MCE name owner", "error", err)
	}

	requests := &requestSource{conn: conn, proxy: p}
	signals := newSignalSource()
	p.post(func() {
		p.requests = requests
		p.signals = signals
		p.setOwner(owner)
		p.emit()
	})
	defer p.post(func() {
		if p.requests != requests {
			return
		}
		p.log.Warn("bus connection lost")
		p.requests = nil
		p.signals = nil
		p.owner = ""
		p.emit()
	})

	connCtx := conn.Context()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-connCtx.Done():
			return
		case sig, ok := <-ch:
			if !ok {
				return
			}
			p.handleSignal(sig, signals)
		}
	}
}

func (p *Proxy) subscribe(conn *dbus.Conn) error {
	if err := conn.AddMatchSignal(
		dbus.WithMatchSender(mcedbus.DBusName),
		dbus.WithMatchInterface(mcedbus.DBusInterface),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, mcedbus.BusName),
	); err != nil {
		return fmt.Errorf("watch %s: %w", mcedbus.BusName, err)
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(mcedbus.SignalInterface),
		dbus.WithMatchObjectPath(mcedbus.SignalPath),
	); err != nil {
		return fmt.Errorf("subscribe to %s: %w", mcedbus.SignalInterface, err)
	}
	return nil
}

func (p *Proxy) handleSignal(sig *dbus.Signal, signals *signalSource) {
	switch {
	case sig.Name == nameOwnerChanged:
		// NameOwnerChanged(name string, old_owner string, new_owner string)
		if len(sig.Body) != 3 {
			return
		}
		name, ok1 := sig.Body[0].(string)
		newOwner, ok2 := sig.Body[2].(string)
		if !ok1 || !ok2 || name != mcedbus.BusName {
			return
		}
		p.post(func() {
			if p.signals != signals {
				return
			}
			if p.setOwner(newOwner) {
				p.emit()
			}
		})

	case sig.Path == mcedbus.SignalPath && strings.HasPrefix(sig.Name, mcedbus.SignalInterface+"."):
		member := strings.TrimPrefix(sig.Name, mcedbus.SignalInterface+".")
		body := sig.Body
		p.post(func() { signals.dispatch(member, body) })
	}
}

// setOwner records the MCE owner and reports whether it changed.
func (p *Proxy) setOwner(owner string) bool {
	if owner == p.owner {
		return false
	}
	if owner != "" {
		p.log.Info("MCE appeared", "name", mcedbus.BusName, "owner", owner)
	} else {
		p.log.Info("MCE disappeared", "name", mcedbus.BusName)
	}
	p.owner = owner
	return true
}

func nameOwner(conn *dbus.Conn) (string, error) {
	var owner string
	err := conn.BusObject().Call(mcedbus.DBusInterface+".GetNameOwner", 0, mcedbus.BusName).Store(&owner)
	if err != nil {
		if errorName(err) == mcedbus.ErrNameHasNoOwner {
			return "", nil
		}
		return "", err
	}
	return owner, nil
}

// errorName returns the D-Bus error name of err. godbus delivers reply
// errors as values, exported handlers return pointers.
func errorName(err error) string {
	var val dbus.Error
	if errors.As(err, &val) {
		return val.Name
	}
	var ptr *dbus.Error
	if errors.As(err, &ptr) {
		return ptr.Name
	}
	return ""
}

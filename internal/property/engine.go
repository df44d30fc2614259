package property

import (
	"log/slog"
)

// Config configures an Engine.
type Config struct {
	Kind   string
	Set    *Set
	Conn   Connection
	Owner  Owner
	Logger *slog.Logger
}

// Engine drives one entity's cache towards the remote state.
//
// All methods must be called from the event loop that also delivers the
// Connection's callbacks.
type Engine struct {
	kind  string
	set   *Set
	conn  Connection
	owner Owner
	log   *slog.Logger

	values    []any
	populated []bool
	connected bool
	valid     bool

	subscribedTo SignalSource
	unsubscribe  []func()

	// cycle increments on every disconnect; inFlight holds the pull
	// queries issued during the current cycle.
	cycle    uint64
	inFlight map[int]bool

	connHandler HandlerID
	handlers    Handlers
	started     bool
	stopped     bool
}

// NewEngine creates an engine with every field at its default value.
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		kind:      cfg.Kind,
		set:       cfg.Set,
		conn:      cfg.Conn,
		owner:     cfg.Owner,
		log:       logger.With("kind", cfg.Kind),
		values:    make([]any, cfg.Set.Len()),
		populated: make([]bool, cfg.Set.Len()),
		inFlight:  make(map[int]bool),
	}
	for i := range e.values {
		e.values[i] = cfg.Set.defaultOf(i)
	}
	return e
}

// Start hooks the engine to its connection and evaluates the current
// readiness right away, covering a connection that is already usable.
func (e *Engine) Start() {
	if e.started || e.conn == nil {
		return
	}
	e.started = true
	e.connHandler = e.conn.AddValidChangedHandler(e.connectionChanged)
	e.connectionChanged()
}

// Stop detaches the engine from its connection. Pull replies arriving
// afterwards are ignored.
func (e *Engine) Stop() {
	if e.stopped {
		return
	}
	e.stopped = true
	e.detachSignals()
	if e.conn != nil && e.connHandler != 0 {
		e.conn.RemoveHandler(e.connHandler)
		e.connHandler = 0
	}
}

func (e *Engine) connectionChanged() {
	e.ReadinessChanged(e.conn.Connected(), e.conn.Signals(), e.conn.Requests())
}

// ReadinessChanged re-evaluates subscriptions and pull queries. signals and
// requests may each be nil.
func (e *Engine) ReadinessChanged(connected bool, signals SignalSource, requests RequestSource) {
	if e.stopped {
		return
	}
	if !connected {
		e.connected = false
		for i := range e.populated {
			e.populated[i] = false
		}
		e.detachSignals()
		e.cycle++
		clear(e.inFlight)
		e.checkValid()
		return
	}

	e.connected = true
	if signals != nil && signals != e.subscribedTo {
		e.detachSignals()
		e.attachSignals(signals)
	}
	if requests != nil {
		e.query(requests)
	}
	e.checkValid()
}

func (e *Engine) attachSignals(signals SignalSource) {
	for i, d := range e.set.descs {
		if d.Signal == "" {
			continue
		}
		name := e.set.descs[i].Name
		cancel := signals.Subscribe(d.Signal, func(args []any) {
			e.log.Debug("push notification", "field", name, "args", args)
			e.ValueReceived(name, firstArg(args))
		})
		e.unsubscribe = append(e.unsubscribe, cancel)
	}
	e.subscribedTo = signals
}

func (e *Engine) detachSignals() {
	for _, cancel := range e.unsubscribe {
		if cancel != nil {
			cancel()
		}
	}
	e.unsubscribe = nil
	e.subscribedTo = nil
}

func (e *Engine) query(requests RequestSource) {
	for i, d := range e.set.descs {
		if d.Method == "" || e.inFlight[i] {
			continue
		}
		e.inFlight[i] = true
		if e.owner != nil {
			e.owner.Retain()
		}
		idx, cycle := i, e.cycle
		requests.Query(d.Method, func(reply []any, err error) {
			if e.owner != nil {
				defer e.owner.Release()
			}
			e.queryDone(idx, cycle, reply, err)
		})
	}
}

func (e *Engine) queryDone(idx int, cycle uint64, reply []any, err error) {
	d := e.set.descs[idx]
	if cycle == e.cycle {
		delete(e.inFlight, idx)
	}
	if e.stopped {
		return
	}
	if cycle != e.cycle {
		e.log.Debug("dropping reply from previous connection", "method", d.Method)
		return
	}
	if err != nil {
		// No retry: the service broadcasts the value itself when it
		// changes. Until then this field stays unpopulated.
		e.log.Warn("query failed", "method", d.Method, "error", err)
		return
	}
	e.log.Debug("query reply", "method", d.Method, "reply", reply)
	e.ValueReceived(d.Name, firstArg(reply))
}

// ValueReceived merges a raw value for the named property into the cache.
func (e *Engine) ValueReceived(name string, wire any) {
	if e.stopped {
		return
	}
	idx, ok := e.set.index[name]
	if !ok || idx >= len(e.set.descs) {
		e.log.Warn("value for unknown property", "field", name)
		return
	}
	d := e.set.descs[idx]

	value, ok := d.Decode(wire)
	if !ok {
		if d.Unknown != nil {
			value = d.Unknown
		} else {
			e.log.Warn("unexpected value", "field", name, "value", wire)
			value = e.values[idx]
		}
	}
	if d.Range != nil {
		if n, isInt := value.(int); isInt {
			value = d.Range.Clamp(n)
		}
	}

	if value != e.values[idx] {
		e.values[idx] = value
		derived := e.updateDerived(idx)
		e.handlers.Emit(d.Name)
		for _, name := range derived {
			e.handlers.Emit(name)
		}
	}
	e.populated[idx] = true
	for _, j := range e.set.dependents[idx] {
		e.populated[j] = true
	}
	e.checkValid()
}

// updateDerived recomputes the fields derived from src and returns the
// names of those that changed. Callers emit after every value is stored.
func (e *Engine) updateDerived(src int) []string {
	var changed []string
	for _, j := range e.set.dependents[src] {
		dv := e.set.derived[j-len(e.set.descs)]
		value := dv.Compute(e.values[src])
		if value != e.values[j] {
			e.values[j] = value
			changed = append(changed, dv.Name)
		}
	}
	return changed
}

func (e *Engine) checkValid() {
	valid := e.connected
	if valid {
		for i, d := range e.set.descs {
			if d.Required && !e.populated[i] {
				valid = false
				break
			}
		}
	}
	if valid != e.valid {
		e.valid = valid
		e.log.Debug("validity changed", "valid", valid)
		e.handlers.Emit(ValidField)
	}
}

// Valid reports whether the connection is up and every required property
// has been populated since it came up.
func (e *Engine) Valid() bool {
	return e.valid
}

// Connected reports the last connection state the engine has seen.
func (e *Engine) Connected() bool {
	return e.connected
}

// Value returns the cached value of a field, or nil for unknown names.
func (e *Engine) Value(name string) any {
	idx, ok := e.set.index[name]
	if !ok {
		return nil
	}
	return e.values[idx]
}

// Populated reports whether a field has received a value since the last
// connection loss.
func (e *Engine) Populated(name string) bool {
	idx, ok := e.set.index[name]
	if !ok {
		return false
	}
	return e.populated[idx]
}

// Subscribed reports whether push handlers are attached.
func (e *Engine) Subscribed() bool {
	return e.subscribedTo != nil
}

// Pending returns the number of pull queries outstanding in the current
// connection cycle.
func (e *Engine) Pending() int {
	return len(e.inFlight)
}

// AddHandler registers fn for a field name or ValidField.
func (e *Engine) AddHandler(field string, fn func(field string)) HandlerID {
	if field != ValidField && !e.set.Has(field) {
		return 0
	}
	return e.handlers.Add(field, fn)
}

// RemoveHandler unregisters a handler.
func (e *Engine) RemoveHandler(id HandlerID) {
	e.handlers.Remove(id)
}

// RemoveHandlers unregisters several handlers and zeroes their ids.
func (e *Engine) RemoveHandlers(ids []HandlerID) {
	e.handlers.RemoveAll(ids)
}

// Set returns the field set the engine was built with.
func (e *Engine) Set() *Set {
	return e.set
}

func firstArg(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

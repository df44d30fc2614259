package property

import (
	"errors"
	"strconv"
)

// fakeSignals records subscriptions and lets tests push values.
type fakeSignals struct {
	subs map[string][]*fakeSub
}

type fakeSub struct {
	fn     func([]any)
	active bool
}

func newFakeSignals() *fakeSignals {
	return &fakeSignals{subs: make(map[string][]*fakeSub)}
}

func (s *fakeSignals) Subscribe(member string, fn func([]any)) func() {
	sub := &fakeSub{fn: fn, active: true}
	s.subs[member] = append(s.subs[member], sub)
	return func() { sub.active = false }
}

func (s *fakeSignals) active(member string) int {
	n := 0
	for _, sub := range s.subs[member] {
		if sub.active {
			n++
		}
	}
	return n
}

func (s *fakeSignals) emit(member string, args ...any) {
	for _, sub := range s.subs[member] {
		if sub.active {
			sub.fn(args)
		}
	}
}

// fakeRequests queues queries until the test completes them.
type fakeRequests struct {
	pending []*fakeQuery
}

type fakeQuery struct {
	method string
	done   func([]any, error)
}

func (r *fakeRequests) Query(method string, done func([]any, error)) {
	r.pending = append(r.pending, &fakeQuery{method: method, done: done})
}

func (r *fakeRequests) count(method string) int {
	n := 0
	for _, q := range r.pending {
		if q.method == method {
			n++
		}
	}
	return n
}

// reply completes the oldest pending query for method.
func (r *fakeRequests) reply(method string, value any) bool {
	return r.complete(method, []any{value}, nil)
}

func (r *fakeRequests) fail(method string) bool {
	return r.complete(method, nil, errors.New("org.freedesktop.DBus.Error.NoReply"))
}

func (r *fakeRequests) complete(method string, reply []any, err error) bool {
	for i, q := range r.pending {
		if q.method == method {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			q.done(reply, err)
			return true
		}
	}
	return false
}

// fakeConn is a Connection whose state tests flip by hand.
type fakeConn struct {
	connected bool
	signals   *fakeSignals
	requests  *fakeRequests
	handlers  Handlers
}

func newFakeConn() *fakeConn {
	return &fakeConn{signals: newFakeSignals(), requests: &fakeRequests{}}
}

func (c *fakeConn) Connected() bool { return c.connected }

func (c *fakeConn) Signals() SignalSource {
	if c.signals == nil {
		return nil
	}
	return c.signals
}

func (c *fakeConn) Requests() RequestSource {
	if c.requests == nil {
		return nil
	}
	return c.requests
}

func (c *fakeConn) AddValidChangedHandler(fn func()) HandlerID {
	return c.handlers.Add("valid", func(string) { fn() })
}

func (c *fakeConn) RemoveHandler(id HandlerID) { c.handlers.Remove(id) }

func (c *fakeConn) setConnected(v bool) {
	c.connected = v
	c.handlers.Emit("valid")
}

// countingOwner tracks Retain/Release balance.
type countingOwner struct{ refs int }

func (o *countingOwner) Retain()  { o.refs++ }
func (o *countingOwner) Release() { o.refs-- }

func decodeLevel(wire any) (any, bool) {
	switch v := wire.(type) {
	case int32:
		return int(v), true
	case int:
		return v, true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return nil, false
}

type status int

const (
	statusUnknown status = iota
	statusLow
	statusOK
)

func decodeStatus(wire any) (any, bool) {
	s, _ := wire.(string)
	switch s {
	case "low":
		return statusLow, true
	case "ok":
		return statusOK, true
	}
	return nil, false
}

var testSet = NewSet([]Descriptor{
	{
		Name:     "level",
		Signal:   "level_ind",
		Method:   "get_level",
		Decode:   decodeLevel,
		Default:  0,
		Range:    &Range{Min: 0, Max: 100},
		Required: true,
	},
	{
		Name:     "status",
		Signal:   "status_ind",
		Method:   "get_status",
		Decode:   decodeStatus,
		Default:  statusUnknown,
		Unknown:  statusUnknown,
		Required: true,
	},
}, Derived{
	Name:    "low",
	From:    "status",
	Default: false,
	Compute: func(v any) any { return v == statusLow },
})

// recorder counts change notifications per field.
type recorder struct {
	counts map[string]int
	order  []string
}

func newRecorder(e *Engine, fields ...string) *recorder {
	r := &recorder{counts: make(map[string]int)}
	for _, f := range fields {
		e.AddHandler(f, func(field string) {
			r.counts[field]++
			r.order = append(r.order, field)
		})
	}
	return r
}

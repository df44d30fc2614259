package mce

import (
	"errors"

	"github.com/nikicat/mcewatch/internal/property"
)

type fakeSignals struct {
	next int
	subs map[string]map[int]func([]any)
}

func (s *fakeSignals) Subscribe(member string, fn func([]any)) func() {
	if s.subs == nil {
		s.subs = make(map[string]map[int]func([]any))
	}
	if s.subs[member] == nil {
		s.subs[member] = make(map[int]func([]any))
	}
	s.next++
	id := s.next
	s.subs[member][id] = fn
	return func() { delete(s.subs[member], id) }
}

func (s *fakeSignals) emit(member string, args ...any) {
	for _, fn := range s.subs[member] {
		fn(args)
	}
}

type fakeCall struct {
	method string
	done   func([]any, error)
}

type fakeRequests struct {
	pending []fakeCall
}

func (r *fakeRequests) Query(method string, done func([]any, error)) {
	r.pending = append(r.pending, fakeCall{method: method, done: done})
}

// answer completes every pending call whose method has a reply in replies
// and fails the rest.
func (r *fakeRequests) answer(replies map[string]any) {
	calls := r.pending
	r.pending = nil
	for _, c := range calls {
		if v, ok := replies[c.method]; ok {
			c.done([]any{v}, nil)
		} else {
			c.done(nil, errors.New("org.freedesktop.DBus.Error.UnknownMethod"))
		}
	}
}

type fakeConn struct {
	connected bool
	signals   *fakeSignals
	requests  *fakeRequests
	handlers  property.Handlers
	refs      int
	dials     int
}

func newFakeConn() *fakeConn {
	return &fakeConn{signals: &fakeSignals{}, requests: &fakeRequests{}}
}

func (c *fakeConn) Connected() bool                  { return c.connected }
func (c *fakeConn) Signals() property.SignalSource   { return c.signals }
func (c *fakeConn) Requests() property.RequestSource { return c.requests }
func (c *fakeConn) RemoveHandler(id property.HandlerID) {
	c.handlers.Remove(id)
}

func (c *fakeConn) AddValidChangedHandler(fn func()) property.HandlerID {
	return c.handlers.Add(property.ValidField, func(string) { fn() })
}

func (c *fakeConn) Release() { c.refs-- }

func (c *fakeConn) setConnected(v bool) {
	c.connected = v
	c.handlers.Emit(property.ValidField)
}

func (c *fakeConn) dial() (Connection, error) {
	c.refs++
	c.dials++
	return c, nil
}

func newTestRegistry() (*Registry, *fakeConn) {
	conn := newFakeConn()
	return NewRegistry(conn.dial, nil), conn
}

package bus

import (
	"context"

	"github.com/godbus/dbus/v5"

	mcedbus "github.com/nikicat/mcewatch/internal/dbus"
)

// signalSource fans MCE notification signals out by member name.
// It lives on the event loop.
type signalSource struct {
	next uint64
	subs map[string][]subscription
}

type subscription struct {
	id uint64
	fn func(args []any)
}

func newSignalSource() *signalSource {
	return &signalSource{subs: make(map[string][]subscription)}
}

// Subscribe registers fn for the signal member and returns a function that
// cancels the subscription.
func (s *signalSource) Subscribe(member string, fn func(args []any)) func() {
	s.next++
	id := s.next
	s.subs[member] = append(s.subs[member], subscription{id: id, fn: fn})
	return func() { s.unsubscribe(member, id) }
}

func (s *signalSource) unsubscribe(member string, id uint64) {
	list := s.subs[member]
	for i, sub := range list {
		if sub.id == id {
			s.subs[member] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(s.subs[member]) == 0 {
		delete(s.subs, member)
	}
}

func (s *signalSource) dispatch(member string, args []any) {
	for _, sub := range append([]subscription(nil), s.subs[member]...) {
		sub.fn(args)
	}
}

// requestSource issues MCE method calls. Replies are delivered on the loop.
type requestSource struct {
	conn  *dbus.Conn
	proxy *Proxy
}

// Query calls method on the MCE request interface without arguments. done
// runs on the event loop with the reply body or the call error.
func (r *requestSource) Query(method string, done func(reply []any, err error)) {
	obj := r.conn.Object(mcedbus.BusName, mcedbus.RequestPath)
	call := obj.GoWithContext(r.proxy.ctx, mcedbus.RequestInterface+"."+method, 0, make(chan *dbus.Call, 1))
	go func() {
		<-call.Done
		body, err := call.Body, call.Err
		if err == nil && r.proxy.ctx.Err() != nil {
			err = context.Canceled
		}
		r.proxy.loop.Post(func() { done(body, err) })
	}()
}

package property

// SignalSource delivers push notifications by member name.
type SignalSource interface {
	// Subscribe attaches fn to the named push event. The returned function
	// detaches it again.
	Subscribe(member string, fn func(args []any)) (cancel func())
}

// RequestSource issues asynchronous pull queries.
type RequestSource interface {
	// Query calls method with no arguments. done runs exactly once, on the
	// same event loop as every other callback, with the reply body or an
	// error.
	Query(method string, done func(reply []any, err error))
}

// Connection is the handle an Engine reads readiness from.
type Connection interface {
	// Connected reports whether the remote service is reachable.
	Connected() bool
	// Signals returns the notification source, or nil if not available yet.
	Signals() SignalSource
	// Requests returns the request source, or nil if not available yet.
	Requests() RequestSource
	// AddValidChangedHandler registers fn to run whenever any of the above
	// may have changed.
	AddValidChangedHandler(fn func()) HandlerID
	// RemoveHandler unregisters a handler added with AddValidChangedHandler.
	RemoveHandler(id HandlerID)
}

// Owner is retained by the Engine for the duration of every pull query so
// the entity cannot be torn down while a reply is outstanding.
type Owner interface {
	Retain()
	Release()
}

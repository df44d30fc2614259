package property

// HandlerID identifies a registered handler. Zero is never a valid id.
type HandlerID uint64

type handler struct {
	id    HandlerID
	field string
	fn    func(field string)
}

// Handlers is an ordered list of change callbacks keyed by field.
// It is not safe for concurrent use; it belongs to the event loop.
type Handlers struct {
	next HandlerID
	list []handler
}

// Add registers fn for field and returns its id. A nil fn is ignored and
// yields 0.
func (h *Handlers) Add(field string, fn func(field string)) HandlerID {
	if fn == nil {
		return 0
	}
	h.next++
	h.list = append(h.list, handler{id: h.next, field: field, fn: fn})
	return h.next
}

// Remove unregisters a handler. It reports whether id was registered.
func (h *Handlers) Remove(id HandlerID) bool {
	if id == 0 {
		return false
	}
	for i, e := range h.list {
		if e.id == id {
			h.list = append(h.list[:i:i], h.list[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveAll unregisters every id in ids and zeroes the entries.
func (h *Handlers) RemoveAll(ids []HandlerID) {
	for i, id := range ids {
		h.Remove(id)
		ids[i] = 0
	}
}

// Len returns the number of registered handlers.
func (h *Handlers) Len() int {
	return len(h.list)
}

// Emit calls every handler registered for field, in registration order.
// Handlers removed by an earlier handler during the same emission are
// skipped.
func (h *Handlers) Emit(field string) {
	snapshot := append([]handler(nil), h.list...)
	for _, e := range snapshot {
		if e.field != field || !h.registered(e.id) {
			continue
		}
		e.fn(field)
	}
}

func (h *Handlers) registered(id HandlerID) bool {
	for _, e := range h.list {
		if e.id == id {
			return true
		}
	}
	return false
}

package mce

import (
	"fmt"
	"slices"
)

// FieldValue is one cached field in declaration order.
type FieldValue struct {
	Field Field
	Value any
}

// Entity is the kind-independent view of a facade, used by code that
// handles every kind the same way.
type Entity interface {
	Kind() Kind
	Valid() bool
	// Fields returns the cached values, excluding validity.
	Fields() []FieldValue
	// AddChangedHandler registers fn for every field and validity.
	AddChangedHandler(fn func(changed Field)) []HandlerID
	RemoveHandler(id HandlerID)
	RemoveHandlers(ids []HandlerID)
	Close()
}

var openers = map[Kind]func(*Registry) (Entity, error){
	KindBattery:    opener(NewBattery),
	KindCharger:    opener(NewCharger),
	KindDisplay:    opener(NewDisplay),
	KindTklock:     opener(NewTklock),
	KindInactivity: opener(NewInactivity),
}

func opener[T Entity](ctor func(*Registry) (T, error)) func(*Registry) (Entity, error) {
	return func(reg *Registry) (Entity, error) {
		v, err := ctor(reg)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// Open constructs the facade for kind.
func Open(reg *Registry, kind Kind) (Entity, error) {
	open, ok := openers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return open(reg)
}

// entity holds one reference to a shared instance and remembers the
// handlers registered through it so Close can remove them.
type entity struct {
	inst   *instance
	ids    []HandlerID
	closed bool
}

func newEntity(reg *Registry, kind Kind) (entity, error) {
	inst, err := reg.acquire(kind)
	if err != nil {
		return entity{}, err
	}
	return entity{inst: inst}, nil
}

// Kind returns the entity kind.
func (e *entity) Kind() Kind {
	return e.inst.kind
}

// Valid reports whether MCE is connected and every value has been received
// since the connection came up.
func (e *entity) Valid() bool {
	return e.inst.engine.Valid()
}

func (e *entity) Fields() []FieldValue {
	names := e.inst.engine.Set().Names()
	out := make([]FieldValue, 0, len(names))
	for _, name := range names {
		out = append(out, FieldValue{Field: Field(name), Value: e.inst.engine.Value(name)})
	}
	return out
}

func (e *entity) AddChangedHandler(fn func(changed Field)) []HandlerID {
	if fn == nil {
		return nil
	}
	ids := []HandlerID{e.add(FieldValid, fn)}
	for _, name := range e.inst.engine.Set().Names() {
		ids = append(ids, e.add(Field(name), fn))
	}
	return ids
}

func (e *entity) add(field Field, fn func(Field)) HandlerID {
	if fn == nil || e.closed {
		return 0
	}
	id := e.inst.engine.AddHandler(string(field), func(f string) { fn(Field(f)) })
	if id != 0 {
		e.ids = append(e.ids, id)
	}
	return id
}

// RemoveHandler unregisters a handler added through this facade. Ids from
// other facades are ignored.
func (e *entity) RemoveHandler(id HandlerID) {
	if id == 0 || e.closed || !slices.Contains(e.ids, id) {
		return
	}
	e.inst.engine.RemoveHandler(id)
	e.ids = slices.DeleteFunc(e.ids, func(x HandlerID) bool { return x == id })
}

// RemoveHandlers unregisters every handler in ids and zeroes the entries.
func (e *entity) RemoveHandlers(ids []HandlerID) {
	for i, id := range ids {
		e.RemoveHandler(id)
		ids[i] = 0
	}
}

// Close removes the handlers registered through this facade and releases
// its reference. Further calls do nothing.
func (e *entity) Close() {
	if e.closed {
		return
	}
	e.inst.engine.RemoveHandlers(e.ids)
	e.ids = nil
	e.closed = true
	e.inst.Release()
}

func value[T any](e *entity, f Field) T {
	v, _ := e.inst.engine.Value(string(f)).(T)
	return v
}

package mce

// Inactivity is the cached user inactivity state.
type Inactivity struct {
	entity
}

// InactivityHandler is called with the inactivity entity and the field
// that changed.
type InactivityHandler func(i *Inactivity, changed Field)

// NewInactivity returns a facade over the shared inactivity instance.
func NewInactivity(reg *Registry) (*Inactivity, error) {
	e, err := newEntity(reg, KindInactivity)
	if err != nil {
		return nil, err
	}
	return &Inactivity{entity: e}, nil
}

// Status is true while the user is inactive.
func (i *Inactivity) Status() bool { return value[bool](&i.entity, FieldStatus) }

// AddValidChangedHandler calls fn whenever the inactivity facade becomes valid or invalid.
func (i *Inactivity) AddValidChangedHandler(fn InactivityHandler) HandlerID {
	return i.add(FieldValid, i.bind(fn))
}

// AddStatusChangedHandler calls fn whenever the inactivity status changes.
func (i *Inactivity) AddStatusChangedHandler(fn InactivityHandler) HandlerID {
	return i.add(FieldStatus, i.bind(fn))
}

func (i *Inactivity) bind(fn InactivityHandler) func(Field) {
	if fn == nil {
		return nil
	}
	return func(f Field) { fn(i, f) }
}

package mce

// Display is the cached display state.
type Display struct {
	entity
}

// DisplayHandler is called with the display and the field that changed.
type DisplayHandler func(d *Display, changed Field)

// NewDisplay returns a facade over the shared display instance.
func NewDisplay(reg *Registry) (*Display, error) {
	e, err := newEntity(reg, KindDisplay)
	if err != nil {
		return nil, err
	}
	return &Display{entity: e}, nil
}

// State is the display power state. Unrecognized states read as on.
func (d *Display) State() DisplayState { return value[DisplayState](&d.entity, FieldState) }

// AddValidChangedHandler calls fn whenever the display facade becomes valid or invalid.
func (d *Display) AddValidChangedHandler(fn DisplayHandler) HandlerID {
	return d.add(FieldValid, d.bind(fn))
}

// AddStateChangedHandler calls fn whenever the display state changes.
func (d *Display) AddStateChangedHandler(fn DisplayHandler) HandlerID {
	return d.add(FieldState, d.bind(fn))
}

func (d *Display) bind(fn DisplayHandler) func(Field) {
	if fn == nil {
		return nil
	}
	return func(f Field) { fn(d, f) }
}

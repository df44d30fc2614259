package mce

// Tklock is the cached touchscreen/keypad lock state.
type Tklock struct {
	entity
}

// TklockHandler is called with the lock and the field that changed.
type TklockHandler func(t *Tklock, changed Field)

// NewTklock returns a facade over the shared lock instance.
func NewTklock(reg *Registry) (*Tklock, error) {
	e, err := newEntity(reg, KindTklock)
	if err != nil {
		return nil, err
	}
	return &Tklock{entity: e}, nil
}

// Mode is the current lock mode.
func (t *Tklock) Mode() TklockMode { return value[TklockMode](&t.entity, FieldMode) }

// Locked is derived from Mode: false only for the unlocked modes.
func (t *Tklock) Locked() bool { return value[bool](&t.entity, FieldLocked) }

// AddValidChangedHandler calls fn whenever the tklock facade becomes valid or invalid.
func (t *Tklock) AddValidChangedHandler(fn TklockHandler) HandlerID {
	return t.add(FieldValid, t.bind(fn))
}

// AddModeChangedHandler calls fn whenever the raw tklock mode changes.
func (t *Tklock) AddModeChangedHandler(fn TklockHandler) HandlerID {
	return t.add(FieldMode, t.bind(fn))
}

// AddLockedChangedHandler calls fn whenever the locked flag flips.
func (t *Tklock) AddLockedChangedHandler(fn TklockHandler) HandlerID {
	return t.add(FieldLocked, t.bind(fn))
}

func (t *Tklock) bind(fn TklockHandler) func(Field) {
	if fn == nil {
		return nil
	}
	return func(f Field) { fn(t, f) }
}

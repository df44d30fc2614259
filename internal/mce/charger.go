package mce

// Charger is the cached charger state.
type Charger struct {
	entity
}

// ChargerHandler is called with the charger and the field that changed.
type ChargerHandler func(c *Charger, changed Field)

// NewCharger returns a facade over the shared charger instance.
func NewCharger(reg *Registry) (*Charger, error) {
	e, err := newEntity(reg, KindCharger)
	if err != nil {
		return nil, err
	}
	return &Charger{entity: e}, nil
}

// State tells whether a charger is connected.
func (c *Charger) State() ChargerState { return value[ChargerState](&c.entity, FieldState) }

// AddValidChangedHandler calls fn whenever the charger facade becomes valid or invalid.
func (c *Charger) AddValidChangedHandler(fn ChargerHandler) HandlerID {
	return c.add(FieldValid, c.bind(fn))
}

// AddStateChangedHandler calls fn whenever the charger state changes.
func (c *Charger) AddStateChangedHandler(fn ChargerHandler) HandlerID {
	return c.add(FieldState, c.bind(fn))
}

func (c *Charger) bind(fn ChargerHandler) func(Field) {
	if fn == nil {
		return nil
	}
	return func(f Field) { fn(c, f) }
}

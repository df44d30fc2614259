package mce

// Battery is the cached battery state.
type Battery struct {
	entity
}

// BatteryHandler is called with the battery and the field that changed.
type BatteryHandler func(b *Battery, changed Field)

// NewBattery returns a facade over the shared battery instance.
func NewBattery(reg *Registry) (*Battery, error) {
	e, err := newEntity(reg, KindBattery)
	if err != nil {
		return nil, err
	}
	return &Battery{entity: e}, nil
}

// Level is the charge level in percent, 0 to 100.
func (b *Battery) Level() int { return value[int](&b.entity, FieldLevel) }

// Status is the coarse charge state.
func (b *Battery) Status() BatteryStatus { return value[BatteryStatus](&b.entity, FieldStatus) }

// AddValidChangedHandler calls fn whenever the battery facade becomes valid or invalid.
func (b *Battery) AddValidChangedHandler(fn BatteryHandler) HandlerID {
	return b.add(FieldValid, b.bind(fn))
}

// AddLevelChangedHandler calls fn whenever the charge level changes.
func (b *Battery) AddLevelChangedHandler(fn BatteryHandler) HandlerID {
	return b.add(FieldLevel, b.bind(fn))
}

// AddStatusChangedHandler calls fn whenever the battery status changes.
func (b *Battery) AddStatusChangedHandler(fn BatteryHandler) HandlerID {
	return b.add(FieldStatus, b.bind(fn))
}

func (b *Battery) bind(fn BatteryHandler) func(Field) {
	if fn == nil {
		return nil
	}
	return func(f Field) { fn(b, f) }
}

// Package monitor keeps one facade per watched kind open and publishes
// copies of their state to goroutines outside the event loop.
package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nikicat/mcewatch/internal/eventloop"
	"github.com/nikicat/mcewatch/internal/mce"
)

// Fields is the ordered list of cached values of one entity.
type Fields []mce.FieldValue

// MarshalJSON encodes the fields as an object, keeping declaration order.
func (f Fields) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, fv := range f {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(string(fv.Field))
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(fv.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fv.Field, err)
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	return append(buf, '}'), nil
}

// UnmarshalJSON decodes an object produced by MarshalJSON, keeping key
// order. Values come back as plain JSON types.
func (f *Fields) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("fields: expected object")
	}
	var out Fields
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		out = append(out, mce.FieldValue{Field: mce.Field(key), Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*f = out
	return nil
}

// Get returns the value of field, or nil.
func (f Fields) Get(field mce.Field) any {
	for _, fv := range f {
		if fv.Field == field {
			return fv.Value
		}
	}
	return nil
}

// Snapshot is a copy of one entity's state.
type Snapshot struct {
	Kind    mce.Kind  `json:"kind"`
	Valid   bool      `json:"valid"`
	Fields  Fields    `json:"fields"`
	Updated time.Time `json:"updated"`
}

// Event reports a change of one field of one entity.
type Event struct {
	Kind     mce.Kind  `json:"kind"`
	Changed  mce.Field `json:"changed"`
	Snapshot Snapshot  `json:"snapshot"`
}

// Observer receives change events. OnEvent runs on the event loop and must
// not block.
type Observer interface {
	OnEvent(Event)
}

// Monitor watches a set of kinds.
type Monitor struct {
	loop  *eventloop.Loop
	reg   *mce.Registry
	kinds []mce.Kind
	log   *slog.Logger

	// loop-owned
	entities []mce.Entity

	mu        sync.RWMutex
	snapshots map[mce.Kind]Snapshot
	changed   chan struct{}

	observersMu sync.RWMutex
	observers   map[Observer]struct{}
}

// New creates a monitor for kinds. Nothing is opened until Start.
func New(loop *eventloop.Loop, reg *mce.Registry, kinds []mce.Kind, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if len(kinds) == 0 {
		kinds = mce.Kinds()
	}
	return &Monitor{
		loop:      loop,
		reg:       reg,
		kinds:     kinds,
		log:       logger.With("component", "monitor"),
		snapshots: make(map[mce.Kind]Snapshot),
		changed:   make(chan struct{}),
		observers: make(map[Observer]struct{}),
	}
}

// Kinds returns the watched kinds in order.
func (m *Monitor) Kinds() []mce.Kind {
	return append([]mce.Kind(nil), m.kinds...)
}

// Start opens a facade for every kind on the event loop.
func (m *Monitor) Start(ctx context.Context) error {
	var openErr error
	err := m.loop.Call(ctx, func() {
		for _, kind := range m.kinds {
			e, err := mce.Open(m.reg, kind)
			if err != nil {
				openErr = fmt.Errorf("open %s: %w", kind, err)
				return
			}
			m.entities = append(m.entities, e)
			e.AddChangedHandler(func(changed mce.Field) {
				m.update(e, changed)
			})
			m.update(e, "")
		}
	})
	if err != nil {
		return err
	}
	if openErr != nil {
		m.Stop(ctx)
		return openErr
	}
	return nil
}

// Stop closes every facade. It is safe to call more than once.
func (m *Monitor) Stop(ctx context.Context) {
	err := m.loop.Call(ctx, func() {
		for _, e := range m.entities {
			e.Close()
		}
		m.entities = nil
	})
	if err != nil {
		m.log.Debug("stop skipped", "error", err)
	}
}

// update runs on the loop. An empty changed only refreshes the snapshot.
func (m *Monitor) update(e mce.Entity, changed mce.Field) {
	snap := Snapshot{
		Kind:    e.Kind(),
		Valid:   e.Valid(),
		Fields:  Fields(e.Fields()),
		Updated: time.Now(),
	}

	m.mu.Lock()
	m.snapshots[snap.Kind] = snap
	close(m.changed)
	m.changed = make(chan struct{})
	m.mu.Unlock()

	if changed == "" {
		return
	}
	m.log.Debug("entity changed", "kind", snap.Kind, "field", changed, "valid", snap.Valid)
	m.notify(Event{Kind: snap.Kind, Changed: changed, Snapshot: snap})
}

// Snapshot returns the latest state of kind.
func (m *Monitor) Snapshot(kind mce.Kind) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snapshots[kind]
	return s, ok
}

// Snapshots returns the latest state of every watched kind in order.
func (m *Monitor) Snapshots() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.kinds))
	for _, k := range m.kinds {
		if s, ok := m.snapshots[k]; ok {
			out = append(out, s)
		}
	}
	return out
}

// AllValid reports whether every watched kind is valid.
func (m *Monitor) AllValid() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allValidLocked()
}

func (m *Monitor) allValidLocked() bool {
	for _, k := range m.kinds {
		if !m.snapshots[k].Valid {
			return false
		}
	}
	return true
}

// WaitValid blocks until every watched kind is valid or ctx is done.
func (m *Monitor) WaitValid(ctx context.Context) error {
	for {
		m.mu.RLock()
		ok := m.allValidLocked()
		ch := m.changed
		m.mu.RUnlock()
		if ok {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Subscribe registers an observer to receive change events.
func (m *Monitor) Subscribe(o Observer) {
	m.observersMu.Lock()
	defer m.observersMu.Unlock()
	m.observers[o] = struct{}{}
}

// Unsubscribe removes an observer.
func (m *Monitor) Unsubscribe(o Observer) {
	m.observersMu.Lock()
	defer m.observersMu.Unlock()
	delete(m.observers, o)
}

func (m *Monitor) notify(event Event) {
	m.observersMu.RLock()
	defer m.observersMu.RUnlock()
	for o := range m.observers {
		o.OnEvent(event)
	}
}

package mce

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/nikicat/mcewatch/internal/property"
	"github.com/nikicat/mcewatch/internal/shared"
)

// ErrUnknownKind is returned when opening an entity of an unsupported kind.
var ErrUnknownKind = errors.New("unknown entity kind")

// Connection is a shared connection handle. Every live entity instance
// holds one reference and drops it with Release.
type Connection interface {
	property.Connection
	Release()
}

// Dialer returns a referenced Connection.
type Dialer func() (Connection, error)

// Registry holds at most one live instance per kind. Facades acquire the
// instance on construction and release it on Close; the last release tears
// it down and a later facade starts from an empty cache.
type Registry struct {
	dial      Dialer
	log       *slog.Logger
	instances *shared.Registry[Kind, *instance]
}

// NewRegistry creates a registry whose instances connect through dial.
func NewRegistry(dial Dialer, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		dial:      dial,
		log:       logger,
		instances: shared.NewRegistry[Kind, *instance](),
	}
}

// Live reports whether an instance of kind currently exists.
func (r *Registry) Live(kind Kind) bool {
	_, ok := r.instances.Lookup(kind)
	return ok
}

// Refs returns the reference count of the instance of kind.
func (r *Registry) Refs(kind Kind) int {
	return r.instances.Refs(kind)
}

// instance is the shared cache behind every facade of one kind.
type instance struct {
	kind   Kind
	reg    *Registry
	conn   Connection
	engine *property.Engine
}

// Retain and Release implement property.Owner: each in-flight pull query
// keeps the instance alive.
func (i *instance) Retain() {
	if err := i.reg.instances.Retain(i.kind); err != nil {
		i.reg.log.Error("retain failed", "kind", i.kind, "error", err)
	}
}

func (i *instance) Release() {
	if _, err := i.reg.instances.Release(i.kind); err != nil {
		i.reg.log.Error("release failed", "kind", i.kind, "error", err)
	}
}

func (r *Registry) acquire(kind Kind) (*instance, error) {
	set := setFor(kind)
	if set == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	inst, created, err := r.instances.Acquire(kind, func() (*instance, error) {
		conn, err := r.dial()
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", kind, err)
		}
		inst := &instance{kind: kind, reg: r, conn: conn}
		inst.engine = property.NewEngine(property.Config{
			Kind:   string(kind),
			Set:    set,
			Conn:   conn,
			Owner:  inst,
			Logger: r.log,
		})
		return inst, nil
	}, destroyInstance)
	if err != nil {
		return nil, err
	}
	if created {
		r.log.Debug("created instance", "kind", kind)
		inst.engine.Start()
	}
	return inst, nil
}

func destroyInstance(inst *instance) {
	inst.reg.log.Debug("destroyed instance", "kind", inst.kind)
	inst.engine.Stop()
	inst.conn.Release()
}

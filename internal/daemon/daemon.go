// Package daemon wires the event loop, the MCE bus connection and the
// entity registry together, and runs the long-lived API server on top.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nikicat/mcewatch/internal/bus"
	"github.com/nikicat/mcewatch/internal/eventloop"
	"github.com/nikicat/mcewatch/internal/mce"
)

// RuntimeConfig holds the bus parameters shared by every subcommand.
type RuntimeConfig struct {
	// BusAddress is the D-Bus address to connect to.
	// Empty means the system bus (production). Non-empty connects to a custom
	// address, used by integration tests to point at a private dbus-daemon.
	BusAddress        string
	ReconnectInterval time.Duration
	Logger            *slog.Logger
}

// Runtime owns an event loop and a registry whose entities share one bus
// connection. Entity code must run on Loop.
type Runtime struct {
	Loop     *eventloop.Loop
	Registry *mce.Registry

	log    *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// StartRuntime starts the event loop. The bus is dialed when the first
// entity is opened.
func StartRuntime(cfg RuntimeConfig) *Runtime {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loop := eventloop.New(0)
	ctx, cancel := context.WithCancel(context.Background())

	r := &Runtime{
		Loop: loop,
		Registry: mce.NewRegistry(bus.Dialer(bus.Config{
			Address:           cfg.BusAddress,
			ReconnectInterval: cfg.ReconnectInterval,
			Loop:              loop,
			Logger:            logger,
		}), logger),
		log:    logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		loop.Run(ctx) //nolint:errcheck
	}()
	return r
}

// Do runs fn on the loop and waits for it.
func (r *Runtime) Do(ctx context.Context, fn func() error) error {
	var fnErr error
	if err := r.Loop.Call(ctx, func() { fnErr = fn() }); err != nil {
		return fmt.Errorf("event loop: %w", err)
	}
	return fnErr
}

// Stop drains callbacks already queued, such as the bus close that follows
// the last entity release, and stops the loop.
func (r *Runtime) Stop(ctx context.Context) {
	if err := r.Loop.Call(ctx, func() {}); err != nil {
		r.log.Debug("event loop drain skipped", "error", err)
	}
	r.cancel()
	<-r.done
}

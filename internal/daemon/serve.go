package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nikicat/mcewatch/internal/api"
	"github.com/nikicat/mcewatch/internal/mce"
	"github.com/nikicat/mcewatch/internal/monitor"
	"github.com/nikicat/mcewatch/internal/notification"
)

// Config holds serve parameters.
type Config struct {
	RuntimeConfig

	Kinds []mce.Kind

	// Listen is the TCP address of the API; empty disables it.
	Listen string
	// Socket is the Unix socket path of the API; empty disables it.
	Socket string
	// StateDir receives the bearer token cookie for TCP clients.
	StateDir string

	NotifySystemd bool
	// Notifications enables desktop alerts for battery and charger events.
	Notifications bool
	// NotifyAddress is the bus for desktop alerts; empty means the session bus.
	NotifyAddress string

	// OnReady, if set, is called once the API is serving.
	OnReady func(*api.Server)
}

const shutdownTimeout = 5 * time.Second

// Run starts the monitor and the API, notifies systemd and blocks until ctx
// is cancelled. Returns nil on clean shutdown.
func Run(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Logger = logger

	rt := StartRuntime(cfg.RuntimeConfig)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		rt.Stop(stopCtx)
	}()

	mon := monitor.New(rt.Loop, rt.Registry, cfg.Kinds, logger)
	if err := mon.Start(ctx); err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		mon.Stop(stopCtx)
	}()

	if cfg.Notifications {
		notifier, err := notification.NewDBusNotifier(cfg.NotifyAddress)
		if err != nil {
			logger.Warn("failed to create desktop notifier, notifications disabled", "error", err)
		} else {
			defer notifier.Stop()
			handler := notification.NewHandler(notifier, logger)
			notifyCtx, cancel := context.WithCancel(ctx)
			done := make(chan struct{})
			go func() {
				defer close(done)
				handler.Run(notifyCtx)
			}()
			mon.Subscribe(handler)
			defer func() {
				mon.Unsubscribe(handler)
				cancel()
				<-done
			}()
			logger.Debug("desktop notifications enabled")
		}
	}

	opts := api.Options{Listen: cfg.Listen, Socket: cfg.Socket, Logger: logger}
	if cfg.Listen != "" {
		auth, err := api.NewAuth(cfg.StateDir)
		if err != nil {
			return fmt.Errorf("create auth token: %w", err)
		}
		opts.Auth = auth
	}
	server, err := api.NewServer(mon, opts)
	if err != nil {
		return fmt.Errorf("create API server: %w", err)
	}
	if err := server.Start(); err != nil {
		return fmt.Errorf("start API server: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("API shutdown", "error", err)
		}
	}()
	logger.Info("API server started",
		"addr", server.Addr(),
		"socket", server.SocketPath(),
		"cookie_file", server.CookieFilePath())

	n := &notifier{enabled: cfg.NotifySystemd}
	obs := &statusObserver{mon: mon, notify: n}
	mon.Subscribe(obs)
	defer mon.Unsubscribe(obs)

	n.ready(Summary(mon.Snapshots()))
	if cfg.OnReady != nil {
		cfg.OnReady(server)
	}

	<-ctx.Done()

	logger.Info("shutting down")
	n.stopping()
	return nil
}

// statusObserver keeps the systemd status line in step with validity.
type statusObserver struct {
	mon    *monitor.Monitor
	notify *notifier
}

func (o *statusObserver) OnEvent(e monitor.Event) {
	if e.Changed != mce.FieldValid {
		return
	}
	o.notify.status(Summary(o.mon.Snapshots()))
}

// Summary renders a one-line validity overview, e.g.
// "valid: battery display; waiting: charger".
func Summary(snaps []monitor.Snapshot) string {
	var valid, waiting []string
	for _, s := range snaps {
		if s.Valid {
			valid = append(valid, string(s.Kind))
		} else {
			waiting = append(waiting, string(s.Kind))
		}
	}
	switch {
	case len(snaps) == 0:
		return "no entities"
	case len(waiting) == 0:
		return "all valid"
	case len(valid) == 0:
		return "waiting: " + strings.Join(waiting, " ")
	default:
		return "valid: " + strings.Join(valid, " ") + "; waiting: " + strings.Join(waiting, " ")
	}
}

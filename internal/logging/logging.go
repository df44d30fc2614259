// Package logging builds the slog handlers used by mcewatch.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Options selects the handler format and level.
type Options struct {
	// Format is "text" (coloured, via tint) or "json".
	Format string
	// Level is shared with the handler so it can be changed at runtime.
	Level *slog.LevelVar
	// UnderSystemd disables colour and timestamps; the journal adds its own.
	UnderSystemd bool
}

// NewHandler creates a handler writing to w.
func NewHandler(w io.Writer, opts Options) slog.Handler {
	level := opts.Level
	if level == nil {
		level = new(slog.LevelVar)
	}
	if opts.Format == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	topts := &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    opts.UnderSystemd,
	}
	if opts.UnderSystemd {
		topts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		}
	}
	return tint.NewHandler(w, topts)
}

// Setup installs a default logger on stderr and returns its level so callers
// can adjust it later (for example after a config reload).
func Setup(format, level string) *slog.LevelVar {
	lv := new(slog.LevelVar)
	lv.Set(ParseLevel(level))
	handler := NewHandler(os.Stderr, Options{
		Format:       format,
		Level:        lv,
		UnderSystemd: os.Getenv("INVOCATION_ID") != "",
	})
	slog.SetDefault(slog.New(handler))
	return lv
}

// ParseLevel maps a config string to a level. Unknown strings mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ForKind returns the default logger tagged with an entity kind.
func ForKind(kind string) *slog.Logger {
	return slog.Default().With("kind", kind)
}

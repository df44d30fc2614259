package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/nikicat/mcewatch/internal/monitor"
)

// Formatter outputs MCE state as text lines or JSON.
type Formatter struct {
	w      io.Writer
	asJSON bool
}

// NewFormatter creates a new formatter.
func NewFormatter(w io.Writer, asJSON bool) *Formatter {
	return &Formatter{w: w, asJSON: asJSON}
}

// FormatSnapshots prints one line per entity.
func (f *Formatter) FormatSnapshots(snaps []monitor.Snapshot) error {
	if f.asJSON {
		if snaps == nil {
			snaps = []monitor.Snapshot{}
		}
		return json.NewEncoder(f.w).Encode(snaps)
	}
	if len(snaps) == 0 {
		fmt.Fprintln(f.w, "No entities watched")
		return nil
	}
	for _, s := range snaps {
		if _, err := fmt.Fprintln(f.w, SnapshotLine(s)); err != nil {
			return err
		}
	}
	return nil
}

// FormatStatus prints a server status response.
func (f *Formatter) FormatStatus(status *StatusResponse) error {
	if f.asJSON {
		return json.NewEncoder(f.w).Encode(status)
	}
	return f.FormatSnapshots(status.Entities)
}

// FormatEvent prints one change. JSON output is one object per line.
func (f *Formatter) FormatEvent(e monitor.Event) error {
	if f.asJSON {
		return json.NewEncoder(f.w).Encode(e)
	}
	_, err := fmt.Fprintln(f.w, EventLine(e))
	return err
}

// SnapshotLine renders a snapshot as "kind: valid=... field=value ...".
func SnapshotLine(s monitor.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: valid=%t", s.Kind, s.Valid)
	for _, fv := range s.Fields {
		fmt.Fprintf(&b, " %s=%s", fv.Field, formatValue(fv.Value))
	}
	return b.String()
}

// EventLine renders a change as the snapshot line followed by
// "(field changed)".
func EventLine(e monitor.Event) string {
	return fmt.Sprintf("%s (%s changed)", SnapshotLine(e.Snapshot), e.Changed)
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "-"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		// JSON numbers
		return fmt.Sprintf("%g", v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

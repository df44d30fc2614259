package api

import (
	"github.com/nikicat/mcewatch/internal/mce"
	"github.com/nikicat/mcewatch/internal/monitor"
)

// StateSource is the read side of a monitor.
type StateSource interface {
	Snapshot(kind mce.Kind) (monitor.Snapshot, bool)
	Snapshots() []monitor.Snapshot
	AllValid() bool
	Subscribe(monitor.Observer)
	Unsubscribe(monitor.Observer)
}

// StatusResponse is returned by GET /api/v1/status.
type StatusResponse struct {
	Running  bool               `json:"running"`
	Valid    bool               `json:"valid"`
	Entities []monitor.Snapshot `json:"entities"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WebSocket message types.
const (
	MsgSnapshot = "snapshot"
	MsgChanged  = "changed"
)

// WSMessage represents a message sent over the WebSocket.
type WSMessage struct {
	Type string `json:"type"`

	// For snapshot
	Conn     string             `json:"conn,omitempty"`
	Entities []monitor.Snapshot `json:"entities,omitempty"`

	// For changed
	Event *monitor.Event `json:"event,omitempty"`
}

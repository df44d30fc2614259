package daemon

import (
	"log/slog"
	"net"
	"os"
	"sync"
)

// SdNotify sends a state notification to systemd via NOTIFY_SOCKET.
// If NOTIFY_SOCKET is not set (non-systemd environment), returns silently.
// Dial failures are logged as warnings but do not return an error (fire-and-forget).
func SdNotify(state string) {
	socket := os.Getenv("NOTIFY_SOCKET")
	if socket == "" {
		return
	}
	conn, err := net.Dial("unixgram", socket)
	if err != nil {
		slog.Warn("sd-notify dial failed", "socket", socket, "err", err)
		return
	}
	defer conn.Close()
	conn.Write([]byte(state)) //nolint:errcheck
}

// notifier forwards readiness and status lines to systemd when enabled.
// Status updates arrive from the event loop.
type notifier struct {
	enabled bool

	mu   sync.Mutex
	last string
}

func (n *notifier) ready(status string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.enabled {
		SdNotify("READY=1\nSTATUS=" + status)
		n.last = status
	}
}

func (n *notifier) status(status string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.enabled && status != n.last {
		SdNotify("STATUS=" + status)
		n.last = status
	}
}

func (n *notifier) stopping() {
	if n.enabled {
		SdNotify("STOPPING=1")
	}
}

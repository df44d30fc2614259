package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/nikicat/mcewatch/internal/monitor"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	sendBuffer = 256
)

// WSHandler streams change events to WebSocket clients.
type WSHandler struct {
	source StateSource
	log    *slog.Logger

	connsMu sync.RWMutex
	conns   map[*wsConnection]struct{}
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(source StateSource, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		source: source,
		log:    logger,
		conns:  make(map[*wsConnection]struct{}),
	}
}

// wsConnection represents a single WebSocket connection.
type wsConnection struct {
	id        string
	handler   *WSHandler
	conn      *websocket.Conn
	send      chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// HandleWS handles WebSocket upgrade requests. The first message is a
// snapshot of every watched kind; every later message is one change.
func (h *WSHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Error("WebSocket accept failed", "error", err)
		return
	}

	conn.SetReadLimit(maxMessageSize)

	// The connection outlives the HTTP request.
	ctx, cancel := context.WithCancel(context.Background())
	wsc := &wsConnection{
		id:      uuid.NewString(),
		handler: h,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}

	h.connsMu.Lock()
	h.conns[wsc] = struct{}{}
	h.connsMu.Unlock()

	// Subscribe before the snapshot so no change falls in between.
	h.source.Subscribe(wsc)

	if err := wsc.sendSnapshot(); err != nil {
		h.log.Error("Failed to send snapshot", "conn", wsc.id, "error", err)
		wsc.close()
		return
	}
	h.log.Debug("WebSocket client connected", "conn", wsc.id, "remote", r.RemoteAddr)

	go wsc.writePump()
	go wsc.readPump()
}

// Connections returns the number of open streams.
func (h *WSHandler) Connections() int {
	h.connsMu.RLock()
	defer h.connsMu.RUnlock()
	return len(h.conns)
}

// CloseAll closes every open stream.
func (h *WSHandler) CloseAll() {
	h.connsMu.RLock()
	conns := make([]*wsConnection, 0, len(h.conns))
	for wsc := range h.conns {
		conns = append(conns, wsc)
	}
	h.connsMu.RUnlock()

	for _, wsc := range conns {
		wsc.close()
	}
}

// OnEvent implements monitor.Observer.
func (wsc *wsConnection) OnEvent(event monitor.Event) {
	data, err := json.Marshal(WSMessage{Type: MsgChanged, Event: &event})
	if err != nil {
		wsc.handler.log.Error("Failed to marshal WebSocket message", "error", err)
		return
	}

	// Drop the message if the client is slow.
	select {
	case wsc.send <- data:
	default:
		wsc.handler.log.Warn("WebSocket send buffer full, dropping message", "conn", wsc.id)
	}
}

func (wsc *wsConnection) sendSnapshot() error {
	msg := WSMessage{
		Type:     MsgSnapshot,
		Conn:     wsc.id,
		Entities: wsc.handler.source.Snapshots(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(wsc.ctx, writeWait)
	defer cancel()
	return wsc.conn.Write(ctx, websocket.MessageText, data)
}

// writePump pumps messages from the send channel to the WebSocket connection.
func (wsc *wsConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsc.close()
	}()

	for {
		select {
		case <-wsc.ctx.Done():
			return

		case message := <-wsc.send:
			ctx, cancel := context.WithTimeout(wsc.ctx, writeWait)
			err := wsc.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				wsc.handler.log.Debug("WebSocket write failed", "conn", wsc.id, "error", err)
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(wsc.ctx, writeWait)
			err := wsc.conn.Ping(ctx)
			cancel()
			if err != nil {
				wsc.handler.log.Debug("WebSocket ping failed", "conn", wsc.id, "error", err)
				return
			}
		}
	}
}

// readPump only detects close; client messages are ignored.
func (wsc *wsConnection) readPump() {
	defer wsc.close()

	for {
		if _, _, err := wsc.conn.Read(wsc.ctx); err != nil {
			return
		}
	}
}

func (wsc *wsConnection) close() {
	wsc.closeOnce.Do(func() {
		wsc.cancel()
		wsc.handler.source.Unsubscribe(wsc)

		wsc.handler.connsMu.Lock()
		delete(wsc.handler.conns, wsc)
		wsc.handler.connsMu.Unlock()

		wsc.conn.Close(websocket.StatusNormalClosure, "")
		wsc.handler.log.Debug("WebSocket client disconnected", "conn", wsc.id)
	})
}

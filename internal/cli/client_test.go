package cli

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/nikicat/mcewatch/internal/mce"
	"github.com/nikicat/mcewatch/internal/monitor"
)

func statusServer(t *testing.T, token string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(ErrorResponse{Error: "invalid token"})
			return
		}
		json.NewEncoder(w).Encode(StatusResponse{
			Running: true,
			Valid:   true,
			Entities: []monitor.Snapshot{
				{Kind: mce.KindBattery, Valid: true, Fields: monitor.Fields{
					{Field: mce.FieldLevel, Value: 33},
					{Field: mce.FieldStatus, Value: mce.BatteryLow},
				}},
			},
		})
	})
	mux.HandleFunc("/api/v1/status/{kind}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("kind") != "display" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(ErrorResponse{Error: "kind not watched: " + r.PathValue("kind")})
			return
		}
		json.NewEncoder(w).Encode(monitor.Snapshot{Kind: mce.KindDisplay, Valid: true,
			Fields: monitor.Fields{{Field: mce.FieldState, Value: mce.DisplayOff}}})
	})
	mux.HandleFunc("/api/v1/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		write := func(m Message) {
			data, _ := json.Marshal(m)
			conn.Write(ctx, websocket.MessageText, data)
		}
		write(Message{Type: "snapshot", Conn: "c1", Entities: []monitor.Snapshot{{Kind: mce.KindCharger}}})
		for _, state := range []mce.ChargerState{mce.ChargerOn, mce.ChargerOff} {
			write(Message{Type: "changed", Event: &monitor.Event{
				Kind:    mce.KindCharger,
				Changed: mce.FieldState,
				Snapshot: monitor.Snapshot{Kind: mce.KindCharger, Valid: true,
					Fields: monitor.Fields{{Field: mce.FieldState, Value: state}}},
			}})
		}
		conn.Close(websocket.StatusNormalClosure, "")
	})
	return httptest.NewServer(mux)
}

func TestClient_Status(t *testing.T) {
	server := statusServer(t, "test-token")
	defer server.Close()

	client := NewClient(strings.TrimPrefix(server.URL, "http://"), "test-token")
	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !status.Valid || len(status.Entities) != 1 {
		t.Fatalf("status = %+v", status)
	}
	if got := SnapshotLine(status.Entities[0]); got != "battery: valid=true level=33 status=low" {
		t.Errorf("line = %q", got)
	}
}

func TestClient_StatusUnauthorized(t *testing.T) {
	server := statusServer(t, "right")
	defer server.Close()

	client := NewClient(strings.TrimPrefix(server.URL, "http://"), "wrong")
	_, err := client.Status(context.Background())
	if err == nil || err.Error() != "invalid token" {
		t.Errorf("Status() error = %v, want invalid token", err)
	}
}

func TestClient_Kind(t *testing.T) {
	server := statusServer(t, "")
	defer server.Close()
	client := NewClient(strings.TrimPrefix(server.URL, "http://"), "")

	snap, err := client.Kind(context.Background(), "display")
	if err != nil {
		t.Fatalf("Kind failed: %v", err)
	}
	if snap.Fields.Get(mce.FieldState) != "off" {
		t.Errorf("state = %v", snap.Fields.Get(mce.FieldState))
	}

	if _, err := client.Kind(context.Background(), "battery"); err == nil || !strings.Contains(err.Error(), "not watched") {
		t.Errorf("Kind(battery) error = %v", err)
	}
}

func TestClient_Watch(t *testing.T) {
	server := statusServer(t, "")
	defer server.Close()
	client := NewClient(strings.TrimPrefix(server.URL, "http://"), "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var lines []string
	err := client.Watch(ctx, func(m Message) error {
		switch m.Type {
		case "snapshot":
			if m.Conn != "c1" || len(m.Entities) != 1 {
				t.Errorf("snapshot = %+v", m)
			}
		case "changed":
			lines = append(lines, EventLine(*m.Event))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	want := []string{
		"charger: valid=true state=on (state changed)",
		"charger: valid=true state=off (state changed)",
	}
	if len(lines) != len(want) {
		t.Fatalf("lines = %q", lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestClient_WatchStop(t *testing.T) {
	server := statusServer(t, "")
	defer server.Close()
	client := NewClient(strings.TrimPrefix(server.URL, "http://"), "")

	calls := 0
	err := client.Watch(context.Background(), func(Message) error {
		calls++
		return ErrStopWatch
	})
	if err != nil {
		t.Errorf("Watch() = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestUnixClient(t *testing.T) {
	server := statusServer(t, "")
	server.Close()

	sock := filepath.Join(t.TempDir(), "api.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	srv := &http.Server{Handler: server.Config.Handler}
	go srv.Serve(ln)
	defer srv.Close()

	client := NewUnixClient(sock)
	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status over unix socket: %v", err)
	}
	if len(status.Entities) != 1 {
		t.Errorf("entities = %+v", status.Entities)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n := 0
	if err := client.Watch(ctx, func(Message) error { n++; return nil }); err != nil {
		t.Fatalf("Watch over unix socket: %v", err)
	}
	if n != 3 {
		t.Errorf("messages = %d, want 3", n)
	}
}

// Package cli talks to a running mcewatch server and renders MCE state as
// text or JSON.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"

	"github.com/nikicat/mcewatch/internal/monitor"
)

// Client communicates with the mcewatch API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	// wsClient has no timeout; streams are bounded by their context.
	wsClient *http.Client
}

// NewClient creates a client for a TCP address. token is sent as a Bearer
// credential.
func NewClient(serverAddr, token string) *Client {
	return &Client{
		baseURL: "http://" + serverAddr,
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		wsClient: http.DefaultClient,
	}
}

// NewUnixClient creates a client for the server's Unix socket. No token is
// needed there.
func NewUnixClient(socketPath string) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return &Client{
		baseURL:    "http://unix",
		httpClient: &http.Client{Timeout: 10 * time.Second, Transport: transport},
		wsClient:   &http.Client{Transport: transport},
	}
}

// StatusResponse is the response from the status endpoint.
type StatusResponse struct {
	Running  bool               `json:"running"`
	Valid    bool               `json:"valid"`
	Entities []monitor.Snapshot `json:"entities"`
}

// Message is one frame of the change stream.
type Message struct {
	Type     string             `json:"type"`
	Conn     string             `json:"conn,omitempty"`
	Entities []monitor.Snapshot `json:"entities,omitempty"`
	Event    *monitor.Event     `json:"event,omitempty"`
}

// ErrorResponse is an error response from the API.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ErrStopWatch may be returned by a Watch callback to end the stream
// without error.
var ErrStopWatch = errors.New("stop watching")

// Status returns the state of every watched kind.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var result StatusResponse
	if err := c.getJSON(ctx, "/api/v1/status", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Kind returns the state of one kind.
func (c *Client) Kind(ctx context.Context, kind string) (*monitor.Snapshot, error) {
	var result monitor.Snapshot
	if err := c.getJSON(ctx, "/api/v1/status/"+url.PathEscape(kind), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Watch opens the change stream and calls fn for every message, starting
// with the snapshot. It returns when ctx is done, the server closes the
// stream or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(Message) error) error {
	u, err := url.Parse(c.baseURL + "/api/v1/ws")
	if err != nil {
		return err
	}
	u.Scheme = "ws"

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPClient: c.wsClient,
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return c.parseError(resp)
		}
		return fmt.Errorf("connect stream: %w", err)
	}
	defer conn.CloseNow()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("read stream: %w", err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decode message: %w", err)
		}
		if err := fn(msg); err != nil {
			conn.Close(websocket.StatusNormalClosure, "")
			if errors.Is(err, ErrStopWatch) {
				return nil
			}
			return err
		}
	}
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.httpClient.Do(req)
}

func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var errResp ErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return fmt.Errorf("%s", errResp.Error)
	}
	return fmt.Errorf("request failed: %s", resp.Status)
}

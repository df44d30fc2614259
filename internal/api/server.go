package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
)

// Options selects the listeners of a Server. At least one of Listen and
// Socket must be set.
type Options struct {
	// Listen is a TCP address. Requests on it need Auth's bearer token.
	Listen string
	Auth   *Auth

	// Socket is a Unix socket path. Only peers with the server's UID are
	// admitted and no token is needed.
	Socket string

	Logger *slog.Logger
}

// ErrNoListener is returned by NewServer when Options names no listener.
var ErrNoListener = errors.New("no listen address or socket configured")

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	wsHandler  *WSHandler
	auth       *Auth
	log        *slog.Logger

	listener     net.Listener
	unixListener net.Listener
	socketPath   string

	wg sync.WaitGroup
}

// NewServer creates the listeners and routes. Nothing is served until Start.
func NewServer(source StateSource, opts Options) (*Server, error) {
	if opts.Listen == "" && opts.Socket == "" {
		return nil, ErrNoListener
	}
	if opts.Listen != "" && opts.Auth == nil {
		return nil, errors.New("tcp listener requires auth")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "api")

	handlers := NewHandlers(source)
	wsHandler := NewWSHandler(source, logger)

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/v1/status", handlers.HandleStatus)
	apiMux.HandleFunc("/api/v1/status/{kind}", handlers.HandleKind)
	apiMux.HandleFunc("/api/v1/ws", wsHandler.HandleWS)

	var tokenGuarded http.Handler
	if opts.Auth != nil {
		tokenGuarded = opts.Auth.Middleware(apiMux)
	}

	rootMux := http.NewServeMux()
	rootMux.Handle("/api/", sameUser(os.Getuid(), logger, apiMux, tokenGuarded))

	s := &Server{
		httpServer: &http.Server{
			Handler:     rootMux,
			ConnContext: connContext,
		},
		wsHandler: wsHandler,
		auth:      opts.Auth,
		log:       logger,
	}

	// Create listeners first to catch address-in-use errors early.
	if opts.Listen != "" {
		ln, err := net.Listen("tcp", opts.Listen)
		if err != nil {
			return nil, err
		}
		s.listener = ln
	}
	if opts.Socket != "" {
		ln, err := listenUnix(opts.Socket)
		if err != nil {
			if s.listener != nil {
				s.listener.Close()
			}
			return nil, err
		}
		s.unixListener = ln
		s.socketPath = opts.Socket
	}
	return s, nil
}

// listenUnix replaces a stale socket file and restricts the new one to
// the owner.
func listenUnix(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	if fi, err := os.Lstat(path); err == nil && fi.Mode()&os.ModeSocket != 0 {
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return ln, nil
}

// Start begins serving HTTP requests. This is non-blocking.
func (s *Server) Start() error {
	for _, ln := range []net.Listener{s.listener, s.unixListener} {
		if ln == nil {
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
				s.log.Error("HTTP server error", "addr", ln.Addr(), "error", err)
			}
		}()
	}
	return nil
}

// Addr returns the TCP address the server is listening on, or "".
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// SocketPath returns the Unix socket path, or "".
func (s *Server) SocketPath() string {
	return s.socketPath
}

// CookieFilePath returns the path to the token file, or "".
func (s *Server) CookieFilePath() string {
	if s.auth == nil {
		return ""
	}
	return s.auth.FilePath()
}

// WSHandler returns the change stream handler.
func (s *Server) WSHandler() *WSHandler {
	return s.wsHandler
}

// Shutdown closes open streams and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsHandler.CloseAll()
	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()
	return err
}

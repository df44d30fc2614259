package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"golang.org/x/sys/unix"

	"github.com/nikicat/mcewatch/internal/procutil"
)

type connContextKey struct{}

// connContext returns a ConnContext function for http.Server that stores
// the net.Conn in the request context so handlers can read Unix socket
// peer credentials.
func connContext(ctx context.Context, c net.Conn) context.Context {
	return context.WithValue(ctx, connContextKey{}, c)
}

// peerCred returns the credentials of the Unix socket peer behind ctx.
// ok is false when the request did not arrive over a Unix socket.
func peerCred(ctx context.Context) (cred *unix.Ucred, ok bool, err error) {
	c, _ := ctx.Value(connContextKey{}).(net.Conn)
	uc, isUnix := c.(*net.UnixConn)
	if !isUnix {
		return nil, false, nil
	}

	raw, err := uc.SyscallConn()
	if err != nil {
		return nil, true, err
	}
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return nil, true, err
	}
	return cred, true, credErr
}

// sameUser admits Unix socket peers running as uid and hands every other
// request to fallback. A nil fallback rejects non-Unix requests.
func sameUser(uid int, logger *slog.Logger, next, fallback http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cred, isUnix, err := peerCred(r.Context())
		if !isUnix {
			if fallback == nil {
				writeError(w, "forbidden", http.StatusForbidden)
				return
			}
			fallback.ServeHTTP(w, r)
			return
		}
		if err != nil || cred == nil {
			logger.Warn("peer credentials unavailable", "error", err)
			writeError(w, "forbidden", http.StatusForbidden)
			return
		}
		if int(cred.Uid) != uid {
			logger.Warn("rejected peer", "uid", cred.Uid, "pid", cred.Pid)
			writeError(w, "forbidden", http.StatusForbidden)
			return
		}
		if logger.Enabled(r.Context(), slog.LevelDebug) {
			logger.Debug("unix peer", "path", r.URL.Path, "pid", cred.Pid, "uid", cred.Uid,
				"peer", procutil.DescribePeer(cred.Pid))
		}
		next.ServeHTTP(w, r)
	})
}

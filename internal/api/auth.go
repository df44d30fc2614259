// Package api serves cached MCE state over HTTP and a WebSocket change
// stream.
package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const (
	cookieFileName = ".cookie"
	cookieSize     = 32 // 32 bytes = 256 bits
)

// Auth handles bearer-token authentication for the TCP listener. The token
// is shared with local clients through a 0600 cookie file.
type Auth struct {
	token    string
	filePath string
}

// NewAuth creates a new Auth, generating a random token and writing it to dir.
func NewAuth(dir string) (*Auth, error) {
	tokenBytes := make([]byte, cookieSize)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	filePath := filepath.Join(dir, cookieFileName)
	if err := os.WriteFile(filePath, []byte(token), 0600); err != nil {
		return nil, err
	}

	return &Auth{
		token:    token,
		filePath: filePath,
	}, nil
}

// LoadAuth loads an existing Auth from the cookie file in dir.
func LoadAuth(dir string) (*Auth, error) {
	filePath := filepath.Join(dir, cookieFileName)
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return nil, fmt.Errorf("empty cookie file %s", filePath)
	}

	return &Auth{
		token:    token,
		filePath: filePath,
	}, nil
}

// Middleware returns an HTTP middleware that requires a valid Bearer token.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, "invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(a.token)) != 1 {
			writeError(w, "invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Token returns the current auth token.
func (a *Auth) Token() string {
	return a.token
}

// FilePath returns the path to the cookie file.
func (a *Auth) FilePath() string {
	return a.filePath
}

package testutil

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
)

// Server is a Backend listening on a local test server
type Server struct {
	*Backend
	HTTP *httptest.Server
}

// NewServer starts a backend on httptest and closes it on test cleanup
func NewServer(t testing.TB) *Server {
	t.Helper()

	backend := NewBackend(DiscardLogger())
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(backend.Hub().DropAll)

	return &Server{Backend: backend, HTTP: srv}
}

// URL returns the base URL of the HTTP API
func (s *Server) URL() string {
	return s.HTTP.URL
}

// WSURL returns the URL of the WebSocket endpoint
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.HTTP.URL, "http") + "/ws"
}

// DiscardLogger returns a logger that drops everything
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

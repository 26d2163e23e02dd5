package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teranos/p8ls/errors"
	"github.com/teranos/p8ls/logger"
	"github.com/teranos/p8ls/lsp"
	"github.com/teranos/p8ls/version"
	glspserver "github.com/tliron/glsp/server"
	"go.uber.org/zap"
)

// ShutdownTimeout bounds how long network transports wait for open connections
const ShutdownTimeout = 5 * time.Second

// Options configures the transports of an LSPServer
type Options struct {
	Handler        HandlerOptions
	TCPAddress     string
	WSAddress      string
	AllowedOrigins []string
}

// LSPServer serves the PICO-8 language service over stdio, TCP or WebSocket.
// Every connection gets its own GLSPHandler and document cache.
type LSPServer struct {
	completions   lsp.CompletionSource
	documentation lsp.DocumentationSource
	opts          Options
	logger        *zap.SugaredLogger

	originsMu      sync.RWMutex
	allowedOrigins []string

	upgrader    websocket.Upgrader
	connections atomic.Int64
	wg          sync.WaitGroup
}

// New creates an LSPServer over the given lookup sources
func New(completions lsp.CompletionSource, documentation lsp.DocumentationSource, opts Options) *LSPServer {
	s := &LSPServer{
		completions:    completions,
		documentation:  documentation,
		opts:           opts,
		logger:         logger.ComponentLogger("server"),
		allowedOrigins: opts.AllowedOrigins,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

// NewHandler creates the handler for a new client connection
func (s *LSPServer) NewHandler() *GLSPHandler {
	return NewGLSPHandler(s.completions, s.documentation, s.opts.Handler)
}

// Connections returns the number of currently connected network clients
func (s *LSPServer) Connections() int64 {
	return s.connections.Load()
}

// SetAllowedOrigins replaces the WebSocket origin allow-list
func (s *LSPServer) SetAllowedOrigins(origins []string) {
	s.originsMu.Lock()
	defer s.originsMu.Unlock()
	s.allowedOrigins = append([]string(nil), origins...)
}

// RunStdio serves a single client on stdin/stdout until the client exits
func (s *LSPServer) RunStdio() error {
	handler := s.NewHandler()
	s.logger.Infow("Serving LSP over stdio",
		logger.FieldTransport, "stdio",
		logger.FieldSession, handler.Session(),
	)

	glspServer := glspserver.NewServer(handler.ProtocolHandler(), ServerName, false)
	if err := glspServer.RunStdio(); err != nil {
		return errors.Wrap(err, "stdio transport failed")
	}

	s.logger.Infow("Stdio connection closed")
	return nil
}

// RunTCP accepts LSP clients on the configured TCP address until ctx is cancelled
func (s *LSPServer) RunTCP(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.opts.TCPAddress)
	if err != nil {
		return errors.WithHint(
			errors.Wrapf(err, "failed to listen on %s", s.opts.TCPAddress),
			"set server.tcp_address or pass --tcp with a free address",
		)
	}
	return s.ServeTCP(ctx, listener)
}

// ServeTCP accepts LSP clients on listener until ctx is cancelled
func (s *LSPServer) ServeTCP(ctx context.Context, listener net.Listener) error {
	s.logger.Infow("Listening for TCP connections",
		logger.FieldTransport, "tcp",
		logger.FieldAddress, listener.Addr().String(),
	)

	go func() {
		<-ctx.Done()
		_ = listener.Close() // Error ignored: unblocks Accept during shutdown
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.waitForConnections()
				return nil
			}
			return errors.Wrap(err, "failed to accept TCP connection")
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *LSPServer) serveConn(ctx context.Context, conn net.Conn) {
	handler := s.NewHandler()
	connLogger := logger.ChildLogger(s.logger,
		logger.FieldSession, handler.Session(),
		logger.FieldRemote, conn.RemoteAddr().String(),
	)

	s.connections.Add(1)
	defer s.connections.Add(-1)

	connLogger.Infow("TCP connection opened")
	ServeStream(ctx, conn, handler.ProtocolHandler(), connLogger)
	connLogger.Infow("TCP connection closed")
}

// RunWebSocket serves LSP over WebSocket at /lsp, plus /healthz, until ctx is cancelled
func (s *LSPServer) RunWebSocket(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.opts.WSAddress)
	if err != nil {
		return errors.WithHint(
			errors.Wrapf(err, "failed to listen on %s", s.opts.WSAddress),
			"set server.ws_address or pass --ws with a free address",
		)
	}

	httpServer := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warnw("HTTP shutdown incomplete", logger.FieldError, err)
		}
	}()

	s.logger.Infow("Listening for WebSocket connections",
		logger.FieldTransport, "websocket",
		logger.FieldAddress, listener.Addr().String(),
	)

	if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "WebSocket transport failed")
	}

	// Hijacked WebSocket connections are not tracked by http.Server.Shutdown
	s.waitForConnections()
	return nil
}

// Routes returns the HTTP handler for the WebSocket transport
func (s *LSPServer) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/lsp", s.HandleGLSPWebSocket)
	mux.HandleFunc("/healthz", s.HandleHealth)
	return mux
}

// HandleGLSPWebSocket upgrades HTTP to WebSocket and serves LSP protocol
func (s *LSPServer) HandleGLSPWebSocket(w http.ResponseWriter, r *http.Request) {
	s.logger.Infow("GLSP WebSocket connection request", logger.FieldRemote, r.RemoteAddr)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response
		s.logger.Warnw("Failed to upgrade WebSocket",
			logger.FieldRemote, r.RemoteAddr,
			logger.FieldError, err,
		)
		return
	}
	defer conn.Close()

	s.wg.Add(1)
	defer s.wg.Done()
	s.connections.Add(1)
	defer s.connections.Add(-1)

	handler := s.NewHandler()
	glspServer := glspserver.NewServer(handler.ProtocolHandler(), ServerName, false)

	s.logger.Infow("Serving GLSP over WebSocket",
		logger.FieldRemote, r.RemoteAddr,
		logger.FieldSession, handler.Session(),
	)

	// Blocks until the connection closes
	glspServer.ServeWebSocket(conn)

	s.logger.Infow("GLSP WebSocket connection closed",
		logger.FieldRemote, r.RemoteAddr,
		logger.FieldSession, handler.Session(),
	)
}

// HealthResponse is returned by /healthz
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Connections int64  `json:"connections"`
}

// HandleHealth reports liveness for the WebSocket transport
func (s *LSPServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if err := writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Version:     version.Get().Version,
		Connections: s.Connections(),
	}); err != nil {
		s.logger.Warnw("Failed to write health response", logger.FieldError, err)
	}
}

// checkOrigin allows requests without an Origin header (editor clients) and
// origins that start with an allowed prefix. Without configured origins only
// localhost is accepted.
func (s *LSPServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	s.originsMu.RLock()
	allowed := s.allowedOrigins
	s.originsMu.RUnlock()

	if len(allowed) == 0 {
		return strings.HasPrefix(origin, "http://localhost") ||
			strings.HasPrefix(origin, "https://localhost") ||
			strings.HasPrefix(origin, "http://127.0.0.1")
	}

	// Prefix matching allows any port number
	for _, prefix := range allowed {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

func (s *LSPServer) waitForConnections() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Infow("All connections closed")
	case <-time.After(ShutdownTimeout):
		s.logger.Warnw("Connection shutdown timed out",
			"timeout", ShutdownTimeout,
			"open_connections", s.Connections(),
		)
	}
}

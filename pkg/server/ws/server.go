// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/bboard/pkg/handler"
	"github.com/absmach/bboard/pkg/metrics"
	"github.com/absmach/bboard/pkg/parser"
	"github.com/absmach/bboard/pkg/session"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Transport is the handler.Context transport name of WebSocket sessions.
const Transport = "ws"

// DefaultPath is where the upgrade endpoint is mounted by Listen.
const DefaultPath = "/ws"

// ErrShutdownTimeout is returned when sessions did not end within the shutdown timeout.
var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

// Config holds the WebSocket server configuration.
type Config struct {
	// Address is the HTTP listen address (host:port)
	Address string

	// Path is the upgrade endpoint. Defaults to DefaultPath.
	Path string

	// CheckOrigin filters upgrade requests. Nil accepts every origin.
	CheckOrigin func(r *http.Request) bool

	// ShutdownTimeout bounds draining sessions on shutdown.
	ShutdownTimeout time.Duration

	// Session holds per-connection settings.
	Session session.Config

	// Logger for server events
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Server upgrades HTTP requests to WebSocket connections and runs one
// session per connection against the shared dispatcher.
type Server struct {
	config     Config
	dispatcher *parser.Dispatcher
	handler    handler.Handler
	upgrader   websocket.Upgrader
	active     atomic.Int64
	wg         sync.WaitGroup

	// closing is cancelled to force-close sessions.
	closing context.Context
	cancel  context.CancelFunc
}

var _ http.Handler = (*Server)(nil)

// New creates a WebSocket server.
func New(cfg Config, d *parser.Dispatcher, h handler.Handler) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Session.Logger == nil {
		cfg.Session.Logger = cfg.Logger
	}
	if cfg.CheckOrigin == nil {
		cfg.CheckOrigin = func(r *http.Request) bool { return true }
	}
	if h == nil {
		h = &handler.NoopHandler{}
	}

	closing, cancel := context.WithCancel(context.Background())
	return &Server{
		config:     cfg,
		dispatcher: d,
		handler:    h,
		upgrader:   websocket.Upgrader{CheckOrigin: cfg.CheckOrigin},
		closing:    closing,
		cancel:     cancel,
	}
}

// Active returns the number of sessions currently being served.
func (s *Server) Active() int {
	return int(s.active.Load())
}

// ServeHTTP implements http.Handler interface.
// It upgrades the request and runs a session until it ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.closing.Err() != nil {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already replied with an HTTP error.
		s.config.Logger.Debug("failed to upgrade connection",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()))
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	conn := NewConn(wsConn)
	defer conn.Close()
	stop := context.AfterFunc(s.closing, func() { conn.Close() })
	defer stop()

	s.active.Add(1)
	defer s.active.Add(-1)

	hctx := &handler.Context{
		SessionID:   uuid.New().String(),
		RemoteAddr:  r.RemoteAddr,
		Transport:   Transport,
		ConnectedAt: time.Now(),
	}

	s.config.Logger.Debug("websocket connection upgraded",
		slog.String("session", hctx.SessionID),
		slog.String("remote", hctx.RemoteAddr))

	sess := session.New(conn, s.dispatcher, s.handler, hctx, s.config.Session)
	run := func() error { return sess.Run(s.closing) }

	if s.config.Metrics != nil {
		err = s.config.Metrics.ObserveConnection(Transport, run)
	} else {
		err = run()
	}
	if err != nil {
		s.config.Logger.Debug("websocket session error",
			slog.String("session", hctx.SessionID),
			slog.String("error", err.Error()))
	}

	s.config.Logger.Debug("websocket connection closed",
		slog.String("session", hctx.SessionID))
}

// Listen serves the upgrade endpoint on Config.Address until ctx is cancelled.
func (s *Server) Listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves the upgrade endpoint on ln until ctx is cancelled, then drains
// sessions for up to ShutdownTimeout before closing them.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle(s.config.Path, s)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.config.Logger.Info("WebSocket server started",
		slog.String("address", ln.Addr().String()),
		slog.String("path", s.config.Path))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.cancel()
		return fmt.Errorf("websocket server: %w", err)
	case <-ctx.Done():
	}

	// Hijacked connections are not tracked by http.Server, so sessions are
	// drained separately.
	if err := srv.Close(); err != nil {
		s.config.Logger.Error("error closing websocket listener", slog.String("error", err.Error()))
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-time.After(s.config.ShutdownTimeout):
		s.config.Logger.Warn("shutdown timeout exceeded, forcing websocket closure",
			slog.Int("active", s.Active()))
		s.cancel()
		select {
		case <-done:
		case <-time.After(1 * time.Second):
		}
		return ErrShutdownTimeout
	}
}

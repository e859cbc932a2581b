// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	bberrors "github.com/absmach/bboard/pkg/errors"
	"github.com/absmach/bboard/pkg/handler"
	"github.com/absmach/bboard/pkg/metrics"
	"github.com/absmach/bboard/pkg/parser"
	"github.com/absmach/bboard/pkg/session"
	"github.com/google/uuid"
)

// Transport is the handler.Context transport name of TCP sessions.
const Transport = "tcp"

var (
	// ErrShutdownTimeout is returned when graceful shutdown exceeds the configured timeout.
	ErrShutdownTimeout = errors.New("shutdown timeout exceeded")
)

// Config holds the TCP server configuration.
type Config struct {
	// Address is the listen address (host:port)
	Address string

	// TLSConfig is optional TLS configuration for the listener
	TLSConfig *tls.Config

	// ShutdownTimeout is the maximum time to wait for active connections to drain
	// during graceful shutdown. After this timeout, remaining connections are
	// forcefully closed.
	ShutdownTimeout time.Duration

	// MaxConnections caps concurrently served connections. Connections
	// accepted above the cap are closed immediately. Zero means unbounded.
	MaxConnections int

	// Session holds per-connection settings.
	Session session.Config

	// Logger for server events
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Server accepts TCP connections and runs one bulletin board session per
// connection.
type Server struct {
	config     Config
	dispatcher *parser.Dispatcher
	handler    handler.Handler
	slots      chan struct{}
	active     atomic.Int64
	wg         sync.WaitGroup
}

// New creates a new TCP server with the given configuration, dispatcher, and handler.
func New(cfg Config, d *parser.Dispatcher, h handler.Handler) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Session.Logger == nil {
		cfg.Session.Logger = cfg.Logger
	}
	if h == nil {
		h = &handler.NoopHandler{}
	}

	s := &Server{
		config:     cfg,
		dispatcher: d,
		handler:    h,
	}
	if cfg.MaxConnections > 0 {
		s.slots = make(chan struct{}, cfg.MaxConnections)
	}

	return s
}

// Active returns the number of sessions currently being served.
func (s *Server) Active() int {
	return int(s.active.Load())
}

// Listen starts the TCP server and blocks until the context is cancelled.
// It implements graceful shutdown with connection draining.
func (s *Server) Listen(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}

	// Wrap with TLS if configured
	if s.config.TLSConfig != nil {
		listener = tls.NewListener(listener, s.config.TLSConfig)
		s.config.Logger.Info("TLS enabled", slog.String("address", s.config.Address))
	}

	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled. The listener
// is closed on return.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.config.Logger.Info("TCP server started", slog.String("address", listener.Addr().String()))

	// Active sessions outlive ctx until they drain or the timeout forces them closed.
	connCtx, connCancel := context.WithCancel(context.Background())
	defer connCancel()

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		s.acceptLoop(ctx, connCtx, listener)
	}()

	<-ctx.Done()
	s.config.Logger.Info("shutdown signal received, closing listener")

	if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.config.Logger.Error("error closing listener", slog.String("error", err.Error()))
	}

	<-acceptDone

	// Wait for active connections to drain with timeout
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.config.Logger.Info("all connections closed gracefully")
		return nil
	case <-time.After(s.config.ShutdownTimeout):
		s.config.Logger.Warn("shutdown timeout exceeded, forcing connection closure",
			slog.Int("active", s.Active()))
		connCancel()
		select {
		case <-done:
		case <-time.After(1 * time.Second):
		}
		return ErrShutdownTimeout
	}
}

func (s *Server) acceptLoop(ctx, connCtx context.Context, listener net.Listener) {
	var backoff time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			// Temporary failures such as EMFILE: back off and retry.
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff < time.Second {
				backoff *= 2
			}
			s.config.Logger.Error("failed to accept connection",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", backoff))
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if !s.acquire() {
			s.reject(conn)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.release()
			if err := s.handleConn(connCtx, conn); err != nil {
				s.config.Logger.Debug("connection handler error",
					slog.String("remote", conn.RemoteAddr().String()),
					slog.String("error", err.Error()))
			}
		}()
	}
}

func (s *Server) acquire() bool {
	if s.slots == nil {
		return true
	}
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Server) release() {
	if s.slots != nil {
		<-s.slots
	}
}

func (s *Server) reject(conn net.Conn) {
	s.config.Logger.Warn("connection rejected",
		slog.String("remote", conn.RemoteAddr().String()),
		slog.String("reason", bberrors.ErrConnectionLimit.Error()),
		slog.Int("max_connections", s.config.MaxConnections))
	if s.config.Metrics != nil {
		s.config.Metrics.ConnectionRejected(Transport, "max_connections")
	}
	conn.Close()
}

// handleConn runs a session on inbound and closes it when the session ends
// or ctx is cancelled.
func (s *Server) handleConn(ctx context.Context, inbound net.Conn) error {
	defer inbound.Close()
	stop := context.AfterFunc(ctx, func() { inbound.Close() })
	defer stop()

	s.active.Add(1)
	defer s.active.Add(-1)

	hctx := &handler.Context{
		SessionID:   uuid.New().String(),
		RemoteAddr:  inbound.RemoteAddr().String(),
		Transport:   Transport,
		ConnectedAt: time.Now(),
	}

	if tlsConn, ok := inbound.(*tls.Conn); ok {
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return bberrors.New("handshake", Transport, hctx.SessionID, hctx.RemoteAddr, err)
		}
	}

	s.config.Logger.Debug("connection established",
		slog.String("session", hctx.SessionID),
		slog.String("client", hctx.RemoteAddr))

	sess := session.New(inbound, s.dispatcher, s.handler, hctx, s.config.Session)
	run := func() error { return sess.Run(ctx) }

	var err error
	if s.config.Metrics != nil {
		err = s.config.Metrics.ObserveConnection(Transport, run)
	} else {
		err = run()
	}

	s.config.Logger.Debug("connection closed",
		slog.String("session", hctx.SessionID))

	return err
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	bberrors "github.com/absmach/bboard/pkg/errors"
	"github.com/absmach/bboard/pkg/handler"
	"github.com/absmach/bboard/pkg/parser"
)

// DefaultMaxLineLength bounds a command line when Config.MaxLineLength is zero.
const DefaultMaxLineLength = 4096

// Config holds per-session settings.
type Config struct {
	// MaxLineLength is the longest accepted command line in bytes.
	// Longer lines are discarded and answered with INVALID_FORMAT.
	MaxLineLength int

	// ReadTimeout ends a session that sends nothing for this long.
	// Zero disables it.
	ReadTimeout time.Duration

	// WriteTimeout bounds writing one response. Zero disables it.
	WriteTimeout time.Duration

	// Logger for session events
	Logger *slog.Logger
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Session runs the command loop of one connection.
type Session struct {
	conn       io.ReadWriter
	r          *bufio.Reader
	w          *bufio.Writer
	dispatcher *parser.Dispatcher
	handler    handler.Handler
	hctx       *handler.Context
	config     Config
}

// New creates a session over conn. conn may also implement
// SetReadDeadline and SetWriteDeadline, which are used for timeouts.
func New(conn io.ReadWriter, d *parser.Dispatcher, h handler.Handler, hctx *handler.Context, cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxLineLength <= 0 {
		cfg.MaxLineLength = DefaultMaxLineLength
	}
	if h == nil {
		h = &handler.NoopHandler{}
	}
	if hctx.ConnectedAt.IsZero() {
		hctx.ConnectedAt = time.Now()
	}

	return &Session{
		conn: conn,
		// Room for the CR LF terminator on top of the line itself.
		r:          bufio.NewReaderSize(conn, cfg.MaxLineLength+2),
		w:          bufio.NewWriter(conn),
		dispatcher: d,
		handler:    h,
		hctx:       hctx,
		config:     cfg,
	}
}

// Run admits the connection, sends the greeting and processes commands until
// DISCONNECT, end of stream, a transport error or ctx cancellation.
// A clean end returns nil. The caller owns closing the connection.
func (s *Session) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = bberrors.New("run", s.hctx.Transport, s.hctx.SessionID, s.hctx.RemoteAddr, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := s.handler.AuthConnect(ctx, s.hctx); err != nil {
		return bberrors.New("admit", s.hctx.Transport, s.hctx.SessionID, s.hctx.RemoteAddr, err)
	}
	defer func() {
		if err := s.handler.OnDisconnect(context.Background(), s.hctx); err != nil {
			s.logHookError("OnDisconnect", err)
		}
	}()

	greeting := parser.Greeting(s.dispatcher.Board().Geometry())
	if err := s.writeLines(greeting); err != nil {
		return s.transportError("greet", err)
	}
	if err := s.handler.OnConnect(ctx, s.hctx); err != nil {
		s.logHookError("OnConnect", err)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		if s.config.ReadTimeout > 0 {
			if d, ok := s.conn.(readDeadliner); ok {
				d.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
			}
		}

		line, err := s.readLine()
		start := time.Now()

		var (
			cmd  parser.Command
			resp parser.Response
		)
		switch {
		case err == nil:
			cmd, resp = s.dispatcher.Handle(line)
		case errors.Is(err, bberrors.ErrLineTooLong):
			resp = parser.ErrorResponse(parser.ErrInvalidFormat)
		case bberrors.IsClosed(err):
			return nil
		case bberrors.IsTimeout(err):
			s.config.Logger.Debug("session idle timeout",
				slog.String("session", s.hctx.SessionID),
				slog.Duration("timeout", s.config.ReadTimeout))
			return nil
		default:
			return s.transportError("read", err)
		}

		if err := s.writeResponse(resp); err != nil {
			return s.transportError("write", err)
		}

		info := handler.Command{Status: resp.Status(), Duration: time.Since(start)}
		if cmd != nil {
			info.Name = cmd.Name()
		}
		if err := s.handler.OnCommand(ctx, s.hctx, info); err != nil {
			s.logHookError("OnCommand", err)
		}

		if resp.Close {
			return nil
		}
	}
}

// readLine returns the next line including its terminator. A final line
// without a newline is returned before io.EOF.
func (s *Session) readLine() (string, error) {
	tooLong := false
	for {
		frag, err := s.r.ReadSlice('\n')
		switch {
		case err == nil:
			if tooLong {
				return "", bberrors.ErrLineTooLong
			}
			return string(frag), nil
		case errors.Is(err, bufio.ErrBufferFull):
			// Keep draining until the end of the oversized line.
			tooLong = true
		case errors.Is(err, io.EOF) && len(frag) > 0 && !tooLong:
			return string(frag), nil
		default:
			return "", err
		}
	}
}

func (s *Session) writeResponse(resp parser.Response) error {
	s.setWriteDeadline()
	if _, err := resp.WriteTo(s.w); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *Session) writeLines(lines ...string) error {
	s.setWriteDeadline()
	for _, line := range lines {
		if _, err := s.w.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return s.w.Flush()
}

func (s *Session) setWriteDeadline() {
	if s.config.WriteTimeout <= 0 {
		return
	}
	if d, ok := s.conn.(writeDeadliner); ok {
		d.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
}

func (s *Session) transportError(op string, err error) error {
	if bberrors.IsClosed(err) {
		return nil
	}
	return bberrors.New(op, s.hctx.Transport, s.hctx.SessionID, s.hctx.RemoteAddr, err)
}

func (s *Session) logHookError(hook string, err error) {
	s.config.Logger.Warn("session hook error",
		slog.String("hook", hook),
		slog.String("session", s.hctx.SessionID),
		slog.String("error", err.Error()))
}

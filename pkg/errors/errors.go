// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package errors provides structured transport error handling for bboard.
package errors

import (
	"errors"
	"fmt"
	"io"
	"net"
)

// Common error types
var (
	// ErrConnectionClosed indicates the connection was closed.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrLineTooLong indicates a command line longer than the configured limit.
	ErrLineTooLong = errors.New("line too long")

	// ErrConnectionLimit indicates the server is at its connection cap.
	ErrConnectionLimit = errors.New("connection limit reached")

	// ErrRateLimited indicates the client exceeded its connection rate.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// SessionError wraps a transport error with session context.
type SessionError struct {
	Op         string // Operation that failed (greet, read, write)
	Transport  string // Transport (tcp, ws)
	SessionID  string // Session identifier
	RemoteAddr string // Client address
	Err        error  // Underlying error
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s %s [%s] %s: %v", e.Transport, e.Op, e.SessionID, e.RemoteAddr, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Transport, e.Op, e.RemoteAddr, e.Err)
}

// Unwrap returns the underlying error.
func (e *SessionError) Unwrap() error {
	return e.Err
}

// New creates a new SessionError.
func New(op, transport, sessionID, remoteAddr string, err error) error {
	if err == nil {
		return nil
	}
	return &SessionError{
		Op:         op,
		Transport:  transport,
		SessionID:  sessionID,
		RemoteAddr: remoteAddr,
		Err:        err,
	}
}

// Wrap wraps an error with context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsClosed reports whether err only means the peer went away or the
// connection was closed locally. Such errors end a session quietly.
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, ErrConnectionClosed)
}

// IsTimeout reports whether err is a network timeout.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"time"
)

// Context contains session metadata. It is passed to Handler methods.
type Context struct {
	// SessionID is a unique identifier for this connection.
	SessionID string

	// RemoteAddr is the client's network address.
	RemoteAddr string

	// Transport is the transport carrying the session (tcp, ws).
	Transport string

	// ConnectedAt is when the connection was accepted.
	ConnectedAt time.Time
}

// Command describes one processed command line.
type Command struct {
	// Name is the command keyword, or empty when the line did not parse.
	Name string

	// Status is "OK" or the error code sent to the client.
	Status string

	// Duration is the time spent parsing and executing the command.
	Duration time.Duration
}

// Handler defines admission and notification callbacks for session events.
//
// AuthConnect is called before the greeting is sent. Returning an error
// closes the connection without a reply.
//
// The On* methods are notifications for audit logging or metrics. Errors
// from them are logged but never change what the client sees.
type Handler interface {
	// AuthConnect decides whether a new connection is admitted.
	AuthConnect(ctx context.Context, hctx *Context) error

	// OnConnect is called after the greeting was written.
	OnConnect(ctx context.Context, hctx *Context) error

	// OnCommand is called after each command response was written.
	OnCommand(ctx context.Context, hctx *Context, cmd Command) error

	// OnDisconnect is called when the session ends, for any reason.
	OnDisconnect(ctx context.Context, hctx *Context) error
}

// NoopHandler is a Handler implementation that admits everything.
type NoopHandler struct{}

var _ Handler = (*NoopHandler)(nil)

func (h *NoopHandler) AuthConnect(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) OnConnect(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) OnCommand(ctx context.Context, hctx *Context, cmd Command) error {
	return nil
}

func (h *NoopHandler) OnDisconnect(ctx context.Context, hctx *Context) error {
	return nil
}

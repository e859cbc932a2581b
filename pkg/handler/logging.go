// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"log/slog"
	"time"
)

var _ Handler = (*Logging)(nil)

// Logging is a Handler that logs session events.
type Logging struct {
	logger *slog.Logger
}

// NewLogging creates a logging handler.
func NewLogging(logger *slog.Logger) *Logging {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logging{
		logger: logger,
	}
}

// AuthConnect admits every connection.
func (h *Logging) AuthConnect(ctx context.Context, hctx *Context) error {
	return nil
}

// OnConnect logs a new session.
func (h *Logging) OnConnect(ctx context.Context, hctx *Context) error {
	h.logger.Info("client connected",
		slog.String("session", hctx.SessionID),
		slog.String("remote", hctx.RemoteAddr),
		slog.String("transport", hctx.Transport))
	return nil
}

// OnCommand logs each command at debug level.
func (h *Logging) OnCommand(ctx context.Context, hctx *Context, cmd Command) error {
	name := cmd.Name
	if name == "" {
		name = "unparsed"
	}
	h.logger.Debug("command",
		slog.String("session", hctx.SessionID),
		slog.String("command", name),
		slog.String("status", cmd.Status),
		slog.Duration("duration", cmd.Duration))
	return nil
}

// OnDisconnect logs the end of a session.
func (h *Logging) OnDisconnect(ctx context.Context, hctx *Context) error {
	h.logger.Info("client disconnected",
		slog.String("session", hctx.SessionID),
		slog.String("remote", hctx.RemoteAddr),
		slog.Duration("connected_for", time.Since(hctx.ConnectedAt)))
	return nil
}

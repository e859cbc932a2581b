// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"

	bberrors "github.com/absmach/bboard/pkg/errors"
	"github.com/absmach/bboard/pkg/handler"
	"github.com/absmach/bboard/pkg/metrics"
	"github.com/absmach/bboard/pkg/ratelimit"
)

var (
	_ handler.Handler = (*RateLimitedHandler)(nil)
	_ handler.Handler = (*InstrumentedHandler)(nil)
)

// RateLimitedHandler wraps a handler with connection rate limiting. Either
// limiter may be nil.
type RateLimitedHandler struct {
	handler          handler.Handler
	perClientLimiter *ratelimit.Limiter
	globalLimiter    *ratelimit.TokenBucket
	metrics          *metrics.Metrics
	logger           *slog.Logger
}

// AuthConnect implements handler.Handler with rate limiting.
func (h *RateLimitedHandler) AuthConnect(ctx context.Context, hctx *handler.Context) error {
	if h.globalLimiter != nil && !h.globalLimiter.Allow() {
		h.metrics.RateLimited(hctx.Transport, "global")
		h.logger.Warn("Global rate limit exceeded",
			slog.String("remote", hctx.RemoteAddr),
			slog.String("transport", hctx.Transport))
		return bberrors.ErrRateLimited
	}

	clientID := ratelimit.ClientKey(hctx.RemoteAddr)
	if h.perClientLimiter != nil && !h.perClientLimiter.Allow(clientID) {
		h.metrics.RateLimited(hctx.Transport, "per_client")
		h.logger.Warn("Per-client rate limit exceeded",
			slog.String("client", clientID),
			slog.String("transport", hctx.Transport))
		return bberrors.ErrRateLimited
	}

	return h.handler.AuthConnect(ctx, hctx)
}

// OnConnect implements handler.Handler.
func (h *RateLimitedHandler) OnConnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnConnect(ctx, hctx)
}

// OnCommand implements handler.Handler.
func (h *RateLimitedHandler) OnCommand(ctx context.Context, hctx *handler.Context, cmd handler.Command) error {
	return h.handler.OnCommand(ctx, hctx, cmd)
}

// OnDisconnect implements handler.Handler.
func (h *RateLimitedHandler) OnDisconnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnDisconnect(ctx, hctx)
}

// InstrumentedHandler wraps a handler with metrics instrumentation.
type InstrumentedHandler struct {
	handler handler.Handler
	metrics *metrics.Metrics
}

// AuthConnect implements handler.Handler with metrics.
func (h *InstrumentedHandler) AuthConnect(ctx context.Context, hctx *handler.Context) error {
	err := h.handler.AuthConnect(ctx, hctx)
	if err != nil {
		h.metrics.ConnectionRejected(hctx.Transport, "admission")
	}
	return err
}

// OnConnect implements handler.Handler.
func (h *InstrumentedHandler) OnConnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnConnect(ctx, hctx)
}

// OnCommand implements handler.Handler with metrics.
func (h *InstrumentedHandler) OnCommand(ctx context.Context, hctx *handler.Context, cmd handler.Command) error {
	h.metrics.ObserveCommand(cmd.Name, cmd.Status, cmd.Duration)
	return h.handler.OnCommand(ctx, hctx, cmd)
}

// OnDisconnect implements handler.Handler.
func (h *InstrumentedHandler) OnDisconnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnDisconnect(ctx, hctx)
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopHandler(t *testing.T) {
	handler := &NoopHandler{}
	ctx := context.Background()
	hctx := &Context{
		SessionID:   "test-session",
		RemoteAddr:  "127.0.0.1:1234",
		Transport:   "tcp",
		ConnectedAt: time.Now(),
	}

	tests := []struct {
		name string
		fn   func() error
	}{
		{
			name: "AuthConnect",
			fn:   func() error { return handler.AuthConnect(ctx, hctx) },
		},
		{
			name: "OnConnect",
			fn:   func() error { return handler.OnConnect(ctx, hctx) },
		},
		{
			name: "OnCommand",
			fn:   func() error { return handler.OnCommand(ctx, hctx, Command{Name: "POST", Status: "OK"}) },
		},
		{
			name: "OnDisconnect",
			fn:   func() error { return handler.OnDisconnect(ctx, hctx) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, tt.fn())
		})
	}
}

func TestLoggingHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := NewLogging(logger)

	ctx := context.Background()
	hctx := &Context{
		SessionID:   "abc",
		RemoteAddr:  "10.0.0.1:5000",
		Transport:   "ws",
		ConnectedAt: time.Now(),
	}

	assert.NoError(t, h.AuthConnect(ctx, hctx))
	assert.NoError(t, h.OnConnect(ctx, hctx))
	assert.NoError(t, h.OnCommand(ctx, hctx, Command{Status: "INVALID_FORMAT"}))
	assert.NoError(t, h.OnCommand(ctx, hctx, Command{Name: "PIN", Status: "OK"}))
	assert.NoError(t, h.OnDisconnect(ctx, hctx))

	out := buf.String()
	assert.Contains(t, out, `msg="client connected"`)
	assert.Contains(t, out, "session=abc")
	assert.Contains(t, out, "transport=ws")
	assert.Contains(t, out, "command=unparsed")
	assert.Contains(t, out, "status=INVALID_FORMAT")
	assert.Contains(t, out, "command=PIN")
	assert.Contains(t, out, `msg="client disconnected"`)
}

func TestNewLoggingDefault(t *testing.T) {
	h := NewLogging(nil)
	assert.NotNil(t, h.logger)
}

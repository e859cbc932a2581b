// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/absmach/bboard"
	"github.com/absmach/bboard/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

type served struct {
	tcp, ws, http string
}

func startServe(t *testing.T) served {
	t.Helper()

	s := served{tcp: freeAddr(t), ws: freeAddr(t), http: freeAddr(t)}
	cfg, err := bboard.Load(bboard.Source{
		Env: map[string]string{
			"BBOARD_ADDRESS":      s.tcp,
			"BBOARD_WS_ADDRESS":   s.ws,
			"BBOARD_HTTP_ADDRESS": s.http,
			"BBOARD_LOG_LEVEL":    "error",
		},
		Args: []string{portOf(t, s.tcp), "200", "100", "20", "10", "red", "white", "green", "yellow"},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, cfg, discardLogger())
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("serve did not return")
		}
	})

	for _, addr := range []string{s.tcp, s.ws, s.http} {
		require.Eventually(t, func() bool {
			c, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
			if err != nil {
				return false
			}
			c.Close()
			return true
		}, 2*time.Second, 20*time.Millisecond, addr)
	}

	return s
}

func portOf(t *testing.T, addr string) string {
	t.Helper()
	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	return port
}

func TestServeScenario(t *testing.T) {
	s := startServe(t)

	c, err := connect(context.Background(), s.tcp, client.Config{ReadTimeout: 2 * time.Second})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, client.Greeting{
		BoardWidth:  200,
		BoardHeight: 100,
		NoteWidth:   20,
		NoteHeight:  10,
		Colors:      []string{"red", "white", "green", "yellow"},
	}, c.Greeting())

	steps := []struct {
		desc string
		line string
		want []string
	}{
		{desc: "empty get", line: "GET", want: []string{"OK 0"}},
		{desc: "empty pins", line: "GET PINS", want: []string{"OK 0"}},
		{desc: "empty shake", line: "SHAKE", want: []string{"OK SHAKE_COMPLETE"}},
		{desc: "empty clear", line: "CLEAR", want: []string{"OK CLEAR_COMPLETE"}},
		{desc: "pin without note", line: "PIN 5 5", want: []string{"ERROR NO_NOTE_AT_COORDINATE"}},
		{desc: "post", line: "POST 10 10 red Meeting at 3pm", want: []string{"OK NOTE_POSTED"}},
		{desc: "post at origin", line: "POST 0 0 white origin", want: []string{"OK NOTE_POSTED"}},
		{desc: "post at max bound", line: "POST 180 90 green corner", want: []string{"OK NOTE_POSTED"}},
		{desc: "post out of bounds", line: "POST 181 90 green over", want: []string{"ERROR OUT_OF_BOUNDS"}},
		{desc: "post bad color", line: "POST 50 50 purple x", want: []string{"ERROR COLOR_NOT_SUPPORTED"}},
		{desc: "post complete overlap", line: "POST 10 10 white dup", want: []string{"ERROR COMPLETE_OVERLAP"}},
		{desc: "post partial overlap", line: "POST 15 15 yellow partial", want: []string{"OK NOTE_POSTED"}},
		{desc: "post malformed", line: "POST 10 10", want: []string{"ERROR INVALID_FORMAT"}},
		{desc: "get by color", line: "GET color=red", want: []string{"OK 1", "NOTE 10 10 red Meeting at 3pm PINNED=false"}},
		{desc: "get contains", line: "GET contains=20 18", want: []string{
			"OK 2",
			"NOTE 10 10 red Meeting at 3pm PINNED=false",
			"NOTE 15 15 yellow partial PINNED=false",
		}},
		{desc: "get refers to", line: "GET refersTo=Meeting", want: []string{"OK 1", "NOTE 10 10 red Meeting at 3pm PINNED=false"}},
		{desc: "get combined", line: "GET color=yellow contains=20 18 refersTo=part", want: []string{"OK 1", "NOTE 15 15 yellow partial PINNED=false"}},
		{desc: "get no match", line: "GET color=green contains=20 18", want: []string{"OK 0"}},
		{desc: "get contains out of bounds", line: "GET contains=500 5", want: []string{"ERROR OUT_OF_BOUNDS"}},
		{desc: "pin overlapping notes", line: "PIN 20 18", want: []string{"OK PIN_ADDED"}},
		{desc: "pins", line: "GET PINS", want: []string{"OK 1", "PIN 20 18"}},
		{desc: "shake", line: "SHAKE", want: []string{"OK SHAKE_COMPLETE"}},
		{desc: "pinned survive shake", line: "GET", want: []string{
			"OK 2",
			"NOTE 10 10 red Meeting at 3pm PINNED=true",
			"NOTE 15 15 yellow partial PINNED=true",
		}},
		{desc: "unpin", line: "UNPIN 20 18", want: []string{"OK PIN_REMOVED"}},
		{desc: "unpin missing", line: "UNPIN 20 18", want: []string{"ERROR PIN_NOT_FOUND"}},
		{desc: "surrounding whitespace", line: "   GET color=red   ", want: []string{"OK 1", "NOTE 10 10 red Meeting at 3pm PINNED=false"}},
		{desc: "unknown command", line: "FOO", want: []string{"ERROR INVALID_FORMAT"}},
		{desc: "shake with arguments", line: "SHAKE now", want: []string{"ERROR INVALID_FORMAT"}},
		{desc: "clear with arguments", line: "CLEAR all", want: []string{"ERROR INVALID_FORMAT"}},
	}

	for _, step := range steps {
		lines, err := c.Do(step.line)
		var serr *client.ServerError
		if err != nil && !errors.As(err, &serr) {
			require.NoError(t, err, step.desc)
		}
		assert.Equal(t, step.want, lines, step.desc)
	}

	// Another client over WebSocket sees the same board.
	wc, err := connect(context.Background(), "ws://"+s.ws+"/ws", client.Config{ReadTimeout: 2 * time.Second})
	require.NoError(t, err)
	notes, err := wc.Get(client.Filter{Color: "yellow"})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "partial", notes[0].Message)
	require.NoError(t, wc.Disconnect())

	require.NoError(t, c.Clear())
	require.NoError(t, c.Disconnect())
}

func TestServeAdminEndpoints(t *testing.T) {
	s := startServe(t)

	c, err := connect(context.Background(), s.tcp, client.Config{ReadTimeout: 2 * time.Second})
	require.NoError(t, err)
	require.NoError(t, c.Post(0, 0, "red", "counted"))
	require.NoError(t, c.Disconnect())

	get := func(path string) (int, string) {
		resp, err := http.Get("http://" + s.http + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, body := get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `bboard_commands_total{command="POST",status="OK"} 1`)
	assert.True(t, strings.Contains(body, "bboard_board_notes 1"), "board collector is registered")

	code, _ = get("/health")
	assert.Equal(t, http.StatusOK, code)
	code, _ = get("/live")
	assert.Equal(t, http.StatusOK, code)
	code, _ = get("/ready")
	assert.Equal(t, http.StatusOK, code)
}

func TestServeInvalidBoard(t *testing.T) {
	cfg := bboard.Config{Address: "127.0.0.1:0", BoardWidth: 10, BoardHeight: 10, NoteWidth: 20, NoteHeight: 1, Colors: []string{"red"}}
	assert.Error(t, serve(context.Background(), cfg, discardLogger()))
}

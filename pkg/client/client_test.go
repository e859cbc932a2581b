// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bufio"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/absmach/bboard/pkg/board"
	"github.com/absmach/bboard/pkg/handler"
	"github.com/absmach/bboard/pkg/parser"
	"github.com/absmach/bboard/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connect runs a real session on one end of a pipe and returns a client on
// the other.
func connect(t *testing.T) *Client {
	t.Helper()

	b, err := board.New(board.Config{
		BoardWidth:  200,
		BoardHeight: 100,
		NoteWidth:   20,
		NoteHeight:  10,
		Colors:      []string{"red", "white", "green"},
	})
	require.NoError(t, err)

	server, conn := net.Pipe()
	go func() {
		defer server.Close()
		s := session.New(server, parser.NewDispatcher(b), nil, &handler.Context{SessionID: "test"}, session.Config{})
		s.Run(context.Background())
	}()

	c, err := New(conn, Config{ReadTimeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientGreeting(t *testing.T) {
	c := connect(t)

	assert.Equal(t, Greeting{
		BoardWidth:  200,
		BoardHeight: 100,
		NoteWidth:   20,
		NoteHeight:  10,
		Colors:      []string{"red", "white", "green"},
	}, c.Greeting())
}

func TestClientCommands(t *testing.T) {
	c := connect(t)

	require.NoError(t, c.Post(10, 10, "red", "meeting at 5"))
	require.NoError(t, c.Post(50, 50, "white", "lunch"))
	require.NoError(t, c.Pin(15, 15))

	notes, err := c.Get(Filter{})
	require.NoError(t, err)
	assert.Equal(t, []Note{
		{X: 10, Y: 10, Color: "red", Message: "meeting at 5", Pinned: true},
		{X: 50, Y: 50, Color: "white", Message: "lunch", Pinned: false},
	}, notes)

	ref := "at 5"
	notes, err = c.Get(Filter{Color: "red", Contains: &Point{X: 12, Y: 12}, RefersTo: &ref})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "meeting at 5", notes[0].Message)

	pins, err := c.Pins()
	require.NoError(t, err)
	assert.Equal(t, []Point{{X: 15, Y: 15}}, pins)

	require.NoError(t, c.Shake())
	notes, err = c.Get(Filter{})
	require.NoError(t, err)
	assert.Len(t, notes, 1)

	require.NoError(t, c.Unpin(15, 15))
	require.NoError(t, c.Clear())
	pins, err = c.Pins()
	require.NoError(t, err)
	assert.Empty(t, pins)

	require.NoError(t, c.Disconnect())
	assert.True(t, c.Closed())

	_, err = c.Do("GET")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClientServerError(t *testing.T) {
	c := connect(t)

	err := c.Post(190, 0, "red", "too wide")
	var serr *ServerError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "OUT_OF_BOUNDS", serr.Code)

	err = c.Unpin(1, 1)
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "PIN_NOT_FOUND", serr.Code)

	lines, err := c.Do("BOGUS")
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "INVALID_FORMAT", serr.Code)
	assert.Equal(t, []string{"ERROR INVALID_FORMAT"}, lines)

	// Server errors leave the connection usable.
	assert.False(t, c.Closed())
	require.NoError(t, c.Post(0, 0, "green", "still here"))
}

func TestClientInvalidLine(t *testing.T) {
	c := connect(t)

	_, err := c.Do("GET\nCLEAR")
	assert.ErrorIs(t, err, ErrInvalidLine)
	assert.False(t, c.Closed())
}

func TestClientBadGreeting(t *testing.T) {
	server, conn := net.Pipe()
	defer server.Close()

	go func() {
		w := bufio.NewWriter(server)
		w.WriteString("hello there\n")
		w.Flush()
	}()

	_, err := New(conn, Config{})
	assert.ErrorIs(t, err, ErrBadGreeting)
}

func TestClientConnectionLost(t *testing.T) {
	server, conn := net.Pipe()

	go func() {
		w := bufio.NewWriter(server)
		w.WriteString("10 10 5 5 red\n")
		w.Flush()
		r := bufio.NewReader(server)
		r.ReadString('\n')
		server.Close()
	}()

	c, err := New(conn, Config{ReadTimeout: time.Second})
	require.NoError(t, err)

	_, err = c.Do("GET")
	require.Error(t, err)
	assert.True(t, c.Closed(), "a transport failure closes the client")
}

func TestParseNote(t *testing.T) {
	cases := []struct {
		desc string
		line string
		want Note
		err  bool
	}{
		{desc: "single word", line: "NOTE 1 2 red hi PINNED=false", want: Note{X: 1, Y: 2, Color: "red", Message: "hi"}},
		{desc: "spaces in message", line: "NOTE 0 0 white a b c PINNED=true", want: Note{Color: "white", Message: "a b c", Pinned: true}},
		{desc: "missing pinned", line: "NOTE 0 0 red hi there", err: true},
		{desc: "wrong prefix", line: "PIN 0 0 red hi PINNED=true", err: true},
		{desc: "bad coordinate", line: "NOTE a 0 red hi PINNED=true", err: true},
		{desc: "too short", line: "NOTE 0 0 red PINNED=true", err: true},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := ParseNote(tc.line)
			if tc.err {
				assert.ErrorIs(t, err, ErrBadResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFilterCommand(t *testing.T) {
	ref := "hello world"
	empty := ""
	cases := map[string]Filter{
		"GET":                                               {},
		"GET color=red":                                     {Color: "red"},
		"GET contains=3 4":                                  {Contains: &Point{X: 3, Y: 4}},
		"GET color=red contains=3 4 refersTo=hello world":   {Color: "red", Contains: &Point{X: 3, Y: 4}, RefersTo: &ref},
		"GET refersTo=":                                     {RefersTo: &empty},
	}
	for want, f := range cases {
		assert.Equal(t, want, f.command())
	}
}

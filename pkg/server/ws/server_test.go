// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ws

import (
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/absmach/bboard/pkg/board"
	"github.com/absmach/bboard/pkg/client"
	"github.com/absmach/bboard/pkg/parser"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBoard(t *testing.T) *board.Board {
	t.Helper()
	b, err := board.New(board.Config{
		BoardWidth:  100,
		BoardHeight: 100,
		NoteWidth:   10,
		NoteHeight:  10,
		Colors:      []string{"red", "white"},
	})
	require.NoError(t, err)
	return b
}

func startHTTP(t *testing.T, b *board.Board) (*Server, string) {
	t.Helper()
	srv := New(Config{}, parser.NewDispatcher(b), nil)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, typ)
	return string(msg)
}

func TestServerMessages(t *testing.T) {
	_, url := startHTTP(t, newBoard(t))

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "100 100 10 10 red white", readText(t, conn))

	send := func(line string) {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(line)))
	}

	send("POST 0 0 red first note")
	assert.Equal(t, "OK NOTE_POSTED", readText(t, conn))

	send("POST 50 50 white second\n")
	assert.Equal(t, "OK NOTE_POSTED", readText(t, conn))

	send("GET")
	assert.Equal(t, "OK 2", readText(t, conn))
	assert.Equal(t, "NOTE 0 0 red first note PINNED=false", readText(t, conn))
	assert.Equal(t, "NOTE 50 50 white second PINNED=false", readText(t, conn))

	send("")
	assert.Equal(t, "ERROR INVALID_FORMAT", readText(t, conn))

	send("DISCONNECT")
	assert.Equal(t, "OK DISCONNECTING", readText(t, conn))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestClientOverWebSocket(t *testing.T) {
	b := newBoard(t)
	_, url := startHTTP(t, b)

	conn, err := Dial(context.Background(), url, nil)
	require.NoError(t, err)

	c, err := client.New(conn, client.Config{ReadTimeout: 2 * time.Second})
	require.NoError(t, err)

	require.NoError(t, c.Post(20, 20, "red", "over websocket"))
	require.NoError(t, c.Pin(25, 25))

	// The board is shared with every other transport.
	notes, err := b.Query(board.Query{})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.True(t, notes[0].Pinned())

	got, err := c.Get(client.Filter{Color: "red"})
	require.NoError(t, err)
	assert.Equal(t, []client.Note{{X: 20, Y: 20, Color: "red", Message: "over websocket", Pinned: true}}, got)

	require.NoError(t, c.Disconnect())
}

func TestServeShutdown(t *testing.T) {
	srv := New(Config{ShutdownTimeout: 100 * time.Millisecond}, parser.NewDispatcher(newBoard(t)), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := "ws://" + ln.Addr().String() + DefaultPath
	var conn *Conn
	require.Eventually(t, func() bool {
		var err error
		conn, err = Dial(context.Background(), url, nil)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)

	c, err := client.New(conn, client.Config{ReadTimeout: 2 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Active())

	// The idle session is closed once the drain timeout passes.
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrShutdownTimeout)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	_, err = c.Do("GET")
	assert.Error(t, err)
}

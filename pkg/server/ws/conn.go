// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

// Conn is a websocket wrapper that satisfies the net.Conn interface and maps
// text messages to lines: every received message reads as one line ending in
// '\n', and every written line is sent as one text message without it.
type Conn struct {
	*websocket.Conn
	r       io.Reader
	last    byte
	pending []byte
	wbuf    []byte
	rio     sync.Mutex
	wio     sync.Mutex
	once    sync.Once
}

var _ net.Conn = (*Conn)(nil)

// NewConn wraps a websocket.Conn to implement net.Conn interface.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{
		Conn: ws,
	}
}

// Dial opens a WebSocket connection to url, for example ws://host:4555/ws.
func Dial(ctx context.Context, url string, header http.Header) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return NewConn(ws), nil
}

// SetDeadline sets both the read and write deadlines.
func (c *Conn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

// Read returns the bytes of consecutive messages, terminating each with a
// newline when the message itself does not end in one. A close frame from the
// peer reads as io.EOF.
func (c *Conn) Read(p []byte) (int, error) {
	c.rio.Lock()
	defer c.rio.Unlock()

	if len(p) == 0 {
		return 0, nil
	}

	for {
		if len(c.pending) > 0 {
			n := copy(p, c.pending)
			c.pending = c.pending[n:]
			return n, nil
		}

		if c.r == nil {
			// Advance to next message
			_, r, err := c.NextReader()
			if err != nil {
				var cerr *websocket.CloseError
				if errors.As(err, &cerr) {
					return 0, io.EOF
				}
				return 0, err
			}
			c.r = r
			c.last = 0
		}

		n, err := c.r.Read(p)
		if n > 0 {
			c.last = p[n-1]
		}
		if err == io.EOF {
			// At end of message
			c.r = nil
			if c.last != '\n' {
				c.pending = []byte{'\n'}
			}
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write sends every complete line in p as a text message. A trailing partial
// line is kept until its newline arrives.
func (c *Conn) Write(p []byte) (int, error) {
	c.wio.Lock()
	defer c.wio.Unlock()

	c.wbuf = append(c.wbuf, p...)
	for {
		i := bytes.IndexByte(c.wbuf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSuffix(c.wbuf[:i], []byte{'\r'})
		if err := c.WriteMessage(websocket.TextMessage, line); err != nil {
			c.wbuf = c.wbuf[:0]
			return 0, err
		}
		c.wbuf = c.wbuf[i+1:]
	}
	if len(c.wbuf) == 0 {
		c.wbuf = nil
	}
	return len(p), nil
}

// Close sends a normal close frame and closes the underlying connection.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		// WriteControl may run concurrently with WriteMessage.
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		err = c.Conn.Close()
	})
	return err
}

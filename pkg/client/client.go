// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultConnectTimeout = 3 * time.Second
	defaultReadTimeout    = 10 * time.Second
)

var (
	// ErrBadGreeting is returned when the first server line is not a valid greeting.
	ErrBadGreeting = errors.New("malformed greeting")

	// ErrBadResponse is returned when a server reply does not follow the protocol.
	ErrBadResponse = errors.New("malformed response")

	// ErrInvalidLine is returned for command lines containing a line break.
	ErrInvalidLine = errors.New("command line must not contain line breaks")

	// ErrClosed is returned by calls on a closed client.
	ErrClosed = errors.New("client closed")
)

// ServerError is an ERROR reply.
type ServerError struct {
	Code string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Code
}

// Config holds client settings.
type Config struct {
	// ConnectTimeout bounds dialing and reading the greeting.
	ConnectTimeout time.Duration

	// ReadTimeout bounds waiting for each reply. Negative disables it.
	ReadTimeout time.Duration

	// TLSConfig enables TLS when set.
	TLSConfig *tls.Config
}

// Greeting is the board description a server sends on connect.
type Greeting struct {
	BoardWidth  int
	BoardHeight int
	NoteWidth   int
	NoteHeight  int
	Colors      []string
}

// Point is a board coordinate.
type Point struct {
	X, Y int
}

// Note is one NOTE line of a GET reply.
type Note struct {
	X       int
	Y       int
	Color   string
	Message string
	Pinned  bool
}

// Filter narrows a GET. Zero fields are not sent.
type Filter struct {
	Color    string
	Contains *Point
	RefersTo *string
}

// Client is a connection to a bulletin board server. It is safe for
// concurrent use; commands are serialized.
type Client struct {
	mu       sync.Mutex
	conn     net.Conn
	r        *bufio.Reader
	w        *bufio.Writer
	config   Config
	greeting Greeting
	closed   bool
}

// Dial connects to addr and reads the greeting.
func Dial(ctx context.Context, addr string, cfg Config) (*Client, error) {
	cfg = withDefaults(cfg)

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}

	var (
		conn net.Conn
		err  error
	)
	if cfg.TLSConfig != nil {
		td := &tls.Dialer{NetDialer: dialer, Config: cfg.TLSConfig}
		conn, err = td.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	c, err := New(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// New wraps an established connection and reads the greeting from it.
func New(conn net.Conn, cfg Config) (*Client, error) {
	cfg = withDefaults(cfg)

	c := &Client{
		conn:   conn,
		r:      bufio.NewReader(conn),
		w:      bufio.NewWriter(conn),
		config: cfg,
	}

	if err := conn.SetReadDeadline(time.Now().Add(cfg.ConnectTimeout)); err != nil {
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}
	line, err := c.readLine()
	if err != nil {
		return nil, fmt.Errorf("read greeting: %w", err)
	}
	g, err := ParseGreeting(line)
	if err != nil {
		return nil, err
	}
	c.greeting = g

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("failed to clear read deadline: %w", err)
	}

	return c, nil
}

func withDefaults(cfg Config) Config {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	return cfg
}

// Greeting returns the board description received on connect.
func (c *Client) Greeting() Greeting {
	g := c.greeting
	g.Colors = append([]string(nil), c.greeting.Colors...)
	return g
}

// Closed reports whether the client was closed, locally or by a failed exchange.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Do sends one raw command line and returns the reply lines, status line
// first. An ERROR reply is returned as *ServerError together with the lines.
// A transport failure closes the client.
func (c *Client) Do(line string) ([]string, error) {
	if strings.ContainsAny(line, "\r\n") {
		return nil, ErrInvalidLine
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	lines, err := c.exchange(line)
	if err != nil {
		var serr *ServerError
		if !errors.As(err, &serr) {
			c.closeLocked()
		}
	}
	return lines, err
}

func (c *Client) exchange(line string) ([]string, error) {
	if c.config.ReadTimeout > 0 {
		deadline := time.Now().Add(c.config.ReadTimeout)
		if err := c.conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("failed to set deadline: %w", err)
		}
	}

	if _, err := c.w.WriteString(line + "\n"); err != nil {
		return nil, err
	}
	if err := c.w.Flush(); err != nil {
		return nil, err
	}

	status, err := c.readLine()
	if err != nil {
		return nil, err
	}

	kind, rest, _ := strings.Cut(status, " ")
	switch kind {
	case "ERROR":
		return []string{status}, &ServerError{Code: rest}
	case "OK":
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadResponse, status)
	}

	n, err := strconv.Atoi(rest)
	if err != nil {
		// A tagged reply such as OK NOTE_POSTED.
		return []string{status}, nil
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: %q", ErrBadResponse, status)
	}

	lines := make([]string, 0, n+1)
	lines = append(lines, status)
	for i := 0; i < n; i++ {
		data, err := c.readLine()
		if err != nil {
			return nil, err
		}
		lines = append(lines, data)
	}
	return lines, nil
}

func (c *Client) readLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// expect runs line and checks the reply is OK <tag>.
func (c *Client) expect(line, tag string) error {
	lines, err := c.Do(line)
	if err != nil {
		return err
	}
	if lines[0] != "OK "+tag {
		return fmt.Errorf("%w: %q", ErrBadResponse, lines[0])
	}
	return nil
}

// Post places a note.
func (c *Client) Post(x, y int, color, message string) error {
	return c.expect(fmt.Sprintf("POST %d %d %s %s", x, y, color, message), "NOTE_POSTED")
}

// Pin adds a pin at (x, y).
func (c *Client) Pin(x, y int) error {
	return c.expect(fmt.Sprintf("PIN %d %d", x, y), "PIN_ADDED")
}

// Unpin removes the pin at (x, y).
func (c *Client) Unpin(x, y int) error {
	return c.expect(fmt.Sprintf("UNPIN %d %d", x, y), "PIN_REMOVED")
}

// Shake removes all unpinned notes.
func (c *Client) Shake() error {
	return c.expect("SHAKE", "SHAKE_COMPLETE")
}

// Clear removes all notes and pins.
func (c *Client) Clear() error {
	return c.expect("CLEAR", "CLEAR_COMPLETE")
}

// Get returns the notes matching f.
func (c *Client) Get(f Filter) ([]Note, error) {
	lines, err := c.Do(f.command())
	if err != nil {
		return nil, err
	}

	notes := make([]Note, 0, len(lines)-1)
	for _, line := range lines[1:] {
		n, err := ParseNote(line)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, nil
}

// Pins returns the pin coordinates on the board.
func (c *Client) Pins() ([]Point, error) {
	lines, err := c.Do("GET PINS")
	if err != nil {
		return nil, err
	}

	pins := make([]Point, 0, len(lines)-1)
	for _, line := range lines[1:] {
		p, err := ParsePin(line)
		if err != nil {
			return nil, err
		}
		pins = append(pins, p)
	}
	return pins, nil
}

// Disconnect ends the session politely and closes the connection.
func (c *Client) Disconnect() error {
	err := c.expect("DISCONNECT", "DISCONNECTING")
	if cerr := c.Close(); err == nil && !errors.Is(cerr, ErrClosed) {
		err = cerr
	}
	return err
}

// Close closes the connection without a DISCONNECT.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	c.closed = true
	return c.conn.Close()
}

func (f Filter) command() string {
	var sb strings.Builder
	sb.WriteString("GET")
	if f.Color != "" {
		sb.WriteString(" color=")
		sb.WriteString(f.Color)
	}
	if f.Contains != nil {
		fmt.Fprintf(&sb, " contains=%d %d", f.Contains.X, f.Contains.Y)
	}
	// refersTo= consumes the rest of the line, so it goes last.
	if f.RefersTo != nil {
		sb.WriteString(" refersTo=")
		sb.WriteString(*f.RefersTo)
	}
	return sb.String()
}

// ParseGreeting parses "boardW boardH noteW noteH color...".
func ParseGreeting(line string) (Greeting, error) {
	parts := strings.Fields(line)
	if len(parts) < 5 {
		return Greeting{}, fmt.Errorf("%w: %q", ErrBadGreeting, line)
	}

	var dims [4]int
	for i := range dims {
		v, err := strconv.Atoi(parts[i])
		if err != nil || v <= 0 {
			return Greeting{}, fmt.Errorf("%w: %q", ErrBadGreeting, line)
		}
		dims[i] = v
	}

	return Greeting{
		BoardWidth:  dims[0],
		BoardHeight: dims[1],
		NoteWidth:   dims[2],
		NoteHeight:  dims[3],
		Colors:      parts[4:],
	}, nil
}

// ParseNote parses "NOTE x y color message PINNED=true|false".
func ParseNote(line string) (Note, error) {
	parts := strings.Fields(line)
	if len(parts) < 6 || parts[0] != "NOTE" {
		return Note{}, fmt.Errorf("%w: %q", ErrBadResponse, line)
	}

	x, errX := strconv.Atoi(parts[1])
	y, errY := strconv.Atoi(parts[2])
	pinned, errP := strconv.ParseBool(strings.TrimPrefix(parts[len(parts)-1], "PINNED="))
	if errX != nil || errY != nil || errP != nil || !strings.HasPrefix(parts[len(parts)-1], "PINNED=") {
		return Note{}, fmt.Errorf("%w: %q", ErrBadResponse, line)
	}

	return Note{
		X:       x,
		Y:       y,
		Color:   parts[3],
		Message: strings.Join(parts[4:len(parts)-1], " "),
		Pinned:  pinned,
	}, nil
}

// ParsePin parses "PIN x y".
func ParsePin(line string) (Point, error) {
	parts := strings.Fields(line)
	if len(parts) != 3 || parts[0] != "PIN" {
		return Point{}, fmt.Errorf("%w: %q", ErrBadResponse, line)
	}
	x, errX := strconv.Atoi(parts[1])
	y, errY := strconv.Atoi(parts[2])
	if errX != nil || errY != nil {
		return Point{}, fmt.Errorf("%w: %q", ErrBadResponse, line)
	}
	return Point{X: x, Y: y}, nil
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package pool provides pooling of board client connections.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/absmach/bboard/pkg/breaker"
	"github.com/absmach/bboard/pkg/client"
)

var (
	// ErrPoolClosed is returned when the pool is closed.
	ErrPoolClosed = errors.New("connection pool is closed")
	// ErrPoolExhausted is returned when no connections are available.
	ErrPoolExhausted = errors.New("connection pool exhausted")
)

// Config holds connection pool configuration.
type Config struct {
	// MaxIdle is the maximum number of idle connections in the pool.
	MaxIdle int
	// MaxActive is the maximum number of connections handed out at once.
	// If 0, there is no limit.
	MaxActive int
	// IdleTimeout is the maximum time a connection can be idle before being closed.
	IdleTimeout time.Duration
	// MaxConnLifetime is the maximum time a connection can be alive.
	MaxConnLifetime time.Duration
	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration
	// WaitTimeout is the maximum time to wait for a connection when pool is exhausted.
	// If 0, returns error immediately.
	WaitTimeout time.Duration
	// Breaker guards dialing. Optional.
	Breaker *breaker.CircuitBreaker
}

// Conn is a pooled client.
type Conn struct {
	*client.Client
	createdAt time.Time
	lastUsed  time.Time
	pool      *Pool
	released  bool
}

// Release returns the connection to the pool. Closed clients are dropped.
func (c *Conn) Release() error {
	return c.pool.put(c)
}

// DialFunc creates a new client.
type DialFunc func(ctx context.Context) (*client.Client, error)

// Stats is a snapshot of pool usage.
type Stats struct {
	Idle         int
	Active       int
	Dials        int64
	DialFailures int64
}

// Pool is a client connection pool.
type Pool struct {
	mu       sync.Mutex
	idle     []*Conn
	active   int
	dials    int64
	failures int64
	dialFunc DialFunc
	config   Config
	closed   bool
	waitChan chan struct{}
	done     chan struct{}
}

// New creates a new connection pool.
func New(dialFunc DialFunc, config Config) *Pool {
	if config.MaxIdle <= 0 {
		config.MaxIdle = 10
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = 5 * time.Minute
	}
	if config.MaxConnLifetime == 0 {
		config.MaxConnLifetime = 30 * time.Minute
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 10 * time.Second
	}

	p := &Pool{
		dialFunc: dialFunc,
		config:   config,
		waitChan: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	go p.cleanIdleConnections()

	return p
}

// Get retrieves a connection from the pool or dials a new one.
func (p *Pool) Get(ctx context.Context) (*Conn, error) {
	var deadline <-chan time.Time
	if p.config.WaitTimeout > 0 {
		timer := time.NewTimer(p.config.WaitTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		conn, dial, err := p.take()
		if err != nil {
			return nil, err
		}
		if conn != nil {
			return conn, nil
		}
		if dial {
			return p.dial(ctx)
		}

		if deadline == nil {
			return nil, ErrPoolExhausted
		}
		select {
		case <-p.waitChan:
		case <-deadline:
			return nil, ErrPoolExhausted
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// take pops a valid idle connection, or reserves a slot for dialing.
func (p *Pool) take() (conn *Conn, dial bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, false, ErrPoolClosed
	}

	for len(p.idle) > 0 {
		conn := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]

		if p.isValid(conn) {
			p.active++
			conn.released = false
			return conn, false, nil
		}

		conn.Client.Close()
	}

	if p.config.MaxActive > 0 && p.active >= p.config.MaxActive {
		return nil, false, nil
	}

	p.active++
	return nil, true, nil
}

func (p *Pool) dial(ctx context.Context) (*Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, p.config.DialTimeout)
	defer cancel()

	var c *client.Client
	dialFn := func() error {
		var err error
		c, err = p.dialFunc(dialCtx)
		return err
	}

	var err error
	if p.config.Breaker != nil {
		err = p.config.Breaker.Call(dialFn)
	} else {
		err = dialFn()
	}

	p.mu.Lock()
	p.dials++
	if err != nil {
		p.failures++
		p.active--
		p.mu.Unlock()
		p.notify()
		return nil, fmt.Errorf("failed to dial: %w", err)
	}
	p.mu.Unlock()

	now := time.Now()
	return &Conn{
		Client:    c,
		createdAt: now,
		lastUsed:  now,
		pool:      p,
	}, nil
}

// put returns a connection to the pool.
func (p *Pool) put(conn *Conn) error {
	p.mu.Lock()

	if conn.released {
		p.mu.Unlock()
		return nil
	}
	conn.released = true
	conn.lastUsed = time.Now()
	p.active--

	discard := p.closed || !p.isValid(conn) || len(p.idle) >= p.config.MaxIdle
	if !discard {
		p.idle = append(p.idle, conn)
	}
	p.mu.Unlock()

	p.notify()
	if discard {
		return closeClient(conn.Client)
	}
	return nil
}

// notify wakes one waiter in Get.
func (p *Pool) notify() {
	select {
	case p.waitChan <- struct{}{}:
	default:
	}
}

// isValid checks if a connection is still usable.
func (p *Pool) isValid(conn *Conn) bool {
	if conn.Closed() {
		return false
	}
	if p.config.MaxConnLifetime > 0 && time.Since(conn.createdAt) > p.config.MaxConnLifetime {
		return false
	}
	return true
}

// Do runs fn with a pooled client and releases it afterwards.
func (p *Pool) Do(ctx context.Context, fn func(c *client.Client) error) error {
	conn, err := p.Get(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return fn(conn.Client)
}

// cleanIdleConnections periodically closes idle connections that have exceeded IdleTimeout.
func (p *Pool) cleanIdleConnections() {
	ticker := time.NewTicker(p.config.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		var kept []*Conn
		now := time.Now()
		for _, conn := range p.idle {
			if now.Sub(conn.lastUsed) > p.config.IdleTimeout || !p.isValid(conn) {
				closeClient(conn.Client)
			} else {
				kept = append(kept, conn)
			}
		}
		p.idle = kept
		p.mu.Unlock()
	}
}

// Close closes the pool and disconnects idle clients. Connections in use are
// closed when they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	close(p.done)

	var errs []error
	for _, conn := range p.idle {
		if err := closeClient(conn.Client); err != nil {
			errs = append(errs, err)
		}
	}
	p.idle = nil

	return errors.Join(errs...)
}

// Stats returns pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Idle:         len(p.idle),
		Active:       p.active,
		Dials:        p.dials,
		DialFailures: p.failures,
	}
}

func closeClient(c *client.Client) error {
	if c.Closed() {
		return nil
	}
	err := c.Disconnect()
	if errors.Is(err, client.ErrClosed) {
		return nil
	}
	return err
}

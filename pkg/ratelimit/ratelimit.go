// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit provides connection admission limits using the token bucket algorithm.
package ratelimit

import (
	"net"
	"sync"
	"time"
)

// TokenBucket implements the token bucket algorithm for rate limiting.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   int64
	tokens     int64
	refillRate int64 // tokens per second
	lastRefill time.Time
	lastUsed   time.Time
	now        func() time.Time
}

// NewTokenBucket creates a new token bucket rate limiter.
// capacity is the maximum number of tokens.
// refillRate is the number of tokens added per second.
func NewTokenBucket(capacity, refillRate int64) *TokenBucket {
	return newTokenBucket(capacity, refillRate, time.Now)
}

func newTokenBucket(capacity, refillRate int64, now func() time.Time) *TokenBucket {
	t := now()
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: t,
		lastUsed:   t,
		now:        now,
	}
}

// Allow checks if a request should be allowed.
// Returns true if allowed, false if rate limited.
func (tb *TokenBucket) Allow() bool {
	return tb.AllowN(1)
}

// AllowN checks if N requests should be allowed.
func (tb *TokenBucket) AllowN(n int64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	tb.lastUsed = tb.lastRefill

	if tb.tokens >= n {
		tb.tokens -= n
		return true
	}

	return false
}

// refill adds tokens based on elapsed time.
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	tokensToAdd := int64(elapsed * float64(tb.refillRate))
	if tokensToAdd > 0 {
		tb.tokens += tokensToAdd
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastRefill = now
	}
}

// Available returns the number of available tokens.
func (tb *TokenBucket) Available() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	return tb.tokens
}

func (tb *TokenBucket) idleSince() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastUsed
}

// Config holds limiter configuration.
type Config struct {
	// Capacity is the burst size per client.
	Capacity int64
	// RefillRate is the number of tokens a client regains per second.
	RefillRate int64
	// MaxClients bounds the number of tracked clients. New clients beyond it
	// are refused until idle entries are evicted.
	MaxClients int
	// IdleTTL is how long an unused client entry is kept.
	IdleTTL time.Duration
}

// Limiter manages per-client rate limiters.
type Limiter struct {
	mu           sync.RWMutex
	limiters     map[string]*TokenBucket
	config       Config
	now          func() time.Time
	cleanupTimer *time.Timer
	closed       bool
}

// NewLimiter creates a new rate limiter with per-client tracking.
func NewLimiter(cfg Config) *Limiter {
	if cfg.MaxClients == 0 {
		cfg.MaxClients = 10000
	}
	if cfg.IdleTTL == 0 {
		cfg.IdleTTL = 5 * time.Minute
	}

	l := &Limiter{
		limiters: make(map[string]*TokenBucket),
		config:   cfg,
		now:      time.Now,
	}

	// Periodic cleanup of inactive limiters
	l.cleanupTimer = time.AfterFunc(cfg.IdleTTL, l.cleanup)

	return l
}

// Allow checks if a request from the given client should be allowed.
func (l *Limiter) Allow(clientID string) bool {
	return l.AllowN(clientID, 1)
}

// AllowN checks if N requests from the given client should be allowed.
func (l *Limiter) AllowN(clientID string, n int64) bool {
	l.mu.RLock()
	tb, exists := l.limiters[clientID]
	l.mu.RUnlock()

	if !exists {
		l.mu.Lock()
		// Double-check after acquiring write lock
		tb, exists = l.limiters[clientID]
		if !exists {
			if len(l.limiters) >= l.config.MaxClients {
				l.evictIdleLocked()
			}
			if len(l.limiters) >= l.config.MaxClients {
				l.mu.Unlock()
				return false
			}

			tb = newTokenBucket(l.config.Capacity, l.config.RefillRate, l.now)
			l.limiters[clientID] = tb
		}
		l.mu.Unlock()
	}

	return tb.AllowN(n)
}

// Remove removes a client's rate limiter.
func (l *Limiter) Remove(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, clientID)
}

// cleanup removes idle limiters to prevent unbounded growth.
func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.evictIdleLocked()

	// Schedule next cleanup
	l.cleanupTimer = time.AfterFunc(l.config.IdleTTL, l.cleanup)
}

func (l *Limiter) evictIdleLocked() {
	cutoff := l.now().Add(-l.config.IdleTTL)
	for id, tb := range l.limiters {
		if tb.idleSince().Before(cutoff) {
			delete(l.limiters, id)
		}
	}
}

// Stats returns limiter statistics.
func (l *Limiter) Stats() (clients int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}

// Close stops the cleanup timer.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	if l.cleanupTimer != nil {
		l.cleanupTimer.Stop()
	}
}

// ClientKey returns the host part of a remote address, so that all
// connections from one host share a bucket. Addresses without a port are
// returned unchanged.
func ClientKey(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDial = errors.New("dial failed")

func newTestBreaker(cfg Config) (*CircuitBreaker, *time.Time) {
	now := time.Unix(1000, 0)
	cb := New(cfg)
	cb.now = func() time.Time { return now }
	cb.lastStateChange = now
	return cb, &now
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	cb, _ := newTestBreaker(Config{MaxFailures: 3, ResetTimeout: time.Second})

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Call(func() error { return errDial }), errDial)
	}
	assert.Equal(t, StateClosed, cb.State())

	// A success resets the consecutive failure count.
	require.NoError(t, cb.Call(func() error { return nil }))
	for i := 0; i < 3; i++ {
		cb.Call(func() error { return errDial })
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, int64(1), cb.Stats().Rejected)
}

func TestBreakerHalfOpen(t *testing.T) {
	cb, now := newTestBreaker(Config{MaxFailures: 1, ResetTimeout: time.Second, SuccessThreshold: 2})

	cb.Call(func() error { return errDial })
	require.Equal(t, StateOpen, cb.State())

	*now = now.Add(2 * time.Second)

	// Only one probe runs at a time.
	err := cb.Call(func() error {
		assert.Equal(t, StateHalfOpen, cb.State())
		assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrCircuitOpen)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerHalfOpenFailure(t *testing.T) {
	cb, now := newTestBreaker(Config{MaxFailures: 1, ResetTimeout: time.Second})

	cb.Call(func() error { return errDial })
	*now = now.Add(2 * time.Second)

	cb.Call(func() error { return errDial })
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrCircuitOpen)
}

func TestBreakerIsFailure(t *testing.T) {
	errReply := errors.New("ERROR OUT_OF_BOUNDS")
	cb, _ := newTestBreaker(Config{
		MaxFailures: 1,
		IsFailure:   func(err error) bool { return err != nil && !errors.Is(err, errReply) },
	})

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Call(func() error { return errReply }), errReply)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerStateChangeCallback(t *testing.T) {
	cb, _ := newTestBreaker(Config{MaxFailures: 1})

	changes := make(chan [2]State, 1)
	cb.OnStateChange(func(from, to State) { changes <- [2]State{from, to} })

	cb.Call(func() error { return errDial })

	select {
	case c := <-changes:
		assert.Equal(t, [2]State{StateClosed, StateOpen}, c)
	case <-time.After(time.Second):
		t.Fatal("no state change reported")
	}
	assert.Equal(t, "open", StateOpen.String())
}

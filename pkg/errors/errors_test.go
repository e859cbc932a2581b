// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionError(t *testing.T) {
	err := New("read", "tcp", "s-1", "127.0.0.1:9000", io.ErrUnexpectedEOF)

	var serr *SessionError
	assert.True(t, errors.As(err, &serr))
	assert.Equal(t, "read", serr.Op)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "tcp read [s-1] 127.0.0.1:9000: unexpected EOF", err.Error())

	err = New("write", "ws", "", "peer", ErrConnectionClosed)
	assert.Equal(t, "ws write peer: connection closed", err.Error())

	assert.Nil(t, New("read", "tcp", "s", "r", nil))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))

	err := Wrap(ErrLineTooLong, "read command")
	assert.ErrorIs(t, err, ErrLineTooLong)
	assert.Equal(t, "read command: line too long", err.Error())
}

func TestIsClosed(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "eof", err: io.EOF, want: true},
		{name: "wrapped eof", err: fmt.Errorf("read: %w", io.EOF), want: true},
		{name: "net closed", err: New("read", "tcp", "s", "r", net.ErrClosed), want: true},
		{name: "connection closed", err: ErrConnectionClosed, want: true},
		{name: "other", err: errors.New("boom"), want: false},
		{name: "timeout", err: os.ErrDeadlineExceeded, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsClosed(tt.err))
		})
	}
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(fmt.Errorf("read: %w", os.ErrDeadlineExceeded)))
	assert.False(t, IsTimeout(io.EOF))
}

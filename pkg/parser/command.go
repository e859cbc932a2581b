// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package parser

import "github.com/absmach/bboard/pkg/board"

// Command is one parsed protocol request. The set of implementations is
// closed: only types in this package satisfy it.
type Command interface {
	// Name returns the command keyword, used for logs and metrics labels.
	Name() string

	command()
}

// Post posts a note.
type Post struct {
	X       int
	Y       int
	Color   string
	Message string
}

// Get queries notes with optional filters.
type Get struct {
	Query board.Query
}

// GetPins lists all pinned coordinates.
type GetPins struct{}

// Pin pins every note containing a point.
type Pin struct {
	X int
	Y int
}

// Unpin removes the pins at a point.
type Unpin struct {
	X int
	Y int
}

// Shake removes unpinned notes.
type Shake struct{}

// Clear removes everything.
type Clear struct{}

// Disconnect ends the session.
type Disconnect struct{}

func (Post) Name() string       { return "POST" }
func (Get) Name() string        { return "GET" }
func (GetPins) Name() string    { return "GET_PINS" }
func (Pin) Name() string        { return "PIN" }
func (Unpin) Name() string      { return "UNPIN" }
func (Shake) Name() string      { return "SHAKE" }
func (Clear) Name() string      { return "CLEAR" }
func (Disconnect) Name() string { return "DISCONNECT" }

func (Post) command()       {}
func (Get) command()        {}
func (GetPins) command()    {}
func (Pin) command()        {}
func (Unpin) command()      {}
func (Shake) command()      {}
func (Clear) command()      {}
func (Disconnect) command() {}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"fmt"

	"github.com/absmach/bboard/pkg/board"
)

// Dispatcher executes parsed commands against a board.
type Dispatcher struct {
	board *board.Board
}

// NewDispatcher creates a dispatcher for b.
func NewDispatcher(b *board.Board) *Dispatcher {
	return &Dispatcher{board: b}
}

// Board returns the board the dispatcher writes to.
func (d *Dispatcher) Board() *board.Board {
	return d.board
}

// Handle parses line and executes it. The returned command is nil when the
// line did not parse.
func (d *Dispatcher) Handle(line string) (Command, Response) {
	cmd, err := Parse(line)
	if err != nil {
		return nil, ErrorResponse(err)
	}
	return cmd, d.Execute(cmd)
}

// Execute runs cmd and renders the result.
func (d *Dispatcher) Execute(cmd Command) Response {
	switch c := cmd.(type) {
	case Post:
		if err := d.board.AddNote(c.X, c.Y, c.Color, c.Message); err != nil {
			return ErrorResponse(err)
		}
		return okResponse(TagNotePosted)

	case Get:
		notes, err := d.board.Query(c.Query)
		if err != nil {
			return ErrorResponse(err)
		}
		data := make([]string, len(notes))
		for i, n := range notes {
			data[i] = formatNote(n)
		}
		return listResponse(data)

	case GetPins:
		pins := d.board.Pins()
		data := make([]string, len(pins))
		for i, p := range pins {
			data[i] = formatPin(p)
		}
		return listResponse(data)

	case Pin:
		if err := d.board.AddPin(c.X, c.Y); err != nil {
			return ErrorResponse(err)
		}
		return okResponse(TagPinAdded)

	case Unpin:
		if err := d.board.RemovePin(c.X, c.Y); err != nil {
			return ErrorResponse(err)
		}
		return okResponse(TagPinRemoved)

	case Shake:
		d.board.Shake()
		return okResponse(TagShakeComplete)

	case Clear:
		d.board.Clear()
		return okResponse(TagClearComplete)

	case Disconnect:
		resp := okResponse(TagDisconnecting)
		resp.Close = true
		return resp

	default:
		panic(fmt.Sprintf("parser: unhandled command %T", cmd))
	}
}

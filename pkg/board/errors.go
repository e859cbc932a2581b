// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package board

// Code is the wire error code reported to clients.
type Code string

const (
	CodeOutOfBounds        Code = "OUT_OF_BOUNDS"
	CodeColorNotSupported  Code = "COLOR_NOT_SUPPORTED"
	CodeCompleteOverlap    Code = "COMPLETE_OVERLAP"
	CodeNoNoteAtCoordinate Code = "NO_NOTE_AT_COORDINATE"
	CodePinNotFound        Code = "PIN_NOT_FOUND"
)

// Error is a board state error carrying the code sent to the client.
type Error struct {
	Code Code
	msg  string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.msg
}

// Board errors. Compare with errors.Is.
var (
	// ErrOutOfBounds indicates a note rectangle or a point outside the board.
	ErrOutOfBounds = &Error{Code: CodeOutOfBounds, msg: "out of bounds"}

	// ErrColorNotSupported indicates a color that is not configured.
	ErrColorNotSupported = &Error{Code: CodeColorNotSupported, msg: "color not supported"}

	// ErrCompleteOverlap indicates a note already posted at the same origin.
	ErrCompleteOverlap = &Error{Code: CodeCompleteOverlap, msg: "complete overlap"}

	// ErrNoNoteAtCoordinate indicates no note strictly contains the pin point.
	ErrNoNoteAtCoordinate = &Error{Code: CodeNoNoteAtCoordinate, msg: "no note at coordinate"}

	// ErrPinNotFound indicates no note holds a pin at the point.
	ErrPinNotFound = &Error{Code: CodePinNotFound, msg: "pin not found"}
)

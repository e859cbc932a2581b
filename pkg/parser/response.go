// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/absmach/bboard/pkg/board"
)

// Success tags.
const (
	TagNotePosted    = "NOTE_POSTED"
	TagPinAdded      = "PIN_ADDED"
	TagPinRemoved    = "PIN_REMOVED"
	TagShakeComplete = "SHAKE_COMPLETE"
	TagClearComplete = "CLEAR_COMPLETE"
	TagDisconnecting = "DISCONNECTING"
)

// StatusOK is the Status of every successful response.
const StatusOK = "OK"

// Response is the rendered reply to one command: a status line, optionally
// followed by data lines.
type Response struct {
	lines  []string
	status string

	// Close asks the session to end after writing the response.
	Close bool
}

func okResponse(tag string) Response {
	return Response{lines: []string{"OK " + tag}, status: StatusOK}
}

func listResponse(data []string) Response {
	lines := make([]string, 0, len(data)+1)
	lines = append(lines, "OK "+strconv.Itoa(len(data)))
	lines = append(lines, data...)
	return Response{lines: lines, status: StatusOK}
}

// ErrorResponse renders err as an ERROR line. Board errors keep their code,
// anything else is reported as INVALID_FORMAT.
func ErrorResponse(err error) Response {
	code := CodeInvalidFormat
	var berr *board.Error
	if errors.As(err, &berr) {
		code = string(berr.Code)
	}
	return Response{lines: []string{"ERROR " + code}, status: code}
}

// Lines returns the wire lines without terminators.
func (r Response) Lines() []string {
	return r.lines
}

// Status is "OK" for success and the error code otherwise.
func (r Response) Status() string {
	return r.status
}

// String joins the lines with newlines.
func (r Response) String() string {
	return strings.Join(r.lines, "\n")
}

// WriteTo writes every line followed by a newline.
func (r Response) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, line := range r.lines {
		n, err := io.WriteString(w, line+"\n")
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func formatNote(n board.NoteView) string {
	var sb strings.Builder
	sb.WriteString("NOTE ")
	sb.WriteString(strconv.Itoa(n.X))
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(n.Y))
	sb.WriteByte(' ')
	sb.WriteString(n.Color)
	sb.WriteByte(' ')
	sb.WriteString(n.Message)
	sb.WriteString(" PINNED=")
	sb.WriteString(strconv.FormatBool(n.Pinned()))
	return sb.String()
}

func formatPin(p board.Point) string {
	return "PIN " + strconv.Itoa(p.X) + " " + strconv.Itoa(p.Y)
}

// Greeting renders the line sent to every new client:
// board width, board height, note width, note height and the colors.
func Greeting(g board.Geometry) string {
	parts := make([]string, 0, 4+len(g.Colors))
	parts = append(parts,
		strconv.Itoa(g.BoardWidth),
		strconv.Itoa(g.BoardHeight),
		strconv.Itoa(g.NoteWidth),
		strconv.Itoa(g.NoteHeight),
	)
	parts = append(parts, g.Colors...)
	return strings.Join(parts, " ")
}

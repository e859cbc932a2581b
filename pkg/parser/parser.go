// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/absmach/bboard/pkg/board"
)

// MaxMessageLength is the longest note message accepted, in characters.
const MaxMessageLength = 256

// CodeInvalidFormat is the wire code for every syntactic failure.
const CodeInvalidFormat = "INVALID_FORMAT"

// ErrInvalidFormat is returned for any line that does not match the grammar.
var ErrInvalidFormat = errors.New("invalid format")

const (
	colorKey    = "color="
	containsKey = "contains="
	refersToKey = "refersTo="
)

// Parse turns one input line into a Command. Leading and trailing whitespace
// is ignored and keywords are case-sensitive. Runs of whitespace inside a
// message or a refersTo value are collapsed to single spaces.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ErrInvalidFormat
	}

	args := fields[1:]
	switch fields[0] {
	case "POST":
		return parsePost(args)
	case "GET":
		return parseGet(args)
	case "PIN":
		x, y, err := parsePoint(args)
		if err != nil {
			return nil, err
		}
		return Pin{X: x, Y: y}, nil
	case "UNPIN":
		x, y, err := parsePoint(args)
		if err != nil {
			return nil, err
		}
		return Unpin{X: x, Y: y}, nil
	case "SHAKE":
		return bare(args, Shake{})
	case "CLEAR":
		return bare(args, Clear{})
	case "DISCONNECT":
		return bare(args, Disconnect{})
	default:
		return nil, ErrInvalidFormat
	}
}

func bare(args []string, cmd Command) (Command, error) {
	if len(args) != 0 {
		return nil, ErrInvalidFormat
	}
	return cmd, nil
}

func parsePost(args []string) (Command, error) {
	if len(args) < 4 {
		return nil, ErrInvalidFormat
	}
	x, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, ErrInvalidFormat
	}
	y, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, ErrInvalidFormat
	}

	message := strings.Join(args[3:], " ")
	if n := utf8.RuneCountInString(message); n < 1 || n > MaxMessageLength {
		return nil, ErrInvalidFormat
	}

	return Post{X: x, Y: y, Color: args[2], Message: message}, nil
}

func parsePoint(args []string) (int, int, error) {
	if len(args) != 2 {
		return 0, 0, ErrInvalidFormat
	}
	x, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, ErrInvalidFormat
	}
	y, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, ErrInvalidFormat
	}
	return x, y, nil
}

func parseGet(args []string) (Command, error) {
	if len(args) == 1 && args[0] == "PINS" {
		return GetPins{}, nil
	}

	var q board.Query
	for i := 0; i < len(args); i++ {
		tok := args[i]
		switch {
		case strings.HasPrefix(tok, colorKey):
			color := strings.TrimPrefix(tok, colorKey)
			if q.Color != nil || color == "" {
				return nil, ErrInvalidFormat
			}
			q.Color = &color

		case strings.HasPrefix(tok, containsKey):
			if q.Contains != nil || i+1 >= len(args) {
				return nil, ErrInvalidFormat
			}
			x, err := strconv.Atoi(strings.TrimPrefix(tok, containsKey))
			if err != nil {
				return nil, ErrInvalidFormat
			}
			i++
			y, err := strconv.Atoi(args[i])
			if err != nil {
				return nil, ErrInvalidFormat
			}
			q.Contains = &board.Point{X: x, Y: y}

		case strings.HasPrefix(tok, refersToKey):
			// refersTo= takes the rest of the line, so it is always the last filter.
			words := args[i+1:]
			if first := strings.TrimPrefix(tok, refersToKey); first != "" {
				words = append([]string{first}, words...)
			}
			substring := strings.Join(words, " ")
			q.RefersTo = &substring
			i = len(args)

		default:
			return nil, ErrInvalidFormat
		}
	}

	return Get{Query: q}, nil
}

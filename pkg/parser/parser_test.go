// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"strings"
	"testing"

	"github.com/absmach/bboard/pkg/board"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string {
	return &s
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Command
	}{
		{name: "post", line: "POST 30 20 white Team meeting at 3PM", want: Post{X: 30, Y: 20, Color: "white", Message: "Team meeting at 3PM"}},
		{name: "post negative", line: "POST -5 10 yellow Negative X", want: Post{X: -5, Y: 10, Color: "yellow", Message: "Negative X"}},
		{name: "post collapses spaces", line: "POST 1 2 red  a   b\tc ", want: Post{X: 1, Y: 2, Color: "red", Message: "a b c"}},
		{name: "post max message", line: "POST 1 2 red " + strings.Repeat("A", 256), want: Post{X: 1, Y: 2, Color: "red", Message: strings.Repeat("A", 256)}},
		{name: "post multibyte message", line: "POST 1 2 red " + strings.Repeat("é", 256), want: Post{X: 1, Y: 2, Color: "red", Message: strings.Repeat("é", 256)}},
		{name: "surrounding whitespace", line: "   CLEAR   ", want: Clear{}},
		{name: "get all", line: "GET", want: Get{}},
		{name: "get pins", line: "GET PINS", want: GetPins{}},
		{name: "get color", line: "GET color=white", want: Get{Query: board.Query{Color: strPtr("white")}}},
		{name: "get contains", line: "GET contains=32 25", want: Get{Query: board.Query{Contains: &board.Point{X: 32, Y: 25}}}},
		{name: "get refers to", line: "GET refersTo=Team meeting", want: Get{Query: board.Query{RefersTo: strPtr("Team meeting")}}},
		{name: "get refers to empty", line: "GET refersTo=", want: Get{Query: board.Query{RefersTo: strPtr("")}}},
		{name: "get refers to detached word", line: "GET refersTo= lunch  now", want: Get{Query: board.Query{RefersTo: strPtr("lunch now")}}},
		{name: "get refers to swallows filters", line: "GET refersTo=a color=red", want: Get{Query: board.Query{RefersTo: strPtr("a color=red")}}},
		{
			name: "get all filters",
			line: "GET color=white contains=32 25 refersTo=Team",
			want: Get{Query: board.Query{Color: strPtr("white"), Contains: &board.Point{X: 32, Y: 25}, RefersTo: strPtr("Team")}},
		},
		{
			name: "get filters any order",
			line: "GET contains=32 25 color=red",
			want: Get{Query: board.Query{Color: strPtr("red"), Contains: &board.Point{X: 32, Y: 25}}},
		},
		{name: "pin", line: "PIN 35 25", want: Pin{X: 35, Y: 25}},
		{name: "unpin", line: "UNPIN 35 25", want: Unpin{X: 35, Y: 25}},
		{name: "shake", line: "SHAKE", want: Shake{}},
		{name: "disconnect", line: "DISCONNECT", want: Disconnect{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInvalid(t *testing.T) {
	lines := []string{
		"",
		"   ",
		"FOOBAR",
		"post 1 2 red lower case keyword",
		"POST",
		"POST 10 20 white",
		"POST 10 20 white ",
		"POST abc def white bad",
		"POST 1.5 2 white bad",
		"POST 1 2 red " + strings.Repeat("A", 257),
		"GET color",
		"GET color=",
		"GET color=red color=white",
		"GET contains=abc def",
		"GET contains=1",
		"GET contains= 1 2",
		"GET contains=1 2 contains=3 4",
		"GET PINS extra",
		"GET pins",
		"GET bogus",
		"GET color=red bogus",
		"PIN 10",
		"PIN abc 10",
		"PIN 1 2 3",
		"UNPIN",
		"SHAKE extra stuff",
		"CLEAR extra stuff",
		"DISCONNECT now",
	}

	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			cmd, err := Parse(line)
			assert.ErrorIs(t, err, ErrInvalidFormat)
			assert.Nil(t, cmd)
		})
	}
}

func TestCommandNames(t *testing.T) {
	cmds := map[string]Command{
		"POST":       Post{},
		"GET":        Get{},
		"GET_PINS":   GetPins{},
		"PIN":        Pin{},
		"UNPIN":      Unpin{},
		"SHAKE":      Shake{},
		"CLEAR":      Clear{},
		"DISCONNECT": Disconnect{},
	}
	for name, cmd := range cmds {
		assert.Equal(t, name, cmd.Name())
	}
}

func TestGreeting(t *testing.T) {
	g := board.Geometry{BoardWidth: 200, BoardHeight: 100, NoteWidth: 20, NoteHeight: 10, Colors: []string{"red", "white"}}
	assert.Equal(t, "200 100 20 10 red white", Greeting(g))
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package board

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrInvalidConfig is returned by New when the geometry or color set is unusable.
var ErrInvalidConfig = errors.New("invalid board configuration")

// Config holds the fixed board parameters.
type Config struct {
	BoardWidth  int
	BoardHeight int
	NoteWidth   int
	NoteHeight  int

	// Colors is the ordered set of valid note colors. The order is kept for
	// the greeting line.
	Colors []string
}

// Validate checks geometry and colors.
func (c Config) Validate() error {
	if c.BoardWidth <= 0 || c.BoardHeight <= 0 {
		return fmt.Errorf("%w: board dimensions must be positive, got %dx%d", ErrInvalidConfig, c.BoardWidth, c.BoardHeight)
	}
	if c.NoteWidth <= 0 || c.NoteHeight <= 0 {
		return fmt.Errorf("%w: note dimensions must be positive, got %dx%d", ErrInvalidConfig, c.NoteWidth, c.NoteHeight)
	}
	if c.NoteWidth > c.BoardWidth || c.NoteHeight > c.BoardHeight {
		return fmt.Errorf("%w: note %dx%d does not fit board %dx%d", ErrInvalidConfig, c.NoteWidth, c.NoteHeight, c.BoardWidth, c.BoardHeight)
	}
	if len(c.Colors) == 0 {
		return fmt.Errorf("%w: at least one color is required", ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(c.Colors))
	for _, color := range c.Colors {
		if color == "" || strings.ContainsAny(color, " \t\r\n") {
			return fmt.Errorf("%w: invalid color %q", ErrInvalidConfig, color)
		}
		if _, ok := seen[color]; ok {
			return fmt.Errorf("%w: duplicate color %q", ErrInvalidConfig, color)
		}
		seen[color] = struct{}{}
	}
	return nil
}

// Geometry describes the board to clients.
type Geometry struct {
	BoardWidth  int
	BoardHeight int
	NoteWidth   int
	NoteHeight  int
	Colors      []string
}

// Query selects notes. Nil fields are not applied.
type Query struct {
	Color    *string
	Contains *Point
	RefersTo *string
}

// Stats is a point-in-time summary of the board.
type Stats struct {
	Notes       int
	PinnedNotes int
	Pins        int
}

// Board is the shared store of notes. Every exported method runs in a single
// critical section, so operations are linearizable with respect to each other.
type Board struct {
	mu sync.Mutex

	boardWidth  int
	boardHeight int
	noteWidth   int
	noteHeight  int
	colors      []string
	colorSet    map[string]struct{}

	notes   []*note
	origins map[Point]*note
}

// New creates an empty board.
func New(cfg Config) (*Board, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	colors := make([]string, len(cfg.Colors))
	copy(colors, cfg.Colors)
	colorSet := make(map[string]struct{}, len(colors))
	for _, c := range colors {
		colorSet[c] = struct{}{}
	}

	return &Board{
		boardWidth:  cfg.BoardWidth,
		boardHeight: cfg.BoardHeight,
		noteWidth:   cfg.NoteWidth,
		noteHeight:  cfg.NoteHeight,
		colors:      colors,
		colorSet:    colorSet,
		origins:     make(map[Point]*note),
	}, nil
}

// Geometry returns the board dimensions and colors.
func (b *Board) Geometry() Geometry {
	colors := make([]string, len(b.colors))
	copy(colors, b.colors)
	return Geometry{
		BoardWidth:  b.boardWidth,
		BoardHeight: b.boardHeight,
		NoteWidth:   b.noteWidth,
		NoteHeight:  b.noteHeight,
		Colors:      colors,
	}
}

// AddNote posts a note with its upper-left corner at (x, y).
// Checks run in a fixed order: bounds, color, then duplicate origin.
func (b *Board) AddNote(x, y int, color, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.noteInBounds(x, y) {
		return ErrOutOfBounds
	}
	if !b.validColor(color) {
		return ErrColorNotSupported
	}
	origin := Point{X: x, Y: y}
	if _, ok := b.origins[origin]; ok {
		return ErrCompleteOverlap
	}

	n := newNote(x, y, color, message)
	b.notes = append(b.notes, n)
	b.origins[origin] = n
	return nil
}

// AddPin pins every note that strictly contains (px, py).
// Pinning a note twice at the same point is a no-op.
func (b *Board) AddPin(px, py int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := Point{X: px, Y: py}
	if !b.pointInBounds(p) {
		return ErrOutOfBounds
	}

	found := false
	for _, n := range b.notes {
		if n.contains(p, b.noteWidth, b.noteHeight) {
			found = true
			n.addPin(p)
		}
	}
	if !found {
		return ErrNoNoteAtCoordinate
	}
	return nil
}

// RemovePin removes the pin at (px, py) from every note that holds one.
func (b *Board) RemovePin(px, py int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := Point{X: px, Y: py}
	if !b.pointInBounds(p) {
		return ErrOutOfBounds
	}

	removed := false
	for _, n := range b.notes {
		if n.removePin(p) {
			removed = true
		}
	}
	if !removed {
		return ErrPinNotFound
	}
	return nil
}

// Shake removes every unpinned note.
func (b *Board) Shake() {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.notes[:0]
	for _, n := range b.notes {
		if n.pinned() {
			kept = append(kept, n)
			continue
		}
		delete(b.origins, n.origin)
	}
	// Drop references held past the new length.
	for i := len(kept); i < len(b.notes); i++ {
		b.notes[i] = nil
	}
	b.notes = kept
}

// Clear removes all notes and pins.
func (b *Board) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.notes = nil
	b.origins = make(map[Point]*note)
}

// Query returns the notes matching every set filter, in posting order.
func (b *Board) Query(q Query) ([]NoteView, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q.Color != nil && !b.validColor(*q.Color) {
		return nil, ErrColorNotSupported
	}
	if q.Contains != nil && !b.pointInBounds(*q.Contains) {
		return nil, ErrOutOfBounds
	}

	views := make([]NoteView, 0, len(b.notes))
	for _, n := range b.notes {
		if q.Color != nil && n.color != *q.Color {
			continue
		}
		if q.Contains != nil && !n.contains(*q.Contains, b.noteWidth, b.noteHeight) {
			continue
		}
		if q.RefersTo != nil && !strings.Contains(n.message, *q.RefersTo) {
			continue
		}
		views = append(views, n.view())
	}
	return views, nil
}

// Pins returns every pinned coordinate once, even when several notes share it.
func (b *Board) Pins() []Point {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[Point]struct{})
	pins := []Point{}
	for _, n := range b.notes {
		for _, p := range n.pins {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			pins = append(pins, p)
		}
	}
	return pins
}

// Stats returns note and pin counts.
func (b *Board) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	var s Stats
	seen := make(map[Point]struct{})
	for _, n := range b.notes {
		s.Notes++
		if n.pinned() {
			s.PinnedNotes++
		}
		for _, p := range n.pins {
			seen[p] = struct{}{}
		}
	}
	s.Pins = len(seen)
	return s
}

func (b *Board) noteInBounds(x, y int) bool {
	// Written without x+noteWidth so very large coordinates cannot overflow.
	return x >= 0 && y >= 0 && x <= b.boardWidth-b.noteWidth && y <= b.boardHeight-b.noteHeight
}

func (b *Board) pointInBounds(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < b.boardWidth && p.Y < b.boardHeight
}

func (b *Board) validColor(color string) bool {
	_, ok := b.colorSet[color]
	return ok
}

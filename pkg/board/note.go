// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package board

// Point is an integer board coordinate.
type Point struct {
	X int
	Y int
}

// note is the board-owned record of a posted note. Only its pin set changes
// after creation.
type note struct {
	origin  Point
	color   string
	message string

	// pins keeps insertion order; pinSet guards against duplicates.
	pins   []Point
	pinSet map[Point]struct{}
}

func newNote(x, y int, color, message string) *note {
	return &note{
		origin:  Point{X: x, Y: y},
		color:   color,
		message: message,
		pinSet:  make(map[Point]struct{}),
	}
}

func (n *note) pinned() bool {
	return len(n.pins) > 0
}

// contains reports whether p lies strictly inside the note rectangle.
// Boundary points are excluded.
func (n *note) contains(p Point, width, height int) bool {
	return n.origin.X < p.X && p.X < n.origin.X+width &&
		n.origin.Y < p.Y && p.Y < n.origin.Y+height
}

// addPin attaches a pin at p. It returns false when the pin already exists.
func (n *note) addPin(p Point) bool {
	if _, ok := n.pinSet[p]; ok {
		return false
	}
	n.pinSet[p] = struct{}{}
	n.pins = append(n.pins, p)
	return true
}

// removePin detaches the pin at p. It returns false when there was none.
func (n *note) removePin(p Point) bool {
	if _, ok := n.pinSet[p]; !ok {
		return false
	}
	delete(n.pinSet, p)
	for i, q := range n.pins {
		if q == p {
			n.pins = append(n.pins[:i], n.pins[i+1:]...)
			break
		}
	}
	return true
}

func (n *note) view() NoteView {
	pins := make([]Point, len(n.pins))
	copy(pins, n.pins)
	return NoteView{
		X:       n.origin.X,
		Y:       n.origin.Y,
		Color:   n.color,
		Message: n.message,
		Pins:    pins,
	}
}

// NoteView is a snapshot of a note. It shares no memory with the board.
type NoteView struct {
	X       int
	Y       int
	Color   string
	Message string
	Pins    []Point
}

// Pinned reports whether the note had at least one pin when the snapshot was taken.
func (v NoteView) Pinned() bool {
	return len(v.Pins) > 0
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package board implements the shared bulletin board state.
//
// # Model
//
// A Board has fixed dimensions, a fixed note size and a fixed set of colors.
// Notes are rectangles of the configured size placed at an integer origin.
// Pins are points attached to notes; a pin must lie strictly inside the note
// rectangle, so points on a note edge never pin it. One coordinate may pin
// several overlapping notes at once.
//
// # Invariants
//
// After every operation:
//
//   - every note rectangle lies inside the board
//   - no two notes share an origin
//   - every note color is configured
//   - a note is pinned exactly when it holds at least one pin
//   - every pin lies strictly inside its note
//
// # Concurrency
//
// The board is the only state shared between sessions. Each exported method
// holds one mutex for its full read-modify-write sequence and never performs
// I/O, so concurrent callers observe a total order of operations.
//
// Query results are NoteView snapshots and can be used after the lock is
// released without aliasing board memory.
package board

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package parser turns protocol lines into commands and commands into replies.
//
// # Grammar
//
// The first whitespace-delimited token selects the command. Keywords are
// case-sensitive and surrounding whitespace is ignored.
//
//	POST <x> <y> <color> <message>
//	GET [color=<c>] [contains=<x> <y>] [refersTo=<substring>]
//	GET PINS
//	PIN <x> <y>
//	UNPIN <x> <y>
//	SHAKE
//	CLEAR
//	DISCONNECT
//
// A POST message is the rest of the line and must be 1 to 256 characters.
// Each GET filter may appear once; refersTo= consumes the rest of the line.
// Whitespace runs inside messages and refersTo values collapse to one space,
// so a note posted with "a   b" is found by refersTo=a b.
//
// Every syntactic failure is reported the same way, as ERROR INVALID_FORMAT.
//
// # Commands
//
// Parse returns a Command, a closed set of value types:
//
//	Post, Get, GetPins, Pin, Unpin, Shake, Clear, Disconnect
//
// Dispatcher.Execute switches over that set and calls the board.
//
// # Responses
//
// Mutating commands reply with one line:
//
//	OK NOTE_POSTED | OK PIN_ADDED | OK PIN_REMOVED
//	OK SHAKE_COMPLETE | OK CLEAR_COMPLETE | OK DISCONNECTING
//	ERROR <code>
//
// Queries reply with a count followed by exactly that many data lines:
//
//	OK 2
//	NOTE 30 20 white Team meeting PINNED=true
//	NOTE 35 25 red Lunch PINNED=false
//
//	OK 1
//	PIN 37 27
//
// # Example
//
//	d := parser.NewDispatcher(b)
//	_, resp := d.Handle("POST 30 20 white hello")
//	resp.WriteTo(conn) // OK NOTE_POSTED
package parser

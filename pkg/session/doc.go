// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package session implements the per-connection command loop.
//
// # Lifecycle
//
//  1. handler.AuthConnect decides admission; on error nothing is written
//  2. the greeting line is written: board and note size, then the colors
//  3. loop: read a line, dispatch it, write the full reply, notify OnCommand
//  4. DISCONNECT: reply OK DISCONNECTING and return
//  5. end of stream: return without writing anything
//  6. handler.OnDisconnect runs for every admitted session
//
// A Session works over any io.ReadWriter, so the TCP and WebSocket servers
// share it. Read and write deadlines are applied when the connection supports
// them. Lines longer than Config.MaxLineLength are discarded up to their
// newline and answered with ERROR INVALID_FORMAT; the session stays open.
//
// Sessions never talk to each other. The only shared state is the board behind
// the parser's Dispatcher, whose operations are short and never block on I/O.
package session

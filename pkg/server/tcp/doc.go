// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package tcp implements the TCP acceptor of the bulletin board server.
//
// # Overview
//
// The server accepts connections and runs a session.Session on each one, in
// its own goroutine. All sessions share one parser.Dispatcher and therefore
// one board.
//
//	┌─────────┐         ┌─────────┐         ┌────────────┐         ┌───────┐
//	│ Client  │ ←─TCP─→ │ Session │ ──────→ │ Dispatcher │ ──────→ │ Board │
//	└─────────┘         └─────────┘         └────────────┘         └───────┘
//	                         ↓
//	                    ┌─────────┐
//	                    │ Handler │
//	                    └─────────┘
//
// # Admission
//
// MaxConnections caps concurrent sessions. A connection accepted above the cap
// is closed without a greeting and counted in metrics. Per-client admission
// (rate limiting) is delegated to handler.Handler.AuthConnect.
//
// # Graceful Shutdown
//
// When the context is cancelled:
//
//  1. The listener is closed and no new connections are accepted
//  2. The server waits for active sessions to end (with timeout)
//  3. After ShutdownTimeout, remaining connections are closed
//  4. Serve returns ErrShutdownTimeout if the timeout was exceeded
//
// # Example
//
//	b, _ := board.New(board.Config{...})
//	srv := tcp.New(tcp.Config{
//		Address:        ":4554",
//		MaxConnections: 1024,
//	}, parser.NewDispatcher(b), handler.NewLogging(logger))
//
//	if err := srv.Listen(ctx); err != nil {
//		log.Fatal(err)
//	}
package tcp

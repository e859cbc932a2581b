// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package handler defines the hooks a session calls around its lifecycle.
//
// # Data Flow
//
//	accept → AuthConnect → greeting → OnConnect
//	       → (read line → dispatch → write reply → OnCommand)*
//	       → OnDisconnect
//
// # Handler Methods
//
// AuthConnect runs before anything is written to the client and is the
// admission point: connection rate limiting and similar policies return an
// error there and the connection is closed silently.
//
// Notification methods are called after the fact:
//   - OnConnect: the greeting was written
//   - OnCommand: a reply was written; carries the command name and status
//   - OnDisconnect: the session ended (DISCONNECT, EOF or transport error)
//
// Handlers never see or touch the board; the board is reached only through
// the parser's Dispatcher.
//
// # Context
//
// The Context struct carries session metadata across all handler calls:
//   - SessionID: unique identifier for this connection
//   - RemoteAddr: client network address
//   - Transport: tcp or ws
//   - ConnectedAt: accept time
//
// # Example
//
//	type Audit struct {
//		handler.NoopHandler
//		log *slog.Logger
//	}
//
//	func (a *Audit) OnCommand(ctx context.Context, hctx *handler.Context, cmd handler.Command) error {
//		a.log.Info("command", slog.String("session", hctx.SessionID), slog.String("name", cmd.Name))
//		return nil
//	}
package handler

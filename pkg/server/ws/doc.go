// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ws serves the bulletin board protocol over WebSocket.
//
// Each text message from the client carries one command line and each reply
// line arrives as its own text message, so a GET answer of n notes is n+1
// messages. The greeting is the first message after the upgrade.
//
// Conn adapts a gorilla/websocket connection to net.Conn with that framing,
// which lets session.Session and client.Client run unchanged on top of it:
//
//	conn, err := ws.Dial(ctx, "ws://localhost:4555/ws", nil)
//	if err != nil {
//		return err
//	}
//	c, err := client.New(conn, client.Config{})
//
// WebSocket sessions share the board with TCP sessions when both servers are
// built on the same parser.Dispatcher.
package ws

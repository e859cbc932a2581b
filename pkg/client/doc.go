// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package client is a Go client for the bulletin board line protocol.
//
// Dial connects and parses the greeting; typed helpers wrap each command and
// decode NOTE and PIN lines. ERROR replies are returned as *ServerError so
// callers can inspect the code:
//
//	c, err := client.Dial(ctx, "localhost:4554", client.Config{})
//	if err != nil {
//		return err
//	}
//	defer c.Disconnect()
//
//	if err := c.Post(10, 10, "red", "hello"); err != nil {
//		var serr *client.ServerError
//		if errors.As(err, &serr) && serr.Code == "COMPLETE_OVERLAP" {
//			// a note already sits there
//		}
//	}
//
// New wraps any net.Conn, which is how the WebSocket transport is used.
package client

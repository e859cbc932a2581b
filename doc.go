// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package bboard holds the server configuration of the bulletin board.
//
// Values are resolved in this order, later sources winning:
//
//  1. built-in defaults (the envDefault tags on Config)
//  2. a TOML or YAML file
//  3. BBOARD_* environment variables, with an optional .env file underneath
//  4. positional arguments: <port> <board_w> <board_h> <note_w> <note_h> <color>...
//
// The result is validated once, before the server accepts connections.
package bboard

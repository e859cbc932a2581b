// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package main provides the bboard command: the bulletin board server, an
// interactive client and a load generator.
package main

func main() {
	Execute()
}

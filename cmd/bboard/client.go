// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/absmach/bboard/pkg/client"
	"github.com/absmach/bboard/pkg/server/ws"
	"github.com/spf13/cobra"
)

var clientTimeout time.Duration

var clientCmd = &cobra.Command{
	Use:   "client <address>",
	Short: "Open an interactive session with a board server",
	Long: `Connect to a board server and send one command per input line, printing
each reply. The address is host:port for TCP or a ws:// or wss:// URL.`,
	Example: `  bboard client localhost:4554
  echo "GET PINS" | bboard client ws://localhost:4555/ws`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd.Context(), args[0], client.Config{
			ConnectTimeout: clientTimeout,
			ReadTimeout:    clientTimeout,
		})
		if err != nil {
			return err
		}
		defer c.Close()

		return repl(c, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(clientCmd)
	clientCmd.Flags().DurationVarP(&clientTimeout, "timeout", "t", 10*time.Second, "Connect and reply timeout")
}

// connect dials a TCP address or a WebSocket URL.
func connect(ctx context.Context, addr string, cfg client.Config) (*client.Client, error) {
	if !strings.HasPrefix(addr, "ws://") && !strings.HasPrefix(addr, "wss://") {
		return client.Dial(ctx, addr, cfg)
	}

	dctx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	conn, err := ws.Dial(dctx, addr, nil)
	if err != nil {
		return nil, err
	}
	c, err := client.New(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// repl forwards input lines to the server until DISCONNECT or end of input.
func repl(c *client.Client, in io.Reader, out io.Writer) error {
	g := c.Greeting()
	fmt.Fprintf(out, "board %dx%d, notes %dx%d, colors: %s\n",
		g.BoardWidth, g.BoardHeight, g.NoteWidth, g.NoteHeight, strings.Join(g.Colors, " "))

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		lines, err := c.Do(line)
		var serr *client.ServerError
		if err != nil && !errors.As(err, &serr) {
			return err
		}
		for _, l := range lines {
			fmt.Fprintln(out, l)
		}

		if err == nil && strings.TrimSpace(line) == "DISCONNECT" {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}

	if err := c.Disconnect(); err != nil && !errors.Is(err, client.ErrClosed) {
		return err
	}
	return nil
}

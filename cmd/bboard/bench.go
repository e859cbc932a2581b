// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/absmach/bboard/pkg/breaker"
	"github.com/absmach/bboard/pkg/client"
	"github.com/absmach/bboard/pkg/pool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type benchConfig struct {
	Clients int
	Posts   int
	Color   string
	Clear   bool
	Timeout time.Duration
}

type benchResult struct {
	Posted   int
	Rejected map[string]int
	Notes    int
	Elapsed  time.Duration
	Pool     pool.Stats
	Breaker  breaker.Stats
}

var bench benchConfig

var benchCmd = &cobra.Command{
	Use:   "bench <address>",
	Short: "Post notes from concurrent clients and report the outcome",
	Long: `Open a pool of clients against a board server and post notes laid out
on the note grid, then report how many were accepted, the rejection codes and
the final number of notes on the board.`,
	Example: `  bboard bench localhost:4554 --clients 16 --posts 500`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := args[0]
		dial := func(ctx context.Context) (*client.Client, error) {
			return connect(ctx, addr, client.Config{
				ConnectTimeout: bench.Timeout,
				ReadTimeout:    bench.Timeout,
			})
		}

		res, err := runBench(cmd.Context(), dial, bench, slog.Default())
		if err != nil {
			return err
		}
		printBench(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(benchCmd)
	benchCmd.Flags().IntVar(&bench.Clients, "clients", 8, "Concurrent clients")
	benchCmd.Flags().IntVar(&bench.Posts, "posts", 100, "Notes to post")
	benchCmd.Flags().StringVar(&bench.Color, "color", "", "Note color (defaults to the first board color)")
	benchCmd.Flags().BoolVar(&bench.Clear, "clear", false, "Clear the board before posting")
	benchCmd.Flags().DurationVar(&bench.Timeout, "timeout", 10*time.Second, "Connect and reply timeout")
}

// runBench posts cfg.Posts notes through a pool of cfg.Clients connections.
// Notes are laid out on the grid so that none of them overlap; posts that fall
// off the board come back as OUT_OF_BOUNDS and are counted as rejected.
func runBench(ctx context.Context, dial pool.DialFunc, cfg benchConfig, logger *slog.Logger) (benchResult, error) {
	if cfg.Clients <= 0 {
		cfg.Clients = 1
	}

	cb := breaker.New(breaker.Config{
		MaxFailures:  3,
		ResetTimeout: time.Second,
	})
	cb.OnStateChange(func(from, to breaker.State) {
		logger.Warn("Dial circuit changed state",
			slog.String("from", from.String()),
			slog.String("to", to.String()))
	})

	p := pool.New(dial, pool.Config{
		MaxIdle:     cfg.Clients,
		MaxActive:   cfg.Clients,
		DialTimeout: cfg.Timeout,
		WaitTimeout: cfg.Timeout,
		Breaker:     cb,
	})
	defer p.Close()

	var g client.Greeting
	err := p.Do(ctx, func(c *client.Client) error {
		g = c.Greeting()
		if cfg.Clear {
			return c.Clear()
		}
		return nil
	})
	if err != nil {
		return benchResult{}, err
	}
	if cfg.Color == "" {
		cfg.Color = g.Colors[0]
	}

	var (
		mu  sync.Mutex
		res = benchResult{Rejected: make(map[string]int)}
	)
	cols := g.BoardWidth / g.NoteWidth

	start := time.Now()
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(cfg.Clients)
	for i := 0; i < cfg.Posts; i++ {
		x := (i % cols) * g.NoteWidth
		y := (i / cols) * g.NoteHeight
		msg := fmt.Sprintf("bench note %d", i)
		eg.Go(func() error {
			return p.Do(ectx, func(c *client.Client) error {
				err := c.Post(x, y, cfg.Color, msg)
				var serr *client.ServerError
				switch {
				case err == nil:
					mu.Lock()
					res.Posted++
					mu.Unlock()
					return nil
				case errors.As(err, &serr):
					mu.Lock()
					res.Rejected[serr.Code]++
					mu.Unlock()
					return nil
				default:
					return err
				}
			})
		})
	}
	if err := eg.Wait(); err != nil {
		return benchResult{}, err
	}
	res.Elapsed = time.Since(start)

	err = p.Do(ctx, func(c *client.Client) error {
		notes, err := c.Get(client.Filter{})
		res.Notes = len(notes)
		return err
	})
	if err != nil {
		return benchResult{}, err
	}

	res.Pool = p.Stats()
	res.Breaker = cb.Stats()
	return res, nil
}

func printBench(w io.Writer, res benchResult) {
	fmt.Fprintf(w, "posted:   %d\n", res.Posted)
	codes := make([]string, 0, len(res.Rejected))
	for code := range res.Rejected {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "rejected: %d %s\n", res.Rejected[code], code)
	}
	fmt.Fprintf(w, "notes:    %d\n", res.Notes)
	fmt.Fprintf(w, "elapsed:  %s\n", res.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "dials:    %d (%d failed)\n", res.Pool.Dials, res.Pool.DialFailures)
	fmt.Fprintf(w, "circuit:  %s\n", res.Breaker.State)
}

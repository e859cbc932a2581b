// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/absmach/bboard"
	"github.com/absmach/bboard/pkg/board"
	"github.com/absmach/bboard/pkg/handler"
	"github.com/absmach/bboard/pkg/health"
	"github.com/absmach/bboard/pkg/metrics"
	"github.com/absmach/bboard/pkg/parser"
	"github.com/absmach/bboard/pkg/ratelimit"
	"github.com/absmach/bboard/pkg/server/tcp"
	"github.com/absmach/bboard/pkg/server/ws"
	"github.com/absmach/bboard/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	configFile string
	envFile    string
)

var serveCmd = &cobra.Command{
	Use:   "serve [port board_w board_h note_w note_h color...]",
	Short: "Run the bulletin board server",
	Long: `Run the bulletin board server.

Configuration is read from built-in defaults, then --config (TOML or YAML),
then BBOARD_* environment variables (with --env-file underneath), then the
positional arguments, which set the port, board size, note size and colors.`,
	Example: `  bboard serve 4554 200 100 20 10 red white green yellow
  BBOARD_MAX_CONNECTIONS=64 bboard serve --config bboard.toml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := bboard.Load(bboard.Source{
			File:   configFile,
			DotEnv: envFile,
			Args:   args,
		})
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
		if verbose {
			logger = setupLogger("debug", cfg.LogFormat)
		}
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "", "Config file (.toml, .yaml or .yml)")
	serveCmd.Flags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file")
}

// serve runs the TCP, WebSocket and admin servers until ctx is cancelled or
// one of them fails.
func serve(ctx context.Context, cfg bboard.Config, logger *slog.Logger) error {
	b, err := board.New(cfg.Board())
	if err != nil {
		return err
	}
	dispatcher := parser.NewDispatcher(b)

	logger.Info("Starting bulletin board",
		slog.String("address", cfg.Address),
		slog.Int("board_width", cfg.BoardWidth),
		slog.Int("board_height", cfg.BoardHeight),
		slog.Int("note_width", cfg.NoteWidth),
		slog.Int("note_height", cfg.NoteHeight),
		slog.Any("colors", cfg.Colors),
		slog.Int("max_connections", cfg.MaxConnections))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New("bboard", reg)
	if err := m.RegisterBoard(b); err != nil {
		return fmt.Errorf("failed to register board metrics: %w", err)
	}

	h := buildHandler(cfg, m, logger)
	defer h.close()

	sessCfg := session.Config{
		MaxLineLength: cfg.MaxLineLength,
		ReadTimeout:   cfg.ReadTimeout,
		WriteTimeout:  10 * time.Second,
		Logger:        logger,
	}

	tcpServer := tcp.New(tcp.Config{
		Address:         cfg.Address,
		ShutdownTimeout: cfg.ShutdownTimeout,
		MaxConnections:  cfg.MaxConnections,
		Session:         sessCfg,
		Logger:          logger,
		Metrics:         m,
	}, dispatcher, h)

	checker := health.NewChecker(5 * time.Second)
	checker.Register("board", health.BoardCheck(b))
	checker.RegisterOptional("tcp_capacity", health.CapacityCheck(tcpServer.Active, cfg.MaxConnections))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return tcpServer.Listen(ctx)
	})

	if cfg.WSAddress != "" {
		wsServer := ws.New(ws.Config{
			Address:         cfg.WSAddress,
			ShutdownTimeout: cfg.ShutdownTimeout,
			Session:         sessCfg,
			Logger:          logger,
			Metrics:         m,
		}, dispatcher, h)
		g.Go(func() error {
			return wsServer.Listen(ctx)
		})
	}

	if cfg.HTTPAddress != "" {
		g.Go(func() error {
			return runAdminServer(ctx, cfg.HTTPAddress, reg, checker, logger)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Shutdown error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("Graceful shutdown completed")
	return nil
}

type serverHandler struct {
	handler.Handler
	limiter *ratelimit.Limiter
}

func (h serverHandler) close() {
	if h.limiter != nil {
		h.limiter.Close()
	}
}

// buildHandler stacks logging, rate limiting and instrumentation.
func buildHandler(cfg bboard.Config, m *metrics.Metrics, logger *slog.Logger) serverHandler {
	var h handler.Handler = handler.NewLogging(logger)

	rl := &RateLimitedHandler{
		handler: h,
		metrics: m,
		logger:  logger,
	}
	if cfg.GlobalRateCapacity > 0 {
		rl.globalLimiter = ratelimit.NewTokenBucket(cfg.GlobalRateCapacity, cfg.GlobalRateRefill)
	}
	if cfg.RateLimitCapacity > 0 {
		rl.perClientLimiter = ratelimit.NewLimiter(ratelimit.Config{
			Capacity:   cfg.RateLimitCapacity,
			RefillRate: cfg.RateLimitRefill,
		})
	}
	if rl.globalLimiter != nil || rl.perClientLimiter != nil {
		h = rl
	}

	return serverHandler{
		Handler: &InstrumentedHandler{handler: h, metrics: m},
		limiter: rl.perClientLimiter,
	}
}

// runAdminServer serves /metrics and the health probes.
func runAdminServer(ctx context.Context, addr string, reg *prometheus.Registry, checker *health.Checker, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	checker.Mount(mux)

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("Starting admin server", slog.String("address", addr))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("admin server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

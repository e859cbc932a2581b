// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Prometheus instrumentation for bboard.
package metrics

import (
	"time"

	"github.com/absmach/bboard/pkg/board"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for bboard.
type Metrics struct {
	// Connection metrics
	ActiveConnections   *prometheus.GaugeVec
	TotalConnections    *prometheus.CounterVec
	RejectedConnections *prometheus.CounterVec
	ConnectionDuration  *prometheus.HistogramVec

	// Command metrics
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	// Rate limiter metrics
	RateLimitedConnections *prometheus.CounterVec

	namespace string
	reg       prometheus.Registerer
}

// New creates a new Metrics instance registered with reg. A nil reg means
// prometheus.DefaultRegisterer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "bboard"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		namespace: namespace,
		reg:       reg,
		ActiveConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_connections",
				Help:      "Number of currently active connections",
			},
			[]string{"transport"},
		),
		TotalConnections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_total",
				Help:      "Total number of served connections",
			},
			[]string{"transport", "status"},
		),
		RejectedConnections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejected_connections_total",
				Help:      "Total number of connections closed before a session started",
			},
			[]string{"transport", "reason"},
		),
		ConnectionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "connection_duration_seconds",
				Help:      "Connection duration in seconds",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 600},
			},
			[]string{"transport"},
		),
		CommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total number of processed command lines",
			},
			[]string{"command", "status"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Command parse and execution time in seconds",
				Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
			},
			[]string{"command"},
		),
		RateLimitedConnections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_connections_total",
				Help:      "Total number of connections refused by a rate limiter",
			},
			[]string{"transport", "limiter_type"},
		),
	}

	return m
}

// ObserveConnection tracks a connection lifecycle.
func (m *Metrics) ObserveConnection(transport string, f func() error) error {
	m.ActiveConnections.WithLabelValues(transport).Inc()
	defer m.ActiveConnections.WithLabelValues(transport).Dec()

	start := time.Now()
	defer func() {
		m.ConnectionDuration.WithLabelValues(transport).Observe(time.Since(start).Seconds())
	}()

	err := f()
	status := "success"
	if err != nil {
		status = "error"
	}
	m.TotalConnections.WithLabelValues(transport, status).Inc()

	return err
}

// ConnectionRejected counts a connection closed before its session started.
func (m *Metrics) ConnectionRejected(transport, reason string) {
	m.RejectedConnections.WithLabelValues(transport, reason).Inc()
}

// RateLimited counts a connection refused by the named limiter.
func (m *Metrics) RateLimited(transport, limiter string) {
	m.RateLimitedConnections.WithLabelValues(transport, limiter).Inc()
}

// ObserveCommand records one processed command line. An empty name is
// recorded as "unparsed".
func (m *Metrics) ObserveCommand(name, status string, d time.Duration) {
	if name == "" {
		name = "unparsed"
	}
	m.CommandsTotal.WithLabelValues(name, status).Inc()
	m.CommandDuration.WithLabelValues(name).Observe(d.Seconds())
}

// RegisterBoard exports the board's note and pin counts, read on each scrape.
func (m *Metrics) RegisterBoard(b *board.Board) error {
	return m.reg.Register(newBoardCollector(m.namespace, b))
}

type boardCollector struct {
	board       *board.Board
	notes       *prometheus.Desc
	pinnedNotes *prometheus.Desc
	pins        *prometheus.Desc
}

func newBoardCollector(namespace string, b *board.Board) *boardCollector {
	return &boardCollector{
		board:       b,
		notes:       prometheus.NewDesc(prometheus.BuildFQName(namespace, "board", "notes"), "Number of notes on the board", nil, nil),
		pinnedNotes: prometheus.NewDesc(prometheus.BuildFQName(namespace, "board", "pinned_notes"), "Number of notes with at least one pin", nil, nil),
		pins:        prometheus.NewDesc(prometheus.BuildFQName(namespace, "board", "pins"), "Number of distinct pin coordinates", nil, nil),
	}
}

func (c *boardCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.notes
	ch <- c.pinnedNotes
	ch <- c.pins
}

func (c *boardCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.board.Stats()
	ch <- prometheus.MustNewConstMetric(c.notes, prometheus.GaugeValue, float64(st.Notes))
	ch <- prometheus.MustNewConstMetric(c.pinnedNotes, prometheus.GaugeValue, float64(st.PinnedNotes))
	ch <- prometheus.MustNewConstMetric(c.pins, prometheus.GaugeValue, float64(st.Pins))
}

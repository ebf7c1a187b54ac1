package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/asaldivar93/reactors-czlab/internal/commit"
	"github.com/asaldivar93/reactors-czlab/internal/metrics"
	"github.com/asaldivar93/reactors-czlab/internal/resolver"
	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

// maxLineSize bounds one JSON line.
const maxLineSize = 1 << 20

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Workers     int
	Queue       int
	MetricsAddr string

	// Now stamps lines without a timestamp. Defaults to time.Now.
	Now func() time.Time
}

// IngestLine is one JSON line read by the ingest command. Value is nil
// when the line carries no value field.
type IngestLine struct {
	Experiment  string           `json:"experiment"`
	Reactor     string           `json:"reactor"`
	Timestamp   time.Time        `json:"timestamp"`
	Model       string           `json:"model"`
	Value       *telemetry.Value `json:"value"`
	Units       string           `json:"units"`
	Calibration string           `json:"calibration,omitempty"`
}

// IngestSummary is the result of an ingest run.
type IngestSummary struct {
	Lines              int64 `json:"lines"`
	Committed          int64 `json:"committed"`
	Rejected           int64 `json:"rejected"`
	Malformed          int64 `json:"malformed"`
	ExperimentsCreated int64 `json:"experiments_created"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Commit a stream of JSON-line measurements",
		Long: `Read one measurement per line as JSON and commit them through a
bounded worker pool. Reads stdin when no file is given or the file is "-".

Line format:
  {"experiment":"exp-A","reactor":"R1","timestamp":"2024-01-02T03:04:05.678Z",
   "model":"analog","value":23.5,"units":"C","calibration":"cal-2024-01"}

A line without a timestamp is stamped with the time it is read. Rejected
lines are logged and counted; they never stop the stream. With
--metrics-addr, Prometheus metrics are served on /metrics while ingesting.

Exit codes:
  0 - every line committed
  1 - one or more lines were malformed or rejected
  2 - command error (bad config, database not reachable, etc.)

Examples:
  opc-bridge | reactorlog ingest --db ./reactors.db
  reactorlog ingest ./capture.jsonl --workers 8 --metrics-addr :9102`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return runIngest(opts, path, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "commit workers (default from config)")
	cmd.Flags().IntVar(&opts.Queue, "queue", 0, "queued measurements before reads block (default from config)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func runIngest(opts *IngestOptions, path string, cmd *cobra.Command) error {
	in := cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open input", err)
		}
		defer f.Close()
		in = f
	}

	env, err := OpenEnv(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer env.Close()
	logger := env.Logger

	workers, queue := env.Config.Ingest.Workers, env.Config.Ingest.Queue
	if opts.Workers > 0 {
		workers = opts.Workers
	}
	if opts.Queue > 0 {
		queue = opts.Queue
	}
	metricsAddr := env.Config.Ingest.MetricsAddr
	if opts.MetricsAddr != "" {
		metricsAddr = opts.MetricsAddr
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	m := metrics.New()
	var summary IngestSummary
	res := env.Resolver(resolver.WithCreateHook(func(telemetry.Experiment) {
		atomic.AddInt64(&summary.ExperimentsCreated, 1)
		m.ExperimentCreated()
	}))
	engine := commit.New(env.Registry, res, env.Store,
		commit.WithMetrics(m),
		commit.WithLogger(logger),
	)

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	if metricsAddr != "" {
		srv := serveMetrics(metricsAddr, m, logger)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown", "error", err)
			}
		}()
	}

	pool := commit.NewPool(ctx, engine, commit.PoolConfig{
		Workers:   workers,
		QueueSize: queue,
		Metrics:   m,
		Logger:    logger,
		OnResult: func(_ commit.Event, _ telemetry.CommitResult, err error) {
			if err != nil {
				atomic.AddInt64(&summary.Rejected, 1)
				return
			}
			atomic.AddInt64(&summary.Committed, 1)
		},
	})

	logger.Info("ingest starting", "input", path, "workers", workers, "queue", queue)
	readErr := readLines(ctx, in, func(n int64, line []byte) error {
		summary.Lines = n
		var l IngestLine
		if err := json.Unmarshal(line, &l); err != nil {
			summary.Malformed++
			logger.Warn("malformed line", "line", n, "error", err)
			return nil
		}
		if l.Value == nil {
			summary.Malformed++
			logger.Warn("malformed line", "line", n, "error", "value is missing")
			return nil
		}
		if l.Timestamp.IsZero() {
			l.Timestamp = now()
		}
		return pool.Submit(ctx, commit.Event{
			Experiment: l.Experiment,
			Reactor:    l.Reactor,
			Timestamp:  l.Timestamp,
			Measurement: telemetry.Measurement{
				Model:       l.Model,
				Value:       *l.Value,
				Units:       l.Units,
				Calibration: l.Calibration,
			},
		})
	})
	pool.Close()

	if readErr != nil && !errors.Is(readErr, context.Canceled) {
		return WrapExitError(ExitCommandError, "failed to read input", readErr)
	}
	logger.Info("ingest stopped",
		"lines", summary.Lines,
		"committed", summary.Committed,
		"rejected", summary.Rejected,
		"malformed", summary.Malformed,
	)

	out := opts.formatter(cmd)
	if opts.Format == "json" {
		if err := out.Success(summary); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%d lines: %d committed, %d rejected, %d malformed, %d experiments created\n",
			summary.Lines, summary.Committed, summary.Rejected, summary.Malformed, summary.ExperimentsCreated)
	}

	if failed := summary.Rejected + summary.Malformed; failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d line(s) not committed", failed))
	}
	return nil
}

// readLines calls fn for every non-empty line of r, numbering lines from 1.
// Reading happens on its own goroutine so a blocked read does not delay
// cancellation.
func readLines(ctx context.Context, r io.Reader, fn func(n int64, line []byte) error) error {
	type item struct {
		line []byte
		err  error
	}
	lines := make(chan item)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- item{line: line}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case lines <- item{err: err}:
			case <-ctx.Done():
			}
		}
	}()

	var n int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case it, ok := <-lines:
			if !ok {
				return nil
			}
			if it.err != nil {
				return it.err
			}
			n++
			if len(bytes.TrimSpace(it.line)) == 0 {
				continue
			}
			if err := fn(n, it.line); err != nil {
				return err
			}
		}
	}
}

// serveMetrics starts an HTTP server exposing m on /metrics.
func serveMetrics(addr string, m *metrics.Metrics, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}

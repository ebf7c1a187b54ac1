package commit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/asaldivar93/reactors-czlab/internal/metrics"
	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("commit pool is closed")

// Default pool sizing.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 1024
)

// Event is one measurement waiting to be committed.
type Event struct {
	Experiment  string
	Reactor     string
	Timestamp   time.Time
	Measurement telemetry.Measurement
}

// ResultFunc receives the outcome of every event. It is called from worker
// goroutines and must be safe for concurrent use.
type ResultFunc func(Event, telemetry.CommitResult, error)

// PoolConfig sizes a Pool. Zero values select the defaults.
type PoolConfig struct {
	Workers   int
	QueueSize int
	OnResult  ResultFunc
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Pool commits events on a fixed number of workers fed by a bounded queue.
//
// Thread-safety model:
//   - Submit(): safe from any goroutine; blocks only while the queue is full
//   - Close(): safe to call more than once; waits for queued events
type Pool struct {
	committer Committer
	ctx       context.Context
	events    chan Event
	onResult  ResultFunc
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool starts cfg.Workers workers committing through c. ctx is passed to
// every commit; once it is done, queued events fail with the context error
// without touching storage.
func NewPool(ctx context.Context, c Committer, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	p := &Pool{
		committer: c,
		ctx:       ctx,
		events:    make(chan Event, cfg.QueueSize),
		onResult:  cfg.OnResult,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker()
	}
	return p
}

// Submit queues ev. It blocks while the queue is full, returning ctx.Err()
// if ctx is done first.
func (p *Pool) Submit(ctx context.Context, ev Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.events <- ev:
		p.metrics.SetQueueDepth(len(p.events))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of queued events.
func (p *Pool) Len() int {
	return len(p.events)
}

// Close stops accepting events, lets the workers drain the queue, and waits
// for them to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for ev := range p.events {
		p.metrics.SetQueueDepth(len(p.events))
		res, err := p.committer.Commit(p.ctx, ev.Reactor, ev.Experiment, ev.Timestamp, ev.Measurement)
		if err != nil {
			p.logger.Error("commit failed",
				"error", err,
				"experiment", ev.Experiment,
				"reactor", ev.Reactor,
				"model", ev.Measurement.Model,
				"timestamp", ev.Timestamp,
			)
		}
		if p.onResult != nil {
			p.onResult(ev, res, err)
		}
	}
}

package resolver

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"

	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

// Store is the storage the resolver needs. *store.Store implements it.
type Store interface {
	CreateExperimentIfAbsent(ctx context.Context, e telemetry.Experiment) (telemetry.Experiment, bool, error)
}

// Clock supplies the wall time stamped on created experiments.
type Clock interface {
	Now() time.Time
}

// RunIDGenerator produces the run id recorded on experiments this process
// creates. Implemented by UUIDv7Generator and testutil.FixedRunID.
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run ids.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Info is what configuration knows about an experiment before its first
// measurement arrives.
type Info struct {
	Reactors []string
	Volume   *float64
}

// Resolver caches experiment name → id for the lifetime of a run.
//
// Thread-safety: Resolve is safe for concurrent use.
type Resolver struct {
	store    Store
	clock    Clock
	runID    string
	info     map[string]Info
	logger   *slog.Logger
	onCreate func(telemetry.Experiment)

	group   singleflight.Group
	mu      sync.RWMutex
	cache   map[string]int64
	created atomic.Int64
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock sets the clock used for created_at and the run date.
func WithClock(c Clock) Option {
	return func(r *Resolver) { r.clock = c }
}

// WithRunIDGenerator sets the generator for this run's id.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(r *Resolver) { r.runID = g.Generate() }
}

// WithInfo supplies per-experiment reactor sets and volumes keyed by name.
func WithInfo(info map[string]Info) Option {
	return func(r *Resolver) {
		for name, i := range info {
			r.info[Normalize(name)] = i
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithCreateHook registers a callback invoked once per experiment row this
// resolver inserts.
func WithCreateHook(fn func(telemetry.Experiment)) Option {
	return func(r *Resolver) { r.onCreate = fn }
}

// New creates a resolver over s.
func New(s Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:  s,
		clock:  systemClock{},
		info:   make(map[string]Info),
		logger: slog.Default(),
		cache:  make(map[string]int64),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		r.runID = UUIDv7Generator{}.Generate()
	}
	return r
}

// Normalize returns the canonical form of an experiment name: NFC with
// surrounding whitespace removed.
func Normalize(name string) string {
	return strings.TrimSpace(norm.NFC.String(name))
}

// Resolve returns the id of the named experiment, creating the row on the
// first call of this run. reactor seeds the reactor set when configuration
// does not provide one.
func (r *Resolver) Resolve(ctx context.Context, name, reactor string) (int64, error) {
	key := Normalize(name)
	if key == "" {
		return 0, telemetry.NewInvalid("experiment name is empty")
	}
	if id, ok := r.Cached(key); ok {
		return id, nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		// another flight may have finished between the cache check and Do
		if id, ok := r.Cached(key); ok {
			return id, nil
		}
		return r.create(ctx, key, reactor)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (r *Resolver) create(ctx context.Context, name, reactor string) (int64, error) {
	now := r.clock.Now()
	e := telemetry.Experiment{
		Name:      name,
		RunDate:   telemetry.RunDate(now),
		CreatedAt: telemetry.Truncate(now),
		RunID:     r.runID,
	}
	if i, ok := r.info[name]; ok {
		e.Reactors = append([]string(nil), i.Reactors...)
		e.Volume = i.Volume
	}
	if len(e.Reactors) == 0 && strings.TrimSpace(reactor) != "" {
		e.Reactors = []string{strings.TrimSpace(reactor)}
	}

	stored, inserted, err := r.store.CreateExperimentIfAbsent(ctx, e)
	if err != nil {
		var te *telemetry.Error
		if !errors.As(err, &te) {
			err = telemetry.NewPersistence("resolve experiment", err)
		}
		r.logger.Warn("experiment resolution failed", "experiment", name, "error", err)
		return 0, err
	}

	r.mu.Lock()
	r.cache[name] = stored.ID
	r.mu.Unlock()

	if inserted {
		r.created.Add(1)
		r.logger.Info("experiment created",
			"experiment", name,
			"id", stored.ID,
			"run_date", stored.RunDate,
			"run_id", stored.RunID,
		)
		if r.onCreate != nil {
			r.onCreate(stored)
		}
	} else {
		r.logger.Debug("experiment resolved", "experiment", name, "id", stored.ID, "run_date", stored.RunDate)
	}
	return stored.ID, nil
}

// Cached returns the cached id for name without touching storage.
func (r *Resolver) Cached(name string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.cache[Normalize(name)]
	return id, ok
}

// Created returns how many experiment rows this resolver inserted.
func (r *Resolver) Created() int64 {
	return r.created.Load()
}

// RunID returns the id stamped on experiments created by this resolver.
func (r *Resolver) RunID() string {
	return r.runID
}

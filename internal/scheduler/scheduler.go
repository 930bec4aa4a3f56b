// Package scheduler periodically queues every scope that is ready to be
// resolved but has no winner record yet.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/okian/poolscore/internal/adapters/mq/queue"
	"github.com/okian/poolscore/internal/domain/dedupe"
	"github.com/okian/poolscore/internal/domain/model"
	"github.com/okian/poolscore/pkg/logger"
	"github.com/okian/poolscore/pkg/metrics"
)

// DefaultSpec runs every five minutes, on the minute.
const DefaultSpec = "0 */5 * * * *"

// SourceCron tags jobs queued by the scheduler.
const SourceCron = "cron"

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("scheduler: already started")

// ScopeLister reports scopes awaiting resolution.
type ScopeLister interface {
	PendingScopes(ctx context.Context) ([]model.Scope, error)
}

// Enqueuer accepts jobs without blocking.
type Enqueuer interface {
	Enqueue(ctx context.Context, j queue.Job) bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSpec sets the cron expression (seconds field included).
func WithSpec(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.spec = spec
		}
	}
}

// WithDeduper keeps a scope from being queued again while a job for it is
// still pending.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Scheduler) { s.deduper = d }
}

// WithLogger sets the scheduler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// Scheduler ties a cron entry to PendingScopes.
type Scheduler struct {
	lister  ScopeLister
	queue   Enqueuer
	deduper dedupe.Deduper
	spec    string
	cron    *cron.Cron
	started bool
	logger  logger.Logger
}

// New creates a scheduler. Start must be called to begin ticking.
func New(lister ScopeLister, q Enqueuer, opts ...Option) *Scheduler {
	s := &Scheduler{
		lister: lister,
		queue:  q,
		spec:   DefaultSpec,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("scheduler")
	s.cron = cron.New(cron.WithSeconds())
	return s
}

// Spec returns the configured cron expression.
func (s *Scheduler) Spec() string { return s.spec }

// Start registers the job and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.started {
		return ErrAlreadyStarted
	}
	if _, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error(ctx, "scheduled run failed", logger.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.started = true
	s.logger.Info(ctx, "scheduler started", logger.String("spec", s.spec))
	return nil
}

// Stop stops the runner and waits for an in-flight run to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	if !s.started {
		return nil
	}
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// RunOnce queues every pending scope and returns how many were accepted.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	scopes, err := s.lister.PendingScopes(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending scopes: %w", err)
	}

	enqueued := 0
	for _, scope := range scopes {
		key := scope.Key()
		if s.deduper != nil && s.deduper.SeenAndRecord(ctx, key) {
			metrics.RecordJobDuplicate()
			continue
		}
		if !s.queue.Enqueue(ctx, queue.Job{Scope: scope, Source: SourceCron}) {
			if s.deduper != nil {
				s.deduper.Unrecord(ctx, key)
			}
			s.logger.Warn(ctx, "queue full, deferring remaining scopes",
				logger.String("scope", key),
				logger.Int("remaining", len(scopes)-enqueued))
			break
		}
		enqueued++
	}

	metrics.RecordSchedulerRun(enqueued)
	if enqueued > 0 {
		s.logger.Info(ctx, "scopes queued", logger.Int("count", enqueued), logger.Int("pending", len(scopes)))
	}
	return enqueued, nil
}

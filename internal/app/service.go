// Package service wires the resolver, its store and the background machinery
// into one runtime that the HTTP API and the CLI drive.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/okian/poolscore/internal/adapters/events"
	"github.com/okian/poolscore/internal/adapters/mq/queue"
	"github.com/okian/poolscore/internal/adapters/mq/worker"
	"github.com/okian/poolscore/internal/adapters/repository"
	"github.com/okian/poolscore/internal/domain/dedupe"
	"github.com/okian/poolscore/internal/domain/scoring"
	"github.com/okian/poolscore/internal/domain/winners"
	"github.com/okian/poolscore/internal/scheduler"
	"github.com/okian/poolscore/pkg/logger"
	"github.com/okian/poolscore/pkg/metrics"
)

const eventBuffer = 64

// ErrNotStarted is returned by operations that need a running service.
var ErrNotStarted = errors.New("service not started")

// Service owns every long-lived component.
type Service struct {
	mu sync.RWMutex

	store     repository.Store
	ownsStore bool
	resolver  *winners.Resolver
	deduper   dedupe.Deduper
	queue     *queue.InMemoryQueue
	pool      *worker.Pool
	scheduler *scheduler.Scheduler
	bus       *gochannel.GoChannel

	databaseURL        string
	workerCount        int
	queueSize          int
	dedupeSize         int
	scoringParallelism int
	resolveCron        string
	eventsEnabled      bool
	jobTimeout         time.Duration
	policy             winners.Policy

	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore uses an already opened store instead of database_url. The caller
// keeps ownership and closes it.
func WithStore(s repository.Store) Option {
	return func(svc *Service) { svc.store = s }
}

// WithDatabaseURL sets the store location opened on Start.
func WithDatabaseURL(url string) Option {
	return func(s *Service) {
		if url != "" {
			s.databaseURL = url
		}
	}
}

// WithWorkerCount sets the number of resolution workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize caps the pending-scope cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size >= 0 {
			s.dedupeSize = size
		}
	}
}

// WithScoringParallelism bounds concurrent participant scoring.
func WithScoringParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.scoringParallelism = n
		}
	}
}

// WithResolveCron sets the scheduler spec; empty disables the scheduler.
func WithResolveCron(spec string) Option {
	return func(s *Service) { s.resolveCron = spec }
}

// WithEvents toggles winner-resolved events.
func WithEvents(enabled bool) Option {
	return func(s *Service) { s.eventsEnabled = enabled }
}

// WithJobTimeout bounds one background resolution.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

// WithPolicy sets the tie-break and window policy.
func WithPolicy(p winners.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		databaseURL:        ":memory:",
		workerCount:        runtime.NumCPU(),
		queueSize:          1024,
		dedupeSize:         50_000,
		scoringParallelism: 8,
		resolveCron:        scheduler.DefaultSpec,
		eventsEnabled:      true,
		jobTimeout:         30 * time.Second,
		policy:             winners.DefaultPolicy(),
		logger:             logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store and starts workers, the scheduler and the event bus.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if err := s.policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	s.logger.Info(ctx, "starting pool scoring service...")

	if s.store == nil {
		store, err := Connect(ctx, s.databaseURL, s.logger)
		if err != nil {
			return err
		}
		s.store = store
		s.ownsStore = true
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	resolverOpts := []winners.Option{
		winners.WithPolicy(s.policy),
		winners.WithScorer(scoring.NewCalculator(scoring.WithParallelism(s.scoringParallelism))),
		winners.WithLogger(s.logger.Named("winners")),
	}
	if s.eventsEnabled {
		s.bus = events.NewGoChannel(eventBuffer, s.logger)
		pub := events.NewPublisher(s.bus, events.WithLogger(s.logger))
		resolverOpts = append(resolverOpts, winners.WithPublisher(pub))
		if err := s.announce(runCtx, pub.Topic()); err != nil {
			cancel()
			return err
		}
	}
	s.resolver = winners.NewResolver(s.store, resolverOpts...)

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s.resolver,
		worker.WithLogger(s.logger),
		worker.WithDeduper(s.deduper),
		worker.WithJobTimeout(s.jobTimeout),
	)
	s.pool.Start(runCtx)

	if s.resolveCron != "" {
		s.scheduler = scheduler.New(s.resolver, s.queue,
			scheduler.WithSpec(s.resolveCron),
			scheduler.WithDeduper(s.deduper),
			scheduler.WithLogger(s.logger),
		)
		if err := s.scheduler.Start(runCtx); err != nil {
			cancel()
			return err
		}
	}

	s.started = true
	s.logger.Info(ctx, "pool scoring service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("resolveCron", s.resolveCron),
		logger.Bool("events", s.eventsEnabled),
	)
	return nil
}

// announce logs every winner-resolved message; downstream notifiers
// subscribe to the same topic.
func (s *Service) announce(ctx context.Context, topic string) error {
	msgs, err := s.bus.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	log := s.logger.Named("announcer")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for msg := range msgs {
			s.handleAnnouncement(ctx, log, msg)
		}
	}()
	return nil
}

func (s *Service) handleAnnouncement(ctx context.Context, log logger.Logger, msg *message.Message) {
	defer msg.Ack()
	rec, err := events.Decode(msg)
	if err != nil {
		log.Warn(ctx, "undecodable winner event", logger.String("message_id", msg.UUID), logger.Error(err))
		return
	}
	log.Info(ctx, "winner announced",
		logger.String("pool", rec.PoolID),
		logger.String("scope", string(rec.ScopeType)+"/"+rec.ScopeID),
		logger.Strings("winners", rec.Winners))
}

// Stop drains the queue, stops background work and closes owned resources.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping pool scoring service...")

	var errs []error
	if s.scheduler != nil {
		errs = append(errs, s.scheduler.Stop(ctx))
	}
	errs = append(errs, s.pool.Shutdown(ctx))
	s.cancel()
	if s.bus != nil {
		errs = append(errs, s.bus.Close())
	}
	s.wg.Wait()
	if s.ownsStore {
		if closer, ok := s.store.(interface{ Close() error }); ok {
			errs = append(errs, closer.Close())
		}
		s.store = nil
	}

	s.started = false
	s.logger.Info(ctx, "pool scoring service stopped")
	return errors.Join(errs...)
}

// Resolver returns the winner service. It is nil before Start.
func (s *Service) Resolver() *winners.Resolver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolver
}

// Store returns the backing store. It is nil before Start.
func (s *Service) Store() repository.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// intake returns the deduper and queue of a running service.
func (s *Service) intake() (dedupe.Deduper, *queue.InMemoryQueue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, false
	}
	return s.deduper, s.queue, true
}

// SeenAndRecord marks a scope key as pending. It reports true when the key
// was already pending. Nothing is recorded while the service is stopped.
func (s *Service) SeenAndRecord(ctx context.Context, key string) bool {
	d, _, ok := s.intake()
	if !ok {
		return false
	}
	seen := d.SeenAndRecord(ctx, key)
	if seen {
		metrics.RecordJobDuplicate()
	}
	return seen
}

// Unrecord clears a pending scope key.
func (s *Service) Unrecord(ctx context.Context, key string) {
	if d, _, ok := s.intake(); ok {
		d.Unrecord(ctx, key)
	}
}

// Enqueue submits a job to the worker pool. Returns false on backpressure
// and while the service is stopped.
func (s *Service) Enqueue(ctx context.Context, j queue.Job) bool {
	_, q, ok := s.intake()
	if !ok {
		s.logger.Debug(ctx, "job rejected, service not started", logger.String("scope", j.Scope.Key()))
		return false
	}
	if !q.Enqueue(ctx, j) {
		s.logger.Debug(ctx, "job rejected", logger.String("scope", j.Scope.Key()))
		return false
	}
	return true
}

// Ping checks the store when it supports it.
func (s *Service) Ping(ctx context.Context) error {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()
	if store == nil {
		return ErrNotStarted
	}
	if p, ok := store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// RunScheduler runs one scheduling pass immediately.
func (s *Service) RunScheduler(ctx context.Context) (int, error) {
	s.mu.RLock()
	sch := s.scheduler
	s.mu.RUnlock()
	if sch == nil {
		return 0, ErrNotStarted
	}
	return sch.RunOnce(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"resolveCron": s.resolveCron,
		"events":      s.eventsEnabled,
	}
	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["pendingScopes"] = s.deduper.Size()
		metrics.UpdateQueueSize(queueLen)
	}
	return stats
}

// Connect opens the store at url, migrates it and wraps it.
func Connect(ctx context.Context, url string, l logger.Logger) (*repository.GormStore, error) {
	db, err := repository.Open(url, repository.WithLogger(l))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	store := repository.NewGormStore(db)
	if err := repository.Migrate(ctx, db); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return store, nil
}

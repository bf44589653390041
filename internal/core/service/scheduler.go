package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	core "github.com/IAM-NET-GmbH/fileserver-sub001/internal/core/domain/models"
	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/core/domain/ports"
	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/database"
)

const (
	defaultTick         = 30 * time.Second
	defaultCheckTimeout = 20 * time.Minute
	defaultMaxChecks    = 2
)

// SchedulerOptions tune the dispatch loop. Zero values fall back to
// defaults.
type SchedulerOptions struct {
	// Tick is the cadence of the scheduling pass.
	Tick time.Duration
	// CheckTimeout is the hard budget for one check, acquisition included.
	// Generous, because authenticated portal flows are slow.
	CheckTimeout time.Duration
	// MaxConcurrentChecks bounds concurrently executing adapter
	// invocations across all providers.
	MaxConcurrentChecks int
}

// Scheduler decides which providers are due, dispatches at most one check
// per provider at a time and bounds global concurrency with a weighted
// semaphore. It owns its own lifecycle; construct one per process (or per
// test) and Start it.
type Scheduler struct {
	providers database.ProviderRepository
	state     *StateMachine
	ingest    *IngestService
	factory   ports.AdapterFactory
	notifier  ports.Notifier
	sem       *semaphore.Weighted

	tick         time.Duration
	checkTimeout time.Duration
	now          func() time.Time
	log          *slog.Logger

	mu       sync.Mutex
	inflight map[string]*inflightCheck
	runCtx   context.Context

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// inflightCheck is shared by everyone interested in one provider's current
// run: the dispatching goroutine fills run and closes done.
type inflightCheck struct {
	done chan struct{}
	run  *core.CheckRun
}

func NewScheduler(
	providers database.ProviderRepository,
	state *StateMachine,
	ingest *IngestService,
	factory ports.AdapterFactory,
	notifier ports.Notifier,
	opts SchedulerOptions,
	log *slog.Logger,
) *Scheduler {
	if opts.Tick <= 0 {
		opts.Tick = defaultTick
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = defaultCheckTimeout
	}
	if opts.MaxConcurrentChecks <= 0 {
		opts.MaxConcurrentChecks = defaultMaxChecks
	}
	return &Scheduler{
		providers:    providers,
		state:        state,
		ingest:       ingest,
		factory:      factory,
		notifier:     notifier,
		sem:          semaphore.NewWeighted(int64(opts.MaxConcurrentChecks)),
		tick:         opts.Tick,
		checkTimeout: opts.CheckTimeout,
		now:          time.Now,
		log:          log,
		inflight:     make(map[string]*inflightCheck),
		runCtx:       context.Background(),
	}
}

// Start launches the timer-driven scheduling loop.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.runCtx = runCtx
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(runCtx)
	}()
}

// Stop halts scheduling and waits for in-flight checks to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.runDuePass(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDuePass(ctx)
		}
	}
}

// runDuePass dispatches a check for every enabled provider whose interval
// has elapsed (or which has never been checked). Intervals are decoded from
// the stored config on every pass, so config updates take effect without a
// restart.
func (s *Scheduler) runDuePass(ctx context.Context) {
	providers, err := s.providers.ListProviders(ctx)
	if err != nil {
		s.log.Error("scheduling pass failed to list providers", slog.Any("error", err))
		return
	}

	now := s.now()
	for _, p := range providers {
		if !p.Enabled {
			continue
		}
		cfg, err := p.DecodeConfig()
		if err != nil {
			s.log.Warn("skipping provider with invalid config", slog.String("provider", p.ID), slog.Any("error", err))
			continue
		}
		if p.LastCheck != nil && now.Sub(*p.LastCheck) < cfg.Interval() {
			continue
		}
		s.dispatch(ctx, p.ID)
	}
}

// CheckNow triggers a check for one provider and blocks until its outcome
// is available. If a check is already in flight the existing run's outcome
// is returned; a second concurrent run is never started.
func (s *Scheduler) CheckNow(ctx context.Context, providerID string) (*core.CheckRun, error) {
	p, err := s.providers.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if !p.Enabled {
		return nil, fmt.Errorf("provider %s is disabled", providerID)
	}

	s.mu.Lock()
	runCtx := s.runCtx
	s.mu.Unlock()

	inf, _ := s.dispatch(runCtx, providerID)
	select {
	case <-inf.done:
		return inf.run, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CheckAll dispatches a check for every enabled provider without waiting
// for outcomes. Per-provider exclusivity and the global bound still apply.
// Returns the number of providers dispatched or joined.
func (s *Scheduler) CheckAll(ctx context.Context) (int, error) {
	providers, err := s.providers.ListProviders(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	runCtx := s.runCtx
	s.mu.Unlock()

	n := 0
	for _, p := range providers {
		if !p.Enabled {
			continue
		}
		s.dispatch(runCtx, p.ID)
		n++
	}
	return n, nil
}

// dispatch returns the provider's in-flight check, starting one if none is
// outstanding. The boolean reports whether a new check was started.
func (s *Scheduler) dispatch(ctx context.Context, providerID string) (*inflightCheck, bool) {
	s.mu.Lock()
	if inf, ok := s.inflight[providerID]; ok {
		s.mu.Unlock()
		return inf, false
	}
	inf := &inflightCheck{
		done: make(chan struct{}),
		run:  &core.CheckRun{ProviderID: providerID, StartedAt: s.now()},
	}
	s.inflight[providerID] = inf
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, providerID)
			s.mu.Unlock()
			close(inf.done)
		}()
		s.execute(ctx, inf.run)
	}()
	return inf, true
}

// execute runs one check end to end: state transition, semaphore
// acquisition, adapter invocation, ingestion and outcome handling. The
// semaphore slot is released unconditionally. Failures never propagate: they
// become the run's failure outcome.
func (s *Scheduler) execute(ctx context.Context, run *core.CheckRun) {
	p, err := s.state.StartCheck(ctx, run.ProviderID)
	if err != nil {
		// Raced with a disable or a concurrent transition; nothing started.
		s.log.Warn("check not started", slog.String("provider", run.ProviderID), slog.Any("error", err))
		run.FinishedAt = s.now()
		run.Outcome = core.OutcomeFailure
		run.Err = core.ClassifyCheckError(err)
		return
	}

	adapter, err := s.factory.AdapterFor(p)
	if err != nil {
		s.fail(ctx, run, err)
		return
	}

	cctx, cancel := context.WithTimeout(ctx, s.checkTimeout)
	defer cancel()

	if err := s.sem.Acquire(cctx, 1); err != nil {
		s.fail(ctx, run, err)
		return
	}
	defer s.sem.Release(1)

	s.log.Info("check started", slog.String("provider", p.ID), slog.String("type", string(p.Type)))

	sess, err := adapter.Authenticate(cctx)
	if err != nil {
		// No partial ingestion from an unauthenticated state.
		s.fail(ctx, run, err)
		return
	}

	disc, derr := adapter.Discover(cctx, sess)

	// Ingest whatever was successfully discovered before any failure. A
	// failed authentication never reaches this point, so a failed run can
	// only commit items the source actually yielded.
	if disc != nil {
		run.UnreadableFiles = disc.Unreadable
		if err := s.ingest.Reconcile(ctx, p.ID, disc.Candidates, run); err != nil {
			s.log.Error("ingestion failed", slog.String("provider", p.ID), slog.Any("error", err))
		}
		run.EmptyPages = p.Type == core.TypePortal && len(disc.Candidates) == 0
	}

	run.FinishedAt = s.now()

	if derr != nil {
		s.fail(ctx, run, derr)
		return
	}

	run.Outcome = core.OutcomeSuccess
	if run.UnreadableFiles > 0 {
		run.Outcome = core.OutcomePartial
	}
	if err := s.state.CheckSucceeded(ctx, run); err != nil {
		s.log.Error("failed to record check success", slog.String("provider", p.ID), slog.Any("error", err))
	}
	s.notifyItems(ctx, run)
	s.log.Info("check finished",
		slog.String("provider", p.ID),
		slog.String("outcome", string(run.Outcome)),
		slog.Int("new", run.NewItems),
		slog.Int("changed", run.ChangedItems))
}

func (s *Scheduler) fail(ctx context.Context, run *core.CheckRun, err error) {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = s.now()
	}
	run.Outcome = core.OutcomeFailure
	run.Err = core.ClassifyCheckError(err)
	if serr := s.state.CheckFailed(ctx, run); serr != nil {
		s.log.Error("failed to record check failure", slog.String("provider", run.ProviderID), slog.Any("error", serr))
	}
	s.notifyItems(ctx, run)
	s.log.Warn("check failed",
		slog.String("provider", run.ProviderID),
		slog.String("kind", string(run.Err.Kind)),
		slog.Any("error", run.Err.Err))
}

func (s *Scheduler) notifyItems(ctx context.Context, run *core.CheckRun) {
	if s.notifier == nil || run.NewItems == 0 {
		return
	}
	s.notifier.Notify(ctx, core.Event{
		Type:       core.EventItemsIngested,
		ProviderID: run.ProviderID,
		NewItems:   run.NewItems,
		At:         s.now(),
	})
}

// Package orchestrator fans a batch run out over source adapters and funnels
// candidates through normalization, dedup, and persistence.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/surfacehub/contractor-aggregator/internal/adapter"
	"github.com/surfacehub/contractor-aggregator/internal/contractor"
	"github.com/surfacehub/contractor-aggregator/internal/dedupe"
	"github.com/surfacehub/contractor-aggregator/internal/metrics"
	"github.com/surfacehub/contractor-aggregator/internal/registry"
)

// Config controls batch execution.
type Config struct {
	// Workers bounds parallel source runs; each browser-bound worker holds an
	// expensive session while it runs, so keep this small.
	Workers int
	// DefaultTimeout applies when the caller passes none.
	DefaultTimeout time.Duration
	// SampleSize caps the canonical records echoed back to the trigger caller.
	SampleSize int
	// EventTopic, when set, receives a completion event per batch.
	EventTopic string
}

// Orchestrator executes batch scrape runs.
type Orchestrator struct {
	registry  *registry.Registry
	pool      contractor.SessionPool
	store     contractor.ContractorStore
	runStore  contractor.RunStore
	sink      contractor.CandidateSink
	publisher contractor.EventPublisher
	clock     contractor.Clock
	idGen     contractor.IDGenerator
	dedupeCfg dedupe.Config
	adapters  adapter.Deps
	cfg       Config
	logger    *zap.Logger
}

// New constructs an Orchestrator.
func New(
	reg *registry.Registry,
	pool contractor.SessionPool,
	store contractor.ContractorStore,
	runStore contractor.RunStore,
	sink contractor.CandidateSink,
	publisher contractor.EventPublisher,
	clock contractor.Clock,
	idGen contractor.IDGenerator,
	dedupeCfg dedupe.Config,
	adapters adapter.Deps,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 10 * time.Minute
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = 5
	}
	return &Orchestrator{
		registry:  reg,
		pool:      pool,
		store:     store,
		runStore:  runStore,
		sink:      sink,
		publisher: publisher,
		clock:     clock,
		idGen:     idGen,
		dedupeCfg: dedupeCfg,
		adapters:  adapters,
		cfg:       cfg,
		logger:    logger,
	}
}

// BatchResult is what RunBatch hands back to the trigger layer.
type BatchResult struct {
	Run           contractor.Run
	SampleRecords []contractor.CanonicalContractor
}

// RunBatch resolves the category, fans out one task per source under the
// worker pool and per-source throttle, and pipes every candidate through
// normalize -> merge -> persist. It fails outright only on an invalid
// category; anything else yields a best-effort partial result with stats and
// a per-source error list.
func (o *Orchestrator) RunBatch(
	ctx context.Context,
	category contractor.Category,
	locationFilter string,
	timeout time.Duration,
) (BatchResult, error) {
	sources, err := o.registry.SourcesFor(category)
	if err != nil {
		return BatchResult{}, err
	}
	if timeout <= 0 {
		timeout = o.cfg.DefaultTimeout
	}

	runID, err := o.idGen.NewID()
	if err != nil {
		return BatchResult{}, fmt.Errorf("generate run id: %w", err)
	}
	run := contractor.Run{
		ID:             runID,
		Category:       category,
		LocationFilter: locationFilter,
		Status:         contractor.RunStatusRunning,
		Started:        o.clock.Now(),
	}
	if err := o.runStore.CreateRun(ctx, run); err != nil {
		o.logger.Warn("create run record failed", zap.String("run_id", runID), zap.Error(err))
	}

	batchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	state := newBatchState(runID, o.cfg.SampleSize)
	merger := dedupe.NewMerger(o.store, o.clock, o.idGen, o.dedupeCfg, o.logger)
	throttle := NewThrottle(sources)
	loc := contractor.ParseLocationFilter(locationFilter)

	tasks := make(chan contractor.SourceDescriptor)
	var wg sync.WaitGroup
	workers := o.cfg.Workers
	if workers > len(sources) {
		workers = len(sources)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for desc := range tasks {
				o.runSource(batchCtx, desc, loc, throttle, merger, state)
			}
		}()
	}
	for _, desc := range sources {
		tasks <- desc
	}
	close(tasks)
	wg.Wait()

	run = o.finalize(ctx, run, state, batchCtx.Err() != nil)
	return BatchResult{Run: run, SampleRecords: state.samples()}, nil
}

// runSource executes one source end to end. Candidates extracted before a
// mid-run failure are still normalized and merged; the failure is recorded
// against the source either way.
func (o *Orchestrator) runSource(
	ctx context.Context,
	desc contractor.SourceDescriptor,
	loc contractor.LocationFilter,
	throttle contractor.Throttle,
	merger *dedupe.Merger,
	state *batchState,
) {
	state.sourceAttempted()
	logger := o.logger.With(zap.String("run_id", state.runID), zap.String("source", desc.ID))

	a, err := adapter.ForDescriptor(desc, o.adapters)
	if err != nil {
		state.sourceFailed(desc.ID, err)
		logger.Error("adapter construction failed", zap.Error(err))
		return
	}

	var session contractor.Session
	if desc.Locator.NeedsBrowser() {
		session, err = o.pool.Acquire(ctx)
		if err != nil {
			o.recordSourceError(state, desc.ID, err, logger)
			return
		}
		defer o.pool.Release(session)
	}

	candidates, runErr := a.Run(ctx, session, loc, throttle)
	if len(candidates) == 0 && runErr == nil {
		logger.Info("source yielded no candidates")
	}
	o.processCandidates(ctx, desc, candidates, merger, state, logger)

	if runErr != nil {
		o.recordSourceError(state, desc.ID, runErr, logger)
	}
}

func (o *Orchestrator) recordSourceError(state *batchState, sourceID string, err error, logger *zap.Logger) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		err = fmt.Errorf("%w: %v", contractor.ErrAborted, err)
	}
	kind := contractor.Classify(err)
	metrics.ObserveSourceFailure(sourceID, string(kind))
	if kind == contractor.KindAborted {
		state.sourceAborted(sourceID, err)
		logger.Warn("source aborted by deadline", zap.Error(err))
		return
	}
	state.sourceFailed(sourceID, err)
	logger.Error("source failed", zap.String("kind", string(kind)), zap.Error(err))
}

func (o *Orchestrator) processCandidates(
	ctx context.Context,
	desc contractor.SourceDescriptor,
	candidates []contractor.CandidateRecord,
	merger *dedupe.Merger,
	state *batchState,
	logger *zap.Logger,
) {
	for _, raw := range candidates {
		state.candidateSeen()
		metrics.ObserveCandidate(desc.ID)
		if o.sink != nil {
			if err := o.sink.Record(ctx, state.runID, raw); err != nil {
				logger.Warn("audit sink write failed", zap.Error(err))
			}
		}

		nf, err := normalizeCandidate(raw, desc.Category)
		if err != nil {
			state.recordSkipped()
			logger.Debug("candidate rejected",
				zap.String("business_name", raw.BusinessName),
				zap.Error(err),
			)
			continue
		}

		canonical, merged, err := merger.MergeOrCreate(ctx, nf)
		if err != nil {
			state.recordSkipped()
			if errors.Is(err, contractor.ErrStorageUnavailable) {
				logger.Warn("record dropped after storage retry", zap.Error(err))
			} else {
				logger.Error("merge failed", zap.Error(err))
			}
			continue
		}
		if merged {
			state.recordMerged()
			metrics.ObserveMerge(desc.ID)
		} else {
			state.recordCreated()
		}
		state.addSample(*canonical)
	}
}

func (o *Orchestrator) finalize(ctx context.Context, run contractor.Run, state *batchState, deadlineHit bool) contractor.Run {
	stats, sourceErrors := state.snapshot()
	run.Stats = stats
	run.Errors = sourceErrors
	switch {
	case deadlineHit:
		run.Status = contractor.RunStatusAborted
	case stats.SourcesFailed > 0:
		run.Status = contractor.RunStatusPartial
	default:
		run.Status = contractor.RunStatusSucceeded
	}
	now := o.clock.Now()
	run.Finished = &now
	metrics.ObserveRun(string(run.Status), now.Sub(run.Started))

	// Finalization uses the caller's context, not the expired batch context.
	if err := o.runStore.UpdateRun(ctx, run); err != nil {
		o.logger.Warn("update run record failed", zap.String("run_id", run.ID), zap.Error(err))
	}
	o.publishCompletion(ctx, run)

	o.logger.Info("batch finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("sources_attempted", stats.SourcesAttempted),
		zap.Int("sources_failed", stats.SourcesFailed),
		zap.Int("candidates_seen", stats.CandidatesSeen),
		zap.Int("records_created", stats.RecordsCreated),
		zap.Int("records_merged", stats.RecordsMerged),
		zap.Int("records_skipped", stats.RecordsSkipped),
	)
	return run
}

func (o *Orchestrator) publishCompletion(ctx context.Context, run contractor.Run) {
	if o.publisher == nil || o.cfg.EventTopic == "" {
		return
	}
	payload := map[string]any{
		"run_id":    run.ID,
		"category":  string(run.Category),
		"status":    string(run.Status),
		"stats":     run.Stats,
		"timestamp": o.clock.Now().Format(time.RFC3339),
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.EventTopic, payload); err != nil {
		o.logger.Warn("completion event publish failed", zap.String("run_id", run.ID), zap.Error(err))
	}
}

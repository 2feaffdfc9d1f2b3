// Package orchestrator moves crawl records from queued to completed by
// handing them to the indexing engine and polling until each document is
// searchable. A fixed-interval sweep also requeues completed records whose
// embeddings have gone stale.
package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sdavenport/webknowledge/internal/ingest"
	"github.com/sdavenport/webknowledge/internal/progress"
)

// Config controls Orchestrator behavior.
type Config struct {
	// TickInterval is the pause between sweeps (default 10m).
	TickInterval time.Duration
	// RecrawlInterval is the age at which a completed embedding is
	// considered stale and requeued (default 72h).
	RecrawlInterval time.Duration
	// PollInterval is the pause between readiness checks while the engine
	// processes a document (default 500ms).
	PollInterval time.Duration
	// PollTimeout bounds the total wait for one document; a record that is
	// not searchable within it is marked failed (default 10m).
	PollTimeout time.Duration
}

// Orchestrator runs the embedding side of the ingestion pipeline.
type Orchestrator struct {
	embedding atomic.Bool

	store  ingest.StatusStore
	index  ingest.Indexer
	clock  ingest.Clock
	hub    progress.Emitter
	logger *zap.Logger
	cfg    Config

	// sleep is swapped in tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New constructs an Orchestrator.
func New(
	store ingest.StatusStore,
	index ingest.Indexer,
	clock ingest.Clock,
	hub progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 10 * time.Minute
	}
	if cfg.RecrawlInterval <= 0 {
		cfg.RecrawlInterval = 72 * time.Hour
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:  store,
		index:  index,
		clock:  clock,
		hub:    hub,
		logger: logger,
		cfg:    cfg,
		sleep:  ctxSleep,
	}
}

// IsEmbedding reports whether an ingest sweep is currently in flight.
func (o *Orchestrator) IsEmbedding() bool {
	return o.embedding.Load()
}

// Run sweeps immediately on startup, then at every tick until the context
// finishes. Ticks are serialized on this goroutine.
func (o *Orchestrator) Run(ctx context.Context) {
	o.tick(ctx)
	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

// tick runs one recrawl sweep followed by one ingest sweep. Per-record
// failures are logged and must never abort the rest of the sweep.
func (o *Orchestrator) tick(ctx context.Context) {
	o.recrawlSweep(ctx)
	o.ingestSweep(ctx)
}

// recrawlSweep requeues completed records older than the recrawl interval so
// their content is fetched and embedded again.
func (o *Orchestrator) recrawlSweep(ctx context.Context) {
	cutoff := o.clock.Now().Add(-o.cfg.RecrawlInterval)
	stale, err := o.store.QueryStaleCompleted(ctx, cutoff)
	if err != nil {
		o.logger.Error("stale record query failed", zap.Error(err))
		return
	}
	for _, rec := range stale {
		if err := o.transition(ctx, rec, ingest.StatusQueued); err != nil {
			o.logger.Error("requeue failed", zap.String("url", rec.URL), zap.Error(err))
			continue
		}
		o.logger.Info("stale embedding requeued",
			zap.String("url", rec.URL), zap.String("owner", rec.OwnerID))
	}
}

// ingestSweep embeds every queued record and resumes polling for records the
// engine was still processing when a previous sweep ended.
func (o *Orchestrator) ingestSweep(ctx context.Context) {
	if !o.embedding.CompareAndSwap(false, true) {
		return
	}
	defer o.embedding.Store(false)

	queued, err := o.store.QueryByStatus(ctx, ingest.StatusQueued)
	if err != nil {
		o.logger.Error("queued record query failed", zap.Error(err))
		return
	}
	inFlight, err := o.store.QueryByStatus(ctx, ingest.StatusEmbedding)
	if err != nil {
		o.logger.Error("embedding record query failed", zap.Error(err))
		return
	}
	if len(queued) == 0 && len(inFlight) == 0 {
		return
	}

	o.emitState(progress.StateEmbedding)
	defer func() {
		o.emitState(progress.StateIdle)
		o.emitMessage("")
	}()

	for _, rec := range queued {
		if ctx.Err() != nil {
			return
		}
		if err := o.embed(ctx, rec); err != nil {
			// Shutdown is not a document failure: leave the record where it
			// is so the next sweep resumes it.
			if ctx.Err() != nil {
				return
			}
			o.fail(ctx, rec, err)
		}
	}
	for _, rec := range inFlight {
		if ctx.Err() != nil {
			return
		}
		if err := o.finish(ctx, rec); err != nil {
			if ctx.Err() != nil {
				return
			}
			o.fail(ctx, rec, err)
		}
	}
}

// embed hands one record to the engine and waits for it to become
// searchable. A stale copy of the document is removed first so a recrawl
// replaces rather than duplicates it.
func (o *Orchestrator) embed(ctx context.Context, rec ingest.Record) error {
	if err := o.index.DeleteDocument(ctx, rec.ID); err != nil {
		o.logger.Warn("stale document cleanup failed",
			zap.String("id", rec.ID), zap.Error(err))
	}

	o.emitMessage("Embedding in progress for: " + rec.URL)

	ownerTag := ingest.SanitizeOwnerTag(rec.OwnerID)
	if err := o.index.ImportDocument(ctx, rec.URL, rec.ID, ownerTag); err != nil {
		return fmt.Errorf("import document: %w", err)
	}
	if err := o.transition(ctx, rec, ingest.StatusEmbedding); err != nil {
		return err
	}
	rec.Status = ingest.StatusEmbedding
	return o.finish(ctx, rec)
}

// finish polls the engine until the record's document is searchable, then
// marks it completed. The wait is bounded by PollTimeout.
func (o *Orchestrator) finish(ctx context.Context, rec ingest.Record) error {
	ownerTag := ingest.SanitizeOwnerTag(rec.OwnerID)
	deadline := o.clock.Now().Add(o.cfg.PollTimeout)
	for {
		ready, err := o.index.IsReady(ctx, rec.ID, ownerTag)
		if err != nil {
			return fmt.Errorf("readiness check: %w", err)
		}
		if ready {
			break
		}
		if !o.clock.Now().Before(deadline) {
			return fmt.Errorf("document %s not searchable within %s", rec.ID, o.cfg.PollTimeout)
		}
		if err := o.sleep(ctx, o.cfg.PollInterval); err != nil {
			return err
		}
	}
	if err := o.transition(ctx, rec, ingest.StatusCompleted); err != nil {
		return err
	}
	o.logger.Info("document embedded",
		zap.String("url", rec.URL), zap.String("owner", rec.OwnerID))
	return nil
}

// fail marks a record terminally failed. The record stays visible to its
// owner; a fresh submission is required to try again.
func (o *Orchestrator) fail(ctx context.Context, rec ingest.Record, cause error) {
	o.logger.Error("embedding failed",
		zap.String("url", rec.URL), zap.String("owner", rec.OwnerID), zap.Error(cause))
	if err := o.transition(ctx, rec, ingest.StatusFailed); err != nil {
		o.logger.Error("failure transition not persisted",
			zap.String("id", rec.ID), zap.Error(err))
	}
}

// transition persists the record's new status and reports it on the hub.
func (o *Orchestrator) transition(ctx context.Context, rec ingest.Record, status ingest.Status) error {
	rec.Status = status
	rec.LastUpdate = o.clock.Now()
	if err := o.store.Update(ctx, rec); err != nil {
		return fmt.Errorf("update record %s: %w", rec.ID, err)
	}
	if o.hub != nil {
		o.hub.Emit(progress.Event{
			TS:     rec.LastUpdate,
			Kind:   progress.KindRecordStatus,
			Record: &rec,
		})
	}
	return nil
}

func (o *Orchestrator) emitState(state string) {
	if o.hub == nil {
		return
	}
	o.hub.Emit(progress.Event{TS: o.clock.Now(), Kind: progress.KindEmbedState, State: state})
}

func (o *Orchestrator) emitMessage(msg string) {
	if o.hub == nil {
		return
	}
	o.hub.Emit(progress.Event{TS: o.clock.Now(), Kind: progress.KindMessage, Message: msg})
}

// ctxSleep waits for the duration unless the context finishes first.
func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

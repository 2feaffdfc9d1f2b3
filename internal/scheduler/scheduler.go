// Package scheduler drives crawl requests from submission through discovery.
// A fixed-interval tick dequeues at most one request and runs it to
// completion, so there is never more than one crawl in flight per process.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sdavenport/webknowledge/internal/crawler"
	"github.com/sdavenport/webknowledge/internal/ingest"
	"github.com/sdavenport/webknowledge/internal/progress"
)

// Config controls Scheduler behavior.
type Config struct {
	// TickInterval is the pause between queue checks (default 5s).
	TickInterval time.Duration
	// MaxDepth is the traversal budget handed to the crawler (default 2).
	MaxDepth int
}

// Scheduler owns the submission queue and the single-flight crawl loop.
type Scheduler struct {
	mu    sync.Mutex
	queue []ingest.Request

	crawling atomic.Bool

	store   ingest.StatusStore
	crawler *crawler.Crawler
	idGen   ingest.IDGenerator
	clock   ingest.Clock
	hub     progress.Emitter
	logger  *zap.Logger
	cfg     Config
}

// New constructs a Scheduler.
func New(
	store ingest.StatusStore,
	cr *crawler.Crawler,
	idGen ingest.IDGenerator,
	clock ingest.Clock,
	hub progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 5 * time.Second
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		store:   store,
		crawler: cr,
		idGen:   idGen,
		clock:   clock,
		hub:     hub,
		logger:  logger,
		cfg:     cfg,
	}
}

// Submit normalizes the URL and enqueues a crawl request. Non-blocking; the
// request waits for the next tick.
func (s *Scheduler) Submit(rawURL, ownerID string) error {
	normalized, err := ingest.NormalizeURL(rawURL)
	if err != nil {
		return fmt.Errorf("submit url: %w", err)
	}
	s.mu.Lock()
	s.queue = append(s.queue, ingest.Request{URL: normalized, OwnerID: ownerID})
	s.mu.Unlock()
	s.logger.Debug("crawl request queued", zap.String("url", normalized), zap.String("owner", ownerID))
	return nil
}

// Cancel removes all queued requests matching the URL. Best-effort: an
// already-running crawl is unaffected.
func (s *Scheduler) Cancel(rawURL string) {
	normalized, err := ingest.NormalizeURL(rawURL)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.queue[:0]
	for _, req := range s.queue {
		if req.URL != normalized {
			kept = append(kept, req)
		}
	}
	s.queue = kept
}

// IsCrawling reports whether a crawl is currently in flight.
func (s *Scheduler) IsCrawling() bool {
	return s.crawling.Load()
}

// QueueLen returns the number of pending requests.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Run executes the tick loop until the context finishes. Ticks are
// serialized on this goroutine, so the crawling flag never races.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick dequeues one request and runs it to completion.
func (s *Scheduler) tick(ctx context.Context) {
	if s.crawling.Load() {
		return
	}
	req, ok := s.dequeue()
	if !ok {
		return
	}

	s.crawling.Store(true)
	s.emitState(progress.StateCrawling)
	defer func() {
		s.crawling.Store(false)
		s.emitState(progress.StateIdle)
	}()

	s.runRequest(ctx, req)
}

func (s *Scheduler) dequeue() (ingest.Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return ingest.Request{}, false
	}
	req := s.queue[0]
	s.queue = s.queue[1:]
	return req, true
}

func (s *Scheduler) runRequest(ctx context.Context, req ingest.Request) {
	seedID, err := s.registerRecord(ctx, req.URL, req.OwnerID, nil)
	if err != nil {
		if errors.Is(err, ingest.ErrDuplicate) {
			s.emitMessage(fmt.Sprintf("%s is already tracked for this user", req.URL))
			return
		}
		s.logger.Error("seed registration failed", zap.String("url", req.URL), zap.Error(err))
		return
	}

	discovered := s.crawler.Crawl(ctx, req.URL, s.cfg.MaxDepth)

	var added int
	for _, u := range discovered {
		if u == req.URL {
			continue
		}
		if _, err := s.registerRecord(ctx, u, req.OwnerID, &seedID); err != nil {
			if errors.Is(err, ingest.ErrDuplicate) {
				continue
			}
			s.logger.Error("child registration failed", zap.String("url", u), zap.Error(err))
			continue
		}
		added++
	}
	s.emitMessage(fmt.Sprintf("discovered %d new pages under %s", added, req.URL))
}

// registerRecord inserts a Queued record for the URL unless the owner
// already tracks it. The store's uniqueness constraint backs this
// check-then-insert against concurrent writers.
func (s *Scheduler) registerRecord(ctx context.Context, url, ownerID string, parentID *string) (string, error) {
	if _, err := s.store.FindActive(ctx, url, ownerID); err == nil {
		return "", ingest.ErrDuplicate
	} else if !errors.Is(err, ingest.ErrNotFound) {
		return "", fmt.Errorf("find active record: %w", err)
	}

	id, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate record id: %w", err)
	}
	rec := ingest.Record{
		ID:         id,
		ParentID:   parentID,
		URL:        url,
		OwnerID:    ownerID,
		Status:     ingest.StatusQueued,
		LastUpdate: s.clock.Now(),
		IsActive:   true,
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		return "", err
	}
	s.hub.Emit(progress.Event{
		TS:     s.clock.Now(),
		Kind:   progress.KindRecordStatus,
		Record: &rec,
	})
	return id, nil
}

func (s *Scheduler) emitState(state string) {
	s.hub.Emit(progress.Event{TS: s.clock.Now(), Kind: progress.KindCrawlState, State: state})
}

func (s *Scheduler) emitMessage(msg string) {
	s.hub.Emit(progress.Event{TS: s.clock.Now(), Kind: progress.KindMessage, Message: msg})
}

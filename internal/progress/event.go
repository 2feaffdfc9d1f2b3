// Package progress defines the event stream produced by the crawl scheduler
// and embedding orchestrator for UI and telemetry consumers.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/sdavenport/webknowledge/internal/ingest"
)

// Kind denotes the type of observation carried by an Event.
type Kind string

// Supported event kinds.
const (
	// KindCrawlState reports the scheduler flipping between idle and crawling.
	KindCrawlState Kind = "CRAWL_STATE"
	// KindEmbedState reports the orchestrator flipping between idle and embedding.
	KindEmbedState Kind = "EMBED_STATE"
	// KindRecordStatus reports a single record's lifecycle transition.
	KindRecordStatus Kind = "RECORD_STATUS"
	// KindMessage carries free-text progress for display.
	KindMessage Kind = "MESSAGE"
)

// Service states reported by KindCrawlState and KindEmbedState events.
const (
	StateIdle      = "idle"
	StateCrawling  = "crawling"
	StateEmbedding = "embedding"
)

// Event captures a single observable side effect of the ingestion pipeline.
type Event struct {
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Kind denotes what happened.
	Kind Kind
	// State carries the new service state for state-change events.
	State string
	// Record carries the full crawl record for KindRecordStatus.
	Record *ingest.Record
	// Message is free text for KindMessage (may be empty to clear a display).
	Message string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindCrawlState:
		if e.State != StateIdle && e.State != StateCrawling {
			return fmt.Errorf("invalid crawl state %q", e.State)
		}
	case KindEmbedState:
		if e.State != StateIdle && e.State != StateEmbedding {
			return fmt.Errorf("invalid embed state %q", e.State)
		}
	case KindRecordStatus:
		if e.Record == nil {
			return errors.New("record status event requires a record")
		}
	case KindMessage:
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}

package ingest

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("crawl record not found")

// ErrDuplicate signals that an active record already exists for the same
// (url, owner) pair. Callers should treat it as a no-op, not a failure.
var ErrDuplicate = errors.New("crawl record already active for url and owner")

// StatusStore persists crawl records. Implementations must enforce the
// (url, owner) uniqueness invariant among active records and provide
// read-your-writes consistency within a process.
type StatusStore interface {
	// FindActive returns the active record for the pair or ErrNotFound.
	FindActive(ctx context.Context, url, ownerID string) (Record, error)
	// Insert stores a new record, returning ErrDuplicate if an active record
	// already exists for the same (url, owner) pair.
	Insert(ctx context.Context, rec Record) error
	// Update rewrites the stored record identified by rec.ID.
	Update(ctx context.Context, rec Record) error
	// QueryByStatus returns all active records in the given status.
	QueryByStatus(ctx context.Context, status Status) ([]Record, error)
	// QueryStaleCompleted returns active completed records last updated
	// before the cutoff.
	QueryStaleCompleted(ctx context.Context, cutoff time.Time) ([]Record, error)
	// ListByOwner returns all active records submitted by one owner.
	ListByOwner(ctx context.Context, ownerID string) ([]Record, error)
	// Deactivate retains the record but excludes it from all processing.
	Deactivate(ctx context.Context, id string) error
	// Delete removes the record entirely. Reserved for records that were
	// never handed to the indexing engine.
	Delete(ctx context.Context, id string) error
}

// Indexer is the external indexing engine the orchestrator delegates to.
// Import is asynchronous: callers poll IsReady until the engine reports the
// document searchable.
type Indexer interface {
	ImportDocument(ctx context.Context, sourceURL, docID, ownerTag string) error
	IsReady(ctx context.Context, docID, ownerTag string) (bool, error)
	DeleteDocument(ctx context.Context, docID string) error
}

// Fetcher retrieves the HTML body of a URL. A non-HTML response yields an
// empty body with no error; network failures are returned to the caller.
type Fetcher interface {
	FetchHTML(ctx context.Context, url string) (string, error)
}

// LinkExtractor pulls same-host, fragment-free absolute links out of a
// fetched document.
type LinkExtractor interface {
	ExtractLinks(html, baseURL string) ([]string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

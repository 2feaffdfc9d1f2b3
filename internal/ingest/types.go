// Package ingest defines core types shared across the knowledge ingestion
// subsystems: crawl records, submission requests, and the interfaces the
// crawler, scheduler, and embedding orchestrator are wired through.
package ingest

import "time"

// Status represents the lifecycle state of a crawl record.
type Status string

// Record statuses persisted in the status store.
const (
	StatusQueued    Status = "queued"
	StatusCrawling  Status = "crawling"
	StatusEmbedding Status = "embedding"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is the persisted state of one discovered URL. Records form a forest:
// seeds have no parent, pages discovered during a seed's traversal point back
// at the seed. Inactive records are retained but excluded from all processing.
type Record struct {
	ID         string     `json:"id"`
	ParentID   *string    `json:"parent_id,omitempty"`
	URL        string     `json:"url"`
	OwnerID    string     `json:"owner_id"`
	Status     Status     `json:"status"`
	LastUpdate time.Time  `json:"last_update"`
	IsActive   bool       `json:"is_active"`
}

// Request is an in-memory crawl submission awaiting the scheduler's next
// tick. Requests are deliberately not persisted: queued Records are the
// durable backlog, the submission queue is a best-effort intake buffer.
type Request struct {
	URL     string `json:"url"`
	OwnerID string `json:"owner_id"`
}

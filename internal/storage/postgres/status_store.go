// Package postgres provides the Postgres-backed status store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sdavenport/webknowledge/internal/ingest"
)

// Schema for reference:
//
//	CREATE TABLE crawl_records (
//	    id          UUID PRIMARY KEY,
//	    parent_id   UUID NULL REFERENCES crawl_records(id),
//	    url         TEXT NOT NULL,
//	    owner_id    TEXT NOT NULL,
//	    status      TEXT NOT NULL,
//	    last_update TIMESTAMPTZ NOT NULL,
//	    is_active   BOOLEAN NOT NULL DEFAULT TRUE
//	);
//	CREATE UNIQUE INDEX crawl_records_active_url_owner
//	    ON crawl_records (url, owner_id) WHERE is_active;

// DB is the subset of pgxpool.Pool the store needs; pgxmock satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// StatusStore implements ingest.StatusStore on Postgres.
type StatusStore struct {
	db DB
}

// NewStatusStore connects a pool for the provided DSN.
func NewStatusStore(ctx context.Context, dsn string) (*StatusStore, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &StatusStore{db: pool}, pool, nil
}

// NewStatusStoreWithDB wraps an existing connection; used by tests.
func NewStatusStoreWithDB(db DB) *StatusStore {
	return &StatusStore{db: db}
}

const recordColumns = "id, parent_id, url, owner_id, status, last_update, is_active"

// FindActive returns the active record for the (url, owner) pair.
func (s *StatusStore) FindActive(ctx context.Context, url, ownerID string) (ingest.Record, error) {
	query := "SELECT " + recordColumns + " FROM crawl_records WHERE url = $1 AND owner_id = $2 AND is_active"
	rec, err := scanRecord(s.db.QueryRow(ctx, query, url, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ingest.Record{}, ingest.ErrNotFound
		}
		return ingest.Record{}, fmt.Errorf("find active record: %w", err)
	}
	return rec, nil
}

// Insert stores a new record. The partial unique index backs the
// (url, owner) invariant; a violation maps to ErrDuplicate.
func (s *StatusStore) Insert(ctx context.Context, rec ingest.Record) error {
	query := `INSERT INTO crawl_records (id, parent_id, url, owner_id, status, last_update, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.db.Exec(ctx, query,
		rec.ID, rec.ParentID, rec.URL, rec.OwnerID, string(rec.Status), rec.LastUpdate, rec.IsActive)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ingest.ErrDuplicate
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Update rewrites the mutable columns of the record.
func (s *StatusStore) Update(ctx context.Context, rec ingest.Record) error {
	query := `UPDATE crawl_records SET status = $1, last_update = $2, is_active = $3 WHERE id = $4`
	tag, err := s.db.Exec(ctx, query, string(rec.Status), rec.LastUpdate, rec.IsActive, rec.ID)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ingest.ErrNotFound
	}
	return nil
}

// QueryByStatus returns active records in the given status, oldest first.
func (s *StatusStore) QueryByStatus(ctx context.Context, status ingest.Status) ([]ingest.Record, error) {
	query := "SELECT " + recordColumns + " FROM crawl_records WHERE status = $1 AND is_active ORDER BY last_update"
	return s.queryRecords(ctx, query, string(status))
}

// QueryStaleCompleted returns active completed records last updated before
// the cutoff.
func (s *StatusStore) QueryStaleCompleted(ctx context.Context, cutoff time.Time) ([]ingest.Record, error) {
	query := "SELECT " + recordColumns +
		" FROM crawl_records WHERE status = $1 AND is_active AND last_update < $2 ORDER BY last_update"
	return s.queryRecords(ctx, query, string(ingest.StatusCompleted), cutoff)
}

// ListByOwner returns all active records submitted by one owner.
func (s *StatusStore) ListByOwner(ctx context.Context, ownerID string) ([]ingest.Record, error) {
	query := "SELECT " + recordColumns + " FROM crawl_records WHERE owner_id = $1 AND is_active ORDER BY last_update"
	return s.queryRecords(ctx, query, ownerID)
}

// Deactivate retains the record but excludes it from processing.
func (s *StatusStore) Deactivate(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, "UPDATE crawl_records SET is_active = FALSE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deactivate record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ingest.ErrNotFound
	}
	return nil
}

// Delete removes the record entirely.
func (s *StatusStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM crawl_records WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ingest.ErrNotFound
	}
	return nil
}

func (s *StatusStore) queryRecords(ctx context.Context, query string, args ...any) ([]ingest.Record, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []ingest.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (ingest.Record, error) {
	var (
		rec    ingest.Record
		status string
	)
	if err := row.Scan(&rec.ID, &rec.ParentID, &rec.URL, &rec.OwnerID, &status, &rec.LastUpdate, &rec.IsActive); err != nil {
		return ingest.Record{}, err
	}
	rec.Status = ingest.Status(status)
	return rec, nil
}

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdavenport/webknowledge/internal/ingest"
)

func TestInsertStoresRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStatusStoreWithDB(mock)
	now := time.Unix(1700000000, 0).UTC()

	rec := ingest.Record{
		ID:         "0190f3a2-0000-7000-8000-000000000001",
		URL:        "https://example.com/",
		OwnerID:    "user-1",
		Status:     ingest.StatusQueued,
		LastUpdate: now,
		IsActive:   true,
	}

	mock.ExpectExec("INSERT INTO crawl_records").
		WithArgs(rec.ID, rec.ParentID, rec.URL, rec.OwnerID, "queued", now, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Insert(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertUniqueViolationMapsToDuplicate(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStatusStoreWithDB(mock)

	mock.ExpectExec("INSERT INTO crawl_records").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err = store.Insert(context.Background(), ingest.Record{ID: "x", IsActive: true})
	require.ErrorIs(t, err, ingest.ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStatusStoreWithDB(mock)

	mock.ExpectQuery("SELECT (.+) FROM crawl_records WHERE url").
		WithArgs("https://example.com/", "user-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "parent_id", "url", "owner_id", "status", "last_update", "is_active",
		}))

	_, err = store.FindActive(context.Background(), "https://example.com/", "user-1")
	require.ErrorIs(t, err, ingest.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryByStatusScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStatusStoreWithDB(mock)
	now := time.Unix(1700000000, 0).UTC()
	parent := "0190f3a2-0000-7000-8000-00000000000f"

	mock.ExpectQuery("SELECT (.+) FROM crawl_records WHERE status").
		WithArgs("queued").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "parent_id", "url", "owner_id", "status", "last_update", "is_active",
		}).
			AddRow("a", nil, "https://a.com/", "u1", "queued", now, true).
			AddRow("b", &parent, "https://a.com/child/", "u1", "queued", now, true))

	recs, err := store.QueryByStatus(context.Background(), ingest.StatusQueued)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Nil(t, recs[0].ParentID)
	require.NotNil(t, recs[1].ParentID)
	assert.Equal(t, parent, *recs[1].ParentID)
	assert.Equal(t, ingest.StatusQueued, recs[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryStaleCompletedPassesCutoff(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStatusStoreWithDB(mock)
	cutoff := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("SELECT (.+) FROM crawl_records WHERE status").
		WithArgs("completed", cutoff).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "parent_id", "url", "owner_id", "status", "last_update", "is_active",
		}))

	recs, err := store.QueryStaleCompleted(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Empty(t, recs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMissingRowIsNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStatusStoreWithDB(mock)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("UPDATE crawl_records SET status").
		WithArgs("completed", now, true, "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.Update(context.Background(), ingest.Record{
		ID: "ghost", Status: ingest.StatusCompleted, LastUpdate: now, IsActive: true,
	})
	require.ErrorIs(t, err, ingest.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateAndDelete(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStatusStoreWithDB(mock)

	mock.ExpectExec("UPDATE crawl_records SET is_active").
		WithArgs("a").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("DELETE FROM crawl_records").
		WithArgs("a").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, store.Deactivate(context.Background(), "a"))
	require.NoError(t, store.Delete(context.Background(), "a"))
	require.NoError(t, mock.ExpectationsWereMet())
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sdavenport/webknowledge/internal/ingest"
	"github.com/sdavenport/webknowledge/internal/storage/memory"
)

type fakeSubmitter struct {
	mu        sync.Mutex
	submitted []ingest.Request
	canceled  []string
	err       error
}

func (f *fakeSubmitter) Submit(rawURL, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.submitted = append(f.submitted, ingest.Request{URL: rawURL, OwnerID: ownerID})
	return nil
}

func (f *fakeSubmitter) Cancel(rawURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, rawURL)
}

type fakeIndexer struct {
	mu      sync.Mutex
	deletes []string
}

func (f *fakeIndexer) ImportDocument(context.Context, string, string, string) error { return nil }

func (f *fakeIndexer) IsReady(context.Context, string, string) (bool, error) { return true, nil }

func (f *fakeIndexer) DeleteDocument(_ context.Context, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, docID)
	return nil
}

func newTestServer() (*Server, *fakeSubmitter, *memory.StatusStore, *fakeIndexer) {
	sub := &fakeSubmitter{}
	store := memory.NewStatusStore()
	index := &fakeIndexer{}
	return NewServer(sub, store, index, nil, zap.NewNop()), sub, store, index
}

func insertRecord(t *testing.T, store *memory.StatusStore, id, url, owner string, status ingest.Status) {
	t.Helper()
	require.NoError(t, store.Insert(context.Background(), ingest.Record{
		ID: id, URL: url, OwnerID: owner,
		Status: status, LastUpdate: time.Now().UTC(), IsActive: true,
	}))
}

func TestServer_SubmitURL_Succeeds(t *testing.T) {
	t.Parallel()

	server, sub, _, _ := newTestServer()
	body := []byte(`{"url":"https://example.com","owner_id":"u1"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/urls/", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, sub.submitted, 1)
	require.Equal(t, "https://example.com", sub.submitted[0].URL)
	require.Equal(t, "u1", sub.submitted[0].OwnerID)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_SubmitURL_InvalidJSON(t *testing.T) {
	t.Parallel()

	server, _, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/urls/", bytes.NewBufferString("{invalid"))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SubmitURL_MissingFields(t *testing.T) {
	t.Parallel()

	server, _, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/urls/", bytes.NewBufferString(`{"url":"https://example.com"}`))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "owner_id")
}

func TestServer_RemoveURL_QueuedRecordDeleted(t *testing.T) {
	t.Parallel()

	server, sub, store, index := newTestServer()
	insertRecord(t, store, "doc-1", "https://example.com/", "u1", ingest.StatusQueued)

	body := []byte(`{"url":"https://example.com","owner_id":"u1"}`)
	req := httptest.NewRequest(http.MethodDelete, "/v1/urls/", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"https://example.com"}, sub.canceled)

	_, err := store.FindActive(context.Background(), "https://example.com/", "u1")
	require.ErrorIs(t, err, ingest.ErrNotFound)
	require.Empty(t, index.deletes, "queued record never reached the engine")
}

func TestServer_RemoveURL_EmbeddedRecordDeactivated(t *testing.T) {
	t.Parallel()

	server, _, store, index := newTestServer()
	insertRecord(t, store, "doc-1", "https://example.com/", "u1", ingest.StatusCompleted)

	body := []byte(`{"url":"https://example.com","owner_id":"u1"}`)
	req := httptest.NewRequest(http.MethodDelete, "/v1/urls/", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"doc-1"}, index.deletes)

	_, err := store.FindActive(context.Background(), "https://example.com/", "u1")
	require.ErrorIs(t, err, ingest.ErrNotFound)

	recs, err := store.ListByOwner(context.Background(), "u1")
	require.NoError(t, err)
	require.Empty(t, recs, "deactivated record must not be listed")
}

func TestServer_RemoveURL_NotTracked(t *testing.T) {
	t.Parallel()

	server, _, _, _ := newTestServer()
	body := []byte(`{"url":"https://example.com","owner_id":"u1"}`)
	req := httptest.NewRequest(http.MethodDelete, "/v1/urls/", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ListURLs(t *testing.T) {
	t.Parallel()

	server, _, store, _ := newTestServer()
	insertRecord(t, store, "doc-1", "https://a.com/", "u1", ingest.StatusQueued)
	insertRecord(t, store, "doc-2", "https://b.com/", "u1", ingest.StatusCompleted)
	insertRecord(t, store, "doc-3", "https://c.com/", "u2", ingest.StatusQueued)

	req := httptest.NewRequest(http.MethodGet, "/v1/urls/?owner_id=u1", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Records []ingest.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 2)
}

func TestServer_ListURLs_MissingOwner(t *testing.T) {
	t.Parallel()

	server, _, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/urls/", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	server, _, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
}

// Package memoryengine is a REST client for the external document indexing
// engine. The engine computes embeddings asynchronously: imports are
// submitted, then polled for readiness.
package memoryengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/sdavenport/webknowledge/internal/retry"
)

// Config controls the engine client.
type Config struct {
	// BaseURL is the engine's service root, e.g. "http://indexer:9001".
	BaseURL string
	// APIKey, when set, is sent as an Authorization bearer token.
	APIKey string
	// Timeout bounds each HTTP call (default 30s).
	Timeout time.Duration
}

// Client implements ingest.Indexer over the engine's HTTP API. All calls go
// through the retry transport, so transient engine failures and Retry-After
// throttling are absorbed up to the retry bound.
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New builds a Client routed through the provided retry transport.
func New(cfg Config, transport *retry.Transport, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if transport == nil {
		transport = retry.New(nil, logger)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		client: transport.Client(timeout),
		logger: logger,
	}
}

type importRequest struct {
	URL        string `json:"url"`
	DocumentID string `json:"document_id"`
	Index      string `json:"index"`
}

type statusResponse struct {
	Completed bool `json:"completed"`
}

// ImportDocument asks the engine to fetch, chunk, and embed the page at
// sourceURL under the given document ID and owner tag.
func (c *Client) ImportDocument(ctx context.Context, sourceURL, docID, ownerTag string) error {
	payload, err := json.Marshal(importRequest{URL: sourceURL, DocumentID: docID, Index: ownerTag})
	if err != nil {
		return fmt.Errorf("encode import request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/documents", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("import document %s: %w", docID, err)
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("import document %s: engine returned status %d", docID, resp.StatusCode)
	}
	c.logger.Debug("document import accepted",
		zap.String("doc_id", docID), zap.String("url", sourceURL))
	return nil
}

// IsReady reports whether the engine has finished indexing the document.
func (c *Client) IsReady(ctx context.Context, docID, ownerTag string) (bool, error) {
	path := "/v1/documents/" + url.PathEscape(docID) + "/status?index=" + url.QueryEscape(ownerTag)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("document status %s: %w", docID, err)
	}
	defer drain(resp)

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("document status %s: engine returned status %d", docID, resp.StatusCode)
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false, fmt.Errorf("decode status %s: %w", docID, err)
	}
	return status.Completed, nil
}

// DeleteDocument removes the document and its embeddings. Deleting a
// document the engine does not know is not an error.
func (c *Client) DeleteDocument(ctx context.Context, docID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/v1/documents/"+url.PathEscape(docID), nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", docID, err)
	}
	defer drain(resp)

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delete document %s: engine returned status %d", docID, resp.StatusCode)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build engine request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	return req, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}

package crawler

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sdavenport/webknowledge/internal/retry"
)

const maxBodyBytes = 8 << 20

// FetcherConfig controls the HTTP fetcher.
type FetcherConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// HTTPFetcher implements ingest.Fetcher over a retrying HTTP client.
// Responses that are not text/html yield an empty body with no error, so the
// crawler treats them as leaves.
type HTTPFetcher struct {
	client *http.Client
	cfg    FetcherConfig
}

// NewHTTPFetcher builds a fetcher that routes requests through the retry
// transport.
func NewHTTPFetcher(cfg FetcherConfig, transport *retry.Transport, logger *zap.Logger) *HTTPFetcher {
	if transport == nil {
		transport = retry.New(nil, logger)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &HTTPFetcher{
		client: transport.Client(timeout),
		cfg:    cfg,
	}
}

// FetchHTML retrieves the document at the URL. Network and HTTP-level
// failures are returned; a non-HTML content type is not a failure.
func (f *HTTPFetcher) FetchHTML(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "text/html" {
		return "", nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body %s: %w", rawURL, err)
	}
	return string(body), nil
}

package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sdavenport/webknowledge/internal/links"
)

// siteFetcher serves canned HTML keyed by normalized URL.
type siteFetcher struct {
	pages   map[string]string
	failing map[string]bool
	fetched []string
}

func (f *siteFetcher) FetchHTML(_ context.Context, url string) (string, error) {
	f.fetched = append(f.fetched, url)
	if f.failing[url] {
		return "", errors.New("connection reset")
	}
	return f.pages[url], nil
}

func page(hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, h := range hrefs {
		fmt.Fprintf(&b, `<a href=%q>link</a>`, h)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func newCrawler(f *siteFetcher) *Crawler {
	return New(f, links.New(), zap.NewNop())
}

func TestCrawlLinearChainRespectsDepth(t *testing.T) {
	t.Parallel()

	f := &siteFetcher{pages: map[string]string{
		"https://example.com/":   page("/b"),
		"https://example.com/b/": page("/c"),
		"https://example.com/c/": page("/d"),
		"https://example.com/d/": page(),
	}}

	got := newCrawler(f).Crawl(context.Background(), "https://example.com", 2)
	assert.Equal(t, []string{
		"https://example.com/",
		"https://example.com/b/",
		"https://example.com/c/",
	}, got)
}

func TestCrawlDepthZeroReturnsOnlySeed(t *testing.T) {
	t.Parallel()

	f := &siteFetcher{pages: map[string]string{
		"https://example.com/": page("/b"),
	}}

	got := newCrawler(f).Crawl(context.Background(), "https://example.com/", 0)
	assert.Equal(t, []string{"https://example.com/"}, got)
}

func TestCrawlNegativeDepthDiscoversNothing(t *testing.T) {
	t.Parallel()

	f := &siteFetcher{pages: map[string]string{}}
	got := newCrawler(f).Crawl(context.Background(), "https://example.com/", -1)
	assert.Empty(t, got)
}

func TestCrawlDiscoversReachablePagesExactlyOnce(t *testing.T) {
	t.Parallel()

	// a links to b and c; b and c link back to a and to each other.
	f := &siteFetcher{pages: map[string]string{
		"https://example.com/":   page("/b", "/c"),
		"https://example.com/b/": page("/", "/c"),
		"https://example.com/c/": page("/", "/b"),
	}}

	got := newCrawler(f).Crawl(context.Background(), "https://example.com/", 5)
	require.Len(t, got, 3)

	seen := make(map[string]int)
	for _, u := range got {
		seen[u]++
	}
	for u, n := range seen {
		assert.Equal(t, 1, n, "url %s discovered more than once", u)
	}
}

func TestCrawlPreOrderParentBeforeChildren(t *testing.T) {
	t.Parallel()

	f := &siteFetcher{pages: map[string]string{
		"https://example.com/":    page("/b1", "/b2"),
		"https://example.com/b1/": page("/c1"),
		"https://example.com/b2/": page(),
		"https://example.com/c1/": page(),
	}}

	got := newCrawler(f).Crawl(context.Background(), "https://example.com/", 3)
	assert.Equal(t, []string{
		"https://example.com/",
		"https://example.com/b1/",
		"https://example.com/c1/",
		"https://example.com/b2/",
	}, got)
}

func TestCrawlFetchFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	f := &siteFetcher{
		pages: map[string]string{
			"https://example.com/":   page("/bad", "/ok"),
			"https://example.com/ok/": page(),
		},
		failing: map[string]bool{"https://example.com/bad/": true},
	}

	got := newCrawler(f).Crawl(context.Background(), "https://example.com/", 2)
	assert.Equal(t, []string{
		"https://example.com/",
		"https://example.com/bad/",
		"https://example.com/ok/",
	}, got)
}

func TestCrawlNonHTMLIsLeaf(t *testing.T) {
	t.Parallel()

	// Empty body models the fetcher's non-HTML signal.
	f := &siteFetcher{pages: map[string]string{
		"https://example.com/":     page("/pdf"),
		"https://example.com/pdf/": "",
	}}

	got := newCrawler(f).Crawl(context.Background(), "https://example.com/", 2)
	assert.Equal(t, []string{
		"https://example.com/",
		"https://example.com/pdf/",
	}, got)
}

func TestCrawlInvalidSeed(t *testing.T) {
	t.Parallel()

	f := &siteFetcher{}
	got := newCrawler(f).Crawl(context.Background(), "not a url", 2)
	assert.Empty(t, got)
}

// Package crawler implements depth-limited same-site traversal. Discovery
// is pure: the crawler fetches and walks pages but persists nothing, leaving
// registration of discovered URLs to its caller.
package crawler

import (
	"context"

	"go.uber.org/zap"

	"github.com/sdavenport/webknowledge/internal/ingest"
)

// Crawler walks a site breadth of links up to a depth budget.
type Crawler struct {
	fetcher   ingest.Fetcher
	extractor ingest.LinkExtractor
	logger    *zap.Logger
}

// New constructs a Crawler.
func New(fetcher ingest.Fetcher, extractor ingest.LinkExtractor, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{fetcher: fetcher, extractor: extractor, logger: logger}
}

type frame struct {
	url   string
	depth int
}

// Crawl performs a depth-limited traversal from the seed and returns every
// discovered same-host URL in pre-order, the seed first. The visited set is
// scoped to this call. Fetch failures are absorbed: a page that cannot be
// fetched or parsed contributes no outbound links and does not abort the
// traversal.
func (c *Crawler) Crawl(ctx context.Context, seedURL string, maxDepth int) []string {
	seed, err := ingest.NormalizeURL(seedURL)
	if err != nil {
		c.logger.Warn("invalid seed url", zap.String("url", seedURL), zap.Error(err))
		return nil
	}

	visited := make(map[string]bool)
	var discovered []string

	// Explicit stack rather than recursion; pushing children in reverse
	// keeps pre-order identical to the recursive formulation.
	stack := []frame{{url: seed, depth: maxDepth}}
	for len(stack) > 0 {
		if ctx.Err() != nil {
			return discovered
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if top.depth < 0 || visited[top.url] {
			continue
		}
		visited[top.url] = true
		discovered = append(discovered, top.url)

		html, err := c.fetcher.FetchHTML(ctx, top.url)
		if err != nil {
			c.logger.Warn("fetch failed", zap.String("url", top.url), zap.Error(err))
			continue
		}
		if html == "" {
			continue
		}

		found, err := c.extractor.ExtractLinks(html, top.url)
		if err != nil {
			c.logger.Warn("link extraction failed", zap.String("url", top.url), zap.Error(err))
			continue
		}
		for i := len(found) - 1; i >= 0; i-- {
			child, err := ingest.NormalizeURL(found[i])
			if err != nil {
				continue
			}
			stack = append(stack, frame{url: child, depth: top.depth - 1})
		}
	}
	return discovered
}

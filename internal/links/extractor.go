// Package links extracts same-host hyperlinks from fetched HTML documents.
package links

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Extractor implements ingest.LinkExtractor using goquery. Only absolute,
// same-host, fragment-free links are returned, in document order.
type Extractor struct{}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// ExtractLinks parses the document and resolves every anchor href against
// the base URL. Links pointing at other hosts or carrying fragments are
// dropped.
func (e *Extractor) ExtractLinks(html, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var out []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if resolved.Host != base.Host {
			return
		}
		if resolved.Fragment != "" || strings.Contains(resolved.String(), "#") {
			return
		}
		out = append(out, resolved.String())
	})
	return out, nil
}

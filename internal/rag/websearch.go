package rag

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// SearchResult is one external search hit.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// Searcher performs an external web search.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// DuckDuckGoSearcher scrapes the DuckDuckGo HTML endpoint. No API key
// required, which suits an offline-first local deployment.
type DuckDuckGoSearcher struct {
	baseURL    string
	httpClient *http.Client
}

// NewDuckDuckGoSearcher builds the default searcher. baseURL is overridable
// for tests; empty means the public endpoint.
func NewDuckDuckGoSearcher(baseURL string, timeout time.Duration) *DuckDuckGoSearcher {
	if baseURL == "" {
		baseURL = "https://html.duckduckgo.com/html/"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DuckDuckGoSearcher{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (d *DuckDuckGoSearcher) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	u := fmt.Sprintf("%s?q=%s", d.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse search HTML: %w", err)
	}

	results := make([]SearchResult, 0, maxResults)
	doc.Find("div.result").Each(func(i int, s *goquery.Selection) {
		if len(results) >= maxResults {
			return
		}
		title := strings.TrimSpace(s.Find("a.result__a").Text())
		link, _ := s.Find("a.result__a").Attr("href")
		snippet := strings.TrimSpace(s.Find("a.result__snippet").Text())
		if title == "" || link == "" {
			return
		}
		results = append(results, SearchResult{Title: title, URL: cleanDuckURL(link), Snippet: snippet})
	})
	return results, nil
}

// cleanDuckURL unwraps DuckDuckGo's redirect links (//duckduckgo.com/l/?uddg=...).
func cleanDuckURL(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	if uddg := u.Query().Get("uddg"); uddg != "" {
		if decoded, err := url.QueryUnescape(uddg); err == nil {
			return decoded
		}
	}
	return link
}

// WebAugmenter converts external search results into retrievable chunks.
type WebAugmenter interface {
	Augment(ctx context.Context, query string) ([]DocumentChunk, error)
}

// SearchAugmenter is the concrete WebAugmenter over a Searcher. It returns
// an explicit error instead of swallowing failures; the corrective
// controller decides how to degrade.
type SearchAugmenter struct {
	searcher   Searcher
	maxResults int
}

// NewSearchAugmenter wires an augmenter over the given searcher.
func NewSearchAugmenter(searcher Searcher, maxResults int) *SearchAugmenter {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &SearchAugmenter{searcher: searcher, maxResults: maxResults}
}

// Augment searches the web and converts each hit into an unscored chunk.
// Chunks carry the hit URL as their path and the "web" language sentinel.
func (a *SearchAugmenter) Augment(ctx context.Context, query string) ([]DocumentChunk, error) {
	hits, err := a.searcher.Search(ctx, query, a.maxResults)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	chunks := make([]DocumentChunk, 0, len(hits))
	for i, h := range hits {
		content := h.Snippet
		if h.Title != "" {
			content = h.Title + "\n" + h.Snippet
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		chunks = append(chunks, DocumentChunk{
			FilePath:     h.URL,
			Content:      content,
			ChunkIndex:   i,
			StartPos:     0,
			EndPos:       len(content),
			Language:     LanguageWeb,
			ModifiedTime: now,
		})
	}
	return chunks, nil
}

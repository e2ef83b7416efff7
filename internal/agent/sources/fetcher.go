package sources

import (
	"context"
	"sort"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sentiscope/internal/agent/core"
)

// ExtractFunc returns the readable text of the page at url.
type ExtractFunc func(ctx context.Context, url string) (string, error)

// ReadabilityExtractor downloads a page and extracts its article body.
func ReadabilityExtractor(timeout time.Duration) ExtractFunc {
	return func(ctx context.Context, url string) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		article, err := readability.FromURL(url, timeout)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(article.TextContent), nil
	}
}

// Fetcher is the search stage: one provider call per (topic, country), with
// retries, deduplication, ranking and optional full-text enrichment.
type Fetcher struct {
	provider   core.SearchProvider
	policy     core.RetryPolicy
	maxResults int
	enrichTopN int
	extract    ExtractFunc
	logger     *zap.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithEnrichment fetches full text for the top n documents.
func WithEnrichment(n int, extract ExtractFunc) FetcherOption {
	return func(f *Fetcher) {
		f.enrichTopN = n
		f.extract = extract
	}
}

func WithRetryPolicy(p core.RetryPolicy) FetcherOption {
	return func(f *Fetcher) { f.policy = p }
}

func WithLogger(l *zap.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = l }
}

func NewFetcher(provider core.SearchProvider, maxResults int, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		provider:   provider,
		policy:     core.DefaultRetryPolicy,
		maxResults: maxResults,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.maxResults <= 0 {
		f.maxResults = 8
	}
	return f
}

// Provider returns the name of the underlying search provider.
func (f *Fetcher) Provider() string { return f.provider.Name() }

// Fetch returns ranked, deduplicated documents for topic in country.
func (f *Fetcher) Fetch(ctx context.Context, q core.SearchQuery) ([]core.Document, error) {
	if q.MaxResults == 0 {
		q.MaxResults = f.maxResults
	}
	var docs []core.Document
	err := core.Retry(ctx, f.policy, func(ctx context.Context) error {
		var err error
		docs, err = f.provider.Search(ctx, q)
		return err
	}, func(err error, wait time.Duration) {
		f.logger.Warn("search retry",
			zap.String("provider", f.provider.Name()),
			zap.String("country", q.Country),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	if err != nil {
		return nil, err
	}

	docs = Deduplicate(docs)
	kept := docs[:0]
	for _, d := range docs {
		if strings.TrimSpace(d.URL) == "" && strings.TrimSpace(d.Title) == "" {
			continue
		}
		d.Score = core.Clamp(d.Score, 0, 1)
		kept = append(kept, d)
	}
	docs = kept
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Score > docs[j].Score })
	if len(docs) > q.MaxResults {
		docs = docs[:q.MaxResults]
	}
	f.enrich(ctx, docs)
	return docs, nil
}

// enrich is best-effort: a page that cannot be read keeps its snippet.
func (f *Fetcher) enrich(ctx context.Context, docs []core.Document) {
	if f.extract == nil || f.enrichTopN <= 0 {
		return
	}
	for i := range docs {
		if i >= f.enrichTopN || ctx.Err() != nil {
			return
		}
		if docs[i].Content != "" || docs[i].URL == "" {
			continue
		}
		text, err := f.extract(ctx, docs[i].URL)
		if err != nil {
			f.logger.Debug("enrichment skipped", zap.String("url", docs[i].URL), zap.Error(err))
			continue
		}
		docs[i].Content = truncate(text, 4000)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return cut + "…"
}

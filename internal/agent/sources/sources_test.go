package sources

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/sentiscope/config"
	"github.com/mohammad-safakhou/sentiscope/internal/agent/core"
	"github.com/mohammad-safakhou/sentiscope/internal/apperr"
)

func TestCanonicalURL(t *testing.T) {
	cases := []struct{ in, want string }{
		{"http://www.Example.com/news/../world/a1?utm_source=rss&b=2&a=1#top", "https://example.com/world/a1?a=1&b=2"},
		{"example.com/story/", "https://example.com/story"},
		{"https://example.com:443/", "https://example.com"},
		{"https://example.com:8080/x", "https://example.com:8080/x"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanonicalURL(tc.in), tc.in)
	}
}

func TestDeduplicateKeepsBestScoreInFirstSeenOrder(t *testing.T) {
	in := []core.Document{
		{Title: "A", URL: "https://a.com/1", Score: 0.4},
		{Title: "B", URL: "https://b.com/1", Score: 0.9},
		{Title: "A again", URL: "http://www.a.com/1?utm_medium=x", Score: 0.8},
		{Title: "No URL", Score: 0.1},
		{Title: "no url", Score: 0.2},
	}
	out := Deduplicate(in)
	require.Len(t, out, 3)
	assert.Equal(t, "A again", out[0].Title)
	assert.Equal(t, "B", out[1].Title)
	assert.InDelta(t, 0.2, out[2].Score, 1e-9)
}

type fakeProvider struct {
	docs  []core.Document
	errs  []error
	calls int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Search(_ context.Context, _ core.SearchQuery) ([]core.Document, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return f.docs, nil
}

var quick = core.RetryPolicy{MaxRetries: 2, Initial: time.Millisecond, Max: time.Millisecond}

func TestFetcherRanksLimitsAndRetries(t *testing.T) {
	p := &fakeProvider{
		errs: []error{&apperr.UpstreamError{Provider: "fake", Status: 503, Err: errors.New("busy")}},
		docs: []core.Document{
			{Title: "low", URL: "https://x.com/1", Score: 0.1},
			{Title: "high", URL: "https://x.com/2", Score: 1.7},
			{Title: "mid", URL: "https://x.com/3", Score: 0.5},
			{Title: "", URL: ""},
		},
	}
	f := NewFetcher(p, 2, WithRetryPolicy(quick))
	docs, err := f.Fetch(context.Background(), core.SearchQuery{Topic: "Hamas", Country: "US"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "high", docs[0].Title)
	assert.Equal(t, 1.0, docs[0].Score)
	assert.Equal(t, "mid", docs[1].Title)
	assert.Equal(t, 2, p.calls)
}

func TestFetcherGivesUpOnPermanentFailure(t *testing.T) {
	p := &fakeProvider{errs: []error{&apperr.UpstreamError{Provider: "fake", Status: 403, Err: errors.New("forbidden")}}}
	_, err := NewFetcher(p, 5, WithRetryPolicy(quick)).Fetch(context.Background(), core.SearchQuery{Topic: "t"})
	var ue *apperr.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 1, p.calls)
}

func TestFetcherEnrichesTopDocuments(t *testing.T) {
	p := &fakeProvider{docs: []core.Document{
		{Title: "a", URL: "https://x.com/a", Score: 0.9},
		{Title: "b", URL: "https://x.com/b", Score: 0.8},
		{Title: "c", URL: "https://x.com/c", Score: 0.7},
	}}
	extract := func(_ context.Context, url string) (string, error) {
		if url == "https://x.com/b" {
			return "", errors.New("paywall")
		}
		return "full text of " + url, nil
	}
	docs, err := NewFetcher(p, 5, WithEnrichment(2, extract)).Fetch(context.Background(), core.SearchQuery{Topic: "t"})
	require.NoError(t, err)
	assert.Equal(t, "full text of https://x.com/a", docs[0].Content)
	assert.Empty(t, docs[1].Content)
	assert.Empty(t, docs[2].Content)
}

func TestTavilyClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Hamas Israel", body["query"])
		_, _ = w.Write([]byte(`{"results":[{"title":"T","url":"https://n.com/1","content":" body ","score":0.77,"published_date":"2026-03-01"}]}`))
	}))
	defer srv.Close()

	c := &TavilyClient{cfg: config.TavilyConfig{APIKey: "key", Endpoint: srv.URL}, http: core.NewHTTPClient("tavily", time.Second, nil)}
	docs, err := c.Search(context.Background(), core.SearchQuery{Topic: "Hamas", Country: "Israel"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "body", docs[0].Snippet)
	assert.InDelta(t, 0.77, docs[0].Score, 1e-9)
	require.NotNil(t, docs[0].PublishedAt)
	assert.Equal(t, "tavily", docs[0].Provider)
}

func TestSerperClientSetsCountry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "us", body["gl"])
		_, _ = w.Write([]byte(`{"news":[{"title":"one","link":"https://a.com"},{"title":"two","link":"https://b.com"}]}`))
	}))
	defer srv.Close()

	c := &SerperClient{apiKey: "k", endpoint: srv.URL, http: core.NewHTTPClient("serper", time.Second, nil)}
	docs, err := c.Search(context.Background(), core.SearchQuery{Topic: "Hamas", Country: "US"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Greater(t, docs[0].Score, docs[1].Score)
}

func TestBraveClientQueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "IL", r.URL.Query().Get("country"))
		assert.Equal(t, "k", r.Header.Get("X-Subscription-Token"))
		_, _ = w.Write([]byte(`{"results":[{"title":"x","url":"https://x.com","description":"d"}]}`))
	}))
	defer srv.Close()

	c := &BraveClient{apiKey: "k", endpoint: srv.URL, http: core.NewHTTPClient("brave", time.Second, nil)}
	docs, err := c.Search(context.Background(), core.SearchQuery{Topic: "Hamas", Country: "Israel"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "d", docs[0].Snippet)
}

func TestNewProvidersOnlyRegistersConfigured(t *testing.T) {
	reg := NewProviders(config.SourcesConfig{Tavily: config.TavilyConfig{APIKey: "k"}}, nil)
	assert.Equal(t, []string{"tavily"}, reg.Names())
}

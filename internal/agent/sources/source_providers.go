package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mohammad-safakhou/sentiscope/config"
	"github.com/mohammad-safakhou/sentiscope/internal/agent/core"
	"github.com/mohammad-safakhou/sentiscope/internal/geo"
)

// NewProviders builds every search provider that has credentials configured.
func NewProviders(cfg config.SourcesConfig, budget core.Budget) *core.Registry[core.SearchProvider] {
	reg := core.NewRegistry[core.SearchProvider]("search provider")
	timeout := cfg.Timeout
	if cfg.Tavily.APIKey != "" {
		reg.MustRegister("tavily", &TavilyClient{cfg: cfg.Tavily, http: core.NewHTTPClient("tavily", timeout, budget)})
	}
	if cfg.WebSearch.SerperAPIKey != "" {
		reg.MustRegister("serper", &SerperClient{apiKey: cfg.WebSearch.SerperAPIKey, http: core.NewHTTPClient("serper", timeout, budget)})
	}
	if cfg.WebSearch.BraveAPIKey != "" {
		reg.MustRegister("brave", &BraveClient{apiKey: cfg.WebSearch.BraveAPIKey, http: core.NewHTTPClient("brave", timeout, budget)})
	}
	if cfg.NewsAPI.APIKey != "" {
		reg.MustRegister("newsapi", &NewsAPIClient{cfg: cfg.NewsAPI, http: core.NewHTTPClient("newsapi", timeout, budget)})
	}
	return reg
}

// ProviderNames lists the names NewProviders may register, for budget wiring.
func ProviderNames() []string { return []string{"tavily", "serper", "brave", "newsapi"} }

// searchText is the free-text query sent to providers that have no country filter.
func searchText(q core.SearchQuery) string {
	if q.Country == "" {
		return q.Topic
	}
	return fmt.Sprintf("%s %s", q.Topic, q.Country)
}

func rankScore(i, n int) float64 {
	if n <= 1 {
		return 1
	}
	return 1 - float64(i)/float64(n)
}

func parseDate(v string) *time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, time.RFC1123, time.RFC1123Z, "2006-01-02", "Jan 2, 2006"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	return nil
}

func maxResults(q core.SearchQuery, def int) int {
	if q.MaxResults > 0 {
		return q.MaxResults
	}
	return def
}

// TavilyClient implements SearchProvider using api.tavily.com
type TavilyClient struct {
	cfg  config.TavilyConfig
	http *core.HTTPClient
}

func (t *TavilyClient) Name() string { return "tavily" }

func (t *TavilyClient) Search(ctx context.Context, q core.SearchQuery) ([]core.Document, error) {
	endpoint := t.cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.tavily.com/search"
	}
	depth := t.cfg.Depth
	if depth == "" {
		depth = "basic"
	}
	body := map[string]any{
		"query":        searchText(q),
		"search_depth": depth,
		"topic":        "news",
		"max_results":  maxResults(q, 8),
	}
	if !q.Since.IsZero() {
		days := int(time.Since(q.Since).Hours()/24) + 1
		body["days"] = days
	}
	var resp struct {
		Results []struct {
			Title         string  `json:"title"`
			URL           string  `json:"url"`
			Content       string  `json:"content"`
			Score         float64 `json:"score"`
			PublishedDate string  `json:"published_date"`
		} `json:"results"`
	}
	headers := map[string]string{"Authorization": "Bearer " + t.cfg.APIKey}
	if err := t.http.DoJSON(ctx, http.MethodPost, endpoint, headers, body, &resp); err != nil {
		return nil, err
	}
	out := make([]core.Document, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, core.Document{
			Title: r.Title, URL: r.URL, Snippet: strings.TrimSpace(r.Content),
			Score: core.Clamp(r.Score, 0, 1), PublishedAt: parseDate(r.PublishedDate), Provider: t.Name(),
		})
	}
	return out, nil
}

// SerperClient implements SearchProvider using the serper.dev news endpoint
type SerperClient struct {
	apiKey   string
	endpoint string
	http     *core.HTTPClient
}

func (s *SerperClient) Name() string { return "serper" }

func (s *SerperClient) Search(ctx context.Context, q core.SearchQuery) ([]core.Document, error) {
	endpoint := s.endpoint
	if endpoint == "" {
		endpoint = "https://google.serper.dev/news"
	}
	body := map[string]any{"q": searchText(q), "num": maxResults(q, 10)}
	if c, ok := geo.Lookup(q.Country); ok {
		body["gl"] = strings.ToLower(c.ISO2)
	}
	var resp struct {
		News []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
			Date    string `json:"date"`
		} `json:"news"`
	}
	if err := s.http.DoJSON(ctx, http.MethodPost, endpoint, map[string]string{"X-API-KEY": s.apiKey}, body, &resp); err != nil {
		return nil, err
	}
	out := make([]core.Document, 0, len(resp.News))
	for i, r := range resp.News {
		out = append(out, core.Document{
			Title: r.Title, URL: r.Link, Snippet: r.Snippet,
			Score: rankScore(i, len(resp.News)), PublishedAt: parseDate(r.Date), Provider: s.Name(),
		})
	}
	return out, nil
}

// BraveClient implements SearchProvider using the Brave news search API
type BraveClient struct {
	apiKey   string
	endpoint string
	http     *core.HTTPClient
}

func (b *BraveClient) Name() string { return "brave" }

func (b *BraveClient) Search(ctx context.Context, q core.SearchQuery) ([]core.Document, error) {
	endpoint := b.endpoint
	if endpoint == "" {
		endpoint = "https://api.search.brave.com/res/v1/news/search"
	}
	params := url.Values{}
	params.Set("q", searchText(q))
	params.Set("count", strconv.Itoa(maxResults(q, 10)))
	if c, ok := geo.Lookup(q.Country); ok {
		params.Set("country", c.ISO2)
	}
	var resp struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
			PageAge     string `json:"page_age"`
		} `json:"results"`
	}
	headers := map[string]string{"X-Subscription-Token": b.apiKey}
	if err := b.http.DoJSON(ctx, http.MethodGet, endpoint+"?"+params.Encode(), headers, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]core.Document, 0, len(resp.Results))
	for i, r := range resp.Results {
		out = append(out, core.Document{
			Title: r.Title, URL: r.URL, Snippet: r.Description,
			Score: rankScore(i, len(resp.Results)), PublishedAt: parseDate(r.PageAge), Provider: b.Name(),
		})
	}
	return out, nil
}

// NewsAPIClient implements SearchProvider using newsapi.org
type NewsAPIClient struct {
	cfg  config.NewsAPIConfig
	http *core.HTTPClient
}

func (n *NewsAPIClient) Name() string { return "newsapi" }

func (n *NewsAPIClient) Search(ctx context.Context, q core.SearchQuery) ([]core.Document, error) {
	endpoint := n.cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://newsapi.org/v2/everything"
	}
	params := url.Values{}
	params.Set("q", searchText(q))
	params.Set("language", "en")
	params.Set("sortBy", "relevancy")
	params.Set("pageSize", strconv.Itoa(maxResults(q, 20)))
	if !q.Since.IsZero() {
		params.Set("from", q.Since.UTC().Format(time.RFC3339))
	}
	if !q.Until.IsZero() {
		params.Set("to", q.Until.UTC().Format(time.RFC3339))
	}
	var resp struct {
		Articles []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			PublishedAt string `json:"publishedAt"`
			Description string `json:"description"`
			Content     string `json:"content"`
		} `json:"articles"`
	}
	if err := n.http.DoJSON(ctx, http.MethodGet, endpoint+"?"+params.Encode(), map[string]string{"X-Api-Key": n.cfg.APIKey}, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]core.Document, 0, len(resp.Articles))
	for i, a := range resp.Articles {
		out = append(out, core.Document{
			Title: a.Title, URL: a.URL, Snippet: strings.TrimSpace(a.Description),
			Content: strings.TrimSpace(a.Content), Score: rankScore(i, len(resp.Articles)),
			PublishedAt: parseDate(a.PublishedAt), Provider: n.Name(),
		})
	}
	return out, nil
}

package core

import (
	"context"
	"math"
	"time"

	"github.com/mohammad-safakhou/sentiscope/internal/apperr"
)

// Document is one ranked search hit for a (topic, country) pair
type Document struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Snippet     string     `json:"snippet"`
	Content     string     `json:"content,omitempty"` // readability text when enriched
	Score       float64    `json:"score"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Provider    string     `json:"provider"`
}

// SearchQuery is what the fetcher asks a search provider for
type SearchQuery struct {
	Topic      string
	Country    string
	Since      time.Time
	Until      time.Time
	MaxResults int
}

// Citation is a deduplicated reference surfaced to the client
type Citation struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Snippet     string     `json:"snippet"`
	Score       float64    `json:"score"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Country     string     `json:"country,omitempty"`
}

// CitationFrom converts a search hit into a citation attributed to country.
func CitationFrom(d Document, country string) Citation {
	return Citation{
		Title:       d.Title,
		URL:         d.URL,
		Snippet:     d.Snippet,
		Score:       d.Score,
		PublishedAt: d.PublishedAt,
		Country:     country,
	}
}

// Intent is the parsed form of a research query
type Intent struct {
	Topic      string   `json:"topic"`
	Countries  []string `json:"countries"`
	Confidence float64  `json:"confidence"`
	Method     string   `json:"method"` // llm or scan
}

// SentimentLabel is the bucketed form of a sentiment score
type SentimentLabel string

const (
	LabelNegative SentimentLabel = "negative"
	LabelNeutral  SentimentLabel = "neutral"
	LabelPositive SentimentLabel = "positive"
)

// Label bucket boundaries. Scores strictly below NegativeThreshold are
// negative, strictly above PositiveThreshold positive, anything else neutral.
const (
	NegativeThreshold = -0.33
	PositiveThreshold = 0.33
)

// LabelFor buckets a sentiment score.
func LabelFor(score float64) SentimentLabel {
	switch {
	case score < NegativeThreshold:
		return LabelNegative
	case score > PositiveThreshold:
		return LabelPositive
	default:
		return LabelNeutral
	}
}

// Clamp bounds v to [lo, hi]. NaN is read as zero so a bad score lands on
// neutral rather than an extreme.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		v = 0
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Sentiment is the output of the sentiment pass for one country
type Sentiment struct {
	Score            float64        `json:"score"`
	Label            SentimentLabel `json:"label"`
	Reasoning        string         `json:"reasoning"`
	SourceType       string         `json:"source_type"`
	CredibilityScore float64        `json:"credibility_score"`
}

// Bias is the output of the bias pass for one country
type Bias struct {
	Types    []string `json:"types"`
	Severity float64  `json:"severity"`
	Notes    string   `json:"notes"`
}

// CountryStatus tells whether a country produced a usable result
type CountryStatus string

const (
	CountryScored CountryStatus = "scored"
	CountryFailed CountryStatus = "failed"
)

// CountryResult is the final sentiment and bias outcome for one country. It is
// a value type; once built it is only ever copied.
type CountryResult struct {
	Country          string         `json:"country"`
	Status           CountryStatus  `json:"status"`
	SentimentScore   float64        `json:"sentiment_score"`
	SentimentLabel   SentimentLabel `json:"sentiment_label,omitempty"`
	Reasoning        string         `json:"reasoning,omitempty"`
	SourceType       string         `json:"source_type,omitempty"`
	CredibilityScore float64        `json:"credibility_score"`
	BiasTypes        []string       `json:"bias_types,omitempty"`
	BiasSeverity     float64        `json:"bias_severity"`
	BiasNotes        string         `json:"bias_notes,omitempty"`
	DocumentCount    int            `json:"document_count"`
	Error            string         `json:"error,omitempty"`
	Documents        []Document     `json:"-"`
}

// Succeeded reports whether the country was scored.
func (r CountryResult) Succeeded() bool { return r.Status == CountryScored }

// Synthesis is the session-level narrative
type Synthesis struct {
	Narrative  string  `json:"narrative"`
	Confidence float64 `json:"confidence"`
	Fallback   bool    `json:"fallback,omitempty"`
}

// Failure is one itemized partial failure reported in the completion summary
type Failure struct {
	Scope  string      `json:"scope"` // country, artifact, synthesis, bias
	Name   string      `json:"name"`
	Code   apperr.Code `json:"code"`
	Reason string      `json:"reason"`
}

// CompletionRequest is a single prompt for an LLM provider
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	JSON        bool
}

// Completion is the provider's answer
type Completion struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// LLMProvider interface for different LLM providers
type LLMProvider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// SearchProvider interface for different search backends
type SearchProvider interface {
	Name() string
	Search(ctx context.Context, q SearchQuery) ([]Document, error)
}

// IntentParser turns raw query text into an Intent.
type IntentParser interface {
	Parse(ctx context.Context, query string) (Intent, error)
}

// SentimentScorer scores the tone of one country's documents toward a topic.
type SentimentScorer interface {
	ScoreSentiment(ctx context.Context, topic, country string, docs []Document) (Sentiment, error)
}

// BiasDetector inspects the same documents for skew, independently of sentiment.
type BiasDetector interface {
	DetectBias(ctx context.Context, topic, country string, docs []Document) (Bias, error)
}

// Synthesizer merges all country results into one narrative.
type Synthesizer interface {
	Synthesize(ctx context.Context, query, topic string, results []CountryResult) (Synthesis, error)
}

// Budget gates calls to external providers. Implementations must be safe for
// concurrent use across sessions.
type Budget interface {
	Take(ctx context.Context, key string) error
}

// Unlimited is a Budget that never refuses.
type Unlimited struct{}

func (Unlimited) Take(context.Context, string) error { return nil }

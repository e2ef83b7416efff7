// Package intent extracts the topic and the explicit list of target countries
// from a research query. It never substitutes a default country set: when it
// cannot tell which countries are meant it returns a ClarificationError.
package intent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sentiscope/internal/agent/core"
	"github.com/mohammad-safakhou/sentiscope/internal/apperr"
	"github.com/mohammad-safakhou/sentiscope/internal/geo"
)

// ClarificationError is returned when the query does not name its countries clearly enough.
type ClarificationError struct {
	Query      string
	Reason     string
	Confidence float64
}

func (e *ClarificationError) Error() string {
	return fmt.Sprintf("clarification needed: %s; please name the countries to analyse explicitly", e.Reason)
}

func (e *ClarificationError) ErrorCode() apperr.Code { return apperr.CodeClarification }
func (e *ClarificationError) Recoverable() bool      { return true }

// IsClarification reports whether err asks the user to rephrase.
func IsClarification(err error) bool {
	var ce *ClarificationError
	return errors.As(err, &ce)
}

const systemPrompt = `You extract research intent from a user's query about media sentiment.
Return ONLY a JSON object: {"topic": string, "countries": [string], "confidence": number 0..1}.
Rules:
- "countries" lists only countries the query explicitly names, in the order they appear, spelled as written.
- Never add countries that are not named. If none are named, return an empty list.
- "topic" is the subject being analysed, without the country names or instructions.
- "confidence" is how sure you are that the countries list is complete and correct.

Examples:
Query: "sentiment analysis on X in US and Israel"
{"topic": "X", "countries": ["US", "Israel"], "confidence": 0.95}
Query: "How do Germany, France and Italy cover the new EU migration pact? Show a map"
{"topic": "the new EU migration pact", "countries": ["Germany", "France", "Italy"], "confidence": 0.93}
Query: "what does the world think about AI regulation"
{"topic": "AI regulation", "countries": [], "confidence": 0.2}`

// Parser implements core.IntentParser.
type Parser struct {
	llm           core.LLMProvider
	model         string
	minConfidence float64
	maxCountries  int
	logger        *zap.Logger
}

func NewParser(llm core.LLMProvider, model string, minConfidence float64, maxCountries int, logger *zap.Logger) *Parser {
	if minConfidence <= 0 {
		minConfidence = 0.5
	}
	if maxCountries <= 0 {
		maxCountries = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{llm: llm, model: model, minConfidence: minConfidence, maxCountries: maxCountries, logger: logger}
}

type llmIntent struct {
	Topic      string   `json:"topic"`
	Countries  []string `json:"countries"`
	Confidence *float64 `json:"confidence"`
}

// Parse issues one LLM call and validates its answer against the query text.
// When the LLM is unavailable it falls back to scanning the query for known
// country names.
func (p *Parser) Parse(ctx context.Context, query string) (core.Intent, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return core.Intent{}, &apperr.ValidationError{Field: "query", Reason: "empty"}
	}

	in, err := p.parseLLM(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return core.Intent{}, ctx.Err()
		}
		p.logger.Warn("intent llm unavailable, scanning query", zap.Error(err))
		in = scan(query)
	}

	if len(in.Countries) == 0 {
		return core.Intent{}, &ClarificationError{Query: query, Reason: "no countries found in the query", Confidence: in.Confidence}
	}
	if in.Confidence < p.minConfidence {
		return core.Intent{}, &ClarificationError{
			Query:      query,
			Reason:     fmt.Sprintf("country extraction confidence %.2f is below %.2f", in.Confidence, p.minConfidence),
			Confidence: in.Confidence,
		}
	}
	if len(in.Countries) > p.maxCountries {
		return core.Intent{}, &apperr.ValidationError{
			Field:  "query",
			Reason: fmt.Sprintf("names %d countries, at most %d are supported", len(in.Countries), p.maxCountries),
		}
	}
	return in, nil
}

func (p *Parser) parseLLM(ctx context.Context, query string) (core.Intent, error) {
	if p.llm == nil {
		return core.Intent{}, errors.New("no llm configured")
	}
	resp, err := p.llm.Complete(ctx, core.CompletionRequest{
		Model:       p.model,
		System:      systemPrompt,
		Prompt:      fmt.Sprintf("Query: %q", query),
		Temperature: 0,
		MaxTokens:   300,
		JSON:        true,
	})
	if err != nil {
		return core.Intent{}, err
	}
	var raw llmIntent
	if err := core.DecodeJSON(resp.Text, &raw); err != nil {
		return core.Intent{}, err
	}

	confidence := 0.75
	if raw.Confidence != nil {
		confidence = core.Clamp(*raw.Confidence, 0, 1)
	}
	countries := make([]string, 0, len(raw.Countries))
	seen := map[string]bool{}
	for _, c := range raw.Countries {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if !geo.Mentioned(query, c) {
			p.logger.Info("dropping country not named in query", zap.String("country", c))
			continue
		}
		key := strings.ToLower(c)
		if gc, ok := geo.Lookup(c); ok {
			key = gc.ISO3
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		countries = append(countries, c)
	}
	if len(countries) == 0 && len(raw.Countries) > 0 {
		// every answer was hallucinated; trust only what the text names
		fallback := scan(query)
		fallback.Method = "llm+scan"
		return fallback, nil
	}
	topic := strings.TrimSpace(raw.Topic)
	if topic == "" {
		topic = deriveTopic(query, countries)
	}
	return core.Intent{Topic: topic, Countries: countries, Confidence: confidence, Method: "llm"}, nil
}

// scan is the deterministic fallback: only countries literally present in
// the query, in order of appearance.
func scan(query string) core.Intent {
	mentions := geo.Scan(query)
	countries := make([]string, 0, len(mentions))
	for _, m := range mentions {
		countries = append(countries, m.Surface)
	}
	confidence := 0.0
	if len(countries) > 0 {
		confidence = 0.75
	}
	return core.Intent{Topic: deriveTopic(query, countries), Countries: countries, Confidence: confidence, Method: "scan"}
}

var (
	leadIn      = regexp.MustCompile(`(?i)^(please\s+)?(do|run|perform|give me|show me|make)?\s*(an?\s+)?(sentiment|bias|media)?\s*(analysis|comparison|breakdown)?\s*(on|of|about|for|regarding)\s+`)
	countryTail = regexp.MustCompile(`(?i)\s+(in|across|between|for|from)(\s+the)?$`)
	joiners     = regexp.MustCompile(`(?i)(\s*,\s*|\s+and\s+|\s+vs\.?\s+|\s+versus\s+)+$`)
)

// deriveTopic strips the instruction lead-in and the trailing country list.
func deriveTopic(query string, countries []string) string {
	topic := strings.TrimSpace(query)
	cut := -1
	for _, c := range countries {
		if i := strings.Index(topic, c); i >= 0 && (cut < 0 || i < cut) {
			cut = i
		}
	}
	if cut >= 0 {
		topic = strings.TrimSpace(topic[:cut])
	}
	topic = strings.TrimRight(topic, " ,.?!")
	for {
		trimmed := joiners.ReplaceAllString(topic, "")
		trimmed = countryTail.ReplaceAllString(trimmed, "")
		if trimmed == topic {
			break
		}
		topic = trimmed
	}
	if t := leadIn.ReplaceAllString(topic, ""); strings.TrimSpace(t) != "" {
		topic = t
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return strings.TrimSpace(query)
	}
	return topic
}

package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/sentiscope/internal/agent/core"
)

const synthesisSystem = `You write a concise comparative briefing on how media in different countries cover a topic.
You receive per-country sentiment scores (-1..1), labels, reasoning and bias findings.
Respond ONLY with a JSON object: {"narrative": string of 2-5 short paragraphs in plain prose, "confidence": number 0..1}.
Compare countries directly, mention notable bias findings, and say plainly when a country could not be analysed.
Do not invent facts beyond the findings provided.`

type synthesisAnswer struct {
	Narrative  string  `json:"narrative"`
	Confidence float64 `json:"confidence"`
}

// LLMSynthesizer writes the narrative with one LLM call.
type LLMSynthesizer struct {
	llm   core.LLMProvider
	model string
}

func NewLLMSynthesizer(llm core.LLMProvider, model string) *LLMSynthesizer {
	return &LLMSynthesizer{llm: llm, model: model}
}

func (s *LLMSynthesizer) Synthesize(ctx context.Context, query, topic string, results []core.CountryResult) (core.Synthesis, error) {
	scored := scoredOnly(results)
	if len(scored) == 0 {
		return core.Synthesis{}, errors.New("no scored countries to synthesize")
	}
	resp, err := s.llm.Complete(ctx, core.CompletionRequest{
		Model:       s.model,
		System:      synthesisSystem,
		Prompt:      fmt.Sprintf("QUERY: %s\nTOPIC: %s\nFINDINGS:\n%s", query, topic, formatFindings(results)),
		Temperature: 0.2,
		MaxTokens:   900,
		JSON:        true,
	})
	if err != nil {
		return core.Synthesis{}, err
	}
	var ans synthesisAnswer
	if err := core.DecodeJSON(resp.Text, &ans); err != nil {
		return core.Synthesis{}, err
	}
	narrative := strings.TrimSpace(ans.Narrative)
	if narrative == "" {
		return core.Synthesis{}, errors.New("empty narrative")
	}
	return core.Synthesis{
		Narrative:  narrative,
		Confidence: coverageAdjusted(ans.Confidence, results),
	}, nil
}

// TemplateSynthesizer builds the narrative deterministically from the scores.
type TemplateSynthesizer struct{}

func (TemplateSynthesizer) Synthesize(ctx context.Context, query, topic string, results []core.CountryResult) (core.Synthesis, error) {
	if err := ctx.Err(); err != nil {
		return core.Synthesis{}, err
	}
	return FallbackSynthesis(topic, results), nil
}

// FallbackSynthesis is the narrative used when no model is available or the
// synthesis call fails.
func FallbackSynthesis(topic string, results []core.CountryResult) core.Synthesis {
	scored := scoredOnly(results)
	var b strings.Builder
	if len(scored) == 0 {
		b.WriteString(fmt.Sprintf("No country coverage of %s could be analysed.", topic))
		return core.Synthesis{Narrative: b.String(), Confidence: 0, Fallback: true}
	}

	sorted := append([]core.CountryResult(nil), scored...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SentimentScore > sorted[j].SentimentScore })

	b.WriteString(fmt.Sprintf("Coverage of %s across %d %s:\n\n", topic, len(scored), plural(len(scored), "country", "countries")))
	for _, r := range sorted {
		b.WriteString(fmt.Sprintf("%s: %s sentiment (%+.2f) from %d sources, credibility %.2f.",
			r.Country, r.SentimentLabel, r.SentimentScore, r.DocumentCount, r.CredibilityScore))
		if len(r.BiasTypes) > 0 {
			b.WriteString(fmt.Sprintf(" Bias signals: %s (severity %.2f).", strings.Join(r.BiasTypes, ", "), r.BiasSeverity))
		}
		b.WriteString("\n")
	}
	if len(sorted) > 1 {
		hi, lo := sorted[0], sorted[len(sorted)-1]
		b.WriteString(fmt.Sprintf("\nThe most favourable coverage comes from %s and the least favourable from %s, a spread of %.2f.",
			hi.Country, lo.Country, hi.SentimentScore-lo.SentimentScore))
	}
	var failed []string
	for _, r := range results {
		if !r.Succeeded() {
			failed = append(failed, r.Country)
		}
	}
	if len(failed) > 0 {
		b.WriteString(fmt.Sprintf("\nNo result for %s.", strings.Join(failed, ", ")))
	}
	return core.Synthesis{
		Narrative:  strings.TrimSpace(b.String()),
		Confidence: coverageAdjusted(0.5, results),
		Fallback:   true,
	}
}

// coverageAdjusted scales a confidence by the share of countries that were scored.
func coverageAdjusted(confidence float64, results []core.CountryResult) float64 {
	if len(results) == 0 {
		return 0
	}
	ratio := float64(len(scoredOnly(results))) / float64(len(results))
	return core.Clamp(confidence, 0, 1) * ratio
}

func scoredOnly(results []core.CountryResult) []core.CountryResult {
	out := make([]core.CountryResult, 0, len(results))
	for _, r := range results {
		if r.Succeeded() {
			out = append(out, r)
		}
	}
	return out
}

func formatFindings(results []core.CountryResult) string {
	var b strings.Builder
	for _, r := range results {
		if !r.Succeeded() {
			b.WriteString(fmt.Sprintf("- %s: not analysed (%s)\n", r.Country, r.Error))
			continue
		}
		b.WriteString(fmt.Sprintf("- %s: score %+.2f (%s), credibility %.2f, %d sources. Reasoning: %s",
			r.Country, r.SentimentScore, r.SentimentLabel, r.CredibilityScore, r.DocumentCount, r.Reasoning))
		if len(r.BiasTypes) > 0 || r.BiasNotes != "" {
			b.WriteString(fmt.Sprintf(" Bias: [%s] severity %.2f. %s", strings.Join(r.BiasTypes, ", "), r.BiasSeverity, r.BiasNotes))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

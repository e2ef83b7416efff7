package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/sentiscope/internal/agent/core"
)

// Bias type slugs reported on a CountryResult.
const (
	BiasSourceSelection = "source_selection"
	BiasFraming         = "framing"
	BiasPoliticalLean   = "political_lean"
	BiasOmission        = "omission"
	BiasSensationalism  = "sensationalism"
	BiasConfirmation    = "confirmation"
	BiasOther           = "other"
)

var biasAliases = map[string]string{
	"source_selection":      BiasSourceSelection,
	"source_selection_bias": BiasSourceSelection,
	"selection":             BiasSourceSelection,
	"framing":               BiasFraming,
	"framing_bias":          BiasFraming,
	"political":             BiasPoliticalLean,
	"political_lean":        BiasPoliticalLean,
	"political_bias":        BiasPoliticalLean,
	"partisan":              BiasPoliticalLean,
	"omission":              BiasOmission,
	"omission_bias":         BiasOmission,
	"sensationalism":        BiasSensationalism,
	"sensational":           BiasSensationalism,
	"confirmation":          BiasConfirmation,
	"confirmation_bias":     BiasConfirmation,
}

// NormalizeBiasTypes maps free-form labels to the fixed slugs, deduplicated and sorted.
func NormalizeBiasTypes(raw []string) []string {
	set := map[string]struct{}{}
	for _, r := range raw {
		key := strings.ToLower(strings.TrimSpace(r))
		if key == "" {
			continue
		}
		key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
		slug, ok := biasAliases[key]
		if !ok {
			slug = BiasOther
		}
		set[slug] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

const biasSystem = `You audit a set of news sources from one country for bias in how they cover a topic.
Respond ONLY with a JSON object:
{"bias_types": [zero or more of "source_selection", "framing", "political_lean", "omission", "sensationalism", "confirmation", "other"],
 "severity": number 0 (balanced) to 1 (severely skewed), "notes": string of 1-3 sentences citing sources by [n]}
Do not judge whether the coverage is positive or negative; only whether it is skewed.`

type biasAnswer struct {
	Types    []string `json:"bias_types"`
	Severity float64  `json:"severity"`
	Notes    string   `json:"notes"`
}

// LLMBias runs the bias pass as its own LLM call.
type LLMBias struct {
	llm   core.LLMProvider
	model string
}

func NewLLMBias(llm core.LLMProvider, model string) *LLMBias {
	return &LLMBias{llm: llm, model: model}
}

func (b *LLMBias) DetectBias(ctx context.Context, topic, country string, docs []core.Document) (core.Bias, error) {
	if len(docs) == 0 {
		return core.Bias{}, ErrNoDocuments
	}
	resp, err := b.llm.Complete(ctx, core.CompletionRequest{
		Model:       b.model,
		System:      biasSystem,
		Prompt:      fmt.Sprintf("TOPIC: %s\nCOUNTRY: %s\nSOURCES:\n%s", topic, country, formatEvidence(docs)),
		Temperature: 0,
		MaxTokens:   400,
		JSON:        true,
	})
	if err != nil {
		return core.Bias{}, err
	}
	var ans biasAnswer
	if err := core.DecodeJSON(resp.Text, &ans); err != nil {
		return core.Bias{}, err
	}
	return core.Bias{
		Types:    NormalizeBiasTypes(ans.Types),
		Severity: core.Clamp(ans.Severity, 0, 1),
		Notes:    strings.TrimSpace(ans.Notes),
	}, nil
}

// HeuristicBias flags structural skew without a model: one outlet dominating
// the set, and sensational vocabulary.
type HeuristicBias struct{}

var sensationalWords = wordSet("shocking", "outrage", "horrific", "slams", "destroys", "chaos", "explosive",
	"bombshell", "catastrophic", "furious", "meltdown", "disaster")

func (HeuristicBias) DetectBias(ctx context.Context, topic, country string, docs []core.Document) (core.Bias, error) {
	if len(docs) == 0 {
		return core.Bias{}, ErrNoDocuments
	}
	if err := ctx.Err(); err != nil {
		return core.Bias{}, err
	}
	var (
		types    []string
		notes    []string
		severity float64
	)

	domains := map[string]int{}
	top := 0
	for _, d := range docs {
		dom := domainOf(d.URL)
		domains[dom]++
		if domains[dom] > top {
			top = domains[dom]
		}
	}
	if share := float64(top) / float64(len(docs)); len(docs) >= 3 && share > 0.5 {
		types = append(types, BiasSourceSelection)
		notes = append(notes, fmt.Sprintf("one outlet supplies %.0f%% of sources", share*100))
		severity += share / 2
	}

	sensational := 0
	for _, d := range docs {
		for _, tok := range tokens(d.Title) {
			if _, ok := sensationalWords[tok]; ok {
				sensational++
				break
			}
		}
	}
	if sensational > 0 {
		ratio := float64(sensational) / float64(len(docs))
		types = append(types, BiasSensationalism)
		notes = append(notes, fmt.Sprintf("%d of %d headlines use sensational language", sensational, len(docs)))
		severity += ratio / 2
	}

	note := "no structural skew detected"
	if len(notes) > 0 {
		note = strings.Join(notes, "; ")
	}
	return core.Bias{Types: NormalizeBiasTypes(types), Severity: core.Clamp(severity, 0, 1), Notes: note}, nil
}

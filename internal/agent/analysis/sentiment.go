package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/sentiscope/internal/agent/core"
)

// ErrNoDocuments is returned when a country has nothing to score.
var ErrNoDocuments = errors.New("no documents to analyse")

const sentimentSystem = `You are a media analyst scoring how news coverage from one country portrays a topic.
Respond ONLY with a JSON object:
{"score": number from -1 (very negative) to 1 (very positive), "reasoning": string of 2-4 sentences citing sources by [n],
 "source_type": one of ["news", "opinion", "government", "mixed", "social", "unknown"],
 "credibility_score": number 0..1 describing the reliability of the sources as a set}
Score the tone toward the topic, not the quality of the sources.`

type sentimentAnswer struct {
	Score       float64 `json:"score"`
	Reasoning   string  `json:"reasoning"`
	SourceType  string  `json:"source_type"`
	Credibility float64 `json:"credibility_score"`
}

// LLMSentiment scores sentiment with one LLM call per country.
type LLMSentiment struct {
	llm    core.LLMProvider
	model  string
	policy *CredibilityPolicy
}

func NewLLMSentiment(llm core.LLMProvider, model string, policy *CredibilityPolicy) *LLMSentiment {
	return &LLMSentiment{llm: llm, model: model, policy: policy}
}

func (s *LLMSentiment) ScoreSentiment(ctx context.Context, topic, country string, docs []core.Document) (core.Sentiment, error) {
	if len(docs) == 0 {
		return core.Sentiment{}, ErrNoDocuments
	}
	prompt := fmt.Sprintf("TOPIC: %s\nCOUNTRY: %s\nSOURCES:\n%s", topic, country, formatEvidence(docs))
	resp, err := s.llm.Complete(ctx, core.CompletionRequest{
		Model:       s.model,
		System:      sentimentSystem,
		Prompt:      prompt,
		Temperature: 0,
		MaxTokens:   500,
		JSON:        true,
	})
	if err != nil {
		return core.Sentiment{}, err
	}
	var ans sentimentAnswer
	if err := core.DecodeJSON(resp.Text, &ans); err != nil {
		return core.Sentiment{}, err
	}
	return finishSentiment(ans.Score, ans.Reasoning, ans.SourceType, ans.Credibility, docs, s.policy), nil
}

// finishSentiment enforces the output bounds shared by every scorer.
func finishSentiment(score float64, reasoning, sourceType string, credibility float64, docs []core.Document, policy *CredibilityPolicy) core.Sentiment {
	score = core.Clamp(score, -1, 1)
	sourceType = strings.ToLower(strings.TrimSpace(sourceType))
	if sourceType == "" {
		sourceType = "unknown"
	}
	return core.Sentiment{
		Score:            score,
		Label:            core.LabelFor(score),
		Reasoning:        strings.TrimSpace(reasoning),
		SourceType:       sourceType,
		CredibilityScore: policy.Blend(credibility, docs),
	}
}

// LexiconSentiment scores tone by counting polar words. It needs no network
// and is used for offline runs and as a cheap baseline.
type LexiconSentiment struct {
	policy *CredibilityPolicy
}

func NewLexiconSentiment(policy *CredibilityPolicy) *LexiconSentiment {
	return &LexiconSentiment{policy: policy}
}

var (
	positiveWords = wordSet("peace", "agreement", "progress", "support", "success", "growth", "hope", "praise",
		"welcome", "improve", "improved", "recovery", "ceasefire", "relief", "cooperation", "win", "gain",
		"positive", "strong", "stable", "celebrate", "breakthrough", "deal", "aid", "rescue")
	negativeWords = wordSet("war", "attack", "attacks", "killed", "violence", "terror", "terrorist", "crisis",
		"condemn", "condemned", "fear", "threat", "collapse", "conflict", "death", "deaths", "protest",
		"sanctions", "failure", "hostage", "hostages", "strike", "strikes", "bomb", "destruction", "criticism",
		"accuse", "accused", "decline", "negative", "weak", "chaos")
)

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && r != '\''
	})
}

func (s *LexiconSentiment) ScoreSentiment(ctx context.Context, topic, country string, docs []core.Document) (core.Sentiment, error) {
	if len(docs) == 0 {
		return core.Sentiment{}, ErrNoDocuments
	}
	if err := ctx.Err(); err != nil {
		return core.Sentiment{}, err
	}
	var pos, neg int
	for _, d := range docs {
		for _, tok := range tokens(d.Title + " " + d.Snippet + " " + d.Content) {
			if _, ok := positiveWords[tok]; ok {
				pos++
			}
			if _, ok := negativeWords[tok]; ok {
				neg++
			}
		}
	}
	score := 0.0
	if pos+neg > 0 {
		score = float64(pos-neg) / float64(pos+neg+2)
	}
	reasoning := fmt.Sprintf("%d positive and %d negative terms across %d %s sources on %s.", pos, neg, len(docs), country, topic)
	return finishSentiment(score, reasoning, "news", 0.5, docs, s.policy), nil
}

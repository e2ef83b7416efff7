package analysis

import (
	"github.com/mohammad-safakhou/sentiscope/config"
	"github.com/mohammad-safakhou/sentiscope/internal/agent/core"
)

// Stages holds the interchangeable scoring implementations, keyed by the
// names accepted in agents.sentiment, agents.bias and agents.synthesizer.
type Stages struct {
	Sentiment   *core.Registry[core.SentimentScorer]
	Bias        *core.Registry[core.BiasDetector]
	Synthesizer *core.Registry[core.Synthesizer]
}

// NewStages registers the built-in implementations. LLM-backed ones are only
// available when llm is non-nil.
func NewStages(llm core.LLMProvider, routing config.LLMRoutingConfig, policy *CredibilityPolicy) Stages {
	s := Stages{
		Sentiment:   core.NewRegistry[core.SentimentScorer]("sentiment scorer"),
		Bias:        core.NewRegistry[core.BiasDetector]("bias detector"),
		Synthesizer: core.NewRegistry[core.Synthesizer]("synthesizer"),
	}
	s.Sentiment.MustRegister("lexicon", NewLexiconSentiment(policy))
	s.Bias.MustRegister("heuristic", HeuristicBias{})
	s.Synthesizer.MustRegister("template", TemplateSynthesizer{})
	if llm != nil {
		analysisModel := routing.Model("analysis")
		s.Sentiment.MustRegister("llm", NewLLMSentiment(llm, analysisModel, policy))
		s.Bias.MustRegister("llm", NewLLMBias(llm, analysisModel))
		s.Synthesizer.MustRegister("llm", NewLLMSynthesizer(llm, routing.Model("synthesis")))
	}
	return s
}

// Resolve picks the configured implementations.
func (s Stages) Resolve(cfg config.AgentsConfig) (core.SentimentScorer, core.BiasDetector, core.Synthesizer, error) {
	sent, err := s.Sentiment.Resolve(cfg.Sentiment)
	if err != nil {
		return nil, nil, nil, err
	}
	bias, err := s.Bias.Resolve(cfg.Bias)
	if err != nil {
		return nil, nil, nil, err
	}
	syn, err := s.Synthesizer.Resolve(cfg.Synthesizer)
	if err != nil {
		return nil, nil, nil, err
	}
	return sent, bias, syn, nil
}

package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/sentiscope/internal/agent/core"
	"github.com/mohammad-safakhou/sentiscope/internal/apperr"
)

type scriptedLLM struct {
	answer string
	err    error
	last   core.CompletionRequest
}

func (s *scriptedLLM) Name() string { return "scripted" }

func (s *scriptedLLM) Complete(_ context.Context, req core.CompletionRequest) (core.Completion, error) {
	s.last = req
	if s.err != nil {
		return core.Completion{}, s.err
	}
	return core.Completion{Text: s.answer}, nil
}

func newTestParser(llm core.LLMProvider) *Parser {
	return NewParser(llm, "test-model", 0.5, 10, nil)
}

func TestParseExtractsExactlyTheNamedCountries(t *testing.T) {
	llm := &scriptedLLM{answer: `{"topic":"X","countries":["US","Israel"],"confidence":0.95}`}
	in, err := newTestParser(llm).Parse(context.Background(), "sentiment analysis on X in US and Israel")
	require.NoError(t, err)
	assert.Equal(t, []string{"US", "Israel"}, in.Countries)
	assert.Equal(t, "X", in.Topic)
	assert.Equal(t, "llm", in.Method)
	assert.True(t, llm.last.JSON)
	assert.Zero(t, llm.last.Temperature)
}

func TestParseDropsCountriesTheQueryNeverNames(t *testing.T) {
	llm := &scriptedLLM{answer: `{"topic":"Hamas","countries":["United States","Israel","Palestine","Israel"],"confidence":0.9}`}
	in, err := newTestParser(llm).Parse(context.Background(), "Do a sentiment analysis on Hamas in US and Israel")
	require.NoError(t, err)
	assert.Equal(t, []string{"United States", "Israel"}, in.Countries)
}

func TestParseFallsBackToScanWhenLLMFails(t *testing.T) {
	llm := &scriptedLLM{err: &apperr.UpstreamError{Provider: "openai", Status: 500, Err: errors.New("down")}}
	in, err := newTestParser(llm).Parse(context.Background(), "Do a sentiment analysis on Hamas in US and Israel")
	require.NoError(t, err)
	assert.Equal(t, []string{"US", "Israel"}, in.Countries)
	assert.Equal(t, "Hamas", in.Topic)
	assert.Equal(t, "scan", in.Method)
}

func TestParseFallsBackToScanWhenEveryAnswerIsInvented(t *testing.T) {
	llm := &scriptedLLM{answer: `{"topic":"t","countries":["France"],"confidence":0.9}`}
	in, err := newTestParser(llm).Parse(context.Background(), "coverage of the election in Germany")
	require.NoError(t, err)
	assert.Equal(t, []string{"Germany"}, in.Countries)
}

func TestParseAsksForClarificationInsteadOfGuessing(t *testing.T) {
	cases := []struct {
		name  string
		llm   *scriptedLLM
		query string
	}{
		{"no countries", &scriptedLLM{answer: `{"topic":"AI regulation","countries":[],"confidence":0.2}`}, "what does the world think about AI regulation"},
		{"low confidence", &scriptedLLM{answer: `{"topic":"X","countries":["Israel"],"confidence":0.3}`}, "how do Israel and its neighbours see X"},
		{"llm down and nothing to scan", &scriptedLLM{err: errors.New("connection refused")}, "what does the world think about AI regulation"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newTestParser(tc.llm).Parse(context.Background(), tc.query)
			require.Error(t, err)
			assert.True(t, IsClarification(err))
			d := apperr.Classify(err)
			assert.Equal(t, apperr.CodeClarification, d.Code)
			assert.True(t, d.Recoverable)
		})
	}
}

func TestParseRejectsEmptyQuery(t *testing.T) {
	_, err := newTestParser(&scriptedLLM{}).Parse(context.Background(), "   ")
	var ve *apperr.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestParseRejectsTooManyCountries(t *testing.T) {
	p := NewParser(nil, "", 0.5, 2, nil)
	_, err := p.Parse(context.Background(), "compare France, Germany and Italy on energy")
	var ve *apperr.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestDeriveTopic(t *testing.T) {
	cases := []struct {
		query     string
		countries []string
		want      string
	}{
		{"Do a sentiment analysis on Hamas in US and Israel", []string{"US", "Israel"}, "Hamas"},
		{"sentiment analysis on X in US and Israel", []string{"US", "Israel"}, "X"},
		{"climate policy across France, Germany and Spain", []string{"France", "Germany", "Spain"}, "climate policy"},
		{"Israel", []string{"Israel"}, "Israel"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, deriveTopic(tc.query, tc.countries), tc.query)
	}
}

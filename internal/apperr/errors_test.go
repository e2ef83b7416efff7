package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		code        Code
		recoverable bool
	}{
		{"validation", &ValidationError{Field: "query", Reason: "empty"}, CodeValidation, true},
		{"rate limit wrapped", fmt.Errorf("search: %w", &RateLimitError{Provider: "tavily", RetryAfter: 3 * time.Second}), CodeRateLimited, true},
		{"upstream", &UpstreamError{Provider: "openai", Op: "chat", Status: 502, Err: errors.New("bad gateway")}, CodeUpstream, true},
		{"fatal", Fatal(CodeAllFailed, "every country failed", nil), CodeAllFailed, false},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), CodeUpstream, true},
		{"unknown", errors.New("boom"), CodeFatal, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Classify(tc.err)
			assert.Equal(t, tc.code, d.Code)
			assert.Equal(t, tc.recoverable, d.Recoverable)
			assert.NotEmpty(t, d.Message)
		})
	}
}

func TestClassifyCarriesRetryAfter(t *testing.T) {
	d := Classify(&RateLimitError{Provider: "serper", RetryAfter: 5 * time.Second})
	assert.Equal(t, 5*time.Second, d.RetryAfter)
}

func TestClassifyFatalPrefersRateLimitCause(t *testing.T) {
	d := Classify(Fatal(CodeAllFailed, "no country could be analysed", &RateLimitError{Provider: "tavily", RetryAfter: 30 * time.Second}))
	assert.Equal(t, CodeRateLimited, d.Code)
	assert.True(t, d.Recoverable)
	assert.Equal(t, 30*time.Second, d.RetryAfter)
	assert.Contains(t, d.Message, "no country could be analysed")
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&RateLimitError{Provider: "x"}))
	assert.True(t, Retryable(&UpstreamError{Provider: "x", Err: errors.New("reset")}))
	assert.True(t, Retryable(&UpstreamError{Provider: "x", Status: 503, Err: errors.New("unavailable")}))
	assert.False(t, Retryable(&UpstreamError{Provider: "x", Status: 401, Err: errors.New("unauthorized")}))
	assert.False(t, Retryable(&ValidationError{Reason: "empty"}))
}

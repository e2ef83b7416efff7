package core

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mohammad-safakhou/sentiscope/internal/apperr"
)

// RetryPolicy bounds local retries of an upstream call.
type RetryPolicy struct {
	MaxRetries int
	Initial    time.Duration
	Max        time.Duration
}

// DefaultRetryPolicy is used when a component is built without one.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 2, Initial: 300 * time.Millisecond, Max: 5 * time.Second}

// hintedBackOff stretches the next wait to a provider's Retry-After hint.
type hintedBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	next := h.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if h.hint > next {
		next = h.hint
	}
	h.hint = 0
	return next
}

// Retry runs op with bounded exponential backoff. Only errors apperr.Retryable
// accepts are retried; the last error is returned once retries are exhausted.
func Retry(ctx context.Context, p RetryPolicy, op func(ctx context.Context) error, notify func(err error, wait time.Duration)) error {
	if p.Initial <= 0 {
		p.Initial = DefaultRetryPolicy.Initial
	}
	if p.Max <= 0 {
		p.Max = DefaultRetryPolicy.Max
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.Initial
	exp.MaxInterval = p.Max
	exp.MaxElapsedTime = 0
	hinted := &hintedBackOff{BackOff: exp}
	b := backoff.WithContext(backoff.WithMaxRetries(hinted, uint64(p.MaxRetries)), ctx)

	attempt := func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !apperr.Retryable(err) {
			return backoff.Permanent(err)
		}
		var rl *apperr.RateLimitError
		if errors.As(err, &rl) {
			hinted.hint = rl.RetryAfter
		}
		return err
	}
	if notify == nil {
		return backoff.Retry(attempt, b)
	}
	return backoff.RetryNotify(attempt, b, notify)
}

package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mohammad-safakhou/sentiscope/internal/apperr"
)

// HTTPClient performs JSON calls against a single upstream provider and maps
// failures onto the apperr taxonomy. Retries are the caller's concern (see Retry).
type HTTPClient struct {
	provider string
	client   *http.Client
	budget   Budget
}

func NewHTTPClient(provider string, timeout time.Duration, budget Budget) *HTTPClient {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if budget == nil {
		budget = Unlimited{}
	}
	return &HTTPClient{provider: provider, client: &http.Client{Timeout: timeout}, budget: budget}
}

// WithTransport swaps the underlying round tripper (tests use httptest servers instead).
func (c *HTTPClient) WithTransport(rt http.RoundTripper) *HTTPClient {
	c.client.Transport = rt
	return c
}

func (c *HTTPClient) DoJSON(ctx context.Context, method, url string, headers map[string]string, body any, out any) error {
	if err := c.budget.Take(ctx, c.provider); err != nil {
		return err
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &apperr.UpstreamError{Provider: c.provider, Op: method, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &apperr.RateLimitError{Provider: c.provider, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		// read response body (best-effort) to include in error
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apperr.UpstreamError{Provider: c.provider, Op: method, Status: resp.StatusCode, Err: errors.New(string(b))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &apperr.UpstreamError{Provider: c.provider, Op: "decode", Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

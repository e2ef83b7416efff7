// Package session runs research sessions: it sequences intent parsing,
// per-country search and scoring, synthesis and artifact generation, and
// streams ordered progress events to the client that started the run.
package session

import (
	"sync"
	"time"

	"github.com/mohammad-safakhou/sentiscope/internal/agent/core"
	"github.com/mohammad-safakhou/sentiscope/internal/apperr"
	"github.com/mohammad-safakhou/sentiscope/internal/artifact"
)

// Session is a point-in-time copy of a session's state.
type Session struct {
	ID          string               `json:"session_id"`
	Query       string               `json:"query"`
	Topic       string               `json:"topic,omitempty"`
	Countries   []string             `json:"countries,omitempty"`
	State       State                `json:"state"`
	Results     []core.CountryResult `json:"results,omitempty"`
	Citations   []core.Citation      `json:"citations,omitempty"`
	Artifacts   []artifact.Artifact  `json:"artifacts,omitempty"`
	Failures    []core.Failure       `json:"partial_failures,omitempty"`
	Narrative   string               `json:"narrative,omitempty"`
	Confidence  float64              `json:"confidence"`
	Error       string               `json:"error,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}

// run is the live, mutable state of one session owned by its orchestrator goroutine.
type run struct {
	id        string
	query     string
	messageID string
	explicit  []artifact.Kind
	createdAt time.Time

	machine  *Machine
	token    *Token
	emitter  *emitter
	citation *CitationLedger

	mu          sync.Mutex
	topic       string
	countries   []string
	results     map[string]core.CountryResult
	order       []string
	artifacts   []artifact.Artifact
	failures    []core.Failure
	throttled   *apperr.RateLimitError
	narrative   string
	confidence  float64
	errMsg      string
	completedAt *time.Time
}

func (r *run) setIntent(in core.Intent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topic = in.Topic
	r.countries = append([]string(nil), in.Countries...)
	r.order = append([]string(nil), in.Countries...)
}

func (r *run) setResult(res core.CountryResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[res.Country] = res
}

func (r *run) result(country string) (core.CountryResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[country]
	return res, ok
}

// orderedResults returns results in the order the countries were requested.
func (r *run) orderedResults() []core.CountryResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.CountryResult, 0, len(r.results))
	for _, c := range r.order {
		if res, ok := r.results[c]; ok {
			out = append(out, res)
		}
	}
	return out
}

func (r *run) addFailure(f core.Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
}

// throttle remembers the rate limit with the longest retry hint.
func (r *run) throttle(re *apperr.RateLimitError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.throttled == nil || re.RetryAfter > r.throttled.RetryAfter {
		r.throttled = re
	}
}

func (r *run) rateLimit() *apperr.RateLimitError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.throttled
}

func (r *run) putArtifact(a artifact.Artifact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.artifacts {
		if r.artifacts[i].ID == a.ID {
			r.artifacts[i] = a
			return
		}
	}
	r.artifacts = append(r.artifacts, a)
}

func (r *run) setSynthesis(s core.Synthesis) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.narrative = s.Narrative
	r.confidence = s.Confidence
}

func (r *run) finish(at time.Time, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completedAt == nil {
		r.completedAt = &at
	}
	if errMsg != "" && r.errMsg == "" {
		r.errMsg = errMsg
	}
}

func (r *run) snapshot() Session {
	results := r.orderedResults()
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Session{
		ID:         r.id,
		Query:      r.query,
		Topic:      r.topic,
		Countries:  append([]string(nil), r.countries...),
		State:      r.machine.State(),
		Results:    results,
		Citations:  r.citation.All(),
		Artifacts:  append([]artifact.Artifact(nil), r.artifacts...),
		Failures:   append([]core.Failure(nil), r.failures...),
		Narrative:  r.narrative,
		Confidence: r.confidence,
		Error:      r.errMsg,
		CreatedAt:  r.createdAt,
	}
	if r.completedAt != nil {
		at := *r.completedAt
		s.CompletedAt = &at
	}
	return s
}

// HasArtifact reports whether any artifact finished ready.
func (s Session) HasArtifact() bool {
	for _, a := range s.Artifacts {
		if a.Status == artifact.StatusReady {
			return true
		}
	}
	return false
}

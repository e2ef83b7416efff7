package apperr

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Code is the machine-readable error code carried by protocol error events.
type Code string

const (
	CodeValidation    Code = "validation_error"
	CodeUpstream      Code = "upstream_error"
	CodeRateLimited   Code = "rate_limited"
	CodePartial       Code = "partial_failure"
	CodeFatal         Code = "internal_error"
	CodeClarification Code = "clarification_needed"
	CodeCancelled     Code = "cancelled"
	CodeTimeout       Code = "session_timeout"
	CodeBusy          Code = "session_busy"
	CodeAllFailed     Code = "all_countries_failed"
	CodeNotFound      Code = "not_found"
	CodeBadMessage    Code = "bad_message"
)

// ValidationError rejects malformed, empty or oversized input before a session exists.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UpstreamError wraps a failed search or LLM provider call.
type UpstreamError struct {
	Provider string
	Op       string
	Status   int
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s %s failed (status %d): %v", e.Provider, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// RateLimitError signals upstream throttling. RetryAfter is zero when the provider gave no hint.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limited", e.Provider)
}

// FatalError aborts the whole session.
type FatalError struct {
	Code   Code
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal builds a FatalError with the given code.
func Fatal(code Code, reason string, err error) *FatalError {
	return &FatalError{Code: code, Reason: reason, Err: err}
}

// Details is the classified view of an error as surfaced to clients.
type Details struct {
	Code        Code
	Message     string
	Recoverable bool
	RetryAfter  time.Duration
}

// coder lets other packages contribute their own codes without importing this one in reverse.
type coder interface {
	ErrorCode() Code
	Recoverable() bool
}

// Classify converts any error into the client-visible taxonomy.
func Classify(err error) Details {
	if err == nil {
		return Details{}
	}
	var (
		ve *ValidationError
		re *RateLimitError
		ue *UpstreamError
		fe *FatalError
		ce coder
	)
	switch {
	case errors.As(err, &ve):
		return Details{Code: CodeValidation, Message: ve.Error(), Recoverable: true}
	case errors.As(err, &re):
		return Details{Code: CodeRateLimited, Message: err.Error(), Recoverable: true, RetryAfter: re.RetryAfter}
	case errors.As(err, &ce):
		return Details{Code: ce.ErrorCode(), Message: err.Error(), Recoverable: ce.Recoverable()}
	case errors.As(err, &fe):
		code := fe.Code
		if code == "" {
			code = CodeFatal
		}
		return Details{Code: code, Message: fe.Error(), Recoverable: false}
	case errors.As(err, &ue):
		return Details{Code: CodeUpstream, Message: ue.Error(), Recoverable: true}
	case errors.Is(err, context.DeadlineExceeded):
		return Details{Code: CodeUpstream, Message: "deadline exceeded", Recoverable: true}
	default:
		return Details{Code: CodeFatal, Message: err.Error(), Recoverable: false}
	}
}

// Retryable reports whether a stage should retry the call that produced err.
func Retryable(err error) bool {
	var (
		re *RateLimitError
		ue *UpstreamError
	)
	if errors.As(err, &re) {
		return true
	}
	if errors.As(err, &ue) {
		// client errors other than throttling will not improve on retry
		return ue.Status == 0 || ue.Status >= 500 || ue.Status == 408
	}
	return false
}

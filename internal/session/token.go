package session

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrCancelled is the cause attached to a cancelled session's context.
var ErrCancelled = errors.New("session cancelled")

// Token carries a session's cancellation through every stage. Work started
// before Cancel may finish, but its results must be checked against
// Cancelled before they are used.
type Token struct {
	ctx       context.Context
	cancel    context.CancelCauseFunc
	cancelled atomic.Bool
}

func NewToken(parent context.Context) *Token {
	ctx, cancel := context.WithCancelCause(parent)
	return &Token{ctx: ctx, cancel: cancel}
}

// Cancel trips the token. It reports true only for the call that tripped it.
func (t *Token) Cancel() bool {
	if !t.cancelled.CompareAndSwap(false, true) {
		return false
	}
	t.cancel(ErrCancelled)
	return true
}

func (t *Token) Cancelled() bool { return t.cancelled.Load() }

// Context is cancelled with cause ErrCancelled when the token trips.
func (t *Token) Context() context.Context { return t.ctx }

// release frees the context's resources once the run is over.
func (t *Token) release() { t.cancel(context.Canceled) }

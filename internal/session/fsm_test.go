package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/sentiscope/internal/agent/core"
	"github.com/mohammad-safakhou/sentiscope/internal/apperr"
	"github.com/mohammad-safakhou/sentiscope/internal/protocol"
)

func TestMachineTransitions(t *testing.T) {
	cases := []struct {
		name string
		path []State
		ok   bool
	}{
		{"happy path", []State{StateReceived, StateParsing, StateSearching, StateScoring, StateSynthesizing, StateArtifactPending, StateCompleted}, true},
		{"skip parsing", []State{StateReceived, StateSearching}, false},
		{"cancel from idle", []State{StateCancelled}, true},
		{"fail mid run", []State{StateReceived, StateParsing, StateFailed}, true},
		{"backwards", []State{StateReceived, StateParsing, StateReceived}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMachine()
			var err error
			for _, s := range tc.path {
				if err = m.Transition(s); err != nil {
					break
				}
			}
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, tc.path[len(tc.path)-1], m.State())
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		})
	}
}

func TestMachineTerminalIsFinal(t *testing.T) {
	for _, terminal := range []State{StateCompleted, StateCancelled, StateFailed} {
		m := NewMachine()
		if terminal == StateCompleted {
			for _, s := range []State{StateReceived, StateParsing, StateSearching, StateScoring, StateSynthesizing, StateArtifactPending} {
				require.NoError(t, m.Transition(s))
			}
		}
		require.NoError(t, m.Transition(terminal))
		assert.True(t, m.State().Terminal())
		assert.ErrorIs(t, m.Transition(StateCancelled), ErrInvalidTransition)
		assert.ErrorIs(t, m.Transition(StateFailed), ErrInvalidTransition)
		assert.Equal(t, terminal, m.State())
	}
}

func TestMachineSingleTerminalWinner(t *testing.T) {
	m := NewMachine()
	require.NoError(t, m.Transition(StateReceived))
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := StateCancelled
			if i%2 == 0 {
				to = StateFailed
			}
			if m.Transition(to) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Len(t, m.History(), 3)
}

func TestTokenCancelOnce(t *testing.T) {
	tok := NewToken(context.Background())
	assert.False(t, tok.Cancelled())
	assert.True(t, tok.Cancel())
	assert.False(t, tok.Cancel())
	assert.True(t, tok.Cancelled())
	<-tok.Context().Done()
	assert.ErrorIs(t, context.Cause(tok.Context()), ErrCancelled)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Send(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) types() []protocol.Type {
	var out []protocol.Type
	for _, e := range r.all() {
		out = append(out, e.Type)
	}
	return out
}

func TestEmitterOrdersAndClosesOnTerminal(t *testing.T) {
	rec := &recorder{}
	e := newEmitter("s1", rec, 4, nil)
	e.start()
	assert.True(t, e.emit(protocol.TypeSessionStart, "m1", protocol.SessionStart{SessionID: "s1"}))
	for i := 0; i < 10; i++ {
		e.emit(protocol.TypeStatus, "", protocol.Status{Step: "searching"})
	}
	assert.True(t, e.emit(protocol.TypeComplete, "", protocol.Complete{SessionID: "s1"}))
	assert.False(t, e.emit(protocol.TypeError, "", protocol.Error{}))
	assert.False(t, e.emit(protocol.TypeStatus, "", protocol.Status{}))
	e.wait()

	events := rec.all()
	require.Len(t, events, 12)
	assert.Equal(t, "m1", events[0].MessageID)
	assert.Equal(t, protocol.TypeComplete, events[len(events)-1].Type)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Seq)
		assert.Equal(t, "s1", ev.SessionID)
	}
	assert.True(t, e.isClosed())
}

func TestEmitterHoldsEventsUntilStarted(t *testing.T) {
	rec := &recorder{}
	e := newEmitter("s1", rec, 4, nil)
	e.emit(protocol.TypeSessionStart, "", protocol.SessionStart{SessionID: "s1"})
	e.emit(protocol.TypeError, "", protocol.Error{Code: apperr.CodeCancelled})
	assert.Empty(t, rec.all())

	e.start()
	e.wait()
	assert.Equal(t, []protocol.Type{protocol.TypeSessionStart, protocol.TypeError}, rec.types())

	dropped := newEmitter("s2", rec, 4, nil)
	dropped.emit(protocol.TypeSessionStart, "", protocol.SessionStart{SessionID: "s2"})
	dropped.discard()
	dropped.wait()
	assert.Len(t, rec.all(), 2)
}

func TestPartialErrorKeepsStreamOpen(t *testing.T) {
	rec := &recorder{}
	e := newEmitter("s1", rec, 4, nil)
	e.start()
	e.emit(protocol.TypeError, "", protocol.Error{Code: apperr.CodeRateLimited, Recoverable: true, Partial: true})
	assert.False(t, e.isClosed())
	assert.True(t, e.emit(protocol.TypeComplete, "", protocol.Complete{SessionID: "s1"}))
	e.wait()
	assert.Equal(t, []protocol.Type{protocol.TypeError, protocol.TypeComplete}, rec.types())
}

func TestEventEnvelope(t *testing.T) {
	env, err := Event{Type: protocol.TypeContent, SessionID: "s", Payload: protocol.Content{Content: "hi", IsComplete: true}}.Envelope()
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeContent, env.Type)
	assert.JSONEq(t, `{"content":"hi","is_complete":true}`, string(env.Data))
}

func TestCitationLedgerDedupes(t *testing.T) {
	l := NewCitationLedger()
	added := l.Add(
		core.Citation{Title: "A", URL: "https://www.example.com/a?utm_source=x"},
		core.Citation{Title: "A again", URL: "https://example.com/a"},
		core.Citation{Title: "no url"},
	)
	assert.Len(t, added, 2)
	assert.Empty(t, l.Add(core.Citation{Title: "no url"}))
	assert.Len(t, l.Add(core.Citation{Title: "B", URL: "https://example.com/b"}), 1)
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, "A", l.All()[0].Title)
}

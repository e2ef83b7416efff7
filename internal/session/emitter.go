package session

import (
	"sync"
	"time"

	"github.com/mohammad-safakhou/sentiscope/internal/protocol"
)

// Event is one outbound message of a session.
type Event struct {
	Type      protocol.Type
	SessionID string
	MessageID string
	Payload   any
	Timestamp time.Time
	Seq       int64
}

// Terminal reports whether the event ends the session's stream.
func (e Event) Terminal() bool { return protocol.Ends(e.Type, e.Payload) }

// Envelope renders the event in wire form.
func (e Event) Envelope() (protocol.Envelope, error) {
	return protocol.NewEnvelope(e.Type, e.SessionID, e.MessageID, e.Payload, e.Timestamp)
}

// Sink receives a session's events in order from a single goroutine.
type Sink interface {
	Send(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Send(e Event) { f(e) }

// emitter serialises every event of one session through a single writer
// goroutine. The first terminal event closes it; later emits are dropped.
// Events queue up until start is called.
type emitter struct {
	sessionID string
	sink      Sink
	now       func() time.Time
	observe   func(protocol.Type)
	startOnce sync.Once

	mu     sync.Mutex
	ch     chan Event
	closed bool
	seq    int64
	done   chan struct{}
}

func newEmitter(sessionID string, sink Sink, buffer int, observe func(protocol.Type)) *emitter {
	if buffer <= 0 {
		buffer = 64
	}
	if observe == nil {
		observe = func(protocol.Type) {}
	}
	e := &emitter{
		sessionID: sessionID,
		sink:      sink,
		now:       time.Now,
		observe:   observe,
		ch:        make(chan Event, buffer),
		done:      make(chan struct{}),
	}
	return e
}

// start begins delivering queued events to the sink.
func (e *emitter) start() {
	e.startOnce.Do(func() { go e.loop() })
}

// discard drops the queued events of a stream that was never started.
func (e *emitter) discard() {
	e.close()
	e.startOnce.Do(func() { close(e.done) })
}

func (e *emitter) loop() {
	defer close(e.done)
	for ev := range e.ch {
		e.sink.Send(ev)
	}
}

// emit queues an event. It reports false when the stream is already closed.
func (e *emitter) emit(t protocol.Type, messageID string, payload any) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.seq++
	ev := Event{
		Type:      t,
		SessionID: e.sessionID,
		MessageID: messageID,
		Payload:   payload,
		Timestamp: e.now().UTC(),
		Seq:       e.seq,
	}
	e.ch <- ev
	e.observe(t)
	if ev.Terminal() {
		e.closed = true
		close(e.ch)
	}
	return true
}

// close ends the stream without a terminal event.
func (e *emitter) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}

func (e *emitter) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// wait blocks until every queued event has been delivered.
func (e *emitter) wait() { <-e.done }

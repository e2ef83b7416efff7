package session

import (
	"errors"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"
)

// ErrSessionNotFound is returned for an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// Manager keeps live and recently finished sessions in a TTL cache so they
// can be polled and cancelled by id.
type Manager struct {
	cache  *cache.Cache
	retain time.Duration
}

// NewManager retains each session for retain after its last update.
func NewManager(retain time.Duration) *Manager {
	if retain <= 0 {
		retain = 2 * time.Hour
	}
	return &Manager{cache: cache.New(retain, retain/2), retain: retain}
}

func (m *Manager) put(r *run) {
	m.cache.Set(r.id, r, m.retain)
}

// touch restarts r's retention period.
func (m *Manager) touch(r *run) { m.put(r) }

func (m *Manager) get(id string) (*run, bool) {
	v, ok := m.cache.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*run), true
}

// Get returns a snapshot of a live or retained session.
func (m *Manager) Get(id string) (Session, error) {
	r, ok := m.get(id)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return r.snapshot(), nil
}

// Delete forgets a session.
func (m *Manager) Delete(id string) { m.cache.Delete(id) }

// Expired returns finished sessions that completed before cutoff.
func (m *Manager) Expired(cutoff time.Time) []Session {
	var out []Session
	for _, item := range m.cache.Items() {
		r := item.Object.(*run)
		s := r.snapshot()
		if s.State.Terminal() && s.CompletedAt != nil && s.CompletedAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

// Active returns the number of sessions still running.
func (m *Manager) Active() int {
	n := 0
	for _, item := range m.cache.Items() {
		if !item.Object.(*run).machine.State().Terminal() {
			n++
		}
	}
	return n
}

func (m *Manager) each(fn func(*run)) {
	for _, item := range m.cache.Items() {
		fn(item.Object.(*run))
	}
}

// add registers a new session, failing when the id is already taken.
func (m *Manager) add(r *run) error {
	return m.cache.Add(r.id, r, m.retain)
}

// List returns every retained session, newest first.
func (m *Manager) List() []Session {
	var out []Session
	m.each(func(r *run) { out = append(out, r.snapshot()) })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

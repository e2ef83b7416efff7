// Package store archives completed sessions in Postgres and keeps a
// full-text index over them for history search.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sentiscope/config"
	"github.com/mohammad-safakhou/sentiscope/internal/session"
)

// ErrNotFound is returned when no archived session has the id.
var ErrNotFound = errors.New("archived session not found")

// reindexLimit bounds how many recent sessions are loaded into the index on open.
const reindexLimit = 5000

type Store struct {
	DB     *sql.DB
	index  *Index
	logger *zap.Logger
}

// New wraps an open database handle.
func New(db *sql.DB, logger *zap.Logger) (*Store, error) {
	idx, err := NewIndex()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{DB: db, index: idx, logger: logger.Named("store")}, nil
}

// Open connects to Postgres and rebuilds the search index from recent sessions.
func Open(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s, err := New(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	n, err := s.Reindex(ctx, reindexLimit)
	if err != nil {
		s.logger.Warn("reindex failed", zap.Error(err))
	} else {
		s.logger.Info("history index loaded", zap.Int("sessions", n))
	}
	return s, nil
}

func (s *Store) Close() error {
	_ = s.index.Close()
	return s.DB.Close()
}

const sessionColumns = `id, query, topic, countries, state, narrative, confidence, results, citations, artifacts, partial_failures, error, created_at, completed_at`

// Archive upserts a session snapshot and indexes it.
func (s *Store) Archive(ctx context.Context, sess session.Session) error {
	results, err := marshalJSON(sess.Results)
	if err != nil {
		return err
	}
	citations, err := marshalJSON(sess.Citations)
	if err != nil {
		return err
	}
	artifacts, err := marshalJSON(sess.Artifacts)
	if err != nil {
		return err
	}
	failures, err := marshalJSON(sess.Failures)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO sessions (`+sessionColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (id) DO UPDATE SET
  state = EXCLUDED.state,
  narrative = EXCLUDED.narrative,
  confidence = EXCLUDED.confidence,
  results = EXCLUDED.results,
  citations = EXCLUDED.citations,
  artifacts = EXCLUDED.artifacts,
  partial_failures = EXCLUDED.partial_failures,
  error = EXCLUDED.error,
  completed_at = EXCLUDED.completed_at`,
		sess.ID, sess.Query, sess.Topic, pq.Array(sess.Countries), string(sess.State), sess.Narrative, sess.Confidence,
		results, citations, artifacts, failures, sess.Error, sess.CreatedAt, sess.CompletedAt)
	if err != nil {
		return fmt.Errorf("archive session %s: %w", sess.ID, err)
	}
	if err := s.index.Add(sess); err != nil {
		s.logger.Warn("index session failed", zap.String("session_id", sess.ID), zap.Error(err))
	}
	return nil
}

// Get loads one archived session.
func (s *Store) Get(ctx context.Context, id string) (session.Session, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, ErrNotFound
	}
	return sess, err
}

// Search lists archived sessions. An empty query returns the most recent ones;
// otherwise matches come back in relevance order.
func (s *Store) Search(ctx context.Context, q string, limit int) ([]session.Session, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if q == "" {
		rows, err := s.DB.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC LIMIT $1`, limit)
		if err != nil {
			return nil, err
		}
		return collect(rows)
	}

	ids, err := s.index.Search(q, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	found, err := collect(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]session.Session, len(found))
	for _, f := range found {
		byID[f.ID] = f
	}
	out := make([]session.Session, 0, len(found))
	for _, id := range ids {
		if f, ok := byID[id]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// DeleteOlderThan removes sessions created before cutoff and returns their
// ids and artifacts so the caller can drop the blobs as well.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]session.Session, error) {
	rows, err := s.DB.QueryContext(ctx, `DELETE FROM sessions WHERE created_at < $1 RETURNING id, artifacts`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []session.Session
	for rows.Next() {
		var (
			sess session.Session
			raw  []byte
		)
		if err := rows.Scan(&sess.ID, &raw); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(raw, &sess.Artifacts); err != nil {
			return nil, err
		}
		_ = s.index.Remove(sess.ID)
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Reindex loads up to limit recent sessions into the search index.
func (s *Store) Reindex(ctx context.Context, limit int) (int, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return 0, err
	}
	all, err := collect(rows)
	if err != nil {
		return 0, err
	}
	for _, sess := range all {
		if err := s.index.Add(sess); err != nil {
			return 0, err
		}
	}
	return len(all), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (session.Session, error) {
	var (
		sess      session.Session
		state     string
		completed sql.NullTime

		results, citations, artifacts, failures []byte
	)
	err := row.Scan(&sess.ID, &sess.Query, &sess.Topic, pq.Array(&sess.Countries), &state, &sess.Narrative, &sess.Confidence,
		&results, &citations, &artifacts, &failures, &sess.Error, &sess.CreatedAt, &completed)
	if err != nil {
		return session.Session{}, err
	}
	sess.State = session.State(state)
	if completed.Valid {
		t := completed.Time
		sess.CompletedAt = &t
	}
	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{results, &sess.Results},
		{citations, &sess.Citations},
		{artifacts, &sess.Artifacts},
		{failures, &sess.Failures},
	} {
		if err := unmarshalJSON(f.raw, f.dst); err != nil {
			return session.Session{}, err
		}
	}
	return sess, nil
}

func collect(rows *sql.Rows) ([]session.Session, error) {
	defer rows.Close()
	var out []session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// marshalJSON encodes v for a jsonb column; nil slices become [].
func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return "[]", nil
	}
	return string(b), nil
}

func unmarshalJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

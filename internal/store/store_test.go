package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/mohammad-safakhou/sentiscope/internal/agent/core"
	"github.com/mohammad-safakhou/sentiscope/internal/artifact"
	"github.com/mohammad-safakhou/sentiscope/internal/session"
)

var columns = []string{"id", "query", "topic", "countries", "state", "narrative", "confidence", "results", "citations", "artifacts", "partial_failures", "error", "created_at", "completed_at"}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	st, err := New(db, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return st, mock
}

func sampleSession(id string) session.Session {
	done := time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC)
	return session.Session{
		ID:        id,
		Query:     "How is Hamas covered in the US and Israel?",
		Topic:     "Hamas",
		Countries: []string{"US", "Israel"},
		State:     session.StateCompleted,
		Results: []core.CountryResult{
			{Country: "US", Status: core.CountryScored, SentimentScore: -0.3, SentimentLabel: core.LabelNegative},
		},
		Narrative:   "Coverage diverges sharply between the two countries.",
		Confidence:  0.7,
		CreatedAt:   done.Add(-5 * time.Minute),
		CompletedAt: &done,
	}
}

func TestArchiveIndexesSession(t *testing.T) {
	st, mock := newMockStore(t)
	sess := sampleSession("6f1c1c9e-5d55-4d3c-9a49-1c1f0d6a0001")

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO sessions (`+sessionColumns+`)`)).
		WithArgs(sess.ID, sess.Query, sess.Topic, sqlmock.AnyArg(), "completed", sess.Narrative, sess.Confidence,
			sqlmock.AnyArg(), "[]", "[]", "[]", "", sess.CreatedAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := st.Archive(context.Background(), sess); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	rows := sqlmock.NewRows(columns).AddRow(
		sess.ID, sess.Query, sess.Topic, "{US,Israel}", "completed", sess.Narrative, sess.Confidence,
		[]byte(`[{"country":"US","status":"scored","sentiment_score":-0.3,"credibility_score":0,"bias_severity":0,"document_count":0}]`),
		[]byte(`[]`), []byte(`[]`), []byte(`[]`), "", sess.CreatedAt, *sess.CompletedAt)
	mock.ExpectQuery(`SELECT .* FROM sessions WHERE id = ANY\(\$1\)`).WillReturnRows(rows)

	found, err := st.Search(context.Background(), "israel", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(found) != 1 || found[0].ID != sess.ID {
		t.Fatalf("expected archived session in results, got %+v", found)
	}
	got := found[0]
	if len(got.Countries) != 2 || got.Countries[1] != "Israel" {
		t.Fatalf("countries not decoded: %v", got.Countries)
	}
	if got.State != session.StateCompleted || got.CompletedAt == nil {
		t.Fatalf("unexpected state %q completed_at %v", got.State, got.CompletedAt)
	}
	if len(got.Results) != 1 || got.Results[0].SentimentScore != -0.3 {
		t.Fatalf("results not decoded: %+v", got.Results)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchWithoutMatchesSkipsDatabase(t *testing.T) {
	st, mock := newMockStore(t)
	found, err := st.Search(context.Background(), "nothing-indexed", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected no results, got %d", len(found))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchEmptyQueryListsRecent(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows(columns).
		AddRow("a", "q1", "t1", "{}", "completed", "", 0.5, []byte(`[]`), []byte(`[]`), []byte(`[]`), []byte(`[]`), "", now, nil).
		AddRow("b", "q2", "t2", "{US}", "completed", "", 0.4, []byte(`[]`), []byte(`[]`), []byte(`[]`), []byte(`[]`), "", now.Add(-time.Hour), nil)
	mock.ExpectQuery(`SELECT .* FROM sessions ORDER BY created_at DESC LIMIT \$1`).WithArgs(20).WillReturnRows(rows)

	found, err := st.Search(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(found) != 2 || found[0].ID != "a" {
		t.Fatalf("unexpected results %+v", found)
	}
	if found[1].CompletedAt != nil {
		t.Fatalf("expected nil completed_at")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetMissingSession(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .* FROM sessions WHERE id = \$1`).WithArgs("missing").WillReturnRows(sqlmock.NewRows(columns))

	if _, err := st.Get(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteOlderThanReturnsArtifacts(t *testing.T) {
	st, mock := newMockStore(t)
	cutoff := time.Now().Add(-24 * time.Hour)
	rows := sqlmock.NewRows([]string{"id", "artifacts"}).
		AddRow("old-1", []byte(`[{"artifact_id":"art-1","kind":"table","status":"ready"}]`)).
		AddRow("old-2", []byte(`[]`))
	mock.ExpectQuery(`DELETE FROM sessions WHERE created_at < \$1 RETURNING id, artifacts`).
		WithArgs(cutoff).
		WillReturnRows(rows)

	deleted, err := st.DeleteOlderThan(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("DeleteOlderThan returned error: %v", err)
	}
	if len(deleted) != 2 {
		t.Fatalf("expected 2 sessions deleted, got %d", len(deleted))
	}
	if len(deleted[0].Artifacts) != 1 || deleted[0].Artifacts[0].Kind != artifact.KindTable {
		t.Fatalf("artifacts not decoded: %+v", deleted[0].Artifacts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestIndexSearchAndRemove(t *testing.T) {
	idx, err := NewIndex()
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	defer idx.Close()

	a := sampleSession("a")
	b := sampleSession("b")
	b.Topic, b.Query, b.Narrative, b.Countries = "Ukraine grain deal", "grain exports", "Shipping resumed.", []string{"Turkey"}
	for _, s := range []session.Session{a, b} {
		if err := idx.Add(s); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	ids, err := idx.Search("grain", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 1 || ids[0] != "b" {
		t.Fatalf("expected [b], got %v", ids)
	}
	if _, err := idx.Search(`"unterminated`, 10); err != nil {
		t.Fatalf("malformed query should fall back to match: %v", err)
	}

	if err := idx.Remove("b"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	ids, err = idx.Search("grain", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no hits after remove, got %v", ids)
	}
}

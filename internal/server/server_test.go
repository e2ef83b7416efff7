package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sentiscope/config"
	"github.com/mohammad-safakhou/sentiscope/internal/agent/analysis"
	"github.com/mohammad-safakhou/sentiscope/internal/agent/core"
	"github.com/mohammad-safakhou/sentiscope/internal/artifact"
	"github.com/mohammad-safakhou/sentiscope/internal/objectstore"
	"github.com/mohammad-safakhou/sentiscope/internal/session"
	"github.com/mohammad-safakhou/sentiscope/internal/store"
)

type stubParser struct{}

func (stubParser) Parse(context.Context, string) (core.Intent, error) {
	return core.Intent{Topic: "Hamas", Countries: []string{"US", "Israel"}, Confidence: 0.9}, nil
}

// stubSearch blocks until cancelled for queries containing "hang".
type stubSearch struct{}

func (stubSearch) Fetch(ctx context.Context, q core.SearchQuery) ([]core.Document, error) {
	if strings.Contains(q.Topic, "hang") {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []core.Document{
		{Title: q.Country + " coverage brings hope", URL: "https://" + strings.ToLower(q.Country) + ".example.com/1"},
		{Title: "Wire report", URL: "https://wire.example.com/x"},
	}, nil
}

type hangParser struct{}

func (hangParser) Parse(_ context.Context, query string) (core.Intent, error) {
	return core.Intent{Topic: query, Countries: []string{"US"}, Confidence: 0.9}, nil
}

type stubArchive struct {
	sessions map[string]session.Session
	queries  []string
}

func (a *stubArchive) Get(_ context.Context, id string) (session.Session, error) {
	s, ok := a.sessions[id]
	if !ok {
		return session.Session{}, store.ErrNotFound
	}
	return s, nil
}

func (a *stubArchive) Search(_ context.Context, q string, limit int) ([]session.Session, error) {
	a.queries = append(a.queries, q)
	var out []session.Session
	for _, s := range a.sessions {
		out = append(out, s)
	}
	return out, nil
}

type fixture struct {
	orch  *session.Orchestrator
	gen   *artifact.Generator
	blobs *objectstore.Memory
	e     *echo.Echo
}

func newFixture(t *testing.T, parser core.IntentParser, archive Archive) *fixture {
	t.Helper()
	blobs := objectstore.NewMemory()
	gen := artifact.NewGenerator(blobs, config.ArtifactsConfig{})
	orch, err := session.NewOrchestrator(session.Config{}, session.Deps{
		Parser:      parser,
		Search:      stubSearch{},
		Sentiment:   analysis.NewLexiconSentiment(nil),
		Bias:        analysis.HeuristicBias{},
		Synthesizer: analysis.TemplateSynthesizer{},
		Artifacts:   gen,
	}, session.NewManager(time.Hour))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})
	return &fixture{orch: orch, gen: gen, blobs: blobs, e: NewRouter(Routes{Sessions: orch, Archive: archive, Artifacts: gen})}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) waitFor(t *testing.T, id string, state session.State) session.Session {
	t.Helper()
	var got session.Session
	require.Eventually(t, func() bool {
		s, err := f.orch.Get(id)
		if err != nil {
			return false
		}
		got = s
		return s.State == state
	}, 3*time.Second, 10*time.Millisecond)
	return got
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestCreateAndPollSession(t *testing.T) {
	f := newFixture(t, stubParser{}, nil)

	rec := f.do(http.MethodPost, "/api/sessions", `{"query":"Compare sentiment on Hamas in US and Israel"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	created := decode[createResponse](t, rec)
	require.NotEmpty(t, created.SessionID)
	assert.Equal(t, "/api/sessions/"+created.SessionID, created.Status)

	f.waitFor(t, created.SessionID, session.StateCompleted)
	f.orch.Wait()

	rec = f.do(http.MethodGet, "/api/sessions/"+created.SessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[session.Session](t, rec)
	assert.Equal(t, session.StateCompleted, got.State)
	assert.Len(t, got.Results, 2)
	assert.NotEmpty(t, got.Narrative)

	rec = f.do(http.MethodGet, "/api/sessions/"+created.SessionID+"/artifacts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	arts := decode[artifactsResponse](t, rec)
	require.Len(t, arts.Artifacts, 2)
	for _, a := range arts.Artifacts {
		assert.Equal(t, artifact.StatusReady, a.Status)
	}

	rec = f.do(http.MethodGet, "/api/artifacts/"+arts.Artifacts[0].ID+"/html", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/html")
	assert.NotZero(t, rec.Body.Len())
}

func TestCreateRejectsInvalidQuery(t *testing.T) {
	f := newFixture(t, stubParser{}, nil)

	rec := f.do(http.MethodPost, "/api/sessions", `{"query":"   "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "validation_error", body["code"])
	assert.Equal(t, true, body["recoverable"])

	rec = f.do(http.MethodPost, "/api/sessions", `{"query":"x", "session_id":"not-a-uuid"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/sessions", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBusySessionID(t *testing.T) {
	f := newFixture(t, hangParser{}, nil)

	rec := f.do(http.MethodPost, "/api/sessions", `{"query":"hang forever"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode[createResponse](t, rec).SessionID

	rec = f.do(http.MethodPost, "/api/sessions", `{"query":"hang again","session_id":"`+id+`"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "session_busy", decode[map[string]any](t, rec)["code"])
}

func TestCancelSession(t *testing.T) {
	f := newFixture(t, hangParser{}, nil)

	rec := f.do(http.MethodPost, "/api/sessions/"+"3f1e2d4c-0000-4000-8000-000000000000"+"/cancel", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPost, "/api/sessions", `{"query":"hang forever"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode[createResponse](t, rec).SessionID

	rec = f.do(http.MethodPost, "/api/sessions/"+id+"/cancel", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, session.StateCancelled, decode[session.Session](t, rec).State)

	// cancelling twice is harmless
	rec = f.do(http.MethodPost, "/api/sessions/"+id+"/cancel", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestGetFallsBackToArchive(t *testing.T) {
	archived := session.Session{ID: "8b9c0d1e-0000-4000-8000-000000000000", Query: "old query", State: session.StateCompleted}
	archive := &stubArchive{sessions: map[string]session.Session{archived.ID: archived}}
	f := newFixture(t, stubParser{}, archive)

	rec := f.do(http.MethodGet, "/api/sessions/"+archived.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "old query", decode[session.Session](t, rec).Query)

	rec = f.do(http.MethodGet, "/api/sessions/"+archived.ID+"/artifacts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[artifactsResponse](t, rec).Artifacts)

	rec = f.do(http.MethodGet, "/api/sessions/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/api/sessions?q=hamas&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[listResponse](t, rec).Count)
	assert.Equal(t, []string{"hamas"}, archive.queries)
}

func TestListLiveSessionsWithoutArchive(t *testing.T) {
	f := newFixture(t, stubParser{}, nil)

	for _, q := range []string{"Hamas in US and Israel", "Sentiment on trade"} {
		rec := f.do(http.MethodPost, "/api/sessions", `{"query":"`+q+`"}`)
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	f.orch.Wait()

	rec := f.do(http.MethodGet, "/api/sessions?q=TRADE", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[listResponse](t, rec)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "Sentiment on trade", list.Sessions[0].Query)

	rec = f.do(http.MethodGet, "/api/sessions", "")
	assert.Equal(t, 2, decode[listResponse](t, rec).Count)

	rec = f.do(http.MethodGet, "/api/sessions?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestArtifactDownloadErrors(t *testing.T) {
	f := newFixture(t, stubParser{}, nil)

	rec := f.do(http.MethodGet, "/api/artifacts/3f1e2d4c-0000-4000-8000-000000000000/pdf", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/api/artifacts/3f1e2d4c-0000-4000-8000-000000000000/html", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/api/artifacts/../../etc/html", "")
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, stubParser{}, nil)
	rec := f.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestErrorHandlerMapsTypedErrors(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = errorHandler(zap.NewNop())
	e.GET("/busy", func(echo.Context) error { return &session.BusyError{SessionID: "x"} })
	e.GET("/boom", func(echo.Context) error { return errors.New("boom") })

	for path, want := range map[string]int{"/busy": http.StatusConflict, "/boom": http.StatusInternalServerError} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rec.Code, path)
	}
}

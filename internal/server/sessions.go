package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/sentiscope/internal/artifact"
	"github.com/mohammad-safakhou/sentiscope/internal/session"
	"github.com/mohammad-safakhou/sentiscope/internal/store"
)

// Sessions is the orchestrator surface behind the REST API.
type Sessions interface {
	Start(ctx context.Context, req session.StartRequest, sink session.Sink) (string, error)
	Cancel(id string) error
	Get(id string) (session.Session, error)
	Manager() *session.Manager
}

// Archive looks up completed sessions once they have left memory.
type Archive interface {
	Get(ctx context.Context, id string) (session.Session, error)
	Search(ctx context.Context, q string, limit int) ([]session.Session, error)
}

// SessionsHandler is the polling fallback for clients without a websocket.
type SessionsHandler struct {
	Sessions Sessions
	Archive  Archive // nil without postgres
}

func (h *SessionsHandler) Register(g *echo.Group) {
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/cancel", h.cancel)
	g.GET("/:id/artifacts", h.artifacts)
}

type createRequest struct {
	Query     string   `json:"query"`
	SessionID string   `json:"session_id"`
	MessageID string   `json:"message_id"`
	Artifacts []string `json:"artifacts"`
}

type createResponse struct {
	SessionID string        `json:"session_id"`
	State     session.State `json:"state"`
	Status    string        `json:"status_url"`
}

type listResponse struct {
	Sessions []session.Session `json:"sessions"`
	Count    int               `json:"count"`
}

type artifactsResponse struct {
	SessionID string              `json:"session_id"`
	State     session.State       `json:"state"`
	Artifacts []artifact.Artifact `json:"artifacts"`
}

// discard drops streamed events; REST clients poll the session instead.
var discard = session.SinkFunc(func(session.Event) {})

func (h *SessionsHandler) create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	id, err := h.Sessions.Start(c.Request().Context(), session.StartRequest{
		Query:     req.Query,
		SessionID: req.SessionID,
		MessageID: req.MessageID,
		Artifacts: req.Artifacts,
	}, discard)
	if err != nil {
		return err
	}
	state := session.StateReceived
	if s, err := h.Sessions.Get(id); err == nil {
		state = s.State
	}
	return c.JSON(http.StatusAccepted, createResponse{SessionID: id, State: state, Status: "/api/sessions/" + id})
}

// lookup prefers the live session and falls back to the archive.
func (h *SessionsHandler) lookup(ctx context.Context, id string) (session.Session, error) {
	s, err := h.Sessions.Get(id)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, session.ErrSessionNotFound) {
		return session.Session{}, err
	}
	if h.Archive != nil {
		s, err = h.Archive.Get(ctx, id)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return session.Session{}, err
		}
	}
	return session.Session{}, echo.NewHTTPError(http.StatusNotFound, "session not found")
}

func (h *SessionsHandler) get(c echo.Context) error {
	s, err := h.lookup(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

func (h *SessionsHandler) list(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	limit := 20
	if err := echo.QueryParamsBinder(c).Int("limit", &limit).BindError(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var out []session.Session
	if h.Archive != nil {
		found, err := h.Archive.Search(c.Request().Context(), q, limit)
		if err != nil {
			return err
		}
		out = found
	} else {
		needle := strings.ToLower(q)
		for _, s := range h.Sessions.Manager().List() {
			if needle == "" || strings.Contains(strings.ToLower(s.Query), needle) || strings.Contains(strings.ToLower(s.Topic), needle) {
				out = append(out, s)
			}
			if len(out) == limit {
				break
			}
		}
	}
	if out == nil {
		out = []session.Session{}
	}
	return c.JSON(http.StatusOK, listResponse{Sessions: out, Count: len(out)})
}

func (h *SessionsHandler) cancel(c echo.Context) error {
	id := c.Param("id")
	if err := h.Sessions.Cancel(id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return err
	}
	s, err := h.Sessions.Get(id)
	if err != nil {
		return c.JSON(http.StatusAccepted, map[string]string{"session_id": id})
	}
	return c.JSON(http.StatusAccepted, s)
}

func (h *SessionsHandler) artifacts(c echo.Context) error {
	s, err := h.lookup(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	arts := s.Artifacts
	if arts == nil {
		arts = []artifact.Artifact{}
	}
	return c.JSON(http.StatusOK, artifactsResponse{SessionID: s.ID, State: s.State, Artifacts: arts})
}

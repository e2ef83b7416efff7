package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/sentiscope/internal/artifact"
	"github.com/mohammad-safakhou/sentiscope/internal/objectstore"
)

// ArtifactOpener reads a stored artifact representation.
type ArtifactOpener interface {
	Open(ctx context.Context, id string, rep artifact.Representation) (io.ReadCloser, objectstore.Object, error)
}

// ArtifactsHandler serves the URLs carried by artifact events.
type ArtifactsHandler struct {
	Artifacts ArtifactOpener
}

func (h *ArtifactsHandler) Register(g *echo.Group) {
	g.GET("/:id/:rep", h.get)
}

func (h *ArtifactsHandler) get(c echo.Context) error {
	rep, ok := artifact.ParseRepresentation(c.Param("rep"))
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown representation")
	}
	id := c.Param("id")
	rc, obj, err := h.Artifacts.Open(c.Request().Context(), id, rep)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "artifact not found")
		}
		return err
	}
	defer rc.Close()

	res := c.Response()
	res.Header().Set("Cache-Control", "private, max-age=300")
	if rep == artifact.RepData || rep == artifact.RepCSV {
		res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.%s"`, id, extension(obj.ContentType)))
	}
	if obj.Size > 0 {
		res.Header().Set(echo.HeaderContentLength, fmt.Sprint(obj.Size))
	}
	return c.Stream(http.StatusOK, obj.ContentType, rc)
}

func extension(contentType string) string {
	switch {
	case strings.Contains(contentType, "spreadsheetml"):
		return "xlsx"
	case strings.Contains(contentType, "csv"):
		return "csv"
	case strings.Contains(contentType, "json"):
		return "json"
	case strings.HasPrefix(contentType, "image/png"):
		return "png"
	case strings.HasPrefix(contentType, "text/html"):
		return "html"
	default:
		return "bin"
	}
}

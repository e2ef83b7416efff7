// Package server exposes the HTTP surface: the websocket endpoint, the REST
// polling fallback, artifact downloads, health and metrics.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sentiscope/internal/apperr"
)

// Routes are the handlers mounted by NewRouter. Archive, WS and Metrics are optional.
type Routes struct {
	Sessions       Sessions
	Archive        Archive
	Artifacts      ArtifactOpener
	WS             http.Handler
	Metrics        http.Handler
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter builds the echo instance serving every route.
func NewRouter(r Routes) *echo.Echo {
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = errorHandler(log)

	origins := r.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/healthz" || p == "/metrics"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug("request",
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if r.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(r.Metrics))
	}
	if r.WS != nil {
		e.GET("/ws", echo.WrapHandler(r.WS))
	}

	api := e.Group("/api")
	sh := &SessionsHandler{Sessions: r.Sessions, Archive: r.Archive}
	sh.Register(api.Group("/sessions"))
	ah := &ArtifactsHandler{Artifacts: r.Artifacts}
	ah.Register(api.Group("/artifacts"))
	return e
}

// errorHandler renders every failure as JSON. Typed errors keep their
// protocol code so REST and websocket clients see the same taxonomy.
func errorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		body := map[string]any{}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			body["error"] = fmt.Sprint(he.Message)
		} else {
			d := apperr.Classify(err)
			code = statusFor(d.Code)
			body["error"] = d.Message
			body["code"] = d.Code
			body["recoverable"] = d.Recoverable
			if d.RetryAfter > 0 {
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(d.RetryAfter/time.Second)))
			}
		}

		req := c.Request()
		if code >= http.StatusInternalServerError {
			log.Error("request failed", zap.Int("status", code), zap.String("method", req.Method),
				zap.String("path", req.URL.Path), zap.String("ip", c.RealIP()), zap.Error(err))
		}
		if c.Response().Committed {
			return
		}
		if req.Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, body)
	}
}

func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation, apperr.CodeBadMessage:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeBusy:
		return http.StatusConflict
	case apperr.CodeRateLimited:
		return http.StatusTooManyRequests
	case apperr.CodeUpstream:
		return http.StatusBadGateway
	case apperr.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

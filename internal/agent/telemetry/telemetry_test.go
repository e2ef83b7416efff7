package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/sentiscope/config"
)

func TestSetupWithoutEndpointUsesNoopTracer(t *testing.T) {
	tel, err := Setup(context.Background(), config.TelemetryConfig{Enabled: true}, "test")
	require.NoError(t, err)
	_, span := tel.Tracer.Start(context.Background(), "x")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestMetricsExposed(t *testing.T) {
	tel := Noop()
	tel.Metrics.SessionsStarted.Inc()
	tel.Metrics.Artifacts.WithLabelValues("map", "ready").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(tel.Metrics.SessionsStarted))

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `sentiscope_artifacts_total{kind="map",status="ready"} 1`)
	assert.Contains(t, string(body), "sentiscope_sessions_started_total 1")
}

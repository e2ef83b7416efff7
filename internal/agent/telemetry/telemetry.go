// Package telemetry wires prometheus metrics and OpenTelemetry tracing.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/mohammad-safakhou/sentiscope/config"
)

// Metrics are the service's prometheus instruments.
type Metrics struct {
	SessionsStarted  prometheus.Counter
	SessionsFinished *prometheus.CounterVec // state
	ActiveSessions   prometheus.Gauge
	StageDuration    *prometheus.HistogramVec // stage
	CountryResults   *prometheus.CounterVec   // status
	Artifacts        *prometheus.CounterVec   // kind, status
	EventsEmitted    *prometheus.CounterVec   // type
	Connections      prometheus.Gauge
}

// NewMetrics registers the instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sentiscope", Name: "sessions_started_total", Help: "Sessions accepted by the orchestrator.",
		}),
		SessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentiscope", Name: "sessions_finished_total", Help: "Sessions by terminal state.",
		}, []string{"state"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentiscope", Name: "sessions_active", Help: "Sessions currently running.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sentiscope", Name: "stage_duration_seconds", Help: "Pipeline stage latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45, 90},
		}, []string{"stage"}),
		CountryResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentiscope", Name: "country_results_total", Help: "Per-country outcomes.",
		}, []string{"status"}),
		Artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentiscope", Name: "artifacts_total", Help: "Artifacts by kind and terminal status.",
		}, []string{"kind", "status"}),
		EventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentiscope", Name: "events_emitted_total", Help: "Protocol events by type.",
		}, []string{"type"}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentiscope", Name: "ws_connections", Help: "Open websocket connections.",
		}),
	}
	reg.MustRegister(m.SessionsStarted, m.SessionsFinished, m.ActiveSessions, m.StageDuration,
		m.CountryResults, m.Artifacts, m.EventsEmitted, m.Connections)
	return m
}

// Telemetry bundles the metric registry and the tracer provider.
type Telemetry struct {
	Registry *prometheus.Registry
	Metrics  *Metrics
	Tracer   trace.Tracer
	tp       *sdktrace.TracerProvider
}

// Setup builds metrics on a private registry. Spans are exported over OTLP
// HTTP only when tracing is enabled and an endpoint is configured.
func Setup(ctx context.Context, cfg config.TelemetryConfig, version string) (*Telemetry, error) {
	t := newBase()
	if !cfg.Enabled || strings.TrimSpace(cfg.OTLPEndpoint) == "" {
		return t, nil
	}
	name := cfg.ServiceName
	if name == "" {
		name = "sentiscope"
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", name),
		attribute.String("service.version", version),
	))
	if err != nil {
		return nil, fmt.Errorf("resource init: %w", err)
	}
	exporter, err := otlptracehttp.New(ctx, otlpOptions(cfg.OTLPEndpoint)...)
	if err != nil {
		return nil, fmt.Errorf("otlp init: %w", err)
	}
	t.tp = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(t.tp)
	t.Tracer = t.tp.Tracer(name)
	return t, nil
}

// Noop returns telemetry with fresh metrics and a no-op tracer, for tests and
// headless runs.
func Noop() *Telemetry { return newBase() }

func newBase() *Telemetry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Telemetry{
		Registry: reg,
		Metrics:  NewMetrics(reg),
		Tracer:   noop.NewTracerProvider().Tracer("sentiscope"),
	}
}

func otlpOptions(endpoint string) []otlptracehttp.Option {
	opts := []otlptracehttp.Option{}
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		opts = append(opts, otlptracehttp.WithEndpoint(strings.TrimPrefix(endpoint, "http://")), otlptracehttp.WithInsecure())
	case strings.HasPrefix(endpoint, "https://"):
		opts = append(opts, otlptracehttp.WithEndpoint(strings.TrimPrefix(endpoint, "https://")))
	default:
		opts = append(opts, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	}
	return opts
}

// Handler serves the registry in the prometheus exposition format.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.Registry, promhttp.HandlerOpts{Registry: t.Registry})
}

// Shutdown flushes pending spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.tp == nil {
		return nil
	}
	if err := t.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("trace shutdown: %w", err)
	}
	return nil
}

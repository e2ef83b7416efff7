package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sentiscope/config"
	"github.com/mohammad-safakhou/sentiscope/internal/agent/analysis"
	"github.com/mohammad-safakhou/sentiscope/internal/agent/core"
	"github.com/mohammad-safakhou/sentiscope/internal/agent/intent"
	"github.com/mohammad-safakhou/sentiscope/internal/agent/sources"
	"github.com/mohammad-safakhou/sentiscope/internal/agent/telemetry"
	"github.com/mohammad-safakhou/sentiscope/internal/artifact"
	"github.com/mohammad-safakhou/sentiscope/internal/events"
	"github.com/mohammad-safakhou/sentiscope/internal/objectstore"
	"github.com/mohammad-safakhou/sentiscope/internal/ratelimit"
	"github.com/mohammad-safakhou/sentiscope/internal/session"
	"github.com/mohammad-safakhou/sentiscope/internal/store"
	"github.com/mohammad-safakhou/sentiscope/internal/transport"
)

// App holds the long-lived services of one process. History, Events and
// Redis are nil when their backends are not configured.
type App struct {
	Config    *config.Config
	Version   string
	Logger    *zap.Logger
	Telemetry *telemetry.Telemetry
	Orch      *session.Orchestrator
	Artifacts *artifact.Generator
	History   *store.Store
	Events    *events.Publisher
	Redis     redis.UniversalClient
	Scheduler *Scheduler
}

// Build wires every service from configuration. Optional backends are
// connected only when configured; a missing LLM key degrades the scoring
// stages to their offline implementations.
func Build(ctx context.Context, cfg *config.Config, version string, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{Config: cfg, Version: version, Logger: logger}
	fail := func(err error) (*App, error) {
		_ = app.Close(context.Background())
		return nil, err
	}

	tele, err := telemetry.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		return nil, err
	}
	app.Telemetry = tele

	if cfg.Storage.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr(),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			return fail(fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err))
		}
		app.Redis = rdb
	}

	limiter := ratelimit.FromConfig(cfg.RateLimit, app.Redis, sources.ProviderNames(), []string{cfg.LLM.Provider})
	policy := core.RetryPolicy{MaxRetries: cfg.Agents.MaxRetries, Initial: cfg.Agents.InitialBackoff, Max: cfg.Agents.MaxBackoff}

	var llm core.LLMProvider
	if p, err := core.NewLLMProvider(cfg.LLM, limiter, policy); err != nil {
		logger.Warn("llm provider unavailable, using offline stages", zap.Error(err))
	} else {
		llm = p
	}

	credibility, err := analysis.NewCredibilityPolicy(cfg.Fairness)
	if err != nil {
		return fail(err)
	}
	stages := analysis.NewStages(llm, cfg.LLM.Routing, credibility)
	sentiment, bias, synth, err := stages.Resolve(cfg.Agents)
	if err != nil && llm == nil {
		logger.Warn("configured stages need an llm, falling back", zap.Error(err))
		sentiment, bias, synth, err = stages.Resolve(config.AgentsConfig{Sentiment: "lexicon", Bias: "heuristic", Synthesizer: "template"})
	}
	if err != nil {
		return fail(err)
	}

	provider, err := sources.NewProviders(cfg.Sources, limiter).Resolve(cfg.Sources.Provider)
	if err != nil {
		return fail(fmt.Errorf("search provider: %w", err))
	}
	fetcher := sources.NewFetcher(provider, cfg.Sources.MaxResults,
		sources.WithEnrichment(cfg.Sources.EnrichTopN, sources.ReadabilityExtractor(cfg.Sources.Timeout)),
		sources.WithRetryPolicy(policy),
		sources.WithLogger(logger.Named("sources")),
	)

	blobs, err := objectstore.New(ctx, cfg.Storage)
	if err != nil {
		return fail(fmt.Errorf("object store: %w", err))
	}
	genOpts := []artifact.Option{artifact.WithLogger(logger.Named("artifact")), artifact.WithBaseURL(cfg.Server.PublicURL)}
	if cfg.Artifacts.Snapshots {
		genOpts = append(genOpts, artifact.WithSnapshotter(artifact.ChromeSnapshotter{ExecPath: cfg.Artifacts.ChromePath}))
	}
	app.Artifacts = artifact.NewGenerator(blobs, cfg.Artifacts, genOpts...)

	deps := session.Deps{
		Parser:      intent.NewParser(llm, cfg.LLM.Routing.Model("parsing"), cfg.Intent.MinConfidence, cfg.Intent.MaxCountries, logger.Named("intent")),
		Search:      fetcher,
		Sentiment:   sentiment,
		Bias:        bias,
		Synthesizer: synth,
		Artifacts:   app.Artifacts,
		Telemetry:   tele,
		Logger:      logger,
	}

	if cfg.Storage.Postgres.Enabled() {
		if err := store.Migrate(cfg.Storage.Postgres.DSN(), store.MigrateOptions{}); err != nil {
			return fail(fmt.Errorf("migrate: %w", err))
		}
		app.History, err = store.Open(ctx, cfg.Storage.Postgres, logger)
		if err != nil {
			return fail(err)
		}
		deps.Archive = app.History
	}
	if cfg.Events.NatsURL != "" {
		app.Events, err = events.NewPublisher(ctx, cfg.Events, logger)
		if err != nil {
			return fail(err)
		}
		deps.Notify = app.Events
	}

	app.Orch, err = session.NewOrchestrator(session.ConfigFrom(cfg), deps, session.NewManager(cfg.Session.RetainFor))
	if err != nil {
		return fail(err)
	}

	app.Scheduler = &Scheduler{
		Sessions:   app.Orch.Manager(),
		Artifacts:  app.Artifacts,
		Rdb:        app.Redis,
		Cron:       cfg.Retention.Cron,
		MaxAge:     cfg.Retention.MaxAge,
		PurgeBlobs: cfg.Retention.PurgeBlob,
		Logger:     logger.Named("scheduler"),
	}
	if app.History != nil {
		app.Scheduler.History = app.History
	}
	return app, nil
}

// Router mounts the app's handlers.
func (a *App) Router() *echo.Echo {
	ws := transport.NewHandler(a.Orch, transport.Options{
		ServerVersion:  a.Version,
		AllowedOrigins: a.Config.Server.AllowedOrigins,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		PongTimeout:    a.Config.Server.PongTimeout,
		SendBuffer:     a.Config.Server.SendBuffer,
		MaxMessageSize: a.Config.Server.MaxMessageSize,
		Logger:         a.Logger,
		Metrics:        a.Telemetry.Metrics,
	})
	routes := Routes{
		Sessions:       a.Orch,
		Artifacts:      a.Artifacts,
		WS:             ws,
		Metrics:        a.Telemetry.Handler(),
		AllowedOrigins: a.Config.Server.AllowedOrigins,
		Logger:         a.Logger,
	}
	if a.History != nil {
		routes.Archive = a.History
	}
	return NewRouter(routes)
}

// Close stops running sessions and releases every backend.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Orch != nil {
		if err := a.Orch.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain sessions: %w", err))
		}
	}
	if a.Events != nil {
		a.Events.Close()
	}
	if a.History != nil {
		errs = append(errs, a.History.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.Telemetry != nil {
		errs = append(errs, a.Telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// Run serves until ctx is cancelled, then drains connections and sessions.
func Run(ctx context.Context, cfg *config.Config, version string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	app, err := Build(ctx, cfg, version, logger)
	if err != nil {
		return err
	}
	app.Scheduler.Start()
	e := app.Router()

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Address))
		errc <- e.Start(cfg.Server.Address)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	return errors.Join(serveErr, app.Close(sctx))
}

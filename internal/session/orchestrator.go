package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sentiscope/config"
	"github.com/mohammad-safakhou/sentiscope/internal/agent/analysis"
	"github.com/mohammad-safakhou/sentiscope/internal/agent/core"
	"github.com/mohammad-safakhou/sentiscope/internal/agent/telemetry"
	"github.com/mohammad-safakhou/sentiscope/internal/apperr"
	"github.com/mohammad-safakhou/sentiscope/internal/artifact"
	"github.com/mohammad-safakhou/sentiscope/internal/protocol"
)

// Searcher fetches ranked documents for one country.
type Searcher interface {
	Fetch(ctx context.Context, q core.SearchQuery) ([]core.Document, error)
}

// ArtifactGenerator renders artifacts; Generate always returns a terminal artifact.
type ArtifactGenerator interface {
	Begin(kind artifact.Kind) artifact.Artifact
	Generate(ctx context.Context, a artifact.Artifact, in artifact.Input) artifact.Artifact
}

// Archiver persists completed sessions.
type Archiver interface {
	Archive(ctx context.Context, s Session) error
}

// Notifier announces completed sessions.
type Notifier interface {
	SessionCompleted(ctx context.Context, s Session) error
}

// Deps are the orchestrator's collaborators. Archive and Notify are optional.
type Deps struct {
	Parser      core.IntentParser
	Search      Searcher
	Sentiment   core.SentimentScorer
	Bias        core.BiasDetector
	Synthesizer core.Synthesizer
	Artifacts   ArtifactGenerator
	Archive     Archiver
	Notify      Notifier
	Telemetry   *telemetry.Telemetry
	Logger      *zap.Logger
}

// Config holds the orchestrator's limits.
type Config struct {
	MaxQueryLength         int
	MaxConcurrentCountries int
	MaxResults             int
	Timeout                time.Duration
	SearchTimeout          time.Duration
	ScoringTimeout         time.Duration
	ChunkSize              int
	EventBuffer            int
}

// ConfigFrom extracts the orchestrator settings from the service config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		MaxQueryLength:         cfg.Session.MaxQueryLength,
		MaxConcurrentCountries: cfg.Agents.MaxConcurrentCountries,
		MaxResults:             cfg.Sources.MaxResults,
		Timeout:                cfg.Session.Timeout,
		SearchTimeout:          cfg.Session.SearchTimeout,
		ScoringTimeout:         cfg.Session.ScoringTimeout,
		ChunkSize:              cfg.Session.ChunkSize,
		EventBuffer:            cfg.Session.EventBuffer,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxQueryLength <= 0 {
		c.MaxQueryLength = 2000
	}
	if c.MaxConcurrentCountries <= 0 {
		c.MaxConcurrentCountries = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Minute
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = 30 * time.Second
	}
	if c.ScoringTimeout <= 0 {
		c.ScoringTimeout = 90 * time.Second
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = protocol.DefaultChunkSize
	}
	return c
}

// StartRequest asks for a new session.
type StartRequest struct {
	Query     string
	SessionID string // optional client-chosen id
	MessageID string // echoed on session_start
	Artifacts []string
}

// BusyError rejects a query while the session is still running.
type BusyError struct {
	SessionID string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("session %s is still running; cancel it or wait for it to finish", e.SessionID)
}

func (e *BusyError) ErrorCode() apperr.Code { return apperr.CodeBusy }
func (e *BusyError) Recoverable() bool      { return true }

// errNoDocuments marks a country whose search came back empty.
var errNoDocuments = errors.New("no documents found")

// Orchestrator starts, runs and cancels sessions.
type Orchestrator struct {
	cfg      Config
	deps     Deps
	manager  *Manager
	validate *validator.Validate
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
	log      *zap.Logger
	now      func() time.Time

	wg      sync.WaitGroup
	closing atomic.Bool
}

func NewOrchestrator(cfg Config, deps Deps, manager *Manager) (*Orchestrator, error) {
	switch {
	case deps.Parser == nil:
		return nil, errors.New("orchestrator: intent parser required")
	case deps.Search == nil:
		return nil, errors.New("orchestrator: searcher required")
	case deps.Sentiment == nil || deps.Bias == nil || deps.Synthesizer == nil:
		return nil, errors.New("orchestrator: scoring stages required")
	case deps.Artifacts == nil:
		return nil, errors.New("orchestrator: artifact generator required")
	}
	if manager == nil {
		manager = NewManager(0)
	}
	tel := deps.Telemetry
	if tel == nil {
		tel = telemetry.Noop()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg.withDefaults(),
		deps:     deps,
		manager:  manager,
		validate: validator.New(),
		metrics:  tel.Metrics,
		tracer:   tel.Tracer,
		log:      logger.Named("orchestrator"),
		now:      time.Now,
	}, nil
}

// Manager exposes the session registry.
func (o *Orchestrator) Manager() *Manager { return o.manager }

// Start validates the request, emits session_start and runs the session in
// the background. Validation problems are returned synchronously.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest, sink Sink) (string, error) {
	if o.closing.Load() {
		return "", apperr.Fatal(apperr.CodeFatal, "server is shutting down", nil)
	}
	query := strings.TrimSpace(req.Query)
	if err := o.validate.Var(query, fmt.Sprintf("required,max=%d", o.cfg.MaxQueryLength)); err != nil {
		return "", o.validationError(err)
	}
	explicit := make([]artifact.Kind, 0, len(req.Artifacts))
	for _, name := range req.Artifacts {
		k, ok := artifact.ParseKind(name)
		if !ok {
			return "", &apperr.ValidationError{Field: "artifacts", Reason: fmt.Sprintf("unknown artifact kind %q", name)}
		}
		explicit = append(explicit, k)
	}
	id := strings.TrimSpace(req.SessionID)
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return "", &apperr.ValidationError{Field: "session_id", Reason: "must be a UUID"}
	}

	r := &run{
		id:        id,
		query:     query,
		messageID: req.MessageID,
		explicit:  explicit,
		createdAt: o.now().UTC(),
		machine:   NewMachine(),
		token:     NewToken(context.WithoutCancel(ctx)),
		citation:  NewCitationLedger(),
		results:   map[string]core.CountryResult{},
	}
	_ = r.machine.Transition(StateReceived)
	r.emitter = newEmitter(id, sink, o.cfg.EventBuffer, func(t protocol.Type) {
		o.metrics.EventsEmitted.WithLabelValues(string(t)).Inc()
	})
	// queued before the run is visible so a concurrent Cancel lands after it
	r.emitter.emit(protocol.TypeSessionStart, req.MessageID, protocol.SessionStart{SessionID: id, Query: query})
	if err := o.manager.add(r); err != nil {
		r.emitter.discard()
		r.token.release()
		if existing, ok := o.manager.get(id); ok && !existing.machine.State().Terminal() {
			return "", &BusyError{SessionID: id}
		}
		return "", &apperr.ValidationError{Field: "session_id", Reason: "session already exists"}
	}
	o.metrics.SessionsStarted.Inc()
	o.metrics.ActiveSessions.Inc()
	o.log.Info("session started", zap.String("session_id", id), zap.Int("query_len", len(query)))

	r.emitter.start()
	o.wg.Add(1)
	go o.run(r)
	return id, nil
}

func (o *Orchestrator) validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch verrs[0].Tag() {
		case "required":
			return &apperr.ValidationError{Field: "query", Reason: "must not be empty"}
		case "max":
			return &apperr.ValidationError{Field: "query", Reason: fmt.Sprintf("must be at most %d characters", o.cfg.MaxQueryLength)}
		}
	}
	return &apperr.ValidationError{Field: "query", Reason: err.Error()}
}

// Cancel stops a running session and emits its single terminal error event.
// Cancelling a finished session is a no-op.
func (o *Orchestrator) Cancel(id string) error {
	r, ok := o.manager.get(id)
	if !ok {
		return ErrSessionNotFound
	}
	if err := r.machine.Transition(StateCancelled); err != nil {
		return nil
	}
	r.token.Cancel()
	r.finish(o.now().UTC(), "cancelled")
	r.emitter.emit(protocol.TypeError, "", protocol.Error{
		Code:        apperr.CodeCancelled,
		Message:     "session cancelled",
		Recoverable: false,
	})
	o.log.Info("session cancelled", zap.String("session_id", id))
	return nil
}

// Get returns a snapshot of a live or retained session.
func (o *Orchestrator) Get(id string) (Session, error) { return o.manager.Get(id) }

// Shutdown cancels running sessions and waits for their goroutines.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.closing.Store(true)
	o.manager.each(func(r *run) {
		if !r.machine.State().Terminal() {
			_ = o.Cancel(r.id)
		}
	})
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every started session has finished.
func (o *Orchestrator) Wait() { o.wg.Wait() }

func (o *Orchestrator) run(r *run) {
	defer o.wg.Done()
	defer r.token.release()

	ctx, cancel := context.WithTimeout(r.token.Context(), o.cfg.Timeout)
	defer cancel()
	ctx, span := o.tracer.Start(ctx, "session.run", trace.WithAttributes(attribute.String("session.id", r.id)))
	defer span.End()

	err := o.pipeline(ctx, r)
	switch {
	case err == nil:
	case r.token.Cancelled():
		span.SetStatus(codes.Error, "cancelled")
	default:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = apperr.Fatal(apperr.CodeTimeout, fmt.Sprintf("session exceeded %s", o.cfg.Timeout), err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.fail(r, err)
	}
	r.emitter.wait()
	o.conclude(ctx, r)
}

func (o *Orchestrator) fail(r *run, err error) {
	if r.machine.Transition(StateFailed) != nil {
		return
	}
	payload := protocol.ErrorFrom(err)
	r.finish(o.now().UTC(), payload.Message)
	o.log.Warn("session failed", zap.String("session_id", r.id), zap.String("code", string(payload.Code)), zap.Error(err))
	r.emitter.emit(protocol.TypeError, "", payload)
}

// conclude records the outcome once the stream is closed.
func (o *Orchestrator) conclude(ctx context.Context, r *run) {
	o.manager.touch(r)
	o.metrics.ActiveSessions.Dec()
	s := r.snapshot()
	o.metrics.SessionsFinished.WithLabelValues(string(s.State)).Inc()
	if s.State != StateCompleted {
		return
	}
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if o.deps.Archive != nil {
		if err := o.deps.Archive.Archive(bg, s); err != nil {
			o.log.Warn("archive failed", zap.String("session_id", s.ID), zap.Error(err))
		}
	}
	if o.deps.Notify != nil {
		if err := o.deps.Notify.SessionCompleted(bg, s); err != nil {
			o.log.Warn("notify failed", zap.String("session_id", s.ID), zap.Error(err))
		}
	}
}

func progress(p float64) *float64 { return &p }

// advance moves to the next stage and announces it.
func (o *Orchestrator) advance(ctx context.Context, r *run, to State, message string, p float64) error {
	if r.token.Cancelled() {
		return ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.machine.Transition(to); err != nil {
		return err
	}
	r.emitter.emit(protocol.TypeStatus, "", protocol.Status{Step: string(to), Message: message, Progress: progress(p)})
	return nil
}

// stage opens a span and returns a func that closes it and records latency.
func (o *Orchestrator) stage(ctx context.Context, name string) (context.Context, func(error)) {
	start := o.now()
	ctx, span := o.tracer.Start(ctx, "session."+name)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		o.metrics.StageDuration.WithLabelValues(name).Observe(o.now().Sub(start).Seconds())
	}
}

func (o *Orchestrator) pipeline(ctx context.Context, r *run) error {
	if err := o.advance(ctx, r, StateParsing, "Understanding the query", 0.05); err != nil {
		return err
	}
	pctx, end := o.stage(ctx, "parsing")
	intent, err := o.deps.Parser.Parse(pctx, r.query)
	end(err)
	if r.token.Cancelled() {
		return ErrCancelled
	}
	if err != nil {
		return err
	}
	r.setIntent(intent)

	if err := o.advance(ctx, r, StateSearching,
		fmt.Sprintf("Searching coverage of %s in %s", intent.Topic, strings.Join(intent.Countries, ", ")), 0.15); err != nil {
		return err
	}
	sctx, end := o.stage(ctx, "searching")
	docs := o.searchAll(sctx, r, intent)
	end(nil)
	if r.token.Cancelled() {
		return ErrCancelled
	}
	if len(docs) == 0 {
		return o.allFailed(ctx, r)
	}

	if err := o.advance(ctx, r, StateScoring, fmt.Sprintf("Scoring sentiment and bias for %d countries", len(docs)), 0.4); err != nil {
		return err
	}
	cctx, end := o.stage(ctx, "scoring")
	o.scoreAll(cctx, r, intent, docs)
	end(nil)
	if r.token.Cancelled() {
		return ErrCancelled
	}
	results := r.orderedResults()
	if !anyScored(results) {
		return o.allFailed(ctx, r)
	}

	if err := o.advance(ctx, r, StateSynthesizing, "Writing the comparative synthesis", 0.7); err != nil {
		return err
	}
	yctx, end := o.stage(ctx, "synthesizing")
	syn, err := o.deps.Synthesizer.Synthesize(yctx, r.query, intent.Topic, results)
	end(err)
	if r.token.Cancelled() {
		return ErrCancelled
	}
	if err == nil && strings.TrimSpace(syn.Narrative) == "" {
		err = errors.New("empty narrative")
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		d := apperr.Classify(err)
		r.addFailure(core.Failure{Scope: "synthesis", Name: "narrative", Code: d.Code, Reason: d.Message})
		o.log.Warn("synthesis fell back to template", zap.String("session_id", r.id), zap.Error(err))
		syn = analysis.FallbackSynthesis(intent.Topic, results)
	}
	r.setSynthesis(syn)

	kinds := artifact.Decide(r.query, r.explicit)
	if err := o.advance(ctx, r, StateArtifactPending, fmt.Sprintf("Generating %d artifacts", len(kinds)), 0.85); err != nil {
		return err
	}
	actx, end := o.stage(ctx, "artifacts")
	o.produce(actx, r, kinds, artifact.Input{
		SessionID: r.id,
		Query:     r.query,
		Topic:     intent.Topic,
		Results:   results,
		Citations: r.citation.All(),
	}, syn.Narrative)
	end(nil)
	if r.token.Cancelled() {
		return ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := r.machine.Transition(StateCompleted); err != nil {
		return err
	}
	r.finish(o.now().UTC(), "")
	s := r.snapshot()
	r.emitter.emit(protocol.TypeComplete, "", protocol.Complete{
		SessionID:       r.id,
		Confidence:      core.Clamp(syn.Confidence, 0, 1),
		TotalCitations:  len(s.Citations),
		HasArtifact:     s.HasArtifact(),
		PartialFailures: s.Failures,
	})
	o.log.Info("session completed", zap.String("session_id", r.id),
		zap.Int("countries", len(results)), zap.Int("citations", len(s.Citations)), zap.Int("partial_failures", len(s.Failures)))
	return nil
}

// allFailed ends a session with no usable country. When throttling blocked a
// country the error stays recoverable and carries the retry hint.
func (o *Orchestrator) allFailed(ctx context.Context, r *run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var cause error
	if re := r.rateLimit(); re != nil {
		cause = re
	}
	return apperr.Fatal(apperr.CodeAllFailed, "no country could be analysed", cause)
}

func anyScored(results []core.CountryResult) bool {
	for _, r := range results {
		if r.Succeeded() {
			return true
		}
	}
	return false
}

// acquire takes a fan-out slot, giving up when ctx ends.
func acquire(ctx context.Context, sem chan struct{}) bool {
	select {
	case sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *Orchestrator) searchAll(ctx context.Context, r *run, intent core.Intent) map[string][]core.Document {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = map[string][]core.Document{}
		sem = make(chan struct{}, o.cfg.MaxConcurrentCountries)
	)
	for _, country := range intent.Countries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !acquire(ctx, sem) {
				o.countryFailed(r, country, StateSearching, ctx.Err())
				return
			}
			defer func() { <-sem }()
			if r.token.Cancelled() {
				return
			}
			qctx, cancel := context.WithTimeout(ctx, o.cfg.SearchTimeout)
			docs, err := o.deps.Search.Fetch(qctx, core.SearchQuery{Topic: intent.Topic, Country: country, MaxResults: o.cfg.MaxResults})
			cancel()
			if r.token.Cancelled() {
				return
			}
			if err == nil && len(docs) == 0 {
				err = errNoDocuments
			}
			if err != nil {
				o.countryFailed(r, country, StateSearching, err)
				return
			}
			mu.Lock()
			out[country] = docs
			mu.Unlock()

			cits := make([]core.Citation, 0, len(docs))
			for _, d := range docs {
				cits = append(cits, core.CitationFrom(d, country))
			}
			if added := r.citation.Add(cits...); len(added) > 0 {
				r.emitter.emit(protocol.TypeCitation, "", protocol.Citations{Citations: added})
			}
		}()
	}
	wg.Wait()
	return out
}

func (o *Orchestrator) scoreAll(ctx context.Context, r *run, intent core.Intent, docs map[string][]core.Document) {
	var (
		wg   sync.WaitGroup
		done atomic.Int32
		sem  = make(chan struct{}, o.cfg.MaxConcurrentCountries)
	)
	total := float64(len(docs))
	for _, country := range intent.Countries {
		countryDocs, ok := docs[country]
		if !ok {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !acquire(ctx, sem) {
				o.countryFailed(r, country, StateScoring, ctx.Err())
				return
			}
			defer func() { <-sem }()
			if r.token.Cancelled() {
				return
			}
			res, biasErr, err := o.scoreCountry(ctx, intent.Topic, country, countryDocs)
			if r.token.Cancelled() {
				return
			}
			if err != nil {
				o.countryFailed(r, country, StateScoring, err)
				return
			}
			if biasErr != nil {
				d := apperr.Classify(biasErr)
				r.addFailure(core.Failure{Scope: "bias", Name: country, Code: d.Code, Reason: d.Message})
			}
			r.setResult(res)
			o.metrics.CountryResults.WithLabelValues(string(res.Status)).Inc()
			n := done.Add(1)
			r.emitter.emit(protocol.TypeStatus, "", protocol.Status{
				Step:          string(StateScoring),
				Message:       fmt.Sprintf("%s: %s sentiment (%+.2f)", country, res.SentimentLabel, res.SentimentScore),
				Progress:      progress(0.4 + 0.3*float64(n)/total),
				CountryResult: &res,
			})
		}()
	}
	wg.Wait()
}

// scoreCountry runs sentiment and bias concurrently; both finish before the
// result is built. A bias failure keeps the sentiment.
func (o *Orchestrator) scoreCountry(ctx context.Context, topic, country string, docs []core.Document) (core.CountryResult, error, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.ScoringTimeout)
	defer cancel()

	var (
		wg         sync.WaitGroup
		sent       core.Sentiment
		bias       core.Bias
		sErr, bErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		sent, sErr = o.deps.Sentiment.ScoreSentiment(ctx, topic, country, docs)
	}()
	go func() {
		defer wg.Done()
		bias, bErr = o.deps.Bias.DetectBias(ctx, topic, country, docs)
	}()
	wg.Wait()
	if sErr != nil {
		return core.CountryResult{}, nil, sErr
	}

	score := core.Clamp(sent.Score, -1, 1)
	res := core.CountryResult{
		Country:          country,
		Status:           core.CountryScored,
		SentimentScore:   score,
		SentimentLabel:   core.LabelFor(score),
		Reasoning:        sent.Reasoning,
		SourceType:       sent.SourceType,
		CredibilityScore: core.Clamp(sent.CredibilityScore, 0, 1),
		DocumentCount:    len(docs),
		Documents:        docs,
	}
	if bErr != nil {
		res.BiasNotes = "bias analysis unavailable: " + apperr.Classify(bErr).Message
		return res, bErr, nil
	}
	res.BiasTypes = bias.Types
	res.BiasSeverity = core.Clamp(bias.Severity, 0, 1)
	res.BiasNotes = bias.Notes
	return res, nil, nil
}

func (o *Orchestrator) countryFailed(r *run, country string, stage State, err error) {
	if r.token.Cancelled() {
		return
	}
	d := apperr.Classify(err)
	reason := d.Message
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = string(stage) + " timed out"
	case errors.Is(err, errNoDocuments):
		reason = errNoDocuments.Error()
	}
	res := core.CountryResult{Country: country, Status: core.CountryFailed, Error: reason}
	r.setResult(res)
	r.addFailure(core.Failure{Scope: "country", Name: country, Code: d.Code, Reason: reason})
	o.metrics.CountryResults.WithLabelValues(string(res.Status)).Inc()
	o.log.Warn("country failed", zap.String("session_id", r.id), zap.String("country", country),
		zap.String("stage", string(stage)), zap.Error(err))
	r.emitter.emit(protocol.TypeStatus, "", protocol.Status{
		Step:          string(stage),
		Message:       fmt.Sprintf("No result for %s: %s", country, reason),
		CountryResult: &res,
	})
	var re *apperr.RateLimitError
	if errors.As(err, &re) {
		r.throttle(re)
		notice := protocol.ErrorFrom(err)
		notice.Partial = true
		notice.Country = country
		r.emitter.emit(protocol.TypeError, "", notice)
	}
}

// produce announces every artifact as generating, renders them concurrently
// and streams the narrative while they render.
func (o *Orchestrator) produce(ctx context.Context, r *run, kinds []artifact.Kind, in artifact.Input, narrative string) {
	pending := make([]artifact.Artifact, 0, len(kinds))
	for _, k := range kinds {
		a := o.deps.Artifacts.Begin(k)
		r.putArtifact(a)
		r.emitter.emit(protocol.TypeArtifact, "", protocol.Artifact{Artifact: a})
		pending = append(pending, a)
	}

	var wg sync.WaitGroup
	for _, a := range pending {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.token.Cancelled() {
				return
			}
			final := o.deps.Artifacts.Generate(ctx, a, in)
			if r.token.Cancelled() || !final.Terminal() {
				return
			}
			r.putArtifact(final)
			o.metrics.Artifacts.WithLabelValues(string(final.Kind), string(final.Status)).Inc()
			if final.Status == artifact.StatusFailed {
				r.addFailure(core.Failure{Scope: "artifact", Name: string(final.Kind), Code: apperr.CodePartial, Reason: final.Error})
			}
			r.emitter.emit(protocol.TypeArtifact, "", protocol.Artifact{Artifact: final})
		}()
	}

	chunks := protocol.ChunkText(narrative, o.cfg.ChunkSize)
	if len(chunks) == 0 {
		chunks = []string{""}
	}
	for i, c := range chunks {
		if r.token.Cancelled() {
			break
		}
		r.emitter.emit(protocol.TypeContent, "", protocol.Content{Content: c, IsComplete: i == len(chunks)-1})
	}
	wg.Wait()
}

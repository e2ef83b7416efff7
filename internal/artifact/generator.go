package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sentiscope/config"
	"github.com/mohammad-safakhou/sentiscope/internal/agent/core"
	"github.com/mohammad-safakhou/sentiscope/internal/objectstore"
)

// Input is everything a renderer may draw from.
type Input struct {
	SessionID string
	Query     string
	Topic     string
	Results   []core.CountryResult
	Citations []core.Citation
}

// file is one rendered representation.
type file struct {
	rep         Representation
	contentType string
	data        []byte
}

type output struct {
	files    []file
	warnings []string
}

type renderer func(ctx context.Context, in Input) (output, error)

// Snapshotter turns an interactive HTML document into a PNG.
type Snapshotter interface {
	Snapshot(ctx context.Context, html []byte) ([]byte, error)
}

// Generator renders artifacts and stores their representations.
type Generator struct {
	store       objectstore.Store
	timeout     time.Duration
	baseURL     string
	assetsHost  string
	includeDocs bool
	snapshots   Snapshotter
	logger      *zap.Logger
	now         func() time.Time
	renderers   map[Kind]renderer
}

// Option customises a Generator.
type Option func(*Generator)

// WithSnapshotter enables PNG images for charts and maps.
func WithSnapshotter(s Snapshotter) Option { return func(g *Generator) { g.snapshots = s } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(g *Generator) { g.logger = l } }

// WithBaseURL prefixes artifact URLs, e.g. with server.public_url.
func WithBaseURL(u string) Option { return func(g *Generator) { g.baseURL = u } }

func NewGenerator(store objectstore.Store, cfg config.ArtifactsConfig, opts ...Option) *Generator {
	g := &Generator{
		store:       store,
		timeout:     cfg.Timeout,
		assetsHost:  cfg.AssetsHost,
		includeDocs: cfg.IncludeRawDocs,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	if g.timeout <= 0 {
		g.timeout = 45 * time.Second
	}
	g.renderers = map[Kind]renderer{
		KindTable:      g.renderTable,
		KindBarChart:   g.renderBar,
		KindRadarChart: g.renderRadar,
		KindMap:        g.renderMap,
		KindRawExport:  g.renderRaw,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Begin creates the generating record for kind.
func (g *Generator) Begin(kind Kind) Artifact {
	return Artifact{ID: uuid.NewString(), Kind: kind, Status: StatusGenerating, CreatedAt: g.now().UTC()}
}

// Generate renders a and returns it in a terminal state. Failures, including
// the per-artifact timeout, are reported on the artifact rather than returned.
func (g *Generator) Generate(ctx context.Context, a Artifact, in Input) Artifact {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.render(ctx, a.Kind, in)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s", g.timeout)
		}
		g.logger.Warn("artifact failed", zap.String("artifact_id", a.ID), zap.String("kind", string(a.Kind)), zap.Error(err))
		failed, _ := a.Advance(StatusFailed)
		failed.Error = err.Error()
		return failed
	}

	urls := make(map[Representation]string, len(out.files))
	var size int64
	for _, f := range out.files {
		obj, err := g.store.Put(ctx, Key(a.ID, f.rep), f.contentType, f.data)
		if err != nil {
			g.logger.Warn("artifact store failed", zap.String("artifact_id", a.ID), zap.Error(err))
			failed, _ := a.Advance(StatusFailed)
			failed.Error = fmt.Sprintf("store %s: %v", f.rep, err)
			return failed
		}
		urls[f.rep] = URL(g.baseURL, a.ID, f.rep)
		size += obj.Size
	}
	ready, _ := a.Advance(StatusReady)
	ready.URLs = urls
	ready.Size = size
	ready.Warnings = out.warnings
	return ready
}

func (g *Generator) render(ctx context.Context, kind Kind, in Input) (output, error) {
	r, ok := g.renderers[kind]
	if !ok {
		return output{}, fmt.Errorf("unsupported artifact kind %q", kind)
	}
	type result struct {
		out output
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := r(ctx, in)
		done <- result{out, err}
	}()
	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		return output{}, ctx.Err()
	}
}

// Open streams a stored representation.
func (g *Generator) Open(ctx context.Context, id string, rep Representation) (io.ReadCloser, objectstore.Object, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, objectstore.Object{}, objectstore.ErrNotFound
	}
	return g.store.Get(ctx, Key(id, rep))
}

// Purge removes every stored representation of a.
func (g *Generator) Purge(ctx context.Context, a Artifact) error {
	var errs []error
	for rep := range a.URLs {
		if err := g.store.Delete(ctx, Key(a.ID, rep)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// snapshot adds a PNG of html when a snapshotter is configured. A failed
// snapshot only costs the image.
func (g *Generator) snapshot(ctx context.Context, html []byte, out *output) {
	if g.snapshots == nil {
		return
	}
	png, err := g.snapshots.Snapshot(ctx, html)
	if err != nil {
		out.warnings = append(out.warnings, "image snapshot unavailable: "+err.Error())
		return
	}
	out.files = append(out.files, file{rep: RepImage, contentType: "image/png", data: png})
}

func scored(results []core.CountryResult) []core.CountryResult {
	out := make([]core.CountryResult, 0, len(results))
	for _, r := range results {
		if r.Succeeded() {
			out = append(out, r)
		}
	}
	return out
}

func missingWarnings(results []core.CountryResult) []string {
	var w []string
	for _, r := range results {
		if !r.Succeeded() {
			w = append(w, fmt.Sprintf("%s omitted: no result", r.Country))
		}
	}
	return w
}

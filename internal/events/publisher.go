// Package events announces finished sessions on a NATS JetStream subject.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sentiscope/config"
	"github.com/mohammad-safakhou/sentiscope/internal/artifact"
	"github.com/mohammad-safakhou/sentiscope/internal/session"
)

// SessionCompleted is the payload published for every completed session.
type SessionCompleted struct {
	SessionID       string        `json:"session_id"`
	Query           string        `json:"query"`
	Topic           string        `json:"topic"`
	Countries       []string      `json:"countries"`
	Confidence      float64       `json:"confidence"`
	TotalCitations  int           `json:"total_citations"`
	Artifacts       []ArtifactRef `json:"artifacts,omitempty"`
	PartialFailures int           `json:"partial_failures"`
	CompletedAt     time.Time     `json:"completed_at"`
}

type ArtifactRef struct {
	ID     string          `json:"artifact_id"`
	Kind   artifact.Kind   `json:"kind"`
	Status artifact.Status `json:"status"`
}

// NewSessionCompleted summarises s for the bus.
func NewSessionCompleted(s session.Session) SessionCompleted {
	ev := SessionCompleted{
		SessionID:       s.ID,
		Query:           s.Query,
		Topic:           s.Topic,
		Countries:       s.Countries,
		Confidence:      s.Confidence,
		TotalCitations:  len(s.Citations),
		PartialFailures: len(s.Failures),
	}
	for _, a := range s.Artifacts {
		ev.Artifacts = append(ev.Artifacts, ArtifactRef{ID: a.ID, Kind: a.Kind, Status: a.Status})
	}
	if s.CompletedAt != nil {
		ev.CompletedAt = *s.CompletedAt
	}
	return ev
}

// streamPublisher is the part of jetstream.JetStream the publisher uses.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher sends events to the NATS bus.
type Publisher struct {
	nc      *nats.Conn
	js      streamPublisher
	subject string
	logger  *zap.Logger
}

// NewPublisher connects to NATS and makes sure the stream exists.
func NewPublisher(ctx context.Context, cfg config.EventsConfig, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("events")
	nc, err := nats.Connect(cfg.NatsURL,
		nats.Name("sentiscope"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(sctx, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.Subject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	}); err != nil {
		// the stream may be managed elsewhere; publishing still works if it exists
		logger.Warn("ensure stream failed", zap.String("stream", cfg.Stream), zap.Error(err))
	}
	return newPublisher(nc, js, cfg.Subject, logger), nil
}

func newPublisher(nc *nats.Conn, js streamPublisher, subject string, logger *zap.Logger) *Publisher {
	if subject == "" {
		subject = "sessions.completed"
	}
	return &Publisher{nc: nc, js: js, subject: subject, logger: logger}
}

// SessionCompleted publishes s. The session id is the message id, so a
// retried publish is deduplicated by the stream.
func (p *Publisher) SessionCompleted(ctx context.Context, s session.Session) error {
	data, err := json.Marshal(NewSessionCompleted(s))
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}
	if _, err := p.js.Publish(ctx, p.subject, data, jetstream.WithMsgID(s.ID)); err != nil {
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}
	p.logger.Debug("session event published", zap.String("session_id", s.ID))
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

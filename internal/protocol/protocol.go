// Package protocol defines the JSON envelopes exchanged over the streaming
// connection and the REST fallback.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mohammad-safakhou/sentiscope/internal/agent/core"
	"github.com/mohammad-safakhou/sentiscope/internal/apperr"
	"github.com/mohammad-safakhou/sentiscope/internal/artifact"
)

// Type discriminates envelopes.
type Type string

// Outbound types.
const (
	TypeConnected    Type = "connected"
	TypeSessionStart Type = "session_start"
	TypeStatus       Type = "status"
	TypeContent      Type = "content"
	TypeCitation     Type = "citation"
	TypeArtifact     Type = "artifact"
	TypeComplete     Type = "complete"
	TypeError        Type = "error"
)

// Inbound types.
const (
	TypeQuery  Type = "query"
	TypeCancel Type = "cancel"
)

// Ends reports whether an event of type t carrying payload ends a session's
// stream. Partial errors leave it open.
func Ends(t Type, payload any) bool {
	switch t {
	case TypeComplete:
		return true
	case TypeError:
		switch e := payload.(type) {
		case Error:
			return !e.Partial
		case *Error:
			return e == nil || !e.Partial
		}
		return true
	}
	return false
}

// Envelope is the wire frame in both directions.
type Envelope struct {
	Type      Type            `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	MessageID string          `json:"message_id,omitempty"`
}

// NewEnvelope marshals payload into an envelope.
func NewEnvelope(t Type, sessionID, messageID string, payload any, ts time.Time) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Envelope{Type: t, SessionID: sessionID, Data: data, Timestamp: ts.UTC(), MessageID: messageID}, nil
}

// Connected greets a new connection.
type Connected struct {
	ServerVersion string   `json:"server_version"`
	Capabilities  []string `json:"capabilities"`
}

type SessionStart struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

// Status reports stage progress. CountryResult is set once a country is final.
type Status struct {
	Step          string              `json:"step"`
	Message       string              `json:"message"`
	Progress      *float64            `json:"progress,omitempty"`
	CountryResult *core.CountryResult `json:"country_result,omitempty"`
}

type Content struct {
	Content    string `json:"content"`
	IsComplete bool   `json:"is_complete"`
}

type Citations struct {
	Citations []core.Citation `json:"citations"`
}

type Artifact struct {
	Artifact artifact.Artifact `json:"artifact"`
}

type Complete struct {
	SessionID       string         `json:"session_id"`
	Confidence      float64        `json:"confidence"`
	TotalCitations  int            `json:"total_citations"`
	HasArtifact     bool           `json:"has_artifact"`
	PartialFailures []core.Failure `json:"partial_failures,omitempty"`
}

// Error is the error payload. RetryAfter is in seconds. A Partial error
// concerns one country or artifact and the session keeps streaming.
type Error struct {
	Code        apperr.Code `json:"code"`
	Message     string      `json:"message"`
	Recoverable bool        `json:"recoverable"`
	RetryAfter  *float64    `json:"retry_after,omitempty"`
	Partial     bool        `json:"partial,omitempty"`
	Country     string      `json:"country,omitempty"`
}

// ErrorFrom classifies err into an error payload.
func ErrorFrom(err error) Error {
	d := apperr.Classify(err)
	e := Error{Code: d.Code, Message: d.Message, Recoverable: d.Recoverable}
	if d.RetryAfter > 0 {
		secs := d.RetryAfter.Seconds()
		e.RetryAfter = &secs
	}
	return e
}

// Query starts a session.
type Query struct {
	Query     string   `json:"query" validate:"required"`
	SessionID string   `json:"session_id,omitempty"`
	Artifacts []string `json:"artifacts,omitempty"`
}

// Cancel stops a session.
type Cancel struct {
	SessionID string `json:"session_id" validate:"required"`
}

// Inbound is a decoded client message. Exactly one of Query and Cancel is set.
type Inbound struct {
	Type      Type
	MessageID string
	Query     *Query
	Cancel    *Cancel
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func checkPayload(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &apperr.ValidationError{Field: verrs[0].Field(), Reason: verrs[0].Tag()}
	}
	return &apperr.ValidationError{Field: "data", Reason: err.Error()}
}

// ErrUnknownType is returned for inbound frames with an unsupported type.
var ErrUnknownType = errors.New("unknown message type")

// DecodeInbound parses one client frame.
func DecodeInbound(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Inbound{}, &apperr.ValidationError{Field: "message", Reason: "malformed JSON"}
	}
	in := Inbound{Type: env.Type, MessageID: env.MessageID}
	switch env.Type {
	case TypeQuery:
		var q Query
		if err := decodeData(env.Data, &q); err != nil {
			return in, err
		}
		q.Query = strings.TrimSpace(q.Query)
		if err := checkPayload(q); err != nil {
			return in, err
		}
		in.Query = &q
	case TypeCancel:
		var c Cancel
		if err := decodeData(env.Data, &c); err != nil {
			return in, err
		}
		if c.SessionID == "" {
			c.SessionID = env.SessionID
		}
		if err := checkPayload(c); err != nil {
			return in, err
		}
		in.Cancel = &c
	default:
		return in, fmt.Errorf("%w %q", ErrUnknownType, env.Type)
	}
	return in, nil
}

func decodeData(data json.RawMessage, out any) error {
	if len(data) == 0 || string(data) == "null" {
		return &apperr.ValidationError{Field: "data", Reason: "missing"}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &apperr.ValidationError{Field: "data", Reason: err.Error()}
	}
	return nil
}

// DefaultChunkSize is the content chunk size in bytes.
const DefaultChunkSize = 240

// ChunkText splits text into pieces of at most size bytes, breaking on
// whitespace. A single word longer than size is split at a rune boundary.
// Concatenating the chunks yields the original text.
func ChunkText(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if text == "" {
		return nil
	}
	var chunks []string
	for len(text) > size {
		cut := strings.LastIndexAny(text[:size+1], " \n\t")
		if cut <= 0 {
			cut = size
			for cut > 0 && !utf8RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = size
			}
		} else {
			cut++ // keep the separator with the preceding chunk
			if cut > size {
				cut = size
			}
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }

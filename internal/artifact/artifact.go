// Package artifact decides which visual artifacts a query gets and renders
// them into the object store.
package artifact

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Kind names an artifact type.
type Kind string

const (
	KindTable      Kind = "table"
	KindBarChart   Kind = "bar_chart"
	KindRadarChart Kind = "radar_chart"
	KindMap        Kind = "map"
	KindRawExport  Kind = "raw_export"
)

// order is the emission order of decided kinds.
var order = []Kind{KindTable, KindBarChart, KindRadarChart, KindMap, KindRawExport}

// ParseKind accepts a kind name as sent by clients.
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range order {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// Status is the artifact lifecycle state. It only moves generating -> ready|failed.
type Status string

const (
	StatusGenerating Status = "generating"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// Representation is one retrievable form of an artifact.
type Representation string

const (
	RepHTML  Representation = "html"
	RepImage Representation = "image"
	RepData  Representation = "data"
	RepCSV   Representation = "csv"
)

// ParseRepresentation validates a representation path segment.
func ParseRepresentation(s string) (Representation, bool) {
	switch r := Representation(s); r {
	case RepHTML, RepImage, RepData, RepCSV:
		return r, true
	}
	return "", false
}

// ErrInvalidStatus is returned for a non-monotonic status change.
var ErrInvalidStatus = errors.New("invalid artifact status transition")

// Artifact is the client-visible record of one generated artifact.
type Artifact struct {
	ID        string                    `json:"artifact_id"`
	Kind      Kind                      `json:"kind"`
	Status    Status                    `json:"status"`
	URLs      map[Representation]string `json:"urls,omitempty"`
	CreatedAt time.Time                 `json:"created_at"`
	Size      int64                     `json:"size,omitempty"`
	Warnings  []string                  `json:"warnings,omitempty"`
	Error     string                    `json:"error,omitempty"`
}

// Terminal reports whether the artifact reached ready or failed.
func (a Artifact) Terminal() bool {
	return a.Status == StatusReady || a.Status == StatusFailed
}

// Advance returns a copy moved to next, rejecting anything but generating -> terminal.
func (a Artifact) Advance(next Status) (Artifact, error) {
	if a.Status != StatusGenerating || (next != StatusReady && next != StatusFailed) {
		return a, fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, a.Status, next)
	}
	a.Status = next
	return a, nil
}

var (
	radarWords = regexp.MustCompile(`(?i)\b(radar|distribution|spider)\b`)
	mapWords   = regexp.MustCompile(`(?i)\b(maps?|choropleth|geographic(al)?(ally)?)\b`)
	rawWords   = regexp.MustCompile(`(?i)\b(raw\s+data|export|json|csv)\b`)
)

// Decide returns the artifact kinds for a query. Table and bar chart are
// always produced; the map only when asked for in the query or explicitly.
func Decide(query string, explicit []Kind) []Kind {
	want := map[Kind]bool{KindTable: true, KindBarChart: true}
	if radarWords.MatchString(query) {
		want[KindRadarChart] = true
	}
	if mapWords.MatchString(query) {
		want[KindMap] = true
	}
	if rawWords.MatchString(query) {
		want[KindRawExport] = true
	}
	for _, k := range explicit {
		want[k] = true
	}
	out := make([]Kind, 0, len(want))
	for _, k := range order {
		if want[k] {
			out = append(out, k)
		}
	}
	return out
}

// URL is the public retrieval path of a representation.
func URL(base, id string, rep Representation) string {
	return fmt.Sprintf("%s/api/artifacts/%s/%s", strings.TrimRight(base, "/"), id, rep)
}

// Key is the object store key of a representation.
func Key(id string, rep Representation) string {
	return fmt.Sprintf("artifacts/%s/%s", id, rep)
}

package analysis

import (
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/sentiscope/internal/agent/core"
)

const (
	maxEvidenceDocs    = 10
	maxEvidenceSnippet = 400
)

// formatEvidence renders documents as numbered prompt lines:
// [n] Title: "Snippet" (domain, YYYY-MM-DD) <URL>
func formatEvidence(docs []core.Document) string {
	var b strings.Builder
	for i, d := range docs {
		if i >= maxEvidenceDocs {
			break
		}
		parts := []string{fmt.Sprintf("[%d]", i+1)}
		if title := strings.TrimSpace(d.Title); title != "" {
			parts = append(parts, title+":")
		}
		text := d.Content
		if text == "" {
			text = d.Snippet
		}
		if snippet := formatSnippet(text, maxEvidenceSnippet); snippet != "" {
			parts = append(parts, snippet)
		}
		meta := domainOf(d.URL)
		if d.PublishedAt != nil && !d.PublishedAt.IsZero() {
			if meta != "" {
				meta += ", "
			}
			meta += d.PublishedAt.Format("2006-01-02")
		}
		if meta != "" {
			parts = append(parts, "("+meta+")")
		}
		if link := strings.TrimSpace(d.URL); link != "" {
			parts = append(parts, "<"+link+">")
		}
		b.WriteString(strings.Join(parts, " "))
		b.WriteByte('\n')
	}
	return b.String()
}

func formatSnippet(snippet string, limit int) string {
	snippet = strings.Join(strings.Fields(snippet), " ")
	if snippet == "" {
		return ""
	}
	if limit > 0 && len(snippet) > limit {
		snippet = strings.ToValidUTF8(snippet[:limit], "") + "…"
	}
	return `"` + strings.ReplaceAll(snippet, `"`, `'`) + `"`
}

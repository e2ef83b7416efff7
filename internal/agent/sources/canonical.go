package sources

import (
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/sentiscope/internal/agent/core"
)

var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"utm_id":       {},
	"gclid":        {},
	"dclid":        {},
	"fbclid":       {},
	"msclkid":      {},
	"igshid":       {},
	"cmpid":        {},
	"ref":          {},
}

// CanonicalURL is the deduplication key for a document or citation URL:
// lowercased scheme and host, no default port, "www." or fragment, cleaned
// path, tracking parameters dropped and the remaining query sorted. Input
// that does not parse is returned trimmed and lowercased.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + strings.TrimPrefix(raw, "//")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(raw)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "http" {
		// the same article is routinely linked over both schemes
		scheme = "https"
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if port := u.Port(); port != "" && port != "80" && port != "443" {
		host += ":" + port
	}

	p := path.Clean("/" + u.Path)
	if p == "/" {
		p = ""
	}

	q := u.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		if _, drop := trackingParams[strings.ToLower(k)]; drop || strings.HasPrefix(strings.ToLower(k), "utm_") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		vals := append([]string(nil), q[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			if v != "" {
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(v))
			}
		}
	}

	out := scheme + "://" + host + p
	if b.Len() > 0 {
		out += "?" + b.String()
	}
	return out
}

// Deduplicate merges documents by canonical URL (or title when the URL is
// empty), keeping the higher scored copy and the first-seen order.
func Deduplicate(in []core.Document) []core.Document {
	index := make(map[string]int, len(in))
	out := make([]core.Document, 0, len(in))
	for _, d := range in {
		key := CanonicalURL(d.URL)
		if key == "" {
			key = "title:" + strings.ToLower(strings.TrimSpace(d.Title))
		}
		if i, ok := index[key]; ok {
			if d.Score > out[i].Score {
				out[i] = d
			}
			continue
		}
		index[key] = len(out)
		out = append(out, d)
	}
	return out
}

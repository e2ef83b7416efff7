package session

import (
	"sync"

	"github.com/mohammad-safakhou/sentiscope/internal/agent/core"
	"github.com/mohammad-safakhou/sentiscope/internal/agent/sources"
)

// CitationLedger is the append-only, URL-deduplicated citation list of a session.
type CitationLedger struct {
	mu   sync.Mutex
	seen map[string]struct{}
	list []core.Citation
}

func NewCitationLedger() *CitationLedger {
	return &CitationLedger{seen: map[string]struct{}{}}
}

// Add appends citations not seen before and returns just those.
func (l *CitationLedger) Add(cits ...core.Citation) []core.Citation {
	l.mu.Lock()
	defer l.mu.Unlock()
	var added []core.Citation
	for _, c := range cits {
		key := sources.CanonicalURL(c.URL)
		if key == "" {
			key = "title:" + c.Title
		}
		if _, dup := l.seen[key]; dup {
			continue
		}
		l.seen[key] = struct{}{}
		l.list = append(l.list, c)
		added = append(added, c)
	}
	return added
}

func (l *CitationLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.list)
}

func (l *CitationLedger) All() []core.Citation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.Citation(nil), l.list...)
}

package store

import (
	"strings"

	"github.com/blevesearch/bleve"

	"github.com/mohammad-safakhou/sentiscope/internal/session"
)

// Index is an in-memory full-text index over archived sessions.
type Index struct {
	bleve bleve.Index
}

type indexDoc struct {
	Query     string `json:"query"`
	Topic     string `json:"topic"`
	Countries string `json:"countries"`
	Narrative string `json:"narrative"`
}

func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &Index{bleve: idx}, nil
}

func (i *Index) Add(s session.Session) error {
	return i.bleve.Index(s.ID, indexDoc{
		Query:     s.Query,
		Topic:     s.Topic,
		Countries: strings.Join(s.Countries, " "),
		Narrative: s.Narrative,
	})
}

func (i *Index) Remove(id string) error { return i.bleve.Delete(id) }

// Search returns matching session ids, best first. Input that is not valid
// query-string syntax is matched as plain text.
func (i *Index) Search(q string, k int) ([]string, error) {
	if k <= 0 {
		k = 20
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(q), k, 0, false)
	res, err := i.bleve.Search(req)
	if err != nil {
		req = bleve.NewSearchRequestOptions(bleve.NewMatchQuery(q), k, 0, false)
		if res, err = i.bleve.Search(req); err != nil {
			return nil, err
		}
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func (i *Index) Close() error { return i.bleve.Close() }

package artifact

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/sentiscope/internal/agent/core"
)

type rawExport struct {
	SessionID string                     `json:"session_id"`
	Query     string                     `json:"query"`
	Topic     string                     `json:"topic"`
	Results   []core.CountryResult       `json:"results"`
	Citations []core.Citation            `json:"citations,omitempty"`
	Documents map[string][]core.Document `json:"documents,omitempty"`
}

var csvHeader = []string{"country", "status", "sentiment_score", "sentiment_label", "credibility_score", "source_type",
	"bias_types", "bias_severity", "document_count", "error"}

func (g *Generator) renderRaw(ctx context.Context, in Input) (output, error) {
	exp := rawExport{SessionID: in.SessionID, Query: in.Query, Topic: in.Topic, Results: in.Results, Citations: in.Citations}
	if g.includeDocs {
		exp.Documents = map[string][]core.Document{}
		for _, r := range in.Results {
			if len(r.Documents) > 0 {
				exp.Documents[r.Country] = r.Documents
			}
		}
	}
	js, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return output{}, fmt.Errorf("encode export: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return output{}, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return output{}, err
	}
	for _, r := range in.Results {
		record := []string{r.Country, string(r.Status), "", "", "", r.SourceType, strings.Join(r.BiasTypes, ";"), "",
			strconv.Itoa(r.DocumentCount), r.Error}
		if r.Succeeded() {
			record[2] = strconv.FormatFloat(r.SentimentScore, 'f', 4, 64)
			record[3] = string(r.SentimentLabel)
			record[4] = strconv.FormatFloat(r.CredibilityScore, 'f', 4, 64)
			record[7] = strconv.FormatFloat(r.BiasSeverity, 'f', 4, 64)
		}
		if err := w.Write(record); err != nil {
			return output{}, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return output{}, err
	}
	return output{files: []file{
		{rep: RepData, contentType: "application/json", data: js},
		{rep: RepCSV, contentType: "text/csv; charset=utf-8", data: buf.Bytes()},
	}}, nil
}

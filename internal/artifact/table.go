package artifact

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"math"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/mohammad-safakhou/sentiscope/internal/agent/core"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var (
	summaryHeader  = []interface{}{"Country", "Status", "Sentiment", "Label", "Credibility", "Source Type", "Documents", "Reasoning"}
	biasHeader     = []interface{}{"Country", "Bias Types", "Severity", "Notes"}
	articlesHeader = []interface{}{"Country", "Title", "URL", "Score", "Published"}
)

func (g *Generator) renderTable(ctx context.Context, in Input) (output, error) {
	xlsx, err := buildWorkbook(in)
	if err != nil {
		return output{}, err
	}
	if err := ctx.Err(); err != nil {
		return output{}, err
	}
	var html bytes.Buffer
	if err := tableTemplate.Execute(&html, tableView(in)); err != nil {
		return output{}, fmt.Errorf("render table html: %w", err)
	}
	return output{
		files: []file{
			{rep: RepHTML, contentType: "text/html; charset=utf-8", data: html.Bytes()},
			{rep: RepData, contentType: xlsxContentType, data: xlsx},
		},
		warnings: missingWarnings(in.Results),
	}, nil
}

func buildWorkbook(in Input) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "Summary"); err != nil {
		return nil, err
	}
	if err := writeRows(f, "Summary", summaryHeader, summaryRows(in.Results)); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet("Bias Detail"); err != nil {
		return nil, err
	}
	if err := writeRows(f, "Bias Detail", biasHeader, biasRows(in.Results)); err != nil {
		return nil, err
	}
	if len(in.Citations) > 0 {
		if _, err := f.NewSheet("Articles"); err != nil {
			return nil, err
		}
		if err := writeRows(f, "Articles", articlesHeader, articleRows(in.Citations)); err != nil {
			return nil, err
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func summaryRows(results []core.CountryResult) [][]interface{} {
	rows := make([][]interface{}, 0, len(results))
	for _, r := range results {
		if !r.Succeeded() {
			rows = append(rows, []interface{}{r.Country, string(r.Status), "", "", "", "", 0, r.Error})
			continue
		}
		rows = append(rows, []interface{}{
			r.Country, string(r.Status), round2(r.SentimentScore), string(r.SentimentLabel),
			round2(r.CredibilityScore), r.SourceType, r.DocumentCount, r.Reasoning,
		})
	}
	return rows
}

func biasRows(results []core.CountryResult) [][]interface{} {
	var rows [][]interface{}
	for _, r := range scored(results) {
		rows = append(rows, []interface{}{r.Country, strings.Join(r.BiasTypes, ", "), round2(r.BiasSeverity), r.BiasNotes})
	}
	return rows
}

func articleRows(citations []core.Citation) [][]interface{} {
	rows := make([][]interface{}, 0, len(citations))
	for _, c := range citations {
		published := ""
		if c.PublishedAt != nil {
			published = c.PublishedAt.Format("2006-01-02")
		}
		rows = append(rows, []interface{}{c.Country, c.Title, c.URL, round2(c.Score), published})
	}
	return rows
}

type tableRow struct {
	Country     string
	Status      string
	Score       string
	Label       string
	Credibility string
	SourceType  string
	Documents   int
	Bias        string
	Severity    string
	Reasoning   string
	Error       string
	Failed      bool
}

type tablePage struct {
	Title string
	Query string
	Rows  []tableRow
}

func tableView(in Input) tablePage {
	page := tablePage{Title: "Sentiment by country: " + in.Topic, Query: in.Query}
	for _, r := range in.Results {
		row := tableRow{Country: r.Country, Status: string(r.Status), Failed: !r.Succeeded(), Error: r.Error}
		if r.Succeeded() {
			row.Score = fmt.Sprintf("%+.2f", r.SentimentScore)
			row.Label = string(r.SentimentLabel)
			row.Credibility = fmt.Sprintf("%.2f", r.CredibilityScore)
			row.SourceType = r.SourceType
			row.Documents = r.DocumentCount
			row.Reasoning = r.Reasoning
			row.Bias = strings.Join(r.BiasTypes, ", ")
			row.Severity = fmt.Sprintf("%.2f", r.BiasSeverity)
		}
		page.Rows = append(page.Rows, row)
	}
	return page
}

var tableTemplate = template.Must(template.New("table").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title>
<style>
body{font-family:sans-serif;margin:1.5rem}table{border-collapse:collapse;width:100%}
th,td{border:1px solid #ddd;padding:.4rem;text-align:left;vertical-align:top}th{background:#f4f4f4}
.positive{color:#2e7d32}.negative{color:#c62828}.failed{color:#888;font-style:italic}
</style></head><body>
<h2>{{.Title}}</h2><p>{{.Query}}</p>
<table><thead><tr><th>Country</th><th>Sentiment</th><th>Label</th><th>Credibility</th><th>Source type</th><th>Documents</th><th>Bias</th><th>Severity</th><th>Reasoning</th></tr></thead>
<tbody>{{range .Rows}}{{if .Failed}}<tr class="failed"><td>{{.Country}}</td><td colspan="8">not analysed: {{.Error}}</td></tr>{{else}}<tr><td>{{.Country}}</td><td class="{{.Label}}">{{.Score}}</td><td>{{.Label}}</td><td>{{.Credibility}}</td><td>{{.SourceType}}</td><td>{{.Documents}}</td><td>{{.Bias}}</td><td>{{.Severity}}</td><td>{{.Reasoning}}</td></tr>{{end}}{{end}}</tbody>
</table></body></html>
`))

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/mohammad-safakhou/sentiscope/internal/agent/core"
	"github.com/mohammad-safakhou/sentiscope/internal/geo"
)

var labelColors = map[core.SentimentLabel]string{
	core.LabelNegative: "#c62828",
	core.LabelNeutral:  "#9e9e9e",
	core.LabelPositive: "#2e7d32",
}

type seriesPoint struct {
	Country     string              `json:"country"`
	ISO3        string              `json:"iso3,omitempty"`
	Score       float64             `json:"sentiment_score"`
	Label       core.SentimentLabel `json:"sentiment_label"`
	Credibility float64             `json:"credibility_score"`
	Severity    float64             `json:"bias_severity"`
	Documents   int                 `json:"document_count"`
}

type chartData struct {
	Kind   Kind          `json:"kind"`
	Topic  string        `json:"topic"`
	Series []seriesPoint `json:"series"`
}

func (g *Generator) initOpts(title string) charts.GlobalOpts {
	return charts.WithInitializationOpts(opts.Initialization{
		PageTitle:  title,
		Width:      "960px",
		Height:     "560px",
		AssetsHost: g.assetsHost,
	})
}

func (g *Generator) renderBar(ctx context.Context, in Input) (output, error) {
	points := scored(in.Results)
	if len(points) == 0 {
		return output{}, fmt.Errorf("no scored countries to chart")
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		g.initOpts("Sentiment by country"),
		charts.WithTitleOpts(opts.Title{Title: "Sentiment by country", Subtitle: in.Topic}),
		charts.WithYAxisOpts(opts.YAxis{Name: "sentiment", Min: -1, Max: 1}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	names := make([]string, 0, len(points))
	items := make([]opts.BarData, 0, len(points))
	for _, r := range points {
		names = append(names, r.Country)
		items = append(items, opts.BarData{
			Name:      r.Country,
			Value:     round2(r.SentimentScore),
			ItemStyle: &opts.ItemStyle{Color: labelColors[r.SentimentLabel]},
		})
	}
	bar.SetXAxis(names).AddSeries("sentiment", items)

	var html bytes.Buffer
	if err := bar.Render(&html); err != nil {
		return output{}, fmt.Errorf("render bar chart: %w", err)
	}
	return g.chartOutput(ctx, KindBarChart, in, points, html.Bytes(), missingWarnings(in.Results))
}

func (g *Generator) renderRadar(ctx context.Context, in Input) (output, error) {
	points := scored(in.Results)
	if len(points) == 0 {
		return output{}, fmt.Errorf("no scored countries to chart")
	}
	maxDocs := 1
	for _, r := range points {
		if r.DocumentCount > maxDocs {
			maxDocs = r.DocumentCount
		}
	}
	radar := charts.NewRadar()
	radar.SetGlobalOptions(
		g.initOpts("Coverage profile"),
		charts.WithTitleOpts(opts.Title{Title: "Coverage profile", Subtitle: in.Topic}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithRadarComponentOpts(opts.RadarComponent{
			Shape: "polygon",
			Indicator: []*opts.Indicator{
				{Name: "Sentiment", Min: -1, Max: 1},
				{Name: "Credibility", Min: 0, Max: 1},
				{Name: "Bias severity", Min: 0, Max: 1},
				{Name: "Coverage", Min: 0, Max: float32(maxDocs)},
			},
		}),
	)
	for _, r := range points {
		radar.AddSeries(r.Country, []opts.RadarData{{
			Name:  r.Country,
			Value: []float64{round2(r.SentimentScore), round2(r.CredibilityScore), round2(r.BiasSeverity), float64(r.DocumentCount)},
		}})
	}
	var html bytes.Buffer
	if err := radar.Render(&html); err != nil {
		return output{}, fmt.Errorf("render radar chart: %w", err)
	}
	return g.chartOutput(ctx, KindRadarChart, in, points, html.Bytes(), missingWarnings(in.Results))
}

// renderMap draws a world choropleth. Countries the lookup table cannot place
// are left off the map with a warning; the artifact is still ready.
func (g *Generator) renderMap(ctx context.Context, in Input) (output, error) {
	warnings := missingWarnings(in.Results)
	var (
		points []core.CountryResult
		items  []opts.MapData
	)
	for _, r := range scored(in.Results) {
		c, ok := geo.Lookup(r.Country)
		if !ok || c.MapName == "" {
			warnings = append(warnings, fmt.Sprintf("%s omitted from map: unknown country", r.Country))
			continue
		}
		points = append(points, r)
		items = append(items, opts.MapData{Name: c.MapName, Value: round2(r.SentimentScore)})
	}
	if len(items) == 0 {
		warnings = append(warnings, "no mappable countries")
	}

	m := charts.NewMap()
	m.RegisterMapType("world")
	m.SetGlobalOptions(
		g.initOpts("Sentiment map"),
		charts.WithTitleOpts(opts.Title{Title: "Sentiment map", Subtitle: in.Topic}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Calculable: opts.Bool(true),
			Min:        -1,
			Max:        1,
			Text:       []string{"positive", "negative"},
			InRange:    &opts.VisualMapInRange{Color: []string{"#c62828", "#eeeeee", "#2e7d32"}},
		}),
	)
	m.AddSeries("sentiment", items)

	var html bytes.Buffer
	if err := m.Render(&html); err != nil {
		return output{}, fmt.Errorf("render map: %w", err)
	}
	return g.chartOutput(ctx, KindMap, in, points, html.Bytes(), warnings)
}

func (g *Generator) chartOutput(ctx context.Context, kind Kind, in Input, points []core.CountryResult, html []byte, warnings []string) (output, error) {
	data := chartData{Kind: kind, Topic: in.Topic, Series: make([]seriesPoint, 0, len(points))}
	for _, r := range points {
		p := seriesPoint{
			Country:     r.Country,
			Score:       r.SentimentScore,
			Label:       r.SentimentLabel,
			Credibility: r.CredibilityScore,
			Severity:    r.BiasSeverity,
			Documents:   r.DocumentCount,
		}
		if c, ok := geo.Lookup(r.Country); ok {
			p.ISO3 = c.ISO3
		}
		data.Series = append(data.Series, p)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return output{}, err
	}
	out := output{
		files: []file{
			{rep: RepHTML, contentType: "text/html; charset=utf-8", data: html},
			{rep: RepData, contentType: "application/json", data: raw},
		},
		warnings: warnings,
	}
	g.snapshot(ctx, html, &out)
	return out, nil
}

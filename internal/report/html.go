package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"os"

	"github.com/wesleyorama2/volley/internal/format"
	"github.com/wesleyorama2/volley/internal/metrics"
)

// htmlData contains all data needed to render the HTML report.
type htmlData struct {
	*Result
	SeriesJSON template.JS
}

// seriesPoint is one chart point in the embedded JSON.
type seriesPoint struct {
	OffsetSeconds float64 `json:"t"`
	Requests      int64   `json:"requests"`
	Failures      int64   `json:"failures"`
}

// HTML renders res as a standalone HTML page.
func HTML(res *Result) (string, error) {
	if res == nil || res.Snapshot == nil {
		return "", fmt.Errorf("result cannot be nil")
	}

	tmpl, err := template.New("report").Funcs(templateFuncs()).Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	series, err := seriesJSON(res.Snapshot.Series)
	if err != nil {
		return "", fmt.Errorf("failed to convert time series: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, htmlData{Result: res, SeriesJSON: template.JS(series)}); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// WriteHTML renders res and writes it to path.
func WriteHTML(res *Result, path string) error {
	html, err := HTML(res)
	if err != nil {
		return fmt.Errorf("failed to generate HTML: %w", err)
	}
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		return fmt.Errorf("failed to write HTML file: %w", err)
	}
	return nil
}

// JSON renders res as indented JSON.
func JSON(res *Result) ([]byte, error) {
	return json.MarshalIndent(res, "", "  ")
}

func seriesJSON(points []metrics.SeriesPoint) (string, error) {
	if len(points) == 0 {
		return "[]", nil
	}
	out := make([]seriesPoint, len(points))
	for i, p := range points {
		out[i] = seriesPoint{OffsetSeconds: p.Offset.Seconds(), Requests: p.Requests, Failures: p.Failures}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "[]", err
	}
	return string(b), nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDuration": format.Duration,
		"formatLatency":  format.Latency,
		"formatBytes":    format.Bytes,
		"formatNumber":   format.Number,
		"percent":        format.Percent,
	}
}

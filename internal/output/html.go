package output

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/pulse-events/loadgen/internal/dispatch"
	"github.com/pulse-events/loadgen/internal/metrics"
)

// outcomeRow is one line of the outcome table.
type outcomeRow struct {
	Label string
	Class string
	Count int64
	Rate  float64
}

type htmlData struct {
	Run      RunInfo
	Summary  metrics.Summary
	Outcomes []outcomeRow
}

// RenderHTML renders a standalone HTML report for info and s.
func RenderHTML(info RunInfo, s metrics.Summary) (string, error) {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatDuration": formatDuration,
		"formatNumber":   formatNumber,
		"formatPercent":  formatPercent,
		"ms":             func(v float64) string { return fmt.Sprintf("%.2f", v) },
	}).Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	data := htmlData{Run: info, Summary: s}
	for _, k := range dispatch.Kinds {
		data.Outcomes = append(data.Outcomes, outcomeRow{
			Label: kindLabel(k),
			Class: k.String(),
			Count: s.Counts.Get(k),
			Rate:  s.Rates.Get(k),
		})
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// HTMLFile writes the final summary as an HTML page.
type HTMLFile struct {
	path   string
	info   RunInfo
	logger *zap.Logger

	mu  sync.Mutex
	err error
}

// NewHTMLFile creates a reporter writing to path.
func NewHTMLFile(path string, info RunInfo, logger *zap.Logger) *HTMLFile {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTMLFile{path: path, info: info, logger: logger}
}

// OnProgress does nothing.
func (h *HTMLFile) OnProgress(metrics.Progress) {}

// OnFinal renders and writes the report.
func (h *HTMLFile) OnFinal(s metrics.Summary) {
	page, err := RenderHTML(h.info, s)
	if err == nil {
		if werr := os.WriteFile(h.path, []byte(page), 0o644); werr != nil {
			err = fmt.Errorf("failed to write HTML file: %w", werr)
		}
	}

	h.mu.Lock()
	h.err = err
	h.mu.Unlock()

	if err != nil {
		h.logger.Error("failed to write HTML report", zap.String("path", h.path), zap.Error(err))
		return
	}
	h.logger.Info("wrote HTML report", zap.String("path", h.path))
}

// Err returns the error from the last write, if any.
func (h *HTMLFile) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Load test report - {{.Run.URL}}</title>
    <style>
        :root {
            --bg: #f8fafc;
            --card: #ffffff;
            --text: #1e293b;
            --muted: #64748b;
            --border: #e2e8f0;
            --success: #22c55e;
            --duplicate: #3b82f6;
            --warning: #f59e0b;
            --error: #ef4444;
        }
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif;
            background: var(--bg);
            color: var(--text);
            line-height: 1.6;
        }
        .container { max-width: 1000px; margin: 0 auto; padding: 2rem; }
        h1 { font-size: 1.6rem; margin-bottom: 0.25rem; }
        h2 { font-size: 1.1rem; margin-bottom: 0.75rem; }
        .muted { color: var(--muted); font-size: 0.9rem; }
        .card {
            background: var(--card);
            border: 1px solid var(--border);
            border-radius: 8px;
            padding: 1.25rem;
            margin-top: 1.25rem;
        }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(160px, 1fr)); gap: 1rem; }
        .stat .value { font-size: 1.5rem; font-weight: 600; }
        .stat .label { color: var(--muted); font-size: 0.85rem; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 0.5rem; border-bottom: 1px solid var(--border); }
        td.num { text-align: right; font-variant-numeric: tabular-nums; }
        .success { color: var(--success); }
        .duplicate { color: var(--duplicate); }
        .rate_limited, .bad_request { color: var(--warning); }
        .error { color: var(--error); }
    </style>
</head>
<body>
<div class="container">
    <h1>Load test report</h1>
    <p class="muted">{{.Run.URL}} &middot; run {{.Run.RunID}} &middot; seed {{.Run.Seed}} &middot; {{.Summary.Start.UTC.Format "2006-01-02 15:04:05 MST"}}</p>

    <div class="card">
        <h2>Configuration</h2>
        <div class="grid">
            <div class="stat"><div class="value">{{.Run.RPS}}</div><div class="label">Target RPS</div></div>
            <div class="stat"><div class="value">{{formatDuration .Run.Duration}}</div><div class="label">Duration</div></div>
            <div class="stat"><div class="value">{{formatPercent .Run.DuplicateRate}}</div><div class="label">Duplicate rate</div></div>
            <div class="stat"><div class="value">{{formatPercent .Run.BadRate}}</div><div class="label">Bad event rate</div></div>
            <div class="stat"><div class="value">{{len .Run.Tenants}}</div><div class="label">Tenants</div></div>
        </div>
    </div>

    <div class="card">
        <h2>Results</h2>
        <div class="grid">
            <div class="stat"><div class="value">{{formatNumber .Summary.Total}}</div><div class="label">Total requests</div></div>
            <div class="stat"><div class="value">{{printf "%.2f" .Summary.ActualRPS}}</div><div class="label">Actual RPS</div></div>
            <div class="stat"><div class="value">{{printf "%.2f" .Summary.Elapsed.Seconds}}s</div><div class="label">Total duration</div></div>
            <div class="stat"><div class="value">{{formatNumber .Summary.Timeouts}}</div><div class="label">Timeouts</div></div>
        </div>
        <table style="margin-top: 1rem;">
            <thead><tr><th>Outcome</th><th>Count</th><th>Share</th></tr></thead>
            <tbody>
            {{- range .Outcomes}}
                <tr><td class="{{.Class}}">{{.Label}}</td><td class="num">{{formatNumber .Count}}</td><td class="num">{{formatPercent .Rate}}</td></tr>
            {{- end}}
            </tbody>
        </table>
    </div>

    <div class="card">
        <h2>Injected faults</h2>
        <div class="grid">
            <div class="stat"><div class="value">{{formatNumber .Summary.Injected.ReplayedKeys}}</div><div class="label">Replayed keys</div></div>
            <div class="stat"><div class="value">{{formatNumber .Summary.Injected.MalformedEvents}}</div><div class="label">Malformed events</div></div>
        </div>
    </div>

    <div class="card">
        <h2>Latency (ms)</h2>
        {{- with .Summary.Latency}}
        <div class="grid">
            <div class="stat"><div class="value">{{ms .Mean}}</div><div class="label">Average</div></div>
            <div class="stat"><div class="value">{{ms .Min}}</div><div class="label">Min</div></div>
            <div class="stat"><div class="value">{{ms .Max}}</div><div class="label">Max</div></div>
        </div>
        {{- else}}
        <p class="muted">No accepted requests.</p>
        {{- end}}
        {{- with .Summary.Percentiles}}
        <div class="grid" style="margin-top: 1rem;">
            <div class="stat"><div class="value">{{ms .P50}}</div><div class="label">P50</div></div>
            <div class="stat"><div class="value">{{ms .P95}}</div><div class="label">P95</div></div>
            <div class="stat"><div class="value">{{ms .P99}}</div><div class="label">P99</div></div>
        </div>
        {{- end}}
    </div>
</div>
</body>
</html>
`

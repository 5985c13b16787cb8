package report

// htmlTemplate is the page rendered by HTML. Scenarios appear in
// registration order, as in the text report.
const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{if .Name}}{{.Name}}{{else}}Run {{.RunID}}{{end}} - Load Test Report</title>
    <script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
    <style>
        :root {
            --bg: #f8fafc;
            --card: #ffffff;
            --text: #1e293b;
            --muted: #64748b;
            --border: #e2e8f0;
            --ok: #22c55e;
            --fail: #ef4444;
            --accent: #3b82f6;
        }
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif;
            background: var(--bg);
            color: var(--text);
            line-height: 1.6;
        }
        .container { max-width: 1200px; margin: 0 auto; padding: 2rem; }
        .card {
            background: var(--card);
            border: 1px solid var(--border);
            border-radius: 12px;
            padding: 1.5rem;
            margin-bottom: 1.5rem;
        }
        .header { display: flex; justify-content: space-between; align-items: center; }
        .badge { padding: 0.4rem 1rem; border-radius: 999px; color: #fff; font-weight: 700; }
        .badge.passed { background: var(--ok); }
        .badge.failed { background: var(--fail); }
        .meta { color: var(--muted); font-size: 0.9rem; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(160px, 1fr)); gap: 1rem; }
        .stat .label { color: var(--muted); font-size: 0.8rem; text-transform: uppercase; }
        .stat .value { font-size: 1.5rem; font-weight: 700; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 0.5rem; border-bottom: 1px solid var(--border); }
        th { color: var(--muted); font-size: 0.8rem; text-transform: uppercase; }
        .ok { color: var(--ok); }
        .fail { color: var(--fail); }
        h2 { font-size: 1.1rem; margin-bottom: 1rem; }
    </style>
</head>
<body>
<div class="container">
    <div class="card header">
        <div>
            <h1>{{if .Name}}{{.Name}}{{else}}Load Test Report{{end}}</h1>
            <div class="meta">Run {{.RunID}} &middot; {{.State}} &middot; {{formatDuration .Duration}} &middot; started {{.StartTime.Format "2006-01-02 15:04:05"}}</div>
        </div>
        {{if .Passed}}<span class="badge passed">PASSED</span>{{else}}<span class="badge failed">FAILED</span>{{end}}
    </div>

    {{with .Snapshot}}
    <div class="card grid">
        <div class="stat"><div class="label">Requests</div><div class="value">{{formatNumber .TotalRequests}}</div></div>
        <div class="stat"><div class="label">Error rate</div><div class="value">{{percent .ErrorRate}}</div></div>
        <div class="stat"><div class="label">Throughput</div><div class="value">{{printf "%.2f" .RPS}}/s</div></div>
        <div class="stat"><div class="label">p95</div><div class="value">{{formatLatency .Latency.P95}}</div></div>
        <div class="stat"><div class="label">p99</div><div class="value">{{formatLatency .Latency.P99}}</div></div>
        <div class="stat"><div class="label">Data</div><div class="value">{{formatBytes .DataTransferred}}</div></div>
    </div>

    <div class="card">
        <h2>Scenarios</h2>
        <table>
            <thead>
            <tr>
                <th>Scenario</th><th>Invocations</th><th>Success</th><th>✓ / ✗</th>
                <th>avg</th><th>p95</th><th>max</th>
                <th>&lt;1s</th><th>&lt;3s</th><th>&lt;5s</th><th>&ge;5s</th>
            </tr>
            </thead>
            <tbody>
            {{range .Scenarios}}
            <tr>
                <td>█ {{.Name}}</td>
                <td>{{formatNumber .Count}}</td>
                <td class="{{if gt .FailCount 0}}fail{{else}}ok{{end}}">{{.SuccessRate}}%</td>
                <td>✓ {{.SuccessCount}} / ✗ {{.FailCount}}</td>
                <td>{{formatLatency .Latency.Mean}}</td>
                <td>{{formatLatency .Latency.P95}}</td>
                <td>{{formatLatency .Latency.Max}}</td>
                <td>{{.Buckets.Under1s}}</td>
                <td>{{.Buckets.Under3s}}</td>
                <td>{{.Buckets.Under5s}}</td>
                <td>{{.Buckets.Over5s}}</td>
            </tr>
            {{end}}
            </tbody>
        </table>
    </div>
    {{end}}

    {{if .Thresholds}}
    <div class="card">
        <h2>Thresholds</h2>
        <table>
            <thead><tr><th></th><th>Metric</th><th>Expression</th><th>Actual</th><th>Message</th></tr></thead>
            <tbody>
            {{range .Thresholds}}
            <tr>
                <td>{{if .Passed}}<span class="ok">✓</span>{{else}}<span class="fail">✗</span>{{end}}</td>
                <td>{{.Metric}}</td>
                <td>{{.Expression}}</td>
                <td>{{.Value}}</td>
                <td>{{.Message}}</td>
            </tr>
            {{end}}
            </tbody>
        </table>
    </div>
    {{end}}

    {{if .Error}}<div class="card fail">Error: {{.Error}}</div>{{end}}

    <div class="card">
        <h2>Requests over time</h2>
        <canvas id="series"></canvas>
    </div>
</div>
<script>
    const series = {{.SeriesJSON}};
    if (series.length > 0 && window.Chart) {
        new Chart(document.getElementById('series'), {
            type: 'line',
            data: {
                labels: series.map(p => p.t + 's'),
                datasets: [
                    { label: 'Requests', data: series.map(p => p.requests), borderColor: '#3b82f6', tension: 0.2 },
                    { label: 'Failures', data: series.map(p => p.failures), borderColor: '#ef4444', tension: 0.2 }
                ]
            },
            options: { responsive: true, animation: false }
        });
    }
</script>
</body>
</html>
`

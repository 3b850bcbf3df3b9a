// Package report summarizes archived runs for the runs command.
package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/FranksOps/serpdump/internal/storage"
)

// Run is one row of the per-run listing.
type Run struct {
	ID         string        `json:"id"`
	JobID      string        `json:"job_id,omitempty"`
	Searches   int           `json:"searches"`
	Outcome    string        `json:"outcome"`
	Polls      int           `json:"polls"`
	Bytes      int           `json:"bytes"`
	Duration   time.Duration `json:"duration"`
	OutputPath string        `json:"output_path,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	Error      string        `json:"error,omitempty"`
}

// Summary aggregates a set of run records.
type Summary struct {
	TotalRuns     int            `json:"total_runs"`
	TotalErrors   int            `json:"total_errors"`
	TotalSearches int            `json:"total_searches"`
	TotalPolls    int            `json:"total_polls"`
	TotalBytes    int64          `json:"total_bytes"`
	Outcomes      map[string]int `json:"outcomes"`
	AvgDuration   time.Duration  `json:"avg_duration"`
	StartTime     time.Time      `json:"start_time"`
	EndTime       time.Time      `json:"end_time"`
	Window        time.Duration  `json:"window"`
	Runs          []Run          `json:"runs"`
}

// GenerateSummary folds records into a Summary. Runs keep the input order.
func GenerateSummary(records []*storage.RunRecord) Summary {
	s := Summary{
		Outcomes: make(map[string]int),
		Runs:     make([]Run, 0, len(records)),
	}
	if len(records) == 0 {
		return s
	}

	s.StartTime = records[0].CreatedAt
	s.EndTime = records[0].CreatedAt

	var total time.Duration
	for _, r := range records {
		s.TotalRuns++
		if r.Outcome != storage.OutcomeSuccess {
			s.TotalErrors++
		}
		s.Outcomes[r.Outcome]++
		s.TotalSearches += len(r.Specs)
		s.TotalPolls += r.Polls
		s.TotalBytes += int64(len(r.Payload))
		total += r.Duration

		if r.CreatedAt.Before(s.StartTime) {
			s.StartTime = r.CreatedAt
		}
		if r.CreatedAt.After(s.EndTime) {
			s.EndTime = r.CreatedAt
		}

		s.Runs = append(s.Runs, Run{
			ID:         r.ID,
			JobID:      r.JobID,
			Searches:   len(r.Specs),
			Outcome:    r.Outcome,
			Polls:      r.Polls,
			Bytes:      len(r.Payload),
			Duration:   r.Duration,
			OutputPath: r.OutputPath,
			CreatedAt:  r.CreatedAt,
			Error:      r.Error,
		})
	}

	s.AvgDuration = total / time.Duration(s.TotalRuns)
	s.Window = s.EndTime.Sub(s.StartTime)
	return s
}

// Write renders summary in the named format: text, json or html.
func Write(w io.Writer, format string, summary Summary) error {
	switch strings.ToLower(format) {
	case "", "text":
		return WriteText(w, summary)
	case "json":
		return WriteJSON(w, summary)
	case "html":
		return WriteHTML(w, summary)
	default:
		return fmt.Errorf("report: unknown format %q", format)
	}
}

func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

var funcs = map[string]any{
	"ts": func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
	"short": func(s string) string {
		if len(s) > 8 {
			return s[:8]
		}
		return s
	},
}

const textTmpl = `Serpdump Run Summary
--------------------
Time:          {{ts .StartTime}} - {{ts .EndTime}}
Window:        {{.Window}}
Runs:          {{.TotalRuns}} ({{.TotalErrors}} failed)
Searches:      {{.TotalSearches}}
Polls:         {{.TotalPolls}}
Payload Bytes: {{.TotalBytes}}
Avg Duration:  {{.AvgDuration}}

Outcomes:
{{- range $outcome, $count := .Outcomes}}
  {{$outcome}}: {{$count}}
{{- else}}
  None
{{- end}}

Runs:
{{- range .Runs}}
  {{ts .CreatedAt}}  {{short .ID}}  {{.Outcome}}  job={{.JobID}}  polls={{.Polls}}  {{.Duration}}
{{- if .OutputPath}}  -> {{.OutputPath}}{{end}}
{{- if .Error}}
    error: {{.Error}}
{{- end}}
{{- else}}
  None
{{- end}}
`

var textReport = template.Must(template.New("textReport").Funcs(funcs).Parse(textTmpl))

// WriteText writes a human-readable summary.
func WriteText(w io.Writer, summary Summary) error {
	if err := textReport.Execute(w, summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Serpdump Run Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  .failed { color: #b00; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Serpdump Run Report</h1>
  <p><strong>Time:</strong> {{ts .StartTime}} to {{ts .EndTime}} ({{.Window}})</p>

  <div class="stat-card">
    <div>Runs</div>
    <div class="stat-val">{{.TotalRuns}}</div>
  </div>
  <div class="stat-card">
    <div>Failed</div>
    <div class="stat-val{{if gt .TotalErrors 0}} failed{{end}}">{{.TotalErrors}}</div>
  </div>
  <div class="stat-card">
    <div>Polls</div>
    <div class="stat-val">{{.TotalPolls}}</div>
  </div>
  <div class="stat-card">
    <div>Payload Bytes</div>
    <div class="stat-val">{{.TotalBytes}}</div>
  </div>

  <h3>Outcomes</h3>
  <table>
    <tr><th>Outcome</th><th>Count</th></tr>
    {{- range $outcome, $count := .Outcomes}}
    <tr><td>{{$outcome}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>

  <h3>Runs</h3>
  <table>
    <tr><th>Started</th><th>Job</th><th>Outcome</th><th>Searches</th><th>Polls</th><th>Duration</th><th>Output</th><th>Error</th></tr>
    {{- range .Runs}}
    <tr><td>{{ts .CreatedAt}}</td><td>{{.JobID}}</td><td>{{.Outcome}}</td><td>{{.Searches}}</td><td>{{.Polls}}</td><td>{{.Duration}}</td><td>{{.OutputPath}}</td><td>{{.Error}}</td></tr>
    {{- else}}
    <tr><td colspan="8">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`

var htmlReport = htmltemplate.Must(htmltemplate.New("htmlReport").Funcs(funcs).Parse(htmlTmpl))

// WriteHTML writes a standalone HTML page. Archived values are escaped.
func WriteHTML(w io.Writer, summary Summary) error {
	if err := htmlReport.Execute(w, summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

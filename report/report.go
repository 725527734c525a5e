// Package report renders session reports as JSON, HTML and plain text.
package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	texttemplate "text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/use-agent/sitecheck/models"
)

var (
	htmlTmpl = template.Must(template.New("report").Funcs(sprig.HtmlFuncMap()).Parse(htmlTemplate))
	textTmpl = texttemplate.Must(texttemplate.New("summary").Funcs(sprig.TxtFuncMap()).Parse(textTemplate))
)

// WriteJSON encodes rep as indented JSON.
func WriteJSON(w io.Writer, rep *models.SessionReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

// WriteHTML renders rep as a standalone HTML page.
func WriteHTML(w io.Writer, rep *models.SessionReport) error {
	if err := htmlTmpl.Execute(w, rep); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}
	return nil
}

// WriteSummary renders a short plain-text summary with failed checks only.
func WriteSummary(w io.Writer, rep *models.SessionReport) error {
	if err := textTmpl.Execute(w, rep); err != nil {
		return fmt.Errorf("report: render summary: %w", err)
	}
	return nil
}

// Files are the paths written by WriteFiles.
type Files struct {
	JSON string
	HTML string
}

// WriteFiles writes <dir>/<session-id>.json and .html, creating dir.
func WriteFiles(dir string, rep *models.SessionReport) (Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("report: create %s: %w", dir, err)
	}
	base := filepath.Join(dir, "sitecheck-"+rep.Session.ID)
	files := Files{JSON: base + ".json", HTML: base + ".html"}

	if err := writeFile(files.JSON, rep, WriteJSON); err != nil {
		return Files{}, err
	}
	if err := writeFile(files.HTML, rep, WriteHTML); err != nil {
		return Files{}, err
	}
	return files, nil
}

func writeFile(path string, rep *models.SessionReport, render func(io.Writer, *models.SessionReport) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	if err := render(f, rep); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

const textTemplate = `Site check of {{ .Session.BaseURL }} (session {{ .Session.ID }})
Started {{ .Session.StartedAt | date "2006-01-02 15:04:05" }}{{ with .StopReason }}, stopped: {{ . }}{{ end }}
Pages: {{ .TotalPages }}  Passed: {{ .TotalPassed }}  Failed: {{ .TotalFailed }}
{{- range .Pages }}{{ if gt .Failed 0 }}

{{ .URL }} (depth {{ .Depth }})
{{- range .Checks }}{{ if not .Passed }}
  FAIL {{ .Name | printf "%-16s" }} {{ .Message | trunc 160 }}
{{- end }}{{ end }}
{{- end }}{{ end }}
`

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Site check: {{ .Session.BaseURL }}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; margin: 2rem; color: #1f2328; }
h1 { font-size: 1.4rem; }
.summary span { display: inline-block; margin-right: 1.5rem; }
.page { border: 1px solid #d0d7de; border-radius: 6px; margin: 1rem 0; padding: 0.5rem 1rem; }
.page h2 { font-size: 1rem; word-break: break-all; }
table { border-collapse: collapse; width: 100%; }
td { border-top: 1px solid #eaeef2; padding: 0.3rem 0.5rem; vertical-align: top; }
.pass { color: #1a7f37; }
.fail { color: #cf222e; font-weight: 600; }
.muted { color: #656d76; font-size: 0.85rem; }
</style>
</head>
<body>
<h1>Site check: {{ .Session.BaseURL }}</h1>
<p class="muted">Session {{ .Session.ID }} started {{ .Session.StartedAt | date "2006-01-02 15:04:05 MST" }}
{{- with .FinishedAt }}, finished {{ . | date "2006-01-02 15:04:05 MST" }}{{ end }}
{{- with .StopReason }} ({{ . }}){{ end }}. Depth limit {{ .Session.DepthLimit }}, page cap {{ .Session.MaxPages }}.</p>
<p class="summary">
<span>Pages: <strong>{{ .TotalPages }}</strong></span>
<span class="pass">Passed: {{ .TotalPassed }}</span>
<span class="{{ if gt .TotalFailed 0 }}fail{{ else }}pass{{ end }}">Failed: {{ .TotalFailed }}</span>
</p>
{{- range .Pages }}
<div class="page">
<h2>{{ .URL }}</h2>
<p class="muted">{{ .Title | default "(no title)" }} | depth {{ .Depth }} | {{ .Passed }} passed, {{ .Failed }} failed
{{- with .Screenshot }} | screenshot: {{ base . }}{{ end }}</p>
<table>
{{- range .Checks }}
<tr><td class="{{ ternary "pass" "fail" .Passed }}">{{ ternary "PASS" "FAIL" .Passed }}</td><td>{{ .Name }}</td><td>{{ .Message }}</td></tr>
{{- end }}
</table>
</div>
{{- end }}
</body>
</html>
`

package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.UTC().Format("Jan 2, 2006")
		},
		"updateView": func(report Report, update ReportUpdate, isNew bool) updateView {
			return updateView{ClientID: report.ClientID, Update: update, New: isNew, Interactive: report.Interactive}
		},
	}

	contents, err := templateFS.ReadFile("templates/report.html")
	if err != nil {
		reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}
	reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(string(contents)))
}

// updateView is the data of the "update" sub-template.
type updateView struct {
	ClientID    string
	Update      ReportUpdate
	New         bool
	Interactive bool
}

func RenderReportHTML(report Report) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const fallbackTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.Name}}</title></head>
<body>
  <h1>{{.Name}}</h1>
  <p>{{.Status}}</p>
  {{range .NewUpdates}}<h3>{{.Index}}. {{.Title}}</h3><p>{{.Description}}</p>{{end}}
  {{range .PastUpdates}}<h3>{{.Index}}. {{.Title}}</h3><p>{{.Description}}</p>{{end}}
</body>
</html>`

package api

import (
	"bytes"
	"html/template"

	"github.com/danielgtaylor/huma/v2"
)

var docsTemplate = template.Must(template.New("docs").Parse(`<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="referrer" content="same-origin" />
  <meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no" />
  <meta name="description" content="{{.Description}}" />
  <title>{{.Title}} {{.Version}}</title>
  <link href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
</head>
<body style="height: 100vh; margin: 0; position: relative;">
  <elements-api
    apiDescriptionUrl="{{.SpecURL}}"
    router="hash"
    layout="sidebar"
    tryItCredentialsPolicy="same-origin"
    darkMode
  />
</body>
</html>`))

// renderDocs builds the /docs page for the API described by cfg, pointing
// the viewer at the JSON document huma serves under cfg.OpenAPIPath.
func renderDocs(cfg huma.Config) ([]byte, error) {
	var buf bytes.Buffer
	err := docsTemplate.Execute(&buf, struct {
		Title, Version, Description, SpecURL string
	}{
		Title:       cfg.Info.Title,
		Version:     cfg.Info.Version,
		Description: cfg.Info.Description,
		SpecURL:     cfg.OpenAPIPath + ".json",
	})
	return buf.Bytes(), err
}

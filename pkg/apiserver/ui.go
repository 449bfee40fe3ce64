package apiserver

import (
	"embed"
	"html/template"
)

//go:embed templates/index.html
var templatesFS embed.FS

func pageTemplate() *template.Template {
	return template.Must(template.New("").ParseFS(templatesFS, "templates/index.html"))
}

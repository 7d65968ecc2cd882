package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Render executes templates/<name>.html.
func Render(name string, data any) (string, error) {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, name+".html", data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return body.String(), nil
}

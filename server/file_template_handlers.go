package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/rs/zerolog/log"
)

const (
	loginTemplate     = "login.html"
	dashboardTemplate = "dashboard.html"
)

//go:embed templates/*
var templateFiles embed.FS

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

// ParseTemplate parses a template from the embedded filesystem
func ParseTemplate(name string) (*template.Template, error) {
	content, err := fs.ReadFile(TemplateFilesFS(), name)
	if err != nil {
		return nil, err
	}
	return template.New(name).Parse(string(content))
}

func parseTemplates(names ...string) (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template, len(names))
	for _, name := range names {
		tmpl, err := ParseTemplate(name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		templates[name] = tmpl
	}
	return templates, nil
}

// render executes into a buffer first so a failing template never leaves a
// half written page behind.
func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.templates[name]
	if !ok {
		log.Error().Str("template", name).Msg("template not registered")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		log.Err(err).Str("template", name).Msg("Failed to render template")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeHTML)
	_, _ = buf.WriteTo(w)
}

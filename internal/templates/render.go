// Package templates handles HTML template rendering for the viewer page and
// its Datastar SSE fragments.
package templates

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"strings"
	"sync"
)

// Patterns are the files parsed from the template filesystem.
var Patterns = []string{"*.html", "fragments/*.html"}

// funcMap provides common template functions.
var funcMap = template.FuncMap{
	// num formats a legend value without trailing zeros
	"num": func(f float64) string {
		s := fmt.Sprintf("%.4g", f)
		if strings.Contains(s, "e") {
			return fmt.Sprintf("%g", f)
		}
		return s
	},
}

// Renderer manages HTML templates.
type Renderer struct {
	templates *template.Template
	mu        sync.RWMutex
}

func parse(fsys fs.FS) (*template.Template, error) {
	tmpl, err := template.New("").Funcs(funcMap).ParseFS(fsys, Patterns...)
	if err != nil {
		return nil, fmt.Errorf("templates: parse: %w", err)
	}
	return tmpl, nil
}

// New creates a renderer from the templates in fsys (the web/templates
// directory, embedded or on disk).
func New(fsys fs.FS) (*Renderer, error) {
	tmpl, err := parse(fsys)
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl}, nil
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToBuffer(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer renders a named template to a buffer.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.templates.ExecuteTemplate(buf, name, data)
}

// Has reports whether a template with the given name is defined.
func (r *Renderer) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.templates.Lookup(name) != nil
}

// Reload re-parses the templates (useful for dev hot-reload with --web-dir).
func (r *Renderer) Reload(fsys fs.FS) error {
	tmpl, err := parse(fsys)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.templates = tmpl
	r.mu.Unlock()

	return nil
}

// Package web serves a replica of the repository frontpage in English and
// German. It is the deterministic target the harness is tested against: the
// fake browser loads its documents directly and the live browser scenarios
// reach it over HTTP.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer manages HTML template rendering with caching and custom functions.
type Renderer struct {
	templates map[string]*template.Template
	funcMap   template.FuncMap
	mu        sync.RWMutex
}

// NewRenderer parses the embedded templates. base.html is combined with every
// other page template, each stored under its file name.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		templates: make(map[string]*template.Template),
		funcMap:   createFuncMap(),
	}

	if err := r.parseTemplates(); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return r, nil
}

// Render executes the named template with the given data and writes the result to w.
func (r *Renderer) Render(w http.ResponseWriter, templateName string, data interface{}) error {
	var buf bytes.Buffer
	if err := r.execute(&buf, templateName, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := w.Write(buf.Bytes())
	return err
}

// RenderString executes the named template into a string.
func (r *Renderer) RenderString(templateName string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := r.execute(&buf, templateName, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderError renders an error page with the given HTTP status code and message.
func (r *Renderer) RenderError(w http.ResponseWriter, code int, message string) {
	var buf bytes.Buffer
	data := map[string]interface{}{
		"Title":     http.StatusText(code),
		"Lang":      "en",
		"Error":     message,
		"ErrorCode": code,
	}
	if err := r.execute(&buf, "error.html", data); err != nil {
		http.Error(w, fmt.Sprintf("Error %d: %s", code, message), code)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}

func (r *Renderer) execute(buf *bytes.Buffer, templateName string, data interface{}) error {
	r.mu.RLock()
	tmpl, ok := r.templates[templateName]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("template %q not found", templateName)
	}
	if err := tmpl.ExecuteTemplate(buf, "base", data); err != nil {
		return fmt.Errorf("failed to execute template %q: %w", templateName, err)
	}
	return nil
}

func (r *Renderer) parseTemplates() error {
	baseContent, err := templateFS.ReadFile("templates/base.html")
	if err != nil {
		return fmt.Errorf("failed to read base template: %w", err)
	}

	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == "base.html" {
			continue
		}

		pageContent, err := templateFS.ReadFile("templates/" + name)
		if err != nil {
			return fmt.Errorf("failed to read template %s: %w", name, err)
		}

		// Parse the base template first, then the page overrides its blocks.
		tmpl, err := template.New("base").Funcs(r.funcMap).Parse(string(baseContent))
		if err != nil {
			return fmt.Errorf("failed to parse base template for %s: %w", name, err)
		}
		tmpl, err = tmpl.Parse(string(pageContent))
		if err != nil {
			return fmt.Errorf("failed to parse template %s: %w", name, err)
		}

		r.mu.Lock()
		r.templates[name] = tmpl
		r.mu.Unlock()
	}

	if len(r.templates) == 0 {
		return fmt.Errorf("no page templates found")
	}
	return nil
}

func createFuncMap() template.FuncMap {
	return template.FuncMap{
		"formatTime": formatTime,
		"isoDate":    isoDate,
		"truncate":   truncate,
		"markdown":   renderMarkdown,
	}
}

// formatTime formats a time.Time as a human-readable date string.
// Example: "Jan 2, 2006"
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 2, 2006")
}

func isoDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// truncate truncates a string to n characters, adding "..." if truncated.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

// renderMarkdown converts a record description to sanitized HTML.
func renderMarkdown(s string) template.HTML {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(s))

	opts := html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank}
	htmlContent := markdown.Render(doc, html.NewRenderer(opts))

	sanitized := bluemonday.UGCPolicy().SanitizeBytes(htmlContent)
	return template.HTML(sanitized)
}

// Package render turns report data into channel text
package render

import (
	"bytes"
	"embed"
	htemplate "html/template"
	"io/fs"
	"path"
	"strings"
	"sync"
	ttemplate "text/template"
	"time"

	"signalroom/internal/adapters/notify"
	perr "signalroom/internal/platform/errors"
	"signalroom/internal/services/reports/domain"
)

//go:embed templates/*
var embedded embed.FS

// Renderer compiles templates on first use and keeps them. Files ending in
// .html use html/template; everything else is text/template
type Renderer struct {
	files fs.FS
	now   func() time.Time

	mu    sync.Mutex
	cache map[string]func(*bytes.Buffer, any) error
}

// Option configures a Renderer
type Option func(*Renderer)

// WithFS replaces the embedded templates
func WithFS(f fs.FS) Option { return func(r *Renderer) { r.files = f } }

// WithClock sets the clock behind the now func
func WithClock(now func() time.Time) Option { return func(r *Renderer) { r.now = now } }

// New builds a renderer over the embedded templates
func New(opts ...Option) *Renderer {
	sub, _ := fs.Sub(embedded, "templates")
	r := &Renderer{files: sub, now: time.Now, cache: map[string]func(*bytes.Buffer, any) error{}}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Render executes the report's template for channel over data
func (r *Renderer) Render(rep domain.Report, ch notify.Channel, data map[string]any) (string, error) {
	name, err := rep.Template(ch)
	if err != nil {
		return "", err
	}
	exec, err := r.compiled(name)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := exec(&buf, data); err != nil {
		return "", perr.WithField(perr.Wrapf(err, perr.ErrorCodeValidation, "render %s", name), "data")
	}
	return strings.TrimSpace(buf.String()), nil
}

// Cached reports how many templates are compiled
func (r *Renderer) Cached() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}

func (r *Renderer) compiled(name string) (func(*bytes.Buffer, any) error, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if exec, ok := r.cache[name]; ok {
		return exec, nil
	}
	src, err := fs.ReadFile(r.files, name)
	if err != nil {
		return nil, perr.WithField(perr.NotFoundf("template %s: %v", name, err), "template")
	}
	funcs := Funcs(r.now)

	var exec func(*bytes.Buffer, any) error
	if path.Ext(name) == ".html" {
		t, err := htemplate.New(name).Funcs(funcs).Parse(string(src))
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeConfig, "parse template %s", name)
		}
		exec = func(b *bytes.Buffer, data any) error { return t.Execute(b, data) }
	} else {
		t, err := ttemplate.New(name).Funcs(funcs).Parse(string(src))
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeConfig, "parse template %s", name)
		}
		exec = func(b *bytes.Buffer, data any) error { return t.Execute(b, data) }
	}
	r.cache[name] = exec
	return exec, nil
}

// internal/view/render.go
//
// Central view engine: template lookup, override chain, func-map injection,
// and an LRU of parsed *template.Template* sets.
//
// Public helpers
// --------------
//   - Register       – a component hands over its embedded templates.
//   - Render         – write rendered HTML to an http.ResponseWriter.
//
// Lookup precedence (first hit wins):
//   1. <override dir>/components/<comp>/templates/<name>.html, in the order
//      of forms.override_dirs, last directory first.
//   2. The component's embedded templates/<name>.html.
//
// All templates in the same directory are parsed as one set so sub-templates
// ({{ template "field" . }}) work out-of-the-box.
//
// execName() chooses the template to execute:
//   – If the set contains "<name>.html", we run that (file has no define).
//   – Else we fall back to "<name>" (root template defined via {{ define }}).
//
// Style
// -----
// • Two spaces after periods.

package view

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/yanizio/openaccount/internal/cache"
)

// CachePolicy hints how the caller wants this template cached.
type CachePolicy int

const (
	CacheDefault CachePolicy = iota // keep the parsed set in the LRU
	CacheSkip                       // re-parse on every render (development)
)

// Engine resolves and renders component templates.  Safe for concurrent use.
type Engine struct {
	overrides []string
	policy    CachePolicy
	sets      *cache.LRU[string, *template.Template]

	mu       sync.RWMutex
	defaults map[string]fs.FS // component → embedded FS rooted above templates/
}

// New returns an Engine.  overrideDirs follow the forms.override_dirs
// convention; later directories win.
func New(overrideDirs []string, policy CachePolicy) *Engine {
	return &Engine{
		overrides: overrideDirs,
		policy:    policy,
		sets:      cache.New[string, *template.Template](256),
		defaults:  make(map[string]fs.FS),
	}
}

// Register installs comp's embedded templates.  fsys must contain
// templates/*.html.
func (e *Engine) Register(comp string, fsys fs.FS) {
	e.mu.Lock()
	e.defaults[comp] = fsys
	e.mu.Unlock()
	e.sets.Purge()
}

// Render executes the template set for comp/name and streams it to w with
// a text/html content type.  The page is rendered into a buffer first so a
// template error never leaves a half-written response.
func (e *Engine) Render(w http.ResponseWriter, status int, comp, name string, data any) error {
	t, err := e.load(comp, name)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, execName(t, name), data); err != nil {
		return fmt.Errorf("render %s/%s: %w", comp, name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err = buf.WriteTo(w)
	return err
}

//
// internal: load
//

// load finds and (if necessary) parses the template set for comp/name.
func (e *Engine) load(comp, name string) (*template.Template, error) {
	key := comp + "::" + name
	if e.policy != CacheSkip {
		if t, ok := e.sets.Get(key); ok {
			return t, nil
		}
	}

	t, err := e.parse(comp, name)
	if err != nil {
		return nil, err
	}
	if e.policy != CacheSkip {
		e.sets.Add(key, t)
	}
	return t, nil
}

func (e *Engine) parse(comp, name string) (*template.Template, error) {
	for i := len(e.overrides) - 1; i >= 0; i-- {
		dir := filepath.Join(e.overrides[i], "components", comp, "templates")
		if _, err := os.Stat(filepath.Join(dir, name+".html")); err == nil {
			return template.New(name).Funcs(funcMap()).ParseGlob(filepath.Join(dir, "*.html"))
		}
	}

	e.mu.RLock()
	fsys, ok := e.defaults[comp]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("view: component %q has no templates: %w", comp, fs.ErrNotExist)
	}
	if _, err := fs.Stat(fsys, "templates/"+name+".html"); err != nil {
		return nil, fmt.Errorf("view: %s/%s: %w", comp, name, err)
	}
	return template.New(name).Funcs(funcMap()).ParseFS(fsys, "templates/*.html")
}

//
// func-map builders
//

func funcMap() template.FuncMap {
	return template.FuncMap{
		"dict": dict,
	}
}

//
// helpers
//

// execName picks the template name to execute.
//
// Priority:
//  1. If the set has "<name>.html" (file-based template), run that.
//  2. Otherwise, fall back to "<name>" (root template defined in code).
func execName(t *template.Template, name string) string {
	if tmpl := t.Lookup(name + ".html"); tmpl != nil {
		return name + ".html"
	}
	return name
}

// dict builds a map in templates: {{ dict "k" 1 "k2" "v" }}.
func dict(kv ...any) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		m[key] = kv[i+1]
	}
	return m
}

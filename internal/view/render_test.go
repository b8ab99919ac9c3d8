package view

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
)

func embedded() fstest.MapFS {
	return fstest.MapFS{
		"templates/page.html": {Data: []byte(`<h1>{{ .Title }}</h1>{{ template "note" dict "Text" .Note }}`)},
		"templates/note.html": {Data: []byte(`{{ define "note" }}<p>{{ .Text }}</p>{{ end }}`)},
	}
}

func TestRender_Embedded(t *testing.T) {
	e := New(nil, CacheDefault)
	e.Register("account", embedded())

	rec := httptest.NewRecorder()
	if err := e.Render(rec, http.StatusUnprocessableEntity, "account", "page", map[string]any{
		"Title": "Open", "Note": "<b>hi</b>",
	}); err != nil {
		t.Fatalf("Render: %v", err)
	}

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type = %q", ct)
	}
	if body := rec.Body.String(); body != "<h1>Open</h1><p>&lt;b&gt;hi&lt;/b&gt;</p>" {
		t.Fatalf("body = %q", body)
	}
}

func TestRender_OverrideWins(t *testing.T) {
	dir := t.TempDir()
	tplDir := filepath.Join(dir, "components", "account", "templates")
	if err := os.MkdirAll(tplDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tplDir, "page.html"), []byte(`custom {{ .Title }}`), 0o644); err != nil {
		t.Fatal(err)
	}

	e := New([]string{filepath.Join(dir, "absent"), dir}, CacheSkip)
	e.Register("account", embedded())

	rec := httptest.NewRecorder()
	if err := e.Render(rec, http.StatusOK, "account", "page", map[string]any{"Title": "Open"}); err != nil {
		t.Fatal(err)
	}
	if rec.Body.String() != "custom Open" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestRender_Errors(t *testing.T) {
	e := New(nil, CacheDefault)
	e.Register("account", fstest.MapFS{
		"templates/broken.html": {Data: []byte(`{{ .Missing.Field }}`)},
	})

	if err := e.Render(httptest.NewRecorder(), http.StatusOK, "nope", "page", nil); err == nil {
		t.Fatal("unknown component accepted")
	}
	if err := e.Render(httptest.NewRecorder(), http.StatusOK, "account", "page", nil); err == nil {
		t.Fatal("unknown template accepted")
	}

	rec := httptest.NewRecorder()
	if err := e.Render(rec, http.StatusOK, "account", "broken", map[string]any{"Missing": 3}); err == nil {
		t.Fatal("execution error swallowed")
	}
	if rec.Body.Len() != 0 {
		t.Fatal("partial output written on error")
	}
}

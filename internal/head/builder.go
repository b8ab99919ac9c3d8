// internal/head/builder.go
//
// The Builder collects everything that should appear inside a page’s
// <head> element.  It is scoped to a single render call: handlers push tags
// into it, then the page template emits {{ .Head.HTML }}.
//
// Features
// --------
//   - SetTitle        – single <title> tag (last call wins).
//   - Meta, HTTPEquiv – <meta> tags, deduplicated by name (last call wins).
//   - Link            – <link> tags, deduplicated by rel+href.
//   - HTML            – escapes and concatenates everything as template.HTML.
package head

import (
	"html/template"
	"strings"
)

// Builder is not safe for concurrent use; build one per render.
type Builder struct {
	title string

	metas []tag
	links []tag
}

// tag is an attribute pair: key is name / http-equiv / rel, val is
// content / href.
type tag struct {
	attr, key, val string
}

// New returns a builder preloaded with the charset and viewport tags every
// page needs.
func New() *Builder {
	b := &Builder{}
	b.Meta("viewport", "width=device-width, initial-scale=1")
	return b
}

// SetTitle overrides the page <title>.  The last caller wins.
func (b *Builder) SetTitle(t string) { b.title = t }

// Meta sets <meta name="…" content="…">.
func (b *Builder) Meta(name, content string) { b.metas = upsert(b.metas, tag{"name", name, content}) }

// HTTPEquiv sets <meta http-equiv="…" content="…">, e.g. refresh.
func (b *Builder) HTTPEquiv(name, content string) {
	b.metas = upsert(b.metas, tag{"http-equiv", name, content})
}

// Link adds <link rel="…" href="…">.  Exact duplicates are dropped.
func (b *Builder) Link(rel, href string) {
	for _, l := range b.links {
		if l.key == rel && l.val == href {
			return
		}
	}
	b.links = append(b.links, tag{"rel", rel, href})
}

func upsert(tags []tag, t tag) []tag {
	for i := range tags {
		if tags[i].attr == t.attr && tags[i].key == t.key {
			tags[i].val = t.val
			return tags
		}
	}
	return append(tags, t)
}

// HTML renders the head contents in a stable order: charset, title, metas,
// links.
func (b *Builder) HTML() template.HTML {
	var sb strings.Builder
	sb.WriteString(`<meta charset="utf-8">`)
	if b.title != "" {
		sb.WriteString("<title>" + template.HTMLEscapeString(b.title) + "</title>")
	}
	for _, m := range b.metas {
		sb.WriteString(`<meta ` + m.attr + `="` + template.HTMLEscapeString(m.key) +
			`" content="` + template.HTMLEscapeString(m.val) + `">`)
	}
	for _, l := range b.links {
		sb.WriteString(`<link rel="` + template.HTMLEscapeString(l.key) +
			`" href="` + template.HTMLEscapeString(l.val) + `">`)
	}
	return template.HTML(sb.String())
}

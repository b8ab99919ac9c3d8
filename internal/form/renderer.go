// internal/form/renderer.go
//
// Forms subsystem: HTML renderer.
//
// Context
//   Given a parsed FormDef (from definition.go) the renderer converts the
//   definition into safe, accessible HTML markup.  It applies HTML5
//   validation attributes, injects a CSRF token hidden input (its signed
//   timestamp is the render time), honours pre-fill data (the session
//   draft), prints server-side error messages inline, and emits the submit
//   button.
//
// Workflow
//   •  RenderForm looks up the FormDef by ID and writes each field via
//      writeField.
//   •  Required, minlength, maxlength, pattern, min, max, step, and
//      placeholder attributes are attached where relevant.  Select options
//      come from the YAML Options slice.
//   •  Errors[""] is a form-level message printed above the fields; every
//      other key is printed in the matching field's error span.
//   •  While Busy the submit button is disabled and shows the busy label.
//   •  The caller receives template.HTML so the surrounding template does
//      not double-escape the markup.
//
// Style
//   Output HTML is plain, with no framework classes, so pages style it via
//   element selectors or class hooks.  Each input gets id="fld-{name}" and is
//   wrapped in <div class="form-field">.
//
//------------------------------------------------------------------------------

package form

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"strconv"
	"strings"
	"time"
)

// RenderOptions bundles optional parameters influencing HTML output.
type RenderOptions struct {
	// Prefill provides initial field values keyed by field name.
	Prefill map[string]string
	// Errors maps field name → message.  The empty key is form-level.
	Errors map[string]string
	// Busy disables the submit button and swaps in the busy label.
	Busy bool
	// Max overrides a field's YAML max attribute for this render, e.g. a
	// date ceiling computed from today.
	Max map[string]string
}

// RenderForm returns the HTML markup for the specified form ID.
func RenderForm(formID string, opts RenderOptions) (template.HTML, error) {
	return renderAt(formID, opts, time.Now())
}

func renderAt(formID string, opts RenderOptions, now time.Time) (template.HTML, error) {
	fd, ok := GetFormDef(formID)
	if !ok {
		return "", fmt.Errorf("RenderForm: unknown form %q", formID)
	}

	var buf bytes.Buffer
	buf.WriteString(`<div class="app-form">` + "\n")

	if msg := opts.Errors[""]; msg != "" {
		buf.WriteString(`<p class="form-error" role="alert">` + html.EscapeString(msg) + `</p>` + "\n")
	}

	for _, f := range fd.Fields {
		if err := writeField(&buf, &f, opts); err != nil {
			return "", err
		}
	}

	// CSRF token; its signed timestamp is the render time.
	token, err := generateAt(now)
	if err != nil {
		return "", fmt.Errorf("RenderForm: csrf token: %w", err)
	}
	buf.WriteString(`<input type="hidden" name="` + CSRFField + `" value="` + token + `">` + "\n")

	writeSubmit(&buf, fd.Submit, opts.Busy)

	buf.WriteString(`</div>`)
	return template.HTML(buf.String()), nil
}

// writeField emits HTML for an individual field into buf, applying prefill,
// validation attributes, and any error message.
func writeField(buf *bytes.Buffer, f *FieldDef, opts RenderOptions) error {
	val := opts.Prefill[f.Name]
	errMsg := opts.Errors[f.Name]
	name := html.EscapeString(f.Name)

	// Container
	buf.WriteString(`<div class="form-field">` + "\n")

	// Shared attributes
	shared := `id="fld-` + name + `" name="` + name + `"`
	if f.Required {
		shared += ` required`
	}
	if errMsg != "" {
		shared += ` aria-invalid="true" aria-describedby="err-` + name + `"`
	}

	// Label first (for accessibility), except checkboxes which wrap their label.
	if f.Type != "checkbox" {
		buf.WriteString(`<label for="fld-` + name + `">` + html.EscapeString(f.Label) + `</label>` + "\n")
	}

	switch f.Type {
	case "text", "email", "tel", "number", "date":
		buf.WriteString(`<input ` + shared + ` type="` + f.Type + `"`)
		writeAttr(buf, "placeholder", f.Placeholder)
		writeIntAttr(buf, "minlength", f.MinLength)
		writeIntAttr(buf, "maxlength", f.MaxLength)
		writeAttr(buf, "pattern", f.Pattern)
		writeAttr(buf, "min", f.Min)
		maxVal := f.Max
		if m, ok := opts.Max[f.Name]; ok {
			maxVal = m
		}
		writeAttr(buf, "max", maxVal)
		writeAttr(buf, "step", f.Step)
		writeAttr(buf, "value", val)
		buf.WriteString(`>` + "\n")

	case "textarea":
		buf.WriteString(`<textarea ` + shared)
		writeIntAttr(buf, "minlength", f.MinLength)
		writeIntAttr(buf, "maxlength", f.MaxLength)
		writeAttr(buf, "placeholder", f.Placeholder)
		buf.WriteString(`>` + html.EscapeString(val) + `</textarea>` + "\n")

	case "select":
		buf.WriteString(`<select ` + shared + `>` + "\n")
		// Empty first option so "no selection" is representable.
		placeholder := f.Placeholder
		if placeholder == "" {
			placeholder = "Select…"
		}
		buf.WriteString(`<option value="">` + html.EscapeString(placeholder) + `</option>` + "\n")
		for _, opt := range f.Options {
			sel := ""
			if val == opt.Value {
				sel = ` selected`
			}
			buf.WriteString(`<option value="` + html.EscapeString(opt.Value) + `"` + sel + `>` + html.EscapeString(opt.Label) + `</option>` + "\n")
		}
		buf.WriteString(`</select>` + "\n")

	case "checkbox":
		checked := ""
		if val != "" && strings.ToLower(val) != "false" {
			checked = ` checked`
		}
		buf.WriteString(`<label><input ` + shared + ` type="checkbox" value="true"` + checked + `> ` + html.EscapeString(f.Label) + `</label>` + "\n")

	default:
		return fmt.Errorf("writeField: unsupported field type %q in form field %s", f.Type, f.Name)
	}

	// Error span, empty unless the server re-renders with errors.
	buf.WriteString(`<span class="error" id="err-` + name + `" aria-live="polite">` + html.EscapeString(errMsg) + `</span>` + "\n")

	buf.WriteString(`</div>` + "\n")
	return nil
}

// writeSubmit emits the submit button; disabled with the busy label while a
// submission is in flight.
func writeSubmit(buf *bytes.Buffer, s SubmitDef, busy bool) {
	if busy {
		buf.WriteString(`<button type="submit" disabled aria-busy="true">` + html.EscapeString(s.BusyLabel) + `</button>` + "\n")
		return
	}
	buf.WriteString(`<button type="submit">` + html.EscapeString(s.Label) + `</button>` + "\n")
}

func writeAttr(buf *bytes.Buffer, name, val string) {
	if val != "" {
		buf.WriteString(` ` + name + `="` + html.EscapeString(val) + `"`)
	}
}

func writeIntAttr(buf *bytes.Buffer, name string, n int) {
	if n > 0 {
		buf.WriteString(` ` + name + `="` + strconv.Itoa(n) + `"`)
	}
}

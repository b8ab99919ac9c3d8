// internal/form/definition.go
//
// Forms subsystem: YAML definition loader.
//
// Context
//   Each HTML form is declared in a YAML file.  The file defines the form’s
//   identifier, title, fields, submit button labels, and the notifiers that
//   run after a successful submission.  Components embed their default
//   definitions and call Register at Init; operators may drop replacement
//   YAMLs under “<dir>/components/<comp>/forms/” and list <dir> in
//   forms.override_dirs.  Every consumer (renderer, guard, notifier chain)
//   fetches definitions from this registry by ID, so there is a single source
//   of truth.
//
// Workflow
//   •  Structs mirror the YAML schema: FormDef → FieldDef / OptionDef /
//      SubmitDef / ActionDef.
//   •  ParseFormDef decodes one YAML document and validates structural rules.
//      LoadFormDef does the same for a file on disk.
//   •  RegisterForms walks override directories in order; later directories
//      win over earlier ones and over embedded defaults.
//   •  GetFormDef offers safe, read-only access to a parsed form by ID.
//
// Style
//   Full sentences, two spaces after periods.  Helper comments use short noun
//   phrases.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------
// Data structures
// -----------------------------------------------------------------------------

// FormDef represents one form definition loaded from YAML.
//
// The form is uniquely identified by ID, namespaced by component, e.g.
// “account/open”.  Forms are flat: a definition that declares `steps` is
// rejected.  Actions select the notifiers run after a successful submit.
type FormDef struct {
	ID      string      `yaml:"id"`      // Component-scoped identifier.
	Title   string      `yaml:"title"`   // Display title, optional.
	Fields  []FieldDef  `yaml:"fields"`  // Rendered in order.
	Steps   []yaml.Node `yaml:"steps"`   // Unsupported; presence is an error.
	Submit  SubmitDef   `yaml:"submit"`  // Button labels.
	Actions []ActionDef `yaml:"actions"` // Post-submit notifiers.  May be empty.
}

// FieldDef describes a single input control on the form.  The constraint
// attributes are client-side hints; authoritative validation happens in the
// domain validator.
type FieldDef struct {
	Name        string      `yaml:"name"`        // Submission key.  Required.
	Label       string      `yaml:"label"`       // Human-readable label.  Required.
	Type        string      `yaml:"type"`        // text, email, tel, number, date, select, checkbox, textarea.
	Placeholder string      `yaml:"placeholder"` // Optional placeholder text.
	Required    bool        `yaml:"required"`    // Adds the HTML required attribute.
	MinLength   int         `yaml:"minlength"`   // ≥ 0, 0 means unset.
	MaxLength   int         `yaml:"maxlength"`   // ≥ 0, 0 means unset.
	Pattern     string      `yaml:"pattern"`     // Regex pattern string.
	Min         string      `yaml:"min"`         // number/date lower bound.
	Max         string      `yaml:"max"`         // number/date upper bound.
	Step        string      `yaml:"step"`        // number step, e.g. "0.01".
	Options     []OptionDef `yaml:"options"`     // For select.
	ErrorMsg    string      `yaml:"error"`       // Fallback error message, optional.
}

// OptionDef is one select option.  In YAML an option may be a plain string
// (value and label identical) or a {value, label} mapping.
type OptionDef struct {
	Value string `yaml:"value"`
	Label string `yaml:"label"`
}

// UnmarshalYAML accepts both option spellings.
func (o *OptionDef) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		o.Value, o.Label = n.Value, n.Value
		return nil
	}
	type plain OptionDef
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	if p.Label == "" {
		p.Label = p.Value
	}
	*o = OptionDef(p)
	return nil
}

// SubmitDef holds the submit button labels.  BusyLabel is shown, with the
// button disabled, while a submission is in flight.
type SubmitDef struct {
	Label     string `yaml:"label"`
	BusyLabel string `yaml:"busy_label"`
}

// ActionDef configures a notifier executed after a successful submit.
//
// Parameters are loosely typed so new kinds can be introduced without schema
// churn.  Unknown keys are tolerated here; notifier constructors validate.
type ActionDef struct {
	Type   string         `yaml:"type"`    // log, kafka.
	Params map[string]any `yaml:",inline"` // Provider-specific fields inline.
}

// knownActions lists the action types the notifier chain understands.
var knownActions = map[string]bool{
	"log":   true,
	"kafka": true,
}

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

// registry maps compositeID (“comp/form”) → *FormDef.  Guarded by mutex.
var (
	registryMu sync.RWMutex
	registry   = make(map[string]*FormDef)
)

// GetFormDef returns a parsed FormDef by composite ID (“component/form”).
// The boolean is false when the ID is unknown.
func GetFormDef(id string) (*FormDef, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fd, ok := registry[id]
	return fd, ok
}

// Register inserts or replaces fd in the registry.  fd must come from
// ParseFormDef or LoadFormDef.
func Register(fd *FormDef) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[fd.ID] = fd
}

// -----------------------------------------------------------------------------
// Loader API
// -----------------------------------------------------------------------------

// ParseFormDef decodes one YAML document, validates its structure, and
// returns a populated FormDef.  src names the document in error messages.
// It NEVER mutates the global registry.
func ParseFormDef(raw []byte, src string) (*FormDef, error) {
	var fd FormDef
	if err := yaml.Unmarshal(raw, &fd); err != nil {
		return nil, fmt.Errorf("parse YAML %s: %w", src, err)
	}
	if err := validateFormDef(&fd, src); err != nil {
		return nil, err
	}
	return &fd, nil
}

// LoadFormDef reads and parses one YAML file.
func LoadFormDef(path string) (*FormDef, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form file %s: %w", path, err)
	}
	return ParseFormDef(raw, path)
}

// RegisterForms walks each base directory and loads every “*.yaml” under
// “components/*/forms/”.  Directories are applied in order, so later ones
// override earlier ones.  Missing directories are skipped.
//
// Example:
//
//	err := form.RegisterForms([]string{
//	    "/srv/openaccount/overrides",
//	})
func RegisterForms(baseDirs []string) error {
	for _, base := range baseDirs {
		formsRoot := filepath.Join(base, "components")
		err := filepath.WalkDir(formsRoot, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), ".yaml") {
				return nil // skip non-YAML
			}
			if filepath.Base(filepath.Dir(path)) != "forms" {
				return nil // only <comp>/forms/*.yaml
			}

			fd, err := LoadFormDef(path)
			if err != nil {
				return err // fail fast so issues surface loudly.
			}
			Register(fd)
			zap.S().Debugw("form definition registered", "form", fd.ID, "file", path)
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err // propagate IO or parse errors.
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Validation helpers
// -----------------------------------------------------------------------------

// validateFormDef enforces structural rules that cannot be expressed via YAML
// tags alone.  It returns a descriptive error referencing the offending file.
func validateFormDef(fd *FormDef, src string) error {
	if fd.ID == "" {
		return fmt.Errorf("form definition %s: missing required 'id'", src)
	}
	if len(fd.Steps) > 0 {
		return fmt.Errorf("form definition %s: multi-step forms are not supported", src)
	}
	if len(fd.Fields) == 0 {
		return fmt.Errorf("form definition %s: must have 'fields'", src)
	}

	fieldNames := make(map[string]struct{}, len(fd.Fields))
	for i := range fd.Fields {
		if err := validateField(&fd.Fields[i], src); err != nil {
			return err
		}
		if _, dup := fieldNames[fd.Fields[i].Name]; dup {
			return fmt.Errorf("form %s: duplicate field name '%s'", src, fd.Fields[i].Name)
		}
		fieldNames[fd.Fields[i].Name] = struct{}{}
	}

	if fd.Submit.Label == "" {
		fd.Submit.Label = "Submit"
	}
	if fd.Submit.BusyLabel == "" {
		fd.Submit.BusyLabel = fd.Submit.Label
	}

	// Unknown action types are allowed for forward compatibility but warn so
	// developers notice.
	for _, ac := range fd.Actions {
		if !knownActions[ac.Type] {
			zap.S().Warnw("unrecognized form action type", "form", fd.ID, "action", ac.Type)
		}
	}
	return nil
}

// supportedTypes are the controls the renderer knows how to emit.
var supportedTypes = map[string]bool{
	"text": true, "email": true, "tel": true, "number": true,
	"date": true, "select": true, "checkbox": true, "textarea": true,
}

// validateField confirms that essential attributes are present and sane.
func validateField(f *FieldDef, src string) error {
	if f.Name == "" {
		return fmt.Errorf("form %s: field missing 'name'", src)
	}
	if f.Label == "" {
		return fmt.Errorf("form %s: field '%s' missing 'label'", src, f.Name)
	}
	if !supportedTypes[f.Type] {
		return fmt.Errorf("form %s: field '%s' has unsupported type %q", src, f.Name, f.Type)
	}
	if f.Type == "select" && len(f.Options) == 0 {
		return fmt.Errorf("form %s: select field '%s' has no options", src, f.Name)
	}

	if f.Pattern != "" {
		if _, err := regexp.Compile(f.Pattern); err != nil {
			return fmt.Errorf("form %s: field '%s' invalid regex pattern: %v", src, f.Name, err)
		}
	}

	if f.MinLength < 0 || f.MaxLength < 0 {
		return fmt.Errorf("form %s: field '%s' minlength/maxlength cannot be negative", src, f.Name)
	}
	if f.MaxLength > 0 && f.MinLength > f.MaxLength {
		return fmt.Errorf("form %s: field '%s' minlength greater than maxlength", src, f.Name)
	}
	return nil
}

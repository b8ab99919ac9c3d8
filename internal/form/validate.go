// internal/form/validate.go
//
// Forms subsystem: form-level submission guard.
//
// Context
//   The renderer outputs HTML containing a CSRF token whose signed payload
//   carries the render time.  When the browser posts, the Guard verifies the
//   token before any field is looked at: a forged post or one filled by a
//   script in under MinFill is refused, as is a page left open longer than
//   MaxFill.  Field rules belong
//   to the domain validator, which runs only after the guard passes.
//
// Workflow
//   •  Guard.Check verifies csrf_token and measures fill time from its
//      issue timestamp.
//   •  Failures are returned as []ErrorField with an empty Name (form-level)
//      so templates render them above the fields.
//   •  Callers wrap the []ErrorField in validationError (see submit.go) and
//      treat it as a user error, not a 500.
//
//------------------------------------------------------------------------------

package form

import (
	"net/url"
	"time"

	"github.com/yanizio/openaccount/internal/metrics"
)

// CSRFField is the hidden input written by the renderer.
const CSRFField = "csrf_token"

// -----------------------------------------------------------------------------
// Error types
// -----------------------------------------------------------------------------

// ErrorField describes a single validation failure so the template can render
// a field-level message.  An empty Name marks a form-level message.
type ErrorField struct {
	Name    string // field name
	Message string // user-facing message
}

// validationError wraps []ErrorField and satisfies the error interface.
//
// It allows callers to distinguish user input errors from system failures via
// errors.As / IsValidationError.
type validationError struct{ Fields []ErrorField }

func (ve validationError) Error() string { return "form validation failed" }

// -----------------------------------------------------------------------------
// Guard
// -----------------------------------------------------------------------------

// Guard checks form-level integrity.  Zero MinFill or MaxFill disables the
// respective bound.  Now defaults to time.Now.
type Guard struct {
	MinFill time.Duration
	MaxFill time.Duration
	Now     func() time.Time
}

// Check returns nil when posted carries a valid CSRF token issued inside
// the fill window.
func (g Guard) Check(posted url.Values) []ErrorField {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	at := now()

	issued, ok := tokenIssued(posted.Get(CSRFField), at)
	if !ok {
		metrics.FormGuardRejectsTotal.WithLabelValues("csrf").Inc()
		return []ErrorField{{"", "Security token invalid.  Please refresh and try again."}}
	}
	if msg := g.checkTiming(at.Sub(issued)); msg != "" {
		metrics.FormGuardRejectsTotal.WithLabelValues("timing").Inc()
		return []ErrorField{{"", msg}}
	}
	return nil
}

// checkTiming ensures the form was not submitted suspiciously fast or too
// late.  Returns empty string on success, user-visible message on failure.
func (g Guard) checkTiming(elapsed time.Duration) string {
	switch {
	case g.MinFill > 0 && elapsed < g.MinFill:
		return "Form submitted too quickly.  Please enter the fields manually."
	case g.MaxFill > 0 && elapsed > g.MaxFill:
		return "Form expired.  Please reload and submit again."
	default:
		return ""
	}
}

// internal/form/submit.go
//
// Forms subsystem: consolidated Submit helper.
//
// Context
//   Most handlers want one call that parses the POST body, runs the guard,
//   and returns the posted values or a validation error.  HandleSubmit
//   provides that convenience so component code stays terse.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"net/http"
	"net/url"
)

// maxBody caps urlencoded form bodies.
const maxBody = 64 << 10

// HandleSubmit parses r and runs g.  On guard failure it returns a
// validationError (check with IsValidationError).  Body parse failures are
// returned as-is.
func HandleSubmit(w http.ResponseWriter, r *http.Request, g Guard) (url.Values, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseForm(); err != nil {
		return nil, err
	}

	if errs := g.Check(r.PostForm); len(errs) > 0 {
		return nil, validationError{Fields: errs}
	}
	return r.PostForm, nil
}

// IsValidationError reports whether err came from a failed guard check.
func IsValidationError(err error) bool {
	var ve validationError
	return errors.As(err, &ve)
}

// Errors returns the field errors carried by err, or nil.
func Errors(err error) []ErrorField {
	var ve validationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return nil
}

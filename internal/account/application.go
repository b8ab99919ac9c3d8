// internal/account/application.go
//
// Account-opening form: data model.
//
// Context
//   A Candidate is what the browser (or a JSON client) sends: every field is
//   raw text except the terms checkbox.  The Validator turns a Candidate into
//   an Application, the normalized record that notifiers and templates can
//   trust, or into FieldErrors keyed by wire name.
//
//   Wire names are the JSON tags below.  HTML forms, JSON bodies, error maps,
//   and YAML form definitions all use the same names.
//
//------------------------------------------------------------------------------

package account

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Wire names, in display order.
const (
	FieldFullName       = "fullName"
	FieldEmail          = "email"
	FieldPhoneNumber    = "phoneNumber"
	FieldDateOfBirth    = "dateOfBirth"
	FieldAccountType    = "accountType"
	FieldInitialDeposit = "initialDeposit"
	FieldCurrency       = "currency"
	FieldStreetAddress  = "streetAddress"
	FieldCity           = "city"
	FieldZipCode        = "zipCode"
	FieldTermsAccepted  = "termsAccepted"
)

// DateLayout is the format of dateOfBirth on the wire (HTML date input).
const DateLayout = "2006-01-02"

// ErrUnknownField is returned by Candidate.Set for names outside the schema.
var ErrUnknownField = errors.New("unknown field")

var fieldNames = []string{
	FieldFullName,
	FieldEmail,
	FieldPhoneNumber,
	FieldDateOfBirth,
	FieldAccountType,
	FieldInitialDeposit,
	FieldCurrency,
	FieldStreetAddress,
	FieldCity,
	FieldZipCode,
	FieldTermsAccepted,
}

// FieldNames returns every wire name in display order.
func FieldNames() []string {
	out := make([]string, len(fieldNames))
	copy(out, fieldNames)
	return out
}

// IsField reports whether name belongs to the schema.
func IsField(name string) bool {
	for _, n := range fieldNames {
		if n == name {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Enums
// -----------------------------------------------------------------------------

// AccountType is the product being opened.
type AccountType string

const (
	Savings  AccountType = "Savings"
	Checking AccountType = "Checking"
)

// Currency is the ISO code the account is denominated in.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	LKR Currency = "LKR"
)

// -----------------------------------------------------------------------------
// Candidate
// -----------------------------------------------------------------------------

// Amount holds the raw initialDeposit input.  JSON clients may send either a
// number or a string; both decode to the literal text so the validator sees
// exactly what was typed.
type Amount string

// UnmarshalJSON accepts 150, 150.25, "150", and null.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null":
		*a = ""
		return nil
	case strings.HasPrefix(s, `"`):
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*a = Amount(str)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("initialDeposit: %w", err)
		}
		*a = Amount(n.String())
		return nil
	}
}

// Candidate is the unvalidated form state.  The zero value is the empty form
// shown on first load and after a successful submission.
type Candidate struct {
	FullName       string `json:"fullName"       validate:"min=3"`
	Email          string `json:"email"          validate:"required,email"`
	PhoneNumber    string `json:"phoneNumber"    validate:"digits=10"`
	DateOfBirth    string `json:"dateOfBirth"    validate:"required,datetime=2006-01-02,adult"`
	AccountType    string `json:"accountType"    validate:"required,oneof=Savings Checking"`
	InitialDeposit Amount `json:"initialDeposit" validate:"required,decimal,decimal_min=100"`
	Currency       string `json:"currency"       validate:"required,oneof=USD EUR LKR"`
	StreetAddress  string `json:"streetAddress"  validate:"required"`
	City           string `json:"city"           validate:"required"`
	ZipCode        string `json:"zipCode"        validate:"digits=5"`
	TermsAccepted  bool   `json:"termsAccepted"  validate:"eq=true"`
}

// Set mutates one field by wire name.  The terms checkbox treats "on",
// "true", "1", and "yes" as checked; anything else clears it.
func (c *Candidate) Set(name, value string) error {
	switch name {
	case FieldFullName:
		c.FullName = value
	case FieldEmail:
		c.Email = value
	case FieldPhoneNumber:
		c.PhoneNumber = value
	case FieldDateOfBirth:
		c.DateOfBirth = value
	case FieldAccountType:
		c.AccountType = value
	case FieldInitialDeposit:
		c.InitialDeposit = Amount(value)
	case FieldCurrency:
		c.Currency = value
	case FieldStreetAddress:
		c.StreetAddress = value
	case FieldCity:
		c.City = value
	case FieldZipCode:
		c.ZipCode = value
	case FieldTermsAccepted:
		c.TermsAccepted = checked(value)
	default:
		return fmt.Errorf("%w %q", ErrUnknownField, name)
	}
	return nil
}

// Values returns the candidate as prefill strings keyed by wire name.  An
// unchecked terms box maps to "".
func (c Candidate) Values() map[string]string {
	terms := ""
	if c.TermsAccepted {
		terms = "true"
	}
	return map[string]string{
		FieldFullName:       c.FullName,
		FieldEmail:          c.Email,
		FieldPhoneNumber:    c.PhoneNumber,
		FieldDateOfBirth:    c.DateOfBirth,
		FieldAccountType:    c.AccountType,
		FieldInitialDeposit: string(c.InitialDeposit),
		FieldCurrency:       c.Currency,
		FieldStreetAddress:  c.StreetAddress,
		FieldCity:           c.City,
		FieldZipCode:        c.ZipCode,
		FieldTermsAccepted:  terms,
	}
}

// IsZero reports whether the candidate equals the empty form.
func (c Candidate) IsZero() bool { return c == Candidate{} }

// FromValues builds a Candidate from a posted HTML form.  Keys outside the
// schema (csrf_token, …) are ignored.  An absent checkbox means
// unchecked, matching browser behaviour.
func FromValues(v url.Values) Candidate {
	var c Candidate
	for _, name := range fieldNames {
		if raw, ok := v[name]; ok && len(raw) > 0 {
			_ = c.Set(name, raw[0]) // name is known
		}
	}
	return c
}

func checked(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// Application
// -----------------------------------------------------------------------------

// Application is a Candidate that passed validation, normalized for
// downstream use.
type Application struct {
	FullName       string          `json:"fullName"`
	Email          string          `json:"email"`
	PhoneNumber    string          `json:"phoneNumber"`
	DateOfBirth    time.Time       `json:"-"`
	AccountType    AccountType     `json:"accountType"`
	InitialDeposit decimal.Decimal `json:"initialDeposit"`
	Currency       Currency        `json:"currency"`
	StreetAddress  string          `json:"streetAddress"`
	City           string          `json:"city"`
	ZipCode        string          `json:"zipCode"`
	TermsAccepted  bool            `json:"termsAccepted"`
}

// MarshalJSON writes dateOfBirth in DateLayout rather than RFC 3339.
func (a Application) MarshalJSON() ([]byte, error) {
	type alias Application
	return json.Marshal(struct {
		alias
		DateOfBirth string `json:"dateOfBirth"`
	}{alias(a), a.DateOfBirth.Format(DateLayout)})
}

// internal/account/validate.go
//
// Account-opening form: server-side validation and normalization.
//
// Context
//   Rules live in the `validate:` tags on Candidate.  go-playground/validator
//   checks every field independently, so one call reports every problem at
//   once.  Custom tags registered here:
//
//     digits=N      exactly N ASCII digits
//     decimal       parses as a decimal number
//     decimal_min=X decimal value ≥ X
//     adult         dateOfBirth is at least 18 years before "today"
//
//   "Today" comes from an injectable clock so tests can pin the date.
//
// Workflow
//   •  Validate trims every text field, runs the struct validator, and maps
//      each validator.FieldError to a user-facing message.
//   •  On success the trimmed candidate is converted into an Application.
//
//------------------------------------------------------------------------------

package account

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// MinimumAge is the youngest applicant the adult rule accepts.
const MinimumAge = 18

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// FieldErrors maps wire name → message.  A non-empty FieldErrors is the only
// error Validate returns.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	names := make([]string, 0, len(fe))
	for n := range fe {
		names = append(names, n)
	}
	sort.Strings(names)
	return "invalid fields: " + strings.Join(names, ", ")
}

// AsFieldErrors unwraps err into FieldErrors.
func AsFieldErrors(err error) (FieldErrors, bool) {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// -----------------------------------------------------------------------------
// Validator
// -----------------------------------------------------------------------------

// Validator is safe for concurrent use.
type Validator struct {
	v   *validator.Validate
	now func() time.Time
	loc *time.Location
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock overrides time.Now for the age rule.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// WithLocation sets the zone in which "today" and birth dates are compared.
// Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(v *Validator) { v.loc = loc }
}

// NewValidator wires the struct validator and its custom tags.
func NewValidator(opts ...Option) *Validator {
	av := &Validator{
		v:   validator.New(validator.WithRequiredStructEnabled()),
		now: time.Now,
		loc: time.Local,
	}
	for _, o := range opts {
		o(av)
	}

	// Report JSON names instead of Go field names.
	av.v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Registration only fails on empty tag names or nil funcs.
	_ = av.v.RegisterValidation("digits", isDigits)
	_ = av.v.RegisterValidation("decimal", isDecimal)
	_ = av.v.RegisterValidation("decimal_min", decimalMin)
	_ = av.v.RegisterValidation("adult", av.isAdult)

	return av
}

// Validate checks every field of c.  It returns the normalized Application
// or FieldErrors describing each failing field.
func (av *Validator) Validate(c Candidate) (Application, error) {
	c = trimmed(c)

	if err := av.v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			// Struct() only returns InvalidValidationError for non-structs.
			return Application{}, FieldErrors{"": err.Error()}
		}
		out := make(FieldErrors, len(verrs))
		for _, fe := range verrs {
			if _, seen := out[fe.Field()]; seen {
				continue
			}
			out[fe.Field()] = message(fe.Field(), fe.Tag())
		}
		return Application{}, out
	}

	return av.normalize(c)
}

// Age returns whole years between birth and today using the year-difference
// rule: a birthday not yet reached this year subtracts one.
func Age(birth, today time.Time) int {
	age := today.Year() - birth.Year()
	if monthDay(today) < monthDay(birth) {
		age--
	}
	return age
}

// AdultCutoff returns the latest birth date that is MinimumAge years old on
// today under the same month/day rule as Age.  When today is Feb 29 and the
// cutoff year has none, that is Feb 28.
func AdultCutoff(today time.Time) time.Time {
	y := today.Year() - MinimumAge
	d := time.Date(y, today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	if d.Month() != today.Month() {
		d = time.Date(y, today.Month()+1, 0, 0, 0, 0, 0, today.Location())
	}
	return d
}

// -----------------------------------------------------------------------------
// Normalization
// -----------------------------------------------------------------------------

func trimmed(c Candidate) Candidate {
	c.FullName = strings.TrimSpace(c.FullName)
	c.Email = strings.TrimSpace(c.Email)
	c.PhoneNumber = strings.TrimSpace(c.PhoneNumber)
	c.DateOfBirth = strings.TrimSpace(c.DateOfBirth)
	c.AccountType = strings.TrimSpace(c.AccountType)
	c.InitialDeposit = Amount(strings.TrimSpace(string(c.InitialDeposit)))
	c.Currency = strings.TrimSpace(c.Currency)
	c.StreetAddress = strings.TrimSpace(c.StreetAddress)
	c.City = strings.TrimSpace(c.City)
	c.ZipCode = strings.TrimSpace(c.ZipCode)
	return c
}

// normalize converts an already-valid candidate.  Parse failures here would
// mean the tags and the converter disagree, so they surface as field errors
// rather than panics.
func (av *Validator) normalize(c Candidate) (Application, error) {
	dob, err := time.ParseInLocation(DateLayout, c.DateOfBirth, av.loc)
	if err != nil {
		return Application{}, FieldErrors{FieldDateOfBirth: message(FieldDateOfBirth, "datetime")}
	}
	dep, err := decimal.NewFromString(string(c.InitialDeposit))
	if err != nil {
		return Application{}, FieldErrors{FieldInitialDeposit: message(FieldInitialDeposit, "decimal")}
	}

	return Application{
		FullName:       c.FullName,
		Email:          strings.ToLower(c.Email),
		PhoneNumber:    c.PhoneNumber,
		DateOfBirth:    dob,
		AccountType:    AccountType(c.AccountType),
		InitialDeposit: dep,
		Currency:       Currency(c.Currency),
		StreetAddress:  c.StreetAddress,
		City:           c.City,
		ZipCode:        c.ZipCode,
		TermsAccepted:  c.TermsAccepted,
	}, nil
}

// -----------------------------------------------------------------------------
// Custom tags
// -----------------------------------------------------------------------------

func isDigits(fl validator.FieldLevel) bool {
	n, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	s := fl.Field().String()
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isDecimal(fl validator.FieldLevel) bool {
	_, err := decimal.NewFromString(fl.Field().String())
	return err == nil
}

func decimalMin(fl validator.FieldLevel) bool {
	floor, err := decimal.NewFromString(fl.Param())
	if err != nil {
		return false
	}
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return d.GreaterThanOrEqual(floor)
}

func (av *Validator) isAdult(fl validator.FieldLevel) bool {
	birth, err := time.ParseInLocation(DateLayout, fl.Field().String(), av.loc)
	if err != nil {
		return false
	}
	return Age(birth, av.now().In(av.loc)) >= MinimumAge
}

func monthDay(t time.Time) int { return int(t.Month())*100 + t.Day() }

// -----------------------------------------------------------------------------
// Messages
// -----------------------------------------------------------------------------

// messages holds per-tag overrides; defaults covers every other failure.
var messages = map[string]map[string]string{
	FieldDateOfBirth: {
		"required": "Date of Birth is required",
		"datetime": "Date of Birth must be a valid date",
		"adult":    "Must be 18 years or older",
	},
	FieldAccountType: {
		"required": "Account Type is required",
		"oneof":    "Account Type must be Savings or Checking",
	},
	FieldInitialDeposit: {
		"required":    "Initial Deposit is required",
		"decimal":     "Initial Deposit must be a number",
		"decimal_min": "Minimum deposit is $100",
	},
	FieldCurrency: {
		"required": "Currency is required",
		"oneof":    "Currency must be one of USD, EUR, LKR",
	},
}

var defaults = map[string]string{
	FieldFullName:      "Full Name must be at least 3 characters",
	FieldEmail:         "Invalid email address",
	FieldPhoneNumber:   "Phone Number must be exactly 10 digits",
	FieldStreetAddress: "Street Address is required",
	FieldCity:          "City is required",
	FieldZipCode:       "Zip Code must be exactly 5 digits",
	FieldTermsAccepted: "You must accept the Terms & Conditions",
}

func message(field, tag string) string {
	if m, ok := messages[field][tag]; ok {
		return m
	}
	if m, ok := defaults[field]; ok {
		return m
	}
	return fmt.Sprintf("%s is invalid", field)
}

// components/account/account.go
//
// Account-opening component.
//
// Context
//   Serves the “Open New Account” page and its JSON API.  Each browser is
//   bound to a form session (internal/session) whose submission controller
//   owns the draft and the Idle → Submitting → Idle cycle.  The page itself
//   is plain server-rendered HTML: the form markup comes from the
//   account/open definition (forms/open.yaml, overridable), the frame from
//   templates/page.html (overridable).
//
// Workflow
//   •  Init registers the embedded form definition unless an override is
//      already registered, checks its field names against the domain record,
//      builds the notifier chain from its actions, and starts the session
//      store.
//   •  Routes mounts the page (GET/POST /) and the API under /api/account.
//   •  Close stops the session evictor, waits for in-flight submissions,
//      then closes the notifiers.
//
//------------------------------------------------------------------------------

package account

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	acct "github.com/yanizio/openaccount/internal/account"
	"github.com/yanizio/openaccount/internal/component"
	"github.com/yanizio/openaccount/internal/form"
	"github.com/yanizio/openaccount/internal/notify"
	"github.com/yanizio/openaccount/internal/server"
	"github.com/yanizio/openaccount/internal/session"
	"github.com/yanizio/openaccount/internal/submission"
	"github.com/yanizio/openaccount/internal/view"
)

// FormID names the account-opening form definition.
const FormID = "account/open"

var (
	//go:embed forms/open.yaml
	openYAML []byte

	//go:embed templates/*.html
	templates embed.FS
)

// Compile-time assertions.
var (
	_ component.Component = (*Component)(nil)
	_ component.Closer    = (*Component)(nil)
)

// Component encapsulates the account-opening flow.
type Component struct {
	log       *zap.SugaredLogger
	validator *acct.Validator
	guard     form.Guard
	views     *view.Engine
	sessions  *session.Store
	closers   []io.Closer
	title     string
	now       func() time.Time
}

/*────────────────── component.Component methods ───────────────────────────*/

// Name returns the canonical component key.
func (c *Component) Name() string { return "account" }

// Init wires the component to the shared services in env.
func (c *Component) Init(env component.Env) error {
	if env.Config == nil || env.Views == nil || env.Validator == nil {
		return errors.New("config, views, and validator are required")
	}
	c.log = env.Log
	if c.log == nil {
		c.log = zap.S()
	}
	c.validator = env.Validator
	c.guard = env.Guard
	c.views = env.Views
	if c.now == nil {
		c.now = time.Now
	}

	fd, ok := form.GetFormDef(FormID)
	if !ok {
		parsed, err := form.ParseFormDef(openYAML, "components/account/forms/open.yaml")
		if err != nil {
			return err
		}
		form.Register(parsed)
		fd = parsed
	}
	if err := checkFields(fd); err != nil {
		return err
	}
	c.title = fd.Title

	notifier, closers, err := notify.FromActions(fd.Actions, notify.Deps{Kafka: env.Config.Kafka, Log: c.log})
	if err != nil {
		return err
	}
	c.closers = closers

	c.views.Register(c.Name(), templates)

	sub := env.Config.Submission
	c.sessions = session.New(session.Options{
		IdleTTL:       env.Config.Session.IdleTTL,
		MaxEntries:    env.Config.Session.MaxEntries,
		EvictInterval: env.Config.Session.EvictInterval,
		Log:           c.log,
		NewController: func() *submission.Controller {
			return submission.New(submission.Options{
				Validator: c.validator,
				Notifier:  notifier,
				Delay:     sub.Delay,
				Notice:    sub.Notice,
				Log:       c.log,
			})
		},
	})
	return nil
}

// Routes builds and returns the router mounted at “/”.
func (c *Component) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", c.handlePageGET)
	r.Post("/", c.handlePagePOST)
	r.Route("/api/account", func(api chi.Router) {
		api.Post("/", c.handleSubmitAPI)
		api.Post("/validate", c.handleValidateAPI)
		api.Get("/status", c.handleStatusAPI)
	})
	return r
}

// Close stops the session evictor, lets in-flight submissions finish (up to
// the server's shutdown grace), then closes the notifiers.
func (c *Component) Close() error {
	var errs []error
	if c.sessions != nil {
		c.sessions.Close()
		ctx, cancel := context.WithTimeout(context.Background(), server.ShutdownGrace)
		if err := c.sessions.Wait(ctx); err != nil {
			c.log.Warnw("submissions still running at shutdown", "err", err)
			errs = append(errs, fmt.Errorf("drain submissions: %w", err))
		}
		cancel()
	}
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Register component at program start.
func init() { component.Register(&Component{}) }

/*──────────────────────────── helpers ──────────────────────────────────────*/

// checkFields requires the form to carry exactly the domain record's fields.
func checkFields(fd *form.FormDef) error {
	seen := make(map[string]bool, len(fd.Fields))
	for _, f := range fd.Fields {
		if !acct.IsField(f.Name) {
			return fmt.Errorf("form %s: field %q: %w", fd.ID, f.Name, acct.ErrUnknownField)
		}
		seen[f.Name] = true
	}
	for _, name := range acct.FieldNames() {
		if !seen[name] {
			return fmt.Errorf("form %s: missing field %q", fd.ID, name)
		}
	}
	return nil
}

// adultCeiling is the latest birth date that is 18 today, for the date
// input's max attribute.
func (c *Component) adultCeiling() string {
	return acct.AdultCutoff(c.now()).Format(acct.DateLayout)
}

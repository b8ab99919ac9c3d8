// internal/submission/controller.go
//
// Submission controller: the Idle → Submitting → Idle state machine behind
// the "Open My Account" button.
//
// Context
//   One Controller backs one form session.  It owns the draft Candidate and
//   decides whether a submit may start.  A validated submit moves the
//   controller to Submitting, waits a fixed delay, hands a Receipt to the
//   Notifier, clears the draft, records a success notice, and returns to
//   Idle.  While Submitting every further submit is refused with ErrBusy.
//
//   Completion is not cancellable.  It runs on a context detached from the
//   caller, so a client hanging up mid-delay still gets its account opened.
//   Notifier failures are logged and counted; they never change the outcome.
//
//------------------------------------------------------------------------------

package submission

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yanizio/openaccount/internal/account"
	"github.com/yanizio/openaccount/internal/metrics"
)

// State of a Controller.
type State int

const (
	Idle State = iota
	Submitting
)

func (s State) String() string {
	if s == Submitting {
		return "submitting"
	}
	return "idle"
}

// Defaults used when Options leave fields zero.
const (
	DefaultDelay  = time.Second
	DefaultNotice = "Account successfully opened!"
)

// ErrBusy is returned by Submit while a previous submit is still running.
var ErrBusy = errors.New("submission already in progress")

// Receipt is what a completed submission hands to the Notifier.
type Receipt struct {
	Reference   string              `json:"reference"`
	SubmittedAt time.Time           `json:"submittedAt"`
	Application account.Application `json:"application"`
}

// Notifier performs the side effect of a successful submission.
type Notifier interface {
	Notify(ctx context.Context, r Receipt) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, r Receipt) error

func (f NotifierFunc) Notify(ctx context.Context, r Receipt) error { return f(ctx, r) }

// Options configures a Controller.
type Options struct {
	Validator *account.Validator
	Notifier  Notifier
	Delay     time.Duration
	Notice    string
	Log       *zap.SugaredLogger
}

// Controller is safe for concurrent use.
type Controller struct {
	validator *account.Validator
	notifier  Notifier
	delay     time.Duration
	notice    string
	log       *zap.SugaredLogger

	mu      sync.Mutex
	state   State
	running chan struct{} // closed when the current submission completes
	draft   account.Candidate
	pending string // notice waiting to be shown
}

// New returns an Idle controller with an empty draft.
func New(o Options) *Controller {
	c := &Controller{
		validator: o.Validator,
		notifier:  o.Notifier,
		delay:     o.Delay,
		notice:    o.Notice,
		log:       o.Log,
	}
	if c.validator == nil {
		c.validator = account.NewValidator()
	}
	if c.notifier == nil {
		c.notifier = NotifierFunc(func(context.Context, Receipt) error { return nil })
	}
	if c.delay <= 0 {
		c.delay = DefaultDelay
	}
	if c.notice == "" {
		c.notice = DefaultNotice
	}
	if c.log == nil {
		c.log = zap.S()
	}
	return c
}

// Snapshot is a consistent view of the controller for rendering.
type Snapshot struct {
	State State
	Draft account.Candidate
}

// Snapshot returns the current state and draft.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{State: c.state, Draft: c.draft}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Update replaces the draft.  Ignored while Submitting; returns false then.
func (c *Controller) Update(cand account.Candidate) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Submitting {
		return false
	}
	c.draft = cand
	return true
}

// TakeNotice returns the pending success notice and clears it.  The notice
// is shown exactly once.
func (c *Controller) TakeNotice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.pending
	c.pending = ""
	return n
}

// Submit validates cand and, when valid, starts the simulated submission.
// The returned channel closes once the controller is back to Idle.
//
// Errors:
//   - ErrBusy while a previous submit is running (draft untouched).
//   - account.FieldErrors when validation fails; the draft keeps cand so
//     the form can be re-rendered with the user's input.
func (c *Controller) Submit(ctx context.Context, cand account.Candidate) (<-chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Submitting {
		metrics.SubmissionsTotal.WithLabelValues("busy").Inc()
		return nil, ErrBusy
	}

	c.draft = cand
	c.pending = ""

	app, err := c.validator.Validate(cand)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
		if fe, ok := account.AsFieldErrors(err); ok {
			for field := range fe {
				metrics.ValidationFailuresTotal.WithLabelValues(field).Inc()
			}
		}
		return nil, err
	}

	c.state = Submitting
	metrics.SubmissionsTotal.WithLabelValues("accepted").Inc()
	metrics.SubmissionsInFlight.Inc()

	done := make(chan struct{})
	c.running = done
	go c.complete(context.WithoutCancel(ctx), app, done)
	return done, nil
}

// Wait blocks until the running submission, if any, has completed, or ctx
// ends.  Shutdown calls it before closing notifiers.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if running == nil {
		return nil
	}
	select {
	case <-running:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// complete waits out the delay, notifies, and resets the form.
func (c *Controller) complete(ctx context.Context, app account.Application, done chan struct{}) {
	defer close(done)

	t := time.NewTimer(c.delay)
	<-t.C

	r := Receipt{
		Reference:   uuid.NewString(),
		SubmittedAt: time.Now().UTC(),
		Application: app,
	}
	if err := c.notifier.Notify(ctx, r); err != nil {
		c.log.Errorw("submission notify failed", "reference", r.Reference, "err", err)
	}

	c.mu.Lock()
	c.draft = account.Candidate{}
	c.pending = c.notice
	c.state = Idle
	c.running = nil
	c.mu.Unlock()

	metrics.SubmissionsInFlight.Dec()
	c.log.Infow("submission complete", "reference", r.Reference)
}

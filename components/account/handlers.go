package account

import (
	"encoding/json"
	"errors"
	"html/template"
	"mime"
	"net/http"

	acct "github.com/yanizio/openaccount/internal/account"
	"github.com/yanizio/openaccount/internal/form"
	"github.com/yanizio/openaccount/internal/head"
	"github.com/yanizio/openaccount/internal/logger"
	"github.com/yanizio/openaccount/internal/session"
	"github.com/yanizio/openaccount/internal/submission"
)

// maxJSONBody caps API request bodies.
const maxJSONBody = 64 << 10

// pageData feeds templates/page.html.
type pageData struct {
	Head   *head.Builder
	Title  string
	Notice string
	Form   template.HTML
}

/*──────────────────────────── HTML page ────────────────────────────────────*/

// handlePageGET renders the form with the session draft.  While a submission
// runs the page refreshes itself until the controller is idle again.  A
// browser without a session gets the empty form; its session starts on POST.
func (c *Component) handlePageGET(w http.ResponseWriter, r *http.Request) {
	sess, ok := c.sessions.Lookup(r)
	if !ok {
		c.renderPage(w, r, http.StatusOK, nil, form.RenderOptions{})
		return
	}
	snap := sess.Controller.Snapshot()
	busy := snap.State == submission.Submitting
	if busy {
		w.Header().Set("Refresh", "1")
	}

	c.renderPage(w, r, http.StatusOK, sess, form.RenderOptions{
		Prefill: snap.Draft.Values(),
		Busy:    busy,
	})
}

// handlePagePOST runs the guard, then hands the posted candidate to the
// session controller.  Success redirects back to GET / (post/redirect/get).
func (c *Component) handlePagePOST(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	sess := c.sessions.FromRequest(w, r)

	posted, err := form.HandleSubmit(w, r, c.guard)
	switch {
	case form.IsValidationError(err):
		msgs := map[string]string{}
		for _, fe := range form.Errors(err) {
			msgs[fe.Name] = fe.Message
		}
		log.Infow("form guard rejected post", "reason", msgs[""])
		c.renderPage(w, r, http.StatusUnprocessableEntity, sess, form.RenderOptions{
			Prefill: acct.FromValues(r.PostForm).Values(),
			Errors:  msgs,
		})
		return
	case err != nil:
		log.Warnw("bad form body", "err", err)
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	cand := acct.FromValues(posted)
	_, err = sess.Controller.Submit(r.Context(), cand)
	if err == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if errors.Is(err, submission.ErrBusy) {
		w.Header().Set("Refresh", "1")
		c.renderPage(w, r, http.StatusConflict, sess, form.RenderOptions{
			Prefill: sess.Controller.Snapshot().Draft.Values(),
			Busy:    true,
		})
		return
	}

	fe, ok := acct.AsFieldErrors(err)
	if !ok {
		log.Errorw("submit failed", "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	c.renderPage(w, r, http.StatusUnprocessableEntity, sess, form.RenderOptions{
		Prefill: cand.Values(),
		Errors:  fe,
	})
}

// renderPage wraps the form markup in the page template.  The notice is
// consumed here, so it shows exactly once.  sess may be nil.
func (c *Component) renderPage(w http.ResponseWriter, r *http.Request, status int, sess *session.Session, opts form.RenderOptions) {
	log := logger.FromContext(r.Context())

	opts.Max = map[string]string{acct.FieldDateOfBirth: c.adultCeiling()}
	markup, err := form.RenderForm(FormID, opts)
	if err != nil {
		log.Errorw("render form", "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	hb := head.New()
	hb.SetTitle(c.title)
	hb.Meta("robots", "noindex, nofollow")
	if opts.Busy {
		hb.HTTPEquiv("refresh", "1")
	}

	data := pageData{
		Head:  hb,
		Title: c.title,
		Form:  markup,
	}
	if sess != nil {
		data.Notice = sess.Controller.TakeNotice()
	}
	if err := c.views.Render(w, status, c.Name(), "page", data); err != nil {
		log.Errorw("render page", "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

/*──────────────────────────── JSON API ─────────────────────────────────────*/

// handleValidateAPI validates a candidate without touching the session.
func (c *Component) handleValidateAPI(w http.ResponseWriter, r *http.Request) {
	cand, ok := decodeCandidate(w, r)
	if !ok {
		return
	}
	app, err := c.validator.Validate(cand)
	if fe, isFE := acct.AsFieldErrors(err); isFE {
		writeJSON(w, r, http.StatusUnprocessableEntity, map[string]any{"errors": fe})
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Errorw("validate", "err", err)
		writeJSON(w, r, http.StatusInternalServerError, map[string]any{"error": "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"application": app})
}

// handleSubmitAPI is the JSON twin of handlePagePOST.  The Content-Type
// requirement stands in for the CSRF token: a cross-site form cannot send
// application/json without a preflight.
func (c *Component) handleSubmitAPI(w http.ResponseWriter, r *http.Request) {
	sess := c.sessions.FromRequest(w, r)
	cand, ok := decodeCandidate(w, r)
	if !ok {
		return
	}

	_, err := sess.Controller.Submit(r.Context(), cand)
	switch fe, isFE := acct.AsFieldErrors(err); {
	case err == nil:
		writeJSON(w, r, http.StatusAccepted, map[string]any{"state": submission.Submitting.String()})
	case errors.Is(err, submission.ErrBusy):
		writeJSON(w, r, http.StatusConflict, map[string]any{
			"error": err.Error(),
			"state": submission.Submitting.String(),
		})
	case isFE:
		writeJSON(w, r, http.StatusUnprocessableEntity, map[string]any{"errors": fe})
	default:
		logger.FromContext(r.Context()).Errorw("submit failed", "err", err)
		writeJSON(w, r, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}

// handleStatusAPI reports the controller state and consumes the notice.  A
// client without a session is idle with nothing to report.
func (c *Component) handleStatusAPI(w http.ResponseWriter, r *http.Request) {
	sess, ok := c.sessions.Lookup(r)
	if !ok {
		writeJSON(w, r, http.StatusOK, map[string]any{
			"state":  submission.Idle.String(),
			"notice": "",
		})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"state":  sess.Controller.State().String(),
		"notice": sess.Controller.TakeNotice(),
	})
}

/*──────────────────────────── helpers ──────────────────────────────────────*/

// decodeCandidate reads a JSON candidate, writing 415 or 400 itself on
// failure.
func decodeCandidate(w http.ResponseWriter, r *http.Request) (acct.Candidate, bool) {
	var cand acct.Candidate
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		writeJSON(w, r, http.StatusUnsupportedMediaType, map[string]any{"error": "content type must be application/json"})
		return cand, false
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(&cand); err != nil {
		writeJSON(w, r, http.StatusBadRequest, map[string]any{"error": "malformed JSON body"})
		return cand, false
	}
	return cand, true
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.FromContext(r.Context()).Warnw("encode response", "err", err)
	}
}

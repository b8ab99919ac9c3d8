// internal/session/session.go
//
// Form sessions and the browser cookie that selects them.
//
// Context
//   Every browser gets one form session: a draft application plus the
//   submission controller that guards it.  The session is selected by an
//   opaque uuid stored in the “openaccount_session” cookie.  The cookie
//   carries no personal data, so it needs no encryption; an unknown but
//   well-formed id simply yields a fresh, empty session.
//
// Style
//   Two-space sentence spacing, terse inline notes.
//
//------------------------------------------------------------------------------

package session

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/yanizio/openaccount/internal/submission"
)

// CookieName is the session cookie.
const CookieName = "openaccount_session"

// Session binds one browser to one submission controller.
type Session struct {
	ID         string
	Controller *submission.Controller

	lastSeen int64 // unix nanos, atomic
}

// Touch records activity for the idle evictor.
func (s *Session) Touch() { atomic.StoreInt64(&s.lastSeen, time.Now().UnixNano()) }

// LastSeen returns the time of the most recent Touch.
func (s *Session) LastSeen() time.Time { return time.Unix(0, atomic.LoadInt64(&s.lastSeen)) }

// busy reports whether a submission is in flight.
func (s *Session) busy() bool { return s.Controller.State() == submission.Submitting }

// readID returns the session id carried by r.  ok is false when the cookie
// is missing or not a uuid.
func readID(r *http.Request) (id string, ok bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	u, err := uuid.Parse(c.Value)
	if err != nil {
		return "", false
	}
	return u.String(), true
}

// writeCookie issues a session cookie valid for the browser session.
func writeCookie(w http.ResponseWriter, r *http.Request, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil, // only send over HTTPS
		SameSite: http.SameSiteLaxMode,
	})
}

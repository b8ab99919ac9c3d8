package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/yanizio/openaccount/internal/account"
	"github.com/yanizio/openaccount/internal/metrics"
	"github.com/yanizio/openaccount/internal/submission"
)

func newTestStore(t *testing.T, o Options) *Store {
	t.Helper()
	if o.NewController == nil {
		o.NewController = func() *submission.Controller {
			return submission.New(submission.Options{Delay: 10 * time.Millisecond, Log: zap.NewNop().Sugar()})
		}
	}
	o.EvictInterval = time.Hour // tests drive sweep directly
	o.Log = zap.NewNop().Sugar()
	s := New(o)
	t.Cleanup(s.Close)
	return s
}

func TestFromRequest_IssuesCookie(t *testing.T) {
	s := newTestStore(t, Options{})

	w := httptest.NewRecorder()
	sess := s.FromRequest(w, httptest.NewRequest(http.MethodGet, "/", nil))

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName || cookies[0].Value != sess.ID {
		t.Fatalf("cookies = %+v", cookies)
	}
	if !cookies[0].HttpOnly || cookies[0].SameSite != http.SameSiteLaxMode {
		t.Fatalf("cookie flags = %+v", cookies[0])
	}

	// Same cookie → same session, no new cookie.
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookies[0])
	w2 := httptest.NewRecorder()
	if again := s.FromRequest(w2, r); again != sess {
		t.Fatal("cookie did not select the existing session")
	}
	if len(w2.Result().Cookies()) != 0 {
		t.Fatal("cookie re-issued for a known session")
	}
}

func TestFromRequest_MalformedCookie(t *testing.T) {
	s := newTestStore(t, Options{})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "../../etc/passwd"})
	w := httptest.NewRecorder()
	sess := s.FromRequest(w, r)

	if sess.ID == "../../etc/passwd" {
		t.Fatal("malformed id accepted")
	}
	if len(w.Result().Cookies()) != 1 {
		t.Fatal("replacement cookie not issued")
	}
}

func TestGet_ConcurrentCreatesOnce(t *testing.T) {
	var mu sync.Mutex
	created := 0
	s := newTestStore(t, Options{NewController: func() *submission.Controller {
		mu.Lock()
		created++
		mu.Unlock()
		return submission.New(submission.Options{Log: zap.NewNop().Sugar()})
	}})

	const id = "5f0c6f5e-8d7e-4d4c-9a52-0e5b6d7c8a90"
	var wg sync.WaitGroup
	got := make([]*Session, 32)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = s.Get(id)
		}(i)
	}
	wg.Wait()

	for _, sess := range got[1:] {
		if sess != got[0] {
			t.Fatal("concurrent Get returned different sessions")
		}
	}
	if created != 1 || s.Len() != 1 {
		t.Fatalf("created = %d, len = %d", created, s.Len())
	}
}

func TestSweep_Idle(t *testing.T) {
	s := newTestStore(t, Options{IdleTTL: time.Minute})
	s.Get("a")
	s.Get("b")

	before := testutil.ToFloat64(metrics.SessionEvictTotal)
	s.sweep(time.Now().Add(2 * time.Minute))

	if s.Len() != 0 {
		t.Fatalf("len = %d after idle sweep", s.Len())
	}
	if d := testutil.ToFloat64(metrics.SessionEvictTotal) - before; d != 2 {
		t.Fatalf("evictions = %v", d)
	}
}

func TestSweep_LRU(t *testing.T) {
	s := newTestStore(t, Options{IdleTTL: time.Hour, MaxEntries: 2})
	oldest := put(s, "oldest")
	put(s, "middle")
	put(s, "newest")
	atomicSet(oldest, time.Now().Add(-10*time.Minute))

	s.sweep(time.Now())

	if s.Len() != 2 {
		t.Fatalf("len = %d", s.Len())
	}
	if _, ok := s.m.Load("oldest"); ok {
		t.Fatal("least recently used session survived")
	}
}

func TestGet_CapEvictsLeastRecentlyUsed(t *testing.T) {
	s := newTestStore(t, Options{IdleTTL: time.Hour, MaxEntries: 3})
	first := s.Get("first")
	atomicSet(first, time.Now().Add(-time.Minute))
	s.Get("second")
	s.Get("third")

	s.Get("fourth")

	if s.Len() != 3 {
		t.Fatalf("len = %d, want 3", s.Len())
	}
	if _, ok := s.m.Load("first"); ok {
		t.Fatal("least recently used session survived the cap")
	}

	for i := 0; i < 100; i++ {
		s.Get(fmt.Sprintf("burst-%d", i))
	}
	if s.Len() != 3 {
		t.Fatalf("len = %d after burst, want 3", s.Len())
	}
}

func TestLookup_NeverCreates(t *testing.T) {
	s := newTestStore(t, Options{})

	for i := 0; i < 1000; i++ {
		if _, ok := s.Lookup(httptest.NewRequest(http.MethodGet, "/api/account/status", nil)); ok {
			t.Fatal("cookieless lookup found a session")
		}
	}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "6f1c2f2e-8f5e-4a4b-9d55-6a4f0c3b9e21"})
	if _, ok := s.Lookup(r); ok {
		t.Fatal("unknown id found a session")
	}
	if s.Len() != 0 {
		t.Fatalf("len = %d after lookups, want 0", s.Len())
	}

	w := httptest.NewRecorder()
	sess := s.FromRequest(w, httptest.NewRequest(http.MethodPost, "/", nil))
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(w.Result().Cookies()[0])
	if got, ok := s.Lookup(r); !ok || got != sess {
		t.Fatal("lookup missed an existing session")
	}
}

func TestSweep_SkipsBusySessions(t *testing.T) {
	today := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	gate := make(chan struct{})
	s := newTestStore(t, Options{IdleTTL: time.Minute, NewController: func() *submission.Controller {
		return submission.New(submission.Options{
			Validator: account.NewValidator(account.WithClock(func() time.Time { return today })),
			Notifier: submission.NotifierFunc(func(context.Context, submission.Receipt) error {
				<-gate
				return nil
			}),
			Delay: time.Millisecond,
			Log:   zap.NewNop().Sugar(),
		})
	}})

	busy := s.Get("busy")
	s.Get("idle")
	done, err := busy.Controller.Submit(context.Background(), account.Candidate{
		FullName:       "Ally Perera",
		Email:          "ally@example.com",
		PhoneNumber:    "0771234567",
		DateOfBirth:    "1990-05-17",
		AccountType:    "Savings",
		InitialDeposit: "250",
		Currency:       "USD",
		StreetAddress:  "12 Galle Road",
		City:           "Colombo",
		ZipCode:        "00300",
		TermsAccepted:  true,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	s.sweep(time.Now().Add(time.Hour))

	if _, ok := s.m.Load("busy"); !ok {
		t.Fatal("busy session evicted")
	}
	if _, ok := s.m.Load("idle"); ok {
		t.Fatal("idle session kept")
	}

	close(gate)
	<-done
	s.sweep(time.Now().Add(time.Hour))
	if s.Len() != 0 {
		t.Fatal("session not evicted after submission finished")
	}
}

func TestWait_DrainsInFlightSubmissions(t *testing.T) {
	today := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	var notified atomic.Int32
	s := newTestStore(t, Options{NewController: func() *submission.Controller {
		return submission.New(submission.Options{
			Validator: account.NewValidator(account.WithClock(func() time.Time { return today })),
			Notifier: submission.NotifierFunc(func(context.Context, submission.Receipt) error {
				notified.Add(1)
				return nil
			}),
			Delay: 50 * time.Millisecond,
			Log:   zap.NewNop().Sugar(),
		})
	}})

	sess := s.Get("leaving")
	s.Get("idle")
	if _, err := sess.Controller.Submit(context.Background(), validCandidate()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	s.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if notified.Load() != 1 {
		t.Fatalf("notifier calls = %d, want 1", notified.Load())
	}
	if st := sess.Controller.State(); st != submission.Idle {
		t.Fatalf("state = %s after Wait", st)
	}
}

// put stores a session directly, bypassing the creation cap.
func put(s *Store, id string) *Session {
	sess := &Session{ID: id, Controller: s.newCtl()}
	sess.Touch()
	s.m.Store(id, sess)
	s.size.Add(1)
	return sess
}

func validCandidate() account.Candidate {
	return account.Candidate{
		FullName:       "Ally Perera",
		Email:          "ally@example.com",
		PhoneNumber:    "0771234567",
		DateOfBirth:    "1990-05-17",
		AccountType:    "Savings",
		InitialDeposit: "250",
		Currency:       "USD",
		StreetAddress:  "12 Galle Road",
		City:           "Colombo",
		ZipCode:        "00300",
		TermsAccepted:  true,
	}
}

func atomicSet(s *Session, at time.Time) {
	atomic.StoreInt64(&s.lastSeen, at.UnixNano())
}

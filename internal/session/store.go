package session

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/openaccount/internal/metrics"
	"github.com/yanizio/openaccount/internal/submission"
)

// Static defaults.  Override through Options (session.* config keys).
const (
	IdleTTL       = 30 * time.Minute
	MaxEntries    = 10000
	EvictInterval = 5 * time.Minute
)

// Options configures New.  Zero durations and counts fall back to the
// package defaults; NewController is required.
type Options struct {
	IdleTTL       time.Duration
	MaxEntries    int
	EvictInterval time.Duration
	NewController func() *submission.Controller
	Log           *zap.SugaredLogger
}

// Store lazily creates sessions, keeps them in a sync.Map, and evicts them on
// idle TTL or LRU pressure.  Creating a session at MaxEntries evicts the
// least recently used idle one first.
type Store struct {
	sfg         singleflight.Group
	m           sync.Map
	size        atomic.Int64
	newCtl      func() *submission.Controller
	evictTicker *time.Ticker
	idleTTL     time.Duration
	maxEntries  int
	log         *zap.SugaredLogger

	stop      chan struct{}
	closeOnce sync.Once
}

// New constructs a Store and starts the background evictor.  Call Close to
// stop it.
func New(o Options) *Store {
	s := &Store{
		newCtl:     o.NewController,
		idleTTL:    o.IdleTTL,
		maxEntries: o.MaxEntries,
		log:        o.Log,
		stop:       make(chan struct{}),
	}
	if s.idleTTL <= 0 {
		s.idleTTL = IdleTTL
	}
	if s.maxEntries <= 0 {
		s.maxEntries = MaxEntries
	}
	if s.log == nil {
		s.log = zap.S()
	}
	interval := o.EvictInterval
	if interval <= 0 {
		interval = EvictInterval
	}
	s.evictTicker = time.NewTicker(interval)
	go s.evictLoop()
	return s
}

// Get returns the session for id, creating it on demand.
func (s *Store) Get(id string) *Session {
	if v, ok := s.m.Load(id); ok {
		sess := v.(*Session)
		sess.Touch()
		return sess
	}

	v, _, _ := s.sfg.Do(id, func() (interface{}, error) {
		// Double-check after singleflight barrier.
		if v, ok := s.m.Load(id); ok {
			return v.(*Session), nil
		}
		if s.size.Load() >= int64(s.maxEntries) {
			s.evictOldest(time.Now())
		}
		sess := &Session{ID: id, Controller: s.newCtl()}
		sess.Touch()
		s.m.Store(id, sess)
		s.size.Add(1)
		metrics.ActiveSessions.Inc()
		s.log.Debugw("form session created", "session", id)
		return sess, nil
	})
	sess := v.(*Session)
	sess.Touch()
	return sess
}

// FromRequest returns the caller's session, issuing a cookie when the
// request carries none or a malformed one.
func (s *Store) FromRequest(w http.ResponseWriter, r *http.Request) *Session {
	id, ok := readID(r)
	if !ok {
		id = uuid.NewString()
		writeCookie(w, r, id)
	}
	return s.Get(id)
}

// Lookup returns the caller's existing session.  It never creates one or
// issues a cookie, so read-only requests from cookieless clients cost
// nothing.
func (s *Store) Lookup(r *http.Request) (*Session, bool) {
	id, ok := readID(r)
	if !ok {
		return nil, false
	}
	v, ok := s.m.Load(id)
	if !ok {
		return nil, false
	}
	sess := v.(*Session)
	sess.Touch()
	return sess, true
}

// Len reports the number of live sessions.
func (s *Store) Len() int { return int(s.size.Load()) }

// Close stops the evictor.  Sessions stay readable.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.evictTicker.Stop()
		close(s.stop)
	})
}

// Wait blocks until every in-flight submission has completed or ctx ends.
// Call it on shutdown before closing the notifiers those submissions use.
func (s *Store) Wait(ctx context.Context) error {
	var err error
	s.m.Range(func(_, value any) bool {
		err = value.(*Session).Controller.Wait(ctx)
		return err == nil
	})
	return err
}

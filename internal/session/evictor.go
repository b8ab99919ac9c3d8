// evictor.go houses the eviction loop for Store.  Every evict interval it
// scans the map and removes:
//
//   - sessions idle longer than idleTTL
//   - least-recently-used sessions when map size exceeds maxEntries
//
// Get also calls evictOldest when a new session would exceed maxEntries, so
// the cap holds between sweeps.
//
// Sessions with a submission in flight are never evicted; their completion
// must land in a session the browser can still reach.  Each eviction is
// logged and updates Prometheus counters.
package session

import (
	"sort"
	"time"

	"github.com/yanizio/openaccount/internal/metrics"
)

func (s *Store) evictLoop() {
	for {
		select {
		case <-s.stop:
			return
		case now := <-s.evictTicker.C:
			s.sweep(now)
		}
	}
}

// sweep runs one idle pass and one LRU pass.
func (s *Store) sweep(now time.Time) {
	var count int

	// ----------------------------------------------------------------
	// Idle eviction pass
	// ----------------------------------------------------------------
	s.m.Range(func(key, value any) bool {
		sess := value.(*Session)
		idle := now.Sub(sess.LastSeen())
		if idle > s.idleTTL && !sess.busy() {
			s.remove(key, "idle", idle)
			return true
		}
		count++
		return true
	})

	// ----------------------------------------------------------------
	// LRU eviction pass
	// ----------------------------------------------------------------
	if s.maxEntries > 0 && count > s.maxEntries {
		type kv struct {
			key string
			at  time.Time
		}
		var all []kv
		s.m.Range(func(key, value any) bool {
			sess := value.(*Session)
			if !sess.busy() {
				all = append(all, kv{key: key.(string), at: sess.LastSeen()})
			}
			return true
		})
		sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
		for i := 0; i < count-s.maxEntries && i < len(all); i++ {
			s.remove(all[i].key, "lru", now.Sub(all[i].at))
		}
	}
}

// evictOldest removes the least recently used idle session.  With every
// session busy it removes nothing and the store grows past its cap.
func (s *Store) evictOldest(now time.Time) {
	var (
		oldest any
		at     time.Time
	)
	s.m.Range(func(key, value any) bool {
		sess := value.(*Session)
		if sess.busy() {
			return true
		}
		if seen := sess.LastSeen(); oldest == nil || seen.Before(at) {
			oldest, at = key, seen
		}
		return true
	})
	if oldest != nil {
		s.remove(oldest, "capacity", now.Sub(at))
	}
}

func (s *Store) remove(key any, reason string, idle time.Duration) {
	if _, loaded := s.m.LoadAndDelete(key); !loaded {
		return
	}
	s.size.Add(-1)
	s.log.Debugw("form session evicted", "session", key, "reason", reason, "idle", idle.Truncate(time.Second))
	metrics.SessionEvictTotal.Inc()
	metrics.ActiveSessions.Dec()
}

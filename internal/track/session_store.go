package track

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clipfocus/continuity/internal/monitoring"
	"github.com/clipfocus/continuity/internal/timeutil"
)

// SessionStore is the registry of sessions, keyed by video id. It owns the
// two pieces of synchronization the core deliberately lacks: a registry
// lock for the map itself, and a per-session lock so at most one tick (or
// selection, or read) runs against a session at a time. Distinct sessions
// proceed fully in parallel.
type SessionStore struct {
	cfg   Config
	clock timeutil.Clock

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	mu         sync.Mutex
	session    *Session
	lastAccess time.Time
}

// SessionSummary describes one live session for listing surfaces.
type SessionSummary struct {
	VideoID       string    `json:"videoId"`
	TrackCount    int       `json:"trackCount"`
	TickCount     int64     `json:"tickCount"`
	StickyID      string    `json:"stickyId,omitempty"`
	LastTimestamp float64   `json:"lastTimestamp"`
	LastAccess    time.Time `json:"lastAccess"`
}

// NewSessionStore creates an empty registry. All sessions it creates use
// cfg; clock stamps session access for idle eviction.
func NewSessionStore(cfg Config, clock timeutil.Clock) *SessionStore {
	return &SessionStore{
		cfg:      cfg,
		clock:    clock,
		sessions: make(map[string]*sessionEntry),
	}
}

// entry returns the session entry for videoID, lazily creating it. An
// unknown id is just an empty session.
func (ss *SessionStore) entry(videoID string) *sessionEntry {
	ss.mu.RLock()
	e, ok := ss.sessions[videoID]
	ss.mu.RUnlock()
	if ok {
		return e
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()
	if e, ok = ss.sessions[videoID]; ok {
		return e
	}
	e = &sessionEntry{
		session:    NewSession(videoID, ss.cfg),
		lastAccess: ss.clock.Now(),
	}
	ss.sessions[videoID] = e
	return e
}

// peek returns the entry without creating one.
func (ss *SessionStore) peek(videoID string) (*sessionEntry, bool) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	e, ok := ss.sessions[videoID]
	return e, ok
}

// Tick runs one tracking pass for the video's session.
func (ss *SessionStore) Tick(videoID string, timestamp float64, detections []Detection, stickyID string, hint *Geometry) []Result {
	results, _ := ss.TickWithCount(videoID, timestamp, detections, stickyID, hint)
	return results
}

// TickWithCount runs one tracking pass and also reports the session's tick
// ordinal after the pass, taken under the same session lock. Persistence
// layers group recorded rows by that ordinal.
func (ss *SessionStore) TickWithCount(videoID string, timestamp float64, detections []Detection, stickyID string, hint *Geometry) ([]Result, int64) {
	e := ss.entry(videoID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastAccess = ss.clock.Now()
	results := e.session.Tick(timestamp, detections, stickyID, hint)
	return results, e.session.TickCount()
}

// Latest returns the most recently persisted track list for the video, or
// an empty list when the session does not exist. Reading never creates a
// session.
func (ss *SessionStore) Latest(videoID string) []Result {
	e, ok := ss.peek(videoID)
	if !ok {
		return []Result{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastAccess = ss.clock.Now()
	return e.session.Latest()
}

// Select establishes or replaces the video's anchor and sticky identity.
func (ss *SessionStore) Select(videoID string, anchor Anchor, timestamp float64) {
	e := ss.entry(videoID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastAccess = ss.clock.Now()
	e.session.Select(anchor, timestamp)
}

// ClearSelection drops the video's anchor and sticky designation. It
// reports whether the session existed.
func (ss *SessionStore) ClearSelection(videoID string) bool {
	e, ok := ss.peek(videoID)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastAccess = ss.clock.Now()
	e.session.ClearSelection()
	return true
}

// Reset tears the session down entirely: tracks, anchor, and the identity
// counter. The next use of the id starts a fresh session.
func (ss *SessionStore) Reset(videoID string) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if _, ok := ss.sessions[videoID]; !ok {
		return false
	}
	delete(ss.sessions, videoID)
	return true
}

// Stats returns the gonum-backed summary for one session.
func (ss *SessionStore) Stats(videoID string) (SessionStats, bool) {
	e, ok := ss.peek(videoID)
	if !ok {
		return SessionStats{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Stats(), true
}

// Count returns the number of live sessions.
func (ss *SessionStore) Count() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.sessions)
}

// Sessions lists summaries for every live session, ordered by video id
// for stable output.
func (ss *SessionStore) Sessions() []SessionSummary {
	ss.mu.RLock()
	entries := make(map[string]*sessionEntry, len(ss.sessions))
	for id, e := range ss.sessions {
		entries[id] = e
	}
	ss.mu.RUnlock()

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	summaries := make([]SessionSummary, 0, len(ids))
	for _, id := range ids {
		e := entries[id]
		e.mu.Lock()
		summaries = append(summaries, SessionSummary{
			VideoID:       id,
			TrackCount:    e.session.TrackCount(),
			TickCount:     e.session.TickCount(),
			StickyID:      e.session.StickyID(),
			LastTimestamp: e.session.LastTimestamp(),
			LastAccess:    e.lastAccess,
		})
		e.mu.Unlock()
	}
	return summaries
}

// EvictIdle removes sessions untouched for longer than ttl and returns the
// video ids that were dropped, sorted for stable output.
func (ss *SessionStore) EvictIdle(ttl time.Duration) []string {
	cutoff := ss.clock.Now().Add(-ttl)

	ss.mu.Lock()
	defer ss.mu.Unlock()
	var evicted []string
	for id, e := range ss.sessions {
		e.mu.Lock()
		idle := e.lastAccess.Before(cutoff)
		e.mu.Unlock()
		if idle {
			delete(ss.sessions, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}

// RunJanitor evicts idle sessions every interval until ctx is done,
// invoking onEvict (if non-nil) for each dropped video id so callers can
// record the eviction. The caller decides whether to run it at all; the
// tracker core itself has no TTL concept.
func (ss *SessionStore) RunJanitor(ctx context.Context, interval, ttl time.Duration, onEvict func(videoID string)) {
	ticker := ss.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			evicted := ss.EvictIdle(ttl)
			if onEvict != nil {
				for _, id := range evicted {
					onEvict(id)
				}
			}
			if len(evicted) > 0 {
				monitoring.Logf("evicted %d idle session(s)", len(evicted))
			}
		}
	}
}

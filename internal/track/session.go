package track

// Session owns all tracking state for one video: the live track list, at
// most one anchor, the identity counter, and the newest media timestamp
// seen. Sessions are created lazily by the SessionStore and torn down only
// by an explicit reset.
//
// A Session is not safe for concurrent use; the SessionStore serializes
// calls per session.
type Session struct {
	VideoID string

	cfg  Config
	gate *Gate

	tracks []*Track
	anchor *Anchor
	alloc  idAllocator

	// stickyID is the identity last named sticky by a selection or tick,
	// used to flag snapshot output. A non-empty per-tick value replaces
	// it; an empty one defers to it.
	stickyID string

	// maxSeenTime is the newest media timestamp observed across all ticks,
	// including zero-detection ones. Seek detection compares against this,
	// not against track LastSeenTime, which stalls while a track is held.
	maxSeenTime float64
	hasTicked   bool

	tickCount int64
}

// NewSession creates an empty session for the given video.
func NewSession(videoID string, cfg Config) *Session {
	return &Session{
		VideoID: videoID,
		cfg:     cfg,
		gate:    NewGate(cfg),
	}
}

// Select establishes or replaces the session's anchor and names the sticky
// identity. If no live track carries that identity yet, a singleton sticky
// track is seeded at the anchor geometry so the next tick has something to
// match against. timestamp is the media time of the selection frame; pass
// a negative value to keep the session's current notion of time.
func (s *Session) Select(anchor Anchor, timestamp float64) {
	a := anchor
	s.anchor = &a
	s.stickyID = anchor.Identity
	s.alloc.reserve(anchor.Identity)

	if timestamp >= 0 && timestamp > s.maxSeenTime {
		s.maxSeenTime = timestamp
	}

	if s.findTrack(anchor.Identity) != nil {
		return
	}
	seen := timestamp
	if seen < 0 {
		seen = s.maxSeenTime
	}
	s.tracks = append(s.tracks, &Track{
		ID:           anchor.Identity,
		Geometry:     anchor.Geometry(),
		Confidence:   s.cfg.SeedConfidence,
		LastSeenTime: seen,
	})
}

// ClearSelection drops the anchor and the sticky designation. Live tracks
// are untouched; the former sticky becomes an ordinary track.
func (s *Session) ClearSelection() {
	s.anchor = nil
	s.stickyID = ""
}

// Anchor returns the current anchor, or nil when no selection is active.
func (s *Session) Anchor() *Anchor {
	return s.anchor
}

// StickyID returns the identity currently designated sticky, or "".
func (s *Session) StickyID() string {
	return s.stickyID
}

// TrackCount returns the number of live tracks.
func (s *Session) TrackCount() int {
	return len(s.tracks)
}

// TickCount returns how many ticks the session has processed.
func (s *Session) TickCount() int64 {
	return s.tickCount
}

// LastTimestamp returns the newest media timestamp the session has seen.
func (s *Session) LastTimestamp() float64 {
	return s.maxSeenTime
}

// Latest returns the most recently persisted track list without running a
// tick, for use as a fallback when the detector is unavailable or
// throttled. Output order is store order, so repeated calls are stable.
func (s *Session) Latest() []Result {
	results := make([]Result, 0, len(s.tracks))
	for _, t := range s.tracks {
		results = append(results, resultFromTrack(t, t.ID == s.stickyID && s.stickyID != ""))
	}
	return results
}

// findTrack returns the live track with the given id, or nil.
func (s *Session) findTrack(id string) *Track {
	for _, t := range s.tracks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// prune removes tracks whose loss counter passed the retention threshold.
func (s *Session) prune() {
	kept := s.tracks[:0]
	for _, t := range s.tracks {
		if t.LostFrameCount <= s.cfg.MaxLostFrames {
			kept = append(kept, t)
		}
	}
	// Release references past the new length so pruned tracks can be
	// collected.
	for i := len(kept); i < len(s.tracks); i++ {
		s.tracks[i] = nil
	}
	s.tracks = kept
}

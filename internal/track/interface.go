package track

import (
	"time"
)

// Service abstracts the session registry for the HTTP layer and tools.
// The interface enables dependency injection and replay testing by
// decoupling the tracking semantics from transport and storage.
type Service interface {
	// Tick runs one tracking pass for the video's session and returns a
	// result per track matched, held, or spawned this tick.
	Tick(videoID string, timestamp float64, detections []Detection, stickyID string, hint *Geometry) []Result

	// TickWithCount is Tick plus the session's tick ordinal after the
	// pass, for persistence layers that group rows by tick.
	TickWithCount(videoID string, timestamp float64, detections []Detection, stickyID string, hint *Geometry) ([]Result, int64)

	// Latest returns the most recently persisted track list without
	// running a tick. Unknown videos yield an empty list.
	Latest(videoID string) []Result

	// Select establishes or replaces the video's anchor and sticky
	// identity, seeding the sticky track if it is not live.
	Select(videoID string, anchor Anchor, timestamp float64)

	// ClearSelection drops the anchor and sticky designation, leaving
	// live tracks alone. Reports whether the session existed.
	ClearSelection(videoID string) bool

	// Reset tears down the whole session: tracks, anchor, id counter.
	Reset(videoID string) bool

	// Stats summarizes one session's live tracks.
	Stats(videoID string) (SessionStats, bool)

	// Sessions lists all live sessions.
	Sessions() []SessionSummary

	// Count returns the number of live sessions.
	Count() int

	// EvictIdle removes sessions untouched for longer than ttl and
	// returns the evicted video ids.
	EvictIdle(ttl time.Duration) []string
}

// Verify at compile time that *SessionStore implements Service.
var _ Service = (*SessionStore)(nil)

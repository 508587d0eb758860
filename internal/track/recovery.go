package track

// recoverFromSeek resynchronizes the session when the incoming timestamp
// has jumped backward past the tolerance: the user scrubbed the video, so
// every live pose describes a moment that is now in the clip's future and
// the sticky gate would reject essentially all post-seek detections
// against them.
//
// With a sticky identity and an anchor, the store is rebuilt around a
// single track at the anchor's selection-time geometry, loss-free and
// timestamped at the incoming instant so the same-tick gate sees a
// near-zero gap. Without an anchor the store is simply cleared and tracks
// repopulate from scratch. Either way the session's time reference resets,
// otherwise every following tick would also look like a seek.
func (s *Session) recoverFromSeek(timestamp float64, stickyID string) {
	if !s.hasTicked || timestamp >= s.maxSeenTime-s.cfg.SeekTolerance {
		return
	}

	s.tracks = nil
	if stickyID != "" && s.anchor != nil {
		s.alloc.reserve(stickyID)
		s.tracks = append(s.tracks, &Track{
			ID:           stickyID,
			Geometry:     s.anchor.Geometry(),
			Confidence:   s.cfg.SeedConfidence,
			LastSeenTime: timestamp,
		})
	}
	s.maxSeenTime = timestamp
}

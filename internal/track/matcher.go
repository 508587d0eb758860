package track

// Tick runs one tracking pass over a frame's detections and returns one
// result per track touched this tick: matched, held (sticky only), or
// newly spawned. Ordinary tracks that merely aged emit nothing.
//
// stickyID names the identity with matching priority for this tick. A
// non-empty value updates the session's selection; an empty one falls
// back to the selection the session already holds, so callers need not
// repeat it every frame. hint is the caller's best-known current geometry
// for the sticky identity, consulted only when that identity is missing
// from the live list (the anchor is the fallback after it).
//
// Each snapshot track is matched or aged exactly once per tick; tracks
// spawned during the tick are neither.
func (s *Session) Tick(timestamp float64, detections []Detection, stickyID string, hint *Geometry) []Result {
	s.tickCount++
	if stickyID != "" {
		s.stickyID = stickyID
	}
	stickyID = s.stickyID

	s.recoverFromSeek(timestamp, stickyID)

	// Matching runs against a snapshot of the list as it stood at entry.
	snapshot := make([]*Track, len(s.tracks))
	copy(snapshot, s.tracks)

	used := make([]bool, len(detections))
	processed := make(map[*Track]bool, len(snapshot))
	results := make([]Result, 0, len(snapshot)+len(detections))

	// Sticky resolution first: the selected subject claims its detection
	// before any other track may.
	if stickyID != "" {
		results = s.resolveSticky(results, timestamp, detections, used, processed, stickyID, hint)
	}

	// Remaining tracks each claim the nearest gate-accepted detection
	// still on the table, in store order.
	for _, tr := range snapshot {
		if processed[tr] {
			continue
		}
		best := s.nearestAccepted(tr, detections, used, timestamp, false)
		if best < 0 {
			continue
		}
		tr.observe(detections[best], timestamp, s.cfg.EmaAlpha, s.cfg.ConfidenceBoost)
		used[best] = true
		processed[tr] = true
		results = append(results, resultFromTrack(tr, false))
	}

	// Unclaimed detections become new tracks with fresh identities.
	for i, d := range detections {
		if used[i] || len(s.tracks) >= s.cfg.MaxTracks {
			continue
		}
		nt := &Track{
			ID:           s.alloc.allocate(),
			Geometry:     d.Geometry(),
			Confidence:   d.Confidence,
			LastSeenTime: timestamp,
		}
		s.tracks = append(s.tracks, nt)
		results = append(results, resultFromTrack(nt, false))
	}

	// Snapshot tracks that never matched age one step.
	for _, tr := range snapshot {
		if processed[tr] {
			continue
		}
		tr.miss(s.cfg.ConfidenceDecay)
	}

	if timestamp > s.maxSeenTime {
		s.maxSeenTime = timestamp
	}
	s.hasTicked = true

	s.prune()
	return results
}

// resolveSticky locates or synthesizes the sticky track and tries to match
// it. A live sticky track that finds no detection is held: geometry
// unmoved, loss counter up, confidence decayed, and its last-known pose
// still emitted so the overlay freezes instead of vanishing or jumping. A
// synthesized candidate that finds no match is discarded without output:
// synthesis is a matching aid, not a resurrection. Otherwise a pruned
// sticky track would reappear every tick for as long as an anchor exists.
func (s *Session) resolveSticky(results []Result, timestamp float64, detections []Detection, used []bool, processed map[*Track]bool, stickyID string, hint *Geometry) []Result {
	sticky := s.findTrack(stickyID)
	synthesized := false

	if sticky == nil {
		var g *Geometry
		switch {
		case hint != nil:
			g = hint
		case s.anchor != nil && s.anchor.Identity == stickyID:
			ag := s.anchor.Geometry()
			g = &ag
		}
		if g == nil {
			// Unrecoverable this tick: no sticky entry.
			return results
		}
		sticky = &Track{
			ID:           stickyID,
			Geometry:     *g,
			Confidence:   s.cfg.SeedConfidence,
			LastSeenTime: timestamp,
		}
		synthesized = true
	}

	// Minimum distance decides among accepted candidates, not highest
	// confidence: the nearest box is the likeliest continuation of the
	// same physical subject.
	best := s.nearestAccepted(sticky, detections, used, timestamp, true)

	if best >= 0 {
		sticky.observe(detections[best], timestamp, s.cfg.StickyEmaAlpha, s.cfg.ConfidenceBoost)
		used[best] = true
		processed[sticky] = true
		if synthesized {
			s.alloc.reserve(stickyID)
			s.tracks = append(s.tracks, sticky)
		}
		return append(results, resultFromTrack(sticky, true))
	}

	if synthesized {
		return results
	}

	sticky.miss(s.cfg.ConfidenceDecay)
	processed[sticky] = true
	return append(results, resultFromTrack(sticky, true))
}

// nearestAccepted returns the index of the gate-accepted unused detection
// closest to the track's center, or -1.
func (s *Session) nearestAccepted(tr *Track, detections []Detection, used []bool, timestamp float64, sticky bool) int {
	best := -1
	bestDist := 0.0
	for i, d := range detections {
		if used[i] {
			continue
		}
		dec := s.gate.Admit(tr, d, timestamp, sticky)
		if !dec.Accept {
			continue
		}
		if best < 0 || dec.Distance < bestDist {
			best = i
			bestDist = dec.Distance
		}
	}
	return best
}

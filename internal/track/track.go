package track

// Track is one identified subject followed across ticks. Tracks are
// mutated in place by the matcher; geometry only ever moves through the
// EMA blend in observe, never by direct assignment, so a single bad frame
// cannot teleport an identity.
type Track struct {
	ID             string
	Geometry       Geometry
	Confidence     float64
	LastSeenTime   float64 // Media time (seconds) of the last matched observation
	LostFrameCount int     // Consecutive ticks without a match
}

// observe folds a matched detection into the track: EMA-blend the geometry
// with weight alpha on the new observation, advance LastSeenTime, reset the
// loss counter, and boost confidence (capped at 1.0).
func (t *Track) observe(d Detection, now, alpha, boost float64) {
	t.Geometry.CenterX += alpha * (d.CenterX - t.Geometry.CenterX)
	t.Geometry.CenterY += alpha * (d.CenterY - t.Geometry.CenterY)
	t.Geometry.Width += alpha * (d.Width - t.Geometry.Width)
	t.Geometry.Height += alpha * (d.Height - t.Geometry.Height)

	t.Confidence = min(1.0, max(t.Confidence, d.Confidence)+boost)
	t.LastSeenTime = now
	t.LostFrameCount = 0
}

// miss records an unmatched tick: the geometry stays where it was, the
// loss counter grows, and confidence decays multiplicatively.
func (t *Track) miss(decay float64) {
	t.LostFrameCount++
	t.Confidence *= decay
}

// Result is one emitted track observation: the stable identity, smoothed
// geometry (center plus derived top-left corner), and current confidence.
// Field names follow the detector wire format.
type Result struct {
	Identity   string  `json:"id"`
	CenterX    float64 `json:"centerX"`
	CenterY    float64 `json:"centerY"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	TopLeftX   float64 `json:"topLeftX"`
	TopLeftY   float64 `json:"topLeftY"`
	Confidence float64 `json:"confidence"`
	Sticky     bool    `json:"sticky"`
	LostFrames int     `json:"lostFrames"`
}

// resultFromTrack shapes a track for output. The top-left corner is
// derived here, at the boundary, from the canonical center form.
func resultFromTrack(t *Track, sticky bool) Result {
	return Result{
		Identity:   t.ID,
		CenterX:    t.Geometry.CenterX,
		CenterY:    t.Geometry.CenterY,
		Width:      t.Geometry.Width,
		Height:     t.Geometry.Height,
		TopLeftX:   t.Geometry.TopLeftX(),
		TopLeftY:   t.Geometry.TopLeftY(),
		Confidence: t.Confidence,
		Sticky:     sticky,
		LostFrames: t.LostFrameCount,
	}
}

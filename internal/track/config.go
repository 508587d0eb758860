package track

// Constants shared by the gate and matcher.
const (
	// minDt guards the implied-speed division against zero elapsed time.
	minDt = 1e-6
	// DefaultSeekTolerance is how far (seconds) a timestamp may run behind
	// the session's newest timestamp before it is treated as a backward seek.
	DefaultSeekTolerance = 0.5
)

// Config holds the tracker thresholds. Distances and radii are in frame
// units (fractions of the frame); speeds are frame units per second.
type Config struct {
	// Ordinary association gate (all three must hold).
	MatchMaxDistance float64 // Max center distance between track and detection
	MatchMinIoU      float64 // Min box overlap
	MaxImpliedSpeed  float64 // Max distance/dt

	// Sticky association gate: distance bound OR overlap bound, plus an
	// independent speed cap. The distance bound grows with the time gap
	// (a fast subject sampled slowly travels further between looks) and is
	// clamped to [StickyMinRadius, StickyMaxRadius].
	StickySpeedScale      float64 // Bound growth per second of gap
	StickyMinRadius       float64 // Lower clamp on the distance bound
	StickyMaxRadius       float64 // Upper clamp on the distance bound
	StickyMinIoU          float64 // Overlap branch, stricter than MatchMinIoU
	StickyMaxImpliedSpeed float64 // Independent speed cap
	MinVelocityDt         float64 // Below this gap, speed caps are skipped

	// Geometry smoothing: weight of the new observation in the EMA blend.
	// The sticky track uses a higher weight so the effect keeps up with a
	// sprinting subject at the cost of some jitter.
	EmaAlpha       float64
	StickyEmaAlpha float64

	// Confidence shaping.
	ConfidenceBoost float64 // Added on each match, capped at 1.0
	ConfidenceDecay float64 // Multiplied on each unmatched tick
	SeedConfidence  float64 // Confidence of tracks seeded from a selection or anchor

	// Lifecycle.
	MaxLostFrames int     // Unmatched ticks tolerated before a track is pruned
	MaxTracks     int     // Per-session cap on concurrent tracks
	SeekTolerance float64 // Backward jump (seconds) that triggers recovery
}

// DefaultConfig returns the tracker configuration used in production.
func DefaultConfig() Config {
	return Config{
		MatchMaxDistance: 0.12,
		MatchMinIoU:      0.05,
		MaxImpliedSpeed:  0.60,

		StickySpeedScale:      0.45,
		StickyMinRadius:       0.08,
		StickyMaxRadius:       0.35,
		StickyMinIoU:          0.30,
		StickyMaxImpliedSpeed: 0.90,
		MinVelocityDt:         0.05,

		EmaAlpha:       0.30,
		StickyEmaAlpha: 0.65,

		ConfidenceBoost: 0.05,
		ConfidenceDecay: 0.90,
		SeedConfidence:  1.0,

		MaxLostFrames: 25,
		MaxTracks:     50,
		SeekTolerance: DefaultSeekTolerance,
	}
}

package track

// GateDecision reports an accept/reject decision together with the
// quantities it was based on, so tests and debug surfaces can see why a
// detection was or was not allowed to extend a track.
type GateDecision struct {
	Accept bool

	// Computed quantities.
	Distance     float64
	IoU          float64
	Dt           float64
	ImpliedSpeed float64

	// Thresholds actually applied.
	DistanceBound float64
	IoUBound      float64
	SpeedBound    float64
	SpeedChecked  bool // False when dt was too small for speed to mean anything
	Sticky        bool
}

// Gate decides whether a detection may extend a track given the elapsed
// time. It is a pure function of its inputs and the configured thresholds.
type Gate struct {
	cfg Config
}

// NewGate returns a gate using the given thresholds.
func NewGate(cfg Config) *Gate {
	return &Gate{cfg: cfg}
}

// Admit evaluates detection d against track t at media time now.
//
// The ordinary policy is conjunctive: close enough AND overlapping enough
// AND not implying impossible speed. The sticky policy is asymmetric:
// strong proximity OR strong overlap is enough (a fast, correctly-tracked
// subject sampled slowly may have zero overlap with its own prior box,
// while a near-stationary one may have noisy distance but stable overlap),
// with an independent speed cap on top. Speed caps are skipped when dt is
// below MinVelocityDt, where distance/dt would be spuriously huge.
func (g *Gate) Admit(t *Track, d Detection, now float64, sticky bool) GateDecision {
	dec := GateDecision{Sticky: sticky}

	dt := now - t.LastSeenTime
	if dt < minDt {
		dt = minDt
	}
	dec.Dt = dt
	dec.Distance = CenterDistance(t.Geometry, d.Geometry())
	dec.IoU = IoU(t.Geometry, d.Geometry())
	dec.ImpliedSpeed = dec.Distance / dt
	dec.SpeedChecked = dt >= g.cfg.MinVelocityDt

	if sticky {
		bound := g.cfg.StickySpeedScale * dt
		bound = max(bound, g.cfg.StickyMinRadius)
		bound = min(bound, g.cfg.StickyMaxRadius)
		dec.DistanceBound = bound
		dec.IoUBound = g.cfg.StickyMinIoU
		dec.SpeedBound = g.cfg.StickyMaxImpliedSpeed

		spatial := dec.Distance <= bound || dec.IoU >= g.cfg.StickyMinIoU
		if dec.SpeedChecked {
			dec.Accept = spatial && dec.ImpliedSpeed <= g.cfg.StickyMaxImpliedSpeed
		} else {
			dec.Accept = spatial
		}
		return dec
	}

	dec.DistanceBound = g.cfg.MatchMaxDistance
	dec.IoUBound = g.cfg.MatchMinIoU
	dec.SpeedBound = g.cfg.MaxImpliedSpeed

	dec.Accept = dec.Distance <= g.cfg.MatchMaxDistance &&
		dec.IoU >= g.cfg.MatchMinIoU
	if dec.Accept && dec.SpeedChecked {
		dec.Accept = dec.ImpliedSpeed <= g.cfg.MaxImpliedSpeed
	}
	return dec
}

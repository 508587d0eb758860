// Package track implements the continuity tracker: a stateful online
// multi-object tracker that turns anonymous per-frame bounding-box
// detections into stable identities, with one selected identity given
// sticky, recoverable, loss-tolerant priority.
//
// All geometry is normalized to the frame: coordinates and sizes are
// fractions of frame width/height in [0, 1]. Timestamps are media time in
// seconds. The core packages perform no I/O and no locking; callers
// serialize access per session (SessionStore does this at the service
// boundary).
package track

import "math"

// Geometry is the canonical bounding-box representation: center plus size,
// normalized to the frame. Top-left corners are derived at the output
// boundary, never stored (the anchor's verbatim corner is the one
// exception, see Anchor).
type Geometry struct {
	CenterX float64
	CenterY float64
	Width   float64
	Height  float64
}

// TopLeftX returns the derived left edge of the box.
func (g Geometry) TopLeftX() float64 { return g.CenterX - g.Width/2 }

// TopLeftY returns the derived top edge of the box.
func (g Geometry) TopLeftY() float64 { return g.CenterY - g.Height/2 }

// Area returns the box area in squared frame units.
func (g Geometry) Area() float64 { return g.Width * g.Height }

// CenterDistance returns the Euclidean distance between two box centers.
func CenterDistance(a, b Geometry) float64 {
	dx := a.CenterX - b.CenterX
	dy := a.CenterY - b.CenterY
	return math.Sqrt(dx*dx + dy*dy)
}

// IoU returns the Intersection-over-Union of two axis-aligned boxes.
// Degenerate (zero-area) boxes yield 0 rather than an error so that the
// gate math degrades instead of failing on bad detector output.
func IoU(a, b Geometry) float64 {
	ax1, ay1 := a.TopLeftX(), a.TopLeftY()
	ax2, ay2 := ax1+a.Width, ay1+a.Height
	bx1, by1 := b.TopLeftX(), b.TopLeftY()
	bx2, by2 := bx1+b.Width, by1+b.Height

	ix := min(ax2, bx2) - max(ax1, bx1)
	iy := min(ay2, by2) - max(ay1, by1)
	if ix <= 0 || iy <= 0 {
		return 0
	}

	inter := ix * iy
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

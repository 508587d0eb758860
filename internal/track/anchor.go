package track

// Anchor records the selected subject's identity and geometry exactly as
// the user picked it. It is written only by an explicit selection call and
// cleared the same way; ticks never touch it. SeekRecovery and the sticky
// resolution step fall back to it when the live track is gone.
//
// The top-left corner is kept verbatim from the selection rather than
// re-derived from the center each time, so repeated center/corner
// round-trips cannot compound rounding error into the recovery pose.
type Anchor struct {
	Identity string
	CenterX  float64
	CenterY  float64
	Width    float64
	Height   float64
	TopLeftX float64
	TopLeftY float64
}

// Geometry returns the anchor's box in the canonical center form.
func (a Anchor) Geometry() Geometry {
	return Geometry{
		CenterX: a.CenterX,
		CenterY: a.CenterY,
		Width:   a.Width,
		Height:  a.Height,
	}
}

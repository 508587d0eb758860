package track

// Detection is one anonymous bounding box from the external detector.
// Detections carry no identity; the tracker assigns one. Zero or more
// arrive per tick, in no particular order.
type Detection struct {
	CenterX    float64
	CenterY    float64
	Width      float64
	Height     float64
	Confidence float64
}

// Geometry returns the detection's box in the canonical representation.
func (d Detection) Geometry() Geometry {
	return Geometry{
		CenterX: d.CenterX,
		CenterY: d.CenterY,
		Width:   d.Width,
		Height:  d.Height,
	}
}

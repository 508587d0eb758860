package track

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// SessionStats summarizes the live tracks of one session for the stats
// endpoint and the replay summary.
type SessionStats struct {
	VideoID          string  `json:"videoId"`
	TrackCount       int     `json:"trackCount"`
	TickCount        int64   `json:"tickCount"`
	StickyID         string  `json:"stickyId,omitempty"`
	StickyLive       bool    `json:"stickyLive"`
	MeanConfidence   float64 `json:"meanConfidence"`
	MedianConfidence float64 `json:"medianConfidence"`
	MinConfidence    float64 `json:"minConfidence"`
	MaxConfidence    float64 `json:"maxConfidence"`
	MeanLostFrames   float64 `json:"meanLostFrames"`
	LastTimestamp    float64 `json:"lastTimestamp"`
}

// Stats computes summary statistics over the session's live tracks. An
// empty session yields zeros rather than NaNs so JSON consumers never see
// non-finite numbers.
func (s *Session) Stats() SessionStats {
	st := SessionStats{
		VideoID:       s.VideoID,
		TrackCount:    len(s.tracks),
		TickCount:     s.tickCount,
		StickyID:      s.stickyID,
		StickyLive:    s.stickyID != "" && s.findTrack(s.stickyID) != nil,
		LastTimestamp: s.maxSeenTime,
	}
	if len(s.tracks) == 0 {
		return st
	}

	confs := make([]float64, 0, len(s.tracks))
	lost := make([]float64, 0, len(s.tracks))
	for _, t := range s.tracks {
		confs = append(confs, t.Confidence)
		lost = append(lost, float64(t.LostFrameCount))
	}
	sort.Float64s(confs)

	st.MeanConfidence = stat.Mean(confs, nil)
	st.MedianConfidence = stat.Quantile(0.5, stat.Empirical, confs, nil)
	st.MinConfidence = confs[0]
	st.MaxConfidence = confs[len(confs)-1]
	st.MeanLostFrames = stat.Mean(lost, nil)
	return st
}

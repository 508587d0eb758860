// Package api exposes the tracker over HTTP: one tick endpoint driven by
// the detector cadence, selection and session management endpoints, and
// read-only surfaces for the player overlay and debugging.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/clipfocus/continuity/internal/db"
	"github.com/clipfocus/continuity/internal/httputil"
	"github.com/clipfocus/continuity/internal/monitoring"
	"github.com/clipfocus/continuity/internal/track"
	"github.com/clipfocus/continuity/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DetectionPayload is one anonymous detector box on the wire.
type DetectionPayload struct {
	CenterX    float64 `json:"centerX"`
	CenterY    float64 `json:"centerY"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
}

func (p DetectionPayload) detection() track.Detection {
	return track.Detection{
		CenterX:    p.CenterX,
		CenterY:    p.CenterY,
		Width:      p.Width,
		Height:     p.Height,
		Confidence: p.Confidence,
	}
}

// GeometryPayload carries a bare box, used for the sticky recovery hint.
type GeometryPayload struct {
	CenterX float64 `json:"centerX"`
	CenterY float64 `json:"centerY"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

func (p GeometryPayload) geometry() track.Geometry {
	return track.Geometry{
		CenterX: p.CenterX,
		CenterY: p.CenterY,
		Width:   p.Width,
		Height:  p.Height,
	}
}

// AnchorPayload is the selection payload: identity plus geometry, with the
// clicked top-left corner carried verbatim rather than re-derived.
type AnchorPayload struct {
	Identity string  `json:"id"`
	CenterX  float64 `json:"centerX"`
	CenterY  float64 `json:"centerY"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	TopLeftX float64 `json:"topLeftX"`
	TopLeftY float64 `json:"topLeftY"`
}

func (p AnchorPayload) anchor() track.Anchor {
	return track.Anchor{
		Identity: p.Identity,
		CenterX:  p.CenterX,
		CenterY:  p.CenterY,
		Width:    p.Width,
		Height:   p.Height,
		TopLeftX: p.TopLeftX,
		TopLeftY: p.TopLeftY,
	}
}

// TrackRequest is the per-frame tick request from the detector pipeline.
type TrackRequest struct {
	VideoID    string             `json:"videoId"`
	Timestamp  float64            `json:"timestamp"`
	Detections []DetectionPayload `json:"detections"`
	StickyID   string             `json:"stickyId,omitempty"`
	Hint       *GeometryPayload   `json:"hint,omitempty"`
}

// TrackResponse carries the tracks emitted by one tick, or the latest
// persisted list for read endpoints.
type TrackResponse struct {
	VideoID   string         `json:"videoId"`
	Timestamp float64        `json:"timestamp"`
	Tick      int64          `json:"tick,omitempty"`
	Tracks    []track.Result `json:"tracks"`
}

// SelectRequest establishes the sticky selection for one video. A nil
// timestamp keeps the session's current media time.
type SelectRequest struct {
	VideoID   string        `json:"videoId"`
	Timestamp *float64      `json:"timestamp,omitempty"`
	Anchor    AnchorPayload `json:"anchor"`
}

// VideoRequest addresses one session by video id.
type VideoRequest struct {
	VideoID string `json:"videoId"`
}

// Server wires the session registry and the optional event log to HTTP.
type Server struct {
	tracker track.Service
	db      *db.DB
}

// NewServer creates an API server. database may be nil, which disables
// event recording; tracking behaves identically either way.
func NewServer(tracker track.Service, database *db.DB) *Server {
	return &Server{
		tracker: tracker,
		db:      database,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/track", s.handleTick)
	mux.HandleFunc("/api/track/latest", s.showLatest)
	mux.HandleFunc("/api/track/select", s.handleSelect)
	mux.HandleFunc("/api/track/clear", s.handleClearSelection)
	mux.HandleFunc("/api/track/stats", s.showStats)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/reset", s.handleReset)
	mux.HandleFunc("/api/health", s.showHealth)
	mux.HandleFunc("/debug/tracks", s.showTracksChart)
	mux.HandleFunc("/debug/sessions", s.showSessionsDashboard)
	return mux
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.VideoID == "" {
		httputil.BadRequest(w, "videoId is required")
		return
	}
	if req.Timestamp < 0 {
		httputil.BadRequest(w, "timestamp must be non-negative")
		return
	}

	// Degenerate zero-area boxes are dropped at the boundary; the tracker
	// tolerates them but they carry no overlap signal.
	detections := make([]track.Detection, 0, len(req.Detections))
	for _, d := range req.Detections {
		if d.Width <= 0 || d.Height <= 0 {
			continue
		}
		detections = append(detections, d.detection())
	}
	var hint *track.Geometry
	if req.Hint != nil {
		g := req.Hint.geometry()
		hint = &g
	}

	results, tick := s.tracker.TickWithCount(req.VideoID, req.Timestamp, detections, req.StickyID, hint)

	// Recording is an audit trail; a storage failure must not fail the tick.
	if s.db != nil {
		if err := s.db.RecordTick(req.VideoID, tick, req.Timestamp, results); err != nil {
			monitoring.Logf("failed to record tick %d for %s: %v", tick, req.VideoID, err)
		}
	}

	httputil.WriteJSONOK(w, TrackResponse{
		VideoID:   req.VideoID,
		Timestamp: req.Timestamp,
		Tick:      tick,
		Tracks:    results,
	})
}

func (s *Server) showLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	videoID := r.URL.Query().Get("videoId")
	if videoID == "" {
		httputil.BadRequest(w, "videoId query parameter is required")
		return
	}

	// An unknown video is just an empty session, not an error.
	httputil.WriteJSONOK(w, TrackResponse{
		VideoID: videoID,
		Tracks:  s.tracker.Latest(videoID),
	})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.VideoID == "" {
		httputil.BadRequest(w, "videoId is required")
		return
	}
	if req.Anchor.Identity == "" {
		httputil.BadRequest(w, "anchor id is required")
		return
	}

	timestamp := -1.0
	if req.Timestamp != nil {
		timestamp = *req.Timestamp
	}

	s.tracker.Select(req.VideoID, req.Anchor.anchor(), timestamp)

	if s.db != nil {
		if err := s.db.RecordSelection(req.VideoID, req.Anchor.anchor(), timestamp); err != nil {
			monitoring.Logf("failed to record selection for %s: %v", req.VideoID, err)
		}
	}

	httputil.WriteJSONOK(w, map[string]string{
		"status":   "ok",
		"stickyId": req.Anchor.Identity,
	})
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req VideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.VideoID == "" {
		httputil.BadRequest(w, "videoId is required")
		return
	}

	cleared := s.tracker.ClearSelection(req.VideoID)

	if s.db != nil && cleared {
		if err := s.db.RecordSelectionCleared(req.VideoID); err != nil {
			monitoring.Logf("failed to record selection clear for %s: %v", req.VideoID, err)
		}
	}

	httputil.WriteJSONOK(w, map[string]bool{"cleared": cleared})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req VideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.VideoID == "" {
		httputil.BadRequest(w, "videoId is required")
		return
	}

	reset := s.tracker.Reset(req.VideoID)

	if s.db != nil && reset {
		if err := s.db.RecordSessionEvent(req.VideoID, "reset"); err != nil {
			monitoring.Logf("failed to record session reset for %s: %v", req.VideoID, err)
		}
	}

	httputil.WriteJSONOK(w, map[string]bool{"reset": reset})
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	videoID := r.URL.Query().Get("videoId")
	if videoID == "" {
		httputil.BadRequest(w, "videoId query parameter is required")
		return
	}

	stats, ok := s.tracker.Stats(videoID)
	if !ok {
		httputil.NotFound(w, "no session for video")
		return
	}

	httputil.WriteJSONOK(w, stats)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, s.tracker.Sessions())
}

func (s *Server) showHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":    "ok",
		"service":   "continuity",
		"version":   version.Version,
		"sessions":  s.tracker.Count(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

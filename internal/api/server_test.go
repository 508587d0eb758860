package api

import (
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/clipfocus/continuity/internal/db"
	"github.com/clipfocus/continuity/internal/monitoring"
	"github.com/clipfocus/continuity/internal/testutil"
	"github.com/clipfocus/continuity/internal/timeutil"
	"github.com/clipfocus/continuity/internal/track"
)

func newTestServer() (*Server, *track.SessionStore) {
	store := track.NewSessionStore(track.DefaultConfig(), timeutil.RealClock{})
	return NewServer(store, nil), store
}

func newTestDatabase(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	migFS, err := db.MigrationsFS()
	if err != nil {
		t.Fatalf("Failed to get migrations FS: %v", err)
	}
	if err := database.MigrateUp(migFS); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return database
}

func detPayload(x, y float64) DetectionPayload {
	return DetectionPayload{CenterX: x, CenterY: y, Width: 0.10, Height: 0.20, Confidence: 0.9}
}

func TestHandleTick_SpawnsTracks(t *testing.T) {
	server, _ := newTestServer()
	mux := server.ServeMux()

	rec := testutil.PostJSON(t, mux, "/api/track", TrackRequest{
		VideoID:    "v1",
		Timestamp:  0.0,
		Detections: []DetectionPayload{detPayload(0.50, 0.50), detPayload(0.20, 0.30)},
	})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var resp TrackResponse
	testutil.DecodeJSON(t, rec, &resp)

	if resp.VideoID != "v1" || resp.Tick != 1 {
		t.Errorf("response = (%q, tick %d), want (v1, tick 1)", resp.VideoID, resp.Tick)
	}
	if len(resp.Tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(resp.Tracks))
	}
	if resp.Tracks[0].Identity != "player_1" || resp.Tracks[1].Identity != "player_2" {
		t.Errorf("identities = %q, %q, want player_1, player_2", resp.Tracks[0].Identity, resp.Tracks[1].Identity)
	}
	if math.Abs(resp.Tracks[0].TopLeftX-0.45) > 1e-9 {
		t.Errorf("TopLeftX = %v, want 0.45", resp.Tracks[0].TopLeftX)
	}
}

func postRaw(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleTick_WireFormat(t *testing.T) {
	server, _ := newTestServer()
	mux := server.ServeMux()

	// Field names follow the detector wire format; pin them with a raw body.
	body := `{"videoId":"v1","timestamp":0.5,"detections":[{"centerX":0.5,"centerY":0.5,"width":0.1,"height":0.2,"confidence":0.9}]}`
	rec := postRaw(t, mux, "/api/track", body)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	out := rec.Body.String()
	for _, key := range []string{`"id":"player_1"`, `"centerX":0.5`, `"topLeftX":0.45`, `"sticky":false`, `"lostFrames":0`} {
		if !strings.Contains(out, key) {
			t.Errorf("response %s missing %s", out, key)
		}
	}
}

func TestHandleTick_Validation(t *testing.T) {
	server, _ := newTestServer()
	mux := server.ServeMux()

	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{"missing videoId", TrackRequest{Timestamp: 0.0}, http.StatusBadRequest},
		{"negative timestamp", TrackRequest{VideoID: "v1", Timestamp: -1.0}, http.StatusBadRequest},
		{"malformed body", "not json", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testutil.PostJSON(t, mux, "/api/track", tt.body)
			testutil.AssertStatusCode(t, rec.Code, tt.want)
		})
	}

	rec := testutil.Get(t, mux, "/api/track")
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestHandleTick_DropsZeroAreaDetections(t *testing.T) {
	server, _ := newTestServer()
	mux := server.ServeMux()

	rec := testutil.PostJSON(t, mux, "/api/track", TrackRequest{
		VideoID:   "v1",
		Timestamp: 0.0,
		Detections: []DetectionPayload{
			detPayload(0.50, 0.50),
			{CenterX: 0.20, CenterY: 0.20, Width: 0, Height: 0.20, Confidence: 0.9},
		},
	})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var resp TrackResponse
	testutil.DecodeJSON(t, rec, &resp)
	if len(resp.Tracks) != 1 || resp.Tracks[0].Identity != "player_1" {
		t.Errorf("tracks = %+v, want only player_1 after dropping the zero-area box", resp.Tracks)
	}
}

func TestStickySelectionFlow(t *testing.T) {
	server, _ := newTestServer()
	mux := server.ServeMux()

	rec := testutil.PostJSON(t, mux, "/api/track", TrackRequest{
		VideoID:    "v1",
		Timestamp:  0.0,
		Detections: []DetectionPayload{detPayload(0.50, 0.50)},
	})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	rec = testutil.PostJSON(t, mux, "/api/track/select", SelectRequest{
		VideoID: "v1",
		Anchor: AnchorPayload{
			Identity: "player_1",
			CenterX:  0.50, CenterY: 0.50,
			Width: 0.10, Height: 0.20,
			TopLeftX: 0.45, TopLeftY: 0.40,
		},
	})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	// An empty tick holds the selected subject instead of dropping it. The
	// session remembers the selection; the tick itself need not repeat it.
	rec = testutil.PostJSON(t, mux, "/api/track", TrackRequest{VideoID: "v1", Timestamp: 0.1})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var resp TrackResponse
	testutil.DecodeJSON(t, rec, &resp)
	if len(resp.Tracks) != 1 {
		t.Fatalf("expected 1 held track, got %d", len(resp.Tracks))
	}
	held := resp.Tracks[0]
	if !held.Sticky || held.Identity != "player_1" {
		t.Errorf("held = %+v, want sticky player_1", held)
	}
	if held.LostFrames != 1 {
		t.Errorf("LostFrames = %d, want 1", held.LostFrames)
	}
	if math.Abs(held.CenterX-0.50) > 1e-9 {
		t.Errorf("held geometry moved to %v, want 0.50", held.CenterX)
	}
}

func TestHandleTick_StickyHintSynthesis(t *testing.T) {
	server, _ := newTestServer()
	mux := server.ServeMux()

	// A sticky identity unknown to the session is synthesized from the
	// caller's hint and persisted on match.
	rec := testutil.PostJSON(t, mux, "/api/track", TrackRequest{
		VideoID:    "v1",
		Timestamp:  0.0,
		Detections: []DetectionPayload{detPayload(0.70, 0.40)},
		StickyID:   "player_9",
		Hint:       &GeometryPayload{CenterX: 0.70, CenterY: 0.40, Width: 0.10, Height: 0.20},
	})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var resp TrackResponse
	testutil.DecodeJSON(t, rec, &resp)
	if len(resp.Tracks) != 1 || !resp.Tracks[0].Sticky || resp.Tracks[0].Identity != "player_9" {
		t.Fatalf("tracks = %+v, want one sticky player_9", resp.Tracks)
	}

	// The external identity reserves the counter so later spawns don't
	// collide with it.
	rec = testutil.PostJSON(t, mux, "/api/track", TrackRequest{
		VideoID:    "v1",
		Timestamp:  0.1,
		Detections: []DetectionPayload{detPayload(0.70, 0.40), detPayload(0.20, 0.80)},
	})
	testutil.DecodeJSON(t, rec, &resp)
	for _, tr := range resp.Tracks {
		if tr.Identity != "player_9" && tr.Identity != "player_10" {
			t.Errorf("unexpected identity %q, want player_9 or player_10", tr.Identity)
		}
	}
}

func TestSeekRecoveryOverHTTP(t *testing.T) {
	server, _ := newTestServer()
	mux := server.ServeMux()

	testutil.PostJSON(t, mux, "/api/track", TrackRequest{
		VideoID:    "v1",
		Timestamp:  1.0,
		Detections: []DetectionPayload{detPayload(0.50, 0.50)},
	})
	testutil.PostJSON(t, mux, "/api/track/select", SelectRequest{
		VideoID: "v1",
		Anchor: AnchorPayload{
			Identity: "player_1",
			CenterX:  0.50, CenterY: 0.50,
			Width: 0.10, Height: 0.20,
			TopLeftX: 0.45, TopLeftY: 0.40,
		},
	})

	// Jump back past the tolerance; the session reseeds at the anchor and
	// reacquires the subject there.
	rec := testutil.PostJSON(t, mux, "/api/track", TrackRequest{
		VideoID:    "v1",
		Timestamp:  0.2,
		Detections: []DetectionPayload{detPayload(0.50, 0.50)},
	})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var resp TrackResponse
	testutil.DecodeJSON(t, rec, &resp)
	if len(resp.Tracks) != 1 {
		t.Fatalf("expected 1 track after seek, got %d", len(resp.Tracks))
	}
	got := resp.Tracks[0]
	if got.Identity != "player_1" || !got.Sticky || got.LostFrames != 0 {
		t.Errorf("after seek = %+v, want live sticky player_1", got)
	}
	if math.Abs(got.CenterX-0.50) > 1e-9 {
		t.Errorf("CenterX = %v, want anchor position 0.50", got.CenterX)
	}
}

func TestHandleSelect_Validation(t *testing.T) {
	server, _ := newTestServer()
	mux := server.ServeMux()

	rec := testutil.PostJSON(t, mux, "/api/track/select", SelectRequest{
		Anchor: AnchorPayload{Identity: "player_1"},
	})
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = testutil.PostJSON(t, mux, "/api/track/select", SelectRequest{VideoID: "v1"})
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = testutil.Get(t, mux, "/api/track/select")
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestShowLatest(t *testing.T) {
	server, store := newTestServer()
	mux := server.ServeMux()

	testutil.PostJSON(t, mux, "/api/track", TrackRequest{
		VideoID:    "v1",
		Timestamp:  0.0,
		Detections: []DetectionPayload{detPayload(0.50, 0.50)},
	})

	rec := testutil.Get(t, mux, "/api/track/latest?videoId=v1")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var resp TrackResponse
	testutil.DecodeJSON(t, rec, &resp)
	if len(resp.Tracks) != 1 || resp.Tracks[0].Identity != "player_1" {
		t.Errorf("latest = %+v, want player_1", resp.Tracks)
	}

	// Unknown video: empty list, and no session springs into being.
	rec = testutil.Get(t, mux, "/api/track/latest?videoId=ghost")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	testutil.DecodeJSON(t, rec, &resp)
	if len(resp.Tracks) != 0 {
		t.Errorf("ghost video returned %d tracks, want 0", len(resp.Tracks))
	}
	if store.Count() != 1 {
		t.Errorf("session count = %d, want 1 (reads must not create sessions)", store.Count())
	}

	rec = testutil.Get(t, mux, "/api/track/latest")
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}

func TestHandleClearSelection(t *testing.T) {
	server, _ := newTestServer()
	mux := server.ServeMux()

	rec := testutil.PostJSON(t, mux, "/api/track/clear", VideoRequest{VideoID: "ghost"})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var resp map[string]bool
	testutil.DecodeJSON(t, rec, &resp)
	if resp["cleared"] {
		t.Error("cleared = true for a missing session")
	}

	testutil.PostJSON(t, mux, "/api/track", TrackRequest{
		VideoID:    "v1",
		Timestamp:  0.0,
		Detections: []DetectionPayload{detPayload(0.50, 0.50)},
	})
	testutil.PostJSON(t, mux, "/api/track/select", SelectRequest{
		VideoID: "v1",
		Anchor:  AnchorPayload{Identity: "player_1", CenterX: 0.50, CenterY: 0.50, Width: 0.10, Height: 0.20, TopLeftX: 0.45, TopLeftY: 0.40},
	})

	rec = testutil.PostJSON(t, mux, "/api/track/clear", VideoRequest{VideoID: "v1"})
	testutil.DecodeJSON(t, rec, &resp)
	if !resp["cleared"] {
		t.Error("cleared = false for a live selection")
	}
}

func TestHandleReset(t *testing.T) {
	server, _ := newTestServer()
	mux := server.ServeMux()

	testutil.PostJSON(t, mux, "/api/track", TrackRequest{
		VideoID:    "v1",
		Timestamp:  0.0,
		Detections: []DetectionPayload{detPayload(0.50, 0.50)},
	})

	rec := testutil.PostJSON(t, mux, "/api/sessions/reset", VideoRequest{VideoID: "v1"})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var resp map[string]bool
	testutil.DecodeJSON(t, rec, &resp)
	if !resp["reset"] {
		t.Error("reset = false for a live session")
	}

	// The identity counter starts over with the session.
	rec = testutil.PostJSON(t, mux, "/api/track", TrackRequest{
		VideoID:    "v1",
		Timestamp:  0.0,
		Detections: []DetectionPayload{detPayload(0.10, 0.10)},
	})
	var tresp TrackResponse
	testutil.DecodeJSON(t, rec, &tresp)
	if len(tresp.Tracks) != 1 || tresp.Tracks[0].Identity != "player_1" {
		t.Errorf("after reset = %+v, want fresh player_1", tresp.Tracks)
	}
}

func TestShowStats(t *testing.T) {
	server, _ := newTestServer()
	mux := server.ServeMux()

	rec := testutil.Get(t, mux, "/api/track/stats?videoId=ghost")
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)

	testutil.PostJSON(t, mux, "/api/track", TrackRequest{
		VideoID:    "v1",
		Timestamp:  0.0,
		Detections: []DetectionPayload{detPayload(0.30, 0.30), detPayload(0.70, 0.70)},
	})

	rec = testutil.Get(t, mux, "/api/track/stats?videoId=v1")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var stats track.SessionStats
	testutil.DecodeJSON(t, rec, &stats)
	if stats.TrackCount != 2 || stats.TickCount != 1 {
		t.Errorf("stats = %+v, want 2 tracks over 1 tick", stats)
	}
	if math.Abs(stats.MeanConfidence-0.9) > 1e-9 {
		t.Errorf("MeanConfidence = %v, want 0.9", stats.MeanConfidence)
	}
}

func TestListSessions(t *testing.T) {
	server, _ := newTestServer()
	mux := server.ServeMux()

	testutil.PostJSON(t, mux, "/api/track", TrackRequest{VideoID: "vb", Timestamp: 0.0})
	testutil.PostJSON(t, mux, "/api/track", TrackRequest{VideoID: "va", Timestamp: 0.0})

	rec := testutil.Get(t, mux, "/api/sessions")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var sessions []track.SessionSummary
	testutil.DecodeJSON(t, rec, &sessions)
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].VideoID != "va" || sessions[1].VideoID != "vb" {
		t.Errorf("order = [%q, %q], want [va, vb]", sessions[0].VideoID, sessions[1].VideoID)
	}
}

func TestShowHealth(t *testing.T) {
	server, _ := newTestServer()
	mux := server.ServeMux()

	rec := testutil.Get(t, mux, "/api/health")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var health map[string]interface{}
	testutil.DecodeJSON(t, rec, &health)
	if health["status"] != "ok" || health["service"] != "continuity" {
		t.Errorf("health = %+v, want status ok, service continuity", health)
	}
	if _, ok := health["version"]; !ok {
		t.Error("health response missing version")
	}
}

func TestTickPersistsEvents(t *testing.T) {
	database := newTestDatabase(t)
	store := track.NewSessionStore(track.DefaultConfig(), timeutil.RealClock{})
	server := NewServer(store, database)
	mux := server.ServeMux()

	rec := testutil.PostJSON(t, mux, "/api/track", TrackRequest{
		VideoID:    "v1",
		Timestamp:  0.5,
		Detections: []DetectionPayload{detPayload(0.50, 0.50)},
	})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	events, err := database.LatestTracks("v1")
	if err != nil {
		t.Fatalf("LatestTracks failed: %v", err)
	}
	if len(events) != 1 || events[0].TrackID != "player_1" {
		t.Fatalf("recorded events = %+v, want one player_1 row", events)
	}
	if events[0].Tick != 1 || math.Abs(events[0].MediaTime-0.5) > 1e-9 {
		t.Errorf("event = tick %d at %v, want tick 1 at 0.5", events[0].Tick, events[0].MediaTime)
	}

	testutil.PostJSON(t, mux, "/api/track/select", SelectRequest{
		VideoID: "v1",
		Anchor:  AnchorPayload{Identity: "player_1", CenterX: 0.50, CenterY: 0.50, Width: 0.10, Height: 0.20, TopLeftX: 0.45, TopLeftY: 0.40},
	})
	testutil.PostJSON(t, mux, "/api/sessions/reset", VideoRequest{VideoID: "v1"})

	var selections, resets int
	if err := database.QueryRow(`SELECT COUNT(*) FROM selection_events WHERE video_id='v1'`).Scan(&selections); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if err := database.QueryRow(`SELECT COUNT(*) FROM session_events WHERE video_id='v1' AND action='reset'`).Scan(&resets); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if selections != 1 || resets != 1 {
		t.Errorf("persisted events = (%d selections, %d resets), want (1, 1)", selections, resets)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var logged []string
	old := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		logged = append(logged, fmt.Sprintf(format, v...))
	})
	defer func() { monitoring.Logf = old }()

	server, _ := newTestServer()
	h := LoggingMiddleware(server.ServeMux())

	rec := testutil.Get(t, h, "/api/health")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	if len(logged) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(logged))
	}
	if !strings.Contains(logged[0], "GET") || !strings.Contains(logged[0], "/api/health") {
		t.Errorf("log line = %q, want method and path", logged[0])
	}
}

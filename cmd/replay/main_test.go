package main

import (
	"math"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/plot/plotter"

	"github.com/clipfocus/continuity/internal/api"
	"github.com/clipfocus/continuity/internal/db"
	"github.com/clipfocus/continuity/internal/timeutil"
	"github.com/clipfocus/continuity/internal/track"
)

// sampleCapture walks one subject through the full lifecycle: spawn,
// selection, a sticky match, clearing, and an empty frame. The first line
// omits "type" to cover the plain-frame-dump shorthand.
const sampleCapture = `{"timestamp": 0.0, "detections": [{"centerX": 0.50, "centerY": 0.50, "width": 0.10, "height": 0.20, "confidence": 0.9}]}
{"type": "select", "timestamp": 0.0, "anchor": {"id": "player_1", "centerX": 0.50, "centerY": 0.50, "width": 0.10, "height": 0.20, "topLeftX": 0.45, "topLeftY": 0.40}}

{"type": "tick", "timestamp": 0.1, "detections": [{"centerX": 0.51, "centerY": 0.50, "width": 0.10, "height": 0.20, "confidence": 0.9}]}
{"type": "clear"}
{"type": "tick", "timestamp": 0.2}
`

func newLocalDriver(database *db.DB) *localDriver {
	return &localDriver{
		store: track.NewSessionStore(track.DefaultConfig(), timeutil.RealClock{}),
		db:    database,
		video: "clip-1",
	}
}

func checkSampleSummary(t *testing.T, summary *replaySummary) {
	t.Helper()

	if summary.Ticks != 3 || summary.Selects != 1 || summary.Clears != 1 {
		t.Errorf("counts = (%d ticks, %d selects, %d clears), want (3, 1, 1)",
			summary.Ticks, summary.Selects, summary.Clears)
	}
	if len(summary.Trajectories) != 1 {
		t.Fatalf("saw %d identities, want 1", len(summary.Trajectories))
	}

	// Two emitted observations: the spawn and the sticky match. The empty
	// frame after clearing produces no output, so no third point.
	traj := summary.Trajectories["player_1"]
	if len(traj) != 2 {
		t.Fatalf("trajectory has %d points, want 2", len(traj))
	}
	if math.Abs(traj[0].X-0.50) > 1e-9 || math.Abs(traj[0].Y-0.50) > 1e-9 {
		t.Errorf("first point = (%v, %v), want (0.50, 0.50)", traj[0].X, traj[0].Y)
	}
	wantX := 0.50 + track.DefaultConfig().StickyEmaAlpha*(0.51-0.50)
	if math.Abs(traj[1].X-wantX) > 1e-9 {
		t.Errorf("second point x = %v, want blended %v", traj[1].X, wantX)
	}

	if !summary.StickySeen["player_1"] {
		t.Error("sticky match was not recorded in the summary")
	}
}

func TestRunReplay_Local(t *testing.T) {
	drv := newLocalDriver(nil)

	summary, err := runReplay(drv, strings.NewReader(sampleCapture))
	if err != nil {
		t.Fatalf("runReplay failed: %v", err)
	}
	checkSampleSummary(t, summary)

	st, err := drv.stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if st.VideoID != "clip-1" || st.TickCount != 3 || st.TrackCount != 1 {
		t.Errorf("stats = %+v, want video clip-1 with 3 ticks and 1 track", st)
	}
	if st.StickyID != "" {
		t.Errorf("StickyID = %q after clear, want empty", st.StickyID)
	}
	if math.Abs(st.LastTimestamp-0.2) > 1e-9 {
		t.Errorf("LastTimestamp = %v, want 0.2", st.LastTimestamp)
	}
}

func TestRunReplay_Remote(t *testing.T) {
	store := track.NewSessionStore(track.DefaultConfig(), timeutil.RealClock{})
	srv := httptest.NewServer(api.NewServer(store, nil).ServeMux())
	defer srv.Close()

	drv := &remoteDriver{client: api.NewClient(srv.URL, nil), video: "clip-1"}

	summary, err := runReplay(drv, strings.NewReader(sampleCapture))
	if err != nil {
		t.Fatalf("runReplay failed: %v", err)
	}
	checkSampleSummary(t, summary)

	st, err := drv.stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if st.TickCount != 3 || st.TrackCount != 1 {
		t.Errorf("stats = %+v, want 3 ticks and 1 track", st)
	}
}

func TestRunReplay_RecordsToDatabase(t *testing.T) {
	database, err := db.OpenDB(filepath.Join(t.TempDir(), "replay.db"))
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	migFS, err := db.MigrationsFS()
	if err != nil {
		t.Fatalf("MigrationsFS failed: %v", err)
	}
	if err := database.MigrateUp(migFS); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	drv := newLocalDriver(database)
	if _, err := runReplay(drv, strings.NewReader(sampleCapture)); err != nil {
		t.Fatalf("runReplay failed: %v", err)
	}

	// The empty final frame emits nothing, so the newest recorded tick is
	// the sticky match at tick 2.
	events, err := database.LatestTracks("clip-1")
	if err != nil {
		t.Fatalf("LatestTracks failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("latest tick holds %d rows, want 1", len(events))
	}
	ev := events[0]
	if ev.TrackID != "player_1" || ev.Tick != 2 || !ev.Sticky {
		t.Errorf("recorded event = %+v, want sticky player_1 at tick 2", ev)
	}
	if math.Abs(ev.MediaTime-0.1) > 1e-9 {
		t.Errorf("MediaTime = %v, want 0.1", ev.MediaTime)
	}

	var selections int
	if err := database.QueryRow(`SELECT COUNT(*) FROM selection_events WHERE video_id = 'clip-1'`).Scan(&selections); err != nil {
		t.Fatalf("count selection_events: %v", err)
	}
	if selections != 2 {
		t.Errorf("selection_events rows = %d, want 2 (select plus clear)", selections)
	}
}

func TestRunReplay_BadInput(t *testing.T) {
	tests := []struct {
		name    string
		capture string
		wantErr string
	}{
		{
			name:    "malformed json",
			capture: "{\"timestamp\": 0.0}\n{oops\n",
			wantErr: "line 2",
		},
		{
			name:    "tick without timestamp",
			capture: "{\"type\": \"tick\"}\n",
			wantErr: "tick without timestamp",
		},
		{
			name:    "select without anchor",
			capture: "{\"type\": \"select\", \"timestamp\": 1.0}\n",
			wantErr: "select without anchor",
		},
		{
			name:    "unknown event type",
			capture: "{\"type\": \"explode\"}\n",
			wantErr: "unknown event type \"explode\"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runReplay(newLocalDriver(nil), strings.NewReader(tt.capture))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestSavePlot(t *testing.T) {
	summary := &replaySummary{
		Trajectories: map[string]plotter.XYs{
			"player_1": {{X: 0.50, Y: 0.50}, {X: 0.51, Y: 0.50}},
			"player_2": {{X: 0.20, Y: 0.80}, {X: 0.21, Y: 0.79}},
		},
		StickySeen: map[string]bool{"player_1": true},
	}

	path := filepath.Join(t.TempDir(), "trajectories.png")
	if err := savePlot(path, "clip-1", summary); err != nil {
		t.Fatalf("savePlot failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat plot: %v", err)
	}
	if info.Size() == 0 {
		t.Error("plot file is empty")
	}
}

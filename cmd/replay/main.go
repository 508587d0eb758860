// Command replay drives the tracker from a JSONL capture of detector
// frames, either in-process or against a running server, and reports the
// session statistics afterwards. Captures hold one event per line: tick
// events carry a timestamp and detections, select events an anchor, and
// clear events nothing. This is the main offline tool for reproducing
// tracking behavior and comparing tuning configs against recorded clips.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"image/color"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/clipfocus/continuity/internal/api"
	"github.com/clipfocus/continuity/internal/config"
	"github.com/clipfocus/continuity/internal/db"
	"github.com/clipfocus/continuity/internal/timeutil"
	"github.com/clipfocus/continuity/internal/track"
)

// replayEvent is one line of a capture. A missing type means "tick" so
// plain frame dumps replay without annotation.
type replayEvent struct {
	Type       string                 `json:"type,omitempty"`
	Timestamp  *float64               `json:"timestamp,omitempty"`
	Detections []api.DetectionPayload `json:"detections,omitempty"`
	StickyID   string                 `json:"stickyId,omitempty"`
	Hint       *api.GeometryPayload   `json:"hint,omitempty"`
	Anchor     *api.AnchorPayload     `json:"anchor,omitempty"`
}

// driver abstracts where the replay lands: the in-process store or a
// remote server over the typed client.
type driver interface {
	tick(timestamp float64, detections []track.Detection, stickyID string, hint *track.Geometry) ([]track.Result, error)
	selectAnchor(anchor track.Anchor, timestamp float64) error
	clearSelection() error
	stats() (track.SessionStats, error)
}

type localDriver struct {
	store *track.SessionStore
	db    *db.DB
	video string
}

func (d *localDriver) tick(timestamp float64, detections []track.Detection, stickyID string, hint *track.Geometry) ([]track.Result, error) {
	results, tick := d.store.TickWithCount(d.video, timestamp, detections, stickyID, hint)
	if d.db != nil {
		if err := d.db.RecordTick(d.video, tick, timestamp, results); err != nil {
			return nil, fmt.Errorf("record tick %d: %w", tick, err)
		}
	}
	return results, nil
}

func (d *localDriver) selectAnchor(anchor track.Anchor, timestamp float64) error {
	d.store.Select(d.video, anchor, timestamp)
	if d.db != nil {
		if err := d.db.RecordSelection(d.video, anchor, timestamp); err != nil {
			return fmt.Errorf("record selection: %w", err)
		}
	}
	return nil
}

func (d *localDriver) clearSelection() error {
	if d.store.ClearSelection(d.video) && d.db != nil {
		return d.db.RecordSelectionCleared(d.video)
	}
	return nil
}

func (d *localDriver) stats() (track.SessionStats, error) {
	st, ok := d.store.Stats(d.video)
	if !ok {
		return track.SessionStats{}, fmt.Errorf("no session for %s", d.video)
	}
	return st, nil
}

type remoteDriver struct {
	client *api.Client
	video  string
}

func (d *remoteDriver) tick(timestamp float64, detections []track.Detection, stickyID string, hint *track.Geometry) ([]track.Result, error) {
	return d.client.Track(d.video, timestamp, detections, stickyID, hint)
}

func (d *remoteDriver) selectAnchor(anchor track.Anchor, timestamp float64) error {
	return d.client.Select(d.video, anchor, timestamp)
}

func (d *remoteDriver) clearSelection() error {
	return d.client.ClearSelection(d.video)
}

func (d *remoteDriver) stats() (track.SessionStats, error) {
	return d.client.Stats(d.video)
}

func toDetections(payloads []api.DetectionPayload) []track.Detection {
	detections := make([]track.Detection, 0, len(payloads))
	for _, p := range payloads {
		// Same boundary rule as the HTTP adapter: zero-area boxes are dropped.
		if p.Width <= 0 || p.Height <= 0 {
			continue
		}
		detections = append(detections, track.Detection{
			CenterX:    p.CenterX,
			CenterY:    p.CenterY,
			Width:      p.Width,
			Height:     p.Height,
			Confidence: p.Confidence,
		})
	}
	return detections
}

func toGeometry(p *api.GeometryPayload) *track.Geometry {
	if p == nil {
		return nil
	}
	return &track.Geometry{
		CenterX: p.CenterX,
		CenterY: p.CenterY,
		Width:   p.Width,
		Height:  p.Height,
	}
}

func toAnchor(p api.AnchorPayload) track.Anchor {
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

// replaySummary accumulates what the replay saw: event counts and the
// per-identity center trajectory (y flipped to match the video frame).
type replaySummary struct {
	Ticks        int
	Selects      int
	Clears       int
	Trajectories map[string]plotter.XYs
	StickySeen   map[string]bool
}

func runReplay(drv driver, r io.Reader) (*replaySummary, error) {
	summary := &replaySummary{
		Trajectories: make(map[string]plotter.XYs),
		StickySeen:   make(map[string]bool),
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var event replayEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		switch event.Type {
		case "", "tick":
			if event.Timestamp == nil {
				return nil, fmt.Errorf("line %d: tick without timestamp", lineNo)
			}
			results, err := drv.tick(*event.Timestamp, toDetections(event.Detections), event.StickyID, toGeometry(event.Hint))
			if err != nil {
				return nil, fmt.Errorf("line %d: tick failed: %w", lineNo, err)
			}
			summary.Ticks++
			for _, res := range results {
				summary.Trajectories[res.Identity] = append(summary.Trajectories[res.Identity],
					plotter.XY{X: res.CenterX, Y: 1 - res.CenterY})
				if res.Sticky {
					summary.StickySeen[res.Identity] = true
				}
			}
			if summary.Ticks%1000 == 0 {
				log.Printf("replayed %d ticks...", summary.Ticks)
			}

		case "select":
			if event.Anchor == nil {
				return nil, fmt.Errorf("line %d: select without anchor", lineNo)
			}
			timestamp := -1.0
			if event.Timestamp != nil {
				timestamp = *event.Timestamp
			}
			if err := drv.selectAnchor(toAnchor(*event.Anchor), timestamp); err != nil {
				return nil, fmt.Errorf("line %d: select failed: %w", lineNo, err)
			}
			summary.Selects++

		case "clear":
			if err := drv.clearSelection(); err != nil {
				return nil, fmt.Errorf("line %d: clear failed: %w", lineNo, err)
			}
			summary.Clears++

		default:
			return nil, fmt.Errorf("line %d: unknown event type %q", lineNo, event.Type)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	return summary, nil
}

// line palette for non-sticky tracks; the sticky track is drawn red.
var palette = []color.Color{
	color.RGBA{R: 0x31, G: 0x68, B: 0x8e, A: 0xff},
	color.RGBA{R: 0x26, G: 0x82, B: 0x8e, A: 0xff},
	color.RGBA{R: 0x1f, G: 0x9e, B: 0x89, A: 0xff},
	color.RGBA{R: 0x35, G: 0xb7, B: 0x79, A: 0xff},
	color.RGBA{R: 0x6e, G: 0xce, B: 0x58, A: 0xff},
	color.RGBA{R: 0xb5, G: 0xde, B: 0x2b, A: 0xff},
	color.RGBA{R: 0x48, G: 0x27, B: 0x77, A: 0xff},
	color.RGBA{R: 0x3e, G: 0x49, B: 0x89, A: 0xff},
}

func savePlot(path, videoID string, summary *replaySummary) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Track trajectories - %s", videoID)
	p.X.Label.Text = "frame x"
	p.Y.Label.Text = "frame y (flipped)"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1

	ids := make([]string, 0, len(summary.Trajectories))
	for id := range summary.Trajectories {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for i, id := range ids {
		line, err := plotter.NewLine(summary.Trajectories[id])
		if err != nil {
			return err
		}
		line.Color = palette[i%len(palette)]
		line.Width = vg.Points(1)
		if summary.StickySeen[id] {
			line.Color = color.RGBA{R: 0xff, G: 0x52, B: 0x52, A: 0xff}
			line.Width = vg.Points(2)
		}
		p.Add(line)
		p.Legend.Add(id, line)
	}

	p.Legend.Top = true
	return p.Save(8*vg.Inch, 8*vg.Inch, path)
}

func main() {
	var input string
	var videoID string
	var serverURL string
	var dbPath string
	var configPath string
	var plotPath string

	flag.StringVar(&input, "input", "", "path to a JSONL capture (required)")
	flag.StringVar(&videoID, "video", "", "video id for the session (default: generated run id)")
	flag.StringVar(&serverURL, "server", "", "drive a remote tracker at this base URL instead of running in-process")
	flag.StringVar(&dbPath, "db", "", "record ticks to this SQLite file (in-process mode only)")
	flag.StringVar(&configPath, "config", "", "tuning config JSON for in-process mode")
	flag.StringVar(&plotPath, "plot", "", "write a PNG of the track trajectories to this path")
	flag.Parse()

	if input == "" {
		log.Fatal("input file is required")
	}
	if videoID == "" {
		videoID = fmt.Sprintf("replay-%s", uuid.New().String())
	}

	var drv driver
	if serverURL != "" {
		if dbPath != "" {
			log.Fatal("-db applies to in-process mode only; the server owns recording")
		}
		if configPath != "" {
			log.Fatal("-config applies to in-process mode only; the server owns tuning")
		}
		drv = &remoteDriver{client: api.NewClient(serverURL, nil), video: videoID}
	} else {
		cfg := track.DefaultConfig()
		if configPath != "" {
			tuning, err := config.LoadTuningConfig(configPath)
			if err != nil {
				log.Fatalf("load tuning config: %v", err)
			}
			cfg = tuning.TrackerConfig()
		}

		local := &localDriver{
			store: track.NewSessionStore(cfg, timeutil.RealClock{}),
			video: videoID,
		}
		if dbPath != "" {
			database, err := db.OpenDB(dbPath)
			if err != nil {
				log.Fatalf("open db: %v", err)
			}
			defer database.Close()
			migFS, err := db.MigrationsFS()
			if err != nil {
				log.Fatalf("load migrations: %v", err)
			}
			if err := database.MigrateUp(migFS); err != nil {
				log.Fatalf("migrate db: %v", err)
			}
			local.db = database
		}
		drv = local
	}

	f, err := os.Open(input)
	if err != nil {
		log.Fatalf("open input: %v", err)
	}
	defer f.Close()

	log.Printf("replaying %s as session %s", input, videoID)

	summary, err := runReplay(drv, f)
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}

	fmt.Printf("replayed %d ticks, %d selects, %d clears (%d identities)\n",
		summary.Ticks, summary.Selects, summary.Clears, len(summary.Trajectories))

	st, err := drv.stats()
	if err != nil {
		log.Printf("stats unavailable: %v", err)
	} else {
		fmt.Printf("session %s: %d live tracks over %d ticks, last timestamp %.3f\n",
			st.VideoID, st.TrackCount, st.TickCount, st.LastTimestamp)
		fmt.Printf("confidence: mean=%.3f median=%.3f min=%.3f max=%.3f\n",
			st.MeanConfidence, st.MedianConfidence, st.MinConfidence, st.MaxConfidence)
		fmt.Printf("mean lost frames: %.2f\n", st.MeanLostFrames)
		if st.StickyID != "" {
			fmt.Printf("sticky: %s (live=%v)\n", st.StickyID, st.StickyLive)
		}
	}

	if plotPath != "" {
		if err := savePlot(plotPath, videoID, summary); err != nil {
			log.Fatalf("save plot: %v", err)
		}
		log.Printf("wrote trajectory plot to %s", plotPath)
	}
}

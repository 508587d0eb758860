// Package db persists tracker output to SQLite: per-tick track events,
// selection changes, and session lifecycle events. The tracker core never
// touches this package; the API server and the replay tool write through
// it after each tick.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/clipfocus/continuity/internal/track"
)

type DB struct {
	*sql.DB
}

// OpenDB opens (creating if needed) the SQLite database at path. The
// schema itself is managed by migrations, not here; run MigrateUp after
// opening.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Single writer with WAL keeps readers unblocked during tick bursts.
	_, err = db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
		PRAGMA foreign_keys = ON;
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	return &DB{db}, nil
}

// TrackEvent is one persisted track observation from one tick.
type TrackEvent struct {
	VideoID    string  `json:"videoId"`
	Tick       int64   `json:"tick"`
	MediaTime  float64 `json:"mediaTime"`
	TrackID    string  `json:"id"`
	CenterX    float64 `json:"centerX"`
	CenterY    float64 `json:"centerY"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	TopLeftX   float64 `json:"topLeftX"`
	TopLeftY   float64 `json:"topLeftY"`
	Confidence float64 `json:"confidence"`
	Sticky     bool    `json:"sticky"`
	LostFrames int     `json:"lostFrames"`
	RecordedAt string  `json:"recordedAt"`
}

func (e *TrackEvent) String() string {
	return fmt.Sprintf(
		"VideoID: %s, Tick: %d, MediaTime: %f, TrackID: %s, Center: (%f, %f), Size: (%f, %f), Confidence: %f, Sticky: %v, LostFrames: %d",
		e.VideoID, e.Tick, e.MediaTime, e.TrackID,
		e.CenterX, e.CenterY, e.Width, e.Height,
		e.Confidence, e.Sticky, e.LostFrames,
	)
}

// RecordTick persists every result of one tracking pass in a single
// transaction. A tick with no results writes nothing.
func (db *DB) RecordTick(videoID string, tick int64, mediaTime float64, results []track.Result) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO track_events (
		video_id, tick, media_time, track_id,
		center_x, center_y, width, height,
		top_left_x, top_left_y,
		confidence, sticky, lost_frames
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		sticky := 0
		if r.Sticky {
			sticky = 1
		}
		if _, err := stmt.Exec(
			videoID, tick, mediaTime, r.Identity,
			r.CenterX, r.CenterY, r.Width, r.Height,
			r.TopLeftX, r.TopLeftY,
			r.Confidence, sticky, r.LostFrames,
		); err != nil {
			return fmt.Errorf("failed to insert track event: %w", err)
		}
	}

	return tx.Commit()
}

// RecordSelection persists a selection call, anchor corners verbatim.
func (db *DB) RecordSelection(videoID string, anchor track.Anchor, mediaTime float64) error {
	_, err := db.Exec(`INSERT INTO selection_events (
		video_id, identity, action, media_time,
		center_x, center_y, width, height, top_left_x, top_left_y
	) VALUES (?, ?, 'select', ?, ?, ?, ?, ?, ?, ?)`,
		videoID, anchor.Identity, mediaTime,
		anchor.CenterX, anchor.CenterY, anchor.Width, anchor.Height,
		anchor.TopLeftX, anchor.TopLeftY,
	)
	if err != nil {
		return fmt.Errorf("failed to insert selection event: %w", err)
	}
	return nil
}

// RecordSelectionCleared persists a clear-selection call.
func (db *DB) RecordSelectionCleared(videoID string) error {
	_, err := db.Exec(
		`INSERT INTO selection_events (video_id, identity, action, media_time) VALUES (?, '', 'clear', 0)`,
		videoID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert clear event: %w", err)
	}
	return nil
}

// RecordSessionEvent persists a session lifecycle event ("reset" or
// "evict").
func (db *DB) RecordSessionEvent(videoID, action string) error {
	_, err := db.Exec(
		`INSERT INTO session_events (video_id, action) VALUES (?, ?)`,
		videoID, action,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session event: %w", err)
	}
	return nil
}

// LatestTracks returns the track events of the newest recorded tick for a
// video, in insertion order.
func (db *DB) LatestTracks(videoID string) ([]TrackEvent, error) {
	rows, err := db.Query(`SELECT video_id, tick, media_time, track_id,
			center_x, center_y, width, height, top_left_x, top_left_y,
			confidence, sticky, lost_frames, recorded_at
		FROM track_events
		WHERE video_id = ? AND tick = (
			SELECT MAX(tick) FROM track_events WHERE video_id = ?
		)
		ORDER BY id`, videoID, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrackEvents(rows)
}

// TrackHistory returns up to limit recorded observations of one identity,
// newest first.
func (db *DB) TrackHistory(videoID, trackID string, limit int) ([]TrackEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.Query(`SELECT video_id, tick, media_time, track_id,
			center_x, center_y, width, height, top_left_x, top_left_y,
			confidence, sticky, lost_frames, recorded_at
		FROM track_events
		WHERE video_id = ? AND track_id = ?
		ORDER BY tick DESC LIMIT ?`, videoID, trackID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrackEvents(rows)
}

func scanTrackEvents(rows *sql.Rows) ([]TrackEvent, error) {
	var events []TrackEvent
	for rows.Next() {
		var ev TrackEvent
		var sticky int
		if err := rows.Scan(
			&ev.VideoID,
			&ev.Tick,
			&ev.MediaTime,
			&ev.TrackID,
			&ev.CenterX,
			&ev.CenterY,
			&ev.Width,
			&ev.Height,
			&ev.TopLeftX,
			&ev.TopLeftY,
			&ev.Confidence,
			&sticky,
			&ev.LostFrames,
			&ev.RecordedAt,
		); err != nil {
			return nil, err
		}
		ev.Sticky = sticky != 0
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// SessionRecording summarizes what has been persisted for one video.
type SessionRecording struct {
	VideoID    string  `json:"videoId"`
	EventCount int64   `json:"eventCount"`
	TrackCount int64   `json:"trackCount"`
	LastTick   int64   `json:"lastTick"`
	LastMedia  float64 `json:"lastMediaTime"`
}

// SessionRecordings lists per-video persistence summaries, most recently
// active first.
func (db *DB) SessionRecordings() ([]SessionRecording, error) {
	rows, err := db.Query(`SELECT video_id,
			COUNT(*),
			COUNT(DISTINCT track_id),
			MAX(tick),
			MAX(media_time)
		FROM track_events
		GROUP BY video_id
		ORDER BY MAX(id) DESC LIMIT 100`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []SessionRecording
	for rows.Next() {
		var rec SessionRecording
		if err := rows.Scan(&rec.VideoID, &rec.EventCount, &rec.TrackCount, &rec.LastTick, &rec.LastMedia); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return recs, nil
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://continuity.db", db.DB, &tailsql.DBOptions{
		Label: "Continuity DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		// Send the backup file to the client
		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()

		// Copy the backup file content to the gzip writer
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/clipfocus/continuity/internal/track"
)

func TestLoadTuning_Defaults(t *testing.T) {
	cfg, err := loadTuning("")
	if err != nil {
		t.Fatalf("loadTuning failed: %v", err)
	}
	if cfg.TrackerConfig() != track.DefaultConfig() {
		t.Error("empty path should yield the built-in defaults")
	}
}

func TestLoadTuning_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.json")
	if err := os.WriteFile(path, []byte(`{"ema_alpha": 0.5, "session_ttl": "10m"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadTuning(path)
	if err != nil {
		t.Fatalf("loadTuning failed: %v", err)
	}
	if got := cfg.TrackerConfig().EmaAlpha; got != 0.5 {
		t.Errorf("EmaAlpha = %v, want 0.5", got)
	}
	if got := cfg.GetSessionTTL(); got != 10*time.Minute {
		t.Errorf("SessionTTL = %v, want 10m", got)
	}

	// Fields the file omits keep their defaults.
	if got := cfg.TrackerConfig().MaxTracks; got != track.DefaultConfig().MaxTracks {
		t.Errorf("MaxTracks = %d, want default %d", got, track.DefaultConfig().MaxTracks)
	}
}

func TestLoadTuning_Errors(t *testing.T) {
	if _, err := loadTuning(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for a missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"ema_alpha": 7}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadTuning(path); err == nil {
		t.Error("expected error for an out-of-range value")
	}
}

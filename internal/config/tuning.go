package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/clipfocus/continuity/internal/track"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tracker tuning
// parameters. The schema matches the /api/track/params endpoint so the
// same JSON can be used for both startup configuration and runtime
// updates. All fields are pointers: nil means "use the built-in default",
// so partial configs are safe.
type TuningConfig struct {
	// Ordinary association gate
	MatchMaxDistance *float64 `json:"match_max_distance,omitempty"`
	MatchMinIoU      *float64 `json:"match_min_iou,omitempty"`
	MaxImpliedSpeed  *float64 `json:"max_implied_speed,omitempty"`

	// Sticky association gate
	StickySpeedScale      *float64 `json:"sticky_speed_scale,omitempty"`
	StickyMinRadius       *float64 `json:"sticky_min_radius,omitempty"`
	StickyMaxRadius       *float64 `json:"sticky_max_radius,omitempty"`
	StickyMinIoU          *float64 `json:"sticky_min_iou,omitempty"`
	StickyMaxImpliedSpeed *float64 `json:"sticky_max_implied_speed,omitempty"`
	MinVelocityDt         *float64 `json:"min_velocity_dt,omitempty"`

	// Geometry smoothing
	EmaAlpha       *float64 `json:"ema_alpha,omitempty"`
	StickyEmaAlpha *float64 `json:"sticky_ema_alpha,omitempty"`

	// Confidence shaping
	ConfidenceBoost *float64 `json:"confidence_boost,omitempty"`
	ConfidenceDecay *float64 `json:"confidence_decay,omitempty"`
	SeedConfidence  *float64 `json:"seed_confidence,omitempty"`

	// Lifecycle
	MaxLostFrames *int     `json:"max_lost_frames,omitempty"`
	MaxTracks     *int     `json:"max_tracks,omitempty"`
	SeekTolerance *float64 `json:"seek_tolerance,omitempty"`

	// Service params (not part of the tracker core)
	SessionTTL      *string `json:"session_ttl,omitempty"`      // duration string like "30m"
	JanitorInterval *string `json:"janitor_interval,omitempty"` // duration string like "5m"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from a file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON file retain their
// default values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath. It searches for the file in the current directory
// and common parent directories. Panics if the file cannot be loaded,
// intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	checkUnit := func(name string, v *float64) error {
		if v != nil && (*v <= 0 || *v > 1) {
			return fmt.Errorf("%s must be in (0, 1], got %f", name, *v)
		}
		return nil
	}
	checkNonNegative := func(name string, v *float64) error {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
		return nil
	}
	checkPositive := func(name string, v *float64) error {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
		return nil
	}

	for _, err := range []error{
		checkUnit("ema_alpha", c.EmaAlpha),
		checkUnit("sticky_ema_alpha", c.StickyEmaAlpha),
		checkUnit("confidence_decay", c.ConfidenceDecay),
		checkUnit("match_min_iou", c.MatchMinIoU),
		checkUnit("sticky_min_iou", c.StickyMinIoU),
		checkNonNegative("confidence_boost", c.ConfidenceBoost),
		checkNonNegative("seed_confidence", c.SeedConfidence),
		checkNonNegative("seek_tolerance", c.SeekTolerance),
		checkNonNegative("min_velocity_dt", c.MinVelocityDt),
		checkPositive("match_max_distance", c.MatchMaxDistance),
		checkPositive("max_implied_speed", c.MaxImpliedSpeed),
		checkPositive("sticky_speed_scale", c.StickySpeedScale),
		checkPositive("sticky_min_radius", c.StickyMinRadius),
		checkPositive("sticky_max_radius", c.StickyMaxRadius),
		checkPositive("sticky_max_implied_speed", c.StickyMaxImpliedSpeed),
	} {
		if err != nil {
			return err
		}
	}

	if c.StickyMinRadius != nil && c.StickyMaxRadius != nil && *c.StickyMinRadius > *c.StickyMaxRadius {
		return fmt.Errorf("sticky_min_radius %f exceeds sticky_max_radius %f", *c.StickyMinRadius, *c.StickyMaxRadius)
	}
	if c.MaxLostFrames != nil && *c.MaxLostFrames < 0 {
		return fmt.Errorf("max_lost_frames must be non-negative, got %d", *c.MaxLostFrames)
	}
	if c.MaxTracks != nil && *c.MaxTracks < 1 {
		return fmt.Errorf("max_tracks must be at least 1, got %d", *c.MaxTracks)
	}

	if c.SessionTTL != nil && *c.SessionTTL != "" {
		if _, err := time.ParseDuration(*c.SessionTTL); err != nil {
			return fmt.Errorf("invalid session_ttl '%s': %w", *c.SessionTTL, err)
		}
	}
	if c.JanitorInterval != nil && *c.JanitorInterval != "" {
		if _, err := time.ParseDuration(*c.JanitorInterval); err != nil {
			return fmt.Errorf("invalid janitor_interval '%s': %w", *c.JanitorInterval, err)
		}
	}

	return nil
}

// TrackerConfig resolves the tuning values against the built-in tracker
// defaults: every nil field falls back to track.DefaultConfig().
func (c *TuningConfig) TrackerConfig() track.Config {
	cfg := track.DefaultConfig()

	if c.MatchMaxDistance != nil {
		cfg.MatchMaxDistance = *c.MatchMaxDistance
	}
	if c.MatchMinIoU != nil {
		cfg.MatchMinIoU = *c.MatchMinIoU
	}
	if c.MaxImpliedSpeed != nil {
		cfg.MaxImpliedSpeed = *c.MaxImpliedSpeed
	}
	if c.StickySpeedScale != nil {
		cfg.StickySpeedScale = *c.StickySpeedScale
	}
	if c.StickyMinRadius != nil {
		cfg.StickyMinRadius = *c.StickyMinRadius
	}
	if c.StickyMaxRadius != nil {
		cfg.StickyMaxRadius = *c.StickyMaxRadius
	}
	if c.StickyMinIoU != nil {
		cfg.StickyMinIoU = *c.StickyMinIoU
	}
	if c.StickyMaxImpliedSpeed != nil {
		cfg.StickyMaxImpliedSpeed = *c.StickyMaxImpliedSpeed
	}
	if c.MinVelocityDt != nil {
		cfg.MinVelocityDt = *c.MinVelocityDt
	}
	if c.EmaAlpha != nil {
		cfg.EmaAlpha = *c.EmaAlpha
	}
	if c.StickyEmaAlpha != nil {
		cfg.StickyEmaAlpha = *c.StickyEmaAlpha
	}
	if c.ConfidenceBoost != nil {
		cfg.ConfidenceBoost = *c.ConfidenceBoost
	}
	if c.ConfidenceDecay != nil {
		cfg.ConfidenceDecay = *c.ConfidenceDecay
	}
	if c.SeedConfidence != nil {
		cfg.SeedConfidence = *c.SeedConfidence
	}
	if c.MaxLostFrames != nil {
		cfg.MaxLostFrames = *c.MaxLostFrames
	}
	if c.MaxTracks != nil {
		cfg.MaxTracks = *c.MaxTracks
	}
	if c.SeekTolerance != nil {
		cfg.SeekTolerance = *c.SeekTolerance
	}

	return cfg
}

// GetSessionTTL parses and returns the SessionTTL as a time.Duration.
// An explicit "0s" disables idle eviction; the caller checks for that.
func (c *TuningConfig) GetSessionTTL() time.Duration {
	if c.SessionTTL == nil || *c.SessionTTL == "" {
		return 30 * time.Minute // default
	}
	d, err := time.ParseDuration(*c.SessionTTL)
	if err != nil {
		return 30 * time.Minute // default on parse error
	}
	return d
}

// GetJanitorInterval parses and returns the JanitorInterval as a time.Duration.
func (c *TuningConfig) GetJanitorInterval() time.Duration {
	if c.JanitorInterval == nil || *c.JanitorInterval == "" {
		return 5 * time.Minute // default
	}
	d, err := time.ParseDuration(*c.JanitorInterval)
	if err != nil {
		return 5 * time.Minute // default on parse error
	}
	return d
}

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/clipfocus/continuity/internal/httputil"
	"github.com/clipfocus/continuity/internal/track"
)

// Client is a typed HTTP client for the tracking API. The replay tool uses
// it to drive a remote tracker; tests inject a MockHTTPClient.
type Client struct {
	baseURL string
	http    httputil.HTTPClient
}

// NewClient creates a client for the API at baseURL. A nil hc falls back
// to the default HTTP client.
func NewClient(baseURL string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    hc,
	}
}

func (c *Client) postJSON(path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func (c *Client) getJSON(path string, out interface{}) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Track posts one frame of detections and returns the emitted tracks.
func (c *Client) Track(videoID string, timestamp float64, detections []track.Detection, stickyID string, hint *track.Geometry) ([]track.Result, error) {
	req := TrackRequest{
		VideoID:   videoID,
		Timestamp: timestamp,
		StickyID:  stickyID,
	}
	req.Detections = make([]DetectionPayload, 0, len(detections))
	for _, d := range detections {
		req.Detections = append(req.Detections, DetectionPayload{
			CenterX:    d.CenterX,
			CenterY:    d.CenterY,
			Width:      d.Width,
			Height:     d.Height,
			Confidence: d.Confidence,
		})
	}
	if hint != nil {
		req.Hint = &GeometryPayload{
			CenterX: hint.CenterX,
			CenterY: hint.CenterY,
			Width:   hint.Width,
			Height:  hint.Height,
		}
	}

	var resp TrackResponse
	if err := c.postJSON("/api/track", req, &resp); err != nil {
		return nil, err
	}
	return resp.Tracks, nil
}

// Latest fetches the most recent tracks without running a tick.
func (c *Client) Latest(videoID string) ([]track.Result, error) {
	var resp TrackResponse
	if err := c.getJSON("/api/track/latest?videoId="+url.QueryEscape(videoID), &resp); err != nil {
		return nil, err
	}
	return resp.Tracks, nil
}

// Select establishes the sticky selection. A negative timestamp keeps the
// session's current media time.
func (c *Client) Select(videoID string, anchor track.Anchor, timestamp float64) error {
	req := SelectRequest{
		VideoID: videoID,
		Anchor: AnchorPayload{
			Identity: anchor.Identity,
			CenterX:  anchor.CenterX,
			CenterY:  anchor.CenterY,
			Width:    anchor.Width,
			Height:   anchor.Height,
			TopLeftX: anchor.TopLeftX,
			TopLeftY: anchor.TopLeftY,
		},
	}
	if timestamp >= 0 {
		req.Timestamp = &timestamp
	}
	return c.postJSON("/api/track/select", req, nil)
}

// ClearSelection drops the sticky selection.
func (c *Client) ClearSelection(videoID string) error {
	return c.postJSON("/api/track/clear", VideoRequest{VideoID: videoID}, nil)
}

// Reset tears down the video's session entirely.
func (c *Client) Reset(videoID string) error {
	return c.postJSON("/api/sessions/reset", VideoRequest{VideoID: videoID}, nil)
}

// Stats fetches the session's summary statistics.
func (c *Client) Stats(videoID string) (track.SessionStats, error) {
	var stats track.SessionStats
	if err := c.getJSON("/api/track/stats?videoId="+url.QueryEscape(videoID), &stats); err != nil {
		return track.SessionStats{}, err
	}
	return stats, nil
}

// Health checks that the server is up.
func (c *Client) Health() error {
	return c.getJSON("/api/health", nil)
}

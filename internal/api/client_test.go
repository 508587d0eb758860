package api

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipfocus/continuity/internal/httputil"
	"github.com/clipfocus/continuity/internal/timeutil"
	"github.com/clipfocus/continuity/internal/track"
)

func TestClient_TrackRoundTrip(t *testing.T) {
	store := track.NewSessionStore(track.DefaultConfig(), timeutil.RealClock{})
	srv := httptest.NewServer(NewServer(store, nil).ServeMux())
	defer srv.Close()

	client := NewClient(srv.URL, nil)

	results, err := client.Track("v1", 0.0, []track.Detection{
		{CenterX: 0.50, CenterY: 0.50, Width: 0.10, Height: 0.20, Confidence: 0.9},
	}, "", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "player_1", results[0].Identity)

	err = client.Select("v1", track.Anchor{
		Identity: "player_1",
		CenterX:  0.50, CenterY: 0.50,
		Width: 0.10, Height: 0.20,
		TopLeftX: 0.45, TopLeftY: 0.40,
	}, 0.0)
	require.NoError(t, err)

	latest, err := client.Latest("v1")
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.True(t, latest[0].Sticky)

	stats, err := client.Stats("v1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TrackCount)
	assert.Equal(t, "player_1", stats.StickyID)

	require.NoError(t, client.ClearSelection("v1"))
	require.NoError(t, client.Reset("v1"))
	require.NoError(t, client.Health())
}

func TestClient_SendsHint(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `{"videoId":"v1","timestamp":2.5,"tick":7,"tracks":[]}`)

	client := NewClient("http://tracker.local", mock)
	hint := &track.Geometry{CenterX: 0.30, CenterY: 0.40, Width: 0.10, Height: 0.20}
	_, err := client.Track("v1", 2.5, nil, "player_3", hint)
	require.NoError(t, err)

	req := mock.GetRequest(0)
	require.NotNil(t, req)
	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"stickyId":"player_3"`)
	assert.Contains(t, string(body), `"hint":{"centerX":0.3`)
}

func TestClient_ServerError(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(http.StatusInternalServerError, `{"error":"boom"}`)

	client := NewClient("http://tracker.local", mock)
	_, err := client.Track("v1", 0.0, nil, "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "boom")
}

func TestClient_ErrorWithoutBody(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(http.StatusNotFound, "")

	client := NewClient("http://tracker.local", mock)
	_, err := client.Stats("ghost")
	require.Error(t, err)
	assert.Equal(t, "server returned 404", err.Error())
}

func TestClient_MalformedResponse(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `{not json`)

	client := NewClient("http://tracker.local", mock)
	_, err := client.Latest("v1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode response")
}

func TestClient_TransportError(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.DefaultError = errors.New("connection refused")

	client := NewClient("http://tracker.local", mock)
	err := client.Health()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestClient_TrimsBaseURL(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	client := NewClient("http://tracker.local/", mock)

	require.NoError(t, client.Health())
	require.Equal(t, 1, mock.RequestCount())
	assert.Equal(t, "http://tracker.local/api/health", mock.GetRequest(0).URL.String())
}

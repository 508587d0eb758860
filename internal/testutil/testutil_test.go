package testutil

import (
	"errors"
	"net/http"
	"testing"
)

// Note: Testing t.Errorf/t.Fatalf calls requires a mock testing.T
// implementation which adds complexity. The assert helpers are best
// validated through the suites where they're actually used.
func TestAssertStatusCode(t *testing.T) {
	t.Parallel()

	AssertStatusCode(t, http.StatusOK, http.StatusOK)
	AssertStatusCode(t, http.StatusNotFound, http.StatusNotFound)
}

func TestAssertNoError(t *testing.T) {
	t.Parallel()

	AssertNoError(t, nil)
}

func TestAssertError(t *testing.T) {
	t.Parallel()

	AssertError(t, errors.New("session not found"))
}

func TestPostJSON(t *testing.T) {
	t.Parallel()

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %s, want application/json", ct)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"videoId":"v1"}`))
	})

	rec := PostJSON(t, h, "/api/track", map[string]interface{}{
		"videoId":   "v1",
		"timestamp": 0.5,
	})
	AssertStatusCode(t, rec.Code, http.StatusOK)

	var resp map[string]string
	DecodeJSON(t, rec, &resp)
	if resp["videoId"] != "v1" {
		t.Errorf("videoId = %q, want v1", resp["videoId"])
	}
}

func TestGet(t *testing.T) {
	t.Parallel()

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("videoId") != "v1" {
			t.Errorf("videoId param = %q, want v1", r.URL.Query().Get("videoId"))
		}
		w.WriteHeader(http.StatusNoContent)
	})

	rec := Get(t, h, "/api/track/latest?videoId=v1")
	AssertStatusCode(t, rec.Code, http.StatusNoContent)
}

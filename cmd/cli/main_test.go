package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sites", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k1", r.Header.Get("Authorization"))
		var p struct {
			URL      string `json:"url"`
			Interval int    `json:"interval"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"site":    map[string]any{"id": 7, "url": "http://" + p.URL, "interval": p.Interval, "is_active": true},
			"created": true,
		})
	})
	mux.HandleFunc("GET /api/sites", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"url":"http://a.com","interval":60,"is_active":true}]`))
	})
	mux.HandleFunc("GET /api/sites/1/stats", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"site_id":1,"total":4,"available":3,"uptime_percent":75,"average_response":0.25}`))
	})
	mux.HandleFunc("GET /api/sites/9/stats", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	})
	mux.HandleFunc("DELETE /api/sites/1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Setenv("API_BASE", srv.URL)
	t.Setenv("API_KEY", "k1")
	return srv
}

func TestRun_AddPromptsForURL(t *testing.T) {
	fakeAPI(t)
	var out bytes.Buffer
	err := run([]string{"add", "-interval", "30"}, strings.NewReader("example.com\n"), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Added site 7: http://example.com every 30s")
}

func TestRun_List(t *testing.T) {
	fakeAPI(t)
	var out bytes.Buffer
	require.NoError(t, run([]string{"list"}, nil, &out))
	assert.Contains(t, out.String(), "http://a.com")
	assert.Contains(t, out.String(), "60s")
}

func TestRun_Stats(t *testing.T) {
	fakeAPI(t)
	var out bytes.Buffer
	require.NoError(t, run([]string{"stats", "1"}, nil, &out))
	assert.Contains(t, out.String(), "uptime: 75.00%")
	assert.Contains(t, out.String(), "avg response: 250ms")
}

func TestRun_APIErrorSurfaces(t *testing.T) {
	fakeAPI(t)
	err := run([]string{"stats", "9"}, nil, &bytes.Buffer{})
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "not found", apiErr.Message)
}

func TestRun_Remove(t *testing.T) {
	fakeAPI(t)
	var out bytes.Buffer
	require.NoError(t, run([]string{"rm", "1"}, nil, &out))
	assert.Equal(t, "Removed site 1\n", out.String())
}

func TestRun_Usage(t *testing.T) {
	assert.ErrorIs(t, run(nil, nil, &bytes.Buffer{}), errUsage)
	assert.ErrorIs(t, run([]string{"bogus"}, nil, &bytes.Buffer{}), errUsage)
	assert.ErrorIs(t, run([]string{"stats", "x"}, nil, &bytes.Buffer{}), errUsage)
}

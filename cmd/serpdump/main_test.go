package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeAPI(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var triggers atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /trigger", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		triggers.Add(1)
		_, _ = w.Write([]byte(`{"snapshot_id":"s_cli"}`))
	})
	mux.HandleFunc("GET /progress/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})
	mux.HandleFunc("GET /snapshot/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"find":"money","organic":[]}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &triggers
}

// workspace isolates the test from local config, .env files and keys.
func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("SERPDUMP_API_KEY", "")
	t.Setenv("BRIGHTDATA_API_KEY", "")
	return dir
}

func TestRun_MissingAPIKeyExits1(t *testing.T) {
	workspace(t)
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"run"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "API key")

	code = run(context.Background(), []string{"run", "--api-key", "YOUR_API_KEY_HERE"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
}

func TestRun_SamplesThenReport(t *testing.T) {
	dir := workspace(t)
	srv, triggers := fakeAPI(t)
	archive := filepath.Join(dir, "runs.jsonl")

	common := []string{
		"--api-key", "test-key",
		"--base-url", srv.URL,
		"--poll-interval", "10ms",
		"--output-dir", filepath.Join(dir, "out"),
		"--archive-backend", "json",
		"--archive-dsn", archive,
	}

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"run"}, common...), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.EqualValues(t, 1, triggers.Load())

	matches, err := filepath.Glob(filepath.Join(dir, "out", "google_bing_search_results_*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Contains(t, stdout.String(), matches[0])

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.JSONEq(t, `[{"find":"money","organic":[]}]`, string(data))

	stdout.Reset()
	code = run(context.Background(), []string{"runs", "--archive-backend", "json", "--archive-dsn", archive, "--format", "json"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var summary struct {
		TotalRuns     int            `json:"total_runs"`
		TotalSearches int            `json:"total_searches"`
		Outcomes      map[string]int `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	assert.Equal(t, 1, summary.TotalRuns)
	assert.Equal(t, 3, summary.TotalSearches)
	assert.Equal(t, 1, summary.Outcomes["success"])
}

func TestRun_FilesAndSearch(t *testing.T) {
	dir := workspace(t)
	srv, triggers := fakeAPI(t)

	jsonFile := filepath.Join(dir, "tech.json")
	require.NoError(t, os.WriteFile(jsonFile, []byte(`[{"find":"golang","with":"Bing"}]`), 0o644))
	yamlFile := filepath.Join(dir, "news.yaml")
	require.NoError(t, os.WriteFile(yamlFile, []byte("- find: elections\n  where: www.bbc.com\n"), 0o644))

	common := []string{"--api-key", "test-key", "--base-url", srv.URL, "--poll-interval", "10ms", "--output-dir", dir}

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"run", "-f", jsonFile, "-f", yamlFile}, common...), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.EqualValues(t, 2, triggers.Load())
	assert.Contains(t, stdout.String(), "google_bing_search_results_tech_")
	assert.Contains(t, stdout.String(), "google_bing_search_results_news_")

	stdout.Reset()
	code = run(context.Background(), append([]string{"search", "-q", "weather", "--engine", "bing", "-o", "weather.json"}, common...), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	_, err := os.Stat(filepath.Join(dir, "weather.json"))
	assert.NoError(t, err)

	code = run(context.Background(), append([]string{"search"}, common...), &stdout, &stderr)
	assert.Equal(t, 1, code, "query is required")
}

func TestRuns_NoArchive(t *testing.T) {
	workspace(t)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"runs"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "no run archive")
}

func TestLoadBatches(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 678_000_000, time.UTC)

	batches, err := loadBatches(nil, "p", "", now)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "p_2025-01-02T03-04-05-678Z.json", batches[0].Output)
	assert.Len(t, batches[0].Specs, 3)

	batches, err = loadBatches(nil, "p", "fixed.json", now)
	require.NoError(t, err)
	assert.Equal(t, "fixed.json", batches[0].Output)

	_, err = loadBatches([]string{"missing.json"}, "p", "", now)
	assert.Error(t, err)
	assert.False(t, strings.Contains(err.Error(), "p_"))
}

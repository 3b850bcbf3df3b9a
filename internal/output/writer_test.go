package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/FranksOps/serpdump/internal/dataset"
)

func TestTimestampedName(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 678_000_000, time.UTC)
	assert.Equal(t, "search_results_2025-01-02T03-04-05-678Z.json", TimestampedName("search_results", ts))

	local := ts.In(time.FixedZone("X", 2*3600))
	assert.Equal(t, "p_2025-01-02T03-04-05-678Z.json", TimestampedName("p", local), "always UTC")
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := &Writer{Dir: dir}

	path := w.Save(map[string]int{"a": 1}, "out.json")
	assert.Equal(t, filepath.Join(dir, "out.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}\n", string(data))

	var got map[string]int
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, map[string]int{"a": 1}, got)
}

func TestSave_RawSnapshotIsIndented(t *testing.T) {
	dir := t.TempDir()
	w := &Writer{Dir: dir}

	path := w.Save(dataset.Snapshot(`[{"find":"<b>x</b>"}]`), "snap.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[\n  {\n    \"find\": \"<b>x</b>\"\n  }\n]\n", string(data))
}

func TestSave_DefaultNameAndOverwrite(t *testing.T) {
	dir := t.TempDir()
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 5_000_000, time.UTC)
	w := &Writer{Dir: dir, Now: func() time.Time { return fixed }}

	first := w.Save([]int{1}, "")
	assert.Equal(t, filepath.Join(dir, "search_results_2025-06-01T12-00-00-005Z.json"), first)

	second := w.Save([]int{2}, "")
	assert.Equal(t, first, second)

	data, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.JSONEq(t, `[2]`, string(data))
}

func TestSave_FailureIsLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	w := &Writer{Dir: blocker, Logger: zap.New(core)}
	path := w.Save(map[string]int{"a": 1}, "out.json")

	assert.Equal(t, filepath.Join(blocker, "out.json"), path)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "error saving results", entry.Message)

	err, ok := entry.ContextMap()["error"].(string)
	require.True(t, ok)
	assert.Contains(t, err, "save write")
}

func TestSave_UnencodableValue(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	w := &Writer{Dir: t.TempDir(), Logger: zap.New(core)}

	w.Save(make(chan int), "bad.json")
	assert.Equal(t, 1, logs.Len())
}

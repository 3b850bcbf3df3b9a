package csvbackend

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FranksOps/serpdump/internal/serp"
	"github.com/FranksOps/serpdump/internal/storage"
)

func TestCSVBackend(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "runs.csv")

	b, err := New(filePath)
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	run1 := &storage.RunRecord{
		ID:         "csv1",
		JobID:      "s_1",
		Specs:      serp.SampleSearches(),
		Outcome:    storage.OutcomeSuccess,
		Polls:      4,
		Payload:    json.RawMessage(`[{"title":"a, \"quoted\" title"}]`),
		OutputPath: "google_bing_search_results_x.json",
		Duration:   31 * time.Second,
		CreatedAt:  now.Add(-2 * time.Hour),
	}
	run2 := &storage.RunRecord{
		ID:        "csv2",
		JobID:     "s_2",
		Specs:     []serp.SearchSpec{serp.NewSearch("x", "", "", 0)},
		Outcome:   storage.OutcomeJobFailed,
		Polls:     1,
		Duration:  time.Second,
		CreatedAt: now.Add(-1 * time.Hour),
		Error:     "poll job_failed: search failed (job s_2)",
	}
	require.NoError(t, b.Save(ctx, run1))
	require.NoError(t, b.Save(ctx, run2))

	all, err := b.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "csv2", all[0].ID, "newest first")

	got := all[1]
	assert.Equal(t, run1.JobID, got.JobID)
	assert.Equal(t, run1.Specs, got.Specs)
	assert.Equal(t, run1.Polls, got.Polls)
	assert.JSONEq(t, string(run1.Payload), string(got.Payload))
	assert.Equal(t, run1.OutputPath, got.OutputPath)
	assert.Equal(t, run1.Duration, got.Duration)
	assert.True(t, run1.CreatedAt.Equal(got.CreatedAt))
	assert.Nil(t, all[0].Payload)

	failed, err := b.Query(ctx, storage.Filter{Outcome: storage.OutcomeJobFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, run2.Error, failed[0].Error)

	past := now.Add(-90 * time.Minute)
	since, err := b.Query(ctx, storage.Filter{Since: &past})
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, "csv2", since[0].ID)

	paged, err := b.Query(ctx, storage.Filter{Offset: 1, Limit: 5})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "csv1", paged[0].ID)
}

func TestCSVBackend_HeaderWrittenOnce(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "runs.csv")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		b, err := New(filePath)
		require.NoError(t, err)
		require.NoError(t, b.Save(ctx, &storage.RunRecord{ID: "r", Outcome: storage.OutcomeSuccess, CreatedAt: time.Now()}))
		require.NoError(t, b.Close())
	}

	data, err := os.ReadFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "id,job_id,specs_json"))
}

func TestCSVBackend_Empty(t *testing.T) {
	b, err := New(filepath.Join(t.TempDir(), "runs.csv"))
	require.NoError(t, err)
	defer b.Close()

	res, err := b.Query(context.Background(), storage.Filter{})
	require.NoError(t, err)
	assert.Empty(t, res)
}

package open

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FranksOps/serpdump/internal/storage"
)

func TestOpen_Disabled(t *testing.T) {
	for _, name := range []string{"", "none", "  "} {
		b, err := Open(context.Background(), name, "")
		require.NoError(t, err)
		assert.Nil(t, b)
	}
}

func TestOpen_FileBackends(t *testing.T) {
	ctx := context.Background()
	for _, name := range []string{"json", "CSV", "sqlite"} {
		t.Run(name, func(t *testing.T) {
			b, err := Open(ctx, name, filepath.Join(t.TempDir(), "runs"))
			require.NoError(t, err)
			require.NotNil(t, b)
			defer b.Close()

			require.NoError(t, b.Save(ctx, &storage.RunRecord{ID: "r1", Outcome: storage.OutcomeSuccess, CreatedAt: time.Now()}))
			got, err := b.Query(ctx, storage.Filter{})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "r1", got[0].ID)
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), "json", "")
	assert.ErrorContains(t, err, "needs a dsn")

	_, err = Open(context.Background(), "mongo", "x")
	assert.ErrorContains(t, err, "unknown backend")
}

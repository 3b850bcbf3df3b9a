// Package open selects and opens a run archive backend by name.
package open

import (
	"context"
	"fmt"
	"strings"

	"github.com/FranksOps/serpdump/internal/storage"
	"github.com/FranksOps/serpdump/internal/storage/csvbackend"
	"github.com/FranksOps/serpdump/internal/storage/jsonbackend"
	"github.com/FranksOps/serpdump/internal/storage/postgres"
	"github.com/FranksOps/serpdump/internal/storage/sqlite"
)

// Backends lists the accepted backend names.
var Backends = []string{"json", "csv", "sqlite", "postgres"}

// Open returns the backend named by backend, or nil when backend is empty
// (archiving disabled). dsn is a file path for json, csv and sqlite and a
// connection string for postgres.
func Open(ctx context.Context, backend, dsn string) (storage.Backend, error) {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "" || backend == "none" {
		return nil, nil
	}
	if dsn == "" {
		return nil, fmt.Errorf("archive: backend %q needs a dsn", backend)
	}

	switch backend {
	case "json":
		return jsonbackend.New(dsn)
	case "csv":
		return csvbackend.New(dsn)
	case "sqlite":
		return sqlite.New(dsn)
	case "postgres":
		return postgres.New(ctx, dsn)
	default:
		return nil, fmt.Errorf("archive: unknown backend %q (want one of %s)", backend, strings.Join(Backends, ", "))
	}
}

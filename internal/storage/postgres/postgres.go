// Package postgres archives run records in PostgreSQL through pgx.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FranksOps/serpdump/internal/storage"
)

var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS serpdump_runs (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL DEFAULT '',
	specs JSONB NOT NULL,
	outcome TEXT NOT NULL,
	polls INTEGER NOT NULL,
	payload JSONB,
	output_path TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS serpdump_runs_created_at ON serpdump_runs (created_at DESC);
`

// New connects to dsn and creates the runs table if needed.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}
	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, record *storage.RunRecord) error {
	specs, err := json.Marshal(record.Specs)
	if err != nil {
		return fmt.Errorf("postgres: encode specs: %w", err)
	}
	var payload []byte
	if record.Payload != nil {
		payload = record.Payload
	}

	const query = `
	INSERT INTO serpdump_runs (
		id, job_id, specs, outcome, polls, payload, output_path, duration_ms, created_at, error
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = b.pool.Exec(ctx, query,
		record.ID,
		record.JobID,
		specs,
		record.Outcome,
		record.Polls,
		payload,
		record.OutputPath,
		record.Duration.Milliseconds(),
		record.CreatedAt,
		record.Error,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert %s: %w", record.ID, err)
	}
	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.RunRecord, error) {
	query := `SELECT id, job_id, specs, outcome, polls, payload, output_path, duration_ms, created_at, error FROM serpdump_runs WHERE 1=1`
	args := []any{}
	param := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.JobID != "" {
		query += ` AND job_id = ` + param(filter.JobID)
	}
	if filter.Outcome != "" {
		query += ` AND outcome = ` + param(filter.Outcome)
	}
	if filter.Since != nil {
		query += ` AND created_at >= ` + param(*filter.Since)
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ` + param(filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ` + param(filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	var results []*storage.RunRecord
	for rows.Next() {
		var (
			r          storage.RunRecord
			specs      []byte
			payload    []byte
			durationMs int64
		)
		err := rows.Scan(
			&r.ID, &r.JobID, &specs, &r.Outcome, &r.Polls, &payload,
			&r.OutputPath, &durationMs, &r.CreatedAt, &r.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}

		if err := json.Unmarshal(specs, &r.Specs); err != nil {
			return nil, fmt.Errorf("postgres: decode specs of %s: %w", r.ID, err)
		}
		if payload != nil {
			r.Payload = json.RawMessage(payload)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond

		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return results, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}

// Package sqlite archives run records in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/FranksOps/serpdump/internal/storage"
)

var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL DEFAULT '',
	specs TEXT NOT NULL,
	outcome TEXT NOT NULL,
	polls INTEGER NOT NULL,
	payload TEXT,
	output_path TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at);
`

// New opens the database at dsn and creates the runs table if needed.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	// One writer at a time; concurrent batches serialize here.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, record *storage.RunRecord) error {
	specs, err := json.Marshal(record.Specs)
	if err != nil {
		return fmt.Errorf("sqlite: encode specs: %w", err)
	}
	var payload any
	if record.Payload != nil {
		payload = string(record.Payload)
	}

	const query = `
	INSERT INTO runs (
		id, job_id, specs, outcome, polls, payload, output_path, duration_ms, created_at, error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = b.db.ExecContext(ctx, query,
		record.ID,
		record.JobID,
		string(specs),
		record.Outcome,
		record.Polls,
		payload,
		record.OutputPath,
		record.Duration.Milliseconds(),
		record.CreatedAt.UTC(),
		record.Error,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert %s: %w", record.ID, err)
	}
	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.RunRecord, error) {
	query := `SELECT id, job_id, specs, outcome, polls, payload, output_path, duration_ms, created_at, error FROM runs WHERE 1=1`
	args := []any{}

	if filter.JobID != "" {
		query += ` AND job_id = ?`
		args = append(args, filter.JobID)
	}
	if filter.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, filter.Outcome)
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}

	query += ` ORDER BY created_at DESC`

	// SQLite only accepts OFFSET after a LIMIT; -1 means unbounded.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()

	var results []*storage.RunRecord
	for rows.Next() {
		var (
			r          storage.RunRecord
			specs      string
			payload    []byte
			durationMs int64
		)
		err := rows.Scan(
			&r.ID, &r.JobID, &specs, &r.Outcome, &r.Polls, &payload,
			&r.OutputPath, &durationMs, &r.CreatedAt, &r.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}

		if err := json.Unmarshal([]byte(specs), &r.Specs); err != nil {
			return nil, fmt.Errorf("sqlite: decode specs of %s: %w", r.ID, err)
		}
		if payload != nil {
			r.Payload = json.RawMessage(payload)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond

		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return results, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}

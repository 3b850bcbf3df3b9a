// Package csvbackend archives run records in a CSV file with a header row.
package csvbackend

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/FranksOps/serpdump/internal/storage"
)

var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

var headers = []string{
	"id",
	"job_id",
	"specs_json",
	"outcome",
	"polls",
	"payload_json",
	"output_path",
	"duration_ms",
	"created_at",
	"error",
}

// New opens (or creates) the CSV file at filePath, writing the header row to
// an empty file.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("csvbackend: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("csvbackend: %w", err)
	}
	if info.Size() == 0 {
		if err := writeRow(f, headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: write header: %w", err)
		}
	}

	return &csvBackend{file: f}, nil
}

func writeRow(w io.Writer, row []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func (b *csvBackend) Save(ctx context.Context, record *storage.RunRecord) error {
	specs, err := json.Marshal(record.Specs)
	if err != nil {
		return fmt.Errorf("csvbackend: encode specs: %w", err)
	}

	row := []string{
		record.ID,
		record.JobID,
		string(specs),
		record.Outcome,
		strconv.Itoa(record.Polls),
		string(record.Payload),
		record.OutputPath,
		strconv.FormatInt(record.Duration.Milliseconds(), 10),
		record.CreatedAt.UTC().Format(time.RFC3339Nano),
		record.Error,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := writeRow(b.file, row); err != nil {
		return fmt.Errorf("csvbackend: write %s: %w", record.ID, err)
	}
	return nil
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.RunRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("csvbackend: %w", err)
	}
	defer func() {
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)
	r.FieldsPerRecord = -1

	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return []*storage.RunRecord{}, nil
		}
		return nil, fmt.Errorf("csvbackend: read header: %w", err)
	}

	var matched []*storage.RunRecord
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvbackend: %w", err)
		}
		if len(row) != len(headers) {
			continue
		}

		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("csvbackend: row %s: %w", row[0], err)
		}
		if filter.Match(rec) {
			matched = append(matched, rec)
		}
	}

	return filter.Page(matched), nil
}

func parseRow(row []string) (*storage.RunRecord, error) {
	rec := &storage.RunRecord{
		ID:         row[0],
		JobID:      row[1],
		Outcome:    row[3],
		OutputPath: row[6],
		Error:      row[9],
	}
	if err := json.Unmarshal([]byte(row[2]), &rec.Specs); err != nil {
		return nil, fmt.Errorf("specs: %w", err)
	}
	if row[5] != "" {
		rec.Payload = json.RawMessage(row[5])
	}

	var err error
	if rec.Polls, err = strconv.Atoi(row[4]); err != nil {
		return nil, fmt.Errorf("polls: %w", err)
	}
	ms, err := strconv.ParseInt(row[7], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("duration: %w", err)
	}
	rec.Duration = time.Duration(ms) * time.Millisecond
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, row[8]); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	return rec, nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}

// Package storage archives one record per orchestration run so past runs can
// be listed and reported on.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/FranksOps/serpdump/internal/serp"
)

// Outcome values. Failures reuse the dataset error kind names; OutcomeError
// covers anything unclassified.
const (
	OutcomeSuccess   = "success"
	OutcomeCanceled  = "canceled"
	OutcomeTransport = "transport"
	OutcomeProtocol  = "protocol"
	OutcomeJobFailed = "job_failed"
	OutcomeTimeout   = "timeout"
	OutcomeError     = "error"
)

// RunRecord describes one trigger/poll/download cycle.
type RunRecord struct {
	ID         string            `json:"id"`
	JobID      string            `json:"job_id,omitempty"`
	Specs      []serp.SearchSpec `json:"specs"`
	Outcome    string            `json:"outcome"`
	Polls      int               `json:"polls"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
	OutputPath string            `json:"output_path,omitempty"`
	Duration   time.Duration     `json:"duration"`
	CreatedAt  time.Time         `json:"created_at"`
	Error      string            `json:"error,omitempty"`
}

// Filter narrows a Query. Zero fields match everything.
type Filter struct {
	JobID   string
	Outcome string
	Since   *time.Time
	Limit   int
	Offset  int
}

// Match reports whether r passes every set field of f.
func (f Filter) Match(r *RunRecord) bool {
	if f.JobID != "" && r.JobID != f.JobID {
		return false
	}
	if f.Outcome != "" && r.Outcome != f.Outcome {
		return false
	}
	if f.Since != nil && r.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Page orders records newest first and applies Offset and Limit. File
// backends use it after reading matches in insertion order.
func (f Filter) Page(records []*RunRecord) []*RunRecord {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	if f.Offset > 0 {
		if f.Offset >= len(records) {
			return []*RunRecord{}
		}
		records = records[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(records) {
		records = records[:f.Limit]
	}
	return records
}

// Backend stores and lists run records. Implementations are safe for
// concurrent use.
type Backend interface {
	Save(ctx context.Context, record *RunRecord) error
	Query(ctx context.Context, filter Filter) ([]*RunRecord, error)
	Close() error
}

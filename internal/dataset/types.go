package dataset

import (
	"encoding/json"
	"fmt"
)

// JobHandle identifies one asynchronous scrape job with the provider.
type JobHandle string

// Status is the job state reported by the progress endpoint.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusReady     Status = "ready"
	StatusFailed    Status = "failed"
)

// Succeeded reports whether the snapshot can be downloaded.
func (s Status) Succeeded() bool {
	return s == StatusCompleted || s == StatusReady
}

// Terminal reports whether no further transition is expected. Unknown
// statuses are treated as still in progress.
func (s Status) Terminal() bool {
	return s.Succeeded() || s == StatusFailed
}

// TriggerResponse is the body returned by the trigger endpoint. Depending on
// the dataset the provider answers with a request id or a snapshot id.
type TriggerResponse struct {
	RequestID  string `json:"request_id,omitempty"`
	SnapshotID string `json:"snapshot_id,omitempty"`
}

// Handle returns the job handle, preferring the request id.
func (r TriggerResponse) Handle() (JobHandle, bool) {
	if r.RequestID != "" {
		return JobHandle(r.RequestID), true
	}
	if r.SnapshotID != "" {
		return JobHandle(r.SnapshotID), true
	}
	return "", false
}

// Progress is the body returned by the progress endpoint. Fields other than
// status are provider specific and kept verbatim in Extra.
type Progress struct {
	Status Status
	Extra  map[string]json.RawMessage
}

func (p *Progress) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	status, ok := raw["status"]
	if !ok {
		return fmt.Errorf("progress response has no status field")
	}
	var s string
	if err := json.Unmarshal(status, &s); err != nil {
		return fmt.Errorf("progress status: %w", err)
	}
	delete(raw, "status")

	p.Status = Status(s)
	p.Extra = raw
	return nil
}

func (p Progress) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(p.Extra)+1)
	for k, v := range p.Extra {
		out[k] = v
	}
	status, err := json.Marshal(string(p.Status))
	if err != nil {
		return nil, err
	}
	out["status"] = status
	return json.Marshal(out)
}

// Snapshot is the downloaded result payload. It is opaque to this module and
// passed through unmodified.
type Snapshot = json.RawMessage

package dataset

import (
	"errors"
	"fmt"
)

// Kind classifies a failure of the trigger/poll/download cycle.
type Kind string

const (
	// KindTransport is a network failure or a non-2xx response.
	KindTransport Kind = "transport"
	// KindProtocol is a response that does not match the expected schema,
	// e.g. a trigger response with neither request_id nor snapshot_id.
	KindProtocol Kind = "protocol"
	// KindJobFailed means the provider reported the job as failed.
	KindJobFailed Kind = "job_failed"
	// KindTimeout means the poll budget ran out before a terminal status.
	KindTimeout Kind = "timeout"
	// KindWrite is a local file write failure. It is logged, never returned
	// to callers of the orchestrator.
	KindWrite Kind = "write"
)

// Error is the structured error returned by this module's components.
type Error struct {
	Kind       Kind
	Op         string // trigger, status, download, poll, save
	StatusCode int    // HTTP status for KindTransport, 0 otherwise
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsKind reports whether any error in err's chain is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func transportError(op string, status int, msg string, cause error) *Error {
	return &Error{Kind: KindTransport, Op: op, StatusCode: status, Message: msg, Cause: cause}
}

func protocolError(op, msg string, cause error) *Error {
	return &Error{Kind: KindProtocol, Op: op, Message: msg, Cause: cause}
}

// JobFailed builds the error for a provider-reported failure.
func JobFailed(handle JobHandle) *Error {
	return &Error{Kind: KindJobFailed, Op: "poll", Message: fmt.Sprintf("search failed (job %s)", handle)}
}

// Timeout builds the error for an exhausted poll budget.
func Timeout(handle JobHandle, cause error) *Error {
	return &Error{Kind: KindTimeout, Op: "poll", Message: fmt.Sprintf("timeout waiting for results (job %s)", handle), Cause: cause}
}

// WriteFailed builds the error logged when a result file cannot be written.
func WriteFailed(path string, cause error) *Error {
	return &Error{Kind: KindWrite, Op: "save", Message: path, Cause: cause}
}

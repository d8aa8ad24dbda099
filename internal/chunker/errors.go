package chunker

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced SourceFile or Segment id
	// does not exist in the store.
	ErrNotFound = errors.New("not found")

	// ErrRunInProgress is returned when a chunking run is requested for a
	// file that already has one in flight.
	ErrRunInProgress = errors.New("chunking already in progress for file")

	// ErrProbeTimeout is returned when ffprobe does not exit within the
	// configured deadline. The process is killed, not abandoned.
	ErrProbeTimeout = errors.New("probe timed out")

	// ErrProbeFailure is returned when ffprobe exits non-zero.
	ErrProbeFailure = errors.New("probe failed")

	// ErrProbeParse is returned when ffprobe output lacks a duration field.
	ErrProbeParse = errors.New("probe output missing duration")
)

// ValidationError is a user-correctable request error. Its message is
// surfaced verbatim to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// InvocationError is a failed or timed-out extraction step. It aborts the
// whole run; no segment beyond those already committed is persisted.
type InvocationError struct {
	Index  int
	Total  int
	Output string
	Err    error
}

func (e *InvocationError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("segment %d/%d: %v: %s", e.Index, e.Total, e.Err, e.Output)
	}
	return fmt.Sprintf("segment %d/%d: %v", e.Index, e.Total, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

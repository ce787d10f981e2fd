package batchgate

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrQuotaExceeded = errors.New("batchgate: daily token quota exceeded")
	ErrRateLimited   = errors.New("batchgate: admission rate limit exceeded")
	ErrShutdown      = errors.New("batchgate: coordinator is shut down")
	ErrNoResult      = errors.New("batchgate: processor returned no result for request")
	ErrResultCount   = errors.New("batchgate: processor result count does not match batch size")
	ErrNilProcessor  = errors.New("batchgate: nil processor")
)

// FingerprintError reports a request that could not be canonically serialized,
// usually because the payload holds a value encoding/json cannot represent.
type FingerprintError struct {
	Err error
}

func (e *FingerprintError) Error() string {
	return fmt.Sprintf("batchgate: fingerprint request: %v", e.Err)
}

func (e *FingerprintError) Unwrap() error {
	return e.Err
}

// SubmitError wraps an execution failure with submission context. Every
// waiter on the same fingerprint receives the same underlying error.
type SubmitError struct {
	Err         error
	Fingerprint string
	TaskType    string
	Mode        Mode
	BatchID     string // empty for immediate executions
}

func (e *SubmitError) Error() string {
	if e.BatchID != "" {
		return fmt.Sprintf("batchgate: task=%s mode=%s batch=%s fingerprint=%.12s: %v",
			e.TaskType, e.Mode, e.BatchID, e.Fingerprint, e.Err)
	}
	return fmt.Sprintf("batchgate: task=%s mode=%s fingerprint=%.12s: %v",
		e.TaskType, e.Mode, e.Fingerprint, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// IsAdmissionError returns true if the error was raised before any work was
// attempted: the request was refused at the door and never reached a batch
// or the backend.
func IsAdmissionError(err error) bool {
	return errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrShutdown)
}

// IsExecutionError returns true if the request was admitted but the backend
// call failed.
func IsExecutionError(err error) bool {
	var se *SubmitError
	return errors.As(err, &se)
}

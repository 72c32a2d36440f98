package hashroot

import (
	"errors"
	"fmt"

	"github.com/hupe1980/hashroot/policy"
)

var (
	// ErrAuthorizationDenied is returned when the requester is not the owner.
	// Nothing is hashed and the index is left untouched.
	ErrAuthorizationDenied = errors.New("requester is not authorized to ingest")

	// ErrPolicyRejected is matched by every *PolicyRejectedError.
	ErrPolicyRejected = errors.New("rejected by content policy")

	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine is closed")

	// ErrExporterClosed is reported for syncs scheduled after Exporter.Close.
	ErrExporterClosed = errors.New("exporter is closed")
)

// PolicyRejectedError indicates an entry was discarded by the content guard.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type PolicyRejectedError struct {
	Label string
	cause error
}

func (e *PolicyRejectedError) Error() string {
	return fmt.Sprintf("%v: forbidden label %q", ErrPolicyRejected, e.Label)
}

func (e *PolicyRejectedError) Unwrap() error { return e.cause }

// Is makes errors.Is(err, ErrPolicyRejected) hold.
func (e *PolicyRejectedError) Is(target error) bool { return target == ErrPolicyRejected }

// RecordError reports a record that was skipped within a batch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type RecordError struct {
	Index int
	cause error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d skipped: %v", e.Index, e.cause)
}

func (e *RecordError) Unwrap() error { return e.cause }

// StorageInitError indicates the snapshot sink could not be set up.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type StorageInitError struct {
	Sink  string
	cause error
}

// NewStorageInitError wraps err as a storage initialization failure.
func NewStorageInitError(sink string, err error) *StorageInitError {
	return &StorageInitError{Sink: sink, cause: err}
}

func (e *StorageInitError) Error() string {
	return fmt.Sprintf("init %s sink: %v", e.Sink, e.cause)
}

func (e *StorageInitError) Unwrap() error { return e.cause }

// ExportSyncError indicates an external sync failed after all retries. The
// written snapshot and the engine state are unaffected.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ExportSyncError struct {
	Syncer   string
	RootHash string
	cause    error
}

func (e *ExportSyncError) Error() string {
	return fmt.Sprintf("sync %s for root %s failed: %v", e.Syncer, shortHash(e.RootHash), e.cause)
}

func (e *ExportSyncError) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var le *policy.LabelError
	if errors.As(err, &le) {
		return &PolicyRejectedError{Label: le.Label, cause: err}
	}
	if errors.Is(err, policy.ErrEmptyOwner) {
		return fmt.Errorf("invalid owner: %w", err)
	}

	return err
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

package vdir

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/3leaps/bucketdir/pkg/mirror"
	"github.com/3leaps/bucketdir/pkg/output"
	"github.com/3leaps/bucketdir/pkg/provider"
)

var (
	// ErrTransferFailed matches every *TransferError via errors.Is.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrLocalIO marks failures reading or writing the local filesystem.
	ErrLocalIO = errors.New("local i/o failed")

	// ErrSameKey is returned when a move would copy a key onto itself.
	ErrSameKey = errors.New("source and destination are the same key")

	// ErrDestinationCollision is returned when a move maps two members onto
	// one destination key. Only the first member in listing order is moved.
	ErrDestinationCollision = errors.New("destination key already claimed by another member")

	// ErrRolledBack marks keys whose copy was removed because a sibling
	// failed during a verify-then-delete move.
	ErrRolledBack = errors.New("move rolled back")
)

// TransferError reports a failed single-object operation.
type TransferError struct {
	Op     Op
	Bucket string
	Key    string
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

func (e *TransferError) Is(target error) bool { return target == ErrTransferFailed }

// BatchError reports the failed keys of a directory operation. The
// accompanying Report still holds every result.
type BatchError struct {
	Op     Op
	Bucket string
	Prefix string
	Total  int
	Failed []Result
}

func (e *BatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s/%s: %d of %d keys failed", e.Op, e.Bucket, e.Prefix, len(e.Failed), e.Total)
	if len(e.Failed) > 0 {
		fmt.Fprintf(&b, " (first: %v)", e.Failed[0].Err)
	}
	return b.String()
}

// Unwrap exposes every per-key error to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, r := range e.Failed {
		errs = append(errs, r.Err)
	}
	return errs
}

func localErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrLocalIO, err)
}

// SizeMismatchError indicates a verified copy differs in size from its source.
type SizeMismatchError struct {
	Key      string
	Expected int64
	Got      int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("copy size mismatch for %s: expected=%d got=%d", e.Key, e.Expected, e.Got)
}

// ErrorCode maps err onto the stable codes used by JSONL output and the
// HTTP API.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBucketUnresolved):
		return output.ErrCodeBucketUnresolved
	case provider.IsNotFound(err), provider.IsBucketNotFound(err):
		return output.ErrCodeNotFound
	case provider.IsAccessDenied(err), provider.IsInvalidCredentials(err):
		return output.ErrCodeAccessDenied
	case provider.IsThrottled(err):
		return output.ErrCodeThrottled
	case provider.IsProviderUnavailable(err):
		return output.ErrCodeProviderUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return output.ErrCodeTimeout
	case errors.Is(err, ErrLocalIO),
		errors.Is(err, mirror.ErrLocalDirectoryCreateFailed),
		errors.Is(err, mirror.ErrUnsafeKey):
		return output.ErrCodeLocalIO
	default:
		return output.ErrCodeInternal
	}
}

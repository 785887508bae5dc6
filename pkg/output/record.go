// Package output provides JSONL output for directory operations.
//
// Output is structured as typed record envelopes containing listed keys,
// per-key results, errors and summaries. Each line is a self-contained JSON
// object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: bucketdir.<type>.v<version>
const (
	// TypeKey identifies listed member keys.
	TypeKey = "bucketdir.key.v1"

	// TypeResult identifies per-key operation outcomes.
	TypeResult = "bucketdir.result.v1"

	// TypeError identifies error records.
	TypeError = "bucketdir.error.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "bucketdir.summary.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "bucketdir.result.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// JobID correlates every record of one invocation.
	JobID string `json:"job_id"`

	// Provider identifies the storage backend (e.g., "s3", "minio").
	Provider string `json:"provider"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// KeyRecord is the data payload for a listed directory member.
type KeyRecord struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// ResultRecord is the data payload for one key of a directory operation.
type ResultRecord struct {
	// Op is the directory operation (copy, move, delete, download, upload).
	Op string `json:"op"`

	// Stage is the step that produced the outcome (e.g., copy, delete, rollback).
	Stage string `json:"stage,omitempty"`

	Bucket string `json:"bucket"`
	Key    string `json:"key"`

	// Target is the destination key or local path, when the op has one.
	Target string `json:"target,omitempty"`

	OK bool `json:"ok"`

	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`

	ETag      string `json:"etag,omitempty"`
	VersionID string `json:"version_id,omitempty"`

	DurationMs int64 `json:"duration_ms"`
}

// ErrorRecord is the data payload for errors that abort an operation before
// any key is touched (bucket resolution, listing).
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Key is the object key related to this error, if applicable.
	Key string `json:"key,omitempty"`

	// Prefix is the directory being processed when the error occurred.
	Prefix string `json:"prefix,omitempty"`
}

// Error codes shared by ResultRecord and ErrorRecord.
const (
	ErrCodeAccessDenied        = "ACCESS_DENIED"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeTimeout             = "TIMEOUT"
	ErrCodeThrottled           = "THROTTLED"
	ErrCodeProviderUnavailable = "UNAVAILABLE"
	ErrCodeBucketUnresolved    = "BUCKET_UNRESOLVED"
	ErrCodeLocalIO             = "LOCAL_IO"
	ErrCodeInternal            = "INTERNAL"
)

// SummaryRecord is the data payload emitted after a directory operation.
type SummaryRecord struct {
	Op     string `json:"op"`
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix,omitempty"`

	// Keys is the number of member keys the operation fanned out to.
	Keys      int `json:"keys"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`

	// Duration is the total wall time.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

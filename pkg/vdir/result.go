package vdir

import (
	"time"

	"github.com/3leaps/bucketdir/pkg/output"
	"github.com/3leaps/bucketdir/pkg/provider"
)

// Op names a directory or single-object operation.
type Op string

const (
	OpList     Op = "list"
	OpCopy     Op = "copy"
	OpMove     Op = "move"
	OpDelete   Op = "delete"
	OpDownload Op = "download"
	OpUpload   Op = "upload"
)

// Stage names the step that produced a result.
type Stage string

const (
	StageCopy     Stage = "copy"
	StageVerify   Stage = "verify"
	StageDelete   Stage = "delete"
	StageRollback Stage = "rollback"
	StageMkdir    Stage = "mkdir"
	StageGet      Stage = "get"
	StagePut      Stage = "put"
)

// Result is the outcome for one member key. It succeeded iff Err is nil.
type Result struct {
	Op     Op
	Stage  Stage
	Bucket string
	Key    string

	// Target is the destination key or local path.
	Target string

	Receipt  *provider.Receipt
	Err      error
	Duration time.Duration
}

// OK reports whether the key succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Report aggregates one directory operation. Results follow listing order.
type Report struct {
	Op     Op
	Bucket string
	Prefix string

	// Target is the destination prefix or local root.
	Target string

	Results  []Result
	Started  time.Time
	Duration time.Duration
}

// Keys returns the member keys in listing order.
func (r *Report) Keys() []string {
	keys := make([]string, len(r.Results))
	for i, res := range r.Results {
		keys[i] = res.Key
	}
	return keys
}

// Succeeded counts keys without an error.
func (r *Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.OK() {
			n++
		}
	}
	return n
}

// Failed returns the failed results in listing order.
func (r *Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	return failed
}

// Err returns a *BatchError when any key failed, otherwise nil.
func (r *Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	return &BatchError{
		Op:     r.Op,
		Bucket: r.Bucket,
		Prefix: r.Prefix,
		Total:  len(r.Results),
		Failed: failed,
	}
}

// Record converts r to its JSONL payload.
func (r Result) Record() *output.ResultRecord {
	rec := &output.ResultRecord{
		Op:         string(r.Op),
		Stage:      string(r.Stage),
		Bucket:     r.Bucket,
		Key:        r.Key,
		Target:     r.Target,
		OK:         r.OK(),
		DurationMs: r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		rec.ErrorCode = ErrorCode(r.Err)
		rec.Error = r.Err.Error()
	}
	if r.Receipt != nil {
		rec.ETag = r.Receipt.ETag
		rec.VersionID = r.Receipt.VersionID
	}
	return rec
}

// Summary converts r to its JSONL summary payload.
func (r *Report) Summary() *output.SummaryRecord {
	return &output.SummaryRecord{
		Op:            string(r.Op),
		Bucket:        r.Bucket,
		Prefix:        r.Prefix,
		Keys:          len(r.Results),
		Succeeded:     r.Succeeded(),
		Failed:        len(r.Failed()),
		Duration:      r.Duration,
		DurationHuman: r.Duration.String(),
	}
}

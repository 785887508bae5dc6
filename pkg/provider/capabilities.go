package provider

import (
	"context"
	"io"
)

// Capability interfaces.
//
// Client composes all of them. Components that need only one capability
// accept the narrow interface so tests can supply small fakes.

// Lister enumerates keys in a bucket.
type Lister interface {
	// List returns a page of objects with the given prefix.
	// Use ContinuationToken from ListResult for subsequent pages.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)
}

// Header returns metadata for a single object.
type Header interface {
	// Head returns ErrNotFound if the object does not exist.
	Head(ctx context.Context, bucket, key string) (*ObjectMeta, error)
}

// ObjectGetter can download objects as a stream.
type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) (body io.ReadCloser, contentLength int64, err error)
}

// ObjectPutter can create or overwrite objects.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader, contentLength int64) (*Receipt, error)
}

// ObjectCopier performs server-side copies, possibly across buckets.
type ObjectCopier interface {
	CopyObject(ctx context.Context, in CopyInput) (*Receipt, error)
}

// ObjectDeleter can delete single objects.
//
// Deleting a missing key is not an error on S3-family stores; implementations
// should follow that convention.
type ObjectDeleter interface {
	DeleteObject(ctx context.Context, bucket, key string) (*Receipt, error)
}

// BatchDeleter removes many objects in as few round trips as the store allows.
//
// The result is never nil. Every key that was not deleted appears in
// DeleteResult.Errors, including keys lost to a failed request; the first
// request-level failure is also returned as the error.
type BatchDeleter interface {
	DeleteObjects(ctx context.Context, bucket string, req *DeleteRequest) (*DeleteResult, error)
}

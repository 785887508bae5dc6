// Package provider defines the object store client surface consumed by the
// directory layer.
//
// Clients are bucket-explicit: every call names the bucket it targets, so a
// single client can serve copies between buckets. Authentication uses SDK
// default credential chains unless explicit keys are configured.
package provider

import "time"

// Client is the full object store surface required for directory emulation.
//
// Implementations should:
//   - Treat keys as opaque strings ("/" has no meaning to the store)
//   - Support pagination via continuation tokens
//   - Be safe for concurrent use
type Client interface {
	Lister
	Header
	ObjectGetter
	ObjectPutter
	ObjectCopier
	ObjectDeleter
	BatchDeleter

	// Close releases any resources held by the client.
	Close() error
}

// ListOptions configures a List operation.
type ListOptions struct {
	// Bucket is the bucket to enumerate.
	Bucket string

	// Prefix filters results to keys starting with this value.
	// Empty string lists all objects.
	Prefix string

	// ContinuationToken resumes listing from a previous ListResult.
	// Empty string starts from the beginning.
	ContinuationToken string

	// MaxKeys limits the number of objects returned per page.
	// Zero uses the client default.
	MaxKeys int
}

// ListResult contains a page of objects from a List operation.
type ListResult struct {
	// Objects contains the object summaries for this page, in store order.
	Objects []ObjectSummary

	// ContinuationToken is used to retrieve the next page.
	// Empty string indicates no more pages.
	ContinuationToken string

	// IsTruncated indicates whether more results are available.
	IsTruncated bool
}

// ObjectSummary contains basic metadata returned from List operations.
type ObjectSummary struct {
	// Key is the full object key in the bucket.
	Key string

	// Size is the object size in bytes.
	Size int64

	// ETag is the entity tag, typically an MD5 hash of the object.
	ETag string

	// LastModified is when the object was last modified.
	LastModified time.Time
}

// ObjectMeta contains full metadata for a single object.
// Returned by Head operations.
type ObjectMeta struct {
	ObjectSummary

	// ContentType is the MIME type of the object.
	ContentType string

	// Metadata contains user-defined metadata key-value pairs.
	Metadata map[string]string
}

// Receipt is the response metadata of a successful single-object call.
type Receipt struct {
	Bucket    string
	Key       string
	ETag      string
	VersionID string
	Size      int64
}

// CopyInput names the source and destination of a server-side copy.
type CopyInput struct {
	SrcBucket string
	SrcKey    string
	DstBucket string
	DstKey    string
}

// ProviderType identifies an object store backend.
type ProviderType string

const (
	// ProviderS3 represents AWS S3 or S3-compatible storage via aws-sdk-go-v2.
	ProviderS3 ProviderType = "s3"

	// ProviderMinIO represents MinIO or S3-compatible storage via minio-go.
	ProviderMinIO ProviderType = "minio"

	// ProviderFile represents a local directory tree emulating buckets.
	ProviderFile ProviderType = "file"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}

// ParseProviderType maps a backend name onto a ProviderType.
func ParseProviderType(s string) (ProviderType, bool) {
	switch ProviderType(s) {
	case ProviderS3, ProviderMinIO, ProviderFile:
		return ProviderType(s), true
	default:
		return "", false
	}
}

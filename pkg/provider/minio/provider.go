// Package minio implements provider.Client on top of minio-go.
//
// It targets MinIO and other S3-compatible servers where the lighter
// minio-go client is preferred over the AWS SDK.
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/3leaps/bucketdir/pkg/provider"
)

// DefaultMaxKeys is the page size used when ListOptions.MaxKeys is zero.
const DefaultMaxKeys = 1000

// Config configures a MinIO client.
type Config struct {
	// Endpoint is host[:port] without scheme, e.g. "localhost:9000".
	Endpoint string

	AccessKey string
	SecretKey string

	// UseSSL selects https.
	UseSSL bool

	// Region is optional for most MinIO deployments.
	Region string
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("minio config: endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("minio config: endpoint must not include a scheme (use use_ssl)")
	}
	if (c.AccessKey != "") != (c.SecretKey != "") {
		return fmt.Errorf("minio config: access key and secret key must be provided together")
	}
	return nil
}

// api is the subset of *minio.Client used by Client.
type api interface {
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	GetObject(ctx context.Context, bucket, object string, opts minio.GetObjectOptions) (*minio.Object, error)
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
	RemoveObjects(ctx context.Context, bucket string, objectsCh <-chan minio.ObjectInfo, opts minio.RemoveObjectsOptions) <-chan minio.RemoveObjectError
}

// Client implements provider.Client for MinIO.
type Client struct {
	api api
}

var _ provider.Client = (*Client)(nil)

// New creates a MinIO client. No network call is made until first use.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, &provider.ProviderError{Op: "New", Provider: provider.ProviderMinIO, Err: err}
	}
	return &Client{api: c}, nil
}

// Close releases nothing; it satisfies provider.Client.
func (c *Client) Close() error { return nil }

// List returns one page of keys. minio-go streams the whole listing, so the
// page is cut after MaxKeys entries and the last key becomes the token.
func (c *Client) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := c.api.ListObjects(ctx, opts.Bucket, minio.ListObjectsOptions{
		Prefix:     opts.Prefix,
		Recursive:  true,
		StartAfter: opts.ContinuationToken,
		MaxKeys:    maxKeys,
	})

	res := &provider.ListResult{Objects: make([]provider.ObjectSummary, 0, maxKeys)}
	for obj := range ch {
		if obj.Err != nil {
			return nil, wrapError("List", opts.Bucket, "", obj.Err)
		}
		if len(res.Objects) == maxKeys {
			res.IsTruncated = true
			res.ContinuationToken = res.Objects[maxKeys-1].Key
			break
		}
		res.Objects = append(res.Objects, provider.ObjectSummary{
			Key:          obj.Key,
			Size:         obj.Size,
			ETag:         strings.Trim(obj.ETag, `"`),
			LastModified: obj.LastModified,
		})
	}
	return res, nil
}

// Head returns object metadata.
func (c *Client) Head(ctx context.Context, bucket, key string) (*provider.ObjectMeta, error) {
	info, err := c.api.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, wrapError("Head", bucket, key, err)
	}
	return &provider.ObjectMeta{
		ObjectSummary: provider.ObjectSummary{
			Key:          key,
			Size:         info.Size,
			ETag:         strings.Trim(info.ETag, `"`),
			LastModified: info.LastModified,
		},
		ContentType: info.ContentType,
		Metadata:    info.UserMetadata,
	}, nil
}

// GetObject opens an object. minio-go defers the request until first read,
// so the object is stat'ed up front to surface missing keys here.
func (c *Client) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	obj, err := c.api.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, wrapError("GetObject", bucket, key, err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, 0, wrapError("GetObject", bucket, key, err)
	}
	return obj, info.Size, nil
}

// PutObject uploads an object. A negative contentLength streams with
// multipart upload.
func (c *Client) PutObject(ctx context.Context, bucket, key string, body io.Reader, contentLength int64) (*provider.Receipt, error) {
	info, err := c.api.PutObject(ctx, bucket, key, body, contentLength, minio.PutObjectOptions{})
	if err != nil {
		return nil, wrapError("PutObject", bucket, key, err)
	}
	return uploadReceipt(bucket, key, info), nil
}

// CopyObject performs a server-side copy.
func (c *Client) CopyObject(ctx context.Context, in provider.CopyInput) (*provider.Receipt, error) {
	info, err := c.api.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: in.DstBucket, Object: in.DstKey},
		minio.CopySrcOptions{Bucket: in.SrcBucket, Object: in.SrcKey},
	)
	if err != nil {
		return nil, wrapError("CopyObject", in.SrcBucket, in.SrcKey, err)
	}
	return uploadReceipt(in.DstBucket, in.DstKey, info), nil
}

// DeleteObject removes an object.
func (c *Client) DeleteObject(ctx context.Context, bucket, key string) (*provider.Receipt, error) {
	if err := c.api.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return nil, wrapError("DeleteObject", bucket, key, err)
	}
	return &provider.Receipt{Bucket: bucket, Key: key, Size: -1}, nil
}

// DeleteObjects streams keys to RemoveObjects, which batches them server side.
func (c *Client) DeleteObjects(ctx context.Context, bucket string, req *provider.DeleteRequest) (*provider.DeleteResult, error) {
	result := &provider.DeleteResult{}
	if req.Len() == 0 {
		return result, nil
	}

	objects := make(chan minio.ObjectInfo, len(req.Objects))
	for _, obj := range req.Objects {
		objects <- minio.ObjectInfo{Key: obj.Key}
	}
	close(objects)

	failed := make(map[string]bool)
	var firstErr error
	for rerr := range c.api.RemoveObjects(ctx, bucket, objects, minio.RemoveObjectsOptions{}) {
		wrapped := wrapError("DeleteObjects", bucket, rerr.ObjectName, rerr.Err)
		if rerr.ObjectName == "" {
			// Request-level failure; every key is affected.
			if firstErr == nil {
				firstErr = wrapped
			}
			continue
		}
		failed[rerr.ObjectName] = true
		result.Errors = append(result.Errors, provider.DeleteError{
			Key:     rerr.ObjectName,
			Code:    minio.ToErrorResponse(rerr.Err).Code,
			Message: rerr.Err.Error(),
			Err:     wrapped,
		})
	}

	for _, obj := range req.Objects {
		if failed[obj.Key] {
			continue
		}
		if firstErr != nil {
			result.Errors = append(result.Errors, provider.DeleteError{Key: obj.Key, Message: firstErr.Error(), Err: firstErr})
			continue
		}
		if !req.Quiet {
			result.Deleted = append(result.Deleted, obj.Key)
		}
	}
	return result, firstErr
}

func uploadReceipt(bucket, key string, info minio.UploadInfo) *provider.Receipt {
	return &provider.Receipt{
		Bucket:    bucket,
		Key:       key,
		ETag:      strings.Trim(info.ETag, `"`),
		VersionID: info.VersionID,
		Size:      info.Size,
	}
}

// wrapError maps minio-go errors onto provider sentinels.
func wrapError(op, bucket, key string, err error) error {
	wrapped := &provider.ProviderError{Op: op, Provider: provider.ProviderMinIO, Bucket: bucket, Key: key, Err: err}
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return wrapped
	}

	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		wrapped.Err = provider.ErrNotFound
		return wrapped
	case "NoSuchBucket":
		wrapped.Err = provider.ErrBucketNotFound
		return wrapped
	case "AccessDenied":
		wrapped.Err = provider.ErrAccessDenied
		return wrapped
	case "InvalidAccessKeyId", "SignatureDoesNotMatch":
		wrapped.Err = provider.ErrInvalidCredentials
		return wrapped
	case "SlowDown", "SlowDownRead", "SlowDownWrite", "RequestLimitExceeded":
		wrapped.Err = provider.ErrThrottled
		return wrapped
	case "ServiceUnavailable", "InternalError", "XMinioServerNotInitialized":
		wrapped.Err = provider.ErrProviderUnavailable
		return wrapped
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		wrapped.Err = provider.ErrNotFound
	case http.StatusForbidden:
		wrapped.Err = provider.ErrAccessDenied
	case http.StatusTooManyRequests:
		wrapped.Err = provider.ErrThrottled
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		wrapped.Err = provider.ErrProviderUnavailable
	}
	return wrapped
}

package s3

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/3leaps/bucketdir/pkg/provider"
)

// api is the subset of *s3.Client used by Client.
type api interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Client implements provider.Client for AWS S3 and S3-compatible storage.
type Client struct {
	api     api
	maxKeys int
}

var _ provider.Client = (*Client)(nil)

// imdsTimeout bounds the instance metadata region lookup off EC2.
const imdsTimeout = 2 * time.Second

// New creates a new S3 client with the given configuration.
//
// The client uses AWS SDK v2's default credential chain unless explicit
// credentials are provided in the config.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &provider.ProviderError{
			Op:       "New",
			Provider: provider.ProviderS3,
			Err:      err,
		}
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}

	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return newWithAPI(s3.NewFromConfig(awsCfg, s3Opts...), cfg.MaxKeys), nil
}

func newWithAPI(a api, maxKeys int) *Client {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &Client{api: a, maxKeys: maxKeys}
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	// Let the SDK resolve from env/profile unless a region is explicit.
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)
		opts = append(opts, config.WithCredentialsProvider(staticCreds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	region := awsCfg.Region
	if region == "" && cfg.Endpoint == "" && cfg.UseIMDSRegion {
		region = imdsRegion(ctx, imds.NewFromConfig(awsCfg))
	}
	awsCfg.Region = resolveRegion(cfg.Region, cfg.Endpoint, region)

	return awsCfg, nil
}

// regionGetter is the IMDS call used for region discovery.
type regionGetter interface {
	GetRegion(ctx context.Context, in *imds.GetRegionInput, optFns ...func(*imds.Options)) (*imds.GetRegionOutput, error)
}

// imdsRegion returns the instance region, or "" when metadata is unreachable.
func imdsRegion(ctx context.Context, client regionGetter) string {
	ctx, cancel := context.WithTimeout(ctx, imdsTimeout)
	defer cancel()

	out, err := client.GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil || out == nil {
		return ""
	}
	return out.Region
}

// List returns a page of objects with the given prefix.
func (c *Client) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	maxKeys := clampMaxKeys(opts.MaxKeys, c.maxKeys)

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(opts.Bucket),
		MaxKeys: aws.Int32(int32(maxKeys)),
	}

	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}

	if opts.ContinuationToken != "" {
		input.ContinuationToken = aws.String(opts.ContinuationToken)
	}

	output, err := c.api.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, wrapError("List", opts.Bucket, "", err)
	}

	objects := make([]provider.ObjectSummary, 0, len(output.Contents))
	for _, obj := range output.Contents {
		objects = append(objects, provider.ObjectSummary{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			ETag:         cleanETag(aws.ToString(obj.ETag)),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}

	result := &provider.ListResult{
		Objects:     objects,
		IsTruncated: aws.ToBool(output.IsTruncated),
	}

	if output.NextContinuationToken != nil {
		result.ContinuationToken = *output.NextContinuationToken
	}

	return result, nil
}

// Head returns metadata for a single object.
func (c *Client) Head(ctx context.Context, bucket, key string) (*provider.ObjectMeta, error) {
	output, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, wrapError("Head", bucket, key, err)
	}

	return &provider.ObjectMeta{
		ObjectSummary: provider.ObjectSummary{
			Key:          key,
			Size:         aws.ToInt64(output.ContentLength),
			ETag:         cleanETag(aws.ToString(output.ETag)),
			LastModified: aws.ToTime(output.LastModified),
		},
		ContentType: aws.ToString(output.ContentType),
		Metadata:    output.Metadata,
	}, nil
}

// GetObject opens an object for streaming. The caller closes the body.
func (c *Client) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	output, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, 0, wrapError("GetObject", bucket, key, err)
	}

	size := int64(-1)
	if output.ContentLength != nil {
		size = *output.ContentLength
	}
	return output.Body, size, nil
}

// PutObject uploads an object.
func (c *Client) PutObject(ctx context.Context, bucket, key string, body io.Reader, contentLength int64) (*provider.Receipt, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentLength >= 0 {
		input.ContentLength = aws.Int64(contentLength)
	}

	output, err := c.api.PutObject(ctx, input)
	if err != nil {
		return nil, wrapError("PutObject", bucket, key, err)
	}

	return &provider.Receipt{
		Bucket:    bucket,
		Key:       key,
		ETag:      cleanETag(aws.ToString(output.ETag)),
		VersionID: aws.ToString(output.VersionId),
		Size:      contentLength,
	}, nil
}

// CopyObject performs a server-side copy.
func (c *Client) CopyObject(ctx context.Context, in provider.CopyInput) (*provider.Receipt, error) {
	output, err := c.api.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(in.DstBucket),
		Key:        aws.String(in.DstKey),
		CopySource: aws.String(copySource(in.SrcBucket, in.SrcKey)),
	})
	if err != nil {
		return nil, wrapError("CopyObject", in.SrcBucket, in.SrcKey, err)
	}

	receipt := &provider.Receipt{
		Bucket:    in.DstBucket,
		Key:       in.DstKey,
		VersionID: aws.ToString(output.VersionId),
		Size:      -1,
	}
	if output.CopyObjectResult != nil {
		receipt.ETag = cleanETag(aws.ToString(output.CopyObjectResult.ETag))
	}
	return receipt, nil
}

// DeleteObject deletes an object.
func (c *Client) DeleteObject(ctx context.Context, bucket, key string) (*provider.Receipt, error) {
	output, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, wrapError("DeleteObject", bucket, key, err)
	}

	return &provider.Receipt{
		Bucket:    bucket,
		Key:       key,
		VersionID: aws.ToString(output.VersionId),
		Size:      -1,
	}, nil
}

// DeleteObjects removes keys in chunks of MaxDeleteObjects.
//
// A chunk that fails at the transport level contributes one DeleteError per
// key; the first such failure is also returned. The result is never nil.
func (c *Client) DeleteObjects(ctx context.Context, bucket string, req *provider.DeleteRequest) (*provider.DeleteResult, error) {
	result := &provider.DeleteResult{}
	if req.Len() == 0 {
		return result, nil
	}

	var firstErr error
	for start := 0; start < len(req.Objects); start += MaxDeleteObjects {
		end := min(start+MaxDeleteObjects, len(req.Objects))
		chunk := req.Objects[start:end]

		ids := make([]types.ObjectIdentifier, len(chunk))
		for i, obj := range chunk {
			ids[i] = types.ObjectIdentifier{Key: aws.String(obj.Key)}
		}

		output, err := c.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(req.Quiet)},
		})
		if err != nil {
			wrapped := wrapError("DeleteObjects", bucket, "", err)
			if firstErr == nil {
				firstErr = wrapped
			}
			for _, obj := range chunk {
				result.Errors = append(result.Errors, provider.DeleteError{
					Key:     obj.Key,
					Message: wrapped.Error(),
					Err:     wrapped,
				})
			}
			continue
		}

		for _, d := range output.Deleted {
			result.Deleted = append(result.Deleted, aws.ToString(d.Key))
		}
		for _, e := range output.Errors {
			code := aws.ToString(e.Code)
			result.Errors = append(result.Errors, provider.DeleteError{
				Key:     aws.ToString(e.Key),
				Code:    code,
				Message: aws.ToString(e.Message),
				Err:     sentinelForCode(code),
			})
		}
	}

	return result, firstErr
}

// Close releases any resources held by the client.
// The S3 client doesn't require explicit cleanup.
func (c *Client) Close() error {
	return nil
}

// copySource builds the URL-encoded "bucket/key" CopySource value.
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return bucket + "/" + strings.Join(segments, "/")
}

// sentinelForCode maps an S3 error code onto a provider sentinel, or nil.
func sentinelForCode(code string) error {
	switch code {
	case "NoSuchKey", "NotFound":
		return provider.ErrNotFound
	case "NoSuchBucket":
		return provider.ErrBucketNotFound
	case "AccessDenied", "Forbidden":
		return provider.ErrAccessDenied
	case "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return provider.ErrInvalidCredentials
	case "SlowDown", "Throttling", "RequestLimitExceeded":
		return provider.ErrThrottled
	case "ServiceUnavailable", "InternalError":
		return provider.ErrProviderUnavailable
	}
	return nil
}

// wrapError converts S3 errors to provider errors with appropriate sentinel errors.
func wrapError(op, bucket, key string, err error) error {
	wrapped := &provider.ProviderError{
		Op:       op,
		Provider: provider.ProviderS3,
		Bucket:   bucket,
		Key:      key,
		Err:      err,
	}

	// Context errors pass through untouched so callers can detect cancellation.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return wrapped
	}

	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket

	switch {
	case errors.As(err, &notFound), errors.As(err, &noSuchKey):
		wrapped.Err = provider.ErrNotFound
		return wrapped
	case errors.As(err, &noSuchBucket):
		wrapped.Err = provider.ErrBucketNotFound
		return wrapped
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if sentinel := sentinelForCode(apiErr.ErrorCode()); sentinel != nil {
			wrapped.Err = sentinel
		}
		return wrapped
	}

	// Fallback: check error message for common cases
	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "NoSuchBucket"):
		wrapped.Err = provider.ErrBucketNotFound
	case strings.Contains(errMsg, "NoSuchKey") || strings.Contains(errMsg, "NotFound") || strings.Contains(errMsg, "404"):
		wrapped.Err = provider.ErrNotFound
	case strings.Contains(errMsg, "AccessDenied") || strings.Contains(errMsg, "Forbidden") || strings.Contains(errMsg, "403"):
		wrapped.Err = provider.ErrAccessDenied
	case strings.Contains(errMsg, "InvalidAccessKeyId") || strings.Contains(errMsg, "SignatureDoesNotMatch"):
		wrapped.Err = provider.ErrInvalidCredentials
	case strings.Contains(errMsg, "SlowDown") || strings.Contains(errMsg, "Throttling") || strings.Contains(errMsg, "429"):
		wrapped.Err = provider.ErrThrottled
	case strings.Contains(errMsg, "ServiceUnavailable") || strings.Contains(errMsg, "503"):
		wrapped.Err = provider.ErrProviderUnavailable
	}

	return wrapped
}

// cleanETag removes surrounding quotes from an ETag value.
func cleanETag(etag string) string {
	return strings.Trim(etag, "\"")
}

// clampMaxKeys applies defaults and limits to maxKeys values.
func clampMaxKeys(requested, clientDefault int) int {
	if requested <= 0 {
		requested = clientDefault
	}
	if requested > MaxAllowedKeys {
		return MaxAllowedKeys
	}
	return requested
}

// resolveRegion applies the us-east-1 fallback for AWS S3.
//
// sdkRegion already reflects the explicit config region, env/profile
// resolution and any IMDS lookup. S3-compatible endpoints get no default.
func resolveRegion(cfgRegion, endpoint, sdkRegion string) string {
	if sdkRegion != "" {
		return sdkRegion
	}
	if cfgRegion != "" {
		return cfgRegion
	}
	if endpoint == "" {
		return DefaultAWSRegion
	}
	return ""
}

// Package cloudtest seeds and tears down buckets on a local moto server for
// the cloudintegration-tagged provider tests.
//
// Tests build their own bucketdir client from ClientConfig (s3) or from
// Endpoint and the test credentials (minio). Seeding and cleanup go through
// a separate raw SDK client so a broken provider cannot mask its own bugs.
package cloudtest

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	s3client "github.com/3leaps/bucketdir/pkg/provider/s3"
)

const (
	// DefaultEndpoint avoids port 5000, which macOS AirPlay holds.
	DefaultEndpoint = "http://localhost:5555"
	DefaultRegion   = "us-east-1"

	// moto accepts any credentials.
	TestAccessKeyID     = "testing"
	TestSecretAccessKey = "testing"
)

var (
	// Endpoint and Region can be overridden with MOTO_ENDPOINT and MOTO_REGION.
	Endpoint = envOr("MOTO_ENDPOINT", DefaultEndpoint)
	Region   = envOr("MOTO_REGION", DefaultRegion)

	rawOnce sync.Once
	raw     *s3.Client
	rawErr  error
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// SkipIfUnavailable skips t when moto does not answer on Endpoint.
func SkipIfUnavailable(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, Endpoint+"/moto-api/", nil)
	if err == nil {
		var resp *http.Response
		if resp, err = http.DefaultClient.Do(req); err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
			err = fmt.Errorf("status %d", resp.StatusCode)
		}
	}
	t.Skipf("moto not reachable at %s: %v", Endpoint, err)
}

// ClientConfig points a bucketdir s3 client at moto.
func ClientConfig() s3client.Config {
	return s3client.Config{
		Endpoint:        Endpoint,
		Region:          Region,
		AccessKeyID:     TestAccessKeyID,
		SecretAccessKey: TestSecretAccessKey,
		ForcePathStyle:  true,
	}
}

func rawClient(t *testing.T) *s3.Client {
	t.Helper()
	rawOnce.Do(func() {
		cfg, err := config.LoadDefaultConfig(context.Background(),
			config.WithRegion(Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(TestAccessKeyID, TestSecretAccessKey, "")),
		)
		if err != nil {
			rawErr = fmt.Errorf("load config: %w", err)
			return
		}
		raw = s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(Endpoint)
			o.UsePathStyle = true
		})
	})
	if rawErr != nil {
		t.Fatalf("moto client: %v", rawErr)
	}
	return raw
}

// CreateBucket creates a bucket named after the test and removes it, with
// everything in it, when the test ends.
func CreateBucket(t *testing.T, ctx context.Context) string {
	t.Helper()

	name := strings.NewReplacer("/", "-", "_", "-").Replace(strings.ToLower(t.Name()))
	if len(name) > 50 {
		name = name[:50]
	}
	name = fmt.Sprintf("%s-%d", name, time.Now().UnixNano()%100000)

	if _, err := rawClient(t).CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)}); err != nil {
		t.Fatalf("create bucket %s: %v", name, err)
	}
	t.Cleanup(func() { dropBucket(t, name) })
	return name
}

func dropBucket(t *testing.T, bucket string) {
	ctx := context.Background()
	c := rawClient(t)
	for _, key := range Keys(t, ctx, bucket) {
		if _, err := c.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}); err != nil {
			t.Logf("cleanup: delete %s/%s: %v", bucket, key, err)
		}
	}
	if _, err := c.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Logf("cleanup: delete bucket %s: %v", bucket, err)
	}
}

// Keys returns every key in bucket, bypassing the client under test.
func Keys(t *testing.T, ctx context.Context, bucket string) []string {
	t.Helper()

	var keys []string
	pages := s3.NewListObjectsV2Paginator(rawClient(t), &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			t.Fatalf("list %s: %v", bucket, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys
}

// PutObjects seeds one small object per key. The body names the key.
func PutObjects(t *testing.T, ctx context.Context, bucket string, keys []string) {
	t.Helper()

	c := rawClient(t)
	for _, key := range keys {
		_, err := c.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   strings.NewReader("test content for " + key),
		})
		if err != nil {
			t.Fatalf("put %s/%s: %v", bucket, key, err)
		}
	}
}

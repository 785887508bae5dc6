package vdir

import (
	"context"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/bucketdir/pkg/provider"
	"github.com/3leaps/bucketdir/pkg/provider/file"
)

const testBucket = "photos"

// newStore returns a file-backed store on an in-memory filesystem holding
// objects in testBucket.
func newStore(t *testing.T, objects map[string]string) *file.Client {
	t.Helper()
	c, err := file.New(file.Config{Root: "/store", Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	require.NoError(t, c.CreateBucket(testBucket))
	for k, v := range objects {
		_, err := c.PutObject(context.Background(), testBucket, k, strings.NewReader(v), int64(len(v)))
		require.NoError(t, err)
	}
	return c
}

func newDriver(client provider.Client, local afero.Fs, cfg Config) *Driver {
	if cfg.DefaultBucket == "" {
		cfg.DefaultBucket = testBucket
	}
	return New(client, local, nil, cfg)
}

// allKeys lists every object in bucket, markers included, sorted.
func allKeys(t *testing.T, c provider.Lister, bucket string) []string {
	t.Helper()
	var keys []string
	token := ""
	for {
		res, err := c.List(context.Background(), provider.ListOptions{Bucket: bucket, ContinuationToken: token})
		require.NoError(t, err)
		for _, o := range res.Objects {
			keys = append(keys, o.Key)
		}
		if !res.IsTruncated {
			break
		}
		token = res.ContinuationToken
	}
	sort.Strings(keys)
	return keys
}

func readObject(t *testing.T, c provider.ObjectGetter, bucket, key string) string {
	t.Helper()
	body, _, err := c.GetObject(context.Background(), bucket, key)
	require.NoError(t, err)
	defer func() { _ = body.Close() }()
	b, err := io.ReadAll(body)
	require.NoError(t, err)
	return string(b)
}

// faultClient injects failures into a real client.
type faultClient struct {
	provider.Client

	listErr   error
	copyErr   map[string]error // by source key
	deleteErr map[string]error // by key, single and bulk
	headSize  map[string]int64 // overrides reported sizes
	blockCopy bool             // copies wait for cancellation
}

func (f *faultClient) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Client.List(ctx, opts)
}

func (f *faultClient) Head(ctx context.Context, bucket, key string) (*provider.ObjectMeta, error) {
	meta, err := f.Client.Head(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	if size, ok := f.headSize[key]; ok {
		meta.Size = size
	}
	return meta, nil
}

func (f *faultClient) CopyObject(ctx context.Context, in provider.CopyInput) (*provider.Receipt, error) {
	if f.blockCopy {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := f.copyErr[in.SrcKey]; err != nil {
		return nil, err
	}
	return f.Client.CopyObject(ctx, in)
}

func (f *faultClient) DeleteObject(ctx context.Context, bucket, key string) (*provider.Receipt, error) {
	if err := f.deleteErr[key]; err != nil {
		return nil, err
	}
	return f.Client.DeleteObject(ctx, bucket, key)
}

func (f *faultClient) DeleteObjects(ctx context.Context, bucket string, req *provider.DeleteRequest) (*provider.DeleteResult, error) {
	pass := &provider.DeleteRequest{Objects: []provider.ObjectIdentifier{}, Quiet: req.Quiet}
	result := &provider.DeleteResult{}
	for _, obj := range req.Objects {
		if err := f.deleteErr[obj.Key]; err != nil {
			result.Errors = append(result.Errors, provider.DeleteError{Key: obj.Key, Code: "AccessDenied", Message: err.Error(), Err: err})
			continue
		}
		pass.Objects = append(pass.Objects, obj)
	}
	inner, err := f.Client.DeleteObjects(ctx, bucket, pass)
	if inner != nil {
		result.Deleted = append(result.Deleted, inner.Deleted...)
		result.Errors = append(result.Errors, inner.Errors...)
	}
	return result, err
}

func denied(key string) error {
	return &provider.ProviderError{Op: "test", Provider: provider.ProviderFile, Bucket: testBucket, Key: key, Err: provider.ErrAccessDenied}
}

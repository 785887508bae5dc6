// Package file implements provider.Client over a local directory tree.
//
// Each bucket is a directory directly under Root and each key is a slash
// separated path inside it. An empty directory is reported as a directory
// marker key ending in "/", the way S3 consoles materialize folders.
package file

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/3leaps/bucketdir/pkg/provider"
)

// DefaultMaxKeys is the page size used when ListOptions.MaxKeys is zero.
const DefaultMaxKeys = 1000

// Client implements provider.Client for local filesystem buckets.
type Client struct {
	fs   afero.Fs
	root string
}

var _ provider.Client = (*Client)(nil)

// Config configures a file client.
type Config struct {
	// Root is the directory holding one subdirectory per bucket.
	Root string

	// Fs is the filesystem to use. Nil means the OS filesystem.
	Fs afero.Fs
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Root) == "" {
		return fmt.Errorf("file config: root is required")
	}
	return nil
}

// New creates a file client rooted at cfg.Root.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Client{fs: fs, root: filepath.Clean(cfg.Root)}, nil
}

// CreateBucket makes the bucket directory. Existing buckets are left alone.
func (c *Client) CreateBucket(bucket string) error {
	dir, err := c.bucketPath(bucket)
	if err != nil {
		return c.wrapError("CreateBucket", bucket, "", err)
	}
	if err := c.fs.MkdirAll(dir, 0o755); err != nil {
		return c.wrapError("CreateBucket", bucket, "", err)
	}
	return nil
}

// Close releases nothing; it satisfies provider.Client.
func (c *Client) Close() error { return nil }

// List returns keys starting with opts.Prefix in lexical order.
func (c *Client) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, c.wrapError("List", opts.Bucket, "", err)
	}
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}

	base, err := c.existingBucket(opts.Bucket)
	if err != nil {
		return nil, c.wrapError("List", opts.Bucket, "", err)
	}

	entries, err := c.collect(base, strings.TrimPrefix(opts.Prefix, "/"))
	if err != nil {
		return nil, c.wrapError("List", opts.Bucket, "", err)
	}

	start := 0
	if opts.ContinuationToken != "" {
		// Start strictly after the last returned key.
		start = sort.Search(len(entries), func(i int) bool { return entries[i].Key > opts.ContinuationToken })
	}
	end := min(start+maxKeys, len(entries))

	res := &provider.ListResult{Objects: entries[start:end]}
	if end < len(entries) {
		res.IsTruncated = true
		res.ContinuationToken = entries[end-1].Key
	}
	return res, nil
}

// Head returns size and modification time for a key.
func (c *Client) Head(ctx context.Context, bucket, key string) (*provider.ObjectMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, c.wrapError("Head", bucket, key, err)
	}
	full, err := c.objectPath(bucket, key)
	if err != nil {
		return nil, c.wrapError("Head", bucket, key, err)
	}
	st, err := c.fs.Stat(full)
	if err != nil {
		return nil, c.wrapError("Head", bucket, key, err)
	}
	if st.IsDir() != strings.HasSuffix(key, "/") {
		return nil, c.wrapError("Head", bucket, key, os.ErrNotExist)
	}

	size := st.Size()
	if st.IsDir() {
		size = 0
	}
	return &provider.ObjectMeta{
		ObjectSummary: provider.ObjectSummary{Key: key, Size: size, LastModified: st.ModTime()},
	}, nil
}

// GetObject opens the file behind key.
func (c *Client) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, c.wrapError("GetObject", bucket, key, err)
	}
	full, err := c.objectPath(bucket, key)
	if err != nil {
		return nil, 0, c.wrapError("GetObject", bucket, key, err)
	}
	f, err := c.fs.Open(full)
	if err != nil {
		return nil, 0, c.wrapError("GetObject", bucket, key, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, c.wrapError("GetObject", bucket, key, err)
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, 0, c.wrapError("GetObject", bucket, key, os.ErrNotExist)
	}
	return f, st.Size(), nil
}

// PutObject writes body atomically (temp file then rename). A key ending in
// "/" creates a directory marker and ignores body.
func (c *Client) PutObject(ctx context.Context, bucket, key string, body io.Reader, contentLength int64) (*provider.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, c.wrapError("PutObject", bucket, key, err)
	}
	if _, err := c.existingBucket(bucket); err != nil {
		return nil, c.wrapError("PutObject", bucket, key, err)
	}
	full, err := c.objectPath(bucket, key)
	if err != nil {
		return nil, c.wrapError("PutObject", bucket, key, err)
	}

	if strings.HasSuffix(key, "/") {
		if err := c.fs.MkdirAll(full, 0o755); err != nil {
			return nil, c.wrapError("PutObject", bucket, key, err)
		}
		return &provider.Receipt{Bucket: bucket, Key: key}, nil
	}

	etag, written, err := c.writeAtomic(full, body)
	if err != nil {
		return nil, c.wrapError("PutObject", bucket, key, err)
	}
	if contentLength >= 0 && written != contentLength {
		return nil, c.wrapError("PutObject", bucket, key, fmt.Errorf("short body: wrote %d of %d bytes", written, contentLength))
	}
	return &provider.Receipt{Bucket: bucket, Key: key, ETag: etag, Size: written}, nil
}

// CopyObject duplicates an object, possibly across buckets.
func (c *Client) CopyObject(ctx context.Context, in provider.CopyInput) (*provider.Receipt, error) {
	body, _, err := c.GetObject(ctx, in.SrcBucket, in.SrcKey)
	if err != nil {
		return nil, retag(err, "CopyObject")
	}
	defer func() { _ = body.Close() }()

	if _, err := c.existingBucket(in.DstBucket); err != nil {
		return nil, c.wrapError("CopyObject", in.DstBucket, in.DstKey, err)
	}
	full, err := c.objectPath(in.DstBucket, in.DstKey)
	if err != nil {
		return nil, c.wrapError("CopyObject", in.DstBucket, in.DstKey, err)
	}

	etag, written, err := c.writeAtomic(full, body)
	if err != nil {
		return nil, c.wrapError("CopyObject", in.DstBucket, in.DstKey, err)
	}
	return &provider.Receipt{Bucket: in.DstBucket, Key: in.DstKey, ETag: etag, Size: written}, nil
}

// DeleteObject removes a key. Missing keys are not an error. Parent
// directories left empty are pruned so they do not surface as markers.
func (c *Client) DeleteObject(ctx context.Context, bucket, key string) (*provider.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, c.wrapError("DeleteObject", bucket, key, err)
	}
	base, err := c.existingBucket(bucket)
	if err != nil {
		return nil, c.wrapError("DeleteObject", bucket, key, err)
	}
	full, err := c.objectPath(bucket, key)
	if err != nil {
		return nil, c.wrapError("DeleteObject", bucket, key, err)
	}

	// A marker only goes away once nothing lives under it.
	if strings.HasSuffix(key, "/") {
		if entries, _ := afero.ReadDir(c.fs, full); len(entries) > 0 {
			return &provider.Receipt{Bucket: bucket, Key: key}, nil
		}
	}

	if err := c.fs.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, c.wrapError("DeleteObject", bucket, key, err)
	}
	c.pruneEmptyParents(base, filepath.Dir(full))
	return &provider.Receipt{Bucket: bucket, Key: key}, nil
}

// DeleteObjects deletes keys one at a time; failures become per-key errors.
func (c *Client) DeleteObjects(ctx context.Context, bucket string, req *provider.DeleteRequest) (*provider.DeleteResult, error) {
	result := &provider.DeleteResult{}
	if req.Len() == 0 {
		return result, nil
	}
	if _, err := c.existingBucket(bucket); err != nil {
		werr := c.wrapError("DeleteObjects", bucket, "", err)
		for _, obj := range req.Objects {
			result.Errors = append(result.Errors, provider.DeleteError{Key: obj.Key, Message: werr.Error(), Err: werr})
		}
		return result, werr
	}

	for _, obj := range req.Objects {
		if _, err := c.DeleteObject(ctx, bucket, obj.Key); err != nil {
			result.Errors = append(result.Errors, provider.DeleteError{Key: obj.Key, Message: err.Error(), Err: err})
			continue
		}
		if !req.Quiet {
			result.Deleted = append(result.Deleted, obj.Key)
		}
	}
	return result, nil
}

func (c *Client) writeAtomic(full string, body io.Reader) (string, int64, error) {
	dir := filepath.Dir(full)
	if err := c.fs.MkdirAll(dir, 0o755); err != nil {
		return "", 0, err
	}

	tmp, err := afero.TempFile(c.fs, dir, ".bucketdir-put-*")
	if err != nil {
		return "", 0, err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = c.fs.Remove(tmpName)
	}()

	h := md5.New()
	written, err := io.Copy(io.MultiWriter(tmp, h), body)
	if err != nil {
		return "", 0, err
	}
	if err := tmp.Close(); err != nil {
		return "", 0, err
	}
	if err := c.fs.Rename(tmpName, full); err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), written, nil
}

func (c *Client) pruneEmptyParents(base, dir string) {
	for dir != base && strings.HasPrefix(dir, base) {
		entries, err := afero.ReadDir(c.fs, dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := c.fs.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// collect walks the deepest directory implied by prefix and returns every
// key (and empty-directory marker) that starts with prefix, sorted.
func (c *Client) collect(base, prefix string) ([]provider.ObjectSummary, error) {
	walkRoot := base
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dir, err := cleanKey(prefix[:i])
		if err != nil {
			return nil, err
		}
		walkRoot = filepath.Join(base, filepath.FromSlash(dir))
	}
	if ok, _ := afero.DirExists(c.fs, walkRoot); !ok {
		return []provider.ObjectSummary{}, nil
	}

	var out []provider.ObjectSummary
	err := afero.Walk(c.fs, walkRoot, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if p == base {
			return nil
		}
		rel, relErr := filepath.Rel(base, p)
		if relErr != nil {
			return nil
		}
		key := filepath.ToSlash(rel)

		if info.IsDir() {
			entries, _ := afero.ReadDir(c.fs, p)
			if len(entries) > 0 {
				return nil
			}
			key += "/"
			if strings.HasPrefix(key, prefix) {
				out = append(out, provider.ObjectSummary{Key: key, LastModified: info.ModTime()})
			}
			return nil
		}

		if strings.HasPrefix(path.Base(key), ".bucketdir-put-") {
			return nil
		}
		if strings.HasPrefix(key, prefix) {
			out = append(out, provider.ObjectSummary{Key: key, Size: info.Size(), LastModified: info.ModTime()})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (c *Client) bucketPath(bucket string) (string, error) {
	if bucket == "" || bucket == "." || bucket == ".." || strings.ContainsAny(bucket, `/\`) {
		return "", fmt.Errorf("%w: bucket %q", provider.ErrInvalidKey, bucket)
	}
	return filepath.Join(c.root, bucket), nil
}

func (c *Client) existingBucket(bucket string) (string, error) {
	dir, err := c.bucketPath(bucket)
	if err != nil {
		return "", err
	}
	if ok, _ := afero.DirExists(c.fs, dir); !ok {
		return "", provider.ErrBucketNotFound
	}
	return dir, nil
}

func (c *Client) objectPath(bucket, key string) (string, error) {
	base, err := c.bucketPath(bucket)
	if err != nil {
		return "", err
	}
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if clean == "" {
		return "", fmt.Errorf("%w: empty key", provider.ErrInvalidKey)
	}
	return filepath.Join(base, filepath.FromSlash(clean)), nil
}

// cleanKey normalizes a key. Any ".." segment is rejected before cleaning,
// so neither "../x" nor "a/../x" can reach another object or leave the bucket.
func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "", nil
	}
	for _, seg := range strings.FieldsFunc(key, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q escapes bucket", provider.ErrInvalidKey, key)
		}
	}
	if clean := path.Clean(key); clean != "." {
		return clean, nil
	}
	return "", nil
}

func (c *Client) wrapError(op, bucket, key string, err error) error {
	wrapped := &provider.ProviderError{Op: op, Provider: provider.ProviderFile, Bucket: bucket, Key: key, Err: err}
	switch {
	case errors.Is(err, os.ErrNotExist):
		wrapped.Err = provider.ErrNotFound
	case errors.Is(err, os.ErrPermission):
		wrapped.Err = provider.ErrAccessDenied
	}
	return wrapped
}

// retag rewrites the Op of a ProviderError produced by a nested call.
func retag(err error, op string) error {
	var pe *provider.ProviderError
	if errors.As(err, &pe) {
		cp := *pe
		cp.Op = op
		return &cp
	}
	return err
}

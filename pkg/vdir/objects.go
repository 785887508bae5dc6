package vdir

import (
	"context"
	"io"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/3leaps/bucketdir/pkg/provider"
)

// PutFile uploads the local file at localPath to key.
func (d *Driver) PutFile(ctx context.Context, bucket, key, localPath string) (*provider.Receipt, error) {
	b, err := ResolveBucket(bucket, d.cfg.DefaultBucket)
	if err != nil {
		return nil, err
	}
	rcpt, err := d.putLocal(ctx, b, key, localPath)
	if err != nil {
		return nil, &TransferError{Op: OpUpload, Bucket: b, Key: key, Err: err}
	}
	return rcpt, nil
}

// GetFile downloads key to localPath, creating its parent directory.
func (d *Driver) GetFile(ctx context.Context, bucket, key, localPath string) (*provider.Receipt, error) {
	b, err := ResolveBucket(bucket, d.cfg.DefaultBucket)
	if err != nil {
		return nil, err
	}
	if err := d.fs.MkdirAll(filepath.Dir(localPath), d.cfg.DirPerm); err != nil {
		return nil, &TransferError{Op: OpDownload, Bucket: b, Key: key, Err: localErr(err)}
	}
	rcpt, err := d.getLocal(ctx, b, key, localPath)
	if err != nil {
		return nil, &TransferError{Op: OpDownload, Bucket: b, Key: key, Err: err}
	}
	return rcpt, nil
}

// CopyFile copies one object. Empty buckets fall back to the default bucket.
func (d *Driver) CopyFile(ctx context.Context, fromBucket, fromKey, toBucket, toKey string) (*provider.Receipt, error) {
	fb, err := ResolveBucket(fromBucket, d.cfg.DefaultBucket)
	if err != nil {
		return nil, err
	}
	tb, err := ResolveBucket(toBucket, d.cfg.DefaultBucket)
	if err != nil {
		return nil, err
	}
	rcpt, err := d.client.CopyObject(ctx, provider.CopyInput{SrcBucket: fb, SrcKey: fromKey, DstBucket: tb, DstKey: toKey})
	if err != nil {
		return nil, &TransferError{Op: OpCopy, Bucket: fb, Key: fromKey, Err: err}
	}
	return rcpt, nil
}

// MoveFile copies fromKey to toKey within bucket, then deletes fromKey.
// The delete is skipped when the copy fails. When the delete fails the
// object exists at both keys and the copy receipt is returned with the error.
func (d *Driver) MoveFile(ctx context.Context, bucket, fromKey, toKey string) (*provider.Receipt, error) {
	b, err := ResolveBucket(bucket, d.cfg.DefaultBucket)
	if err != nil {
		return nil, err
	}
	if fromKey == toKey {
		return nil, &TransferError{Op: OpMove, Bucket: b, Key: fromKey, Err: ErrSameKey}
	}
	rcpt, err := d.client.CopyObject(ctx, provider.CopyInput{SrcBucket: b, SrcKey: fromKey, DstBucket: b, DstKey: toKey})
	if err != nil {
		return nil, &TransferError{Op: OpMove, Bucket: b, Key: fromKey, Err: err}
	}
	if _, err := d.client.DeleteObject(ctx, b, fromKey); err != nil {
		return rcpt, &TransferError{Op: OpMove, Bucket: b, Key: fromKey, Err: err}
	}
	return rcpt, nil
}

// DeleteFile deletes one object.
func (d *Driver) DeleteFile(ctx context.Context, bucket, key string) (*provider.Receipt, error) {
	b, err := ResolveBucket(bucket, d.cfg.DefaultBucket)
	if err != nil {
		return nil, err
	}
	rcpt, err := d.client.DeleteObject(ctx, b, key)
	if err != nil {
		return nil, &TransferError{Op: OpDelete, Bucket: b, Key: key, Err: err}
	}
	return rcpt, nil
}

func (d *Driver) putLocal(ctx context.Context, bucket, key, localPath string) (*provider.Receipt, error) {
	f, err := d.fs.Open(localPath)
	if err != nil {
		return nil, localErr(err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, localErr(err)
	}
	return d.client.PutObject(ctx, bucket, key, f, info.Size())
}

// getLocal streams key into a temp file beside localPath and renames it
// into place. The parent directory must exist.
func (d *Driver) getLocal(ctx context.Context, bucket, key, localPath string) (*provider.Receipt, error) {
	body, _, err := d.client.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	tmp, err := afero.TempFile(d.fs, filepath.Dir(localPath), ".bucketdir-get-*")
	if err != nil {
		return nil, localErr(err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = d.fs.Remove(tmpName) }

	n, err := io.Copy(tmp, body)
	if err != nil {
		_ = tmp.Close()
		cleanup()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return nil, localErr(err)
	}
	if err := d.fs.Rename(tmpName, localPath); err != nil {
		cleanup()
		return nil, localErr(err)
	}
	return &provider.Receipt{Bucket: bucket, Key: key, Size: n}, nil
}

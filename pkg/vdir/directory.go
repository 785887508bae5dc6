package vdir

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/3leaps/bucketdir/pkg/listing"
	"github.com/3leaps/bucketdir/pkg/mirror"
	"github.com/3leaps/bucketdir/pkg/provider"
)

// CopyDirectory copies every member of (fromBucket, fromPrefix) under
// toPrefix in toBucket. Destination keys follow Config.KeyMapping.
func (d *Driver) CopyDirectory(ctx context.Context, fromBucket, fromPrefix, toBucket, toPrefix string) (*Report, error) {
	fb, err := ResolveBucket(fromBucket, d.cfg.DefaultBucket)
	if err != nil {
		return nil, err
	}
	tb, err := ResolveBucket(toBucket, d.cfg.DefaultBucket)
	if err != nil {
		return nil, err
	}
	keys, err := d.lister.List(ctx, fb, fromPrefix, d.cfg.MaxKeys)
	if err != nil {
		return nil, err
	}

	rep := d.newReport(OpCopy, fb, fromPrefix, toPrefix, keys)
	for i := range rep.Results {
		rep.Results[i].Target = d.DestinationKey(fromPrefix, toPrefix, rep.Results[i].Key)
	}
	rep.Results = d.fanOut(ctx, rep.Results, func(ctx context.Context, r *Result) {
		r.Stage = StageCopy
		rcpt, err := d.client.CopyObject(ctx, provider.CopyInput{SrcBucket: fb, SrcKey: r.Key, DstBucket: tb, DstKey: r.Target})
		if err != nil {
			r.Err = &TransferError{Op: OpCopy, Bucket: fb, Key: r.Key, Err: err}
			return
		}
		r.Receipt = rcpt
	})
	return d.finish(rep)
}

// MoveDirectory moves every member of (bucket, fromPrefix) under toPrefix
// in the same bucket, sequenced by Config.MoveMode.
func (d *Driver) MoveDirectory(ctx context.Context, fromPrefix, toPrefix, bucket string) (*Report, error) {
	b, err := ResolveBucket(bucket, d.cfg.DefaultBucket)
	if err != nil {
		return nil, err
	}
	keys, err := d.lister.List(ctx, b, fromPrefix, d.cfg.MaxKeys)
	if err != nil {
		return nil, err
	}

	rep := d.newReport(OpMove, b, fromPrefix, toPrefix, keys)
	claimed := make(map[string]bool, len(keys))
	for i := range rep.Results {
		r := &rep.Results[i]
		r.Target = d.DestinationKey(fromPrefix, toPrefix, r.Key)
		switch {
		case r.Target == r.Key:
			r.Stage = StageCopy
			r.Err = &TransferError{Op: OpMove, Bucket: b, Key: r.Key, Err: ErrSameKey}
		case claimed[r.Target]:
			r.Stage = StageCopy
			r.Err = &TransferError{Op: OpMove, Bucket: b, Key: r.Key, Err: ErrDestinationCollision}
		default:
			claimed[r.Target] = true
		}
	}

	if d.cfg.MoveMode == MoveModeVerifyThenDelete {
		rep.Results = d.moveVerified(ctx, b, rep.Results)
	} else {
		rep.Results = d.fanOut(ctx, rep.Results, func(ctx context.Context, r *Result) {
			r.Stage = StageCopy
			rcpt, err := d.client.CopyObject(ctx, provider.CopyInput{SrcBucket: b, SrcKey: r.Key, DstBucket: b, DstKey: r.Target})
			if err != nil {
				r.Err = &TransferError{Op: OpMove, Bucket: b, Key: r.Key, Err: err}
				return
			}
			r.Receipt = rcpt
			r.Stage = StageDelete
			if _, err := d.client.DeleteObject(ctx, b, r.Key); err != nil {
				r.Err = &TransferError{Op: OpMove, Bucket: b, Key: r.Key, Err: err}
			}
		})
	}
	return d.finish(rep)
}

// moveVerified copies and verifies every key, then deletes all sources in
// one bulk request. Any failure before the delete rolls the copies back.
func (d *Driver) moveVerified(ctx context.Context, bucket string, templates []Result) []Result {
	results := d.fanOut(ctx, templates, func(ctx context.Context, r *Result) {
		r.Stage = StageCopy
		src, err := d.client.Head(ctx, bucket, r.Key)
		if err != nil {
			r.Err = &TransferError{Op: OpMove, Bucket: bucket, Key: r.Key, Err: err}
			return
		}
		rcpt, err := d.client.CopyObject(ctx, provider.CopyInput{SrcBucket: bucket, SrcKey: r.Key, DstBucket: bucket, DstKey: r.Target})
		if err != nil {
			r.Err = &TransferError{Op: OpMove, Bucket: bucket, Key: r.Key, Err: err}
			return
		}
		r.Receipt = rcpt

		r.Stage = StageVerify
		dst, err := d.client.Head(ctx, bucket, r.Target)
		if err != nil {
			r.Err = &TransferError{Op: OpMove, Bucket: bucket, Key: r.Key, Err: err}
			return
		}
		if dst.Size != src.Size {
			r.Err = &TransferError{Op: OpMove, Bucket: bucket, Key: r.Key, Err: &SizeMismatchError{Key: r.Target, Expected: src.Size, Got: dst.Size}}
		}
	})

	failed := false
	for _, r := range results {
		if r.Err != nil {
			failed = true
			break
		}
	}
	if failed {
		return d.rollback(ctx, bucket, results)
	}

	sources := make([]string, len(results))
	for i, r := range results {
		sources[i] = r.Key
	}
	res, err := d.deleteBulk(ctx, bucket, sources)
	for i := range results {
		r := &results[i]
		r.Stage = StageDelete
		if kerr := keyDeleteErr(res, err, r.Key); kerr != nil {
			r.Err = &TransferError{Op: OpMove, Bucket: bucket, Key: r.Key, Err: kerr}
		}
	}
	return results
}

// rollback removes the copies made by results that reached a destination.
// Those keys are reported as rolled back; the failing keys keep their error.
func (d *Driver) rollback(ctx context.Context, bucket string, results []Result) []Result {
	var targets []string
	for _, r := range results {
		if r.Receipt != nil {
			targets = append(targets, r.Target)
		}
	}
	d.logger.Warn("rolling back move",
		zap.String("bucket", bucket),
		zap.Int("copies", len(targets)),
	)

	res, err := d.deleteBulk(ctx, bucket, targets)
	for i := range results {
		r := &results[i]
		if r.Receipt == nil {
			continue
		}
		if kerr := keyDeleteErr(res, err, r.Target); kerr != nil {
			r.Stage = StageRollback
			r.Err = &TransferError{Op: OpMove, Bucket: bucket, Key: r.Key, Err: errors.Join(r.Err, kerr)}
			continue
		}
		if r.Err == nil {
			r.Stage = StageRollback
			r.Err = &TransferError{Op: OpMove, Bucket: bucket, Key: r.Key, Err: ErrRolledBack}
		}
	}
	return results
}

// DeleteDirectory removes every member of (bucket, prefix) with one bulk
// delete. An empty directory is a successful no-op.
func (d *Driver) DeleteDirectory(ctx context.Context, bucket, prefix string) (*Report, error) {
	b, err := ResolveBucket(bucket, d.cfg.DefaultBucket)
	if err != nil {
		return nil, err
	}
	keys, err := d.lister.List(ctx, b, prefix, d.cfg.MaxKeys)
	if err != nil {
		return nil, err
	}

	rep := d.newReport(OpDelete, b, prefix, "", keys)
	if len(keys) == 0 {
		return d.finish(rep)
	}

	res, err := d.deleteBulk(ctx, b, keys)
	for i := range rep.Results {
		r := &rep.Results[i]
		r.Stage = StageDelete
		if kerr := keyDeleteErr(res, err, r.Key); kerr != nil {
			r.Err = &TransferError{Op: OpDelete, Bucket: b, Key: r.Key, Err: kerr}
		}
	}
	for _, r := range rep.Failed() {
		d.logger.Warn("key failed",
			zap.String("op", string(r.Op)),
			zap.String("bucket", r.Bucket),
			zap.String("key", r.Key),
			zap.Error(r.Err),
		)
	}
	return d.finish(rep)
}

func (d *Driver) deleteBulk(ctx context.Context, bucket string, keys []string) (*provider.DeleteResult, error) {
	if len(keys) == 0 {
		return &provider.DeleteResult{}, nil
	}
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	return d.client.DeleteObjects(ctx, bucket, BuildDeleteRequest(keys))
}

// keyDeleteErr picks the outcome for key out of a bulk delete.
func keyDeleteErr(res *provider.DeleteResult, err error, key string) error {
	if res == nil {
		return err
	}
	if de := res.ErrorFor(key); de != nil {
		return de
	}
	if err != nil && len(res.Errors) == 0 {
		return err
	}
	return nil
}

// DownloadDirectory writes every member of (bucket, remotePrefix) to
// localRoot joined with its full key. Parent directories are created first;
// a key whose directory could not be created fails alone.
func (d *Driver) DownloadDirectory(ctx context.Context, bucket, remotePrefix, localRoot string) (*Report, error) {
	b, err := ResolveBucket(bucket, d.cfg.DefaultBucket)
	if err != nil {
		return nil, err
	}
	keys, err := d.lister.List(ctx, b, remotePrefix, d.cfg.MaxKeys)
	if err != nil {
		return nil, err
	}

	rep := d.newReport(OpDownload, b, remotePrefix, localRoot, keys)
	plan := d.mirror.Materialize(keys, localRoot)
	for _, de := range plan.Failed() {
		d.logger.Warn("local directory create failed", zap.String("path", de.Path), zap.Error(de.Err))
	}

	for i := range rep.Results {
		r := &rep.Results[i]
		if p, err := mirror.LocalPath(localRoot, r.Key); err == nil {
			r.Target = p
		}
		if err := plan.Err(r.Key); err != nil {
			r.Stage = StageMkdir
			r.Err = &TransferError{Op: OpDownload, Bucket: b, Key: r.Key, Err: err}
		}
	}

	rep.Results = d.fanOut(ctx, rep.Results, func(ctx context.Context, r *Result) {
		r.Stage = StageGet
		rcpt, err := d.getLocal(ctx, b, r.Key, r.Target)
		if err != nil {
			r.Err = &TransferError{Op: OpDownload, Bucket: b, Key: r.Key, Err: err}
			return
		}
		r.Receipt = rcpt
	})
	return d.finish(rep)
}

// UploadDirectory puts every regular file below localRoot under prefix,
// keeping the relative path. Files are visited in lexical order.
func (d *Driver) UploadDirectory(ctx context.Context, localRoot, bucket, prefix string) (*Report, error) {
	b, err := ResolveBucket(bucket, d.cfg.DefaultBucket)
	if err != nil {
		return nil, err
	}

	var keys, paths []string
	err = afero.Walk(d.fs, localRoot, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(localRoot, p)
		if err != nil {
			return err
		}
		if rel == "." {
			rel = filepath.Base(p)
		}
		keys = append(keys, joinKey(prefix, filepath.ToSlash(rel)))
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, &TransferError{Op: OpUpload, Bucket: b, Key: prefix, Err: localErr(err)}
	}

	rep := d.newReport(OpUpload, b, prefix, localRoot, keys)
	for i := range rep.Results {
		rep.Results[i].Target = paths[i]
	}
	rep.Results = d.fanOut(ctx, rep.Results, func(ctx context.Context, r *Result) {
		r.Stage = StagePut
		rcpt, err := d.putLocal(ctx, b, r.Key, r.Target)
		if err != nil {
			r.Err = &TransferError{Op: OpUpload, Bucket: b, Key: r.Key, Err: err}
			return
		}
		r.Receipt = rcpt
	})
	return d.finish(rep)
}

// DestinationKey maps a member key of fromPrefix to its key under toPrefix
// according to Config.KeyMapping.
func (d *Driver) DestinationKey(fromPrefix, toPrefix, key string) string {
	if d.cfg.KeyMapping == KeyMappingRelative {
		return joinKey(toPrefix, relativeKey(fromPrefix, key))
	}
	return joinKey(toPrefix, path.Base(key))
}

// relativeKey returns the part of key after the first "<prefix>/".
func relativeKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	if i := strings.Index(key, prefix+listing.Separator); i >= 0 {
		return key[i+len(prefix)+1:]
	}
	return path.Base(key)
}

// joinKey joins prefix and name with exactly one separator.
func joinKey(prefix, name string) string {
	prefix = strings.TrimSuffix(prefix, listing.Separator)
	if prefix == "" {
		return name
	}
	return prefix + listing.Separator + name
}

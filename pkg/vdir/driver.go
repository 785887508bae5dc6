// Package vdir emulates directories on a flat object store.
//
// Every directory operation lists the member keys of (bucket, prefix) once,
// then fans a single-object operation out across them. One failing key never
// stops its siblings. The caller receives a Report with one Result per key
// and, when anything failed, a *BatchError naming the failed keys.
package vdir

import (
	"context"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/3leaps/bucketdir/pkg/listing"
	"github.com/3leaps/bucketdir/pkg/mirror"
	"github.com/3leaps/bucketdir/pkg/provider"
)

// Driver runs directory and single-object operations against one client.
// It is safe for concurrent use.
type Driver struct {
	client  provider.Client
	fs      afero.Fs
	logger  *zap.Logger
	cfg     Config
	lister  *listing.Lister
	mirror  *mirror.Materializer
	limiter *rate.Limiter
}

// New creates a Driver. A nil fs uses the OS filesystem and a nil logger
// disables logging. Zero config fields take DefaultConfig values.
func New(client provider.Client, fs afero.Fs, logger *zap.Logger, cfg Config) *Driver {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	d := &Driver{
		client: client,
		fs:     fs,
		logger: logger,
		cfg:    cfg,
		lister: listing.New(client, listing.Config{Paginate: cfg.Paginate, MaxPages: cfg.MaxPages}, logger),
		mirror: mirror.New(fs, cfg.DirPerm),
	}
	if cfg.RateLimit > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return d
}

// Config returns the effective configuration.
func (d *Driver) Config() Config { return d.cfg }

// List returns the member keys of the virtual directory (bucket, prefix).
// maxKeys <= 0 uses the configured cap.
func (d *Driver) List(ctx context.Context, bucket, prefix string, maxKeys int) ([]string, error) {
	b, err := ResolveBucket(bucket, d.cfg.DefaultBucket)
	if err != nil {
		return nil, err
	}
	if maxKeys <= 0 {
		maxKeys = d.cfg.MaxKeys
	}
	return d.lister.List(ctx, b, prefix, maxKeys)
}

// keyFunc performs the work for one key, filling Stage, Target, Receipt
// and Err on r.
type keyFunc func(ctx context.Context, r *Result)

// fanOut runs fn once per template, bounded by Concurrency. Each call owns
// its slot in the returned slice.
func (d *Driver) fanOut(ctx context.Context, templates []Result, fn keyFunc) []Result {
	results := make([]Result, len(templates))
	copy(results, templates)

	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)
	for i := range results {
		r := &results[i]
		if r.Err != nil {
			continue
		}
		g.Go(func() error {
			d.runKey(ctx, r, fn)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.Err != nil {
			d.logger.Warn("key failed",
				zap.String("op", string(r.Op)),
				zap.String("stage", string(r.Stage)),
				zap.String("bucket", r.Bucket),
				zap.String("key", r.Key),
				zap.String("target", r.Target),
				zap.Error(r.Err),
			)
		}
	}
	return results
}

func (d *Driver) runKey(ctx context.Context, r *Result, fn keyFunc) {
	start := time.Now()
	defer func() { r.Duration = time.Since(start) }()

	if err := ctx.Err(); err != nil {
		r.Err = &TransferError{Op: r.Op, Bucket: r.Bucket, Key: r.Key, Err: err}
		return
	}
	if err := d.wait(ctx); err != nil {
		r.Err = &TransferError{Op: r.Op, Bucket: r.Bucket, Key: r.Key, Err: err}
		return
	}

	kctx := ctx
	if d.cfg.KeyTimeout > 0 {
		var cancel context.CancelFunc
		kctx, cancel = context.WithTimeout(ctx, d.cfg.KeyTimeout)
		defer cancel()
	}
	fn(kctx, r)
}

func (d *Driver) wait(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	return d.limiter.Wait(ctx)
}

func (d *Driver) newReport(op Op, bucket, prefix, target string, keys []string) *Report {
	rep := &Report{
		Op:      op,
		Bucket:  bucket,
		Prefix:  prefix,
		Target:  target,
		Started: time.Now(),
		Results: make([]Result, len(keys)),
	}
	for i, k := range keys {
		rep.Results[i] = Result{Op: op, Bucket: bucket, Key: k}
	}
	return rep
}

func (d *Driver) finish(rep *Report) (*Report, error) {
	rep.Duration = time.Since(rep.Started)
	d.logger.Info("directory operation complete",
		zap.String("op", string(rep.Op)),
		zap.String("bucket", rep.Bucket),
		zap.String("prefix", rep.Prefix),
		zap.String("target", rep.Target),
		zap.Int("keys", len(rep.Results)),
		zap.Int("succeeded", rep.Succeeded()),
		zap.Duration("duration", rep.Duration),
	)
	if err := rep.Err(); err != nil {
		return rep, err
	}
	return rep, nil
}

// Package listing derives virtual directory membership from flat key
// enumeration.
//
// A virtual directory is never stored. Its members are the keys returned by
// one capped list call, minus directory markers, kept only when they contain
// "<prefix>/" somewhere in the key. The containment check is loose: "a/cp/x"
// is a member of "cp". The prefix is used as given, so "cp/" requires "cp//".
package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/bucketdir/pkg/provider"
)

// DefaultMaxKeys caps a single listing when the caller passes zero.
const DefaultMaxKeys = 100

// Separator is the directory separator interpreted inside keys.
const Separator = "/"

// ErrListingFailed matches every *Error via errors.Is.
var ErrListingFailed = errors.New("listing failed")

// Error reports a transport failure while enumerating a directory.
type Error struct {
	Bucket string
	Prefix string
	Err    error
}

func (e *Error) Error() string {
	if e.Prefix != "" {
		return fmt.Sprintf("listing %s/%s: %v", e.Bucket, e.Prefix, e.Err)
	}
	return fmt.Sprintf("listing %s: %v", e.Bucket, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrListingFailed }

// Config tunes a Lister.
type Config struct {
	// Paginate follows continuation tokens until the store is exhausted,
	// using maxKeys as the page size. Off by default: keys beyond the first
	// page are silently omitted.
	Paginate bool

	// MaxPages bounds pagination. Zero means no bound.
	MaxPages int
}

// Lister enumerates virtual directories.
type Lister struct {
	client provider.Lister
	cfg    Config
	logger *zap.Logger
}

// New creates a Lister. A nil logger disables logging.
func New(client provider.Lister, cfg Config, logger *zap.Logger) *Lister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lister{client: client, cfg: cfg, logger: logger}
}

// List returns the member keys of (bucket, prefix) in store order.
//
// An empty prefix lists the bucket. maxKeys <= 0 uses DefaultMaxKeys. The
// result may hold fewer than maxKeys keys even when more members exist,
// because the cap applies before filtering.
func (l *Lister) List(ctx context.Context, bucket, prefix string, maxKeys int) ([]string, error) {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}

	keys := []string{}
	token := ""
	pages := 0
	for {
		res, err := l.client.List(ctx, provider.ListOptions{
			Bucket:            bucket,
			Prefix:            prefix,
			MaxKeys:           maxKeys,
			ContinuationToken: token,
		})
		if err != nil {
			l.logger.Warn("listing failed",
				zap.String("bucket", bucket),
				zap.String("prefix", prefix),
				zap.Error(err),
			)
			return nil, &Error{Bucket: bucket, Prefix: prefix, Err: err}
		}
		pages++

		for _, obj := range res.Objects {
			if InDirectory(obj.Key, prefix) {
				keys = append(keys, obj.Key)
			}
		}

		if !l.cfg.Paginate || !res.IsTruncated || res.ContinuationToken == "" {
			if res.IsTruncated && !l.cfg.Paginate {
				l.logger.Debug("listing truncated at page cap",
					zap.String("bucket", bucket),
					zap.String("prefix", prefix),
					zap.Int("max_keys", maxKeys),
				)
			}
			break
		}
		if l.cfg.MaxPages > 0 && pages >= l.cfg.MaxPages {
			break
		}
		token = res.ContinuationToken
	}

	return keys, nil
}

// IsDirectoryMarker reports whether key is a zero-content folder placeholder.
func IsDirectoryMarker(key string) bool {
	return strings.HasSuffix(key, Separator)
}

// InDirectory reports whether key is a member of the virtual directory prefix.
// Markers are never members. An empty prefix admits every other key.
func InDirectory(key, prefix string) bool {
	if IsDirectoryMarker(key) {
		return false
	}
	if prefix == "" {
		return true
	}
	return strings.Contains(key, prefix+Separator)
}

// Filter applies InDirectory to keys, preserving order.
func Filter(keys []string, prefix string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if InDirectory(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

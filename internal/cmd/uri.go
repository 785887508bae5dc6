package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// URI parsing errors
var (
	// ErrInvalidURI indicates the URI could not be parsed.
	ErrInvalidURI = errors.New("invalid URI")

	// ErrUnsupportedProvider indicates the URI scheme is not supported.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrMissingBucket indicates the URI is missing a bucket name.
	ErrMissingBucket = errors.New("missing bucket name")
)

// supportedSchemes are the URI schemes accepted on the command line. The
// scheme must match the configured backend.
var supportedSchemes = map[string]bool{"s3": true, "minio": true, "file": true}

// ObjectURI represents a parsed object location.
//
// Example URIs:
//   - s3://bucket/key/path.txt
//   - s3://bucket/prefix/
//   - prefix/            (default bucket)
//   - s3://bucket/prefix/**/*.jpg
type ObjectURI struct {
	// Provider is the URI scheme. Empty for bare keys.
	Provider string

	// Bucket is the bucket name. Empty means the default bucket.
	Bucket string

	// Key is the object key or prefix.
	// May be empty for bucket root.
	Key string

	// Pattern is set if Key contains glob characters.
	// When set, Key is the prefix before the first glob segment.
	Pattern string
}

// String returns the URI in canonical form.
func (u *ObjectURI) String() string {
	key := u.Key
	if u.Pattern != "" {
		key = u.Pattern
	}
	if u.Provider == "" {
		return key
	}
	return fmt.Sprintf("%s://%s/%s", u.Provider, u.Bucket, key)
}

// IsPattern returns true if the URI contains glob pattern characters.
func (u *ObjectURI) IsPattern() bool {
	return u.Pattern != ""
}

// IsPrefix returns true if the URI names a directory (ends with /).
func (u *ObjectURI) IsPrefix() bool {
	return strings.HasSuffix(u.Key, "/") || u.Key == ""
}

// ParseURI parses an object location.
//
// Supported formats:
//   - s3://bucket, s3://bucket/, s3://bucket/key
//   - minio://bucket/key, file://bucket/key
//   - key or prefix/ without a scheme, resolved against the default bucket
//
// Keys are not normalized: "a/b" and "a/b/" name the same directory for
// directory operations but different objects for single-object ones.
func ParseURI(uri string) (*ObjectURI, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: empty URI", ErrInvalidURI)
	}

	// Parse manually so glob characters like ? are not treated as a query.
	schemeEnd := strings.Index(uri, "://")
	if schemeEnd == -1 {
		return withPattern(&ObjectURI{}, uri)
	}

	scheme := strings.ToLower(uri[:schemeEnd])
	if !supportedSchemes[scheme] {
		return nil, fmt.Errorf("%w: %s (supported: s3, minio, file)", ErrUnsupportedProvider, scheme)
	}

	remainder := uri[schemeEnd+3:]
	bucket, key, _ := strings.Cut(remainder, "/")
	if bucket == "" {
		return nil, fmt.Errorf("%w: in %s", ErrMissingBucket, uri)
	}
	if _, err := url.Parse("s3://" + bucket + "/"); err != nil || strings.ContainsAny(bucket, " \\") {
		return nil, fmt.Errorf("%w: invalid bucket name %q", ErrInvalidURI, bucket)
	}

	return withPattern(&ObjectURI{Provider: scheme, Bucket: bucket}, key)
}

func withPattern(u *ObjectURI, key string) (*ObjectURI, error) {
	if !hasGlob(key) {
		u.Key = key
		return u, nil
	}
	if !doublestar.ValidatePattern(key) {
		return nil, fmt.Errorf("%w: invalid glob pattern %q", ErrInvalidURI, key)
	}
	u.Pattern = key
	u.Key = globPrefix(key)
	return u, nil
}

func hasGlob(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

// globPrefix returns the directory part of pattern before its first glob
// segment: "a/b/**/*.jpg" gives "a/b/".
func globPrefix(pattern string) string {
	idx := strings.IndexAny(pattern, "*?[{")
	slash := strings.LastIndex(pattern[:idx], "/")
	if slash < 0 {
		return ""
	}
	return pattern[:slash+1]
}

// DirPrefix returns the directory name a recursive command works on. One
// trailing separator is dropped, so "s3://b/cp/" and "s3://b/cp" name the same
// directory. A key made only of separators is rejected rather than widened to
// the whole bucket.
func (u *ObjectURI) DirPrefix() (string, error) {
	if u.Key != "" && strings.Trim(u.Key, "/") == "" {
		return "", fmt.Errorf("%w: %q is not a directory name", ErrInvalidURI, u.Key)
	}
	return strings.TrimSuffix(u.Key, "/"), nil
}

// matchKeys keeps keys that match pattern. An empty pattern keeps all.
func matchKeys(keys []string, pattern string) ([]string, error) {
	if pattern == "" {
		return keys, nil
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		ok, err := doublestar.Match(pattern, k)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid glob pattern %q", ErrInvalidURI, pattern)
		}
		if ok {
			out = append(out, k)
		}
	}
	return out, nil
}

package vdir

import "errors"

// ErrBucketUnresolved is returned when neither an explicit nor a default
// bucket is available.
var ErrBucketUnresolved = errors.New("bucket unresolved: no bucket given and no default bucket configured")

// ResolveBucket returns explicit when set, otherwise fallback.
func ResolveBucket(explicit, fallback string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", ErrBucketUnresolved
}

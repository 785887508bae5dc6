package vdir

import (
	"fmt"
	"os"
	"time"

	"github.com/3leaps/bucketdir/pkg/listing"
	"github.com/3leaps/bucketdir/pkg/mirror"
)

// MoveMode selects how MoveDirectory sequences copies and deletes.
type MoveMode string

const (
	// MoveModePerKey copies then deletes each key independently. A failed
	// delete leaves the object at both locations.
	MoveModePerKey MoveMode = "per-key"

	// MoveModeVerifyThenDelete copies every key, verifies each copy, then
	// deletes all sources in one bulk request. Any copy or verify failure
	// removes the copies already made and deletes no source.
	MoveModeVerifyThenDelete MoveMode = "verify-then-delete"
)

// ParseMoveMode parses a move mode name. Empty selects MoveModePerKey.
func ParseMoveMode(s string) (MoveMode, error) {
	switch MoveMode(s) {
	case "", MoveModePerKey:
		return MoveModePerKey, nil
	case MoveModeVerifyThenDelete:
		return MoveModeVerifyThenDelete, nil
	}
	return "", fmt.Errorf("unknown move mode %q (want %s or %s)", s, MoveModePerKey, MoveModeVerifyThenDelete)
}

// KeyMapping selects how copy and move derive destination keys.
type KeyMapping string

const (
	// KeyMappingBasename places every member directly under the destination
	// prefix: "x" + "a/b/c.txt" gives "x/c.txt".
	KeyMappingBasename KeyMapping = "basename"

	// KeyMappingRelative keeps the path below the source prefix:
	// "cp" -> "x" maps "cp/y/z.png" to "x/y/z.png".
	KeyMappingRelative KeyMapping = "relative"
)

// ParseKeyMapping parses a key mapping name. Empty selects KeyMappingBasename.
func ParseKeyMapping(s string) (KeyMapping, error) {
	switch KeyMapping(s) {
	case "", KeyMappingBasename:
		return KeyMappingBasename, nil
	case KeyMappingRelative:
		return KeyMappingRelative, nil
	}
	return "", fmt.Errorf("unknown key mapping %q (want %s or %s)", s, KeyMappingBasename, KeyMappingRelative)
}

// Config configures a Driver. It is read-only once passed to New.
type Config struct {
	// DefaultBucket is used when an operation names no bucket.
	DefaultBucket string

	// MaxKeys caps every directory listing. Zero uses listing.DefaultMaxKeys.
	MaxKeys int

	// Paginate follows continuation tokens when listing directories.
	Paginate bool

	// MaxPages bounds pagination. Zero means no bound.
	MaxPages int

	// Concurrency bounds the per-key worker pool. Zero means 1.
	Concurrency int

	// KeyTimeout bounds each per-key operation. Zero disables it.
	KeyTimeout time.Duration

	// RateLimit caps per-key operations per second. Zero disables it.
	RateLimit float64

	MoveMode   MoveMode
	KeyMapping KeyMapping

	// DirPerm is applied to local directories created by downloads.
	DirPerm os.FileMode
}

// DefaultConfig returns the sequential, unpaginated configuration.
func DefaultConfig() Config {
	return Config{
		MaxKeys:     listing.DefaultMaxKeys,
		Concurrency: 1,
		MoveMode:    MoveModePerKey,
		KeyMapping:  KeyMappingBasename,
		DirPerm:     mirror.DefaultDirPerm,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.MaxKeys < 0 {
		return fmt.Errorf("max keys must not be negative: %d", c.MaxKeys)
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("max pages must not be negative: %d", c.MaxPages)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative: %d", c.Concurrency)
	}
	if c.KeyTimeout < 0 {
		return fmt.Errorf("key timeout must not be negative: %s", c.KeyTimeout)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative: %g", c.RateLimit)
	}
	if _, err := ParseMoveMode(string(c.MoveMode)); err != nil {
		return err
	}
	if _, err := ParseKeyMapping(string(c.KeyMapping)); err != nil {
		return err
	}
	return nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxKeys == 0 {
		c.MaxKeys = d.MaxKeys
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.MoveMode == "" {
		c.MoveMode = d.MoveMode
	}
	if c.KeyMapping == "" {
		c.KeyMapping = d.KeyMapping
	}
	if c.DirPerm == 0 {
		c.DirPerm = d.DirPerm
	}
	return c
}

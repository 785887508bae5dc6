// Package mirror prepares a local directory tree for a set of object keys.
package mirror

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// DefaultDirPerm is applied to created directories.
const DefaultDirPerm os.FileMode = 0o755

// ErrLocalDirectoryCreateFailed matches every *DirError via errors.Is.
var ErrLocalDirectoryCreateFailed = errors.New("local directory create failed")

// ErrUnsafeKey is returned for keys whose local path would leave the root.
var ErrUnsafeKey = errors.New("key escapes local root")

// DirError reports a directory that could not be created.
type DirError struct {
	Path string
	Err  error
}

func (e *DirError) Error() string {
	return fmt.Sprintf("create directory %s: %v", e.Path, e.Err)
}

func (e *DirError) Unwrap() error { return e.Err }

func (e *DirError) Is(target error) bool { return target == ErrLocalDirectoryCreateFailed }

// Materializer creates the parent directories that downloads depend on.
type Materializer struct {
	fs   afero.Fs
	perm os.FileMode
}

// New returns a Materializer over fs. A zero perm uses DefaultDirPerm.
func New(fs afero.Fs, perm os.FileMode) *Materializer {
	if perm == 0 {
		perm = DefaultDirPerm
	}
	return &Materializer{fs: fs, perm: perm}
}

// LocalPath maps key to its path under root. Keys with a ".." segment are
// rejected before cleaning, so "a/../b" never aliases "b".
func LocalPath(root, key string) (string, error) {
	if hasParentSegment(key) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeKey, key)
	}
	clean := strings.TrimPrefix(path.Clean("/"+key), "/")
	if clean == "" {
		return "", fmt.Errorf("%w: %q", ErrUnsafeKey, key)
	}
	return filepath.Join(root, filepath.FromSlash(clean)), nil
}

func hasParentSegment(key string) bool {
	segs := strings.FieldsFunc(key, func(r rune) bool { return r == '/' || r == '\\' })
	for _, seg := range segs {
		if seg == ".." {
			return true
		}
	}
	return false
}

// Dirs returns the distinct parent directories of keys under root, in first
// appearance order. Unsafe keys are skipped.
func Dirs(keys []string, root string) []string {
	seen := make(map[string]bool, len(keys))
	var dirs []string
	for _, k := range keys {
		p, err := LocalPath(root, k)
		if err != nil {
			continue
		}
		d := filepath.Dir(p)
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// Plan records the outcome of Materialize per directory.
type Plan struct {
	root string
	errs map[string]error

	// Created lists directories that did not exist before.
	Created []string

	// Existing lists directories that were already present.
	Existing []string
}

// Err returns the error blocking key, or nil when its directory is ready.
func (p *Plan) Err(key string) error {
	lp, err := LocalPath(p.root, key)
	if err != nil {
		return err
	}
	return p.errs[filepath.Dir(lp)]
}

// Failed returns every directory error.
func (p *Plan) Failed() []*DirError {
	var out []*DirError
	for _, err := range p.errs {
		var de *DirError
		if errors.As(err, &de) {
			out = append(out, de)
		}
	}
	return out
}

// Materialize ensures every distinct parent directory of keys exists under
// root. It is idempotent. A failure only affects keys under that directory.
func (m *Materializer) Materialize(keys []string, root string) *Plan {
	plan := &Plan{root: root, errs: make(map[string]error)}
	for _, dir := range Dirs(keys, root) {
		ok, err := afero.DirExists(m.fs, dir)
		if err == nil && ok {
			plan.Existing = append(plan.Existing, dir)
			continue
		}
		if err := m.fs.MkdirAll(dir, m.perm); err != nil {
			plan.errs[dir] = &DirError{Path: dir, Err: err}
			continue
		}
		plan.Created = append(plan.Created, dir)
	}
	return plan
}

package vdir

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/bucketdir/pkg/listing"
	"github.com/3leaps/bucketdir/pkg/mirror"
	"github.com/3leaps/bucketdir/pkg/output"
	"github.com/3leaps/bucketdir/pkg/provider"
)

func TestDriver_List_MembershipScenario(t *testing.T) {
	store := newStore(t, map[string]string{
		"cp/x.png":       "x",
		"cp/y/z.png":     "z",
		"cp_other/w.png": "w",
	})
	d := newDriver(store, afero.NewMemMapFs(), Config{})

	keys, err := d.List(context.Background(), "", "cp", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"cp/x.png", "cp/y/z.png"}, keys)

	for _, k := range keys {
		assert.False(t, listing.IsDirectoryMarker(k))
		assert.Contains(t, k, "cp/")
	}
}

func TestDeleteDirectory_ThenListIsEmpty(t *testing.T) {
	store := newStore(t, map[string]string{
		"old/a.txt":   "a",
		"old/b/c.txt": "c",
		"keep/d.txt":  "d",
	})
	d := newDriver(store, afero.NewMemMapFs(), Config{})
	ctx := context.Background()

	rep, err := d.DeleteDirectory(ctx, testBucket, "old")
	require.NoError(t, err)
	assert.Equal(t, []string{"old/a.txt", "old/b/c.txt"}, rep.Keys())
	assert.Equal(t, 2, rep.Succeeded())

	keys, err := d.List(ctx, testBucket, "old", 0)
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Equal(t, []string{"keep/d.txt"}, allKeys(t, store, testBucket))
}

func TestDeleteDirectory_SlashPrefixKeepsTopLevelKeys(t *testing.T) {
	store := newStore(t, map[string]string{
		"a.txt":      "a",
		"d/b.txt":    "b",
		"keep/c.txt": "c",
	})
	d := newDriver(store, afero.NewMemMapFs(), Config{})

	rep, err := d.DeleteDirectory(context.Background(), testBucket, "/")
	require.NoError(t, err)
	assert.Empty(t, rep.Keys())
	assert.Equal(t, []string{"a.txt", "d/b.txt", "keep/c.txt"}, allKeys(t, store, testBucket))
}

func TestDeleteDirectory_TrailingSlashPrefixIsLiteral(t *testing.T) {
	store := newStore(t, map[string]string{"cp/x.png": "x"})
	d := newDriver(store, afero.NewMemMapFs(), Config{})

	rep, err := d.DeleteDirectory(context.Background(), testBucket, "cp/")
	require.NoError(t, err)
	assert.Empty(t, rep.Keys())
	assert.Equal(t, []string{"cp/x.png"}, allKeys(t, store, testBucket))
}

func TestDeleteDirectory_EmptyIsNoOp(t *testing.T) {
	store := newStore(t, map[string]string{"keep/d.txt": "d"})
	d := newDriver(store, afero.NewMemMapFs(), Config{})

	rep, err := d.DeleteDirectory(context.Background(), testBucket, "nothing")
	require.NoError(t, err)
	require.NotNil(t, rep)
	assert.Empty(t, rep.Results)
	assert.Equal(t, []string{"keep/d.txt"}, allKeys(t, store, testBucket))
}

func TestDeleteDirectory_PartialFailure(t *testing.T) {
	store := newStore(t, map[string]string{
		"old/a.txt": "a",
		"old/b.txt": "b",
		"old/c.txt": "c",
	})
	fc := &faultClient{Client: store, deleteErr: map[string]error{"old/b.txt": denied("old/b.txt")}}
	d := newDriver(fc, afero.NewMemMapFs(), Config{})

	rep, err := d.DeleteDirectory(context.Background(), testBucket, "old")
	require.Error(t, err)
	require.NotNil(t, rep)

	var batchErr *BatchError
	require.True(t, errors.As(err, &batchErr))
	assert.Equal(t, 3, batchErr.Total)
	require.Len(t, batchErr.Failed, 1)
	assert.Equal(t, "old/b.txt", batchErr.Failed[0].Key)
	assert.True(t, errors.Is(err, ErrTransferFailed))
	assert.True(t, provider.IsAccessDenied(err))

	assert.Equal(t, 2, rep.Succeeded())
	assert.Equal(t, StageDelete, rep.Failed()[0].Stage)
	assert.Equal(t, []string{"old/b.txt"}, allKeys(t, store, testBucket))
}

func TestCopyDirectory_FlattensToBasename(t *testing.T) {
	store := newStore(t, map[string]string{"a/b/c.txt": "c"})
	d := newDriver(store, afero.NewMemMapFs(), Config{})

	rep, err := d.CopyDirectory(context.Background(), testBucket, "a", testBucket, "x/")
	require.NoError(t, err)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, "x/c.txt", rep.Results[0].Target)
	assert.Equal(t, "c", readObject(t, store, testBucket, "x/c.txt"))
	assert.Equal(t, "c", readObject(t, store, testBucket, "a/b/c.txt"))
}

func TestCopyDirectory_RoundTripRestoresObjects(t *testing.T) {
	original := map[string]string{
		"cp/a.txt": "alpha",
		"cp/b.txt": "bravo",
	}
	store := newStore(t, original)
	d := newDriver(store, afero.NewMemMapFs(), Config{})
	ctx := context.Background()

	_, err := d.CopyDirectory(ctx, testBucket, "cp", testBucket, "backup")
	require.NoError(t, err)
	_, err = d.DeleteDirectory(ctx, testBucket, "cp")
	require.NoError(t, err)

	_, err = d.CopyDirectory(ctx, testBucket, "backup", testBucket, "cp")
	require.NoError(t, err)

	for k, v := range original {
		assert.Equal(t, v, readObject(t, store, testBucket, k))
	}
}

func TestCopyDirectory_AcrossBuckets(t *testing.T) {
	store := newStore(t, map[string]string{"cp/a.txt": "a"})
	require.NoError(t, store.CreateBucket("archive"))
	d := newDriver(store, afero.NewMemMapFs(), Config{})

	rep, err := d.CopyDirectory(context.Background(), testBucket, "cp", "archive", "2024")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Succeeded())
	assert.Equal(t, []string{"2024/a.txt"}, allKeys(t, store, "archive"))
}

func TestCopyDirectory_RelativeMapping(t *testing.T) {
	store := newStore(t, map[string]string{
		"cp/x.png":   "x",
		"cp/y/z.png": "z",
	})
	d := newDriver(store, afero.NewMemMapFs(), Config{KeyMapping: KeyMappingRelative})

	_, err := d.CopyDirectory(context.Background(), "", "cp", "", "dst")
	require.NoError(t, err)
	assert.Equal(t, []string{"cp/x.png", "cp/y/z.png", "dst/x.png", "dst/y/z.png"}, allKeys(t, store, testBucket))
}

func TestCopyDirectory_OneFailureDoesNotStopSiblings(t *testing.T) {
	store := newStore(t, map[string]string{
		"cp/a.txt": "a",
		"cp/b.txt": "b",
		"cp/c.txt": "c",
	})
	fc := &faultClient{Client: store, copyErr: map[string]error{"cp/a.txt": denied("cp/a.txt")}}
	d := newDriver(fc, afero.NewMemMapFs(), Config{})

	rep, err := d.CopyDirectory(context.Background(), "", "cp", "", "x")
	require.Error(t, err)
	assert.Equal(t, 2, rep.Succeeded())
	assert.Equal(t, output.ErrCodeAccessDenied, ErrorCode(rep.Failed()[0].Err))
	assert.Equal(t, []string{"cp/a.txt", "cp/b.txt", "cp/c.txt", "x/b.txt", "x/c.txt"}, allKeys(t, store, testBucket))
}

func TestMoveDirectory_PerKey(t *testing.T) {
	store := newStore(t, map[string]string{
		"in/a.txt": "a",
		"in/b.txt": "b",
	})
	d := newDriver(store, afero.NewMemMapFs(), Config{})

	rep, err := d.MoveDirectory(context.Background(), "in", "out", "")
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Succeeded())
	assert.Equal(t, []string{"out/a.txt", "out/b.txt"}, allKeys(t, store, testBucket))
}

func TestMoveDirectory_DeleteFailureLeavesBothCopies(t *testing.T) {
	store := newStore(t, map[string]string{
		"in/a.txt": "a",
		"in/b.txt": "b",
	})
	fc := &faultClient{Client: store, deleteErr: map[string]error{"in/a.txt": denied("in/a.txt")}}
	d := newDriver(fc, afero.NewMemMapFs(), Config{})
	ctx := context.Background()

	rep, err := d.MoveDirectory(ctx, "in", "out", testBucket)
	require.Error(t, err)
	failed := rep.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "in/a.txt", failed[0].Key)
	assert.Equal(t, StageDelete, failed[0].Stage)

	src, err := d.List(ctx, testBucket, "in", 0)
	require.NoError(t, err)
	dst, err := d.List(ctx, testBucket, "out", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"in/a.txt"}, src)
	assert.Equal(t, []string{"out/a.txt", "out/b.txt"}, dst)
}

func TestMoveDirectory_CopyFailureSkipsDelete(t *testing.T) {
	store := newStore(t, map[string]string{"in/a.txt": "a"})
	fc := &faultClient{Client: store, copyErr: map[string]error{"in/a.txt": denied("in/a.txt")}}
	d := newDriver(fc, afero.NewMemMapFs(), Config{})

	rep, err := d.MoveDirectory(context.Background(), "in", "out", "")
	require.Error(t, err)
	assert.Equal(t, StageCopy, rep.Results[0].Stage)
	assert.Equal(t, []string{"in/a.txt"}, allKeys(t, store, testBucket))
}

func TestMoveDirectory_RejectsCollisionsAndSelfMoves(t *testing.T) {
	store := newStore(t, map[string]string{
		"in/a/x.txt": "first",
		"in/b/x.txt": "second",
	})
	d := newDriver(store, afero.NewMemMapFs(), Config{})

	rep, err := d.MoveDirectory(context.Background(), "in", "out", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDestinationCollision))
	assert.Equal(t, 1, rep.Succeeded())
	assert.Equal(t, []string{"in/b/x.txt", "out/x.txt"}, allKeys(t, store, testBucket))
	assert.Equal(t, "first", readObject(t, store, testBucket, "out/x.txt"))

	store = newStore(t, map[string]string{"in/a.txt": "a"})
	d = newDriver(store, afero.NewMemMapFs(), Config{})
	_, err = d.MoveDirectory(context.Background(), "in", "in", "")
	assert.True(t, errors.Is(err, ErrSameKey))
	assert.Equal(t, "a", readObject(t, store, testBucket, "in/a.txt"))
}

func TestMoveDirectory_VerifyThenDelete(t *testing.T) {
	store := newStore(t, map[string]string{
		"in/a.txt": "a",
		"in/b.txt": "bb",
	})
	d := newDriver(store, afero.NewMemMapFs(), Config{MoveMode: MoveModeVerifyThenDelete})

	rep, err := d.MoveDirectory(context.Background(), "in", "out", "")
	require.NoError(t, err)
	for _, r := range rep.Results {
		assert.Equal(t, StageDelete, r.Stage)
	}
	assert.Equal(t, []string{"out/a.txt", "out/b.txt"}, allKeys(t, store, testBucket))
}

func TestMoveDirectory_VerifyThenDelete_RollsBackOnCopyFailure(t *testing.T) {
	store := newStore(t, map[string]string{
		"in/a.txt": "a",
		"in/b.txt": "b",
		"in/c.txt": "c",
	})
	fc := &faultClient{Client: store, copyErr: map[string]error{"in/b.txt": denied("in/b.txt")}}
	d := newDriver(fc, afero.NewMemMapFs(), Config{MoveMode: MoveModeVerifyThenDelete})

	rep, err := d.MoveDirectory(context.Background(), "in", "out", "")
	require.Error(t, err)
	assert.Equal(t, 0, rep.Succeeded())
	assert.Equal(t, StageRollback, rep.Results[0].Stage)
	assert.True(t, errors.Is(rep.Results[0].Err, ErrRolledBack))
	assert.Equal(t, StageCopy, rep.Results[1].Stage)
	assert.True(t, provider.IsAccessDenied(rep.Results[1].Err))

	assert.Equal(t, []string{"in/a.txt", "in/b.txt", "in/c.txt"}, allKeys(t, store, testBucket))
}

func TestMoveDirectory_VerifyThenDelete_SizeMismatch(t *testing.T) {
	store := newStore(t, map[string]string{"in/a.txt": "abc"})
	fc := &faultClient{Client: store, headSize: map[string]int64{"out/a.txt": 1}}
	d := newDriver(fc, afero.NewMemMapFs(), Config{MoveMode: MoveModeVerifyThenDelete})

	rep, err := d.MoveDirectory(context.Background(), "in", "out", "")
	require.Error(t, err)

	var sizeErr *SizeMismatchError
	require.True(t, errors.As(err, &sizeErr))
	assert.Equal(t, int64(3), sizeErr.Expected)
	assert.Equal(t, int64(1), sizeErr.Got)
	assert.Equal(t, StageVerify, rep.Results[0].Stage)
	assert.Equal(t, []string{"in/a.txt"}, allKeys(t, store, testBucket))
}

func TestDownloadDirectory_CreatesParentsAndIsRerunnable(t *testing.T) {
	store := newStore(t, map[string]string{
		"d1/f1.txt":    "one",
		"d1/d2/f2.txt": "two",
	})
	local := afero.NewMemMapFs()
	d := newDriver(store, local, Config{})
	ctx := context.Background()
	root := "/tmp/out"

	for run := 0; run < 2; run++ {
		rep, err := d.DownloadDirectory(ctx, "", "d1", root)
		require.NoError(t, err, "run %d", run)
		assert.Equal(t, 2, rep.Succeeded())

		for _, dir := range []string{"/tmp/out/d1", "/tmp/out/d1/d2"} {
			ok, err := afero.DirExists(local, filepath.FromSlash(dir))
			require.NoError(t, err)
			assert.True(t, ok, dir)
		}
		got, err := afero.ReadFile(local, filepath.FromSlash("/tmp/out/d1/d2/f2.txt"))
		require.NoError(t, err)
		assert.Equal(t, "two", string(got))
	}
}

func TestDownloadDirectory_DirectoryFailureIsScoped(t *testing.T) {
	store := newStore(t, map[string]string{
		"d/ok.txt":        "ok",
		"d/blocked/x.txt": "x",
	})
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "d"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "d", "blocked"), []byte("file"), 0o644))

	d := newDriver(store, afero.NewOsFs(), Config{})
	rep, err := d.DownloadDirectory(context.Background(), "", "d", root)
	require.Error(t, err)

	failed := rep.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "d/blocked/x.txt", failed[0].Key)
	assert.Equal(t, StageMkdir, failed[0].Stage)
	assert.True(t, errors.Is(failed[0].Err, mirror.ErrLocalDirectoryCreateFailed))
	assert.Equal(t, output.ErrCodeLocalIO, ErrorCode(failed[0].Err))

	got, err := os.ReadFile(filepath.Join(root, "d", "ok.txt"))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(got))
}

func TestUploadDirectory(t *testing.T) {
	store := newStore(t, nil)
	local := afero.NewMemMapFs()
	require.NoError(t, local.MkdirAll("/src/sub", 0o755))
	require.NoError(t, afero.WriteFile(local, "/src/a.txt", []byte("a"), 0o644))
	require.NoError(t, afero.WriteFile(local, "/src/sub/b.txt", []byte("b"), 0o644))
	d := newDriver(store, local, Config{})

	rep, err := d.UploadDirectory(context.Background(), "/src", "", "up/")
	require.NoError(t, err)
	assert.Equal(t, []string{"up/a.txt", "up/sub/b.txt"}, rep.Keys())
	assert.Equal(t, "b", readObject(t, store, testBucket, "up/sub/b.txt"))
}

func TestUploadDirectory_MissingRoot(t *testing.T) {
	d := newDriver(newStore(t, nil), afero.NewMemMapFs(), Config{})

	rep, err := d.UploadDirectory(context.Background(), "/missing", "", "up")
	require.Error(t, err)
	assert.Nil(t, rep)
	assert.Equal(t, output.ErrCodeLocalIO, ErrorCode(err))
}

func TestDirectoryOps_ListingFailureAborts(t *testing.T) {
	store := newStore(t, map[string]string{"cp/a.txt": "a"})
	cause := &provider.ProviderError{Op: "List", Provider: provider.ProviderFile, Bucket: testBucket, Err: provider.ErrProviderUnavailable}
	d := newDriver(&faultClient{Client: store, listErr: cause}, afero.NewMemMapFs(), Config{})
	ctx := context.Background()

	ops := map[string]func() (*Report, error){
		"copy":     func() (*Report, error) { return d.CopyDirectory(ctx, "", "cp", "", "x") },
		"move":     func() (*Report, error) { return d.MoveDirectory(ctx, "cp", "x", "") },
		"delete":   func() (*Report, error) { return d.DeleteDirectory(ctx, "", "cp") },
		"download": func() (*Report, error) { return d.DownloadDirectory(ctx, "", "cp", "/out") },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			rep, err := op()
			assert.Nil(t, rep)
			assert.True(t, errors.Is(err, listing.ErrListingFailed))
			assert.Equal(t, output.ErrCodeProviderUnavailable, ErrorCode(err))
		})
	}
	assert.Equal(t, []string{"cp/a.txt"}, allKeys(t, store, testBucket))
}

func TestDirectoryOps_BucketUnresolved(t *testing.T) {
	d := New(newStore(t, nil), afero.NewMemMapFs(), nil, Config{})
	ctx := context.Background()

	_, err := d.DeleteDirectory(ctx, "", "cp")
	assert.ErrorIs(t, err, ErrBucketUnresolved)
	_, err = d.CopyDirectory(ctx, testBucket, "cp", "", "x")
	assert.ErrorIs(t, err, ErrBucketUnresolved)
	_, err = d.List(ctx, "", "cp", 0)
	assert.Equal(t, output.ErrCodeBucketUnresolved, ErrorCode(err))
}

func TestFanOut_ConcurrentResultsKeepListingOrder(t *testing.T) {
	objects := make(map[string]string)
	var want []string
	for i := 0; i < 20; i++ {
		k := fmt.Sprintf("cp/%02d.txt", i)
		objects[k] = k
		want = append(want, k)
	}
	store := newStore(t, objects)
	d := newDriver(store, afero.NewMemMapFs(), Config{Concurrency: 4})

	rep, err := d.CopyDirectory(context.Background(), "", "cp", "", "dst")
	require.NoError(t, err)
	assert.Equal(t, want, rep.Keys())
	for i, r := range rep.Results {
		assert.Equal(t, fmt.Sprintf("dst/%02d.txt", i), r.Target)
	}
}

func TestFanOut_CancelledKeysAreReported(t *testing.T) {
	store := newStore(t, map[string]string{"cp/a.txt": "a", "cp/b.txt": "b"})
	d := newDriver(store, afero.NewMemMapFs(), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	keys, err := d.List(ctx, "", "cp", 0)
	require.NoError(t, err)
	require.Len(t, keys, 2)

	rep := d.newReport(OpCopy, testBucket, "cp", "x", keys)
	cancel()
	results := d.fanOut(ctx, rep.Results, func(ctx context.Context, r *Result) {
		t.Errorf("key %s ran after cancellation", r.Key)
	})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Error(t, r.Err)
		assert.Equal(t, output.ErrCodeTimeout, ErrorCode(r.Err))
	}
}

func TestFanOut_KeyTimeout(t *testing.T) {
	store := newStore(t, map[string]string{"cp/a.txt": "a"})
	d := newDriver(&faultClient{Client: store, blockCopy: true}, afero.NewMemMapFs(), Config{KeyTimeout: 20 * time.Millisecond})

	rep, err := d.CopyDirectory(context.Background(), "", "cp", "", "x")
	require.Error(t, err)
	require.Len(t, rep.Results, 1)
	assert.True(t, errors.Is(rep.Results[0].Err, context.DeadlineExceeded))
}

func TestFanOut_RateLimited(t *testing.T) {
	store := newStore(t, map[string]string{"cp/a.txt": "a", "cp/b.txt": "b", "cp/c.txt": "c"})
	d := newDriver(store, afero.NewMemMapFs(), Config{RateLimit: 20})

	start := time.Now()
	rep, err := d.CopyDirectory(context.Background(), "", "cp", "", "x")
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Succeeded())
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestDestinationKey(t *testing.T) {
	basename := New(nil, afero.NewMemMapFs(), nil, Config{})
	relative := New(nil, afero.NewMemMapFs(), nil, Config{KeyMapping: KeyMappingRelative})

	tests := []struct {
		name   string
		d      *Driver
		from   string
		to     string
		key    string
		expect string
	}{
		{"trailing slash", basename, "a", "x/", "a/b/c.txt", "x/c.txt"},
		{"no trailing slash", basename, "a", "x", "a/b/c.txt", "x/c.txt"},
		{"empty destination", basename, "a", "", "a/b/c.txt", "c.txt"},
		{"relative keeps tree", relative, "cp", "x", "cp/y/z.png", "x/y/z.png"},
		{"relative loose match", relative, "cp", "x", "a/cp/z.png", "x/z.png"},
		{"relative empty prefix", relative, "", "x", "a/b.txt", "x/a/b.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.d.DestinationKey(tt.from, tt.to, tt.key))
		})
	}
}

package provider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ProviderError
		expected string
	}{
		{
			name:     "with key",
			err:      &ProviderError{Op: "Head", Provider: ProviderS3, Bucket: "b", Key: "cp/x.png", Err: ErrNotFound},
			expected: "s3 Head: b/cp/x.png: object not found",
		},
		{
			name:     "without key",
			err:      &ProviderError{Op: "List", Provider: ProviderMinIO, Bucket: "b", Err: ErrAccessDenied},
			expected: "minio List: b: access denied",
		},
		{
			name:     "without bucket",
			err:      &ProviderError{Op: "New", Provider: ProviderFile, Err: errors.New("root missing")},
			expected: "file New: root missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestSentinelHelpers(t *testing.T) {
	wrap := func(err error) error { return &ProviderError{Op: "x", Err: err} }

	assert.True(t, IsNotFound(wrap(ErrNotFound)))
	assert.True(t, IsAccessDenied(wrap(ErrAccessDenied)))
	assert.True(t, IsBucketNotFound(wrap(ErrBucketNotFound)))
	assert.True(t, IsInvalidCredentials(wrap(ErrInvalidCredentials)))
	assert.True(t, IsProviderUnavailable(wrap(ErrProviderUnavailable)))
	assert.True(t, IsThrottled(wrap(ErrThrottled)))
	assert.True(t, IsInvalidKey(wrap(ErrInvalidKey)))

	assert.False(t, IsNotFound(wrap(ErrAccessDenied)))
	assert.False(t, IsThrottled(errors.New("other")))
}

func TestParseProviderType(t *testing.T) {
	for _, name := range []string{"s3", "minio", "file"} {
		pt, ok := ParseProviderType(name)
		require.True(t, ok, name)
		assert.Equal(t, name, pt.String())
	}

	_, ok := ParseProviderType("gcs")
	assert.False(t, ok)
}

func TestDeleteRequest_Keys(t *testing.T) {
	req := &DeleteRequest{Objects: []ObjectIdentifier{{Key: "a"}, {Key: "b/c"}}}
	assert.Equal(t, []string{"a", "b/c"}, req.Keys())
	assert.Equal(t, 2, req.Len())

	var nilReq *DeleteRequest
	assert.Nil(t, nilReq.Keys())
	assert.Zero(t, nilReq.Len())
}

func TestDeleteResult_ErrorFor(t *testing.T) {
	res := &DeleteResult{
		Deleted: []string{"a"},
		Errors:  []DeleteError{{Key: "b", Code: "AccessDenied", Message: "denied", Err: ErrAccessDenied}},
	}

	assert.Nil(t, res.ErrorFor("a"))

	de := res.ErrorFor("b")
	require.NotNil(t, de)
	assert.Equal(t, "b: AccessDenied: denied", de.Error())
	assert.True(t, errors.Is(*de, ErrAccessDenied))
}

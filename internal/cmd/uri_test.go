package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		name        string
		uri         string
		wantErr     error
		errContains string
		want        *ObjectURI
	}{
		{
			name: "simple bucket",
			uri:  "s3://my-bucket",
			want: &ObjectURI{Provider: "s3", Bucket: "my-bucket"},
		},
		{
			name: "bucket with trailing slash",
			uri:  "s3://my-bucket/",
			want: &ObjectURI{Provider: "s3", Bucket: "my-bucket"},
		},
		{
			name: "bucket with key",
			uri:  "s3://my-bucket/path/to/object.txt",
			want: &ObjectURI{Provider: "s3", Bucket: "my-bucket", Key: "path/to/object.txt"},
		},
		{
			name: "bucket with directory",
			uri:  "s3://my-bucket/cp/",
			want: &ObjectURI{Provider: "s3", Bucket: "my-bucket", Key: "cp/"},
		},
		{
			name: "minio scheme",
			uri:  "minio://photos/2024/",
			want: &ObjectURI{Provider: "minio", Bucket: "photos", Key: "2024/"},
		},
		{
			name: "file scheme",
			uri:  "file://photos/a.jpg",
			want: &ObjectURI{Provider: "file", Bucket: "photos", Key: "a.jpg"},
		},
		{
			name: "uppercase scheme",
			uri:  "S3://my-bucket/key",
			want: &ObjectURI{Provider: "s3", Bucket: "my-bucket", Key: "key"},
		},
		{
			name: "bare key uses default bucket",
			uri:  "cp/x.png",
			want: &ObjectURI{Key: "cp/x.png"},
		},
		{
			name: "bare directory",
			uri:  "cp",
			want: &ObjectURI{Key: "cp"},
		},
		{
			name: "doublestar pattern",
			uri:  "s3://my-bucket/data/2024/**/*.parquet",
			want: &ObjectURI{Provider: "s3", Bucket: "my-bucket", Key: "data/2024/", Pattern: "data/2024/**/*.parquet"},
		},
		{
			name: "star pattern at root",
			uri:  "s3://my-bucket/*.jpg",
			want: &ObjectURI{Provider: "s3", Bucket: "my-bucket", Pattern: "*.jpg"},
		},
		{
			name: "brace pattern on bare key",
			uri:  "img/{a,b}.png",
			want: &ObjectURI{Key: "img/", Pattern: "img/{a,b}.png"},
		},
		{
			name: "question mark pattern",
			uri:  "s3://my-bucket/logs/day?.txt",
			want: &ObjectURI{Provider: "s3", Bucket: "my-bucket", Key: "logs/", Pattern: "logs/day?.txt"},
		},
		{
			name:    "empty URI",
			uri:     "",
			wantErr: ErrInvalidURI,
		},
		{
			name:        "unsupported scheme",
			uri:         "gs://bucket/key",
			wantErr:     ErrUnsupportedProvider,
			errContains: "gs",
		},
		{
			name:    "http scheme not supported",
			uri:     "http://bucket/key",
			wantErr: ErrUnsupportedProvider,
		},
		{
			name:    "missing bucket",
			uri:     "s3:///key",
			wantErr: ErrMissingBucket,
		},
		{
			name:    "invalid glob",
			uri:     "s3://bucket/a/[b",
			wantErr: ErrInvalidURI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseURI(tt.uri)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "expected %v, got %v", tt.wantErr, err)
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestObjectURI_String(t *testing.T) {
	tests := []struct {
		name string
		uri  ObjectURI
		want string
	}{
		{"bucket only", ObjectURI{Provider: "s3", Bucket: "b"}, "s3://b/"},
		{"bucket with key", ObjectURI{Provider: "s3", Bucket: "b", Key: "cp/x.png"}, "s3://b/cp/x.png"},
		{"pattern wins", ObjectURI{Provider: "s3", Bucket: "b", Key: "cp/", Pattern: "cp/*.png"}, "s3://b/cp/*.png"},
		{"bare key", ObjectURI{Key: "cp/"}, "cp/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.uri.String())
		})
	}
}

func TestObjectURI_IsPrefix(t *testing.T) {
	assert.True(t, (&ObjectURI{Key: ""}).IsPrefix())
	assert.True(t, (&ObjectURI{Key: "cp/"}).IsPrefix())
	assert.False(t, (&ObjectURI{Key: "cp"}).IsPrefix())
}

func TestObjectURI_DirPrefix(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{"cp", "cp", false},
		{"cp/", "cp", false},
		{"a/b/", "a/b", false},
		{"", "", false},
		{"/", "", true},
		{"//", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := (&ObjectURI{Key: tt.key}).DirPrefix()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidURI)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchKeys(t *testing.T) {
	keys := []string{"cp/x.png", "cp/y/z.png", "cp/notes.txt"}

	all, err := matchKeys(keys, "")
	require.NoError(t, err)
	assert.Equal(t, keys, all)

	png, err := matchKeys(keys, "cp/**/*.png")
	require.NoError(t, err)
	assert.Equal(t, []string{"cp/x.png", "cp/y/z.png"}, png)

	shallow, err := matchKeys(keys, "cp/*.png")
	require.NoError(t, err)
	assert.Equal(t, []string{"cp/x.png"}, shallow)
}

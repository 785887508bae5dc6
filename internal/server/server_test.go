package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/bucketdir/internal/server/handlers"
	"github.com/3leaps/bucketdir/internal/server/middleware"
	"github.com/3leaps/bucketdir/pkg/provider/file"
	"github.com/3leaps/bucketdir/pkg/vdir"
)

func newTestServer(t *testing.T, objects map[string]string) (*Server, *file.Client) {
	t.Helper()
	ctx := context.Background()

	client, err := file.New(file.Config{Root: "/store", Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	require.NoError(t, client.CreateBucket("photos"))
	for k, v := range objects {
		_, err := client.PutObject(ctx, "photos", k, strings.NewReader(v), int64(len(v)))
		require.NoError(t, err)
	}

	cfg := vdir.DefaultConfig()
	cfg.DefaultBucket = "photos"
	d := vdir.New(client, afero.NewMemMapFs(), nil, cfg)
	return New("127.0.0.1", 0, WithDriver(d), WithVersion("1.2.3", "abc", "2026-01-01")), client
}

func do(t *testing.T, srv *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, &buf))
	return rec
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New("127.0.0.1", 0)

	rec := do(t, srv, http.MethodGet, "/does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body middleware.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestServer_Port(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"default port", 8080},
		{"custom port", 9000},
		{"zero port", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.port, New("127.0.0.1", tt.port).Port())
		})
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv := New("127.0.0.1", 0)

	rec := do(t, srv, http.MethodPost, "/version", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	var body middleware.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "METHOD_NOT_ALLOWED", body.Error.Code)
}

func TestServer_RoutesRegistered(t *testing.T) {
	handlers.InitHealthManager("test")
	srv, _ := newTestServer(t, nil)

	endpoints := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/health", http.StatusOK},
		{"GET", "/health/live", http.StatusOK},
		{"GET", "/health/ready", http.StatusOK},
		{"GET", "/health/startup", http.StatusOK},
		{"GET", "/version", http.StatusOK},
		{"GET", "/v1/buckets/_/keys?prefix=cp", http.StatusOK},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			rec := do(t, srv, ep.method, ep.path, nil)
			assert.Equal(t, ep.want, rec.Code, "endpoint %s %s should return %d", ep.method, ep.path, ep.want)
		})
	}
}

func TestServer_DirectoryRoutesNeedDriver(t *testing.T) {
	srv := New("127.0.0.1", 0)
	rec := do(t, srv, http.MethodGet, "/v1/buckets/_/keys", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Version(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/version", nil)

	var v handlers.VersionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	assert.Equal(t, "1.2.3", v.Version)
	assert.Equal(t, "abc", v.Commit)
}

func TestServer_ListCopyDelete(t *testing.T) {
	srv, client := newTestServer(t, map[string]string{
		"cp/x.png":   "x",
		"cp/y/z.png": "z",
		"cpx/w.png":  "w",
	})

	rec := do(t, srv, http.MethodGet, "/v1/buckets/photos/keys?prefix=cp", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var keys handlers.KeysResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&keys))
	assert.Equal(t, []string{"cp/x.png", "cp/y/z.png"}, keys.Keys)

	rec = do(t, srv, http.MethodPost, "/v1/directories/copy", handlers.CopyRequest{FromPrefix: "cp", ToPrefix: "x"})
	require.Equal(t, http.StatusOK, rec.Code)
	var rep handlers.ReportResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rep))
	assert.Equal(t, 2, rep.Summary.Succeeded)
	require.Len(t, rep.Results, 2)
	assert.Equal(t, "x/x.png", rep.Results[0].Target)
	assert.Equal(t, "x/z.png", rep.Results[1].Target)

	_, err := client.Head(context.Background(), "photos", "x/z.png")
	require.NoError(t, err)

	rec = do(t, srv, http.MethodDelete, "/v1/buckets/_/directories?prefix=cp", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/v1/buckets/_/keys?prefix=cp", nil)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&keys))
	assert.Empty(t, keys.Keys)
}

func TestServer_DeleteSlashPrefixRemovesNothing(t *testing.T) {
	srv, client := newTestServer(t, map[string]string{
		"a.txt":      "a",
		"d/b.txt":    "b",
		"keep/c.txt": "c",
	})

	rec := do(t, srv, http.MethodDelete, "/v1/buckets/photos/directories?prefix=%2F", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rep handlers.ReportResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rep))
	assert.Equal(t, 0, rep.Summary.Keys)

	for _, k := range []string{"a.txt", "d/b.txt", "keep/c.txt"} {
		_, err := client.Head(context.Background(), "photos", k)
		assert.NoError(t, err, k)
	}
}

func TestServer_Move(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{"cp/a.txt": "a"})

	rec := do(t, srv, http.MethodPost, "/v1/directories/move", handlers.MoveRequest{FromPrefix: "cp", ToPrefix: "dst"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/v1/buckets/_/keys?prefix=dst", nil)
	var keys handlers.KeysResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&keys))
	assert.Equal(t, []string{"dst/a.txt"}, keys.Keys)
}

func TestServer_PartialFailureIs207(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{"cp/a.txt": "a", "cp/b.txt": "b"})

	// Moving a directory onto itself maps every key to itself.
	rec := do(t, srv, http.MethodPost, "/v1/directories/move", handlers.MoveRequest{FromPrefix: "cp", ToPrefix: "cp"})
	require.Equal(t, http.StatusMultiStatus, rec.Code)

	var rep handlers.ReportResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rep))
	assert.Equal(t, 2, rep.Summary.Failed)
	assert.False(t, rep.Results[0].OK)
	assert.NotEmpty(t, rep.Results[0].Error)
}

func TestServer_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		code   string
		status int
	}{
		{"negative max_keys", "GET", "/v1/buckets/_/keys?max_keys=-1", nil, "INVALID_ARGUMENT", http.StatusBadRequest},
		{"delete without prefix", "DELETE", "/v1/buckets/_/directories", nil, "INVALID_ARGUMENT", http.StatusBadRequest},
		{"move without prefix", "POST", "/v1/directories/move", handlers.MoveRequest{ToPrefix: "x"}, "INVALID_ARGUMENT", http.StatusBadRequest},
		{"unknown field", "POST", "/v1/directories/copy", map[string]string{"from": "cp"}, "INVALID_ARGUMENT", http.StatusBadRequest},
		{"missing bucket", "GET", "/v1/buckets/nope/keys?prefix=cp", nil, "NOT_FOUND", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)

			var body middleware.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}

func TestServer_BucketUnresolved(t *testing.T) {
	client, err := file.New(file.Config{Root: "/store", Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	srv := New("127.0.0.1", 0, WithDriver(vdir.New(client, afero.NewMemMapFs(), nil, vdir.DefaultConfig())))

	rec := do(t, srv, http.MethodGet, "/v1/buckets/_/keys?prefix=cp", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body middleware.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "BUCKET_UNRESOLVED", body.Error.Code)
}

func TestServer_StartStops(t *testing.T) {
	srv := New("127.0.0.1", 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx, time.Second) }()
	cancel()
	assert.NoError(t, <-done)
}

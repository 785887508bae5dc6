package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/3leaps/bucketdir/internal/server/middleware"
	"github.com/3leaps/bucketdir/pkg/output"
	"github.com/3leaps/bucketdir/pkg/vdir"
)

// DefaultBucketParam in a bucket path segment selects the default bucket.
const DefaultBucketParam = "_"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Directories serves the directory operations of one driver.
type Directories struct {
	driver *vdir.Driver
}

// NewDirectories wraps d.
func NewDirectories(d *vdir.Driver) *Directories {
	return &Directories{driver: d}
}

// KeysResponse is the body of a listing.
type KeysResponse struct {
	Bucket string   `json:"bucket"`
	Prefix string   `json:"prefix"`
	Keys   []string `json:"keys"`
}

// ReportResponse is the body of a directory operation.
type ReportResponse struct {
	Summary *output.SummaryRecord  `json:"summary"`
	Results []*output.ResultRecord `json:"results"`
}

// CopyRequest names a directory copy. Empty buckets use the default.
type CopyRequest struct {
	FromBucket string `json:"from_bucket"`
	FromPrefix string `json:"from_prefix"`
	ToBucket   string `json:"to_bucket"`
	ToPrefix   string `json:"to_prefix"`
}

// MoveRequest names a move within one bucket.
type MoveRequest struct {
	Bucket     string `json:"bucket"`
	FromPrefix string `json:"from_prefix"`
	ToPrefix   string `json:"to_prefix"`
}

func bucketParam(r *http.Request) string {
	b := chi.URLParam(r, "bucket")
	if b == DefaultBucketParam {
		return ""
	}
	return b
}

// ListKeys handles GET /v1/buckets/{bucket}/keys?prefix=&max_keys=.
func (h *Directories) ListKeys(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	maxKeys := 0
	if v := r.URL.Query().Get("max_keys"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			middleware.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT",
				fmt.Sprintf("max_keys must be a non-negative integer: %q", v), nil)
			return
		}
		maxKeys = n
	}

	bucket, err := vdir.ResolveBucket(bucketParam(r), h.driver.Config().DefaultBucket)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	keys, err := h.driver.List(r.Context(), bucket, prefix, maxKeys)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, KeysResponse{Bucket: bucket, Prefix: prefix, Keys: keys})
}

// Copy handles POST /v1/directories/copy.
func (h *Directories) Copy(w http.ResponseWriter, r *http.Request) {
	var req CopyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rep, err := h.driver.CopyDirectory(r.Context(), req.FromBucket, req.FromPrefix, req.ToBucket, req.ToPrefix)
	writeReport(w, r, rep, err)
}

// Move handles POST /v1/directories/move.
func (h *Directories) Move(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.FromPrefix == "" {
		middleware.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "from_prefix is required", nil)
		return
	}
	rep, err := h.driver.MoveDirectory(r.Context(), req.FromPrefix, req.ToPrefix, req.Bucket)
	writeReport(w, r, rep, err)
}

// Delete handles DELETE /v1/buckets/{bucket}/directories?prefix=.
func (h *Directories) Delete(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		middleware.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "prefix is required", nil)
		return
	}
	rep, err := h.driver.DeleteDirectory(r.Context(), bucketParam(r), prefix)
	writeReport(w, r, rep, err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		middleware.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body: "+err.Error(), nil)
		return false
	}
	return true
}

// writeReport replies 200 when every key succeeded and 207 when some
// failed. A nil report means the operation aborted before touching a key.
func writeReport(w http.ResponseWriter, r *http.Request, rep *vdir.Report, err error) {
	if rep == nil {
		respondWithError(w, r, err)
		return
	}
	resp := ReportResponse{Summary: rep.Summary(), Results: make([]*output.ResultRecord, len(rep.Results))}
	for i, res := range rep.Results {
		resp.Results[i] = res.Record()
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, resp)
}

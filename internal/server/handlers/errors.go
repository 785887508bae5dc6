package handlers

import (
	"errors"
	"net/http"
	"sync"

	"github.com/3leaps/bucketdir/internal/server/middleware"
	"github.com/3leaps/bucketdir/pkg/listing"
	"github.com/3leaps/bucketdir/pkg/output"
	"github.com/3leaps/bucketdir/pkg/vdir"
)

// HTTPErrorResponder writes the reply for an operation error.
type HTTPErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

var (
	responderMu        sync.RWMutex
	httpErrorResponder HTTPErrorResponder = defaultErrorResponder
)

// SetHTTPErrorResponder replaces the error responder. Nil restores the
// default.
func SetHTTPErrorResponder(fn HTTPErrorResponder) {
	responderMu.Lock()
	defer responderMu.Unlock()
	if fn == nil {
		fn = defaultErrorResponder
	}
	httpErrorResponder = fn
}

// ResetHTTPErrorResponder restores the default responder.
func ResetHTTPErrorResponder() {
	SetHTTPErrorResponder(nil)
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	responderMu.RLock()
	fn := httpErrorResponder
	responderMu.RUnlock()
	fn(w, r, err)
}

// defaultErrorResponder maps the error code onto an HTTP status.
func defaultErrorResponder(w http.ResponseWriter, r *http.Request, err error) {
	code := vdir.ErrorCode(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError && errors.Is(err, listing.ErrListingFailed) {
		status = http.StatusBadGateway
	}
	middleware.WriteError(w, r, status, code, err.Error(), nil)
}

func statusFor(code string) int {
	switch code {
	case output.ErrCodeBucketUnresolved:
		return http.StatusBadRequest
	case output.ErrCodeNotFound:
		return http.StatusNotFound
	case output.ErrCodeAccessDenied:
		return http.StatusForbidden
	case output.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case output.ErrCodeThrottled:
		return http.StatusTooManyRequests
	case output.ErrCodeInternal:
		return http.StatusInternalServerError
	}
	return http.StatusBadGateway
}

// Package apperr defines the broker's error taxonomy on top of cockroachdb/errors.
//
// Each kind is a sentinel. Errors built with the constructors below are marked
// with their sentinel, so errors.Is keeps matching after further wrapping:
//
//	err := apperr.NotFound("job %s", id)
//	errors.Is(errors.Wrap(err, "complete"), apperr.ErrNotFound) // true
package apperr

import (
	"context"
	"net"
	"net/http"

	"github.com/cockroachdb/errors"
)

var (
	ErrBadRequest          = errors.New("bad request")
	ErrNotFound            = errors.New("not found")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
	ErrInternal            = errors.New("internal error")
)

// Re-exported so callers do not need a second errors import.
var (
	Is   = errors.Is
	As   = errors.As
	Wrap = errors.Wrap
)

func BadRequest(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrBadRequest)
}

func NotFound(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

func Internal(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrInternal)
}

// Upstream classifies a failed call to the workflow engine.
// Deadline and timeout errors become ErrUpstreamTimeout, everything else
// ErrUpstreamUnreachable.
func Upstream(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := errors.Wrap(err, msg)
	if isTimeout(err) {
		return errors.Mark(wrapped, ErrUpstreamTimeout)
	}
	return errors.Mark(wrapped, ErrUpstreamUnreachable)
}

// UpstreamStatus reports an engine that answered with a non-2xx status.
func UpstreamStatus(code int, status string) error {
	return errors.Mark(errors.Newf("engine webhook error: %d %s", code, status), ErrUpstreamUnreachable)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// HTTPStatus maps an error onto the status code returned to clients.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUpstreamUnreachable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

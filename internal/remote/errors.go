package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnavailable means the store of record could not be reached or did
	// not produce a usable answer: transport failure, timeout, 5xx, an open
	// breaker or a rejected read.
	ErrUnavailable = errors.New("remote catalog unavailable")

	// ErrNotApplied means the store of record answered a write with a
	// non-success status, so the change was not applied remotely.
	ErrNotApplied = errors.New("remote catalog did not apply the change")

	// ErrUnauthorized is additionally matched by 401 and 403 responses.
	ErrUnauthorized = errors.New("remote catalog refused the credentials")

	// ErrBreakerOpen is returned without a network call while the breaker is open.
	ErrBreakerOpen = fmt.Errorf("%w: circuit breaker open", ErrUnavailable)
)

// StatusError is a non-2xx response from the store of record.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
	category   error
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() []error {
	errs := []error{e.category}
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		errs = append(errs, ErrUnauthorized)
	}
	return errs
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// IsRemoteFailure reports whether err means the store of record did not
// carry out the call, as opposed to a local error.
func IsRemoteFailure(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrNotApplied)
}

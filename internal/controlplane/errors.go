package controlplane

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnauthorized is returned by FetchBundle when the control plane
// rejects the token with 401. It is the only error that triggers a
// token refresh and retry.
var ErrUnauthorized = errors.New("bundle fetch unauthorized")

// StatusError is a non-success HTTP response.
type StatusError struct {
	Op         string // "exchange" or "bundle"
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: HTTP %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
}

// TimeoutError is returned when a request exceeds its time bound.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.After)
}

package remote

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrConnectivity matches failures to reach the remote service at all
	ErrConnectivity = errors.New("remote service unreachable")

	// ErrRejected matches any non-2xx answer from the remote service
	ErrRejected = errors.New("remote service rejected the request")

	// ErrNotConfigured is returned when no remote URL or API key is set
	ErrNotConfigured = errors.New("remote service not configured")
)

// ConnectivityError wraps a transport failure: DNS, refused connection, timeout
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrConnectivity, e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

func (e *ConnectivityError) Is(target error) bool { return target == ErrConnectivity }

// APIError is a PostgREST error body plus the HTTP status
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details"`
	Hint       string `json:"hint"`
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "API error %d", e.StatusCode)
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Details != "" {
		fmt.Fprintf(&b, " - %s", e.Details)
	}
	return b.String()
}

func (e *APIError) Is(target error) bool { return target == ErrRejected }

// Permanent reports whether replaying the same request can never succeed:
// any 4xx except request timeout and rate limiting.
func (e *APIError) Permanent() bool {
	if e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests {
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsConnectivity reports whether err is a connectivity failure
func IsConnectivity(err error) bool {
	return errors.Is(err, ErrConnectivity)
}

// IsRejection reports whether err is a remote rejection
func IsRejection(err error) bool {
	return errors.Is(err, ErrRejected)
}

// IsPermanentRejection reports whether err is a rejection that retrying cannot fix
func IsPermanentRejection(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Permanent()
}

// Package gdrive provides an HTTP client for the Google Drive v3 resumable
// upload protocol: session creation, chunk transfer, status probing, and
// permission grants, with HTTP status classification into sentinel errors.
package gdrive

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, gdrive.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("gdrive: bad request")
	ErrUnauthorized = errors.New("gdrive: unauthorized")
	ErrForbidden    = errors.New("gdrive: forbidden")
	ErrNotFound     = errors.New("gdrive: not found")
	ErrGone         = errors.New("gdrive: resource gone")
	ErrThrottled    = errors.New("gdrive: throttled")
	ErrServerError  = errors.New("gdrive: server error")
)

// ErrTransport marks failures below HTTP: DNS, connection resets, timeouts.
// The request may or may not have reached the server.
var ErrTransport = errors.New("gdrive: transport failure")

// ErrTokenUnavailable wraps any failure to obtain a bearer token before a
// request was sent.
var ErrTokenUnavailable = errors.New("gdrive: access token unavailable")

// ErrNotLoggedIn is returned when no saved token exists.
var ErrNotLoggedIn = errors.New("gdrive: not logged in")

// ErrReauthRequired is returned by TokenProvider.Refresh when the refresh
// token has been revoked or expired and the consent flow must run again.
var ErrReauthRequired = errors.New("gdrive: re-authorization required")

// APIError wraps a sentinel error with the HTTP status code, the Google
// request id (when present), and the response body for debugging.
type APIError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("gdrive: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("gdrive: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsSessionExpired reports whether err means the resumable session URI is no
// longer valid on the server (404 or 410).
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrGone)
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes with no dedicated sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusGone:
		return ErrGone
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// requestIDHeader is the response header Google front ends use for tracing.
const requestIDHeader = "X-GUploader-UploadID"

// newAPIError builds an APIError from a status code, response headers, and body.
func newAPIError(resp *http.Response, body []byte) *APIError {
	return &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get(requestIDHeader),
		Message:    string(body),
		Err:        classifyStatus(resp.StatusCode),
	}
}

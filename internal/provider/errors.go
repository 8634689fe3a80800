package provider

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrAuthenticationFailed = errors.New("upstream authentication failed")
	ErrRateLimited          = errors.New("upstream rate limited")
	ErrUpstream             = errors.New("upstream error")
)

// UpstreamError carries the full detail of a failed upstream call. The body is
// kept for server-side logs only and must never be shown to clients.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
	Kind       error
	Cause      error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s api error: %s", e.Provider, e.Body)
	}
	return fmt.Sprintf("%s api error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

func (e *UpstreamError) Is(target error) bool {
	return target == e.Kind
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// ClassifyStatus maps a non-2xx upstream status to one of the error kinds.
func ClassifyStatus(providerName string, status int, body []byte) error {
	kind := ErrUpstream
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = ErrAuthenticationFailed
	case http.StatusTooManyRequests:
		kind = ErrRateLimited
	}
	return &UpstreamError{
		Provider:   providerName,
		StatusCode: status,
		Body:       string(body),
		Kind:       kind,
	}
}

// StreamError wraps a failure that happened after the upstream accepted the
// request: a broken connection, an undecodable event or an in-band error event.
func StreamError(providerName string, err error) error {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{
		Provider: providerName,
		Body:     err.Error(),
		Kind:     ErrUpstream,
		Cause:    err,
	}
}

// MissingCredentials is returned by adapters built without an API key.
func MissingCredentials(providerName string) error {
	return &UpstreamError{
		Provider: providerName,
		Body:     "missing api key",
		Kind:     ErrAuthenticationFailed,
	}
}

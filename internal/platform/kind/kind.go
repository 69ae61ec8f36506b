// Package kind holds the platform identifier and the error taxonomy shared by
// the adapters and the outbound HTTP client. It sits below both so the client
// can classify failures without importing the adapter package.
package kind

import (
	"errors"
	"fmt"
)

// Platform identifies one external social network.
type Platform string

// ErrorKind classifies a platform failure for retry and reporting decisions.
type ErrorKind string

const (
	// Authentication - credential invalid or expired. Never retried; the
	// account should be flagged for reconnection.
	Authentication ErrorKind = "authentication"
	// RateLimit - the network throttled us. Retried up to the bound, honoring
	// a Retry-After hint when present.
	RateLimit ErrorKind = "rate_limit"
	// TransientNetwork - timeout or connection failure. Retried with backoff.
	TransientNetwork ErrorKind = "transient_network"
	// PermanentAPI - the network rejected the request for a content or policy
	// reason. Not retried; recorded verbatim as the target's failure.
	PermanentAPI ErrorKind = "permanent_api"
	// MediaPreparation - media processing failed. Degrades to posting the
	// original asset instead of failing the publish.
	MediaPreparation ErrorKind = "media_preparation"
)

// Error is the normalized form every adapter converts native network errors
// into before they cross the adapter boundary.
type Error struct {
	Kind       ErrorKind
	Platform   Platform
	Message    string
	StatusCode int
	RetryAfter int // seconds, rate-limit hint; 0 when absent
}

func (e *Error) Error() string {
	if e.Platform != "" {
		return fmt.Sprintf("%s: %s", e.Platform, e.Message)
	}
	return e.Message
}

func New(k ErrorKind, p Platform, message string) *Error {
	return &Error{Kind: k, Platform: p, Message: message}
}

// Retryable reports whether the error may succeed on a later attempt.
func (e *Error) Retryable() bool {
	return e.Kind == RateLimit || e.Kind == TransientNetwork
}

// Of extracts the taxonomy kind from err, or PermanentAPI when err is not a
// platform error.
func Of(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return PermanentAPI
}

// IsAuthentication reports whether err is a credential failure.
func IsAuthentication(err error) bool {
	return Of(err) == Authentication
}

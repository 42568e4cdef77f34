// Package services defines the contact-intake business logic: validation of
// untrusted payloads and the submission pipeline that rate-checks and fans a
// submission out to delivery backends. This file centralizes service-level
// error values so that callers can check them with errors.Is.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

var (
	// ErrMissingRequiredField is returned when email, firstName or message is
	// absent, null or blank.
	ErrMissingRequiredField = errors.New("missing required fields")

	// ErrRateLimitExceeded is returned when the client has used up its
	// submissions for the current window.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrAllBackendsFailed is returned when no configured delivery backend
	// accepted the submission. The Result still carries every outcome.
	ErrAllBackendsFailed = errors.New("all delivery backends failed")
)

// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and travel in the `code` field of every
// error envelope (see fail()). The human-readable text travels in `error`,
// which is what the contact form displays.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "too_many_requests",
//	  "error": "Rate limit exceeded"
//	}
package handlers

const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeNotFound        = "not_found"
	ErrCodeTooLarge        = "payload_too_large"
	ErrCodeRateLimited     = "too_many_requests"
	ErrCodeInternal        = "internal_error"
	ErrCodeUnavailable     = "service_unavailable"
	ErrCodeNotConfigured   = "not_configured"
	ErrCodeDeliveryFailed  = "delivery_failed"
	ErrCodeListFailed      = "list_failed"
	ErrCodeAnalyticsFailed = "analytics_failed"
)

// User-facing messages. They never carry backend error text.
const (
	msgMissingFields     = "Missing required fields"
	msgRateLimited       = "Rate limit exceeded"
	msgBodyTooLarge      = "Request body too large"
	msgSubmitted         = "Form submitted successfully"
	msgServerError       = "Server error"
	msgMailUnavailable   = "Email service temporarily unavailable. Please try again later."
	msgMailNotConfigured = "Email service not configured. Please contact support."
	msgMailAuthFailed    = "Email authentication failed. Please contact support."
	msgMailFailed        = "Failed to send email. Please try again later."
	msgStoreFailed       = "Failed to store submission. Please try again."
	msgAllFailed         = "Failed to process submission. Please try again."
	msgStoreNotAvailable = "Record store not configured"
	msgListFailed        = "Failed to retrieve submissions"
	msgAnalyticsFailed   = "failed"
)

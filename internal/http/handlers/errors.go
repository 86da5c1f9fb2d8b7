// Package handlers defines HTTP-layer error codes used across all API
// endpoints. These codes give clients a stable, machine-readable taxonomy
// that supplements human-readable messages. Generic codes mirror common HTTP
// status semantics; domain-specific codes cover business failures that cannot
// be conveyed by status alone.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeSaveFailed   = "save_failed"
	ErrCodeListFailed   = "list_failed"
	ErrCodeUploadFailed = "upload_failed"
	ErrCodeSendFailed   = "send_failed"
	ErrCodeQueueFull    = "queue_full"
)

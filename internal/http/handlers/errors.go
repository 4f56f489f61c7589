// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via the `fail()` helper in this package). These codes give
// clients a stable, machine-readable error taxonomy; webhook senders in
// particular branch on them to decide whether a delivery is worth retrying.
//
// Conventions:
//   - Codes are lowercase, snake_case, and stable across releases.
//   - Webhook-specific codes (missing_delivery_id, invalid_signature, ...)
//     mirror the ingestion pipeline's reject reasons one-to-one, so the
//     response code always matches the persisted receipt status' cause.
//   - transient_processing_failure signals the sender should redeliver; all
//     4xx codes mean redelivering the same payload cannot succeed.
//
// Example response:
//
//	{
//	  "ok": false,
//	  "error": "invalid_signature",
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6"
//	}
package handlers

const (
	// Webhook ingestion
	ErrCodeMissingDeliveryID = "missing_delivery_id"
	ErrCodeInvalidDeliveryID = "invalid_delivery_id"
	ErrCodeInvalidSignature  = "invalid_signature"
	ErrCodeInvalidJSON       = "invalid_json"
	ErrCodeMissingEventName  = "missing_event_name"
	ErrCodeTransientFailure  = "transient_processing_failure"

	// Generic
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"

	// OAuth
	ErrCodeMissingCode         = "missing_code"
	ErrCodeOAuthExchangeFailed = "oauth_exchange_failed"
)

// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities used across all endpoints.
// Every JSON body carries an "ok" boolean so clients can branch without
// re-deriving success from the status code; failures add a stable,
// machine-readable "error" code (see errors.go) and echo the delivery id when
// the request concerned one.
//
// Conventions:
//   - All error responses must return an ErrorResponse with a stable `error`.
//   - `fail()` centralizes error logging and formatting, ensuring 5xx responses
//     are logged with request context for observability.
//   - `ok()` keeps success responses in a consistent shape across handlers.
//
// Example error response:
//
//	HTTP/1.1 401 Unauthorized
//	{
//	  "ok": false,
//	  "error": "invalid_signature",
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000"
//	}
//
// Example success response:
//
//	HTTP/1.1 200 OK
//	{ "ok": true, "delivery_id": "d-123", "duplicate": false, "outcomes": [] }
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/erauner/autodoist-events/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
//
// Fields:
//   - OK: always false for errors; lets clients branch on a single field.
//   - Code: a stable, machine-readable string (see errors.go constants).
//   - DeliveryID: set when the failure concerned a specific webhook delivery.
//   - RequestID: optional correlation ID, echoed from X-Request-ID, used to
//     correlate server logs with client-side errors.
//
// This struct is used in OpenAPI documentation via Swagger annotations.
type ErrorResponse struct {
	// Always false on errors
	OK bool `json:"ok" example:"false"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"error" example:"not_found"`
	// Delivery the failure concerned, when applicable
	DeliveryID string `json:"delivery_id,omitempty" example:"d-1001"`
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// fail aborts the request with a structured error envelope.
//
// It constructs an ErrorResponse, writes it as JSON with the given HTTP
// status, and calls gin.Context.AbortWithStatusJSON to stop further
// processing. Server errors (>=500) are logged using the request-scoped
// logger from middleware.
func fail(c *gin.Context, status int, code string) {
	failDelivery(c, status, code, "")
}

// failDelivery is fail with the affected delivery id echoed in the body, as
// the webhook endpoint's error contract requires.
func failDelivery(c *gin.Context, status int, code, deliveryID string) {
	resp := ErrorResponse{
		Code:       code,
		DeliveryID: deliveryID,
		RequestID:  c.Writer.Header().Get("X-Request-ID"),
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("delivery_id", deliveryID).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail().
//
// External packages (e.g., router setup) should call Fail to return
// consistent error envelopes without directly depending on unexported helpers.
func Fail(c *gin.Context, status int, code string) { fail(c, status, code) }

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements delivery-id handling for the webhook endpoint. Todoist
// sends a unique X-Todoist-Delivery-ID with every delivery and reuses it on
// redelivery, which makes it the natural idempotency key for the whole
// pipeline. The middleware validates the header, stashes the id in the
// request context so downstream handlers can:
//   - read the normalized id (GetDeliveryID)
//   - detect redeliveries of already processed ids (IsReplay)
//   - bypass rate limiting for such replays (via an internal flag)
//
// Design goals:
//   - Keep transport concerns (validation, context stashing) in middleware.
//   - Decouple persistence via a narrow ReplayLookup function type.
//   - Remain framework-agnostic beyond Gin's context.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderDeliveryID is the Todoist webhook header carrying the unique delivery
// identifier. Todoist repeats the same value when it redelivers a payload, so
// the id doubles as the pipeline's idempotency key.
const HeaderDeliveryID = "X-Todoist-Delivery-ID"

// Context keys used internally to stash delivery state.
// These keys are intentionally unexported and referenced via accessor helpers.
const (
	ctxKeyDeliveryID = "delivery.id"
	ctxKeyReplay     = "delivery.replay" // bool: true when the id was already processed
	ctxKeyRateBypass = "rate.bypass"     // bool: true to skip rate limiting
)

// GetDeliveryID returns the validated delivery id stored in the Gin context
// by RequireDeliveryID. The second return value indicates presence.
//
// Handlers should prefer this function over reading the header directly.
func GetDeliveryID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyDeliveryID)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the middleware detected that this request
// redelivers an already processed delivery id.
//
// When true, upstream components (e.g., rate limiters) may short-circuit;
// the pipeline itself still answers with its duplicate response so the
// sender sees the same body either way.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// DeliveryIDOptions configures header validation behavior for
// RequireDeliveryID.
type DeliveryIDOptions struct {
	// MaxLen caps the accepted id length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. If nil, a conservative
	// RFC7230-like token pattern is used: ^[A-Za-z0-9._~\-:]+$
	Pattern *regexp.Regexp
}

// ReplayLookup answers whether a delivery id has already been processed to
// completion. Implementations typically consult the receipt ledger.
//
// Return exists=true when the prior delivery finished; return an error only
// for lookup failures (which must not block normal processing).
type ReplayLookup func(ctx context.Context, deliveryID string) (exists bool, err error)

// RequireDeliveryID rejects webhook requests without a delivery id, validates
// the header value, stashes it in the request context, and optionally checks
// for a prior completed delivery via the supplied lookup. When a replay is
// detected, it marks the context so downstream components can:
//   - detect replay via IsReplay
//   - bypass rate limiting (internal flag checked by the RL middleware)
//
// Behavior:
//   - If the header is absent or blank: responds 400 missing_delivery_id.
//   - If the header fails validation: responds 400 invalid_delivery_id.
//   - If lookup indicates a replay: sets replay + rate-bypass flags.
//   - Otherwise invokes the next handler.
//
// This middleware never serves the duplicate response itself; the pipeline
// remains in control of the wire contract for redeliveries.
func RequireDeliveryID(opts DeliveryIDOptions, lookup ReplayLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		// RFC-7230-ish token + common safe chars; covers UUID delivery ids.
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderDeliveryID))
		if id == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"ok":    false,
				"error": "missing_delivery_id",
			})
			return
		}
		if len(id) > maxLen || !pat.MatchString(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"ok":    false,
				"error": "invalid_delivery_id",
			})
			return
		}

		// Stash the normalized id for downstream use.
		c.Set(ctxKeyDeliveryID, id)

		// If the ledger already holds a processed receipt for this id, mark
		// replay + rate bypass so redeliveries are never throttled away.
		if lookup != nil {
			if exists, _ := lookup(c.Request.Context(), id); exists {
				c.Set(ctxKeyReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}

// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, an access logger that scrubs PII
// and credentials from request metadata before anything reaches the log
// stream. Bodies are never logged: webhook payloads carry task content,
// which is user data. The scrubbing is best effort; the OAuth callback in
// particular carries an authorization code in its query string whose shape
// the patterns below cannot fully anticipate, so that route should stay
// out of verbose logging paths.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions adds header names whose values are replaced wholesale with
// "[REDACTED]". Matching is case-insensitive and merges with the built-in
// set: Authorization, Cookie, Set-Cookie, and the Todoist signature header
// (an HMAC over the body with the client secret, so effectively a
// credential).
type RedactOptions struct {
	MaskHeaders []string
}

// RedactingLogger logs method, route, query, status, size, latency, and
// scrubbed request headers at a level tracking the response status. Query
// strings and header values pass through regex substitution for emails,
// phone numbers, and UUID-shaped identifiers. The delivery id is logged
// as its own field untouched; it is a correlation key, not user data.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	// UUIDs must be redacted before phones so the phone pattern cannot eat
	// the digit/hyphen runs inside a UUID.
	uuidRE := regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE := regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits only, so hex segments from ids cannot match.
	// Matches "+1 212-555-1212", "212 555 1212", "(212) 555-1212".
	phoneRE := regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)

	redact := func(s string) string {
		if s == "" {
			return s
		}
		out := uuidRE.ReplaceAllString(s, "[REDACTED:id]")
		out = emailRE.ReplaceAllString(out, "[REDACTED:email]")
		return phoneRE.ReplaceAllString(out, "[REDACTED:phone]")
	}

	masked := map[string]struct{}{
		"authorization":         {},
		"cookie":                {},
		"set-cookie":            {},
		"x-todoist-hmac-sha256": {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := routePath(c)
		safeQuery := redact(c.Request.URL.RawQuery)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := masked[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redact(strings.Join(vv, ", "))
		}

		c.Next()

		status := c.Writer.Status()

		// RequestID normally stamped the response already; fall back to the
		// inbound header when this middleware runs without it.
		reqID := c.Writer.Header().Get("X-Request-ID")
		if reqID == "" {
			reqID = c.GetHeader("X-Request-ID")
		}
		deliveryID, _ := GetDeliveryID(c)

		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}

		ev.
			Str("request_id", reqID).
			Str("delivery_id", deliveryID).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", safeQuery).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}

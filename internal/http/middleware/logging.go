// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides the correlation id injector, the structured access
// logger, and the panic recovery handler. The intended order is
//
//	RequestID() -> Logger() (or RedactingLogger) -> Recovery()
//
// so that panics and error responses carry the correlation id. Logger also
// parks a request-scoped zerolog.Logger in the Gin context (key "logger");
// handlers retrieve it with LoggerFrom and enrich it with delivery fields
// instead of building their own loggers.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key holding the correlation id.
	requestIDKey = "requestID"
	// requestIDHeader propagates the correlation id across services.
	requestIDHeader = "X-Request-ID"
	// maxQueryLogLength caps the logged query string. Webhook deliveries
	// carry no meaningful query, so anything longer is noise.
	maxQueryLogLength = 2048
)

// RequestID reuses an incoming X-Request-ID or generates a UUID. The id is
// stored in the Gin context and echoed on the response so callers can quote
// it when reporting a failed delivery.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// routePath prefers the registered route template over the raw URL so log
// and metric labels stay bounded; unmatched requests fall back to the path.
func routePath(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

// Logger emits one structured line per request and attaches the
// request-scoped logger for handlers. Level tracks the outcome: error for
// 5xx or collected Gin errors, warn for 4xx, info otherwise. The delivery
// id is resolved after c.Next() because RequireDeliveryID runs downstream
// on the webhook route.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid, _ := c.Get(requestIDKey)
		l := log.With().
			Str("request_id", asString(rid)).
			Str("method", c.Request.Method).
			Str("path", routePath(c)).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("referer", c.Request.Referer()).
			Str("query", truncate(c.Request.URL.RawQuery, maxQueryLogLength)).
			Int64("bytes_in", c.Request.ContentLength). // -1 when unknown
			Logger()

		c.Set("logger", &l)

		c.Next()

		did, _ := GetDeliveryID(c)
		status := c.Writer.Status()
		ev := l.With().
			Str("delivery_id", did).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Int("bytes_out", c.Writer.Size()).
			Logger()

		switch {
		case len(c.Errors) > 0:
			ev.Error().Str("errors", c.Errors.String()).Msg("request")
		case status >= 500:
			ev.Error().Msg("request")
		case status >= 400:
			ev.Warn().Msg("request")
		default:
			ev.Info().Msg("request")
		}
	}
}

// Recovery converts panics into the standard JSON 500 envelope. The stack
// is logged, never returned to the caller. If the handler already wrote a
// partial response only the status can be forced, not the body.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid, _ := c.Get(requestIDKey)
			log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", asString(rid)).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header("Content-Type", "application/json")
			c.Header(requestIDHeader, asString(rid))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"ok":         false,
				"error":      "internal_error",
				"request_id": asString(rid),
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger attached by Logger or
// RedactingLogger. Without one it falls back to the global logger, so the
// result is always usable.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get("logger"); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// asString unwraps context values that should be strings; anything else
// becomes "".
func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate caps s at max bytes and marks the cut with an ellipsis. Byte
// truncation can split a rune, which is acceptable for log output.
// max <= 0 disables the cap.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// Admin HTTP handlers.
//
// This file exposes read-only endpoints over the receipt ledger:
//   - GET /api/events                 (recent receipts, ETag support)
//   - GET /api/events/{delivery_id}   (one receipt plus its action outcomes)
//
// Both routes require a bearer token; leaving the token unconfigured
// disables the surface entirely rather than opening it.
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/erauner/autodoist-events/internal/repo"
	"github.com/erauner/autodoist-events/internal/utils"
)

// listEventsDefaultLimit matches the ledger read cap used when the client
// does not ask for a specific page size.
const (
	listEventsDefaultLimit = 200
	listEventsMaxLimit     = 500
)

// requireAdmin enforces the admin bearer token. An unset token always
// denies, so a half-configured deployment can never expose the ledger.
func (h *Handlers) requireAdmin(c *gin.Context) bool {
	return requireBearer(c, h.cfg.AdminToken)
}

// requireBearer compares the Authorization header against "Bearer <token>"
// and writes the 401 envelope itself when the check fails.
func requireBearer(c *gin.Context, token string) bool {
	if token == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized)
		return false
	}
	if strings.TrimSpace(c.GetHeader("Authorization")) != "Bearer "+token {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized)
		return false
	}
	return true
}

// clampLimit parses and bounds the limit query param.
func clampLimit(c *gin.Context) int {
	limit := utils.AtoiDefault(c.Query("limit"), listEventsDefaultLimit)
	return utils.ClampInt(limit, 1, listEventsMaxLimit)
}

// ListEvents godoc
// @ID          listEvents
// @Summary     List recent webhook receipts
// @Description Returns the most recent deliveries with their terminal status. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Admin
// @Produce     json
// @Security    AdminToken
//
// @Param       Authorization  header  string  true  "Bearer <admin token>"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       limit          query   int     false "Max receipts to return"  minimum(1) maximum(500) default(200)
//
// @Success     200  {object} map[string]any
// @Header      200  {string} ETag "Weak ETag for current ledger state"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Missing or wrong admin token"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /api/events [get]
func (h *Handlers) ListEvents(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	ctx := c.Request.Context()

	// ETag pre-check (best effort).
	if count, maxTS, err := repo.ReceiptsStats(ctx, h.db); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"events:%d:%d"`, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, err := repo.ListReceipts(ctx, h.db, clampLimit(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, gin.H{"ok": true, "items": items})
}

// GetEvent godoc
// @ID          getEvent
// @Summary     Fetch one receipt with its action outcomes
// @Description Returns the receipt for a delivery id together with every recorded rule action, in execution order.
// @Tags        Admin
// @Produce     json
// @Security    AdminToken
//
// @Param       Authorization  header  string  true  "Bearer <admin token>"
// @Param       delivery_id    path    string  true  "Webhook delivery id"
//
// @Success     200  {object} map[string]any
// @Failure     401  {object} handlers.ErrorResponse "Missing or wrong admin token"
// @Failure     404  {object} handlers.ErrorResponse "Unknown delivery id"
// @Router      /api/events/{delivery_id} [get]
func (h *Handlers) GetEvent(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	ctx := c.Request.Context()
	deliveryID := c.Param("delivery_id")

	receipt, err := repo.GetReceipt(ctx, h.db, deliveryID)
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound)
		return
	}
	actions, err := repo.ListActions(ctx, h.db, deliveryID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, gin.H{"ok": true, "receipt": receipt, "actions": actions})
}

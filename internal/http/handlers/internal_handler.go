// Internal trigger HTTP handler.
//
// This file exposes the operator-only policy trigger:
//   - POST /internal/trigger
//
// A cron sidecar (or a human) calls it to run the focus policy outside the
// webhook flow, typically as a fallback sweep when no reminder fired. The
// endpoint requires its own bearer token, separate from the admin token.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/erauner/autodoist-events/internal/services"
)

// InternalTrigger godoc
// @ID          internalTrigger
// @Summary     Run the focus policy on demand
// @Description Evaluates the focus policy over all active tasks and, when deliver=true and the policy says notify, posts the nudge to the configured webhook. Every run writes an audit receipt regardless of the decision.
// @Tags        Internal
// @Accept      json
// @Produce     json
// @Security    InternalToken
//
// @Param       Authorization  header  string                     true   "Bearer <internal token>"
// @Param       body           body    services.TriggerRequest    false  "Trigger options"
//
// @Success     200  {object} map[string]any
// @Failure     401  {object} handlers.ErrorResponse "Missing or wrong internal token"
// @Failure     500  {object} handlers.ErrorResponse "Task listing or ledger failure"
// @Router      /internal/trigger [post]
func (h *Handlers) InternalTrigger(c *gin.Context) {
	if !requireBearer(c, h.cfg.InternalToken) {
		return
	}

	// The body is optional; an empty or absent body runs a decide-only
	// cron-source evaluation.
	var req services.TriggerRequest
	_ = c.ShouldBindJSON(&req)

	res, err := h.trigger.Run(c.Request.Context(), req)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal)
		return
	}

	ok(c, http.StatusOK, gin.H{
		"ok":       true,
		"decision": res.Decision,
		"delivery": res.Delivery,
		"audit_id": res.AuditID,
	})
}

// OAuth callback HTTP handler.
//
// This file exposes the redirect target for the Todoist OAuth flow:
//   - GET /oauth/callback?code=...&state=...
//
// The service only needs the exchange to succeed once during installation;
// the resulting token is surfaced to the operator via logs, not stored.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/erauner/autodoist-events/internal/http/middleware"
)

// OAuthCallback godoc
// @ID          oauthCallback
// @Summary     Todoist OAuth redirect target
// @Description Exchanges the authorization code for an access token using the configured client id, client secret, and redirect URI. The token is logged for the operator and never returned to the caller.
// @Tags        OAuth
// @Produce     json
//
// @Param       code   query  string  true   "Authorization code from Todoist"
// @Param       state  query  string  false  "Opaque state echoed by Todoist"
//
// @Success     200  {object} map[string]any
// @Failure     400  {object} handlers.ErrorResponse "Missing code parameter"
// @Failure     500  {object} map[string]any "OAuth not configured or exchange failed"
// @Router      /oauth/callback [get]
func (h *Handlers) OAuthCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "oauth_exchanged": false, "error": ErrCodeMissingCode})
		return
	}

	// The Todoist client secret doubles as the webhook HMAC key, so OAuth is
	// configured exactly when a client id and redirect URI are present.
	if h.cfg.ClientID == "" || h.cfg.OAuthRedirectURI == "" || h.cfg.WebhookSecret == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "oauth_exchanged": false})
		return
	}

	tok, err := h.oauth.ExchangeOAuthCode(c.Request.Context(), code, h.cfg.ClientID, h.cfg.WebhookSecret, h.cfg.OAuthRedirectURI)
	if err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Msg("oauth exchange failed")
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "oauth_exchanged": false, "error": ErrCodeOAuthExchangeFailed})
		return
	}

	// Operators complete installation from the logs; the token never leaves
	// the server in a response body.
	middleware.LoggerFrom(c).Info().
		Str("scope", tok.Scope).
		Str("state", c.Query("state")).
		Msg("oauth code exchanged")

	ok(c, http.StatusOK, gin.H{"ok": true, "oauth_exchanged": true})
}

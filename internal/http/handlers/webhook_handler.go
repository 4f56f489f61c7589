// Todoist webhook HTTP handler.
//
// This file exposes the ingestion endpoint:
//   - POST /hooks/todoist    (receive a webhook delivery)
//
// The handler is transport-thin: it reads the raw body and auth headers,
// hands them to the delivery pipeline, and translates the pipeline's
// terminal outcome into the wire contract. Signature verification, receipt
// bookkeeping, and rule execution all live in the services layer.
package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/erauner/autodoist-events/internal/config"
	"github.com/erauner/autodoist-events/internal/http/middleware"
	"github.com/erauner/autodoist-events/internal/services"
	"github.com/erauner/autodoist-events/internal/todoist"
)

// HeaderSignature is the Todoist webhook signature header: a base64-encoded
// HMAC-SHA256 of the raw request body keyed by the app's client secret.
const HeaderSignature = "X-Todoist-Hmac-SHA256"

//
// Service contracts (context-aware)
//

// DeliveryPipeline processes one raw webhook delivery end to end and always
// reports a terminal outcome. Implementations must be safe for concurrent
// use; the webhook endpoint sees parallel deliveries.
type DeliveryPipeline interface {
	ProcessDelivery(ctx context.Context, deliveryID string, rawBody []byte, signature string) *services.DeliveryOutcome
}

// TriggerRunner evaluates the focus policy on demand and optionally delivers
// the resulting nudge, returning the decision and an audit id.
type TriggerRunner interface {
	Run(ctx context.Context, req services.TriggerRequest) (*services.TriggerResult, error)
}

// OAuthExchanger swaps an OAuth authorization code for an access token.
type OAuthExchanger interface {
	ExchangeOAuthCode(ctx context.Context, code, clientID, clientSecret, redirectURI string) (*todoist.OAuthToken, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints: webhook ingestion, admin reads over
// the receipt ledger, the OAuth callback, and the internal policy trigger.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic; the DB handle is only used for read paths.
type Handlers struct {
	pipeline DeliveryPipeline
	trigger  TriggerRunner
	oauth    OAuthExchanger
	db       *gorm.DB
	cfg      config.Config
}

// New constructs a Handlers instance bound to the given services.
func New(pipeline DeliveryPipeline, trigger TriggerRunner, oauth OAuthExchanger, db *gorm.DB, cfg config.Config) *Handlers {
	return &Handlers{pipeline: pipeline, trigger: trigger, oauth: oauth, db: db, cfg: cfg}
}

//
// Handlers
//

// HandleTodoistWebhook godoc
// @ID          handleTodoistWebhook
// @Summary     Receive a Todoist webhook delivery
// @Description Verifies the HMAC signature, records a receipt keyed by the delivery id, and runs the enabled automation rules. Redeliveries of an already processed id short-circuit with duplicate=true.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Param       X-Todoist-Delivery-ID   header  string  true  "Unique delivery id (idempotency key)"
// @Param       X-Todoist-Hmac-SHA256   header  string  true  "Base64 HMAC-SHA256 of the raw body"
// @Param       body                    body    object  true  "Todoist event envelope"
//
// @Success     200  {object}  map[string]any
// @Failure     400  {object}  handlers.ErrorResponse  "Missing delivery id, malformed JSON, or missing event name"
// @Failure     401  {object}  handlers.ErrorResponse  "Signature verification failed"
// @Failure     500  {object}  handlers.ErrorResponse  "Transient processing failure; sender should redeliver"
// @Router      /hooks/todoist [post]
func (h *Handlers) HandleTodoistWebhook(c *gin.Context) {
	deliveryID, hasID := middleware.GetDeliveryID(c)
	if !hasID {
		// Normally unreachable behind RequireDeliveryID; kept so the handler
		// stands alone in tests.
		deliveryID = c.GetHeader(middleware.HeaderDeliveryID)
	}
	if deliveryID == "" {
		fail(c, http.StatusBadRequest, ErrCodeMissingDeliveryID)
		return
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		// Body over the size cap or a broken stream; either way the payload
		// is unusable and the sender must not retry it verbatim.
		failDelivery(c, http.StatusBadRequest, ErrCodeInvalidJSON, deliveryID)
		return
	}

	out := h.pipeline.ProcessDelivery(c.Request.Context(), deliveryID, raw, c.GetHeader(HeaderSignature))
	if out.Err != nil {
		middleware.LoggerFrom(c).Error().
			Err(out.Err).
			Str("delivery_id", deliveryID).
			Msg("delivery processing failed")
	}

	switch out.Kind {
	case services.OutcomeRejectedSignature:
		fail(c, http.StatusUnauthorized, ErrCodeInvalidSignature)
	case services.OutcomeBadJSON:
		fail(c, http.StatusBadRequest, ErrCodeInvalidJSON)
	case services.OutcomeMissingEventName:
		fail(c, http.StatusBadRequest, ErrCodeMissingEventName)
	case services.OutcomeDuplicate:
		ok(c, http.StatusOK, gin.H{"ok": true, "delivery_id": deliveryID, "duplicate": true})
	case services.OutcomeIgnored:
		ok(c, http.StatusOK, gin.H{"ok": true, "delivery_id": deliveryID, "status": out.Status})
	case services.OutcomeProcessed:
		outcomes := out.Outcomes
		if outcomes == nil {
			outcomes = []map[string]any{}
		}
		ok(c, http.StatusOK, gin.H{"ok": true, "delivery_id": deliveryID, "duplicate": false, "outcomes": outcomes})
	default:
		failDelivery(c, http.StatusInternalServerError, ErrCodeTransientFailure, deliveryID)
	}
}

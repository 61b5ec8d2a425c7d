package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/http/middleware"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/payments"
)

// maxWebhookBody matches Stripe's documented payload ceiling with headroom.
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	Logger     *slog.Logger
	Provider   payments.Provider
	WebhookSvc *payments.WebhookService
}

func NewWebhookHandler(logger *slog.Logger, p payments.Provider, svc *payments.WebhookService) *WebhookHandler {
	return &WebhookHandler{Logger: logger, Provider: p, WebhookSvc: svc}
}

// Handle serves POST /webhooks/payments. It answers the processor directly
// rather than through ErrorHandler: 400 stops redelivery of forged or broken
// payloads, 500 asks for a retry.
func (h *WebhookHandler) Handle(c *gin.Context) {
	ctx := c.Request.Context()
	rid := middleware.GetRequestID(c)

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		h.Logger.WarnContext(ctx, "webhook body unreadable", "request_id", rid, "err", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	ev, err := h.Provider.VerifyAndParseWebhook(c.Request.Header, body)
	if err != nil {
		h.Logger.WarnContext(ctx, "webhook rejected", "request_id", rid, "provider", h.Provider.Name(), "err", err)
		msg := "invalid payload"
		if errors.Is(err, payments.ErrInvalidSignature) {
			msg = "invalid signature"
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	if err := h.WebhookSvc.Handle(ctx, h.Provider.Name(), ev, body); err != nil {
		h.Logger.ErrorContext(ctx, "webhook apply failed", "request_id", rid, "event_id", ev.EventID, "type", ev.RawType, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

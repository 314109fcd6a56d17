package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	wh "github.com/numina/billing/internal/app/service/webhook_handler"
	"github.com/numina/billing/pkg/logctx"
)

// @Summary      Stripe payment-failed webhook
// @Description  Ingests payment_intent.payment_failed events. The body must be the raw Stripe event payload; the signature is verified over these exact bytes.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        stripe-signature header string true "Stripe HMAC signature header"
// @Success      200  {object}  map[string]any
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/webhooks/stripe-payment-failed [post]
func ApiStripePaymentFailedWebhook(h *wh.WebhookHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logctx.FromGin(c, h.Logger).Errorw("webhook_panic", "panic", r)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
		}()

		// Raw bytes straight off the wire; re-serializing would invalidate
		// the HMAC.
		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read request body"})
			return
		}

		res := h.HandleStripeEvent(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
		c.JSON(res.Status, res.Body)
	}
}

func RegisterWebhookRoutes(r gin.IRouter, h *wh.WebhookHandler) {
	r.POST("/stripe-payment-failed", ApiStripePaymentFailedWebhook(h))
}

package webhook_handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/stripe/stripe-go/v79"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/numina/billing/internal/app/service/event_log"
	"github.com/numina/billing/internal/app/service/payment_attempts"
	"github.com/numina/billing/internal/models"
	"github.com/numina/billing/internal/platform/stripe_gateway"
	cfgpkg "github.com/numina/billing/pkg/config"
	"github.com/numina/billing/pkg/logctx"
	"github.com/numina/billing/pkg/metrics"

	"github.com/samber/lo"
)

const eventTypePaymentFailed = "payment_intent.payment_failed"

// Result is the HTTP response the gin handler renders for one webhook
// delivery. Body shapes follow the provider contract: {received: true, ...}
// on acknowledgement, {error: ...} otherwise.
type Result struct {
	Status int
	Body   map[string]any
}

// EventSink receives the audit-trail entry for each verified delivery.
type EventSink interface {
	Save(ctx context.Context, entry *models.StripeEventLog)
}

// WebhookHandler ingests Stripe payment_intent.payment_failed events into
// the attempts store.
type WebhookHandler struct {
	cfg      *cfgpkg.Config
	attempts payment_attempts.Store
	events   EventSink
	Logger   *zap.SugaredLogger
}

func NewWebhookHandler(cfg *cfgpkg.Config, attempts payment_attempts.Store, events EventSink, log *zap.SugaredLogger) *WebhookHandler {
	return &WebhookHandler{cfg: cfg, attempts: attempts, events: events, Logger: log}
}

// HandleStripeEvent verifies the signature over the raw payload bytes and
// records the failed attempt. Once signature and payload-shape checks pass
// the provider is always acknowledged with 200, regardless of whether local
// bookkeeping succeeded, so Stripe never retries over a storage blip.
func (h *WebhookHandler) HandleStripeEvent(ctx context.Context, payload []byte, sigHeader string) *Result {
	log := logctx.FromCtx(ctx, h.Logger)

	if sigHeader == "" {
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "missing_signature").Inc()
		return &Result{Status: http.StatusBadRequest, Body: map[string]any{
			"error": "Missing stripe-signature header",
		}}
	}

	if h.cfg.Stripe.WebhookSecret == "" {
		log.Errorw("webhook_secret_not_configured")
		return &Result{Status: http.StatusInternalServerError, Body: map[string]any{
			"error": "Webhook secret not configured",
		}}
	}

	event, err := stripe_gateway.VerifyEvent(payload, sigHeader, h.cfg.Stripe.WebhookSecret)
	if err != nil {
		log.Warnw("webhook_signature_invalid", "error", err.Error())
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "invalid_signature").Inc()
		return &Result{Status: http.StatusUnauthorized, Body: map[string]any{
			"error": "Invalid webhook signature",
		}}
	}

	eventType := string(event.Type)
	if eventType != eventTypePaymentFailed {
		metrics.WebhookEventsTotal.WithLabelValues(eventType, "skipped").Inc()
		h.events.Save(ctx, &models.StripeEventLog{
			EventID:   event.ID,
			EventType: eventType,
			TraceID:   traceIDFrom(ctx),
			Data:      datatypes.JSON(payload),
			Status:    models.StripeEventLogStatusSkipped,
		})
		return &Result{Status: http.StatusOK, Body: map[string]any{
			"received": true,
			"note":     "Event not handled",
		}}
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		log.Errorw("webhook_payload_unmarshal_failed", "event_id", event.ID, "error", err.Error())
		metrics.WebhookEventsTotal.WithLabelValues(eventType, "error").Inc()
		return &Result{Status: http.StatusInternalServerError, Body: map[string]any{
			"error": "Internal server error",
		}}
	}

	log.Infow("webhook_payment_failed_received", "event_id", event.ID, "payment_intent_id", pi.ID)

	if pi.LastPaymentError == nil {
		log.Warnw("webhook_no_payment_error", "payment_intent_id", pi.ID)
		metrics.WebhookEventsTotal.WithLabelValues(eventType, "skipped").Inc()
		h.events.Save(ctx, &models.StripeEventLog{
			EventID:         event.ID,
			EventType:       eventType,
			TraceID:         traceIDFrom(ctx),
			PaymentIntentID: pi.ID,
			Data:            datatypes.JSON(payload),
			Status:          models.StripeEventLogStatusSkipped,
		})
		return &Result{Status: http.StatusOK, Body: map[string]any{
			"received": true,
			"note":     "No payment error to record",
		}}
	}

	userID := pi.Metadata["user_id"]
	if userID == "" {
		// Cannot attribute the attempt; a genuine integration error, not a
		// transient one, so the provider gets a 400.
		log.Errorw("webhook_missing_user_id", "payment_intent_id", pi.ID)
		metrics.WebhookEventsTotal.WithLabelValues(eventType, "missing_user_id").Inc()
		h.events.Save(ctx, &models.StripeEventLog{
			EventID:         event.ID,
			EventType:       eventType,
			TraceID:         traceIDFrom(ctx),
			PaymentIntentID: pi.ID,
			Data:            datatypes.JSON(payload),
			Status:          models.StripeEventLogStatusHandleFailed,
		})
		return &Result{Status: http.StatusBadRequest, Body: map[string]any{
			"error": "Missing user_id in payment intent metadata",
		}}
	}

	var goalID *string
	if gid := pi.Metadata["goal_id"]; gid != "" {
		goalID = lo.ToPtr(gid)
	}

	attempt := h.attempts.CreateAttempt(ctx, &payment_attempts.CreateAttemptParams{
		UserID:                userID,
		GoalID:                goalID,
		StripePaymentIntentID: pi.ID,
		StripeError:           stripe_gateway.FromStripeError(pi.LastPaymentError),
		Amount:                pi.Amount,
		Currency:              string(pi.Currency),
	})
	if goalID != nil {
		if !h.attempts.MarkGoalPaymentFailed(ctx, *goalID) {
			log.Warnw("webhook_goal_mark_failed", "goal_id", *goalID)
		}
	}

	status := models.StripeEventLogStatusHandled
	if attempt == nil {
		status = models.StripeEventLogStatusHandleFailed
	}
	resBytes, _ := json.Marshal(map[string]any{"attempt": attempt})
	h.events.Save(ctx, &models.StripeEventLog{
		EventID:         event.ID,
		EventType:       eventType,
		UserID:          lo.ToPtr(userID),
		TraceID:         traceIDFrom(ctx),
		PaymentIntentID: pi.ID,
		Data:            datatypes.JSON(payload),
		Result:          func() *datatypes.JSON { j := datatypes.JSON(resBytes); return &j }(),
		Status:          status,
	})
	metrics.WebhookEventsTotal.WithLabelValues(eventType, string(status)).Inc()

	return &Result{Status: http.StatusOK, Body: map[string]any{
		"received":          true,
		"payment_intent_id": pi.ID,
		"attempt_recorded":  attempt != nil,
	}}
}

func traceIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if tid, ok := ctx.Value("traceID").(string); ok {
		return tid
	}
	return ""
}

var Module = fx.Options(
	fx.Provide(func(s *event_log.Service) EventSink { return s }),
	fx.Provide(NewWebhookHandler),
)

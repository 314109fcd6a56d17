package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"github.com/numina/billing/internal/app/service/payment_attempts"
	wh "github.com/numina/billing/internal/app/service/webhook_handler"
	"github.com/numina/billing/internal/models"
	cfgpkg "github.com/numina/billing/pkg/config"
)

const webhookTestSecret = "whsec_handler_test"

func stripeSign(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type webhookStubStore struct {
	stubAttemptsStore
	created []*payment_attempts.CreateAttemptParams
	marked  []string
}

func (s *webhookStubStore) CreateAttempt(_ context.Context, params *payment_attempts.CreateAttemptParams) *models.PaymentAttempt {
	s.created = append(s.created, params)
	return &models.PaymentAttempt{StripePaymentIntentID: params.StripePaymentIntentID}
}

func (s *webhookStubStore) MarkGoalPaymentFailed(_ context.Context, goalID string) bool {
	s.marked = append(s.marked, goalID)
	return true
}

type nopEventSink struct{}

func (nopEventSink) Save(_ context.Context, _ *models.StripeEventLog) {}

func newWebhookRouter(secret string, store payment_attempts.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &cfgpkg.Config{}
	cfg.Stripe.WebhookSecret = secret
	h := wh.NewWebhookHandler(cfg, store, nopEventSink{}, zap.NewNop().Sugar())
	r := gin.New()
	g := r.Group("/api/webhooks")
	RegisterWebhookRoutes(g, h)
	return r
}

func TestApiStripePaymentFailedWebhook_AcksSignedEvent(t *testing.T) {
	store := &webhookStubStore{}
	r := newWebhookRouter(webhookTestSecret, store)

	payload := []byte(fmt.Sprintf(`{
		"id": "evt_h_1",
		"object": "event",
		"api_version": %q,
		"type": "payment_intent.payment_failed",
		"data": {
			"object": {
				"id": "pi_h_1",
				"object": "payment_intent",
				"amount": 990,
				"currency": "usd",
				"metadata": {"user_id": "user-9", "goal_id": "goal-9"},
				"last_payment_error": {
					"type": "card_error",
					"code": "expired_card",
					"message": "Your card has expired."
				}
			}
		}
	}`, stripe.APIVersion))

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe-payment-failed", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", stripeSign(payload, webhookTestSecret))
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"received":true`)
	require.Contains(t, w.Body.String(), `"attempt_recorded":true`)
	require.Len(t, store.created, 1)
	require.Equal(t, "expired_card", store.created[0].StripeError.Code)
	require.Equal(t, []string{"goal-9"}, store.marked)
}

func TestApiStripePaymentFailedWebhook_MissingSignature(t *testing.T) {
	r := newWebhookRouter(webhookTestSecret, &webhookStubStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe-payment-failed", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "signature")
}

func TestApiStripePaymentFailedWebhook_BadSignature(t *testing.T) {
	r := newWebhookRouter(webhookTestSecret, &webhookStubStore{})

	payload := []byte(`{"id": "evt_h_2", "type": "payment_intent.payment_failed"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe-payment-failed", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", stripeSign(payload, "whsec_wrong"))
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "Invalid webhook signature")
}

func TestApiStripePaymentFailedWebhook_PanicReturns500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	// nil config makes the handler dereference panic; the route must still
	// answer with a JSON 500
	h := wh.NewWebhookHandler(nil, &webhookStubStore{}, nopEventSink{}, zap.NewNop().Sugar())
	r := gin.New()
	r.POST("/api/webhooks/stripe-payment-failed", ApiStripePaymentFailedWebhook(h))

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe-payment-failed", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Stripe-Signature", "t=1,v1=00")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), "Internal server error")
}

package webhook_handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"github.com/numina/billing/internal/app/service/payment_attempts"
	"github.com/numina/billing/internal/app/service/payment_errors"
	"github.com/numina/billing/internal/models"
	cfgpkg "github.com/numina/billing/pkg/config"
)

const testWebhookSecret = "whsec_test_secret"

// signPayload produces a Stripe-Signature header over the exact payload
// bytes, the same scheme ConstructEvent verifies.
func signPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func failedIntentEvent(metadata string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_test_1",
		"object": "event",
		"api_version": %q,
		"type": "payment_intent.payment_failed",
		"data": {
			"object": {
				"id": "pi_test_1",
				"object": "payment_intent",
				"amount": 2500,
				"currency": "usd",
				"metadata": %s,
				"last_payment_error": {
					"type": "card_error",
					"code": "card_declined",
					"decline_code": "insufficient_funds",
					"message": "Your card has insufficient funds."
				}
			}
		}
	}`, stripe.APIVersion, metadata))
}

type recordingStore struct {
	mu          sync.Mutex
	created     []*payment_attempts.CreateAttemptParams
	markedGoals []string
	createFails bool
}

func (s *recordingStore) CreateAttempt(_ context.Context, params *payment_attempts.CreateAttemptParams) *models.PaymentAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, params)
	if s.createFails {
		return nil
	}
	return &models.PaymentAttempt{StripePaymentIntentID: params.StripePaymentIntentID}
}

func (s *recordingStore) MarkGoalPaymentFailed(_ context.Context, goalID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markedGoals = append(s.markedGoals, goalID)
	return true
}

func (s *recordingStore) AttemptsByGoal(_ context.Context, _ string) ([]*models.PaymentAttempt, error) {
	panic("not used")
}

func (s *recordingStore) AttemptsByUser(_ context.Context, _ string) ([]*models.PaymentAttempt, error) {
	panic("not used")
}

func (s *recordingStore) LatestAttemptByGoal(_ context.Context, _ string) (*models.PaymentAttempt, error) {
	panic("not used")
}

func (s *recordingStore) FailureCount(_ context.Context, _ string) (int64, error) { panic("not used") }

func (s *recordingStore) ScanAttempts(_ context.Context, _ *payment_attempts.ScanAttemptsRequest) (*payment_attempts.ScanAttemptsResponse, error) {
	panic("not used")
}

type recordingSink struct {
	mu      sync.Mutex
	entries []*models.StripeEventLog
}

func (s *recordingSink) Save(_ context.Context, entry *models.StripeEventLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

func newTestHandler(secret string) (*WebhookHandler, *recordingStore, *recordingSink) {
	cfg := &cfgpkg.Config{}
	cfg.Stripe.WebhookSecret = secret
	store := &recordingStore{}
	sink := &recordingSink{}
	return NewWebhookHandler(cfg, store, sink, zap.NewNop().Sugar()), store, sink
}

func TestHandleStripeEvent_RecordsFailedAttempt(t *testing.T) {
	h, store, sink := newTestHandler(testWebhookSecret)
	payload := failedIntentEvent(`{"user_id": "user-1", "goal_id": "goal-1"}`)

	res := h.HandleStripeEvent(context.Background(), payload, signPayload(payload, testWebhookSecret))

	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, true, res.Body["received"])
	require.Equal(t, "pi_test_1", res.Body["payment_intent_id"])
	require.Equal(t, true, res.Body["attempt_recorded"])

	require.Len(t, store.created, 1)
	params := store.created[0]
	require.Equal(t, "user-1", params.UserID)
	require.NotNil(t, params.GoalID)
	require.Equal(t, "goal-1", *params.GoalID)
	require.Equal(t, "pi_test_1", params.StripePaymentIntentID)
	require.Equal(t, int64(2500), params.Amount)
	require.Equal(t, "usd", params.Currency)
	require.NotNil(t, params.StripeError)
	require.Equal(t, "insufficient_funds", params.StripeError.DeclineCode)
	require.Equal(t, payment_errors.ErrorTypeInsufficientFunds, payment_errors.Categorize(params.StripeError).ErrorType)

	require.Equal(t, []string{"goal-1"}, store.markedGoals)

	require.Len(t, sink.entries, 1)
	require.Equal(t, models.StripeEventLogStatusHandled, sink.entries[0].Status)
	require.Equal(t, "evt_test_1", sink.entries[0].EventID)
}

func TestHandleStripeEvent_NoGoalSkipsMarking(t *testing.T) {
	h, store, _ := newTestHandler(testWebhookSecret)
	payload := failedIntentEvent(`{"user_id": "user-1"}`)

	res := h.HandleStripeEvent(context.Background(), payload, signPayload(payload, testWebhookSecret))

	require.Equal(t, http.StatusOK, res.Status)
	require.Len(t, store.created, 1)
	require.Nil(t, store.created[0].GoalID)
	require.Empty(t, store.markedGoals)
}

func TestHandleStripeEvent_MissingSignature(t *testing.T) {
	h, store, _ := newTestHandler(testWebhookSecret)
	payload := failedIntentEvent(`{"user_id": "user-1"}`)

	res := h.HandleStripeEvent(context.Background(), payload, "")

	require.Equal(t, http.StatusBadRequest, res.Status)
	require.Contains(t, res.Body["error"], "signature")
	require.Empty(t, store.created)
}

func TestHandleStripeEvent_InvalidSignature(t *testing.T) {
	h, store, _ := newTestHandler(testWebhookSecret)
	payload := failedIntentEvent(`{"user_id": "user-1"}`)

	res := h.HandleStripeEvent(context.Background(), payload, "t=12345,v1=deadbeef")

	require.Equal(t, http.StatusUnauthorized, res.Status)
	require.Contains(t, res.Body["error"], "signature")
	require.Empty(t, store.created)
}

func TestHandleStripeEvent_WrongSecret(t *testing.T) {
	h, store, _ := newTestHandler(testWebhookSecret)
	payload := failedIntentEvent(`{"user_id": "user-1"}`)

	res := h.HandleStripeEvent(context.Background(), payload, signPayload(payload, "whsec_other"))

	require.Equal(t, http.StatusUnauthorized, res.Status)
	require.Empty(t, store.created)
}

func TestHandleStripeEvent_TamperedPayload(t *testing.T) {
	h, store, _ := newTestHandler(testWebhookSecret)
	payload := failedIntentEvent(`{"user_id": "user-1"}`)
	sig := signPayload(payload, testWebhookSecret)
	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = ' '

	res := h.HandleStripeEvent(context.Background(), tampered, sig)

	require.Equal(t, http.StatusUnauthorized, res.Status)
	require.Empty(t, store.created)
}

func TestHandleStripeEvent_SecretNotConfigured(t *testing.T) {
	h, store, _ := newTestHandler("")
	payload := failedIntentEvent(`{"user_id": "user-1"}`)

	res := h.HandleStripeEvent(context.Background(), payload, signPayload(payload, testWebhookSecret))

	require.Equal(t, http.StatusInternalServerError, res.Status)
	require.Contains(t, res.Body["error"], "not configured")
	require.Empty(t, store.created)
}

func TestHandleStripeEvent_UnhandledEventType(t *testing.T) {
	h, store, sink := newTestHandler(testWebhookSecret)
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_test_2",
		"object": "event",
		"api_version": %q,
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_test_1", "object": "payment_intent"}}
	}`, stripe.APIVersion))

	res := h.HandleStripeEvent(context.Background(), payload, signPayload(payload, testWebhookSecret))

	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, true, res.Body["received"])
	require.Equal(t, "Event not handled", res.Body["note"])
	require.Empty(t, store.created)
	require.Len(t, sink.entries, 1)
	require.Equal(t, models.StripeEventLogStatusSkipped, sink.entries[0].Status)
}

func TestHandleStripeEvent_NoLastPaymentError(t *testing.T) {
	h, store, _ := newTestHandler(testWebhookSecret)
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_test_3",
		"object": "event",
		"api_version": %q,
		"type": "payment_intent.payment_failed",
		"data": {"object": {"id": "pi_test_1", "object": "payment_intent", "metadata": {"user_id": "user-1"}}}
	}`, stripe.APIVersion))

	res := h.HandleStripeEvent(context.Background(), payload, signPayload(payload, testWebhookSecret))

	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, "No payment error to record", res.Body["note"])
	require.Empty(t, store.created)
}

func TestHandleStripeEvent_MissingUserID(t *testing.T) {
	h, store, sink := newTestHandler(testWebhookSecret)
	payload := failedIntentEvent(`{"goal_id": "goal-1"}`)

	res := h.HandleStripeEvent(context.Background(), payload, signPayload(payload, testWebhookSecret))

	require.Equal(t, http.StatusBadRequest, res.Status)
	require.Contains(t, res.Body["error"], "user_id")
	require.Empty(t, store.created)
	require.Empty(t, store.markedGoals)
	require.Len(t, sink.entries, 1)
	require.Equal(t, models.StripeEventLogStatusHandleFailed, sink.entries[0].Status)
}

func TestHandleStripeEvent_StorageFailureStillAcks(t *testing.T) {
	h, store, sink := newTestHandler(testWebhookSecret)
	store.createFails = true
	payload := failedIntentEvent(`{"user_id": "user-1"}`)

	res := h.HandleStripeEvent(context.Background(), payload, signPayload(payload, testWebhookSecret))

	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, true, res.Body["received"])
	require.Equal(t, false, res.Body["attempt_recorded"])
	require.Len(t, sink.entries, 1)
	require.Equal(t, models.StripeEventLogStatusHandleFailed, sink.entries[0].Status)
}

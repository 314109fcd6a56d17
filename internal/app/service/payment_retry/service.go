package payment_retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/numina/billing/internal/app/service/payment_attempts"
	"github.com/numina/billing/internal/app/service/payment_errors"
	"github.com/numina/billing/internal/platform/stripe_gateway"
	cfgpkg "github.com/numina/billing/pkg/config"
	"github.com/numina/billing/pkg/logctx"
	"github.com/numina/billing/pkg/metrics"
)

type RetryOutcome string

const (
	OutcomeSuccess        RetryOutcome = "success"
	OutcomeSameError      RetryOutcome = "same_error"
	OutcomeDifferentError RetryOutcome = "different_error"
	OutcomeTimeout        RetryOutcome = "timeout"
	OutcomeMaxAttempts    RetryOutcome = "max_attempts_reached"
)

const (
	defaultMaxAttempts    = 3
	defaultConfirmTimeout = 10 * time.Second
)

type RetryPaymentRequest struct {
	PaymentIntentID string  `json:"payment_intent_id" binding:"required"`
	PaymentMethodID string  `json:"payment_method_id" binding:"required"`
	UserID          string  `json:"user_id" binding:"required"`
	GoalID          *string `json:"goal_id"`
	Amount          int64   `json:"amount"`
	Currency        string  `json:"currency"`
	CardLast4       string  `json:"card_last4"`
	CardBrand       string  `json:"card_brand"`
}

// RetryPaymentResult is the terminal outcome of one retry call, returned as
// data so the UI can branch without error handling.
type RetryPaymentResult struct {
	Success         bool                     `json:"success"`
	Outcome         RetryOutcome             `json:"outcome"`
	ErrorType       payment_errors.ErrorType `json:"error_type,omitempty"`
	ErrorMessage    string                   `json:"error_message,omitempty"`
	RequiresAction  bool                     `json:"requires_action,omitempty"`
	ClientSecret    string                   `json:"client_secret,omitempty"`
	PaymentIntentID string                   `json:"payment_intent_id,omitempty"`
}

// Orchestrator drives single-pass payment retries and answers the UI's
// pre-emptive "can this goal still retry" question.
type Orchestrator interface {
	RetryPayment(ctx context.Context, req *RetryPaymentRequest) *RetryPaymentResult
	CanRetry(ctx context.Context, goalID string) bool
}

// Service implements Orchestrator: duplicate-in-flight guard, max-attempts
// ceiling, bounded provider confirm, outcome classification and attempt
// recording.
type Service struct {
	log     *zap.SugaredLogger
	store   payment_attempts.Store
	gateway stripe_gateway.Gateway

	maxAttempts    int64
	confirmTimeout time.Duration

	// inFlight guards against concurrent retries of the same payment
	// intent. Process-local: a horizontally scaled deployment would need to
	// back this with a shared store with TTL instead.
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func New(cfg *cfgpkg.Config, log *zap.SugaredLogger, store payment_attempts.Store, gateway stripe_gateway.Gateway) Orchestrator {
	maxAttempts := cfg.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	confirmTimeout := cfg.Retry.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = defaultConfirmTimeout
	}
	return &Service{
		log:            log,
		store:          store,
		gateway:        gateway,
		maxAttempts:    maxAttempts,
		confirmTimeout: confirmTimeout,
		inFlight:       make(map[string]struct{}),
	}
}

func (s *Service) acquire(paymentIntentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inFlight[paymentIntentID]; ok {
		return false
	}
	s.inFlight[paymentIntentID] = struct{}{}
	return true
}

func (s *Service) release(paymentIntentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, paymentIntentID)
}

// RetryPayment performs one complete retry attempt and returns its terminal
// outcome. The attempt record is written before returning so the next call's
// failure count and prior-error comparison observe it.
func (s *Service) RetryPayment(ctx context.Context, req *RetryPaymentRequest) *RetryPaymentResult {
	log := logctx.FromCtx(ctx, s.log)

	if !s.acquire(req.PaymentIntentID) {
		log.Warnw("retry_duplicate_in_flight", "payment_intent_id", req.PaymentIntentID)
		return s.finish(&RetryPaymentResult{
			Success:      false,
			Outcome:      OutcomeDifferentError,
			ErrorType:    payment_errors.ErrorTypeDuplicateRetry,
			ErrorMessage: "A retry is already in progress",
		})
	}
	defer s.release(req.PaymentIntentID)

	if req.GoalID != nil {
		count, err := s.store.FailureCount(ctx, *req.GoalID)
		if err != nil {
			log.Errorw("retry_failure_count_error", "goal_id", *req.GoalID, "error", err.Error())
			return s.finish(&RetryPaymentResult{
				Success:      false,
				Outcome:      OutcomeDifferentError,
				ErrorType:    payment_errors.ErrorTypeUnknown,
				ErrorMessage: "Unable to read payment attempt history",
			})
		}
		if count >= s.maxAttempts {
			log.Infow("retry_max_attempts_reached", "goal_id", *req.GoalID, "count", count)
			return s.finish(&RetryPaymentResult{
				Success:      false,
				Outcome:      OutcomeMaxAttempts,
				ErrorType:    payment_errors.ErrorTypeMaxAttempts,
				ErrorMessage: fmt.Sprintf("max_attempts reached (%d)", s.maxAttempts),
			})
		}
	}

	// Read the prior attempt before this one is recorded, so the
	// same/different comparison is against the pre-call history.
	var priorErrorType string
	if req.GoalID != nil {
		prior, err := s.store.LatestAttemptByGoal(ctx, *req.GoalID)
		if err != nil {
			log.Errorw("retry_prior_attempt_error", "goal_id", *req.GoalID, "error", err.Error())
		} else if prior != nil {
			priorErrorType = prior.ErrorType
		}
	}

	confirmCtx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	result, failure := s.gateway.ConfirmPaymentIntent(confirmCtx, req.PaymentIntentID, req.PaymentMethodID)

	if failure == nil {
		s.recordAttempt(ctx, req, nil)
		log.Infow("retry_succeeded", "payment_intent_id", result.PaymentIntentID)
		return s.finish(&RetryPaymentResult{
			Success:         true,
			Outcome:         OutcomeSuccess,
			PaymentIntentID: result.PaymentIntentID,
		})
	}

	if failure.Timeout {
		// No provider response within the bound; the charge may or may not
		// complete asynchronously. The attempt is still recorded.
		s.recordAttempt(ctx, req, failure.Err)
		log.Warnw("retry_confirm_timeout", "payment_intent_id", req.PaymentIntentID)
		return s.finish(&RetryPaymentResult{
			Success:      false,
			Outcome:      OutcomeTimeout,
			ErrorType:    payment_errors.ErrorTypeTimeout,
			ErrorMessage: "Payment confirmation timeout",
		})
	}

	cat := payment_errors.Categorize(failure.Err)

	outcome := OutcomeDifferentError
	if priorErrorType != "" && priorErrorType == string(cat.ErrorType) {
		outcome = OutcomeSameError
	}

	s.recordAttempt(ctx, req, failure.Err)
	log.Infow("retry_failed",
		"payment_intent_id", req.PaymentIntentID,
		"error_type", cat.ErrorType,
		"outcome", outcome,
		"requires_action", failure.RequiresAction,
	)

	// 3DS surfacing is orthogonal to the same/different classification.
	return s.finish(&RetryPaymentResult{
		Success:         false,
		Outcome:         outcome,
		ErrorType:       cat.ErrorType,
		ErrorMessage:    cat.UserMessage,
		RequiresAction:  failure.RequiresAction,
		ClientSecret:    failure.ClientSecret,
		PaymentIntentID: req.PaymentIntentID,
	})
}

// CanRetry reports whether the goal is still under the attempt ceiling. A
// history read failure disables the affordance rather than risking an
// over-limit retry.
func (s *Service) CanRetry(ctx context.Context, goalID string) bool {
	count, err := s.store.FailureCount(ctx, goalID)
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("can_retry_count_error", "goal_id", goalID, "error", err.Error())
		return false
	}
	return count < s.maxAttempts
}

// recordAttempt is best-effort: a bookkeeping failure is logged and does not
// change the outcome returned to the caller.
func (s *Service) recordAttempt(ctx context.Context, req *RetryPaymentRequest, provErr *payment_errors.ProviderError) {
	attempt := s.store.CreateAttempt(ctx, &payment_attempts.CreateAttemptParams{
		UserID:                req.UserID,
		GoalID:                req.GoalID,
		StripePaymentIntentID: req.PaymentIntentID,
		StripeError:           provErr,
		Amount:                req.Amount,
		Currency:              req.Currency,
	})
	if attempt == nil {
		logctx.FromCtx(ctx, s.log).Errorw("retry_attempt_record_failed", "payment_intent_id", req.PaymentIntentID)
	}
}

func (s *Service) finish(res *RetryPaymentResult) *RetryPaymentResult {
	metrics.RetryOutcomesTotal.WithLabelValues(string(res.Outcome), string(res.ErrorType)).Inc()
	return res
}

package payment_attempts

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/numina/billing/internal/app/service/payment_errors"
	"github.com/numina/billing/internal/models"
	"github.com/numina/billing/pkg/logctx"
	"github.com/numina/billing/pkg/tool"
	"github.com/numina/billing/pkg/types"
)

// CreateAttemptParams carries everything needed to record one failed or
// retried confirmation. StripeError is the raw provider payload; the store
// classifies it for the error_type column and preserves it verbatim in
// raw_error.
type CreateAttemptParams struct {
	UserID                string
	GoalID                *string
	StripePaymentIntentID string
	StripeError           *payment_errors.ProviderError
	Amount                int64
	Currency              string
}

type ScanAttemptsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanAttemptsResponse struct {
	Items []*models.PaymentAttempt `json:"items"`
	Total int64                    `json:"total"`
}

// Store is the persistence surface of the retry subsystem. Writes are
// best-effort and non-throwing (nil/false on failure); reads return errors
// on genuine infrastructure failure.
type Store interface {
	CreateAttempt(ctx context.Context, params *CreateAttemptParams) *models.PaymentAttempt
	MarkGoalPaymentFailed(ctx context.Context, goalID string) bool
	AttemptsByGoal(ctx context.Context, goalID string) ([]*models.PaymentAttempt, error)
	AttemptsByUser(ctx context.Context, userID string) ([]*models.PaymentAttempt, error)
	LatestAttemptByGoal(ctx context.Context, goalID string) (*models.PaymentAttempt, error)
	FailureCount(ctx context.Context, goalID string) (int64, error)
	ScanAttempts(ctx context.Context, req *ScanAttemptsRequest) (*ScanAttemptsResponse, error)
}

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) Store {
	return &Service{db: db, log: log}
}

// CreateAttempt writes one immutable attempt record. Returns nil on
// persistence failure so callers can degrade gracefully; the webhook still
// acknowledges receipt to the provider even when local bookkeeping fails.
func (s *Service) CreateAttempt(ctx context.Context, params *CreateAttemptParams) *models.PaymentAttempt {
	if params == nil {
		return nil
	}

	attempt := &models.PaymentAttempt{
		ID:                    tool.GenerateUUIDV7(),
		UserID:                params.UserID,
		GoalID:                params.GoalID,
		StripePaymentIntentID: params.StripePaymentIntentID,
		ErrorType:             string(payment_errors.ErrorTypeNone),
		Amount:                params.Amount,
		Currency:              params.Currency,
	}

	// A nil StripeError means the confirmation succeeded; the row is kept
	// for history but carries no error classification.
	if params.StripeError != nil {
		cat := payment_errors.Categorize(params.StripeError)
		attempt.ErrorType = string(cat.ErrorType)
		attempt.ErrorCode = nilIfEmpty(cat.ErrorCode)
		attempt.DeclineCode = nilIfEmpty(cat.DeclineCode)
		if b, err := json.Marshal(params.StripeError); err == nil {
			attempt.RawError = datatypes.JSON(b)
		}
	}

	if err := s.db.WithContext(ctx).Create(attempt).Error; err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("payment_attempt_create_failed",
			"error", err.Error(),
			"payment_intent_id", params.StripePaymentIntentID,
		)
		return nil
	}
	return attempt
}

// MarkGoalPaymentFailed flips the goal's payment_failed flag. Idempotent:
// marking an already-failed goal again is a no-op success. Returns false
// (never an error) when the goal is unknown or the write fails.
func (s *Service) MarkGoalPaymentFailed(ctx context.Context, goalID string) bool {
	if goalID == "" {
		return false
	}
	res := s.db.WithContext(ctx).
		Model(&models.Goal{}).
		Where("id = ?", goalID).
		Update("payment_failed", true)
	if res.Error != nil {
		logctx.FromCtx(ctx, s.log).Errorw("goal_mark_payment_failed_error", "goal_id", goalID, "error", res.Error.Error())
		return false
	}
	if res.RowsAffected == 0 {
		logctx.FromCtx(ctx, s.log).Warnw("goal_mark_payment_failed_missing", "goal_id", goalID)
		return false
	}
	return true
}

// AttemptsByGoal returns the goal's attempt history, newest first. Ordering
// relies on uuidv7 primary keys being time-sortable.
func (s *Service) AttemptsByGoal(ctx context.Context, goalID string) ([]*models.PaymentAttempt, error) {
	var rows []*models.PaymentAttempt
	err := s.db.WithContext(ctx).
		Where("goal_id = ?", goalID).
		Order("id desc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts by goal: %w", err)
	}
	return rows, nil
}

func (s *Service) AttemptsByUser(ctx context.Context, userID string) ([]*models.PaymentAttempt, error) {
	var rows []*models.PaymentAttempt
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id desc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts by user: %w", err)
	}
	return rows, nil
}

// LatestAttemptByGoal returns the most recent failed attempt for a goal, or
// (nil, nil) when there is none. Success records are skipped: the retry
// orchestrator compares error types, which successes do not carry.
func (s *Service) LatestAttemptByGoal(ctx context.Context, goalID string) (*models.PaymentAttempt, error) {
	var row models.PaymentAttempt
	err := s.db.WithContext(ctx).
		Where("goal_id = ? AND error_type <> ?", goalID, string(payment_errors.ErrorTypeNone)).
		Order("id desc").
		Limit(1).
		Take(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest attempt: %w", err)
	}
	return &row, nil
}

// FailureCount counts recorded failed attempts for a goal; the retry
// orchestrator's max-attempts ceiling reads this.
func (s *Service) FailureCount(ctx context.Context, goalID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Where("goal_id = ? AND error_type <> ?", goalID, string(payment_errors.ErrorTypeNone)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return count, nil
}

// filtersAnd combines multiple CommonFilter into a single clause.Expression.
type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

// ScanAttempts implements paginated/admin listing with filters.
func (s *Service) ScanAttempts(ctx context.Context, req *ScanAttemptsRequest) (*ScanAttemptsResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.PaymentAttempt{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}

	var rows []*models.PaymentAttempt
	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}

	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "id"
	}
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: sortBy}, Desc: req.SortOrder != "asc"}}})

	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	return &ScanAttemptsResponse{Items: rows, Total: total}, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

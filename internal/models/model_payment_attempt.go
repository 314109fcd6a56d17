package models

import (
	"time"

	"gorm.io/datatypes"
)

// PaymentAttempt is one immutable record per failed or retried payment
// confirmation. Rows are append-only: written by the webhook ingress on a
// failed-payment event and by the retry orchestrator on every outcome that
// reached the provider, never updated or deleted here.
type PaymentAttempt struct {
	ID                    string  `gorm:"column:id;primary_key;type:uuid;index:idx_goal_id_id,priority:2,sort:desc;index:idx_user_id_id,priority:2,sort:desc" json:"id"`
	UserID                string  `gorm:"column:user_id;type:varchar(64);not null;index:idx_user_id_id,priority:1" json:"user_id"`
	GoalID                *string `gorm:"column:goal_id;type:varchar(64);index:idx_goal_id_id,priority:1" json:"goal_id"`
	StripePaymentIntentID string  `gorm:"column:stripe_payment_intent_id;type:varchar(128);not null" json:"stripe_payment_intent_id"`
	ErrorType             string  `gorm:"column:error_type;type:varchar(64);not null" json:"error_type"`
	ErrorCode             *string `gorm:"column:error_code;type:varchar(64)" json:"error_code"`
	DeclineCode           *string `gorm:"column:decline_code;type:varchar(64)" json:"decline_code"`
	// Amount is in minor units (cents); Currency is lowercase ISO 4217.
	Amount   int64  `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Currency string `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	// RawError preserves the provider error payload for debugging/audit.
	RawError  datatypes.JSON `gorm:"column:raw_error;type:jsonb" json:"raw_error"`
	CreatedAt time.Time      `json:"created_at"`
}

func (PaymentAttempt) TableName() string { return "payment_attempt" }

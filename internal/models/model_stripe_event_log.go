package models

import (
	"time"

	"gorm.io/datatypes"
)

type StripeEventLogStatus string

const (
	StripeEventLogStatusReceived     StripeEventLogStatus = "received"
	StripeEventLogStatusHandled      StripeEventLogStatus = "handled"
	StripeEventLogStatusSkipped      StripeEventLogStatus = "skipped"
	StripeEventLogStatusHandleFailed StripeEventLogStatus = "handle_failed"
)

// StripeEventLog is the audit trail of verified webhook deliveries.
type StripeEventLog struct {
	ID              string               `gorm:"column:id;type:uuid;primary_key" json:"id"`
	EventID         string               `gorm:"column:event_id;type:varchar(128);not null;index" json:"event_id"`
	EventType       string               `gorm:"column:event_type;type:varchar(128);not null" json:"event_type"`
	UserID          *string              `gorm:"column:user_id;type:varchar(64)" json:"user_id"`
	TraceID         string               `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	PaymentIntentID string               `gorm:"column:payment_intent_id;type:varchar(128)" json:"payment_intent_id"`
	Data            datatypes.JSON       `gorm:"column:data;type:jsonb" json:"data"`
	Result          *datatypes.JSON      `gorm:"column:result;type:jsonb" json:"result"`
	Status          StripeEventLogStatus `gorm:"column:status;type:varchar(64);not null" json:"status"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

func (StripeEventLog) TableName() string { return "stripe_event_log" }

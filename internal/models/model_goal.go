package models

import "time"

// Goal is the billing-side projection of the goal entity owned by the goal
// management service. This service only flips PaymentFailed; everything else
// about a goal lives elsewhere.
type Goal struct {
	ID            string    `gorm:"column:id;primary_key;type:varchar(64)" json:"id"`
	UserID        string    `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	PaymentFailed bool      `gorm:"column:payment_failed;not null;default:false" json:"payment_failed"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Goal) TableName() string { return "goal" }

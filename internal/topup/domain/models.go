package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusExpired = "expired"
)

// Topup tracks one rail invoice funding one session. It moves
// pending -> paid exactly once; the session is credited on that transition
// and never again.
type Topup struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	SessionID      snowflake.ID `gorm:"column:session_id;not null;index" json:"session_id"`
	Amount         int64        `gorm:"not null" json:"amount"`
	PaymentHash    string       `gorm:"column:payment_hash;type:text;not null;uniqueIndex:ux_topups_payment_hash" json:"payment_hash"`
	PaymentRequest string       `gorm:"column:payment_request;type:text;not null" json:"payment_request"`
	Status         string       `gorm:"type:text;not null;default:'pending';index" json:"status"`
	ExpiresAt      time.Time    `gorm:"column:expires_at;not null" json:"expires_at"`
	PaidAt         *time.Time   `gorm:"column:paid_at" json:"paid_at,omitempty"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Topup) TableName() string { return "topups" }

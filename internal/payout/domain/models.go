package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Payout is one outbound rail payment. Funds move balance -> reserved before
// the rail attempt; the reservation is consumed on success and restored on
// failure, so a crash mid-payout never loses or duplicates sats.
type Payout struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	EarnerID      snowflake.ID `gorm:"column:earner_id;not null;index" json:"earner_id"`
	Amount        int64        `gorm:"not null" json:"amount"`
	Address       string       `gorm:"type:text;not null" json:"address"`
	Status        string       `gorm:"type:text;not null;default:'pending';index" json:"status"`
	PaymentHash   string       `gorm:"column:payment_hash;type:text;not null;default:''" json:"payment_hash,omitempty"`
	Preimage      string       `gorm:"type:text;not null;default:''" json:"preimage,omitempty"`
	FeeSats       int64        `gorm:"column:fee_sats;not null;default:0" json:"fee_sats"`
	FailureReason string       `gorm:"column:failure_reason;type:text;not null;default:''" json:"failure_reason,omitempty"`
	IsSweep       bool         `gorm:"column:is_sweep;not null;default:false" json:"is_sweep"`
	CompletedAt   *time.Time   `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Payout) TableName() string { return "payouts" }

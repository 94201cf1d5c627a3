package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	RoleEarner = "earner"
	RoleAdmin  = "admin"
)

// Earner is a developer account that owns gateways and accrues revenue.
// The platform itself is represented as a designated earner row so fee
// shares settle through the same ledger.
type Earner struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	Name          string       `gorm:"not null" json:"name"`
	Role          string       `gorm:"type:text;not null;default:'earner'" json:"role"`
	PayoutAddress string       `gorm:"column:payout_address;type:text;not null;default:''" json:"payout_address,omitempty"`
	Balance       int64        `gorm:"not null;default:0" json:"balance"`
	Reserved      int64        `gorm:"not null;default:0" json:"reserved"`
	IsPlatform    bool         `gorm:"column:is_platform;not null;default:false" json:"is_platform,omitempty"`
	SweepOptIn    bool         `gorm:"column:sweep_opt_in;not null;default:false" json:"sweep_opt_in"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Earner) TableName() string { return "earners" }

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Session is an anonymous prepaid balance. Callers hold the raw token; only
// its hash is stored, so a leaked database never exposes spendable
// credentials.
type Session struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	TokenHash string        `gorm:"column:token_hash;type:text;not null;uniqueIndex:ux_sessions_token_hash" json:"-"`
	Name      string        `gorm:"type:text;not null;default:''" json:"name,omitempty"`
	Balance   int64         `gorm:"not null;default:0" json:"balance"`
	OwnerID   *snowflake.ID `gorm:"column:owner_id" json:"owner_id,omitempty"`
	CreatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "sessions" }

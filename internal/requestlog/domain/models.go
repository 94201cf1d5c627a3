package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Entry is one settled (or voucher-redeemed) proxied request. Rows are
// append-only; the share columns always reconstruct the cost:
// earner_share + platform_share == cost.
type Entry struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	GatewayID      string        `gorm:"column:gateway_id;type:text;not null;index" json:"gateway_id"`
	SessionID      *snowflake.ID `gorm:"column:session_id" json:"session_id,omitempty"`
	Cost           int64         `gorm:"not null" json:"cost"`
	EarnerShare    int64         `gorm:"column:earner_share;not null" json:"earner_share"`
	PlatformShare  int64         `gorm:"column:platform_share;not null" json:"platform_share"`
	Method         string        `gorm:"type:text;not null" json:"method"`
	Path           string        `gorm:"type:text;not null" json:"path"`
	UpstreamStatus int           `gorm:"column:upstream_status;not null" json:"upstream_status"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

// TableName sets the database table name.
func (Entry) TableName() string { return "request_logs" }

// StatementRow aggregates one gateway's settled traffic over a period.
type StatementRow struct {
	GatewayID   string `gorm:"column:gateway_id" json:"gateway_id"`
	GatewayName string `gorm:"column:gateway_name" json:"gateway_name"`
	Requests    int64  `gorm:"column:requests" json:"requests"`
	GrossSats   int64  `gorm:"column:gross_sats" json:"gross_sats"`
	FeeSats     int64  `gorm:"column:fee_sats" json:"fee_sats"`
	NetSats     int64  `gorm:"column:net_sats" json:"net_sats"`
}

package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/satgate/satgate/internal/pricer"
	"gorm.io/datatypes"
)

// Gateway fronts one upstream API. Requests arrive at /g/<id>/<sub-path>,
// are priced against the rules, and forward to TargetURL on success.
type Gateway struct {
	ID           string         `gorm:"primaryKey;type:text" json:"id"`
	OwnerID      snowflake.ID   `gorm:"column:owner_id;not null;index" json:"owner_id"`
	Name         string         `gorm:"type:text;not null" json:"name"`
	Description  string         `gorm:"type:text;not null;default:''" json:"description,omitempty"`
	TargetURL    string         `gorm:"column:target_url;type:text;not null" json:"target_url"`
	DefaultPrice int64          `gorm:"column:default_price;not null;default:0" json:"default_price"`
	Rules        datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"rules"`
	IsActive     bool           `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt    time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Gateway) TableName() string { return "gateways" }

// PriceRules decodes the stored rule array in declared order.
func (g *Gateway) PriceRules() ([]pricer.Rule, error) {
	if len(g.Rules) == 0 {
		return nil, nil
	}
	var rules []pricer.Rule
	if err := json.Unmarshal(g.Rules, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

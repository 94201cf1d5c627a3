package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/satgate/satgate/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payout *Payout) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payout, error)
	ListByEarner(ctx context.Context, db *gorm.DB, earnerID snowflake.ID, page pagination.Pagination) ([]*Payout, error)
	MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentHash, preimage string, feeSats int64, completedAt time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) error
}

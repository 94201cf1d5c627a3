package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, topup *Topup) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Topup, error)

	// MarkPaid flips pending -> paid, reporting whether this call won the
	// transition. Concurrent polls race on the status guard.
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time) (bool, error)
	// MarkExpired flips pending -> expired.
	MarkExpired(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	// ExpireBefore bulk-expires pending top-ups whose invoice lapsed.
	ExpireBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)
}

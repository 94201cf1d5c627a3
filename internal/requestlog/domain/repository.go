package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/satgate/satgate/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert appends one row. The settlement transaction calls this with
	// its tx handle so the row lands with the balance moves.
	Insert(ctx context.Context, db *gorm.DB, entry *Entry) error
	ListByGateway(ctx context.Context, db *gorm.DB, gatewayID string, page pagination.Pagination) ([]*Entry, error)
	// AggregateByOwner groups settled traffic per gateway for an earner's
	// statement period.
	AggregateByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, from, to time.Time) ([]StatementRow, error)
}

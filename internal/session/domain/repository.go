package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, session *Session) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Session, error)
	FindByTokenHash(ctx context.Context, db *gorm.DB, hash string) (*Session, error)

	// Credit adds amount to the session balance.
	Credit(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) error
	// Debit subtracts amount only while the balance covers it, reporting
	// whether the debit applied. Concurrent debits race on the row guard,
	// never on a stale read.
	Debit(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) (bool, error)
}

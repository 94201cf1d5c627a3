package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/satgate/satgate/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, earner *Earner) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Earner, error)
	FindPlatform(ctx context.Context, db *gorm.DB) (*Earner, error)
	List(ctx context.Context, db *gorm.DB, page pagination.Pagination) ([]*Earner, error)
	UpdateProfile(ctx context.Context, db *gorm.DB, earner *Earner) error

	// Credit adds amount to the earner's available balance.
	Credit(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) error
	// Reserve moves amount from available to reserved, reporting whether the
	// balance covered it.
	Reserve(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) (bool, error)
	// FinalizeReservation consumes a reservation after a successful payout.
	FinalizeReservation(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) (bool, error)
	// ReleaseReservation restores a reservation to the available balance.
	ReleaseReservation(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) (bool, error)

	// ListSweepable returns accounts eligible for an automatic payout run.
	ListSweepable(ctx context.Context, db *gorm.DB, minBalance int64) ([]*Earner, error)
}

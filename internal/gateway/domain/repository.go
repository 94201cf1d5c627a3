package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/satgate/satgate/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, gateway *Gateway) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Gateway, error)
	ListByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, page pagination.Pagination) ([]*Gateway, error)
	Update(ctx context.Context, db *gorm.DB, gateway *Gateway) error
	SetActive(ctx context.Context, db *gorm.DB, id string, active bool) error
}

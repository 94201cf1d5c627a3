package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/satgate/satgate/internal/gateway/domain"
	"github.com/satgate/satgate/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, gateway *domain.Gateway) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO gateways (id, owner_id, name, description, target_url, default_price, rules, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		gateway.ID,
		gateway.OwnerID,
		gateway.Name,
		gateway.Description,
		gateway.TargetURL,
		gateway.DefaultPrice,
		gateway.Rules,
		gateway.IsActive,
		gateway.CreatedAt,
		gateway.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Gateway, error) {
	var gateway domain.Gateway
	err := db.WithContext(ctx).Raw(
		`SELECT id, owner_id, name, description, target_url, default_price, rules, is_active, created_at, updated_at
		 FROM gateways WHERE id = ?`,
		id,
	).Scan(&gateway).Error
	if err != nil {
		return nil, err
	}
	if gateway.ID == "" {
		return nil, nil
	}
	return &gateway, nil
}

func (r *repo) ListByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, page pagination.Pagination) ([]*domain.Gateway, error) {
	var gateways []*domain.Gateway
	stmt := db.WithContext(ctx).Model(&domain.Gateway{}).Where("owner_id = ?", ownerID)
	stmt = pagination.Apply(stmt, page)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&gateways).Error
	if err != nil {
		return nil, err
	}
	return gateways, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, gateway *domain.Gateway) error {
	return db.WithContext(ctx).Exec(
		`UPDATE gateways
		 SET name = ?, description = ?, target_url = ?, default_price = ?, rules = ?, updated_at = ?
		 WHERE id = ?`,
		gateway.Name,
		gateway.Description,
		gateway.TargetURL,
		gateway.DefaultPrice,
		gateway.Rules,
		gateway.UpdatedAt,
		gateway.ID,
	).Error
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, id string, active bool) error {
	return db.WithContext(ctx).Exec(
		`UPDATE gateways SET is_active = ?, updated_at = ? WHERE id = ?`,
		active,
		time.Now().UTC(),
		id,
	).Error
}

package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/satgate/satgate/internal/earner/domain"
	"github.com/satgate/satgate/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, earner *domain.Earner) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO earners (id, name, role, payout_address, balance, reserved, is_platform, sweep_opt_in, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		earner.ID,
		earner.Name,
		earner.Role,
		earner.PayoutAddress,
		earner.Balance,
		earner.Reserved,
		earner.IsPlatform,
		earner.SweepOptIn,
		earner.CreatedAt,
		earner.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Earner, error) {
	var earner domain.Earner
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, role, payout_address, balance, reserved, is_platform, sweep_opt_in, created_at, updated_at
		 FROM earners WHERE id = ?`,
		id,
	).Scan(&earner).Error
	if err != nil {
		return nil, err
	}
	if earner.ID == 0 {
		return nil, nil
	}
	return &earner, nil
}

func (r *repo) FindPlatform(ctx context.Context, db *gorm.DB) (*domain.Earner, error) {
	var earner domain.Earner
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, role, payout_address, balance, reserved, is_platform, sweep_opt_in, created_at, updated_at
		 FROM earners WHERE is_platform = ? LIMIT 1`,
		true,
	).Scan(&earner).Error
	if err != nil {
		return nil, err
	}
	if earner.ID == 0 {
		return nil, nil
	}
	return &earner, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, page pagination.Pagination) ([]*domain.Earner, error) {
	var earners []*domain.Earner
	stmt := db.WithContext(ctx).Model(&domain.Earner{})
	stmt = pagination.Apply(stmt, page)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&earners).Error
	if err != nil {
		return nil, err
	}
	return earners, nil
}

func (r *repo) UpdateProfile(ctx context.Context, db *gorm.DB, earner *domain.Earner) error {
	return db.WithContext(ctx).Exec(
		`UPDATE earners SET name = ?, payout_address = ?, sweep_opt_in = ?, updated_at = ? WHERE id = ?`,
		earner.Name,
		earner.PayoutAddress,
		earner.SweepOptIn,
		earner.UpdatedAt,
		earner.ID,
	).Error
}

func (r *repo) Credit(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE earners SET balance = balance + ?, updated_at = ? WHERE id = ?`,
		amount,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) Reserve(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE earners SET balance = balance - ?, reserved = reserved + ?, updated_at = ?
		 WHERE id = ? AND balance >= ?`,
		amount,
		amount,
		time.Now().UTC(),
		id,
		amount,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FinalizeReservation(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE earners SET reserved = reserved - ?, updated_at = ?
		 WHERE id = ? AND reserved >= ?`,
		amount,
		time.Now().UTC(),
		id,
		amount,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ReleaseReservation(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE earners SET balance = balance + ?, reserved = reserved - ?, updated_at = ?
		 WHERE id = ? AND reserved >= ?`,
		amount,
		amount,
		time.Now().UTC(),
		id,
		amount,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListSweepable(ctx context.Context, db *gorm.DB, minBalance int64) ([]*domain.Earner, error) {
	var earners []*domain.Earner
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, role, payout_address, balance, reserved, is_platform, sweep_opt_in, created_at, updated_at
		 FROM earners
		 WHERE (is_platform = ? OR sweep_opt_in = ?)
		   AND balance >= ?
		   AND payout_address <> ''
		 ORDER BY id`,
		true,
		true,
		minBalance,
	).Scan(&earners).Error
	if err != nil {
		return nil, err
	}
	return earners, nil
}

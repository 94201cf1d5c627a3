package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/satgate/satgate/internal/payout/domain"
	"github.com/satgate/satgate/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payout *domain.Payout) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payouts (id, earner_id, amount, address, status, payment_hash, preimage, fee_sats, failure_reason, is_sweep, completed_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payout.ID,
		payout.EarnerID,
		payout.Amount,
		payout.Address,
		payout.Status,
		payout.PaymentHash,
		payout.Preimage,
		payout.FeeSats,
		payout.FailureReason,
		payout.IsSweep,
		payout.CompletedAt,
		payout.CreatedAt,
		payout.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payout, error) {
	var payout domain.Payout
	err := db.WithContext(ctx).Raw(
		`SELECT id, earner_id, amount, address, status, payment_hash, preimage, fee_sats, failure_reason, is_sweep, completed_at, created_at, updated_at
		 FROM payouts WHERE id = ?`,
		id,
	).Scan(&payout).Error
	if err != nil {
		return nil, err
	}
	if payout.ID == 0 {
		return nil, nil
	}
	return &payout, nil
}

func (r *repo) ListByEarner(ctx context.Context, db *gorm.DB, earnerID snowflake.ID, page pagination.Pagination) ([]*domain.Payout, error) {
	var payouts []*domain.Payout
	stmt := db.WithContext(ctx).Model(&domain.Payout{}).Where("earner_id = ?", earnerID)
	stmt = pagination.Apply(stmt, page)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *repo) MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentHash, preimage string, feeSats int64, completedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payouts
		 SET status = ?, payment_hash = ?, preimage = ?, fee_sats = ?, completed_at = ?, updated_at = ?
		 WHERE id = ?`,
		domain.StatusCompleted,
		paymentHash,
		preimage,
		feeSats,
		completedAt,
		completedAt,
		id,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payouts SET status = ?, failure_reason = ?, updated_at = ? WHERE id = ?`,
		domain.StatusFailed,
		reason,
		time.Now().UTC(),
		id,
	).Error
}

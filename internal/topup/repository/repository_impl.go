package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/satgate/satgate/internal/topup/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, topup *domain.Topup) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO topups (id, session_id, amount, payment_hash, payment_request, status, expires_at, paid_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		topup.ID,
		topup.SessionID,
		topup.Amount,
		topup.PaymentHash,
		topup.PaymentRequest,
		topup.Status,
		topup.ExpiresAt,
		topup.PaidAt,
		topup.CreatedAt,
		topup.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Topup, error) {
	var topup domain.Topup
	err := db.WithContext(ctx).Raw(
		`SELECT id, session_id, amount, payment_hash, payment_request, status, expires_at, paid_at, created_at, updated_at
		 FROM topups WHERE id = ?`,
		id,
	).Scan(&topup).Error
	if err != nil {
		return nil, err
	}
	if topup.ID == 0 {
		return nil, nil
	}
	return &topup, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE topups SET status = ?, paid_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.StatusPaid,
		paidAt,
		paidAt,
		id,
		domain.StatusPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkExpired(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE topups SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.StatusExpired,
		time.Now().UTC(),
		id,
		domain.StatusPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ExpireBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE topups SET status = ?, updated_at = ? WHERE status = ? AND expires_at < ?`,
		domain.StatusExpired,
		time.Now().UTC(),
		domain.StatusPending,
		cutoff,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/satgate/satgate/internal/session/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, session *domain.Session) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO sessions (id, token_hash, name, balance, owner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.TokenHash,
		session.Name,
		session.Balance,
		session.OwnerID,
		session.CreatedAt,
		session.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Session, error) {
	var session domain.Session
	err := db.WithContext(ctx).Raw(
		`SELECT id, token_hash, name, balance, owner_id, created_at, updated_at
		 FROM sessions WHERE id = ?`,
		id,
	).Scan(&session).Error
	if err != nil {
		return nil, err
	}
	if session.ID == 0 {
		return nil, nil
	}
	return &session, nil
}

func (r *repo) FindByTokenHash(ctx context.Context, db *gorm.DB, hash string) (*domain.Session, error) {
	var session domain.Session
	err := db.WithContext(ctx).Raw(
		`SELECT id, token_hash, name, balance, owner_id, created_at, updated_at
		 FROM sessions WHERE token_hash = ?`,
		hash,
	).Scan(&session).Error
	if err != nil {
		return nil, err
	}
	if session.ID == 0 {
		return nil, nil
	}
	return &session, nil
}

func (r *repo) Credit(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE sessions SET balance = balance + ?, updated_at = ? WHERE id = ?`,
		amount,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) Debit(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE sessions SET balance = balance - ?, updated_at = ? WHERE id = ? AND balance >= ?`,
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

package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	ScopeGatewaysWrite = "gateways:write"
	ScopePayoutsWrite  = "payouts:write"
	ScopeLogsRead      = "logs:read"
)

// DefaultScopes grants a newly registered earner the full self-service set.
func DefaultScopes() []string {
	return []string{ScopeGatewaysWrite, ScopePayoutsWrite, ScopeLogsRead}
}

type Service interface {
	List(ctx context.Context) ([]Response, error)
	Create(ctx context.Context, req CreateRequest) (*SecretResponse, error)
	Rotate(ctx context.Context, keyID string) (*SecretResponse, error)
	Revoke(ctx context.Context, keyID string) error
	// Resolve authenticates a raw bearer credential and returns the active key.
	Resolve(ctx context.Context, raw string) (*APIKey, error)
	// CreateForEarner inserts an initial key inside an enclosing transaction.
	CreateForEarner(ctx context.Context, tx *gorm.DB, earnerID snowflake.ID, name string) (*SecretResponse, error)
}

type CreateRequest struct {
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

type Response struct {
	KeyID            string     `json:"key_id"`
	Name             string     `json:"name"`
	Scopes           []string   `json:"scopes"`
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
	LastUsedAt       *time.Time `json:"last_used_at"`
	ExpiresAt        *time.Time `json:"expires_at"`
	RotatedFromKeyID *string    `json:"rotated_from_key_id"`
}

type SecretResponse struct {
	KeyID  string `json:"key_id"`
	APIKey string `json:"api_key"`
}

var (
	ErrInvalidEarner = errors.New("invalid_earner")
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidKeyID  = errors.New("invalid_key_id")
	ErrInvalidScope  = errors.New("invalid_scope")
	ErrInvalidKey    = errors.New("invalid_api_key")
	ErrNotFound      = errors.New("not_found")
)

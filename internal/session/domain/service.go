package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*CreateResponse, error)
	Get(ctx context.Context, id snowflake.ID) (*Session, error)
	// Resolve authenticates a raw session token.
	Resolve(ctx context.Context, rawToken string) (*Session, error)
	Balance(ctx context.Context, rawToken string) (*BalanceResponse, error)
}

type CreateRequest struct {
	Name string `json:"name,omitempty"`
}

// CreateResponse carries the raw token exactly once; only its hash is stored.
type CreateResponse struct {
	SessionID snowflake.ID `json:"session_id"`
	Token     string       `json:"token"`
	Balance   int64        `json:"balance"`
}

type BalanceResponse struct {
	SessionID snowflake.ID `json:"session_id"`
	Balance   int64        `json:"balance"`
	AsOf      time.Time    `json:"as_of"`
}

var (
	ErrInvalidToken = errors.New("invalid_session_token")
	ErrNotFound     = errors.New("session_not_found")
)

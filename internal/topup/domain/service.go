package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Create funds an existing session identified by its raw token.
	Create(ctx context.Context, req CreateRequest) (*CreateResponse, error)
	// CreateForSession is the internal entry used by the payment challenge
	// flow, which already resolved or created the session.
	CreateForSession(ctx context.Context, sessionID snowflake.ID, amount int64) (*CreateResponse, error)
	// Status polls the rail for pending top-ups and settles them
	// idempotently.
	Status(ctx context.Context, id snowflake.ID) (*StatusResponse, error)
	// ExpirePending lapses pending top-ups whose invoices expired.
	ExpirePending(ctx context.Context) (int64, error)
}

type CreateRequest struct {
	SessionToken string `json:"session_token"`
	Amount       int64  `json:"amount"`
}

type CreateResponse struct {
	TopupID        snowflake.ID `json:"topup_id"`
	SessionID      snowflake.ID `json:"session_id"`
	Amount         int64        `json:"amount"`
	PaymentHash    string       `json:"payment_hash"`
	PaymentRequest string       `json:"payment_request"`
	Status         string       `json:"status"`
	ExpiresAt      time.Time    `json:"expires_at"`
}

type StatusResponse struct {
	TopupID    snowflake.ID `json:"topup_id"`
	Status     string       `json:"status"`
	NewBalance *int64       `json:"new_balance,omitempty"`
}

var (
	ErrNotFound       = errors.New("topup_not_found")
	ErrAmountTooSmall = errors.New("amount_below_minimum")
)

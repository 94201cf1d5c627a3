package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/satgate/satgate/pkg/db/pagination"
)

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error)
	Get(ctx context.Context, id snowflake.ID) (*Earner, error)
	UpdateProfile(ctx context.Context, id snowflake.ID, req UpdateProfileRequest) (*Earner, error)
	List(ctx context.Context, page pagination.Pagination) (*ListResponse, error)
	EnsurePlatform(ctx context.Context) (*Earner, error)
}

type RegisterRequest struct {
	Name          string `json:"name"`
	PayoutAddress string `json:"payout_address,omitempty"`
}

// RegisterResponse carries the raw API key exactly once; only its hash is
// stored.
type RegisterResponse struct {
	Earner Earner `json:"earner"`
	KeyID  string `json:"key_id"`
	APIKey string `json:"api_key"`
}

type UpdateProfileRequest struct {
	Name          *string `json:"name,omitempty"`
	PayoutAddress *string `json:"payout_address,omitempty"`
	SweepOptIn    *bool   `json:"sweep_opt_in,omitempty"`
}

type ListResponse struct {
	Earners  []*Earner           `json:"earners"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

// Balances is the self-service view of an earner's funds.
type Balances struct {
	Available int64     `json:"available"`
	Reserved  int64     `json:"reserved"`
	AsOf      time.Time `json:"as_of"`
}

var (
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidPayoutAddress = errors.New("invalid_payout_address")
	ErrNotFound             = errors.New("earner_not_found")
	ErrRegistrationClosed   = errors.New("registration_closed")
)

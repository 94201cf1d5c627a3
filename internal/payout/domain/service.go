package domain

import (
	"context"
	"errors"

	"github.com/satgate/satgate/pkg/db/pagination"
)

type Service interface {
	// Request withdraws from the authenticated earner's balance.
	Request(ctx context.Context, req RequestPayout) (*Payout, error)
	List(ctx context.Context, page pagination.Pagination) (*ListResponse, error)
	// Sweep pays out the platform account and opted-in earners above the
	// configured threshold. Run by the scheduler and the admin endpoint.
	Sweep(ctx context.Context) (*SweepResult, error)
}

type RequestPayout struct {
	Amount int64 `json:"amount"`
	// Address overrides the stored payout address when set.
	Address string `json:"address,omitempty"`
}

type ListResponse struct {
	Payouts  []*Payout           `json:"payouts"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type SweepResult struct {
	Attempted int   `json:"attempted"`
	Completed int   `json:"completed"`
	Failed    int   `json:"failed"`
	TotalSats int64 `json:"total_sats"`
}

var (
	ErrInvalidEarner       = errors.New("invalid_earner")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrNoPayoutAddress     = errors.New("no_payout_address")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrNotFound            = errors.New("payout_not_found")
)

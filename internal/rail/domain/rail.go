package domain

import (
	"context"
	"errors"
	"time"
)

// Invoice is a payment request issued by the rail.
type Invoice struct {
	PaymentHash    string    `json:"payment_hash"`
	PaymentRequest string    `json:"payment_request"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// InvoiceStatus reports whether an invoice has settled.
type InvoiceStatus struct {
	Settled  bool   `json:"settled"`
	Preimage string `json:"preimage,omitempty"`
}

// Payment is the result of an outbound payout.
type Payment struct {
	PaymentHash string `json:"payment_hash"`
	Preimage    string `json:"preimage"`
	FeeSats     int64  `json:"fee_sats"`
}

// Client is the payment rail collaborator. Implementations must be safe for
// concurrent use.
type Client interface {
	Name() string
	CreateInvoice(ctx context.Context, amountSats int64, memo string) (*Invoice, error)
	GetInvoiceStatus(ctx context.Context, paymentHash string) (*InvoiceStatus, error)
	PayToAddress(ctx context.Context, address string, amountSats int64, memo string) (*Payment, error)
}

var (
	ErrInvalidAmount  = errors.New("invalid_amount")
	ErrInvalidAddress = errors.New("invalid_address")
	ErrUnavailable    = errors.New("rail_unavailable")
	ErrPaymentFailed  = errors.New("payment_failed")
)

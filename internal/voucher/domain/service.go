package domain

import (
	"context"
	"errors"
)

type Service interface {
	// Mint signs the claims and returns the opaque voucher string.
	Mint(ctx context.Context, claims Claims) (string, error)
	// Verify checks signature, expiry and gateway binding, in that order.
	Verify(ctx context.Context, token, gatewayID string) (*Claims, error)
	// Redeem verifies the voucher and proves payment with the preimage.
	Redeem(ctx context.Context, token, preimage, gatewayID string) (*Claims, error)
}

var (
	ErrMalformed    = errors.New("voucher_malformed")
	ErrBadSignature = errors.New("voucher_bad_signature")
	ErrExpired      = errors.New("voucher_expired")
	ErrWrongGateway = errors.New("voucher_wrong_gateway")
	// ErrWrongPath is raised by callers that know the requested path; the
	// service itself only sees the claims.
	ErrWrongPath   = errors.New("voucher_wrong_path")
	ErrBadPreimage = errors.New("voucher_bad_preimage")
)

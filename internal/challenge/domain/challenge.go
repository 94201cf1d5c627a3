package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	gatewaydomain "github.com/satgate/satgate/internal/gateway/domain"
	sessiondomain "github.com/satgate/satgate/internal/session/domain"
)

type Service interface {
	// Interactive builds the HTML payment page for browser callers.
	Interactive(ctx context.Context, req Request) (*InteractiveChallenge, error)
	// Programmatic builds the voucher challenge for machine callers.
	Programmatic(ctx context.Context, req Request) (*ProgrammaticChallenge, error)
}

// Request describes the unpaid call the challenge is issued for.
type Request struct {
	Gateway *gatewaydomain.Gateway
	// Path is the normalized sub-path the price was resolved for.
	Path  string
	Price int64
	// Session is set when the caller presented a valid token with an
	// insufficient balance; the challenge then tops up that session.
	Session *sessiondomain.Session
}

// InteractiveChallenge is a rendered payment page plus the facts it shows.
// SessionToken is non-empty only when the challenge created the session.
type InteractiveChallenge struct {
	HTML           string
	SessionID      snowflake.ID
	SessionToken   string
	TopupID        snowflake.ID
	PaymentHash    string
	PaymentRequest string
	AmountSats     int64
	ExpiresAt      time.Time
	RailDown       bool
}

// ProgrammaticChallenge carries what a machine client needs to pay and
// retry: settle the invoice, then resend with the voucher and preimage.
type ProgrammaticChallenge struct {
	GatewayID      string
	Path           string
	Price          int64
	Voucher        string
	PaymentHash    string
	PaymentRequest string
	ExpiresAt      time.Time
	RailDown       bool
}

// ChallengeHeader renders the WWW-Authenticate value, empty when no
// invoice could be issued.
func (c *ProgrammaticChallenge) ChallengeHeader() string {
	if c.RailDown || c.Voucher == "" {
		return ""
	}
	return fmt.Sprintf("L402 token=%q, invoice=%q", c.Voucher, c.PaymentRequest)
}

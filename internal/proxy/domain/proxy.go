package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	gatewaydomain "github.com/satgate/satgate/internal/gateway/domain"
	sessiondomain "github.com/satgate/satgate/internal/session/domain"
)

// SessionTokenHeader carries the session credential. The matching query
// parameter exists for browser flows that cannot set headers.
const (
	SessionTokenHeader = "X-Session-Token"
	SessionTokenParam  = "session_token"

	CostHeader    = "X-Request-Cost"
	BalanceHeader = "X-Balance-Remaining"
)

type Service interface {
	// Execute runs one metered round-trip: resolve, price, authorize,
	// forward, settle. The returned body must be closed by the caller.
	Execute(ctx context.Context, req Request) (*Response, error)
}

// Request is one inbound call to a gateway, already routed by the server.
type Request struct {
	GatewayID string
	// SubPath is the path below the gateway mount, without a leading slash.
	SubPath string
	Method  string
	Query   url.Values
	Header  http.Header
	Body    io.Reader

	// SessionToken is the credential from header or query, empty when absent.
	SessionToken string
	// Authorization is the raw Authorization header, used for vouchers.
	Authorization string
}

// Response carries the upstream reply plus billing facts. Body streams the
// upstream payload and must be closed once copied.
type Response struct {
	Status int
	Header http.Header
	Body   io.ReadCloser

	Cost int64
	// BalanceRemaining is set only when a session paid for the call.
	BalanceRemaining *int64
}

// PaymentRequiredError aborts the pipeline before the upstream is reached.
// The server layer turns it into a 402 challenge for the resolved price.
type PaymentRequiredError struct {
	Gateway *gatewaydomain.Gateway
	// Path is the normalized sub-path the price was resolved for.
	Path  string
	Price int64
	// Session is the resolved session when one was presented with an
	// insufficient balance, nil when no credential was sent.
	Session *sessiondomain.Session
}

func (e *PaymentRequiredError) Error() string {
	return fmt.Sprintf("payment_required: %d sats for %s%s", e.Price, e.Gateway.ID, e.Path)
}

var (
	// ErrUpstreamFailed means the upstream could not be reached or timed
	// out. Nothing is billed.
	ErrUpstreamFailed = errors.New("upstream_failed")
)

package simulated

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	raildomain "github.com/satgate/satgate/internal/rail/domain"
)

// Client satisfies the rail contract without a real payment backend. Every
// invoice it issues reports settled, so flows can be exercised end to end.
type Client struct {
	mu        sync.Mutex
	preimages map[string]string
}

func New() *Client {
	return &Client{preimages: make(map[string]string)}
}

func (c *Client) Name() string {
	return "simulated"
}

func (c *Client) CreateInvoice(ctx context.Context, amountSats int64, memo string) (*raildomain.Invoice, error) {
	if amountSats <= 0 {
		return nil, raildomain.ErrInvalidAmount
	}

	preimage, paymentHash, err := newPreimage()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.preimages[paymentHash] = preimage
	c.mu.Unlock()

	return &raildomain.Invoice{
		PaymentHash:    paymentHash,
		PaymentRequest: fmt.Sprintf("lnsim1%s", paymentHash),
		ExpiresAt:      time.Now().UTC().Add(time.Hour),
	}, nil
}

func (c *Client) GetInvoiceStatus(ctx context.Context, paymentHash string) (*raildomain.InvoiceStatus, error) {
	c.mu.Lock()
	preimage := c.preimages[strings.TrimSpace(paymentHash)]
	c.mu.Unlock()

	return &raildomain.InvoiceStatus{
		Settled:  true,
		Preimage: preimage,
	}, nil
}

func (c *Client) PayToAddress(ctx context.Context, address string, amountSats int64, memo string) (*raildomain.Payment, error) {
	if strings.TrimSpace(address) == "" {
		return nil, raildomain.ErrInvalidAddress
	}
	if amountSats <= 0 {
		return nil, raildomain.ErrInvalidAmount
	}

	preimage, paymentHash, err := newPreimage()
	if err != nil {
		return nil, err
	}

	return &raildomain.Payment{
		PaymentHash: paymentHash,
		Preimage:    preimage,
		FeeSats:     0,
	}, nil
}

// PreimageFor returns the preimage backing an invoice this client issued.
// Empty when the hash is unknown.
func (c *Client) PreimageFor(paymentHash string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preimages[strings.TrimSpace(paymentHash)]
}

func newPreimage() (preimage, paymentHash string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(raw), hex.EncodeToString(sum[:]), nil
}

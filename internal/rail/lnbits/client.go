package lnbits

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/satgate/satgate/internal/observability/tracing"
	raildomain "github.com/satgate/satgate/internal/rail/domain"
	"go.uber.org/zap"
)

// Client talks to an LNbits wallet over its REST API.
type Client struct {
	baseURL       string
	apiKey        string
	invoiceExpiry time.Duration
	http          *http.Client
	log           *zap.Logger
}

func New(baseURL, apiKey string, invoiceExpiry time.Duration, log *zap.Logger) *Client {
	if invoiceExpiry <= 0 {
		invoiceExpiry = time.Hour
	}
	return &Client{
		baseURL:       strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:        strings.TrimSpace(apiKey),
		invoiceExpiry: invoiceExpiry,
		http:          tracing.WrapHTTPClient(&http.Client{Timeout: 15 * time.Second}),
		log:           log.Named("rail.lnbits"),
	}
}

func (c *Client) Name() string {
	return "lnbits"
}

type createInvoiceRequest struct {
	Out    bool   `json:"out"`
	Amount int64  `json:"amount"`
	Memo   string `json:"memo,omitempty"`
	Expiry int64  `json:"expiry,omitempty"`
}

type createInvoiceResponse struct {
	PaymentHash    string `json:"payment_hash"`
	PaymentRequest string `json:"payment_request"`
	Bolt11         string `json:"bolt11"`
}

func (c *Client) CreateInvoice(ctx context.Context, amountSats int64, memo string) (*raildomain.Invoice, error) {
	if amountSats <= 0 {
		return nil, raildomain.ErrInvalidAmount
	}

	now := time.Now().UTC()
	var out createInvoiceResponse
	err := c.post(ctx, "/api/v1/payments", createInvoiceRequest{
		Out:    false,
		Amount: amountSats,
		Memo:   memo,
		Expiry: int64(c.invoiceExpiry.Seconds()),
	}, &out)
	if err != nil {
		return nil, err
	}

	request := out.PaymentRequest
	if request == "" {
		request = out.Bolt11
	}
	if out.PaymentHash == "" || request == "" {
		return nil, fmt.Errorf("%w: invoice response missing payment data", raildomain.ErrUnavailable)
	}

	return &raildomain.Invoice{
		PaymentHash:    out.PaymentHash,
		PaymentRequest: request,
		ExpiresAt:      now.Add(c.invoiceExpiry),
	}, nil
}

type paymentStatusResponse struct {
	Paid     bool   `json:"paid"`
	Preimage string `json:"preimage"`
	Details  struct {
		Fee int64 `json:"fee"`
	} `json:"details"`
}

func (c *Client) GetInvoiceStatus(ctx context.Context, paymentHash string) (*raildomain.InvoiceStatus, error) {
	paymentHash = strings.TrimSpace(paymentHash)
	if paymentHash == "" {
		return nil, raildomain.ErrUnavailable
	}

	var out paymentStatusResponse
	if err := c.get(ctx, "/api/v1/payments/"+url.PathEscape(paymentHash), &out); err != nil {
		return nil, err
	}

	return &raildomain.InvoiceStatus{
		Settled:  out.Paid,
		Preimage: out.Preimage,
	}, nil
}

type lnurlScanResponse struct {
	Kind            string `json:"kind"`
	Callback        string `json:"callback"`
	MinSendable     int64  `json:"minSendable"`
	MaxSendable     int64  `json:"maxSendable"`
	DescriptionHash string `json:"description_hash"`
}

type lnurlPayRequest struct {
	Callback        string `json:"callback"`
	Amount          int64  `json:"amount"`
	Description     string `json:"description,omitempty"`
	DescriptionHash string `json:"description_hash,omitempty"`
	Comment         string `json:"comment,omitempty"`
}

type lnurlPayResponse struct {
	PaymentHash string `json:"payment_hash"`
}

func (c *Client) PayToAddress(ctx context.Context, address string, amountSats int64, memo string) (*raildomain.Payment, error) {
	address = strings.TrimSpace(address)
	if address == "" || !strings.Contains(address, "@") {
		return nil, raildomain.ErrInvalidAddress
	}
	if amountSats <= 0 {
		return nil, raildomain.ErrInvalidAmount
	}

	var scan lnurlScanResponse
	if err := c.get(ctx, "/api/v1/lnurlscan/"+url.PathEscape(address), &scan); err != nil {
		return nil, err
	}
	if scan.Callback == "" {
		return nil, fmt.Errorf("%w: lnurl scan returned no callback", raildomain.ErrPaymentFailed)
	}

	amountMsat := amountSats * 1000
	if scan.MinSendable > 0 && amountMsat < scan.MinSendable {
		return nil, fmt.Errorf("%w: amount below receiver minimum", raildomain.ErrInvalidAmount)
	}
	if scan.MaxSendable > 0 && amountMsat > scan.MaxSendable {
		return nil, fmt.Errorf("%w: amount above receiver maximum", raildomain.ErrInvalidAmount)
	}

	var paid lnurlPayResponse
	err := c.post(ctx, "/api/v1/payments/lnurl", lnurlPayRequest{
		Callback:        scan.Callback,
		Amount:          amountMsat,
		Description:     memo,
		DescriptionHash: scan.DescriptionHash,
		Comment:         memo,
	}, &paid)
	if err != nil {
		return nil, err
	}
	if paid.PaymentHash == "" {
		return nil, fmt.Errorf("%w: pay response missing payment hash", raildomain.ErrPaymentFailed)
	}

	status, err := c.GetInvoiceStatus(ctx, paid.PaymentHash)
	if err != nil {
		return nil, err
	}
	if !status.Settled {
		return nil, fmt.Errorf("%w: payment did not settle", raildomain.ErrPaymentFailed)
	}

	var details paymentStatusResponse
	if err := c.get(ctx, "/api/v1/payments/"+url.PathEscape(paid.PaymentHash), &details); err != nil {
		return nil, err
	}

	fee := details.Details.Fee / 1000
	if fee < 0 {
		fee = -fee
	}

	return &raildomain.Payment{
		PaymentHash: paid.PaymentHash,
		Preimage:    status.Preimage,
		FeeSats:     fee,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", raildomain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		c.log.Warn("lnbits request failed",
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("%w: lnbits status %d", raildomain.ErrUnavailable, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", raildomain.ErrUnavailable, err)
	}
	return nil
}

package service

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/satgate/satgate/internal/challenge/domain"
	"github.com/satgate/satgate/internal/challenge/render"
	"github.com/satgate/satgate/internal/clock"
	"github.com/satgate/satgate/internal/config"
	obsmetrics "github.com/satgate/satgate/internal/observability/metrics"
	raildomain "github.com/satgate/satgate/internal/rail/domain"
	sessiondomain "github.com/satgate/satgate/internal/session/domain"
	topupdomain "github.com/satgate/satgate/internal/topup/domain"
	voucherdomain "github.com/satgate/satgate/internal/voucher/domain"
)

const (
	pollIntervalMS = 1000
	pollLimit      = 120
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Clock  clock.Clock
	Config config.Config
	Fees   *config.FeeConfigHolder

	Sessions sessiondomain.Service
	Topups   topupdomain.Service
	Rail     raildomain.Client
	Vouchers voucherdomain.Service

	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type service struct {
	log      *zap.Logger
	clock    clock.Clock
	cfg      config.Config
	fees     *config.FeeConfigHolder
	sessions sessiondomain.Service
	topups   topupdomain.Service
	rail     raildomain.Client
	vouchers voucherdomain.Service
	renderer *render.PageRenderer
	metrics  *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &service{
		log:      p.Log.Named("challenge.service"),
		clock:    p.Clock,
		cfg:      p.Config,
		fees:     p.Fees,
		sessions: p.Sessions,
		topups:   p.Topups,
		rail:     p.Rail,
		vouchers: p.Vouchers,
		renderer: render.NewPageRenderer(),
		metrics:  p.ObsMetrics,
	}
}

func (s *service) Interactive(ctx context.Context, req domain.Request) (*domain.InteractiveChallenge, error) {
	out := &domain.InteractiveChallenge{AmountSats: req.Price}

	if req.Session != nil {
		out.SessionID = req.Session.ID
	} else {
		created, err := s.sessions.Create(ctx, sessiondomain.CreateRequest{Name: "web checkout"})
		if err != nil {
			return nil, fmt.Errorf("create challenge session: %w", err)
		}
		out.SessionID = created.SessionID
		out.SessionToken = created.Token
	}

	topup, err := s.topups.CreateForSession(ctx, out.SessionID, req.Price)
	if err != nil {
		// The page still renders; it offers manual token entry instead
		// of an invoice.
		s.log.Warn("challenge invoice unavailable",
			zap.String("gateway_id", req.Gateway.ID),
			zap.Int64("price", req.Price),
			zap.Error(err))
		out.RailDown = true
	} else {
		out.TopupID = topup.TopupID
		out.PaymentHash = topup.PaymentHash
		out.PaymentRequest = topup.PaymentRequest
		out.ExpiresAt = topup.ExpiresAt
	}

	input := render.PageInput{
		GatewayName:    req.Gateway.Name,
		Path:           req.Path,
		PriceSats:      req.Price,
		SessionToken:   out.SessionToken,
		PaymentRequest: out.PaymentRequest,
		TokenParam:     "session_token",
		PollIntervalMS: pollIntervalMS,
		PollLimit:      pollLimit,
		RailDown:       out.RailDown,
	}
	if !out.RailDown {
		input.StatusURL = fmt.Sprintf("/v1/topups/%d", out.TopupID)
		qr, err := render.InvoiceQR(out.PaymentRequest)
		if err != nil {
			s.log.Warn("qr render failed, page falls back to copy/paste", zap.Error(err))
		} else {
			input.QRDataURI = qr
		}
	}

	html, err := s.renderer.RenderHTML(input)
	if err != nil {
		return nil, fmt.Errorf("render payment page: %w", err)
	}
	out.HTML = html

	if s.metrics != nil {
		s.metrics.RecordChallenge(ctx, "interactive")
	}
	return out, nil
}

func (s *service) Programmatic(ctx context.Context, req domain.Request) (*domain.ProgrammaticChallenge, error) {
	out := &domain.ProgrammaticChallenge{
		GatewayID: req.Gateway.ID,
		Path:      req.Path,
		Price:     req.Price,
	}

	fcfg := s.fees.Get()
	memo := fmt.Sprintf("%s %s%s", fcfg.InvoiceMemo, req.Gateway.ID, req.Path)
	invoice, err := s.rail.CreateInvoice(ctx, req.Price, memo)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordRailError(ctx, "create_invoice")
		}
		s.log.Warn("voucher challenge invoice unavailable",
			zap.String("gateway_id", req.Gateway.ID),
			zap.Int64("price", req.Price),
			zap.Error(err))
		out.RailDown = true
		return out, nil
	}

	expiresAt := s.clock.Now().Add(fcfg.VoucherTTL())
	if !invoice.ExpiresAt.IsZero() && invoice.ExpiresAt.Before(expiresAt) {
		expiresAt = invoice.ExpiresAt
	}

	voucher, err := s.vouchers.Mint(ctx, voucherdomain.Claims{
		PaymentHash: invoice.PaymentHash,
		GatewayID:   req.Gateway.ID,
		Path:        req.Path,
		Price:       req.Price,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("mint voucher: %w", err)
	}

	out.Voucher = voucher
	out.PaymentHash = invoice.PaymentHash
	out.PaymentRequest = invoice.PaymentRequest
	out.ExpiresAt = expiresAt

	if s.metrics != nil {
		s.metrics.RecordChallenge(ctx, "programmatic")
	}
	return out, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/satgate/satgate/internal/clock"
	"github.com/satgate/satgate/internal/config"
	earnerdomain "github.com/satgate/satgate/internal/earner/domain"
	"github.com/satgate/satgate/internal/fees"
	gatewaydomain "github.com/satgate/satgate/internal/gateway/domain"
	"github.com/satgate/satgate/internal/metricspush"
	obsmetrics "github.com/satgate/satgate/internal/observability/metrics"
	"github.com/satgate/satgate/internal/observability/tracing"
	"github.com/satgate/satgate/internal/pricer"
	"github.com/satgate/satgate/internal/proxy/domain"
	requestlogdomain "github.com/satgate/satgate/internal/requestlog/domain"
	sessiondomain "github.com/satgate/satgate/internal/session/domain"
	voucherdomain "github.com/satgate/satgate/internal/voucher/domain"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Config config.Config
	Fees   *config.FeeConfigHolder

	Gateways    gatewaydomain.Service
	Sessions    sessiondomain.Service
	SessionRepo sessiondomain.Repository
	EarnerRepo  earnerdomain.Repository
	LogRepo     requestlogdomain.Repository
	Vouchers    voucherdomain.Service

	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	cfg    config.Config
	fees   *config.FeeConfigHolder
	client *http.Client

	gateways    gatewaydomain.Service
	sessions    sessiondomain.Service
	sessionRepo sessiondomain.Repository
	earnerRepo  earnerdomain.Repository
	logRepo     requestlogdomain.Repository
	vouchers    voucherdomain.Service

	metrics *obsmetrics.Metrics

	platformMu sync.Mutex
	platformID snowflake.ID
}

func New(p Params) domain.Service {
	// Redirects pass through to the caller untouched; following them here
	// would bill one request and fetch another.
	client := tracing.WrapHTTPClient(&http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	})

	return &service{
		db:          p.DB,
		log:         p.Log.Named("proxy.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		cfg:         p.Config,
		fees:        p.Fees,
		client:      client,
		gateways:    p.Gateways,
		sessions:    p.Sessions,
		sessionRepo: p.SessionRepo,
		earnerRepo:  p.EarnerRepo,
		logRepo:     p.LogRepo,
		vouchers:    p.Vouchers,
		metrics:     p.ObsMetrics,
	}
}

func (s *service) Execute(ctx context.Context, req domain.Request) (*domain.Response, error) {
	gateway, err := s.gateways.Resolve(ctx, req.GatewayID)
	if err != nil {
		s.recordOutcome(ctx, "rejected")
		return nil, err
	}

	path := pricer.NormalizePath(req.SubPath)
	rules, err := gateway.PriceRules()
	if err != nil {
		s.log.Error("stored price rules do not decode",
			zap.String("gateway_id", gateway.ID), zap.Error(err))
		return nil, fmt.Errorf("decode price rules: %w", err)
	}
	price := pricer.PriceFor(rules, gateway.DefaultPrice, path)

	if price == 0 {
		return s.executeFree(ctx, gateway, path, req)
	}

	if token, preimage, ok := parseL402(req.Authorization); ok {
		return s.executeVoucher(ctx, gateway, path, req, token, preimage)
	}

	if req.SessionToken == "" {
		s.recordOutcome(ctx, "payment_required")
		return nil, &domain.PaymentRequiredError{Gateway: gateway, Path: path, Price: price}
	}

	session, err := s.sessions.Resolve(ctx, req.SessionToken)
	if err != nil {
		s.recordOutcome(ctx, "rejected")
		return nil, err
	}
	if session.Balance < price {
		s.recordOutcome(ctx, "payment_required")
		return nil, &domain.PaymentRequiredError{Gateway: gateway, Path: path, Price: price, Session: session}
	}

	upstream, err := s.forward(ctx, gateway, path, req, false)
	if err != nil {
		s.recordOutcome(ctx, "upstream_error")
		return nil, err
	}

	remaining, err := s.settle(ctx, gateway, path, session, price, req.Method, upstream.Status)
	if err != nil {
		upstream.Body.Close()
		if errors.As(err, new(*domain.PaymentRequiredError)) {
			s.recordOutcome(ctx, "debit_race")
			return nil, err
		}
		s.recordOutcome(ctx, "settlement_error")
		return nil, err
	}

	s.recordOutcome(ctx, "settled")
	if s.metrics != nil {
		s.metrics.RecordSettlement(ctx, "session", price)
	}
	split := fees.Compute(price, s.fees.Get().PlatformFeePercent)
	metricspush.RecordSettledRequest(gateway.ID, split.EarnerShare, split.PlatformShare)

	upstream.Cost = price
	upstream.BalanceRemaining = &remaining
	return upstream, nil
}

func (s *service) executeFree(ctx context.Context, gateway *gatewaydomain.Gateway, path string, req domain.Request) (*domain.Response, error) {
	// Free paths skip authorization and leave no log row.
	upstream, err := s.forward(ctx, gateway, path, req, false)
	if err != nil {
		s.recordOutcome(ctx, "upstream_error")
		return nil, err
	}
	s.recordOutcome(ctx, "free")
	return upstream, nil
}

func (s *service) executeVoucher(ctx context.Context, gateway *gatewaydomain.Gateway, path string, req domain.Request, token, preimage string) (*domain.Response, error) {
	claims, err := s.vouchers.Redeem(ctx, token, preimage, gateway.ID)
	if err != nil {
		s.recordOutcome(ctx, "rejected")
		return nil, err
	}
	if claims.Path != path {
		s.recordOutcome(ctx, "rejected")
		return nil, fmt.Errorf("%w: minted for %s", voucherdomain.ErrWrongPath, claims.Path)
	}

	upstream, err := s.forward(ctx, gateway, path, req, true)
	if err != nil {
		s.recordOutcome(ctx, "upstream_error")
		return nil, err
	}

	// Voucher revenue settled on the rail when the invoice was paid;
	// only the audit row is written here.
	split := fees.Compute(claims.Price, s.fees.Get().PlatformFeePercent)
	entry := &requestlogdomain.Entry{
		ID:             s.genID.Generate(),
		GatewayID:      gateway.ID,
		Cost:           split.Total,
		EarnerShare:    split.EarnerShare,
		PlatformShare:  split.PlatformShare,
		Method:         req.Method,
		Path:           path,
		UpstreamStatus: upstream.Status,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.logRepo.Insert(ctx, s.db, entry); err != nil {
		s.log.Error("voucher call served but log row write failed",
			zap.String("gateway_id", gateway.ID),
			zap.String("payment_hash", claims.PaymentHash),
			zap.Error(err))
	}

	s.recordOutcome(ctx, "voucher")
	if s.metrics != nil {
		s.metrics.RecordSettlement(ctx, "voucher", claims.Price)
	}
	metricspush.RecordSettledRequest(gateway.ID, split.EarnerShare, split.PlatformShare)

	upstream.Cost = claims.Price
	return upstream, nil
}

// settle moves the money and the log row in one transaction, returning the
// session balance after the debit.
func (s *service) settle(ctx context.Context, gateway *gatewaydomain.Gateway, path string, session *sessiondomain.Session, price int64, method string, upstreamStatus int) (int64, error) {
	platformID, err := s.resolvePlatform(ctx)
	if err != nil {
		s.log.Error("settlement aborted: platform account unavailable", zap.Error(err))
		return 0, err
	}

	split := fees.Compute(price, s.fees.Get().PlatformFeePercent)

	var remaining int64
	var raced bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		debited, err := s.sessionRepo.Debit(ctx, tx, session.ID, price)
		if err != nil {
			return err
		}
		if !debited {
			raced = true
			return nil
		}

		if split.EarnerShare > 0 {
			if err := s.earnerRepo.Credit(ctx, tx, gateway.OwnerID, split.EarnerShare); err != nil {
				return err
			}
		}
		if split.PlatformShare > 0 {
			if err := s.earnerRepo.Credit(ctx, tx, platformID, split.PlatformShare); err != nil {
				return err
			}
		}

		entry := &requestlogdomain.Entry{
			ID:             s.genID.Generate(),
			GatewayID:      gateway.ID,
			SessionID:      &session.ID,
			Cost:           split.Total,
			EarnerShare:    split.EarnerShare,
			PlatformShare:  split.PlatformShare,
			Method:         method,
			Path:           path,
			UpstreamStatus: upstreamStatus,
			CreatedAt:      s.clock.Now(),
		}
		if err := s.logRepo.Insert(ctx, tx, entry); err != nil {
			return err
		}

		fresh, err := s.sessionRepo.FindByID(ctx, tx, session.ID)
		if err != nil {
			return err
		}
		if fresh != nil {
			remaining = fresh.Balance
		}
		return nil
	})
	if err != nil {
		s.log.Error("upstream call served but settlement failed",
			zap.String("gateway_id", gateway.ID),
			zap.Int64("session_id", int64(session.ID)),
			zap.Int64("price", price),
			zap.Error(err))
		return 0, fmt.Errorf("settle request: %w", err)
	}
	if raced {
		// A concurrent call drained the balance between the check and the
		// debit. The guard held, so nothing moved; the caller gets a fresh
		// challenge.
		s.log.Warn("session balance consumed concurrently",
			zap.Int64("session_id", int64(session.ID)),
			zap.String("gateway_id", gateway.ID),
			zap.Int64("price", price))
		fresh, err := s.sessionRepo.FindByID(ctx, s.db, session.ID)
		if err != nil || fresh == nil {
			fresh = session
		}
		return 0, &domain.PaymentRequiredError{Gateway: gateway, Path: path, Price: price, Session: fresh}
	}
	return remaining, nil
}

func (s *service) resolvePlatform(ctx context.Context) (snowflake.ID, error) {
	s.platformMu.Lock()
	defer s.platformMu.Unlock()
	if s.platformID != 0 {
		return s.platformID, nil
	}
	platform, err := s.earnerRepo.FindPlatform(ctx, s.db)
	if err != nil {
		return 0, err
	}
	if platform == nil {
		return 0, errors.New("platform account missing")
	}
	s.platformID = platform.ID
	return s.platformID, nil
}

// forward performs the upstream round-trip. The forward context is detached
// from the inbound one so a client disconnect cannot race the settlement.
func (s *service) forward(ctx context.Context, gateway *gatewaydomain.Gateway, path string, req domain.Request, voucherAuth bool) (*domain.Response, error) {
	target := strings.TrimSuffix(gateway.TargetURL, "/") + path
	query := cloneValues(req.Query)
	query.Del(domain.SessionTokenParam)
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}

	var body io.Reader
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		body = req.Body
	}

	timeout := time.Duration(s.cfg.UpstreamTimeoutSeconds) * time.Second
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)

	upstreamReq, err := http.NewRequestWithContext(fctx, req.Method, target, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamFailed, err)
	}
	upstreamReq.Header = outboundHeaders(req.Header, voucherAuth)

	resp, err := s.client.Do(upstreamReq)
	if err != nil {
		cancel()
		s.log.Warn("upstream request failed",
			zap.String("gateway_id", gateway.ID),
			zap.String("path", path),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamFailed, err)
	}

	return &domain.Response{
		Status: resp.StatusCode,
		Header: inboundHeaders(resp.Header),
		Body:   &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel},
	}, nil
}

func (s *service) recordOutcome(ctx context.Context, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordProxyRequest(ctx, outcome)
	}
}

// cancelReadCloser releases the forward context once the body is drained.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// hopHeaders never cross the proxy in either direction.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func outboundHeaders(in http.Header, voucherAuth bool) http.Header {
	out := make(http.Header, len(in))
	for key, values := range in {
		out[key] = append([]string(nil), values...)
	}
	for _, key := range hopHeaders {
		out.Del(key)
	}
	out.Del("Host")
	out.Del(domain.SessionTokenHeader)
	if voucherAuth {
		// The voucher authenticated against this proxy, not the upstream.
		out.Del("Authorization")
	}
	return out
}

func inboundHeaders(in http.Header) http.Header {
	out := make(http.Header, len(in))
	for key, values := range in {
		out[key] = append([]string(nil), values...)
	}
	for _, key := range hopHeaders {
		out.Del(key)
	}
	return out
}

// parseL402 splits an "L402 <voucher>:<preimage>" authorization value.
func parseL402(header string) (token, preimage string, ok bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", "", false
	}
	scheme, rest, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "L402") {
		return "", "", false
	}
	token, preimage, found = strings.Cut(strings.TrimSpace(rest), ":")
	if !found || token == "" || preimage == "" {
		return "", "", false
	}
	return token, preimage, true
}

func cloneValues(in url.Values) url.Values {
	out := make(url.Values, len(in))
	for key, values := range in {
		out[key] = append([]string(nil), values...)
	}
	return out
}

package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/satgate/satgate/internal/challenge/domain"
	"github.com/satgate/satgate/internal/challenge/service"
	"github.com/satgate/satgate/internal/clock"
	"github.com/satgate/satgate/internal/config"
	gatewaydomain "github.com/satgate/satgate/internal/gateway/domain"
	raildomain "github.com/satgate/satgate/internal/rail/domain"
	sessiondomain "github.com/satgate/satgate/internal/session/domain"
	sessionrepo "github.com/satgate/satgate/internal/session/repository"
	sessionservice "github.com/satgate/satgate/internal/session/service"
	topupdomain "github.com/satgate/satgate/internal/topup/domain"
	topuprepo "github.com/satgate/satgate/internal/topup/repository"
	topupservice "github.com/satgate/satgate/internal/topup/service"
	voucherdomain "github.com/satgate/satgate/internal/voucher/domain"
	voucherservice "github.com/satgate/satgate/internal/voucher/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubRail struct {
	mu     sync.Mutex
	seq    int
	expiry time.Time
	fail   bool
}

func (s *stubRail) Name() string { return "stub" }

func (s *stubRail) CreateInvoice(ctx context.Context, amountSats int64, memo string) (*raildomain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, raildomain.ErrUnavailable
	}
	s.seq++
	hash := fmt.Sprintf("challengehash%04d", s.seq)
	return &raildomain.Invoice{
		PaymentHash:    hash,
		PaymentRequest: "lnstub" + hash,
		ExpiresAt:      s.expiry,
	}, nil
}

func (s *stubRail) GetInvoiceStatus(ctx context.Context, paymentHash string) (*raildomain.InvoiceStatus, error) {
	return &raildomain.InvoiceStatus{}, nil
}

func (s *stubRail) PayToAddress(ctx context.Context, address string, amountSats int64, memo string) (*raildomain.Payment, error) {
	return nil, raildomain.ErrPaymentFailed
}

type fixture struct {
	db       *gorm.DB
	svc      domain.Service
	sessions sessiondomain.Service
	vouchers voucherdomain.Service
	rail     *stubRail
	clk      *clock.FakeClock
	gateway  *gatewaydomain.Gateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:challenge_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&sessiondomain.Session{}, &topupdomain.Topup{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	rail := &stubRail{expiry: clk.Now().Add(2 * time.Hour)}
	cfg := config.Config{VoucherSecret: "challenge-test-secret"}
	holder := config.NewStaticFeeConfigHolder(config.FeesConfig{
		PlatformFeePercent: 5,
		VoucherTTLMinutes:  60,
		MinTopupSats:       10,
		SweepMinSats:       1000,
		InvoiceMemo:        "satgate top-up",
	})

	sessRepo := sessionrepo.Provide()
	sessions := sessionservice.New(sessionservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  sessRepo,
	})
	topups := topupservice.New(topupservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		Fees:        holder,
		Repo:        topuprepo.Provide(),
		Sessions:    sessions,
		SessionRepo: sessRepo,
		Rail:        rail,
	})
	vouchers := voucherservice.New(voucherservice.Params{
		Config: cfg,
		Clock:  clk,
		Log:    zap.NewNop(),
	})

	svc := service.New(service.Params{
		Log:      zap.NewNop(),
		Clock:    clk,
		Config:   cfg,
		Fees:     holder,
		Sessions: sessions,
		Topups:   topups,
		Rail:     rail,
		Vouchers: vouchers,
	})

	gateway := &gatewaydomain.Gateway{
		ID:           "weather-api",
		Name:         "Weather API",
		TargetURL:    "http://upstream.internal",
		DefaultPrice: 10,
		IsActive:     true,
	}
	return &fixture{
		db:       db,
		svc:      svc,
		sessions: sessions,
		vouchers: vouchers,
		rail:     rail,
		clk:      clk,
		gateway:  gateway,
	}
}

func TestInteractiveCreatesSessionAndInvoice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	out, err := f.svc.Interactive(ctx, domain.Request{
		Gateway: f.gateway,
		Path:    "/premium/report",
		Price:   25,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out.SessionToken, "st_"))
	assert.NotZero(t, out.SessionID)
	assert.NotZero(t, out.TopupID)
	assert.Equal(t, int64(25), out.AmountSats)
	assert.False(t, out.RailDown)

	// The page carries the invoice, the fresh token and the poll target.
	assert.Contains(t, out.HTML, out.PaymentRequest)
	assert.Contains(t, out.HTML, out.SessionToken)
	assert.Contains(t, out.HTML, fmt.Sprintf("/v1/topups/%d", out.TopupID))
	assert.Contains(t, out.HTML, "data:image/png;base64,")

	resolved, err := f.sessions.Resolve(ctx, out.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, out.SessionID, resolved.ID)

	var topup topupdomain.Topup
	require.NoError(t, f.db.First(&topup, "id = ?", out.TopupID).Error)
	assert.Equal(t, out.SessionID, topup.SessionID)
	assert.Equal(t, int64(25), topup.Amount)
	assert.Equal(t, topupdomain.StatusPending, topup.Status)
}

func TestInteractiveReusesPresentedSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.sessions.Create(ctx, sessiondomain.CreateRequest{})
	require.NoError(t, err)
	session, err := f.sessions.Resolve(ctx, created.Token)
	require.NoError(t, err)

	out, err := f.svc.Interactive(ctx, domain.Request{
		Gateway: f.gateway,
		Path:    "/data",
		Price:   10,
		Session: session,
	})
	require.NoError(t, err)

	// The browser already holds the token; the page must not mint a new one.
	assert.Empty(t, out.SessionToken)
	assert.Equal(t, session.ID, out.SessionID)

	var topup topupdomain.Topup
	require.NoError(t, f.db.First(&topup, "id = ?", out.TopupID).Error)
	assert.Equal(t, session.ID, topup.SessionID)
}

func TestInteractiveBelowPublicMinimum(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	out, err := f.svc.Interactive(ctx, domain.Request{
		Gateway: f.gateway,
		Path:    "/cheap",
		Price:   1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.AmountSats)

	var topup topupdomain.Topup
	require.NoError(t, f.db.First(&topup, "id = ?", out.TopupID).Error)
	assert.Equal(t, int64(1), topup.Amount)
}

func TestInteractiveRailDown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.rail.fail = true

	out, err := f.svc.Interactive(ctx, domain.Request{
		Gateway: f.gateway,
		Path:    "/data",
		Price:   10,
	})
	require.NoError(t, err)

	assert.True(t, out.RailDown)
	assert.Empty(t, out.PaymentRequest)
	assert.Contains(t, out.HTML, "temporarily unavailable")
	// The session still exists so a later refresh can reuse it.
	_, err = f.sessions.Resolve(ctx, out.SessionToken)
	assert.NoError(t, err)
}

func TestProgrammaticChallenge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	out, err := f.svc.Programmatic(ctx, domain.Request{
		Gateway: f.gateway,
		Path:    "/premium/report",
		Price:   25,
	})
	require.NoError(t, err)

	assert.False(t, out.RailDown)
	assert.NotEmpty(t, out.Voucher)
	assert.NotEmpty(t, out.PaymentHash)
	assert.True(t, strings.HasPrefix(out.PaymentRequest, "lnstub"))

	header := out.ChallengeHeader()
	assert.True(t, strings.HasPrefix(header, `L402 token="`))
	assert.Contains(t, header, out.PaymentRequest)

	claims, err := f.vouchers.Verify(ctx, out.Voucher, f.gateway.ID)
	require.NoError(t, err)
	assert.Equal(t, "/premium/report", claims.Path)
	assert.Equal(t, int64(25), claims.Price)
	assert.Equal(t, out.PaymentHash, claims.PaymentHash)

	// Voucher TTL is 60m and the invoice lives 2h, so the TTL wins.
	assert.Equal(t, f.clk.Now().Add(time.Hour).UTC(), out.ExpiresAt.UTC())
}

func TestProgrammaticExpiryClampedToInvoice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.rail.expiry = f.clk.Now().Add(10 * time.Minute)

	out, err := f.svc.Programmatic(ctx, domain.Request{
		Gateway: f.gateway,
		Path:    "/data",
		Price:   10,
	})
	require.NoError(t, err)
	assert.Equal(t, f.clk.Now().Add(10*time.Minute).UTC(), out.ExpiresAt.UTC())
}

func TestProgrammaticRailDown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.rail.fail = true

	out, err := f.svc.Programmatic(ctx, domain.Request{
		Gateway: f.gateway,
		Path:    "/data",
		Price:   10,
	})
	require.NoError(t, err)

	assert.True(t, out.RailDown)
	assert.Empty(t, out.Voucher)
	assert.Empty(t, out.ChallengeHeader())
}

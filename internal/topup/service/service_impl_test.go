package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/satgate/satgate/internal/clock"
	"github.com/satgate/satgate/internal/config"
	raildomain "github.com/satgate/satgate/internal/rail/domain"
	sessiondomain "github.com/satgate/satgate/internal/session/domain"
	sessionrepo "github.com/satgate/satgate/internal/session/repository"
	sessionservice "github.com/satgate/satgate/internal/session/service"
	"github.com/satgate/satgate/internal/topup/domain"
	"github.com/satgate/satgate/internal/topup/repository"
	"github.com/satgate/satgate/internal/topup/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// stubRail is a controllable rail so tests can hold invoices unsettled.
type stubRail struct {
	mu      sync.Mutex
	seq     int
	settled map[string]bool
	expiry  time.Time
	fail    bool
}

func newStubRail(expiry time.Time) *stubRail {
	return &stubRail{settled: make(map[string]bool), expiry: expiry}
}

func (s *stubRail) Name() string { return "stub" }

func (s *stubRail) CreateInvoice(ctx context.Context, amountSats int64, memo string) (*raildomain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, raildomain.ErrUnavailable
	}
	s.seq++
	hash := fmt.Sprintf("stubhash%04d", s.seq)
	return &raildomain.Invoice{
		PaymentHash:    hash,
		PaymentRequest: "lnstub" + hash,
		ExpiresAt:      s.expiry,
	}, nil
}

func (s *stubRail) GetInvoiceStatus(ctx context.Context, paymentHash string) (*raildomain.InvoiceStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &raildomain.InvoiceStatus{Settled: s.settled[paymentHash]}, nil
}

func (s *stubRail) PayToAddress(ctx context.Context, address string, amountSats int64, memo string) (*raildomain.Payment, error) {
	return nil, raildomain.ErrPaymentFailed
}

func (s *stubRail) settle(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settled[hash] = true
}

type fixture struct {
	db       *gorm.DB
	svc      domain.Service
	sessions sessiondomain.Service
	rail     *stubRail
	clk      *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:topup_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&sessiondomain.Session{}, &domain.Topup{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	rail := newStubRail(clk.Now().Add(time.Hour))

	sessions := sessionservice.New(sessionservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  sessionrepo.Provide(),
	})

	svc := service.New(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Fees: config.NewStaticFeeConfigHolder(config.FeesConfig{
			PlatformFeePercent: 5,
			VoucherTTLMinutes:  60,
			MinTopupSats:       10,
			SweepMinSats:       1000,
			InvoiceMemo:        "test top-up",
		}),
		Repo:        repository.Provide(),
		Sessions:    sessions,
		SessionRepo: sessionrepo.Provide(),
		Rail:        rail,
	})

	return &fixture{db: db, svc: svc, sessions: sessions, rail: rail, clk: clk}
}

func TestCreateTopup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	session, err := f.sessions.Create(ctx, sessiondomain.CreateRequest{})
	require.NoError(t, err)

	created, err := f.svc.Create(ctx, domain.CreateRequest{
		SessionToken: session.Token,
		Amount:       100,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, created.Status)
	assert.Equal(t, session.SessionID, created.SessionID)
	assert.NotEmpty(t, created.PaymentHash)
	assert.NotEmpty(t, created.PaymentRequest)

	_, err = f.svc.Create(ctx, domain.CreateRequest{SessionToken: session.Token, Amount: 5})
	assert.ErrorIs(t, err, domain.ErrAmountTooSmall)

	_, err = f.svc.Create(ctx, domain.CreateRequest{SessionToken: "st_bogus", Amount: 100})
	assert.ErrorIs(t, err, sessiondomain.ErrInvalidToken)
}

func TestCreateForSessionAllowsSmallAmounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	session, err := f.sessions.Create(ctx, sessiondomain.CreateRequest{})
	require.NoError(t, err)

	created, err := f.svc.CreateForSession(ctx, session.SessionID, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), created.Amount)

	_, err = f.svc.CreateForSession(ctx, session.SessionID, 0)
	assert.ErrorIs(t, err, domain.ErrAmountTooSmall)
}

func TestCreateTopupRailFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	session, err := f.sessions.Create(ctx, sessiondomain.CreateRequest{})
	require.NoError(t, err)

	f.rail.fail = true
	_, err = f.svc.Create(ctx, domain.CreateRequest{SessionToken: session.Token, Amount: 100})
	assert.ErrorIs(t, err, raildomain.ErrUnavailable)
}

func TestStatusSettlesExactlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	session, err := f.sessions.Create(ctx, sessiondomain.CreateRequest{})
	require.NoError(t, err)
	created, err := f.svc.Create(ctx, domain.CreateRequest{SessionToken: session.Token, Amount: 100})
	require.NoError(t, err)

	status, err := f.svc.Status(ctx, created.TopupID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, status.Status)
	assert.Nil(t, status.NewBalance)

	f.rail.settle(created.PaymentHash)

	status, err = f.svc.Status(ctx, created.TopupID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, status.Status)
	require.NotNil(t, status.NewBalance)
	assert.Equal(t, int64(100), *status.NewBalance)

	// Repeated polls must not double-credit.
	for i := 0; i < 3; i++ {
		status, err = f.svc.Status(ctx, created.TopupID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPaid, status.Status)
		require.NotNil(t, status.NewBalance)
		assert.Equal(t, int64(100), *status.NewBalance)
	}

	balance, err := f.sessions.Balance(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance.Balance)
}

func TestStatusExpiresLapsedInvoice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	session, err := f.sessions.Create(ctx, sessiondomain.CreateRequest{})
	require.NoError(t, err)
	created, err := f.svc.Create(ctx, domain.CreateRequest{SessionToken: session.Token, Amount: 100})
	require.NoError(t, err)

	f.clk.Advance(2 * time.Hour)

	status, err := f.svc.Status(ctx, created.TopupID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, status.Status)

	// Settling after expiry no longer credits.
	f.rail.settle(created.PaymentHash)
	status, err = f.svc.Status(ctx, created.TopupID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, status.Status)

	balance, err := f.sessions.Balance(ctx, session.Token)
	require.NoError(t, err)
	assert.Zero(t, balance.Balance)
}

func TestStatusUnknownTopup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Status(ctx, snowflake.ID(999))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExpirePendingJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	session, err := f.sessions.Create(ctx, sessiondomain.CreateRequest{})
	require.NoError(t, err)

	first, err := f.svc.Create(ctx, domain.CreateRequest{SessionToken: session.Token, Amount: 50})
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, domain.CreateRequest{SessionToken: session.Token, Amount: 60})
	require.NoError(t, err)

	// Pay the second before the clock passes expiry.
	f.rail.settle(second.PaymentHash)
	_, err = f.svc.Status(ctx, second.TopupID)
	require.NoError(t, err)

	f.clk.Advance(2 * time.Hour)

	count, err := f.svc.ExpirePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	status, err := f.svc.Status(ctx, first.TopupID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, status.Status)

	status, err = f.svc.Status(ctx, second.TopupID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, status.Status)

	count, err = f.svc.ExpirePending(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

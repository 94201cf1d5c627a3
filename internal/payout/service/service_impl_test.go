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
	earnerdomain "github.com/satgate/satgate/internal/earner/domain"
	earnerrepo "github.com/satgate/satgate/internal/earner/repository"
	"github.com/satgate/satgate/internal/earnerctx"
	"github.com/satgate/satgate/internal/payout/domain"
	"github.com/satgate/satgate/internal/payout/repository"
	"github.com/satgate/satgate/internal/payout/service"
	raildomain "github.com/satgate/satgate/internal/rail/domain"
	"github.com/satgate/satgate/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// payRail succeeds unless an address is marked failing.
type payRail struct {
	mu      sync.Mutex
	seq     int
	failFor map[string]bool
}

func newPayRail() *payRail {
	return &payRail{failFor: make(map[string]bool)}
}

func (p *payRail) Name() string { return "paystub" }

func (p *payRail) CreateInvoice(ctx context.Context, amountSats int64, memo string) (*raildomain.Invoice, error) {
	return nil, raildomain.ErrUnavailable
}

func (p *payRail) GetInvoiceStatus(ctx context.Context, paymentHash string) (*raildomain.InvoiceStatus, error) {
	return nil, raildomain.ErrUnavailable
}

func (p *payRail) PayToAddress(ctx context.Context, address string, amountSats int64, memo string) (*raildomain.Payment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor[address] {
		return nil, raildomain.ErrPaymentFailed
	}
	p.seq++
	return &raildomain.Payment{
		PaymentHash: fmt.Sprintf("payhash%04d", p.seq),
		Preimage:    fmt.Sprintf("preimage%04d", p.seq),
		FeeSats:     2,
	}, nil
}

type fixture struct {
	db      *gorm.DB
	svc     domain.Service
	rail    *payRail
	earners earnerdomain.Repository
	node    *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:payout_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&earnerdomain.Earner{}, &domain.Payout{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	node, err := snowflake.NewNode(6)
	require.NoError(t, err)
	rail := newPayRail()
	earners := earnerrepo.Provide()

	svc := service.New(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		Fees: config.NewStaticFeeConfigHolder(config.FeesConfig{
			PlatformFeePercent: 5,
			VoucherTTLMinutes:  60,
			MinTopupSats:       10,
			SweepMinSats:       1000,
			InvoiceMemo:        "test",
		}),
		Repo:       repository.Provide(),
		EarnerRepo: earners,
		Rail:       rail,
	})

	return &fixture{db: db, svc: svc, rail: rail, earners: earners, node: node}
}

func (f *fixture) addEarner(t *testing.T, balance int64, address string, platform, optIn bool) *earnerdomain.Earner {
	t.Helper()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	earner := &earnerdomain.Earner{
		ID:            f.node.Generate(),
		Name:          "e",
		Role:          earnerdomain.RoleEarner,
		PayoutAddress: address,
		Balance:       balance,
		IsPlatform:    platform,
		SweepOptIn:    optIn,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.earners.Insert(context.Background(), f.db, earner))
	return earner
}

func earnerContext(e *earnerdomain.Earner) context.Context {
	return earnerctx.WithEarner(context.Background(), e)
}

func TestRequestPayout(t *testing.T) {
	f := newFixture(t)
	earner := f.addEarner(t, 5000, "me@wallet.example", false, false)
	ctx := earnerContext(earner)

	payout, err := f.svc.Request(ctx, domain.RequestPayout{Amount: 2000})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, payout.Status)
	assert.Equal(t, "me@wallet.example", payout.Address)
	assert.NotEmpty(t, payout.PaymentHash)
	assert.NotEmpty(t, payout.Preimage)
	assert.Equal(t, int64(2), payout.FeeSats)
	require.NotNil(t, payout.CompletedAt)

	after, err := f.earners.FindByID(ctx, f.db, earner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), after.Balance)
	assert.Zero(t, after.Reserved)

	list, err := f.svc.List(ctx, pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, list.Payouts, 1)
	assert.Equal(t, payout.ID, list.Payouts[0].ID)
}

func TestRequestPayoutInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	earner := f.addEarner(t, 100, "me@wallet.example", false, false)
	ctx := earnerContext(earner)

	_, err := f.svc.Request(ctx, domain.RequestPayout{Amount: 2000})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	after, err := f.earners.FindByID(ctx, f.db, earner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), after.Balance)
	assert.Zero(t, after.Reserved)

	list, err := f.svc.List(ctx, pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, list.Payouts, 1)
	assert.Equal(t, domain.StatusFailed, list.Payouts[0].Status)
	assert.Equal(t, "insufficient_balance", list.Payouts[0].FailureReason)
}

func TestRequestPayoutRailFailureReleasesReservation(t *testing.T) {
	f := newFixture(t)
	earner := f.addEarner(t, 5000, "me@wallet.example", false, false)
	ctx := earnerContext(earner)
	f.rail.failFor["me@wallet.example"] = true

	_, err := f.svc.Request(ctx, domain.RequestPayout{Amount: 2000})
	assert.ErrorIs(t, err, raildomain.ErrPaymentFailed)

	after, err := f.earners.FindByID(ctx, f.db, earner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), after.Balance, "failed payout must restore the balance")
	assert.Zero(t, after.Reserved)

	list, err := f.svc.List(ctx, pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, list.Payouts, 1)
	assert.Equal(t, domain.StatusFailed, list.Payouts[0].Status)
	assert.NotEmpty(t, list.Payouts[0].FailureReason)
}

func TestRequestPayoutValidation(t *testing.T) {
	f := newFixture(t)
	withAddress := f.addEarner(t, 5000, "me@wallet.example", false, false)
	noAddress := f.addEarner(t, 5000, "", false, false)

	_, err := f.svc.Request(earnerContext(withAddress), domain.RequestPayout{Amount: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.Request(earnerContext(noAddress), domain.RequestPayout{Amount: 100})
	assert.ErrorIs(t, err, domain.ErrNoPayoutAddress)

	_, err = f.svc.Request(context.Background(), domain.RequestPayout{Amount: 100})
	assert.ErrorIs(t, err, domain.ErrInvalidEarner)
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	platform := f.addEarner(t, 5000, "treasury@wallet.example", true, false)
	optedIn := f.addEarner(t, 1500, "optin@wallet.example", false, true)
	belowMin := f.addEarner(t, 500, "small@wallet.example", false, true)
	notOpted := f.addEarner(t, 9000, "big@wallet.example", false, false)

	result, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Attempted)
	assert.Equal(t, 2, result.Completed)
	assert.Zero(t, result.Failed)
	assert.Equal(t, int64(6500), result.TotalSats)

	for _, tc := range []struct {
		earner *earnerdomain.Earner
		want   int64
	}{
		{platform, 0},
		{optedIn, 0},
		{belowMin, 500},
		{notOpted, 9000},
	} {
		after, err := f.earners.FindByID(context.Background(), f.db, tc.earner.ID)
		require.NoError(t, err)
		assert.Equal(t, tc.want, after.Balance)
		assert.Zero(t, after.Reserved)
	}
}

func TestSweepRailFailure(t *testing.T) {
	f := newFixture(t)
	platform := f.addEarner(t, 5000, "treasury@wallet.example", true, false)
	f.rail.failFor["treasury@wallet.example"] = true

	result, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Attempted)
	assert.Zero(t, result.Completed)
	assert.Equal(t, 1, result.Failed)

	after, err := f.earners.FindByID(context.Background(), f.db, platform.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), after.Balance)
	assert.Zero(t, after.Reserved)
}

package service_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	apikeydomain "github.com/satgate/satgate/internal/apikey/domain"
	apikeyrepo "github.com/satgate/satgate/internal/apikey/repository"
	apikeyservice "github.com/satgate/satgate/internal/apikey/service"
	"github.com/satgate/satgate/internal/clock"
	"github.com/satgate/satgate/internal/config"
	"github.com/satgate/satgate/internal/earner/domain"
	"github.com/satgate/satgate/internal/earner/repository"
	"github.com/satgate/satgate/internal/earner/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:earner_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Earner{}))

	// scopes is text[] on postgres; sqlite stores the array literal as text.
	require.NoError(t, db.Exec(`CREATE TABLE api_keys (
		id BIGINT PRIMARY KEY,
		earner_id BIGINT NOT NULL,
		key_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		scopes TEXT NOT NULL,
		key_hash TEXT NOT NULL UNIQUE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		last_used_at TIMESTAMP,
		expires_at TIMESTAMP,
		rotated_from_key_id TEXT
	)`).Error)

	return db
}

func newTestService(t *testing.T, db *gorm.DB, cfg config.Config) (domain.Service, apikeydomain.Service, *clock.FakeClock) {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	apiKeys := apikeyservice.New(apikeyservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  apikeyrepo.Provide(),
	})

	svc := service.New(service.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Config:  cfg,
		Repo:    repository.Provide(),
		APIKeys: apiKeys,
	})

	return svc, apiKeys, clk
}

func TestRegisterCreatesEarnerWithAPIKey(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, apiKeys, _ := newTestService(t, db, config.Config{RegistrationOpen: true})

	resp, err := svc.Register(ctx, domain.RegisterRequest{
		Name:          "weather api team",
		PayoutAddress: "team@wallet.example",
	})
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.NotZero(t, resp.Earner.ID)
	assert.Equal(t, "weather api team", resp.Earner.Name)
	assert.Equal(t, domain.RoleEarner, resp.Earner.Role)
	assert.Equal(t, "team@wallet.example", resp.Earner.PayoutAddress)
	assert.True(t, strings.HasPrefix(resp.APIKey, "ak_"))
	assert.NotEmpty(t, resp.KeyID)

	got, err := svc.Get(ctx, resp.Earner.ID)
	require.NoError(t, err)
	assert.Equal(t, resp.Earner.Name, got.Name)
	assert.Zero(t, got.Balance)

	key, err := apiKeys.Resolve(ctx, resp.APIKey)
	require.NoError(t, err)
	assert.Equal(t, resp.Earner.ID, key.EarnerID)
	assert.True(t, key.HasScope(apikeydomain.ScopeGatewaysWrite))
	assert.True(t, key.HasScope(apikeydomain.ScopePayoutsWrite))
	assert.True(t, key.HasScope(apikeydomain.ScopeLogsRead))
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, _, _ := newTestService(t, db, config.Config{RegistrationOpen: true})

	_, err := svc.Register(ctx, domain.RegisterRequest{Name: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Register(ctx, domain.RegisterRequest{
		Name:          "ok",
		PayoutAddress: "not-an-address",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPayoutAddress)
}

func TestRegisterClosed(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, _, _ := newTestService(t, db, config.Config{RegistrationOpen: false})

	_, err := svc.Register(ctx, domain.RegisterRequest{Name: "late arrival"})
	assert.ErrorIs(t, err, domain.ErrRegistrationClosed)
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, _, _ := newTestService(t, db, config.Config{RegistrationOpen: true})

	resp, err := svc.Register(ctx, domain.RegisterRequest{Name: "before"})
	require.NoError(t, err)

	name := "after"
	address := "payout@wallet.example"
	optIn := true
	updated, err := svc.UpdateProfile(ctx, resp.Earner.ID, domain.UpdateProfileRequest{
		Name:          &name,
		PayoutAddress: &address,
		SweepOptIn:    &optIn,
	})
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Name)
	assert.Equal(t, "payout@wallet.example", updated.PayoutAddress)
	assert.True(t, updated.SweepOptIn)

	bad := "nope"
	_, err = svc.UpdateProfile(ctx, resp.Earner.ID, domain.UpdateProfileRequest{PayoutAddress: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidPayoutAddress)

	_, err = svc.UpdateProfile(ctx, snowflake.ID(12345), domain.UpdateProfileRequest{Name: &name})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEnsurePlatformIdempotent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, _, _ := newTestService(t, db, config.Config{
		RegistrationOpen:      true,
		PlatformPayoutAddress: "treasury@wallet.example",
	})

	first, err := svc.EnsurePlatform(ctx)
	require.NoError(t, err)
	assert.True(t, first.IsPlatform)
	assert.Equal(t, domain.RoleAdmin, first.Role)
	assert.Equal(t, "treasury@wallet.example", first.PayoutAddress)

	second, err := svc.EnsurePlatform(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&domain.Earner{}).Where("is_platform = ?", true).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestBalanceReservations(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	id := node.Generate()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Insert(ctx, db, &domain.Earner{
		ID:        id,
		Name:      "ledger",
		Role:      domain.RoleEarner,
		CreatedAt: now,
		UpdatedAt: now,
	}))

	require.NoError(t, repo.Credit(ctx, db, id, 100))

	ok, err := repo.Reserve(ctx, db, id, 150)
	require.NoError(t, err)
	assert.False(t, ok, "reserve beyond balance must not apply")

	ok, err = repo.Reserve(ctx, db, id, 60)
	require.NoError(t, err)
	require.True(t, ok)

	earner, err := repo.FindByID(ctx, db, id)
	require.NoError(t, err)
	assert.Equal(t, int64(40), earner.Balance)
	assert.Equal(t, int64(60), earner.Reserved)

	ok, err = repo.FinalizeReservation(ctx, db, id, 60)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.Reserve(ctx, db, id, 30)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.ReleaseReservation(ctx, db, id, 30)
	require.NoError(t, err)
	require.True(t, ok)

	earner, err = repo.FindByID(ctx, db, id)
	require.NoError(t, err)
	assert.Equal(t, int64(40), earner.Balance)
	assert.Zero(t, earner.Reserved)
}

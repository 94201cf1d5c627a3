package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/satgate/satgate/internal/earnerctx"
	gatewaydomain "github.com/satgate/satgate/internal/gateway/domain"
	gatewayrepo "github.com/satgate/satgate/internal/gateway/repository"
	"github.com/satgate/satgate/internal/requestlog/domain"
	"github.com/satgate/satgate/internal/requestlog/repository"
	"github.com/satgate/satgate/internal/requestlog/service"
	"github.com/satgate/satgate/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	earnerdomain "github.com/satgate/satgate/internal/earner/domain"
)

type fixture struct {
	db   *gorm.DB
	svc  domain.Service
	repo domain.Repository
	node *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:requestlog_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&gatewaydomain.Gateway{}, &domain.Entry{}))

	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	repo := repository.Provide()

	svc := service.New(service.Params{
		DB:          db,
		Log:         zap.NewNop(),
		Repo:        repo,
		GatewayRepo: gatewayrepo.Provide(),
	})

	return &fixture{db: db, svc: svc, repo: repo, node: node}
}

func (f *fixture) addGateway(t *testing.T, id string, ownerID snowflake.ID) {
	t.Helper()

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, gatewayrepo.Provide().Insert(context.Background(), f.db, &gatewaydomain.Gateway{
		ID:        id,
		OwnerID:   ownerID,
		Name:      id,
		TargetURL: "https://" + id + ".example",
		Rules:     datatypes.JSON("[]"),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

func (f *fixture) addEntry(t *testing.T, gatewayID string, cost, earnerShare, platformShare int64, at time.Time) {
	t.Helper()

	sessionID := f.node.Generate()
	require.NoError(t, f.repo.Insert(context.Background(), f.db, &domain.Entry{
		ID:             f.node.Generate(),
		GatewayID:      gatewayID,
		SessionID:      &sessionID,
		Cost:           cost,
		EarnerShare:    earnerShare,
		PlatformShare:  platformShare,
		Method:         "GET",
		Path:           "/data",
		UpstreamStatus: 200,
		CreatedAt:      at,
	}))
}

func ownerCtx(id snowflake.ID) context.Context {
	return earnerctx.WithEarner(context.Background(), &earnerdomain.Earner{
		ID:   id,
		Role: earnerdomain.RoleEarner,
	})
}

func TestListForGateway(t *testing.T) {
	f := newFixture(t)
	owner := snowflake.ID(11)
	f.addGateway(t, "gw-a", owner)

	base := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		f.addEntry(t, "gw-a", 10, 9, 1, base.Add(time.Duration(i)*time.Minute))
	}

	resp, err := f.svc.ListForGateway(ownerCtx(owner), "gw-a", pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, resp.Entries, 3)
	// Newest first.
	assert.True(t, resp.Entries[0].CreatedAt.After(resp.Entries[2].CreatedAt))
	for _, entry := range resp.Entries {
		assert.Equal(t, entry.Cost, entry.EarnerShare+entry.PlatformShare)
	}
}

func TestListForGatewayOwnership(t *testing.T) {
	f := newFixture(t)
	f.addGateway(t, "gw-a", snowflake.ID(11))

	_, err := f.svc.ListForGateway(ownerCtx(snowflake.ID(22)), "gw-a", pagination.Pagination{})
	assert.ErrorIs(t, err, gatewaydomain.ErrNotOwner)

	_, err = f.svc.ListForGateway(ownerCtx(snowflake.ID(11)), "missing", pagination.Pagination{})
	assert.ErrorIs(t, err, gatewaydomain.ErrNotFound)

	admin := earnerctx.WithEarner(context.Background(), &earnerdomain.Earner{
		ID:   snowflake.ID(33),
		Role: earnerdomain.RoleAdmin,
	})
	_, err = f.svc.ListForGateway(admin, "gw-a", pagination.Pagination{})
	assert.NoError(t, err)
}

func TestStatement(t *testing.T) {
	f := newFixture(t)
	owner := snowflake.ID(11)
	other := snowflake.ID(22)
	f.addGateway(t, "gw-a", owner)
	f.addGateway(t, "gw-b", owner)
	f.addGateway(t, "gw-other", other)

	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	inside := from.Add(10 * 24 * time.Hour)

	f.addEntry(t, "gw-a", 10, 9, 1, inside)
	f.addEntry(t, "gw-a", 10, 9, 1, inside.Add(time.Hour))
	f.addEntry(t, "gw-b", 100, 95, 5, inside)
	f.addEntry(t, "gw-other", 50, 48, 2, inside)
	// Outside the period.
	f.addEntry(t, "gw-a", 10, 9, 1, to.Add(time.Hour))
	f.addEntry(t, "gw-a", 10, 9, 1, from.Add(-time.Hour))

	statement, err := f.svc.Statement(ownerCtx(owner), from, to)
	require.NoError(t, err)
	require.Len(t, statement.Rows, 2)

	// Ordered by gross, descending.
	assert.Equal(t, "gw-b", statement.Rows[0].GatewayID)
	assert.Equal(t, int64(1), statement.Rows[0].Requests)
	assert.Equal(t, int64(100), statement.Rows[0].GrossSats)
	assert.Equal(t, int64(5), statement.Rows[0].FeeSats)
	assert.Equal(t, int64(95), statement.Rows[0].NetSats)

	assert.Equal(t, "gw-a", statement.Rows[1].GatewayID)
	assert.Equal(t, int64(2), statement.Rows[1].Requests)
	assert.Equal(t, int64(20), statement.Rows[1].GrossSats)

	assert.Equal(t, int64(3), statement.TotalRequests)
	assert.Equal(t, int64(120), statement.TotalGross)
	assert.Equal(t, int64(7), statement.TotalFees)
	assert.Equal(t, int64(113), statement.TotalNet)
}

package authz_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/satgate/satgate/internal/authz"
	earnerdomain "github.com/satgate/satgate/internal/earner/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db   *gorm.DB
	svc  authz.Service
	node *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:authz_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&earnerdomain.Earner{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	enforcer, err := authz.NewEnforcer(db)
	require.NoError(t, err)

	node, err := snowflake.NewNode(11)
	require.NoError(t, err)

	svc := authz.NewService(authz.Params{
		DB:       db,
		Log:      zap.NewNop(),
		Enforcer: enforcer,
	})
	return &fixture{db: db, svc: svc, node: node}
}

func (f *fixture) addEarner(t *testing.T, role string) snowflake.ID {
	t.Helper()
	earner := &earnerdomain.Earner{
		ID:   f.node.Generate(),
		Name: "someone",
		Role: role,
	}
	require.NoError(t, f.db.Create(earner).Error)
	return earner.ID
}

func TestAuthorizeEarnerRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.addEarner(t, earnerdomain.RoleEarner)
	actor := fmt.Sprintf("earner:%d", id)

	assert.NoError(t, f.svc.Authorize(ctx, actor, authz.ObjectGateway, authz.ActionGatewayCreate))
	assert.NoError(t, f.svc.Authorize(ctx, actor, authz.ObjectPayout, authz.ActionPayoutRequest))
	assert.NoError(t, f.svc.Authorize(ctx, actor, authz.ObjectStatement, authz.ActionStatementView))

	assert.ErrorIs(t, f.svc.Authorize(ctx, actor, authz.ObjectSweep, authz.ActionSweepRun), authz.ErrForbidden)
	assert.ErrorIs(t, f.svc.Authorize(ctx, actor, authz.ObjectEarner, authz.ActionEarnerList), authz.ErrForbidden)
}

func TestAuthorizeAdminInheritsEarner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.addEarner(t, earnerdomain.RoleAdmin)
	actor := fmt.Sprintf("earner:%d", id)

	assert.NoError(t, f.svc.Authorize(ctx, actor, authz.ObjectSweep, authz.ActionSweepRun))
	assert.NoError(t, f.svc.Authorize(ctx, actor, authz.ObjectEarner, authz.ActionEarnerList))
	assert.NoError(t, f.svc.Authorize(ctx, actor, authz.ObjectGateway, authz.ActionGatewayCreate))
}

func TestAuthorizeSystemActor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.NoError(t, f.svc.Authorize(ctx, "system", authz.ObjectSweep, authz.ActionSweepRun))
	assert.ErrorIs(t, f.svc.Authorize(ctx, "system", authz.ObjectGateway, authz.ActionGatewayCreate), authz.ErrForbidden)
}

func TestAuthorizeRejectsBadActors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.ErrorIs(t, f.svc.Authorize(ctx, "", authz.ObjectGateway, authz.ActionGatewayView), authz.ErrInvalidActor)
	assert.ErrorIs(t, f.svc.Authorize(ctx, "user:42", authz.ObjectGateway, authz.ActionGatewayView), authz.ErrInvalidActor)
	assert.ErrorIs(t, f.svc.Authorize(ctx, "earner:notanid", authz.ObjectGateway, authz.ActionGatewayView), authz.ErrInvalidActor)

	actor := fmt.Sprintf("earner:%d", f.node.Generate())
	assert.ErrorIs(t, f.svc.Authorize(ctx, actor, authz.ObjectGateway, authz.ActionGatewayView), authz.ErrForbidden)

	id := f.addEarner(t, earnerdomain.RoleEarner)
	known := fmt.Sprintf("earner:%d", id)
	assert.ErrorIs(t, f.svc.Authorize(ctx, known, "", authz.ActionGatewayView), authz.ErrInvalidObject)
	assert.ErrorIs(t, f.svc.Authorize(ctx, known, authz.ObjectGateway, ""), authz.ErrInvalidAction)
}

func TestAuthorizeFollowsRoleChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.addEarner(t, earnerdomain.RoleEarner)
	actor := fmt.Sprintf("earner:%d", id)

	assert.ErrorIs(t, f.svc.Authorize(ctx, actor, authz.ObjectSweep, authz.ActionSweepRun), authz.ErrForbidden)

	require.NoError(t, f.db.Model(&earnerdomain.Earner{}).
		Where("id = ?", id).
		Update("role", earnerdomain.RoleAdmin).Error)

	assert.NoError(t, f.svc.Authorize(ctx, actor, authz.ObjectSweep, authz.ActionSweepRun))

	require.NoError(t, f.db.Model(&earnerdomain.Earner{}).
		Where("id = ?", id).
		Update("role", earnerdomain.RoleEarner).Error)

	assert.ErrorIs(t, f.svc.Authorize(ctx, actor, authz.ObjectSweep, authz.ActionSweepRun), authz.ErrForbidden)
}

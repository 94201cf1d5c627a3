package service

import (
	"context"
	"time"

	"github.com/satgate/satgate/internal/earnerctx"
	gatewaydomain "github.com/satgate/satgate/internal/gateway/domain"
	"github.com/satgate/satgate/internal/requestlog/domain"
	"github.com/satgate/satgate/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Repo        domain.Repository
	GatewayRepo gatewaydomain.Repository
}

type service struct {
	db          *gorm.DB
	log         *zap.Logger
	repo        domain.Repository
	gatewayRepo gatewaydomain.Repository
}

func New(p Params) domain.Service {
	return &service{
		db:          p.DB,
		log:         p.Log.Named("requestlog.service"),
		repo:        p.Repo,
		gatewayRepo: p.GatewayRepo,
	}
}

func (s *service) ListForGateway(ctx context.Context, gatewayID string, page pagination.Pagination) (*domain.ListResponse, error) {
	gateway, err := s.gatewayRepo.FindByID(ctx, s.db, gatewayID)
	if err != nil {
		return nil, err
	}
	if gateway == nil {
		return nil, gatewaydomain.ErrNotFound
	}

	earner, ok := earnerctx.EarnerFromContext(ctx)
	if !ok {
		return nil, gatewaydomain.ErrInvalidEarner
	}
	if earner.ID != gateway.OwnerID && !earnerctx.IsAdmin(ctx) {
		return nil, gatewaydomain.ErrNotOwner
	}

	pageSize := page.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	page.PageSize = pageSize

	items, err := s.repo.ListByGateway(ctx, s.db, gatewayID, page)
	if err != nil {
		return nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(e *domain.Entry) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        e.ID.String(),
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	resp := &domain.ListResponse{Entries: items}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *service) Statement(ctx context.Context, from, to time.Time) (*domain.Statement, error) {
	earner, ok := earnerctx.EarnerFromContext(ctx)
	if !ok {
		return nil, gatewaydomain.ErrInvalidEarner
	}

	rows, err := s.repo.AggregateByOwner(ctx, s.db, earner.ID, from, to)
	if err != nil {
		return nil, err
	}

	statement := &domain.Statement{
		EarnerID: earner.ID,
		From:     from,
		To:       to,
		Rows:     rows,
	}
	for _, row := range rows {
		statement.TotalRequests += row.Requests
		statement.TotalGross += row.GrossSats
		statement.TotalFees += row.FeeSats
		statement.TotalNet += row.NetSats
	}
	return statement, nil
}

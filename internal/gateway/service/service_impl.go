package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/satgate/satgate/internal/clock"
	"github.com/satgate/satgate/internal/earnerctx"
	"github.com/satgate/satgate/internal/gateway/domain"
	"github.com/satgate/satgate/internal/pricer"
	"github.com/satgate/satgate/pkg/db"
	"github.com/satgate/satgate/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &service{
		db:    p.DB,
		log:   p.Log.Named("gateway.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Gateway, error) {
	earner, ok := earnerctx.EarnerFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidEarner
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	target := strings.TrimSpace(req.TargetURL)
	if !validTarget(target) {
		return nil, domain.ErrInvalidTarget
	}
	if req.DefaultPrice < 0 {
		return nil, domain.ErrInvalidPrice
	}
	if err := pricer.Validate(req.Rules); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRules, err)
	}

	rules, err := marshalRules(req.Rules)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRules, err)
	}

	id, err := s.newID(ctx, name)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	gateway := &domain.Gateway{
		ID:           id,
		OwnerID:      earner.ID,
		Name:         name,
		Description:  strings.TrimSpace(req.Description),
		TargetURL:    target,
		DefaultPrice: req.DefaultPrice,
		Rules:        rules,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, gateway); err != nil {
		// Concurrent creates can slip past the newID lookup.
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrAlreadyExists
		}
		return nil, err
	}

	s.log.Info("gateway created",
		zap.String("gateway_id", gateway.ID),
		zap.String("owner_id", gateway.OwnerID.String()),
		zap.Int64("default_price", gateway.DefaultPrice),
	)
	return gateway, nil
}

func (s *service) Get(ctx context.Context, id string) (*domain.Gateway, error) {
	gateway, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if gateway == nil {
		return nil, domain.ErrNotFound
	}
	if err := s.requireOwner(ctx, gateway, true); err != nil {
		return nil, err
	}
	return gateway, nil
}

func (s *service) List(ctx context.Context, page pagination.Pagination) (*domain.ListResponse, error) {
	earner, ok := earnerctx.EarnerFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidEarner
	}

	pageSize := page.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	page.PageSize = pageSize

	items, err := s.repo.ListByOwner(ctx, s.db, earner.ID, page)
	if err != nil {
		return nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(g *domain.Gateway) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        g.ID,
			CreatedAt: g.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	resp := &domain.ListResponse{Gateways: items}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *service) Update(ctx context.Context, id string, req domain.UpdateRequest) (*domain.Gateway, error) {
	gateway, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if gateway == nil {
		return nil, domain.ErrNotFound
	}
	if err := s.requireOwner(ctx, gateway, false); err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		gateway.Name = name
	}
	if req.Description != nil {
		gateway.Description = strings.TrimSpace(*req.Description)
	}
	if req.TargetURL != nil {
		target := strings.TrimSpace(*req.TargetURL)
		if !validTarget(target) {
			return nil, domain.ErrInvalidTarget
		}
		gateway.TargetURL = target
	}
	if req.DefaultPrice != nil {
		if *req.DefaultPrice < 0 {
			return nil, domain.ErrInvalidPrice
		}
		gateway.DefaultPrice = *req.DefaultPrice
	}
	if req.Rules != nil {
		if err := pricer.Validate(*req.Rules); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRules, err)
		}
		rules, err := marshalRules(*req.Rules)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRules, err)
		}
		gateway.Rules = rules
	}
	gateway.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, gateway); err != nil {
		return nil, err
	}
	return gateway, nil
}

func (s *service) Activate(ctx context.Context, id string) (*domain.Gateway, error) {
	return s.setActive(ctx, id, true, false)
}

// Deactivate is open to admins as well so abusive gateways can be pulled.
func (s *service) Deactivate(ctx context.Context, id string) (*domain.Gateway, error) {
	return s.setActive(ctx, id, false, true)
}

func (s *service) Resolve(ctx context.Context, id string) (*domain.Gateway, error) {
	gateway, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if gateway == nil {
		return nil, domain.ErrNotFound
	}
	if !gateway.IsActive {
		return nil, domain.ErrInactive
	}
	return gateway, nil
}

func (s *service) setActive(ctx context.Context, id string, active, allowAdmin bool) (*domain.Gateway, error) {
	gateway, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if gateway == nil {
		return nil, domain.ErrNotFound
	}
	if err := s.requireOwner(ctx, gateway, allowAdmin); err != nil {
		return nil, err
	}

	if gateway.IsActive == active {
		return gateway, nil
	}
	if err := s.repo.SetActive(ctx, s.db, id, active); err != nil {
		return nil, err
	}
	gateway.IsActive = active
	gateway.UpdatedAt = s.clock.Now()

	s.log.Info("gateway active flag changed",
		zap.String("gateway_id", id),
		zap.Bool("active", active),
	)
	return gateway, nil
}

func (s *service) requireOwner(ctx context.Context, gateway *domain.Gateway, allowAdmin bool) error {
	earner, ok := earnerctx.EarnerFromContext(ctx)
	if !ok {
		return domain.ErrInvalidEarner
	}
	if earner.ID == gateway.OwnerID {
		return nil
	}
	if allowAdmin && earnerctx.IsAdmin(ctx) {
		return nil
	}
	return domain.ErrNotOwner
}

// newID derives the public id from the display name, suffixing on collision.
func (s *service) newID(ctx context.Context, name string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		return "", domain.ErrInvalidName
	}

	id := base
	for attempt := 0; attempt < 5; attempt++ {
		existing, err := s.repo.FindByID(ctx, s.db, id)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return id, nil
		}
		id = base + "-" + shortSuffix(s.genID.Generate())
	}
	return "", fmt.Errorf("could not allocate gateway id for %q", name)
}

func shortSuffix(id snowflake.ID) string {
	b36 := strings.ToLower(id.Base36())
	if len(b36) > 4 {
		b36 = b36[len(b36)-4:]
	}
	return b36
}

func validTarget(raw string) bool {
	if raw == "" {
		return false
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	if parsed.Host == "" || parsed.User != nil {
		return false
	}
	return true
}

func marshalRules(rules []pricer.Rule) (datatypes.JSON, error) {
	if len(rules) == 0 {
		return datatypes.JSON("[]"), nil
	}
	out, err := json.Marshal(rules)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(out), nil
}

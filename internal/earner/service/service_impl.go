package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/satgate/satgate/internal/apikey/domain"
	"github.com/satgate/satgate/internal/clock"
	"github.com/satgate/satgate/internal/config"
	"github.com/satgate/satgate/internal/earner/domain"
	"github.com/satgate/satgate/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  config.Config
	Repo    domain.Repository
	APIKeys apikeydomain.Service
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	cfg     config.Config
	repo    domain.Repository
	apiKeys apikeydomain.Service
}

func New(p Params) domain.Service {
	return &service{
		db:      p.DB,
		log:     p.Log.Named("earner.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		cfg:     p.Config,
		repo:    p.Repo,
		apiKeys: p.APIKeys,
	}
}

// Register creates the account and its first API key in one transaction so a
// failed key insert never leaves an orphaned earner.
func (s *service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.RegisterResponse, error) {
	if !s.cfg.RegistrationOpen {
		return nil, domain.ErrRegistrationClosed
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	address := strings.TrimSpace(req.PayoutAddress)
	if address != "" && !validPayoutAddress(address) {
		return nil, domain.ErrInvalidPayoutAddress
	}

	now := s.clock.Now()
	earner := &domain.Earner{
		ID:            s.genID.Generate(),
		Name:          name,
		Role:          domain.RoleEarner,
		PayoutAddress: address,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var secret *apikeydomain.SecretResponse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, earner); err != nil {
			return err
		}

		created, err := s.apiKeys.CreateForEarner(ctx, tx, earner.ID, "default")
		if err != nil {
			return err
		}
		secret = created
		return nil
	})
	if err != nil {
		s.log.Error("failed to register earner", zap.Error(err))
		return nil, err
	}

	s.log.Info("earner registered",
		zap.String("earner_id", earner.ID.String()),
		zap.String("key_id", secret.KeyID),
	)

	return &domain.RegisterResponse{
		Earner: *earner,
		KeyID:  secret.KeyID,
		APIKey: secret.APIKey,
	}, nil
}

func (s *service) Get(ctx context.Context, id snowflake.ID) (*domain.Earner, error) {
	earner, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if earner == nil {
		return nil, domain.ErrNotFound
	}
	return earner, nil
}

func (s *service) UpdateProfile(ctx context.Context, id snowflake.ID, req domain.UpdateProfileRequest) (*domain.Earner, error) {
	earner, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if earner == nil {
		return nil, domain.ErrNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		earner.Name = name
	}
	if req.PayoutAddress != nil {
		address := strings.TrimSpace(*req.PayoutAddress)
		if address != "" && !validPayoutAddress(address) {
			return nil, domain.ErrInvalidPayoutAddress
		}
		earner.PayoutAddress = address
	}
	if req.SweepOptIn != nil {
		earner.SweepOptIn = *req.SweepOptIn
	}
	earner.UpdatedAt = s.clock.Now()

	if err := s.repo.UpdateProfile(ctx, s.db, earner); err != nil {
		return nil, err
	}
	return earner, nil
}

func (s *service) List(ctx context.Context, page pagination.Pagination) (*domain.ListResponse, error) {
	pageSize := page.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	page.PageSize = pageSize

	items, err := s.repo.List(ctx, s.db, page)
	if err != nil {
		return nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(e *domain.Earner) string {
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

	resp := &domain.ListResponse{Earners: items}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// EnsurePlatform creates the platform ledger account on first boot. Fee
// shares settle into this row, so it must exist before any request is
// proxied.
func (s *service) EnsurePlatform(ctx context.Context) (*domain.Earner, error) {
	platform, err := s.repo.FindPlatform(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if platform != nil {
		return platform, nil
	}

	now := s.clock.Now()
	platform = &domain.Earner{
		ID:            s.genID.Generate(),
		Name:          "platform",
		Role:          domain.RoleAdmin,
		PayoutAddress: s.cfg.PlatformPayoutAddress,
		IsPlatform:    true,
		SweepOptIn:    true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, s.db, platform); err != nil {
		return nil, err
	}

	s.log.Info("platform account created", zap.String("earner_id", platform.ID.String()))
	return platform, nil
}

// validPayoutAddress accepts lightning addresses in user@host form.
func validPayoutAddress(address string) bool {
	local, host, ok := strings.Cut(address, "@")
	return ok && local != "" && host != ""
}

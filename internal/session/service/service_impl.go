package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/satgate/satgate/internal/clock"
	"github.com/satgate/satgate/internal/earnerctx"
	"github.com/satgate/satgate/internal/session/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
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
		log:   p.Log.Named("session.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateRequest) (*domain.CreateResponse, error) {
	plain, hash, err := domain.GenerateToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	session := &domain.Session{
		ID:        s.genID.Generate(),
		TokenHash: hash,
		Name:      strings.TrimSpace(req.Name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	// A caller authenticated with an API key gets the session linked to
	// their account; anonymous browsers do not.
	if earnerID, ok := earnerctx.EarnerIDFromContext(ctx); ok {
		session.OwnerID = &earnerID
	}

	if err := s.repo.Insert(ctx, s.db, session); err != nil {
		return nil, err
	}

	s.log.Info("session created", zap.String("session_id", session.ID.String()))
	return &domain.CreateResponse{
		SessionID: session.ID,
		Token:     plain,
		Balance:   session.Balance,
	}, nil
}

func (s *service) Get(ctx context.Context, id snowflake.ID) (*domain.Session, error) {
	session, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrNotFound
	}
	return session, nil
}

func (s *service) Resolve(ctx context.Context, rawToken string) (*domain.Session, error) {
	rawToken = strings.TrimSpace(rawToken)
	if !domain.LooksLikeToken(rawToken) {
		return nil, domain.ErrInvalidToken
	}

	session, err := s.repo.FindByTokenHash(ctx, s.db, domain.HashToken(rawToken))
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrInvalidToken
	}
	return session, nil
}

func (s *service) Balance(ctx context.Context, rawToken string) (*domain.BalanceResponse, error) {
	session, err := s.Resolve(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	return &domain.BalanceResponse{
		SessionID: session.ID,
		Balance:   session.Balance,
		AsOf:      s.clock.Now(),
	}, nil
}

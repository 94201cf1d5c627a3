package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/satgate/satgate/internal/clock"
	"github.com/satgate/satgate/internal/config"
	"github.com/satgate/satgate/internal/metricspush"
	obsmetrics "github.com/satgate/satgate/internal/observability/metrics"
	raildomain "github.com/satgate/satgate/internal/rail/domain"
	sessiondomain "github.com/satgate/satgate/internal/session/domain"
	"github.com/satgate/satgate/internal/topup/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Fees        *config.FeeConfigHolder
	Repo        domain.Repository
	Sessions    sessiondomain.Service
	SessionRepo sessiondomain.Repository
	Rail        raildomain.Client
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	fees        *config.FeeConfigHolder
	repo        domain.Repository
	sessions    sessiondomain.Service
	sessionRepo sessiondomain.Repository
	rail        raildomain.Client
	obsMetrics  *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &service{
		db:          p.DB,
		log:         p.Log.Named("topup.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		fees:        p.Fees,
		repo:        p.Repo,
		sessions:    p.Sessions,
		sessionRepo: p.SessionRepo,
		rail:        p.Rail,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateRequest) (*domain.CreateResponse, error) {
	if req.Amount < s.fees.Get().MinTopupSats {
		return nil, domain.ErrAmountTooSmall
	}

	session, err := s.sessions.Resolve(ctx, req.SessionToken)
	if err != nil {
		return nil, err
	}
	return s.CreateForSession(ctx, session.ID, req.Amount)
}

// CreateForSession skips the public minimum: the challenge flow invoices the
// exact resolved price, which may sit below it.
func (s *service) CreateForSession(ctx context.Context, sessionID snowflake.ID, amount int64) (*domain.CreateResponse, error) {
	if amount <= 0 {
		return nil, domain.ErrAmountTooSmall
	}
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	invoice, err := s.rail.CreateInvoice(ctx, amount, s.fees.Get().InvoiceMemo)
	if err != nil {
		s.recordRailError(ctx, "create_invoice")
		return nil, err
	}

	now := s.clock.Now()
	topup := &domain.Topup{
		ID:             s.genID.Generate(),
		SessionID:      sessionID,
		Amount:         amount,
		PaymentHash:    invoice.PaymentHash,
		PaymentRequest: invoice.PaymentRequest,
		Status:         domain.StatusPending,
		ExpiresAt:      invoice.ExpiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, s.db, topup); err != nil {
		return nil, err
	}

	s.log.Info("topup created",
		zap.String("topup_id", topup.ID.String()),
		zap.String("session_id", sessionID.String()),
		zap.Int64("amount", amount),
	)
	return &domain.CreateResponse{
		TopupID:        topup.ID,
		SessionID:      topup.SessionID,
		Amount:         topup.Amount,
		PaymentHash:    topup.PaymentHash,
		PaymentRequest: topup.PaymentRequest,
		Status:         topup.Status,
		ExpiresAt:      topup.ExpiresAt,
	}, nil
}

func (s *service) Status(ctx context.Context, id snowflake.ID) (*domain.StatusResponse, error) {
	topup, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if topup == nil {
		return nil, domain.ErrNotFound
	}

	switch topup.Status {
	case domain.StatusPaid:
		return s.paidResponse(ctx, topup)
	case domain.StatusExpired:
		return &domain.StatusResponse{TopupID: topup.ID, Status: domain.StatusExpired}, nil
	}

	now := s.clock.Now()
	if now.After(topup.ExpiresAt) {
		if _, err := s.repo.MarkExpired(ctx, s.db, topup.ID); err != nil {
			return nil, err
		}
		return &domain.StatusResponse{TopupID: topup.ID, Status: domain.StatusExpired}, nil
	}

	status, err := s.rail.GetInvoiceStatus(ctx, topup.PaymentHash)
	if err != nil {
		s.recordRailError(ctx, "invoice_status")
		return nil, err
	}
	if !status.Settled {
		return &domain.StatusResponse{TopupID: topup.ID, Status: domain.StatusPending}, nil
	}

	// The status guard makes the credit exactly-once under concurrent polls.
	credited := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.repo.MarkPaid(ctx, tx, topup.ID, now)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		if err := s.sessionRepo.Credit(ctx, tx, topup.SessionID, topup.Amount); err != nil {
			return err
		}
		credited = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if credited {
		s.log.Info("topup paid",
			zap.String("topup_id", topup.ID.String()),
			zap.String("session_id", topup.SessionID.String()),
			zap.Int64("amount", topup.Amount),
		)
		if s.obsMetrics != nil {
			s.obsMetrics.RecordTopupPaid(ctx)
		}
		metricspush.RecordTopupPaid(topup.Amount)
	}
	return s.paidResponse(ctx, topup)
}

func (s *service) ExpirePending(ctx context.Context) (int64, error) {
	count, err := s.repo.ExpireBefore(ctx, s.db, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.log.Info("expired pending topups", zap.Int64("count", count))
	}
	return count, nil
}

func (s *service) paidResponse(ctx context.Context, topup *domain.Topup) (*domain.StatusResponse, error) {
	session, err := s.sessions.Get(ctx, topup.SessionID)
	if err != nil {
		return nil, err
	}
	balance := session.Balance
	return &domain.StatusResponse{
		TopupID:    topup.ID,
		Status:     domain.StatusPaid,
		NewBalance: &balance,
	}, nil
}

func (s *service) recordRailError(ctx context.Context, op string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordRailError(ctx, op)
	}
}

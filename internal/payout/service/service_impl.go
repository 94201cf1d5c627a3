package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/satgate/satgate/internal/clock"
	"github.com/satgate/satgate/internal/config"
	earnerdomain "github.com/satgate/satgate/internal/earner/domain"
	"github.com/satgate/satgate/internal/earnerctx"
	"github.com/satgate/satgate/internal/metricspush"
	obsmetrics "github.com/satgate/satgate/internal/observability/metrics"
	"github.com/satgate/satgate/internal/payout/domain"
	raildomain "github.com/satgate/satgate/internal/rail/domain"
	"github.com/satgate/satgate/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Fees       *config.FeeConfigHolder
	Repo       domain.Repository
	EarnerRepo earnerdomain.Repository
	Rail       raildomain.Client
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	fees       *config.FeeConfigHolder
	repo       domain.Repository
	earnerRepo earnerdomain.Repository
	rail       raildomain.Client
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &service{
		db:         p.DB,
		log:        p.Log.Named("payout.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		fees:       p.Fees,
		repo:       p.Repo,
		earnerRepo: p.EarnerRepo,
		rail:       p.Rail,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *service) Request(ctx context.Context, req domain.RequestPayout) (*domain.Payout, error) {
	earner, ok := earnerctx.EarnerFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidEarner
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	address := strings.TrimSpace(req.Address)
	if address == "" {
		address = earner.PayoutAddress
	}
	if !strings.Contains(address, "@") {
		return nil, domain.ErrNoPayoutAddress
	}

	payout, err := s.execute(ctx, earner.ID, req.Amount, address, false)
	if err != nil {
		return nil, err
	}
	return payout, nil
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

	items, err := s.repo.ListByEarner(ctx, s.db, earner.ID, page)
	if err != nil {
		return nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(p *domain.Payout) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        p.ID.String(),
			CreatedAt: p.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	resp := &domain.ListResponse{Payouts: items}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// Sweep pays the platform account and opted-in earners down to zero. A rail
// failure for one account releases its reservation and moves on; only
// infrastructure errors abort the run.
func (s *service) Sweep(ctx context.Context) (*domain.SweepResult, error) {
	minBalance := s.fees.Get().SweepMinSats
	earners, err := s.earnerRepo.ListSweepable(ctx, s.db, minBalance)
	if err != nil {
		return nil, err
	}

	result := &domain.SweepResult{}
	for _, earner := range earners {
		amount := earner.Balance
		if amount <= 0 {
			continue
		}
		result.Attempted++

		_, err := s.execute(ctx, earner.ID, amount, earner.PayoutAddress, true)
		if err != nil {
			if isRailError(err) {
				result.Failed++
				continue
			}
			return result, err
		}
		result.Completed++
		result.TotalSats += amount
	}

	if result.Attempted > 0 {
		s.log.Info("sweep finished",
			zap.Int("attempted", result.Attempted),
			zap.Int("completed", result.Completed),
			zap.Int("failed", result.Failed),
			zap.Int64("total_sats", result.TotalSats),
		)
	}
	return result, nil
}

// execute runs the two-phase payout: reserve, pay, finalize or release.
func (s *service) execute(ctx context.Context, earnerID snowflake.ID, amount int64, address string, isSweep bool) (*domain.Payout, error) {
	now := s.clock.Now()
	payout := &domain.Payout{
		ID:        s.genID.Generate(),
		EarnerID:  earnerID,
		Amount:    amount,
		Address:   address,
		Status:    domain.StatusPending,
		IsSweep:   isSweep,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, payout); err != nil {
		return nil, err
	}

	reserved, err := s.earnerRepo.Reserve(ctx, s.db, earnerID, amount)
	if err != nil {
		return nil, err
	}
	if !reserved {
		if err := s.repo.MarkFailed(ctx, s.db, payout.ID, "insufficient_balance"); err != nil {
			return nil, err
		}
		return nil, domain.ErrInsufficientBalance
	}

	memo := fmt.Sprintf("satgate payout %s", payout.ID.String())
	payment, railErr := s.rail.PayToAddress(ctx, address, amount, memo)
	if railErr != nil {
		s.recordRailError(ctx, "pay_to_address")
		if cleanupErr := s.releaseFailed(ctx, payout.ID, earnerID, amount, railErr); cleanupErr != nil {
			return nil, cleanupErr
		}
		s.recordPayout(ctx, domain.StatusFailed, amount)
		s.log.Warn("payout failed",
			zap.String("payout_id", payout.ID.String()),
			zap.String("earner_id", earnerID.String()),
			zap.Int64("amount", amount),
			zap.Error(railErr),
		)
		return nil, railErr
	}

	completedAt := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		finalized, err := s.earnerRepo.FinalizeReservation(ctx, tx, earnerID, amount)
		if err != nil {
			return err
		}
		if !finalized {
			return errors.New("payout reservation missing at finalize")
		}
		return s.repo.MarkCompleted(ctx, tx, payout.ID, payment.PaymentHash, payment.Preimage, payment.FeeSats, completedAt)
	})
	if err != nil {
		// The rail payment went through but the ledger did not record it.
		s.log.Error("payout settled on rail but finalize failed",
			zap.String("payout_id", payout.ID.String()),
			zap.String("earner_id", earnerID.String()),
			zap.Int64("amount", amount),
			zap.String("payment_hash", payment.PaymentHash),
			zap.Error(err),
		)
		return nil, err
	}

	payout.Status = domain.StatusCompleted
	payout.PaymentHash = payment.PaymentHash
	payout.Preimage = payment.Preimage
	payout.FeeSats = payment.FeeSats
	payout.CompletedAt = &completedAt
	payout.UpdatedAt = completedAt

	s.recordPayout(ctx, domain.StatusCompleted, amount)
	s.log.Info("payout completed",
		zap.String("payout_id", payout.ID.String()),
		zap.String("earner_id", earnerID.String()),
		zap.Int64("amount", amount),
		zap.Int64("fee_sats", payment.FeeSats),
	)
	return payout, nil
}

func (s *service) releaseFailed(ctx context.Context, payoutID, earnerID snowflake.ID, amount int64, railErr error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		released, err := s.earnerRepo.ReleaseReservation(ctx, tx, earnerID, amount)
		if err != nil {
			return err
		}
		if !released {
			return errors.New("payout reservation missing at release")
		}
		return s.repo.MarkFailed(ctx, tx, payoutID, railErr.Error())
	})
	if err != nil {
		s.log.Error("payout failure cleanup failed",
			zap.String("payout_id", payoutID.String()),
			zap.String("earner_id", earnerID.String()),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
	}
	return err
}

func isRailError(err error) bool {
	return errors.Is(err, raildomain.ErrUnavailable) ||
		errors.Is(err, raildomain.ErrPaymentFailed) ||
		errors.Is(err, raildomain.ErrInvalidAddress) ||
		errors.Is(err, raildomain.ErrInvalidAmount)
}

func (s *service) recordPayout(ctx context.Context, outcome string, amount int64) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordPayout(ctx, outcome)
	}
	metricspush.RecordPayout(outcome, amount)
}

func (s *service) recordRailError(ctx context.Context, op string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordRailError(ctx, op)
	}
}

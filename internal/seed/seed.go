package seed

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	earnerdomain "github.com/satgate/satgate/internal/earner/domain"
	gatewaydomain "github.com/satgate/satgate/internal/gateway/domain"
	"github.com/satgate/satgate/internal/pricer"
	sessiondomain "github.com/satgate/satgate/internal/session/domain"
)

const (
	platformName = "platform"

	demoEarnerName  = "Demo Earner"
	demoGatewayID   = "demo-api"
	demoSessionName = "demo session"
	demoBalance     = 1000
)

// EnsurePlatform seeds the singleton account platform fees accrue to.
// The payout address follows config so a changed PLATFORM_PAYOUT_ADDRESS
// takes effect on restart.
func EnsurePlatform(db *gorm.DB, payoutAddress string) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	address := strings.TrimSpace(payoutAddress)
	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var platform earnerdomain.Earner
		err := tx.WithContext(ctx).Where("is_platform = ?", true).First(&platform).Error
		if err == nil {
			if address == "" || platform.PayoutAddress == address {
				return nil
			}
			return tx.WithContext(ctx).Model(&earnerdomain.Earner{}).
				Where("id = ?", platform.ID).
				Updates(map[string]any{
					"payout_address": address,
					"updated_at":     time.Now().UTC(),
				}).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC()
		platform = earnerdomain.Earner{
			ID:            node.Generate(),
			Name:          platformName,
			Role:          earnerdomain.RoleAdmin,
			PayoutAddress: address,
			IsPlatform:    true,
			SweepOptIn:    true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return tx.WithContext(ctx).Create(&platform).Error
	})
}

// EnsureDemo seeds a demo earner, a gateway in front of httpbin and a
// funded session. The session token is logged exactly once, on the run
// that creates it.
func EnsureDemo(db *gorm.DB, log *zap.Logger) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	var demoToken string
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		earner, err := ensureDemoEarnerTx(ctx, tx, node)
		if err != nil {
			return err
		}
		if err := ensureDemoGatewayTx(ctx, tx, node, earner.ID); err != nil {
			return err
		}
		demoToken, err = ensureDemoSessionTx(ctx, tx, node)
		return err
	})
	if err != nil {
		return err
	}

	if demoToken != "" {
		log.Info("seeded demo session",
			zap.String("gateway", "/g/"+demoGatewayID+"/"),
			zap.String("session_token", demoToken),
		)
	}
	return nil
}

func ensureDemoEarnerTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (earnerdomain.Earner, error) {
	var earner earnerdomain.Earner
	err := tx.WithContext(ctx).
		Where("name = ? AND is_platform = ?", demoEarnerName, false).
		First(&earner).Error
	if err == nil {
		return earner, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return earner, err
	}

	now := time.Now().UTC()
	earner = earnerdomain.Earner{
		ID:        node.Generate(),
		Name:      demoEarnerName,
		Role:      earnerdomain.RoleEarner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&earner).Error; err != nil {
		return earner, err
	}
	return earner, nil
}

func ensureDemoGatewayTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, ownerID snowflake.ID) error {
	var gateway gatewaydomain.Gateway
	err := tx.WithContext(ctx).Where("id = ?", demoGatewayID).First(&gateway).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	rules, err := json.Marshal([]pricer.Rule{
		{Pattern: "/status/**", Price: 0, Description: "status probes stay free"},
		{Pattern: "/delay/**", Price: 5},
	})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	gateway = gatewaydomain.Gateway{
		ID:           demoGatewayID,
		OwnerID:      ownerID,
		Name:         "Demo API",
		Description:  "httpbin behind the paywall, for trying the flow end to end",
		TargetURL:    "https://httpbin.org",
		DefaultPrice: 1,
		Rules:        rules,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return tx.WithContext(ctx).Create(&gateway).Error
}

func ensureDemoSessionTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (string, error) {
	var session sessiondomain.Session
	err := tx.WithContext(ctx).Where("name = ?", demoSessionName).First(&session).Error
	if err == nil {
		// The raw token only exists on the creating run.
		return "", nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	plain, hash, err := sessiondomain.GenerateToken()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	session = sessiondomain.Session{
		ID:        node.Generate(),
		TokenHash: hash,
		Name:      demoSessionName,
		Balance:   demoBalance,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&session).Error; err != nil {
		return "", err
	}
	return plain, nil
}

package migration

import (
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/satgate/satgate/internal/config"
	"github.com/satgate/satgate/internal/seed"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if strings.EqualFold(cfg.DBType, "postgres") {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else if err := AutoMigrate(conn); err != nil {
			return err
		}

		if err := seed.EnsurePlatform(conn, cfg.PlatformPayoutAddress); err != nil {
			return err
		}
		if cfg.SeedDemo {
			return seed.EnsureDemo(conn, log)
		}
		return nil
	}),
)

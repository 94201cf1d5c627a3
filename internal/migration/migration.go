package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"

	apikeydomain "github.com/satgate/satgate/internal/apikey/domain"
	earnerdomain "github.com/satgate/satgate/internal/earner/domain"
	gatewaydomain "github.com/satgate/satgate/internal/gateway/domain"
	payoutdomain "github.com/satgate/satgate/internal/payout/domain"
	requestlogdomain "github.com/satgate/satgate/internal/requestlog/domain"
	sessiondomain "github.com/satgate/satgate/internal/session/domain"
	topupdomain "github.com/satgate/satgate/internal/topup/domain"
)

// This migration package makes satgate usable out of the box for local
// and self-hosted deployments. All core tables are created on startup.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate builds the schema through gorm for non-postgres databases,
// which the SQL migration files do not target.
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	return conn.AutoMigrate(
		&earnerdomain.Earner{},
		&sessiondomain.Session{},
		&apikeydomain.APIKey{},
		&gatewaydomain.Gateway{},
		&topupdomain.Topup{},
		&requestlogdomain.Entry{},
		&payoutdomain.Payout{},
	)
}

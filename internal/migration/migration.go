package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/smallbiznis/bazaar/internal/config"
	entitydomain "github.com/smallbiznis/bazaar/internal/entity/domain"
	memberdomain "github.com/smallbiznis/bazaar/internal/membership/domain"
	"github.com/smallbiznis/bazaar/internal/outbox"
	realmdomain "github.com/smallbiznis/bazaar/internal/realm/domain"
	userdomain "github.com/smallbiznis/bazaar/internal/user/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Models lists every table the application owns, in dependency order.
func Models() []any {
	return []any{
		&userdomain.User{},
		&realmdomain.Realm{},
		&memberdomain.Member{},
		&entitydomain.Store{},
		&entitydomain.Product{},
		&entitydomain.ProductCategory{},
		&entitydomain.CartItem{},
		&entitydomain.Order{},
		&outbox.Event{},
	}
}

// Run brings the schema up to date. Postgres uses the embedded SQL
// migrations; the local sqlite replica and mysql use AutoMigrate.
func Run(conn *gorm.DB, cfg config.Config) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if cfg.DBType != "postgres" {
		return conn.AutoMigrate(Models()...)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

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

package database

import (
	"database/sql"
	"fmt"

	"proxyflow/internal/config"
	"proxyflow/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// New opens the database connection, migrates the schema and installs the
// uniqueness constraints the alert/renewal dedup relies on.
func New(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var db *gorm.DB

	switch cfg.Type {
	case "sqlite":
		// Use pure Go SQLite driver (modernc.org/sqlite)
		sqlDB, err := sql.Open("sqlite", cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db, err = gorm.Open(sqlite.Dialector{
			Conn: sqlDB,
		}, &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize GORM: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate runs the schema migration and index creation. Split out so tests
// can run it against an in-memory database.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Proxy{},
		&models.RenewalHistory{},
		&models.ExpirationAlert{},
		&models.ProxyRenewal{},
		&models.ExpirationAnalytics{},
		&models.NotificationLog{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// At most one non-terminal alert per (proxy, alert type). The alert
	// engine also checks before inserting; the index closes the
	// check-then-insert race.
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_open_dedup
		ON expiration_alerts (proxy_id, alert_type)
		WHERE status IN ('pending', 'sent')`).Error; err != nil {
		return fmt.Errorf("failed to create alert dedup index: %w", err)
	}

	// At most one pending renewal per proxy, backing the
	// find-pending-or-create lookup in EnableAutoRenewal.
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_renewals_pending_dedup
		ON proxy_renewals (proxy_id)
		WHERE status = 'pending'`).Error; err != nil {
		return fmt.Errorf("failed to create renewal dedup index: %w", err)
	}

	return nil
}

package services

import (
	"database/sql"
	"testing"
	"time"

	"proxyflow/internal/database"
	"proxyflow/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

// newTestDB opens an isolated in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// A second pooled connection would see a different in-memory database
	sqlDB.SetMaxOpenConns(1)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func createUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{Email: email, IsActive: true}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createProxy(t *testing.T, db *gorm.DB, userID uint, proxyType, status string, expiresAt time.Time) *models.Proxy {
	t.Helper()
	proxy := &models.Proxy{
		UserID:       userID,
		Type:         proxyType,
		Host:         "203.0.113.10",
		Port:         8080,
		Protocol:     "http",
		Username:     "lease",
		Password:     "secret",
		PackageName:  "starter",
		PackagePrice: 15.0,
		PurchasedAt:  expiresAt.Add(-30 * 24 * time.Hour),
		ExpiresAt:    expiresAt,
		Status:       status,
	}
	require.NoError(t, db.Create(proxy).Error)
	return proxy
}

// testNotify builds a notify service with every external channel disabled,
// so delivery succeeds without touching the network.
func testNotify(t *testing.T, db *gorm.DB) *NotifyService {
	t.Helper()
	return &NotifyService{db: db, sendTimeout: time.Second}
}

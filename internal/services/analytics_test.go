package services

import (
	"encoding/json"
	"testing"
	"time"

	"proxyflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateExpirationAnalyticsEmptyStore(t *testing.T) {
	db := newTestDB(t)

	svc := NewAnalyticsService(db)
	snapshot, err := svc.GenerateExpirationAnalytics()
	require.NoError(t, err)

	assert.Zero(t, snapshot.TotalActiveProxies)
	assert.Zero(t, snapshot.TotalExpiringProxies)
	assert.Zero(t, snapshot.TotalExpiredProxies)
	assert.Zero(t, snapshot.AverageRenewalRate)
	assert.Zero(t, snapshot.RenewalRevenue)
	assert.Zero(t, snapshot.AverageRenewalValue)
}

func TestGenerateExpirationAnalytics(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "owner@example.com")
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	createProxy(t, db, user.ID, models.ProxyTypeISP, models.ProxyStatusActive, now.Add(30*24*time.Hour))
	createProxy(t, db, user.ID, models.ProxyTypeISP, models.ProxyStatusExpiringSoon, now.Add(3*24*time.Hour))
	createProxy(t, db, user.ID, models.ProxyTypeResidential, models.ProxyStatusExpired, now.Add(-24*time.Hour))
	createProxy(t, db, user.ID, models.ProxyTypeDatacenter, models.ProxyStatusRenewed, now.Add(20*24*time.Hour))
	// Flagged expiring but outside the window: dropped by the double guard
	createProxy(t, db, user.ID, models.ProxyTypeISP, models.ProxyStatusExpiringSoon, now.Add(20*24*time.Hour))

	require.NoError(t, db.Create(&models.RenewalHistory{
		ProxyID: 1, RenewedAt: now, DurationDays: 7, Cost: 5.0,
	}).Error)
	require.NoError(t, db.Create(&models.RenewalHistory{
		ProxyID: 1, RenewedAt: now, DurationDays: 30, Cost: 15.0,
	}).Error)

	svc := NewAnalyticsService(db)
	svc.now = func() time.Time { return now }

	snapshot, err := svc.GenerateExpirationAnalytics()
	require.NoError(t, err)

	assert.Equal(t, int64(1), snapshot.TotalActiveProxies)
	assert.Equal(t, int64(1), snapshot.TotalExpiringProxies)
	assert.Equal(t, int64(1), snapshot.TotalExpiredProxies)
	assert.InDelta(t, 20.0, snapshot.AverageRenewalRate, 0.001) // 1 renewed of 5
	assert.InDelta(t, 20.0, snapshot.RenewalRevenue, 0.001)
	assert.InDelta(t, 10.0, snapshot.AverageRenewalValue, 0.001)

	var byType map[string]TypeStats
	require.NoError(t, json.Unmarshal([]byte(snapshot.ByType), &byType))
	assert.Equal(t, int64(3), byType[models.ProxyTypeISP].Total)
	assert.Equal(t, int64(1), byType[models.ProxyTypeResidential].Expired)
	assert.Equal(t, int64(1), byType[models.ProxyTypeDatacenter].Renewed)

	// Snapshots append, never overwrite
	_, err = svc.GenerateExpirationAnalytics()
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.ExpirationAnalytics{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestUserExpirationSummary(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "owner@example.com")
	other := createUser(t, db, "other@example.com")
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	createProxy(t, db, user.ID, models.ProxyTypeISP, models.ProxyStatusActive, now.Add(30*24*time.Hour))
	createProxy(t, db, user.ID, models.ProxyTypeResidential, models.ProxyStatusExpiringSoon, now.Add(2*24*time.Hour))
	createProxy(t, db, user.ID, models.ProxyTypeDatacenter, models.ProxyStatusExpired, now.Add(-24*time.Hour))
	createProxy(t, db, other.ID, models.ProxyTypeISP, models.ProxyStatusActive, now.Add(10*24*time.Hour))

	svc := NewAnalyticsService(db)
	svc.now = func() time.Time { return now }

	summary, err := svc.UserExpirationSummary(user.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalProxies)
	assert.Equal(t, 1, summary.Active)
	assert.Equal(t, 1, summary.ExpiringSoon)
	assert.Equal(t, 1, summary.Expired)

	// Expired proxies are excluded; soonest expiry first
	require.Len(t, summary.NextExpirations, 2)
	assert.Equal(t, models.ProxyTypeResidential, summary.NextExpirations[0].Type)
	assert.Equal(t, 2, summary.NextExpirations[0].DaysRemaining)

	assert.Len(t, summary.Recommendations, 2)
	assert.Equal(t, int64(1), summary.ByType[models.ProxyTypeResidential].ExpiringSoon)
	assert.Equal(t, int64(1), summary.ByType[models.ProxyTypeDatacenter].Expired)
}

func TestStatsByTypeIncludesEmptyTypes(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "owner@example.com")
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	createProxy(t, db, user.ID, models.ProxyTypeISP, models.ProxyStatusActive, now.Add(30*24*time.Hour))

	svc := NewAnalyticsService(db)
	stats, err := svc.StatsByType()
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats[models.ProxyTypeISP].Total)
	assert.Contains(t, stats, models.ProxyTypeResidential)
	assert.Contains(t, stats, models.ProxyTypeDatacenter)
	assert.Zero(t, stats[models.ProxyTypeResidential].Total)
}

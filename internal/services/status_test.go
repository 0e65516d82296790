package services

import (
	"testing"
	"time"

	"proxyflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateProxyStatuses(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "owner@example.com")

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	expired := createProxy(t, db, user.ID, models.ProxyTypeISP, models.ProxyStatusActive, now.Add(-48*time.Hour))
	expiring := createProxy(t, db, user.ID, models.ProxyTypeResidential, models.ProxyStatusActive, now.Add(3*24*time.Hour))
	healthy := createProxy(t, db, user.ID, models.ProxyTypeDatacenter, models.ProxyStatusActive, now.Add(30*24*time.Hour))
	// Expiry already extended outside the renewal engine
	extended := createProxy(t, db, user.ID, models.ProxyTypeISP, models.ProxyStatusExpiringSoon, now.Add(20*24*time.Hour))
	// Sticky renewed status inside the expiring window
	renewed := createProxy(t, db, user.ID, models.ProxyTypeISP, models.ProxyStatusRenewed, now.Add(2*24*time.Hour))

	svc := NewStatusService(db)
	svc.now = func() time.Time { return now }

	require.NoError(t, svc.UpdateProxyStatuses())

	assert.Equal(t, models.ProxyStatusExpired, reloadProxy(t, svc, expired.ID).Status)
	assert.Equal(t, models.ProxyStatusExpiringSoon, reloadProxy(t, svc, expiring.ID).Status)
	assert.Equal(t, models.ProxyStatusActive, reloadProxy(t, svc, healthy.ID).Status)
	assert.Equal(t, models.ProxyStatusActive, reloadProxy(t, svc, extended.ID).Status)
	assert.Equal(t, models.ProxyStatusRenewed, reloadProxy(t, svc, renewed.ID).Status)
}

func TestUpdateProxyStatusesIdempotent(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "owner@example.com")

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	createProxy(t, db, user.ID, models.ProxyTypeISP, models.ProxyStatusActive, now.Add(-time.Hour))
	createProxy(t, db, user.ID, models.ProxyTypeResidential, models.ProxyStatusActive, now.Add(5*24*time.Hour))
	createProxy(t, db, user.ID, models.ProxyTypeDatacenter, models.ProxyStatusActive, now.Add(60*24*time.Hour))

	svc := NewStatusService(db)
	svc.now = func() time.Time { return now }

	require.NoError(t, svc.UpdateProxyStatuses())

	var first []models.Proxy
	require.NoError(t, db.Order("id").Find(&first).Error)

	// Second run with the same clock must not change anything
	require.NoError(t, svc.UpdateProxyStatuses())

	var second []models.Proxy
	require.NoError(t, db.Order("id").Find(&second).Error)
	assert.Equal(t, first, second)
}

func reloadProxy(t *testing.T, svc *StatusService, id uint) *models.Proxy {
	t.Helper()
	var proxy models.Proxy
	require.NoError(t, svc.db.First(&proxy, id).Error)
	return &proxy
}

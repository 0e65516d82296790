package services

import (
	"fmt"
	"log"
	"time"

	"proxyflow/internal/models"

	"gorm.io/gorm"
)

// StatusService recomputes proxy lifecycle statuses from expiry dates.
type StatusService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStatusService creates a new status service
func NewStatusService(db *gorm.DB) *StatusService {
	return &StatusService{db: db, now: time.Now}
}

// UpdateProxyStatuses applies the three bulk transitions, in order:
// past-expiry records become expired, active records inside the 7-day
// window become expiring_soon, and expiring_soon records whose expiry
// moved back out of the window return to active. The second rule only
// fires from active, so a renewed record keeps its status until the next
// purchase cycle resets it. Idempotent; safe to run on a fixed interval.
func (s *StatusService) UpdateProxyStatuses() error {
	now := s.now()
	windowEnd := now.Add(models.ExpiringSoonWindow)

	if err := s.db.Model(&models.Proxy{}).
		Where("expires_at < ? AND status <> ?", now, models.ProxyStatusExpired).
		Updates(map[string]interface{}{"status": models.ProxyStatusExpired, "updated_at": now}).Error; err != nil {
		return fmt.Errorf("failed to mark expired proxies: %w", err)
	}

	if err := s.db.Model(&models.Proxy{}).
		Where("expires_at >= ? AND expires_at <= ? AND status = ?", now, windowEnd, models.ProxyStatusActive).
		Updates(map[string]interface{}{"status": models.ProxyStatusExpiringSoon, "updated_at": now}).Error; err != nil {
		return fmt.Errorf("failed to mark expiring proxies: %w", err)
	}

	// An expiry extended outside the renewal engine (e.g. a manual fix)
	// puts the record back to active.
	if err := s.db.Model(&models.Proxy{}).
		Where("expires_at > ? AND status = ?", windowEnd, models.ProxyStatusExpiringSoon).
		Updates(map[string]interface{}{"status": models.ProxyStatusActive, "updated_at": now}).Error; err != nil {
		return fmt.Errorf("failed to restore active proxies: %w", err)
	}

	log.Println("Proxy statuses updated")
	return nil
}

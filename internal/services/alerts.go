package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"proxyflow/internal/models"

	"gorm.io/gorm"
)

// AlertService creates and delivers one-time expiration alerts at fixed
// day thresholds before expiry.
type AlertService struct {
	db     *gorm.DB
	notify *NotifyService
	now    func() time.Time
}

// NewAlertService creates a new alert service
func NewAlertService(db *gorm.DB, notify *NotifyService) *AlertService {
	return &AlertService{db: db, notify: notify, now: time.Now}
}

// CreateExpirationAlerts scans active and expiring proxies and creates at
// most one open alert per (proxy, threshold type). A proxy that crossed a
// threshold between runs still gets the alert once its days remaining are
// at or below it. Repeated runs within the same day create nothing new.
func (s *AlertService) CreateExpirationAlerts() ([]models.ExpirationAlert, error) {
	var proxies []models.Proxy
	if err := s.db.Where("status IN ?", []string{models.ProxyStatusActive, models.ProxyStatusExpiringSoon}).
		Find(&proxies).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch proxies: %w", err)
	}

	now := s.now()
	var alerts []models.ExpirationAlert

	for i := range proxies {
		proxy := &proxies[i]
		daysRemaining := proxy.DaysUntilExpiration(now)

		if daysRemaining <= 7 && daysRemaining > 0 {
			if open, err := s.hasOpenAlert(proxy.ID, models.AlertType7Days); err != nil {
				return nil, err
			} else if !open {
				alerts = append(alerts, s.buildAlert(proxy, models.AlertType7Days, daysRemaining))
			}
		}

		if daysRemaining <= 3 && daysRemaining > 0 {
			if open, err := s.hasOpenAlert(proxy.ID, models.AlertType3Days); err != nil {
				return nil, err
			} else if !open {
				alerts = append(alerts, s.buildAlert(proxy, models.AlertType3Days, daysRemaining))
			}
		}

		if daysRemaining == 1 {
			if open, err := s.hasOpenAlert(proxy.ID, models.AlertType1Day); err != nil {
				return nil, err
			} else if !open {
				alerts = append(alerts, s.buildAlert(proxy, models.AlertType1Day, daysRemaining))
			}
		}

		if proxy.IsExpired(now) {
			if open, err := s.hasOpenAlert(proxy.ID, models.AlertTypeExpired); err != nil {
				return nil, err
			} else if !open {
				alerts = append(alerts, s.buildAlert(proxy, models.AlertTypeExpired, 0))
			}
		}
	}

	if len(alerts) > 0 {
		if err := s.db.Create(&alerts).Error; err != nil {
			return nil, fmt.Errorf("failed to insert alerts: %w", err)
		}
		log.Printf("Created %d expiration alerts", len(alerts))
	}

	return alerts, nil
}

// hasOpenAlert reports whether a non-terminal alert of the given type
// exists for the proxy. The partial unique index in the database backs
// this check against concurrent inserts.
func (s *AlertService) hasOpenAlert(proxyID uint, alertType string) (bool, error) {
	var count int64
	err := s.db.Model(&models.ExpirationAlert{}).
		Where("proxy_id = ? AND alert_type = ? AND status IN ?",
			proxyID, alertType, []string{models.AlertStatusPending, models.AlertStatusSent}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check existing alerts: %w", err)
	}
	return count > 0, nil
}

func (s *AlertService) buildAlert(proxy *models.Proxy, alertType string, daysRemaining int) models.ExpirationAlert {
	return models.ExpirationAlert{
		ProxyID:       proxy.ID,
		UserID:        proxy.UserID,
		AlertType:     alertType,
		Status:        models.AlertStatusPending,
		ProxyType:     proxy.Type,
		ExpiresAt:     proxy.ExpiresAt,
		DaysRemaining: daysRemaining,
		Price:         proxy.PackagePrice,
		NotifyEmail:   true,
		NotifyInApp:   true,
		NotifySMS:     false,
	}
}

// SendPendingAlerts attempts delivery for every pending alert. A failure
// on one alert is logged and skipped; the alert stays pending and is
// retried on the next scheduled run. Returns the number delivered.
func (s *AlertService) SendPendingAlerts() (int, error) {
	var alerts []models.ExpirationAlert
	if err := s.db.Where("status = ?", models.AlertStatusPending).Find(&alerts).Error; err != nil {
		return 0, fmt.Errorf("failed to fetch pending alerts: %w", err)
	}

	sentCount := 0

	for i := range alerts {
		alert := &alerts[i]

		var user models.User
		if err := s.db.First(&user, alert.UserID).Error; err != nil {
			log.Printf("Skipping alert %d: user %d not found", alert.ID, alert.UserID)
			continue
		}

		if err := s.notify.SendAlert(alert, &user); err != nil {
			log.Printf("Failed to send alert %d: %v", alert.ID, err)
			continue
		}

		now := s.now()
		alert.Status = models.AlertStatusSent
		alert.SentAt = &now
		if err := s.db.Save(alert).Error; err != nil {
			log.Printf("Failed to mark alert %d sent: %v", alert.ID, err)
			continue
		}
		sentCount++
	}

	log.Printf("Sent %d/%d pending alerts", sentCount, len(alerts))
	return sentCount, nil
}

// AcknowledgeAlert marks a delivered alert as read by the user.
func (s *AlertService) AcknowledgeAlert(alertID uint) (*models.ExpirationAlert, error) {
	var alert models.ExpirationAlert
	if err := s.db.First(&alert, alertID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to load alert: %w", err)
	}

	if alert.Status == models.AlertStatusAcknowledged {
		return nil, fmt.Errorf("%w: alert already acknowledged", ErrInvalidState)
	}

	now := s.now()
	alert.Status = models.AlertStatusAcknowledged
	alert.AcknowledgedAt = &now
	if err := s.db.Save(&alert).Error; err != nil {
		return nil, fmt.Errorf("failed to save alert: %w", err)
	}

	return &alert, nil
}

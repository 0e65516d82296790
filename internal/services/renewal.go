package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"proxyflow/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultDaysBeforeExpiry is the auto-renewal trigger applied to new
// renewal requests.
const DefaultDaysBeforeExpiry = 3

// RenewalService owns the renewal request lifecycle: creation, payment-
// gated processing and the scheduled auto-renewal sweep.
type RenewalService struct {
	db      *gorm.DB
	pricing *PricingService
	now     func() time.Time
}

// NewRenewalService creates a new renewal service
func NewRenewalService(db *gorm.DB, pricing *PricingService) *RenewalService {
	return &RenewalService{db: db, pricing: pricing, now: time.Now}
}

// CreateRenewalRequest builds a pending renewal for a proxy. The cost
// comes from the price book; userID is nil for system-initiated requests.
func (s *RenewalService) CreateRenewalRequest(proxyID uint, userID *uint, durationDays int, autoRenewal bool) (*models.ProxyRenewal, error) {
	var proxy models.Proxy
	if err := s.db.First(&proxy, proxyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProxyNotFound
		}
		return nil, fmt.Errorf("failed to load proxy: %w", err)
	}

	cost, err := s.pricing.RenewalCost(proxy.Type, durationDays)
	if err != nil {
		return nil, err
	}

	renewalType := models.RenewalTypeManual
	if autoRenewal {
		renewalType = models.RenewalTypeAuto
	}

	renewal := &models.ProxyRenewal{
		Reference:        uuid.NewString(),
		ProxyID:          proxyID,
		UserID:           userID,
		RenewalType:      renewalType,
		AutoRenewEnabled: autoRenewal,
		DaysBeforeExpiry: DefaultDaysBeforeExpiry,
		RenewalDuration:  durationDays,
		MaxAutoRenewals:  0,
		TimesAutoRenewed: 0,
		Cost:             cost,
		Status:           models.RenewalStatusPending,
	}

	if err := s.db.Create(renewal).Error; err != nil {
		// The partial unique index on pending renewals rejects a second
		// open request for the same proxy
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: a pending renewal already exists for proxy %d", ErrInvalidState, proxyID)
		}
		return nil, fmt.Errorf("failed to create renewal: %w", err)
	}

	log.Printf("Renewal request %s created for proxy %d", renewal.Reference, proxyID)
	return renewal, nil
}

// ProcessRenewal settles a renewal after its payment outcome. On failure
// the renewal is marked failed and the proxy is untouched. On success the
// expiry is extended relative to the stored expiry date (an already
// expired proxy renews forward from its old date, not from today), a
// history row is appended and the proxy returns to active. Proxy and
// renewal are written in one transaction.
func (s *RenewalService) ProcessRenewal(renewalID uint, paymentSuccessful bool) (*models.ProxyRenewal, error) {
	var renewal models.ProxyRenewal
	if err := s.db.First(&renewal, renewalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRenewalNotFound
		}
		return nil, fmt.Errorf("failed to load renewal: %w", err)
	}

	if renewal.Status == models.RenewalStatusCompleted || renewal.Status == models.RenewalStatusFailed {
		return nil, fmt.Errorf("%w: renewal already %s", ErrInvalidState, renewal.Status)
	}

	if !paymentSuccessful {
		renewal.Status = models.RenewalStatusFailed
		renewal.PaymentStatus = "failed"
		renewal.ErrorMessage = "payment failed"
		if err := s.db.Save(&renewal).Error; err != nil {
			return nil, fmt.Errorf("failed to save renewal: %w", err)
		}
		return &renewal, nil
	}

	var proxy models.Proxy
	if err := s.db.First(&proxy, renewal.ProxyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProxyNotFound
		}
		return nil, fmt.Errorf("failed to load proxy: %w", err)
	}

	now := s.now()
	previousExpiry := proxy.ExpiresAt
	newExpiry := previousExpiry.Add(time.Duration(renewal.RenewalDuration) * 24 * time.Hour)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		history := models.RenewalHistory{
			ProxyID:        proxy.ID,
			RenewedAt:      now,
			PreviousExpiry: previousExpiry,
			NewExpiry:      newExpiry,
			DurationDays:   renewal.RenewalDuration,
			Cost:           renewal.Cost,
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("failed to append renewal history: %w", err)
		}

		proxy.ExpiresAt = newExpiry
		proxy.Status = models.ProxyStatusActive
		proxy.RenewalReminderSentAt = nil
		if err := tx.Save(&proxy).Error; err != nil {
			return fmt.Errorf("failed to save proxy: %w", err)
		}

		renewal.Status = models.RenewalStatusCompleted
		renewal.PaymentStatus = "completed"
		renewal.CompletedAt = &now
		if err := tx.Save(&renewal).Error; err != nil {
			return fmt.Errorf("failed to save renewal: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Renewal %s completed for proxy %d, new expiry %s",
		renewal.Reference, proxy.ID, newExpiry.Format("2006-01-02"))
	return &renewal, nil
}

// EnableAutoRenewal turns on auto-renewal for a proxy, reusing an existing
// pending renewal if one exists. The partial unique index on pending
// renewals keeps concurrent enables from creating duplicates.
func (s *RenewalService) EnableAutoRenewal(proxyID uint, durationDays, daysBeforeExpiry int) (*models.ProxyRenewal, error) {
	var renewal models.ProxyRenewal
	err := s.db.Where("proxy_id = ? AND status = ?", proxyID, models.RenewalStatusPending).
		First(&renewal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			created, err := s.CreateRenewalRequest(proxyID, nil, durationDays, true)
			if err != nil {
				return nil, err
			}
			created.DaysBeforeExpiry = daysBeforeExpiry
			if err := s.db.Save(created).Error; err != nil {
				return nil, fmt.Errorf("failed to save renewal: %w", err)
			}
			return created, nil
		}
		return nil, fmt.Errorf("failed to look up pending renewal: %w", err)
	}

	renewal.AutoRenewEnabled = true
	renewal.RenewalDuration = durationDays
	renewal.DaysBeforeExpiry = daysBeforeExpiry
	if err := s.db.Save(&renewal).Error; err != nil {
		return nil, fmt.Errorf("failed to save renewal: %w", err)
	}

	log.Printf("Auto-renewal enabled for proxy %d", proxyID)
	return &renewal, nil
}

// ProcessScheduledAutoRenewals fires every armed auto-renewal whose proxy
// is exactly DaysBeforeExpiry days from expiry. The trigger is equality,
// not a window: a sweep cadence slower than daily can miss it. A failure
// on one renewal is logged and skipped. Returns the number processed.
func (s *RenewalService) ProcessScheduledAutoRenewals() (int, error) {
	var renewals []models.ProxyRenewal
	if err := s.db.Where("auto_renew_enabled = ? AND status IN ?",
		true, []string{models.RenewalStatusPending, models.RenewalStatusScheduled}).
		Find(&renewals).Error; err != nil {
		return 0, fmt.Errorf("failed to fetch auto-renewals: %w", err)
	}

	now := s.now()
	processedCount := 0

	for i := range renewals {
		renewal := &renewals[i]

		var proxy models.Proxy
		if err := s.db.First(&proxy, renewal.ProxyID).Error; err != nil {
			log.Printf("Skipping auto-renewal %s: proxy %d not found", renewal.Reference, renewal.ProxyID)
			continue
		}

		if proxy.DaysUntilExpiration(now) != renewal.DaysBeforeExpiry {
			continue
		}

		if renewal.MaxAutoRenewals > 0 && renewal.TimesAutoRenewed >= renewal.MaxAutoRenewals {
			log.Printf("Auto-renewal %s reached its cap of %d", renewal.Reference, renewal.MaxAutoRenewals)
			continue
		}

		renewal.Status = models.RenewalStatusProcessing
		renewal.ScheduledFor = &now
		if err := s.db.Save(renewal).Error; err != nil {
			log.Printf("Failed to mark auto-renewal %s processing: %v", renewal.Reference, err)
			continue
		}

		processed, err := s.ProcessRenewal(renewal.ID, true)
		if err != nil {
			log.Printf("Auto-renewal %s failed: %v", renewal.Reference, err)
			continue
		}

		// Re-arm for the next expiry window: the record stays enabled and
		// becomes eligible again once the proxy drifts back into range.
		processed.TimesAutoRenewed = renewal.TimesAutoRenewed + 1
		processed.Status = models.RenewalStatusScheduled
		if err := s.db.Save(processed).Error; err != nil {
			log.Printf("Failed to record auto-renewal count for %s: %v", renewal.Reference, err)
			continue
		}

		processedCount++
		log.Printf("Auto-renewal processed for proxy %d", proxy.ID)
	}

	return processedCount, nil
}

// RenewalsForUser returns a user's renewal records, newest first.
func (s *RenewalService) RenewalsForUser(userID uint) ([]models.ProxyRenewal, error) {
	var renewals []models.ProxyRenewal
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&renewals).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch renewals: %w", err)
	}
	return renewals, nil
}

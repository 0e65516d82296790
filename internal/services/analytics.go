package services

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"proxyflow/internal/models"

	"gorm.io/gorm"
)

// TypeStats is the per-type bucket of a stats rollup.
type TypeStats struct {
	Total        int64 `json:"total"`
	Active       int64 `json:"active"`
	ExpiringSoon int64 `json:"expiring_soon"`
	Expired      int64 `json:"expired"`
	Renewed      int64 `json:"renewed"`
}

// typeStatsRow is the raw grouped-query row.
type typeStatsRow struct {
	Type         string
	Total        int64
	Active       int64
	ExpiringSoon int64
	Expired      int64
	Renewed      int64
}

// NextExpiration is one upcoming expiry in a user summary.
type NextExpiration struct {
	ID            uint      `json:"id"`
	Type          string    `json:"type"`
	ExpiresAt     time.Time `json:"expires_at"`
	DaysRemaining int       `json:"days_remaining"`
	Status        string    `json:"status"`
}

// UserSummary aggregates one user's proxy expiration picture.
type UserSummary struct {
	TotalProxies    int                  `json:"total_proxies"`
	Active          int                  `json:"active"`
	ExpiringSoon    int                  `json:"expiring_soon"`
	Expired         int                  `json:"expired"`
	ByType          map[string]TypeStats `json:"by_type"`
	NextExpirations []NextExpiration     `json:"next_expirations"`
	Recommendations []string             `json:"recommendations"`
}

// AnalyticsService produces point-in-time rollups of expiration and
// renewal activity.
type AnalyticsService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(db *gorm.DB) *AnalyticsService {
	return &AnalyticsService{db: db, now: time.Now}
}

// StatsByType returns the per-type grouped counts, with all three types
// present even when empty.
func (s *AnalyticsService) StatsByType() (map[string]TypeStats, error) {
	rows, err := s.statsRows()
	if err != nil {
		return nil, err
	}

	stats := map[string]TypeStats{
		models.ProxyTypeISP:         {},
		models.ProxyTypeResidential: {},
		models.ProxyTypeDatacenter:  {},
	}
	for _, row := range rows {
		stats[row.Type] = TypeStats{
			Total:        row.Total,
			Active:       row.Active,
			ExpiringSoon: row.ExpiringSoon,
			Expired:      row.Expired,
			Renewed:      row.Renewed,
		}
	}
	return stats, nil
}

func (s *AnalyticsService) statsRows() ([]typeStatsRow, error) {
	var rows []typeStatsRow
	err := s.db.Model(&models.Proxy{}).
		Select(`type,
			COUNT(*) AS total,
			SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END) AS active,
			SUM(CASE WHEN status = 'expiring_soon' THEN 1 ELSE 0 END) AS expiring_soon,
			SUM(CASE WHEN status = 'expired' THEN 1 ELSE 0 END) AS expired,
			SUM(CASE WHEN status = 'renewed' THEN 1 ELSE 0 END) AS renewed`).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query stats by type: %w", err)
	}
	return rows, nil
}

// GenerateExpirationAnalytics computes the rollup and appends one
// immutable snapshot. Rates guard against empty sets.
func (s *AnalyticsService) GenerateExpirationAnalytics() (*models.ExpirationAnalytics, error) {
	now := s.now()
	windowEnd := now.Add(models.ExpiringSoonWindow)

	byType, err := s.StatsByType()
	if err != nil {
		return nil, err
	}

	var totalActive int64
	for _, stats := range byType {
		totalActive += stats.Active
	}

	// Double-guarded against the status updater's own window: counted as
	// expiring only when both flagged and actually inside the window.
	var totalExpiring int64
	if err := s.db.Model(&models.Proxy{}).
		Where("expires_at >= ? AND expires_at <= ? AND status = ?",
			now, windowEnd, models.ProxyStatusExpiringSoon).
		Count(&totalExpiring).Error; err != nil {
		return nil, fmt.Errorf("failed to count expiring proxies: %w", err)
	}

	var totalExpired int64
	if err := s.db.Model(&models.Proxy{}).
		Where("status = ?", models.ProxyStatusExpired).
		Count(&totalExpired).Error; err != nil {
		return nil, fmt.Errorf("failed to count expired proxies: %w", err)
	}

	var renewedCount, totalCount int64
	if err := s.db.Model(&models.Proxy{}).
		Where("status = ?", models.ProxyStatusRenewed).
		Count(&renewedCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count renewed proxies: %w", err)
	}
	if err := s.db.Model(&models.Proxy{}).Count(&totalCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count proxies: %w", err)
	}

	renewalRate := 0.0
	if totalCount > 0 {
		renewalRate = float64(renewedCount) / float64(totalCount) * 100
	}

	// One history row exists per completed renewal execution, including
	// every cycle of a re-armed auto-renewal.
	type revenueRow struct {
		Revenue float64
		Count   int64
	}
	var revenue revenueRow
	if err := s.db.Model(&models.RenewalHistory{}).
		Select("COALESCE(SUM(cost), 0) AS revenue, COUNT(*) AS count").
		Scan(&revenue).Error; err != nil {
		return nil, fmt.Errorf("failed to sum renewal revenue: %w", err)
	}

	averageValue := 0.0
	if revenue.Count > 0 {
		averageValue = revenue.Revenue / float64(revenue.Count)
	}

	byTypeJSON, err := json.Marshal(byType)
	if err != nil {
		return nil, fmt.Errorf("failed to encode type breakdown: %w", err)
	}

	snapshot := &models.ExpirationAnalytics{
		Date:                 now,
		ByType:               string(byTypeJSON),
		TotalActiveProxies:   totalActive,
		TotalExpiringProxies: totalExpiring,
		TotalExpiredProxies:  totalExpired,
		AverageRenewalRate:   renewalRate,
		RenewalRevenue:       revenue.Revenue,
		AverageRenewalValue:  averageValue,
	}

	if err := s.db.Create(snapshot).Error; err != nil {
		return nil, fmt.Errorf("failed to append analytics snapshot: %w", err)
	}

	log.Println("Expiration analytics snapshot generated")
	return snapshot, nil
}

// UserExpirationSummary builds the per-user expiration overview shown on
// the storefront dashboard.
func (s *AnalyticsService) UserExpirationSummary(userID uint) (*UserSummary, error) {
	var proxies []models.Proxy
	if err := s.db.Where("user_id = ?", userID).Find(&proxies).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch user proxies: %w", err)
	}

	now := s.now()
	summary := &UserSummary{
		TotalProxies: len(proxies),
		ByType: map[string]TypeStats{
			models.ProxyTypeISP:         {},
			models.ProxyTypeResidential: {},
			models.ProxyTypeDatacenter:  {},
		},
		NextExpirations: []NextExpiration{},
		Recommendations: []string{},
	}

	for i := range proxies {
		proxy := &proxies[i]
		daysRemaining := proxy.DaysUntilExpiration(now)

		if proxy.Status == models.ProxyStatusActive {
			summary.Active++
		}
		if proxy.IsExpiringSoon(now) {
			summary.ExpiringSoon++
		}
		if proxy.IsExpired(now) {
			summary.Expired++
		}

		stats := summary.ByType[proxy.Type]
		stats.Total++
		if proxy.IsExpiringSoon(now) {
			stats.ExpiringSoon++
		}
		if proxy.IsExpired(now) {
			stats.Expired++
		}
		summary.ByType[proxy.Type] = stats

		if !proxy.IsExpired(now) {
			summary.NextExpirations = append(summary.NextExpirations, NextExpiration{
				ID:            proxy.ID,
				Type:          proxy.Type,
				ExpiresAt:     proxy.ExpiresAt,
				DaysRemaining: daysRemaining,
				Status:        proxy.Status,
			})
		}
	}

	sort.Slice(summary.NextExpirations, func(i, j int) bool {
		return summary.NextExpirations[i].DaysRemaining < summary.NextExpirations[j].DaysRemaining
	})

	if summary.ExpiringSoon > 0 {
		summary.Recommendations = append(summary.Recommendations,
			fmt.Sprintf("%d proxy lease(s) expire within 7 days", summary.ExpiringSoon))
	}
	if summary.Expired > 0 {
		summary.Recommendations = append(summary.Recommendations,
			fmt.Sprintf("%d proxy lease(s) have expired", summary.Expired))
	}

	return summary, nil
}

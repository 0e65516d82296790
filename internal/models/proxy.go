package models

import (
	"math"
	"time"
)

// Proxy lifecycle statuses
const (
	ProxyStatusActive       = "active"
	ProxyStatusExpiringSoon = "expiring_soon"
	ProxyStatusExpired      = "expired"
	ProxyStatusRenewed      = "renewed"
)

// Proxy types
const (
	ProxyTypeISP         = "isp"
	ProxyTypeResidential = "residential"
	ProxyTypeDatacenter  = "datacenter"
)

// ExpiringSoonWindow is the look-ahead window used both by the status
// updater and the analytics double-guard.
const ExpiringSoonWindow = 7 * 24 * time.Hour

// Proxy represents a purchased proxy lease
type Proxy struct {
	ID     uint   `gorm:"primarykey" json:"id"`
	UserID uint   `gorm:"index;not null" json:"user_id"`
	Type   string `gorm:"index;not null" json:"type"` // isp/residential/datacenter

	// Connection credentials delivered by the upstream provisioning API
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	Username string `json:"username"`
	Password string `json:"-"`

	PackageName  string  `json:"package_name"`
	PackagePrice float64 `json:"package_price"`

	PurchasedAt           time.Time  `json:"purchased_at"`
	ExpiresAt             time.Time  `gorm:"index" json:"expires_at"`
	Status                string     `gorm:"index;default:active" json:"status"`
	RenewalReminderSentAt *time.Time `json:"renewal_reminder_sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DaysUntilExpiration returns the whole days left before expiry, rounded
// up: 6 days 1 hour counts as 7.
func (p *Proxy) DaysUntilExpiration(now time.Time) int {
	return int(math.Ceil(p.ExpiresAt.Sub(now).Hours() / 24))
}

// IsExpired reports whether the lease is past its expiry date.
func (p *Proxy) IsExpired(now time.Time) bool {
	return p.ExpiresAt.Before(now)
}

// IsExpiringSoon reports whether the lease expires within the alert window.
func (p *Proxy) IsExpiringSoon(now time.Time) bool {
	return !p.IsExpired(now) && !p.ExpiresAt.After(now.Add(ExpiringSoonWindow))
}

// StatusLabel returns a human readable status string.
func (p *Proxy) StatusLabel() string {
	switch p.Status {
	case ProxyStatusActive:
		return "Active"
	case ProxyStatusExpiringSoon:
		return "Expiring soon"
	case ProxyStatusExpired:
		return "Expired"
	case ProxyStatusRenewed:
		return "Renewed"
	default:
		return p.Status
	}
}

// RenewalHistory is an append-only record of one completed renewal.
type RenewalHistory struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	ProxyID        uint      `gorm:"index;not null" json:"proxy_id"`
	RenewedAt      time.Time `json:"renewed_at"`
	PreviousExpiry time.Time `json:"previous_expiry"`
	NewExpiry      time.Time `json:"new_expiry"`
	DurationDays   int       `json:"duration_days"`
	Cost           float64   `json:"cost"`
}

func (RenewalHistory) TableName() string {
	return "renewal_history"
}

// Alert types
const (
	AlertType7Days   = "7_days_before"
	AlertType3Days   = "3_days_before"
	AlertType1Day    = "1_day_before"
	AlertTypeExpired = "expired"
)

// Alert statuses
const (
	AlertStatusPending      = "pending"
	AlertStatusSent         = "sent"
	AlertStatusAcknowledged = "acknowledged"
)

// ExpirationAlert records one notification obligation. Proxy details are
// snapshotted at creation time so historical alerts stay meaningful after
// the proxy changes.
type ExpirationAlert struct {
	ID        uint   `gorm:"primarykey" json:"id"`
	ProxyID   uint   `gorm:"index;not null" json:"proxy_id"`
	UserID    uint   `gorm:"index;not null" json:"user_id"`
	AlertType string `gorm:"index;not null" json:"alert_type"`
	Status    string `gorm:"index;default:pending" json:"status"`

	// Snapshot of the proxy at alert creation time
	ProxyType     string    `json:"proxy_type"`
	ExpiresAt     time.Time `json:"expires_at"`
	DaysRemaining int       `json:"days_remaining"`
	Price         float64   `json:"price"`

	NotifyEmail bool `gorm:"default:true" json:"notify_email"`
	NotifyInApp bool `gorm:"default:true" json:"notify_in_app"`
	NotifySMS   bool `gorm:"default:false" json:"notify_sms"`

	CreatedAt      time.Time  `json:"created_at"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

// Renewal types
const (
	RenewalTypeManual = "manual_renewal"
	RenewalTypeAuto   = "auto_renewal"
)

// Renewal statuses
const (
	RenewalStatusPending    = "pending"
	RenewalStatusScheduled  = "scheduled"
	RenewalStatusProcessing = "processing"
	RenewalStatusCompleted  = "completed"
	RenewalStatusFailed     = "failed"
)

// ProxyRenewal is a renewal request/execution record. Auto-renewal records
// outlive a completed cycle and re-arm for the next expiry window.
type ProxyRenewal struct {
	ID          uint   `gorm:"primarykey" json:"id"`
	Reference   string `gorm:"uniqueIndex;not null" json:"reference"`
	ProxyID     uint   `gorm:"index;not null" json:"proxy_id"`
	UserID      *uint  `gorm:"index" json:"user_id,omitempty"` // nil for system-initiated
	RenewalType string `gorm:"not null" json:"renewal_type"`

	AutoRenewEnabled bool `gorm:"index" json:"auto_renew_enabled"`
	DaysBeforeExpiry int  `json:"days_before_expiry"`
	RenewalDuration  int  `json:"renewal_duration"`
	MaxAutoRenewals  int  `json:"max_auto_renewals"`
	TimesAutoRenewed int  `json:"times_auto_renewed"`

	Cost          float64    `json:"cost"`
	Status        string     `gorm:"index;default:pending" json:"status"`
	PaymentStatus string     `json:"payment_status"`
	ScheduledFor  *time.Time `json:"scheduled_for,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExpirationAnalytics is an immutable point-in-time rollup.
type ExpirationAnalytics struct {
	ID   uint      `gorm:"primarykey" json:"id"`
	Date time.Time `json:"date"`

	// Per-type breakdown serialized as JSON
	ByType string `json:"by_type"`

	TotalActiveProxies   int64   `json:"total_active_proxies"`
	TotalExpiringProxies int64   `json:"total_expiring_proxies"`
	TotalExpiredProxies  int64   `json:"total_expired_proxies"`
	AverageRenewalRate   float64 `json:"average_renewal_rate"`
	RenewalRevenue       float64 `json:"renewal_revenue"`
	AverageRenewalValue  float64 `json:"average_renewal_value"`

	CreatedAt time.Time `json:"created_at"`
}

// User is the owner of proxies and the target of alert delivery. Account
// management lives outside this service.
type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NotificationLog records one delivery attempt on one channel.
type NotificationLog struct {
	ID      uint      `gorm:"primarykey" json:"id"`
	AlertID uint      `gorm:"index" json:"alert_id"`
	Channel string    `json:"channel"` // email/webhook/telegram
	Status  string    `json:"status"`  // success/failed
	SentAt  time.Time `json:"sent_at"`
}

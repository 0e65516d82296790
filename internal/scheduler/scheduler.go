package scheduler

import (
	"log"
	"sync"

	"proxyflow/internal/config"
	"proxyflow/internal/services"

	"github.com/robfig/cron/v3"
)

// Scheduler drives the periodic sweeps. Each job carries its own
// run-in-progress guard: a tick that overlaps a still-running previous
// tick is skipped, since none of the sweeps are reentrant-safe.
type Scheduler struct {
	cron      *cron.Cron
	status    *services.StatusService
	alerts    *services.AlertService
	renewals  *services.RenewalService
	analytics *services.AnalyticsService
}

// NewScheduler creates a new scheduler
func NewScheduler(
	status *services.StatusService,
	alerts *services.AlertService,
	renewals *services.RenewalService,
	analytics *services.AnalyticsService,
) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		status:    status,
		alerts:    alerts,
		renewals:  renewals,
		analytics: analytics,
	}
}

// Start registers the sweeps and starts the cron loop
func (s *Scheduler) Start(cfg *config.SweepsConfig) error {
	jobs := []struct {
		name string
		spec string
		run  func() error
	}{
		{"status update", cfg.StatusUpdate, s.status.UpdateProxyStatuses},
		{"alert creation", cfg.AlertCreate, func() error {
			_, err := s.alerts.CreateExpirationAlerts()
			return err
		}},
		{"alert delivery", cfg.AlertSend, func() error {
			_, err := s.alerts.SendPendingAlerts()
			return err
		}},
		{"auto-renewals", cfg.AutoRenewals, func() error {
			_, err := s.renewals.ProcessScheduledAutoRenewals()
			return err
		}},
		{"analytics", cfg.Analytics, func() error {
			_, err := s.analytics.GenerateExpirationAnalytics()
			return err
		}},
	}

	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.spec, guarded(job.name, job.run)); err != nil {
			return err
		}
	}

	s.cron.Start()
	log.Println("Scheduler started")
	return nil
}

// guarded wraps a sweep with a skip-if-running mutex.
func guarded(name string, run func() error) func() {
	var mu sync.Mutex
	return func() {
		if !mu.TryLock() {
			log.Printf("Skipping %s sweep: previous run still in progress", name)
			return
		}
		defer mu.Unlock()

		log.Printf("Starting %s sweep", name)
		if err := run(); err != nil {
			log.Printf("%s sweep failed: %v", name, err)
			return
		}
		log.Printf("%s sweep completed", name)
	}
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

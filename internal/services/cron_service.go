package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/bus-booking-backend/internal/database"
)

// SeatReconciler corrects buses whose available_seats drifted from the seat index
type SeatReconciler interface {
	ReconcileAvailableSeats(ctx context.Context) ([]database.SeatDrift, error)
}

// AuditPruner removes old audit rows
type AuditPruner interface {
	CleanupOldAuditLogs(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SeatCacheInvalidator drops cached seat maps
type SeatCacheInvalidator interface {
	Invalidate(ctx context.Context, busID string, version int64) error
}

// LoginAttemptPruner deletes expired failed-login records
type LoginAttemptPruner interface {
	CleanupExpiredAttempts(ctx context.Context) (int64, error)
}

// AuditRetention is how long audit rows are kept by the weekly cleanup job
const AuditRetention = 180 * 24 * time.Hour

// ReconcileReport summarises one reconciliation run
type ReconcileReport struct {
	Corrected  []database.SeatDrift `json:"corrected"`
	DurationMS int64                `json:"duration_ms"`
	RanAt      time.Time            `json:"ran_at"`
}

// CronService manages scheduled background jobs
type CronService struct {
	cron       *cron.Cron
	reconciler SeatReconciler
	audit      AuditPruner
	cache      SeatCacheInvalidator
	attempts   LoginAttemptPruner
	schedule   string
	logger     *logrus.Logger

	mu         sync.Mutex
	lastReport *ReconcileReport
}

// NewCronService creates a new CronService. schedule uses seconds precision.
func NewCronService(reconciler SeatReconciler, audit AuditPruner, schedule string, logger *logrus.Logger) *CronService {
	return &CronService{
		cron:       cron.New(cron.WithSeconds()),
		reconciler: reconciler,
		audit:      audit,
		schedule:   schedule,
		logger:     logger,
	}
}

// WithSeatCache lets reconciliation drop cached seat maps of corrected buses
func (s *CronService) WithSeatCache(cache SeatCacheInvalidator) *CronService {
	s.cache = cache
	return s
}

// WithLoginAttemptPruner schedules hourly cleanup of failed-login records
func (s *CronService) WithLoginAttemptPruner(attempts LoginAttemptPruner) *CronService {
	s.attempts = attempts
	return s
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	if _, err := s.cron.AddFunc(s.schedule, s.reconcileJob); err != nil {
		return fmt.Errorf("failed to schedule seat reconciliation job: %w", err)
	}
	s.logger.WithField("schedule", s.schedule).Info("Scheduled: seat counter reconciliation")

	if s.audit != nil {
		// Sundays at 4:00 AM
		if _, err := s.cron.AddFunc("0 0 4 * * 0", s.cleanupAuditJob); err != nil {
			return fmt.Errorf("failed to schedule audit cleanup job: %w", err)
		}
		s.logger.Info("Scheduled: audit log cleanup (Sundays at 4:00 AM)")
	}

	if s.attempts != nil {
		if _, err := s.cron.AddFunc("0 0 * * * *", s.cleanupLoginAttemptsJob); err != nil {
			return fmt.Errorf("failed to schedule login attempt cleanup job: %w", err)
		}
		s.logger.Info("Scheduled: login attempt cleanup (hourly)")
	}

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops all cron jobs and waits for running ones to finish
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) reconcileJob() {
	if _, err := s.RunReconcileNow(context.Background()); err != nil {
		s.logger.WithError(err).Error("[CRON] Seat reconciliation failed")
	}
}

func (s *CronService) cleanupAuditJob() {
	start := time.Now()
	deleted, err := s.audit.CleanupOldAuditLogs(context.Background(), AuditRetention)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Audit cleanup failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"deleted":     deleted,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("[CRON] Audit cleanup finished")
}

func (s *CronService) cleanupLoginAttemptsJob() {
	deleted, err := s.attempts.CleanupExpiredAttempts(context.Background())
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Login attempt cleanup failed")
		return
	}
	s.logger.WithField("deleted", deleted).Debug("[CRON] Login attempt cleanup finished")
}

// RunReconcileNow runs seat reconciliation immediately
func (s *CronService) RunReconcileNow(ctx context.Context) (*ReconcileReport, error) {
	start := time.Now()

	drifts, err := s.reconciler.ReconcileAvailableSeats(ctx)
	if err != nil {
		return nil, err
	}

	for _, drift := range drifts {
		s.logger.WithFields(logrus.Fields{
			"bus_id":     drift.BusID,
			"bus_number": drift.BusNumber,
			"previous":   drift.Previous,
			"corrected":  drift.Corrected,
		}).Warn("[CRON] Corrected available seat counter")

		if s.cache != nil {
			if err := s.cache.Invalidate(ctx, drift.BusID, drift.PreviousVersion); err != nil {
				s.logger.WithError(err).WithField("bus_id", drift.BusID).Warn("Failed to invalidate seat cache")
			}
		}
	}

	report := &ReconcileReport{
		Corrected:  drifts,
		DurationMS: time.Since(start).Milliseconds(),
		RanAt:      start,
	}

	s.mu.Lock()
	s.lastReport = report
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"corrected":   len(drifts),
		"duration_ms": report.DurationMS,
	}).Info("[CRON] Seat reconciliation finished")

	return report, nil
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	s.mu.Lock()
	last := s.lastReport
	s.mu.Unlock()

	return map[string]interface{}{
		"running":        len(entries) > 0,
		"job_count":      len(entries),
		"jobs":           jobs,
		"last_reconcile": last,
	}
}

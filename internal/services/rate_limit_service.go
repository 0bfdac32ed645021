package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smarttransit/bus-booking-backend/internal/database"
)

// RateLimitService throttles failed logins per email and per client IP
type RateLimitService struct {
	db     database.DB
	config RateLimitConfig
	now    func() time.Time
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	MaxEmailFailures int           // Max failed logins per email
	EmailWindow      time.Duration // Time window for the email limit
	MaxIPFailures    int           // Max failed logins per IP
	IPWindow         time.Duration // Time window for the IP limit
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxEmailFailures: 5,
		EmailWindow:      15 * time.Minute,
		MaxIPFailures:    20,
		IPWindow:         time.Hour,
	}
}

// NewRateLimitService creates a new rate limit service
func NewRateLimitService(db database.DB, config RateLimitConfig) *RateLimitService {
	return &RateLimitService{
		db:     db,
		config: config,
		now:    time.Now,
	}
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Message    string
	RetryAfter time.Time
	Type       string // "email" or "ip"
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// CheckLogin returns a *RateLimitError when email or ip has too many recent failures
func (s *RateLimitService) CheckLogin(ctx context.Context, email, ip string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	if email != "" {
		count, last, err := s.failureCount(ctx, email, "email", s.config.EmailWindow)
		if err != nil {
			return fmt.Errorf("failed to check email rate limit: %w", err)
		}
		if count >= s.config.MaxEmailFailures {
			retryAfter := last.Add(s.config.EmailWindow)
			return &RateLimitError{
				Message:    fmt.Sprintf("Too many failed logins for this account. Please try again after %s", retryAfter.UTC().Format("15:04:05 MST")),
				RetryAfter: retryAfter,
				Type:       "email",
			}
		}
	}

	if ip != "" {
		count, last, err := s.failureCount(ctx, ip, "ip", s.config.IPWindow)
		if err != nil {
			return fmt.Errorf("failed to check IP rate limit: %w", err)
		}
		if count >= s.config.MaxIPFailures {
			retryAfter := last.Add(s.config.IPWindow)
			return &RateLimitError{
				Message:    fmt.Sprintf("Too many failed logins from this IP address. Please try again after %s", retryAfter.UTC().Format("15:04:05 MST")),
				RetryAfter: retryAfter,
				Type:       "ip",
			}
		}
	}

	return nil
}

func (s *RateLimitService) failureCount(ctx context.Context, identifier, identifierType string, window time.Duration) (int, time.Time, error) {
	query := `
		SELECT COUNT(*) AS count, COALESCE(MAX(created_at), NOW()) AS last_attempt
		FROM login_attempts
		WHERE identifier = $1
		  AND identifier_type = $2
		  AND created_at > $3
	`

	var row struct {
		Count       int       `db:"count"`
		LastAttempt time.Time `db:"last_attempt"`
	}
	if err := s.db.GetContext(ctx, &row, query, identifier, identifierType, s.now().Add(-window)); err != nil {
		return 0, time.Time{}, err
	}
	return row.Count, row.LastAttempt, nil
}

// RecordFailure records a failed login for email and ip
func (s *RateLimitService) RecordFailure(ctx context.Context, email, ip string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email != "" {
		if err := s.record(ctx, email, "email"); err != nil {
			return fmt.Errorf("failed to record email attempt: %w", err)
		}
	}
	if ip != "" {
		if err := s.record(ctx, ip, "ip"); err != nil {
			return fmt.Errorf("failed to record IP attempt: %w", err)
		}
	}
	return nil
}

func (s *RateLimitService) record(ctx context.Context, identifier, identifierType string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO login_attempts (identifier, identifier_type) VALUES ($1, $2)`,
		identifier, identifierType)
	return err
}

// ClearEmail forgets the failures of an account after a successful login
func (s *RateLimitService) ClearEmail(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM login_attempts WHERE identifier = $1 AND identifier_type = 'email'`,
		strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return fmt.Errorf("failed to clear login attempts: %w", err)
	}
	return nil
}

// CleanupExpiredAttempts removes records older than the longest window
func (s *RateLimitService) CleanupExpiredAttempts(ctx context.Context) (int64, error) {
	maxWindow := s.config.IPWindow
	if s.config.EmailWindow > maxWindow {
		maxWindow = s.config.EmailWindow
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM login_attempts WHERE created_at < $1`, s.now().Add(-maxWindow))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup login attempts: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

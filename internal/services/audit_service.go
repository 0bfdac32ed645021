package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/bus-booking-backend/internal/database"
	"github.com/smarttransit/bus-booking-backend/internal/models"
	"github.com/smarttransit/bus-booking-backend/internal/utils"
)

// AuditService records security and booking events in audit_logs
type AuditService struct {
	db database.DB
}

// NewAuditService creates a new audit service
func NewAuditService(db database.DB) *AuditService {
	return &AuditService{
		db: db,
	}
}

// RequestMeta identifies where a request came from
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// AuditEvent represents an event to be logged
type AuditEvent struct {
	UserID     *uuid.UUID // nil for pre-authentication events
	Action     string     // e.g. "login", "booking_created", "bus_updated"
	EntityType string     // e.g. "user", "booking", "bus"
	EntityID   string
	IPAddress  string
	UserAgent  string
	Details    map[string]interface{}
}

// AuditLogEntry is a stored audit event
type AuditLogEntry struct {
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   *string         `json:"entity_id,omitempty" db:"entity_id"`
	IPAddress  *string         `json:"ip_address,omitempty" db:"ip_address"`
	Details    json.RawMessage `json:"details" db:"details"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// LogSignup logs an account registration
func (s *AuditService) LogSignup(ctx context.Context, user *models.User, meta RequestMeta) error {
	return s.logEvent(ctx, AuditEvent{
		UserID:     &user.ID,
		Action:     "signup",
		EntityType: "user",
		EntityID:   user.ID.String(),
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Details: map[string]interface{}{
			"email":       user.Email,
			"device_info": utils.ParseUserAgent(meta.UserAgent),
		},
	})
}

// LogLogin logs a login attempt; userID is nil when the email is unknown
func (s *AuditService) LogLogin(ctx context.Context, userID *uuid.UUID, email string, success bool, meta RequestMeta) error {
	action := "login"
	if !success {
		action = "login_failed"
	}

	entityID := ""
	if userID != nil {
		entityID = userID.String()
	}

	return s.logEvent(ctx, AuditEvent{
		UserID:     userID,
		Action:     action,
		EntityType: "user",
		EntityID:   entityID,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Details: map[string]interface{}{
			"email":       email,
			"success":     success,
			"device_info": utils.ParseUserAgent(meta.UserAgent),
		},
	})
}

// LogTokenRefresh logs a refresh token usage event
func (s *AuditService) LogTokenRefresh(ctx context.Context, userID uuid.UUID, success bool, meta RequestMeta) error {
	action := "token_refresh_success"
	if !success {
		action = "token_refresh_failed"
	}

	return s.logEvent(ctx, AuditEvent{
		UserID:     &userID,
		Action:     action,
		EntityType: "token",
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Details: map[string]interface{}{
			"success":     success,
			"device_info": utils.ParseUserAgent(meta.UserAgent),
		},
	})
}

// LogBookingCreated logs a confirmed reservation
func (s *AuditService) LogBookingCreated(ctx context.Context, actorID uuid.UUID, booking *models.Booking, meta RequestMeta) error {
	return s.logEvent(ctx, AuditEvent{
		UserID:     &actorID,
		Action:     "booking_created",
		EntityType: "booking",
		EntityID:   booking.ID,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Details: map[string]interface{}{
			"bus_id":       booking.BusID,
			"seats":        []int(booking.SeatsBooked),
			"total_amount": booking.TotalAmount,
		},
	})
}

// LogBookingRejected logs a reservation or cancellation refused with a domain error
func (s *AuditService) LogBookingRejected(ctx context.Context, actorID uuid.UUID, action string, rejection *ReservationError, meta RequestMeta) error {
	details := map[string]interface{}{
		"code":    rejection.Code,
		"message": rejection.Message,
	}
	if len(rejection.Seats) > 0 {
		details["seats"] = rejection.Seats
	}

	return s.logEvent(ctx, AuditEvent{
		UserID:     &actorID,
		Action:     action + "_rejected",
		EntityType: "booking",
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Details:    details,
	})
}

// LogBookingCancelled logs a cancellation, noting when an admin cancelled someone else's booking
func (s *AuditService) LogBookingCancelled(ctx context.Context, actorID uuid.UUID, booking *models.Booking, meta RequestMeta) error {
	return s.logEvent(ctx, AuditEvent{
		UserID:     &actorID,
		Action:     "booking_cancelled",
		EntityType: "booking",
		EntityID:   booking.ID,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Details: map[string]interface{}{
			"bus_id":         booking.BusID,
			"seats":          []int(booking.SeatsBooked),
			"owner_id":       booking.UserID,
			"on_behalf_of":   booking.UserID != actorID,
			"total_amount":   booking.TotalAmount,
		},
	})
}

// LogBusChange logs an admin change to the bus catalog; action is created, updated or deleted
func (s *AuditService) LogBusChange(ctx context.Context, actorID uuid.UUID, action string, bus *models.Bus, meta RequestMeta) error {
	details := map[string]interface{}{"bus_number": bus.BusNumber}
	if action != "deleted" {
		details["route"] = bus.FromCity + " -> " + bus.ToCity
		details["travel_date"] = bus.TravelDate.String()
		details["total_seats"] = bus.TotalSeats
		details["price"] = bus.Price
	}

	return s.logEvent(ctx, AuditEvent{
		UserID:     &actorID,
		Action:     "bus_" + action,
		EntityType: "bus",
		EntityID:   bus.ID,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Details:    details,
	})
}

// LogMaintenance logs a maintenance job and what it changed
func (s *AuditService) LogMaintenance(ctx context.Context, actorID *uuid.UUID, job string, details map[string]interface{}) error {
	return s.logEvent(ctx, AuditEvent{
		UserID:     actorID,
		Action:     "maintenance_" + job,
		EntityType: "system",
		Details:    details,
	})
}

// logEvent writes one row to audit_logs
func (s *AuditService) logEvent(ctx context.Context, event AuditEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	query := `
		INSERT INTO audit_logs (user_id, action, entity_type, entity_id, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, NOW())
	`

	_, err = s.db.ExecContext(ctx, query,
		event.UserID,
		event.Action,
		event.EntityType,
		event.EntityID,
		event.IPAddress,
		event.UserAgent,
		string(details),
	)
	if err != nil {
		return fmt.Errorf("failed to log audit event: %w", err)
	}

	return nil
}

// GetRecentEvents retrieves recent audit events for a user
func (s *AuditService) GetRecentEvents(ctx context.Context, userID uuid.UUID, limit int) ([]AuditLogEntry, error) {
	query := `
		SELECT action, entity_type, entity_id, ip_address, details, created_at
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	events := []AuditLogEntry{}
	if err := s.db.SelectContext(ctx, &events, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to get recent events: %w", err)
	}

	return events, nil
}

// CleanupOldAuditLogs removes audit logs older than the specified duration
func (s *AuditService) CleanupOldAuditLogs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoffTime := time.Now().Add(-olderThan)

	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoffTime)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old audit logs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

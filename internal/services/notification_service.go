package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/bus-booking-backend/internal/database"
	"github.com/smarttransit/bus-booking-backend/internal/events"
	"github.com/smarttransit/bus-booking-backend/pkg/sms"
)

// NotificationService texts passengers when their bookings change
type NotificationService struct {
	users   UserDirectory
	gateway sms.Gateway
	logger  *logrus.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(users UserDirectory, gateway sms.Gateway, logger *logrus.Logger) *NotificationService {
	return &NotificationService{users: users, gateway: gateway, logger: logger}
}

// NotifyBookingConfirmed sends the booking confirmation
func (s *NotificationService) NotifyBookingConfirmed(ctx context.Context, event *events.BookingConfirmed) error {
	message := fmt.Sprintf("Booking %s confirmed: bus %s, %s to %s on %s at %s, seats %s. Total Rs %.2f.",
		shortID(event.BookingID), event.Trip.BusNumber, event.Trip.From, event.Trip.To,
		event.Trip.Date, event.Trip.Time, joinSeats(event.Seats), event.TotalAmount)
	return s.send(ctx, event.Header.ID, event.UserID, event.BookingID, message)
}

// NotifyBookingCancelled sends the cancellation notice
func (s *NotificationService) NotifyBookingCancelled(ctx context.Context, event *events.BookingCancelled) error {
	message := fmt.Sprintf("Booking %s for bus %s on %s has been cancelled. Rs %.2f will be refunded.",
		shortID(event.BookingID), event.Trip.BusNumber, event.Trip.Date, event.RefundAmount)
	return s.send(ctx, event.Header.ID, event.UserID, event.BookingID, message)
}

func (s *NotificationService) send(ctx context.Context, eventID string, userID uuid.UUID, bookingID, message string) error {
	entry := s.logger.WithFields(logrus.Fields{
		"event_id":   eventID,
		"booking_id": bookingID,
		"user_id":    userID,
	})

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			entry.Warn("Skipping notification, passenger no longer exists")
			return nil
		}
		return fmt.Errorf("failed to load passenger: %w", err)
	}
	if user.Phone == "" {
		entry.Debug("Passenger has no phone number, skipping SMS")
		return nil
	}

	transactionID, err := s.gateway.Send(ctx, user.Phone, message)
	if err != nil {
		return fmt.Errorf("failed to send SMS via %s: %w", s.gateway.GetName(), err)
	}

	entry.WithField("transaction_id", transactionID).Info("Booking notification sent")
	return nil
}

package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/components/cqrs"
)

// Notifier tells passengers about their bookings
type Notifier interface {
	NotifyBookingConfirmed(ctx context.Context, event *BookingConfirmed) error
	NotifyBookingCancelled(ctx context.Context, event *BookingCancelled) error
}

// NotificationHandlers returns the handlers that message passengers
func NotificationHandlers(notifier Notifier) []cqrs.EventHandler {
	return []cqrs.EventHandler{
		cqrs.NewEventHandler(
			"notify_booking_confirmed",
			func(ctx context.Context, event *BookingConfirmed) error {
				return notifier.NotifyBookingConfirmed(ctx, event)
			},
		),
		cqrs.NewEventHandler(
			"notify_booking_cancelled",
			func(ctx context.Context, event *BookingCancelled) error {
				return notifier.NotifyBookingCancelled(ctx, event)
			},
		),
	}
}

// Package events publishes booking domain events and dispatches them to
// handlers through a watermill router.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/bus-booking-backend/internal/models"
)

// Header is carried by every event
type Header struct {
	ID          string    `json:"id"`
	PublishedAt time.Time `json:"published_at"`
}

// NewHeader returns a header with a fresh ID
func NewHeader() Header {
	return Header{
		ID:          uuid.NewString(),
		PublishedAt: time.Now().UTC(),
	}
}

// Trip describes the bus a booking belongs to
type Trip struct {
	BusID          string  `json:"bus_id"`
	BusNumber      string  `json:"bus_number"`
	From           string  `json:"from"`
	To             string  `json:"to"`
	Date           string  `json:"date"`
	Time           string  `json:"time"`
	AvailableSeats int     `json:"available_seats"`
	Price          float64 `json:"price"`
}

// BookingConfirmed is published after a reservation commits
type BookingConfirmed struct {
	Header Header `json:"header"`

	BookingID   string    `json:"booking_id"`
	UserID      uuid.UUID `json:"user_id"`
	Seats       []int     `json:"seats"`
	TotalAmount float64   `json:"total_amount"`
	Trip        Trip      `json:"trip"`
}

// BookingCancelled is published after a cancellation commits
type BookingCancelled struct {
	Header Header `json:"header"`

	BookingID    string    `json:"booking_id"`
	UserID       uuid.UUID `json:"user_id"`
	Seats        []int     `json:"seats"`
	RefundAmount float64   `json:"refund_amount"`
	Trip         Trip      `json:"trip"`
}

func tripOf(bus *models.Bus) Trip {
	return Trip{
		BusID:          bus.ID,
		BusNumber:      bus.BusNumber,
		From:           bus.FromCity,
		To:             bus.ToCity,
		Date:           bus.TravelDate.String(),
		Time:           bus.DepartureTime,
		AvailableSeats: bus.AvailableSeats,
		Price:          bus.Price,
	}
}

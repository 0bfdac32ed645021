package models

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// PaymentStatus represents the payment state recorded with a booking
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Booking is one user's claim on a set of seats of one bus
type Booking struct {
	ID            string        `json:"id" db:"id"`
	UserID        uuid.UUID     `json:"user_id" db:"user_id"`
	BusID         string        `json:"bus_id" db:"bus_id"`
	SeatsBooked   IntArray      `json:"seats_booked" db:"seats_booked"`
	TotalAmount   float64       `json:"total_amount" db:"total_amount"`
	Status        BookingStatus `json:"status" db:"status"`
	PaymentStatus PaymentStatus `json:"payment_status" db:"payment_status"`
	CancelledAt   *time.Time    `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`

	Bus  *BusSummary  `json:"bus,omitempty" db:"-"`
	User *UserSummary `json:"user,omitempty" db:"-"`
}

// IsConfirmed reports whether the booking still holds its seats
func (b *Booking) IsConfirmed() bool {
	return b.Status == BookingStatusConfirmed
}

// CreateBookingRequest represents the request body of a reservation
type CreateBookingRequest struct {
	BusID       string `json:"bus_id" binding:"required"`
	SeatsBooked []int  `json:"seats_booked"`
}

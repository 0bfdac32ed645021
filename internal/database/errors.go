package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when the requested row does not exist
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict means the bus row changed (or ran out of seats) since it was read
	ErrVersionConflict = errors.New("bus was modified concurrently")
	// ErrSeatTaken means the seat index already holds a confirmed claim on one of the seats
	ErrSeatTaken = errors.New("seat already booked")
	// ErrBookingNotConfirmed means the booking was cancelled before this transaction could
	ErrBookingNotConfirmed = errors.New("booking is not confirmed")
	// ErrDuplicateBusNumber is returned when another bus already uses the number
	ErrDuplicateBusNumber = errors.New("bus number already exists")
	// ErrDuplicateEmail is returned when another user already uses the email
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrBusHasBookings blocks deleting a bus that still carries confirmed bookings
	ErrBusHasBookings = errors.New("bus has confirmed bookings")
	// ErrSeatsBelowBooked blocks shrinking a bus below its confirmed seat count
	ErrSeatsBelowBooked = errors.New("total seats below booked seats")
)

const (
	pqUniqueViolation = "23505"
	pqInvalidText     = "22P02"
)

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pqUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// notFound normalises "no rows" and malformed-UUID lookups to ErrNotFound
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqInvalidText {
		return ErrNotFound
	}
	return err
}

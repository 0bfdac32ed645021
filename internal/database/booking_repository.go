package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/bus-booking-backend/internal/models"
)

const bookingColumns = `bk.id, bk.user_id, bk.bus_id, bk.seats_booked, bk.total_amount,
	bk.status, bk.payment_status, bk.cancelled_at, bk.created_at, bk.updated_at`

// BookingRepository handles database operations for bookings and the seat index
type BookingRepository struct {
	db DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// SeatDrift describes a bus whose available_seats counter was corrected
type SeatDrift struct {
	BusID     string `json:"bus_id" db:"id"`
	BusNumber string `json:"bus_number" db:"bus_number"`
	Previous  int    `json:"previous" db:"previous"`
	Corrected int    `json:"corrected" db:"corrected"`
	// PreviousVersion is the bus version the correction was computed from
	PreviousVersion int64 `json:"-" db:"previous_version"`
}

// bookingRow is a booking joined with optional bus and user columns
type bookingRow struct {
	models.Booking
	BusNumber     sql.NullString  `db:"bus_number"`
	FromCity      sql.NullString  `db:"from_city"`
	ToCity        sql.NullString  `db:"to_city"`
	TravelDate    models.Date     `db:"travel_date"`
	DepartureTime sql.NullString  `db:"departure_time"`
	Price         sql.NullFloat64 `db:"price"`
	UserName      sql.NullString  `db:"user_name"`
	UserEmail     sql.NullString  `db:"user_email"`
	UserPhone     sql.NullString  `db:"user_phone"`
}

func (row *bookingRow) toBooking() models.Booking {
	booking := row.Booking
	if row.BusNumber.Valid {
		booking.Bus = &models.BusSummary{
			ID:        booking.BusID,
			BusNumber: row.BusNumber.String,
			From:      row.FromCity.String,
			To:        row.ToCity.String,
			Date:      row.TravelDate,
			Time:      row.DepartureTime.String,
			Price:     row.Price.Float64,
		}
	}
	if row.UserEmail.Valid {
		booking.User = &models.UserSummary{
			ID:    booking.UserID,
			Name:  row.UserName.String,
			Email: row.UserEmail.String,
			Phone: row.UserPhone.String,
		}
	}
	return booking
}

// GetByID retrieves a booking by ID
func (r *BookingRepository) GetByID(ctx context.Context, bookingID string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings bk WHERE bk.id = $1`

	booking := &models.Booking{}
	if err := r.db.GetContext(ctx, booking, query, bookingID); err != nil {
		if err = notFound(err); errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	return booking, nil
}

// GetConfirmedSeats returns the seats held by confirmed bookings of a bus, ascending
func (r *BookingRepository) GetConfirmedSeats(ctx context.Context, busID string) ([]int, error) {
	query := `SELECT seat_number FROM booking_seats WHERE bus_id = $1 ORDER BY seat_number`

	seats := []int{}
	if err := r.db.SelectContext(ctx, &seats, query, busID); err != nil {
		return nil, fmt.Errorf("failed to get booked seats: %w", err)
	}

	return seats, nil
}

// CreateConfirmed stores a confirmed booking in one transaction:
//  1. decrement available_seats, conditioned on the bus version and on capacity
//  2. insert the booking
//  3. claim each seat in the booking_seats index
//
// ErrVersionConflict is returned when step 1 matches no row and ErrSeatTaken
// when step 3 hits the unique seat constraint; in both cases nothing is written.
func (r *BookingRepository) CreateConfirmed(ctx context.Context, booking *models.Booking, busVersion int64) error {
	seatCount := len(booking.SeatsBooked)

	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var newVersion int64
		err := tx.QueryRowxContext(ctx, `
			UPDATE buses
			SET available_seats = available_seats - $2,
			    version = version + 1,
			    updated_at = NOW()
			WHERE id = $1 AND version = $3 AND available_seats >= $2
			RETURNING version
		`, booking.BusID, seatCount, busVersion).Scan(&newVersion)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrVersionConflict
			}
			return fmt.Errorf("failed to reserve capacity: %w", err)
		}

		err = tx.QueryRowxContext(ctx, `
			INSERT INTO bookings (user_id, bus_id, seats_booked, total_amount, status, payment_status)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at, updated_at
		`, booking.UserID, booking.BusID, booking.SeatsBooked, booking.TotalAmount,
			booking.Status, booking.PaymentStatus,
		).Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create booking: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO booking_seats (booking_id, bus_id, seat_number)
			SELECT $1, $2, unnest($3::int[])
		`, booking.ID, booking.BusID, booking.SeatsBooked)
		if err != nil {
			if isUniqueViolation(err, "") {
				return ErrSeatTaken
			}
			return fmt.Errorf("failed to claim seats: %w", err)
		}

		return nil
	})
}

// CancelConfirmed flips a confirmed booking to cancelled, releases its seats
// from the index and returns them to the bus in one transaction.
// ErrBookingNotConfirmed is returned if another request cancelled it first.
func (r *BookingRepository) CancelConfirmed(ctx context.Context, booking *models.Booking) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, `
			UPDATE bookings
			SET status = 'cancelled', cancelled_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND status = 'confirmed'
			RETURNING status, cancelled_at, updated_at
		`, booking.ID).Scan(&booking.Status, &booking.CancelledAt, &booking.UpdatedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrBookingNotConfirmed
			}
			return fmt.Errorf("failed to cancel booking: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM booking_seats WHERE booking_id = $1`, booking.ID)
		if err != nil {
			return fmt.Errorf("failed to release seats: %w", err)
		}
		released, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get released seats: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE buses
			SET available_seats = available_seats + $2,
			    version = version + 1,
			    updated_at = NOW()
			WHERE id = $1
		`, booking.BusID, released)
		if err != nil {
			return fmt.Errorf("failed to restore capacity: %w", err)
		}

		return nil
	})
}

// ListByUser returns a user's bookings, newest first, with their bus summaries
func (r *BookingRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `,
			b.bus_number, b.from_city, b.to_city, b.travel_date, b.departure_time, b.price
		FROM bookings bk
		LEFT JOIN buses b ON b.id = bk.bus_id
		WHERE bk.user_id = $1
		ORDER BY bk.created_at DESC
	`

	return r.selectRows(ctx, query, userID)
}

// ListAll returns every booking with bus and user summaries for administrators
func (r *BookingRepository) ListAll(ctx context.Context) ([]models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `,
			b.bus_number, b.from_city, b.to_city, b.travel_date, b.departure_time, b.price,
			u.name AS user_name, u.email AS user_email, u.phone AS user_phone
		FROM bookings bk
		LEFT JOIN buses b ON b.id = bk.bus_id
		LEFT JOIN users u ON u.id = bk.user_id
		ORDER BY bk.created_at DESC
	`

	return r.selectRows(ctx, query)
}

func (r *BookingRepository) selectRows(ctx context.Context, query string, args ...interface{}) ([]models.Booking, error) {
	rows := []bookingRow{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	bookings := make([]models.Booking, 0, len(rows))
	for i := range rows {
		bookings = append(bookings, rows[i].toBooking())
	}
	return bookings, nil
}

// ReconcileAvailableSeats resets available_seats to total_seats minus the
// confirmed seat count for every bus where the two disagree.
//
// The correction only applies while the bus still has the version it was
// computed from. A bus booked or cancelled during the statement is skipped
// and picked up by the next run.
func (r *BookingRepository) ReconcileAvailableSeats(ctx context.Context) ([]SeatDrift, error) {
	query := `
		UPDATE buses b
		SET available_seats = c.corrected,
		    version = b.version + 1,
		    updated_at = NOW()
		FROM (
			SELECT bu.id, bu.version, bu.available_seats AS previous,
			       bu.total_seats - COUNT(s.seat_number) AS corrected
			FROM buses bu
			LEFT JOIN booking_seats s ON s.bus_id = bu.id
			GROUP BY bu.id
		) c
		WHERE b.id = c.id AND b.version = c.version AND b.available_seats <> c.corrected
		RETURNING b.id, b.bus_number, c.previous, c.corrected, c.version AS previous_version
	`

	drifts := []SeatDrift{}
	if err := r.db.SelectContext(ctx, &drifts, query); err != nil {
		return nil, fmt.Errorf("failed to reconcile available seats: %w", err)
	}

	return drifts, nil
}

// DeleteAllBookings removes every booking and seat claim and restores each bus
// to full capacity. Used by the maintenance tooling only.
func (r *BookingRepository) DeleteAllBookings(ctx context.Context) (int64, error) {
	var deleted int64
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM booking_seats`); err != nil {
			return fmt.Errorf("failed to clear seat index: %w", err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM bookings`)
		if err != nil {
			return fmt.Errorf("failed to clear bookings: %w", err)
		}
		if deleted, err = result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE buses SET available_seats = total_seats, version = version + 1, updated_at = NOW()`); err != nil {
			return fmt.Errorf("failed to restore capacity: %w", err)
		}
		return nil
	})
	return deleted, err
}

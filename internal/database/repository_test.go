package database

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/smarttransit/bus-booking-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*PostgresDB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewFromSQL(db), mock
}

var busColumnNames = []string{
	"id", "bus_number", "from_city", "to_city", "travel_date", "departure_time",
	"total_seats", "available_seats", "price", "version", "created_at", "updated_at",
}

func TestBusRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBusRepository(db)
		now := time.Now()
		bus := &models.Bus{
			BusNumber: "MH12AB1234", FromCity: "Mumbai", ToCity: "Pune",
			TravelDate: models.NewDate(2026, time.June, 1), DepartureTime: "08:00",
			TotalSeats: 40, Price: 500,
		}

		mock.ExpectQuery(`INSERT INTO buses`).
			WithArgs("MH12AB1234", "Mumbai", "Pune", "2026-06-01", "08:00", 40, 500.0).
			WillReturnRows(sqlmock.NewRows([]string{"id", "available_seats", "version", "created_at", "updated_at"}).
				AddRow("bus-1", 40, 1, now, now))

		require.NoError(t, repo.Create(ctx, bus))
		assert.Equal(t, "bus-1", bus.ID)
		assert.Equal(t, 40, bus.AvailableSeats)
		assert.Equal(t, int64(1), bus.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate Bus Number", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBusRepository(db)

		mock.ExpectQuery(`INSERT INTO buses`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "buses_bus_number_key"})

		err := repo.Create(ctx, &models.Bus{BusNumber: "MH12AB1234"})
		assert.ErrorIs(t, err, ErrDuplicateBusNumber)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBusRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBusRepository(db)
		now := time.Now()

		mock.ExpectQuery(`SELECT (.+) FROM buses WHERE id = \$1`).
			WithArgs("bus-1").
			WillReturnRows(sqlmock.NewRows(busColumnNames).AddRow(
				"bus-1", "MH12AB1234", "Mumbai", "Pune", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), "08:00",
				40, 38, []byte("500.00"), 3, now, now,
			))

		bus, err := repo.GetByID(ctx, "bus-1")
		require.NoError(t, err)
		assert.Equal(t, "MH12AB1234", bus.BusNumber)
		assert.Equal(t, "2026-06-01", bus.TravelDate.String())
		assert.Equal(t, 38, bus.AvailableSeats)
		assert.Equal(t, 500.0, bus.Price)
		assert.Equal(t, int64(3), bus.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBusRepository(db)

		mock.ExpectQuery(`SELECT (.+) FROM buses WHERE id = \$1`).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		bus, err := repo.GetByID(ctx, "missing")
		assert.Nil(t, bus)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Malformed ID", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBusRepository(db)

		mock.ExpectQuery(`SELECT (.+) FROM buses WHERE id = \$1`).
			WithArgs("not-a-uuid").
			WillReturnError(&pq.Error{Code: "22P02"})

		_, err := repo.GetByID(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestBusRepository_Search(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBusRepository(db)
	date := models.NewDate(2026, time.June, 1)

	mock.ExpectQuery(`SELECT (.+) FROM buses WHERE available_seats > 0 AND from_city ILIKE \$1 AND to_city ILIKE \$2 AND travel_date = \$3 ORDER BY travel_date, departure_time`).
		WithArgs("%mum%", `%50\%%`, "2026-06-01").
		WillReturnRows(sqlmock.NewRows(busColumnNames))

	buses, err := repo.Search(context.Background(), models.BusSearchParams{From: " mum ", To: "50%", Date: &date})
	require.NoError(t, err)
	assert.Empty(t, buses)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBusRepository_Update(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	bus := func() *models.Bus {
		return &models.Bus{
			ID: "bus-1", BusNumber: "MH12AB1234", FromCity: "Mumbai", ToCity: "Pune",
			TravelDate: models.NewDate(2026, time.June, 1), DepartureTime: "08:00",
			TotalSeats: 30, Price: 550, Version: 4,
		}
	}

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBusRepository(db)
		b := bus()

		mock.ExpectQuery(`UPDATE buses b SET`).
			WithArgs("bus-1", "MH12AB1234", "Mumbai", "Pune", "2026-06-01", "08:00", 30, 550.0, int64(4)).
			WillReturnRows(sqlmock.NewRows([]string{"available_seats", "version", "updated_at"}).AddRow(27, 5, now))

		require.NoError(t, repo.Update(ctx, b))
		assert.Equal(t, 27, b.AvailableSeats)
		assert.Equal(t, int64(5), b.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Stale Version", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBusRepository(db)

		mock.ExpectQuery(`UPDATE buses b SET`).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(`SELECT (.+) FROM buses WHERE id = \$1`).
			WillReturnRows(sqlmock.NewRows(busColumnNames).AddRow(
				"bus-1", "MH12AB1234", "Mumbai", "Pune", now, "08:00", 40, 40, 500.0, 5, now, now,
			))

		assert.ErrorIs(t, repo.Update(ctx, bus()), ErrVersionConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Shrinks Below Booked Seat", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBusRepository(db)

		mock.ExpectQuery(`UPDATE buses b SET`).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(`SELECT (.+) FROM buses WHERE id = \$1`).
			WillReturnRows(sqlmock.NewRows(busColumnNames).AddRow(
				"bus-1", "MH12AB1234", "Mumbai", "Pune", now, "08:00", 40, 20, 500.0, 4, now, now,
			))

		assert.ErrorIs(t, repo.Update(ctx, bus()), ErrSeatsBelowBooked)
	})
}

func TestBusRepository_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBusRepository(db)

		mock.ExpectExec(`DELETE FROM buses b`).WithArgs("bus-1").WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Delete(ctx, "bus-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Has Confirmed Bookings", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBusRepository(db)
		now := time.Now()

		mock.ExpectExec(`DELETE FROM buses b`).WithArgs("bus-1").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT (.+) FROM buses WHERE id = \$1`).
			WillReturnRows(sqlmock.NewRows(busColumnNames).AddRow(
				"bus-1", "MH12AB1234", "Mumbai", "Pune", now, "08:00", 40, 38, 500.0, 2, now, now,
			))

		assert.ErrorIs(t, repo.Delete(ctx, "bus-1"), ErrBusHasBookings)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBusRepository(db)

		mock.ExpectExec(`DELETE FROM buses b`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT (.+) FROM buses WHERE id = \$1`).WillReturnError(sql.ErrNoRows)

		assert.ErrorIs(t, repo.Delete(ctx, "bus-1"), ErrNotFound)
	})
}

func TestBookingRepository_CreateConfirmed(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	newBooking := func() *models.Booking {
		return &models.Booking{
			UserID:        userID,
			BusID:         "bus-1",
			SeatsBooked:   models.IntArray{3, 4},
			TotalAmount:   1000,
			Status:        models.BookingStatusConfirmed,
			PaymentStatus: models.PaymentStatusCompleted,
		}
	}

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)
		now := time.Now()
		booking := newBooking()

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE buses`).
			WithArgs("bus-1", 2, int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(8))
		mock.ExpectQuery(`INSERT INTO bookings`).
			WithArgs(userID, "bus-1", "{3,4}", 1000.0, "confirmed", "completed").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("booking-1", now, now))
		mock.ExpectExec(`INSERT INTO booking_seats`).
			WithArgs("booking-1", "bus-1", "{3,4}").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		require.NoError(t, repo.CreateConfirmed(ctx, booking, 7))
		assert.Equal(t, "booking-1", booking.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Version Conflict", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE buses`).WithArgs("bus-1", 2, int64(7)).WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err := repo.CreateConfirmed(ctx, newBooking(), 7)
		assert.ErrorIs(t, err, ErrVersionConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Seat Taken", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)
		now := time.Now()

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE buses`).WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(8))
		mock.ExpectQuery(`INSERT INTO bookings`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("booking-1", now, now))
		mock.ExpectExec(`INSERT INTO booking_seats`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "booking_seats_bus_seat_key"})
		mock.ExpectRollback()

		err := repo.CreateConfirmed(ctx, newBooking(), 7)
		assert.ErrorIs(t, err, ErrSeatTaken)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database Error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE buses`).WillReturnError(fmt.Errorf("connection reset"))
		mock.ExpectRollback()

		err := repo.CreateConfirmed(ctx, newBooking(), 7)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to reserve capacity")
	})
}

func TestBookingRepository_CancelConfirmed(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)
		now := time.Now()
		booking := &models.Booking{ID: "booking-1", BusID: "bus-1", SeatsBooked: models.IntArray{3, 4}, Status: models.BookingStatusConfirmed}

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE bookings`).
			WithArgs("booking-1").
			WillReturnRows(sqlmock.NewRows([]string{"status", "cancelled_at", "updated_at"}).AddRow("cancelled", now, now))
		mock.ExpectExec(`DELETE FROM booking_seats WHERE booking_id = \$1`).
			WithArgs("booking-1").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(`UPDATE buses`).
			WithArgs("bus-1", int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.CancelConfirmed(ctx, booking))
		assert.Equal(t, models.BookingStatusCancelled, booking.Status)
		require.NotNil(t, booking.CancelledAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Already Cancelled", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE bookings`).WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err := repo.CancelConfirmed(ctx, &models.Booking{ID: "booking-1", BusID: "bus-1"})
		assert.ErrorIs(t, err, ErrBookingNotConfirmed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepository_GetConfirmedSeats(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)

	mock.ExpectQuery(`SELECT seat_number FROM booking_seats WHERE bus_id = \$1 ORDER BY seat_number`).
		WithArgs("bus-1").
		WillReturnRows(sqlmock.NewRows([]string{"seat_number"}).AddRow(2).AddRow(5).AddRow(9))

	seats, err := repo.GetConfirmedSeats(context.Background(), "bus-1")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5, 9}, seats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_ListByUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)
	userID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`FROM bookings bk\s+LEFT JOIN buses b`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "bus_id", "seats_booked", "total_amount", "status", "payment_status",
			"cancelled_at", "created_at", "updated_at",
			"bus_number", "from_city", "to_city", "travel_date", "departure_time", "price",
		}).
			AddRow("booking-2", userID.String(), "bus-1", []byte("{7}"), 500.0, "confirmed", "completed",
				nil, now, now,
				"MH12AB1234", "Mumbai", "Pune", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), "08:00", 500.0).
			AddRow("booking-1", userID.String(), "bus-gone", []byte("{1,2}"), 800.0, "cancelled", "completed",
				now, now, now,
				nil, nil, nil, nil, nil, nil))

	bookings, err := repo.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, bookings, 2)

	assert.Equal(t, models.IntArray{7}, bookings[0].SeatsBooked)
	require.NotNil(t, bookings[0].Bus)
	assert.Equal(t, "Mumbai", bookings[0].Bus.From)
	assert.Equal(t, "2026-06-01", bookings[0].Bus.Date.String())

	assert.Nil(t, bookings[1].Bus)
	assert.Equal(t, models.BookingStatusCancelled, bookings[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_ReconcileAvailableSeats(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)

	// Buses written since the snapshot must be skipped, not overwritten
	mock.ExpectQuery(`UPDATE buses b\s+SET available_seats = c.corrected.*SELECT bu.id, bu.version.*WHERE b.id = c.id AND b.version = c.version AND b.available_seats <> c.corrected`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "bus_number", "previous", "corrected", "previous_version"}).
			AddRow("bus-1", "MH12AB1234", 40, 37, 6))

	drifts, err := repo.ReconcileAvailableSeats(context.Background())
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, SeatDrift{BusID: "bus-1", BusNumber: "MH12AB1234", Previous: 40, Corrected: 37, PreviousVersion: 6}, drifts[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Create Lowercases Email", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)
		userID := uuid.New()
		now := time.Now()
		user := &models.User{Name: "Asha", Email: " Asha@Example.COM ", Phone: "9876543210", PasswordHash: "hash"}

		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs("Asha", "asha@example.com", "9876543210", "hash", "user").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(userID.String(), now, now))

		require.NoError(t, repo.Create(ctx, user))
		assert.Equal(t, userID, user.ID)
		assert.Equal(t, models.UserRoleUser, user.Role)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate Email", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		mock.ExpectQuery(`INSERT INTO users`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

		err := repo.Create(ctx, &models.User{Email: "a@b.co"})
		assert.ErrorIs(t, err, ErrDuplicateEmail)
	})

	t.Run("GetByEmail Not Found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		mock.ExpectQuery(`SELECT (.+) FROM users WHERE email = \$1`).
			WithArgs("nobody@example.com").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByEmail(ctx, "Nobody@Example.com")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

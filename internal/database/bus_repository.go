package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/smarttransit/bus-booking-backend/internal/models"
)

const busColumns = `id, bus_number, from_city, to_city, travel_date, departure_time,
	total_seats, available_seats, price, version, created_at, updated_at`

// BusRepository handles database operations for buses
type BusRepository struct {
	db DB
}

// NewBusRepository creates a new BusRepository
func NewBusRepository(db DB) *BusRepository {
	return &BusRepository{db: db}
}

// Create inserts a new bus; available seats start equal to total seats
func (r *BusRepository) Create(ctx context.Context, bus *models.Bus) error {
	query := `
		INSERT INTO buses (
			bus_number, from_city, to_city, travel_date, departure_time,
			total_seats, available_seats, price
		) VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
		RETURNING id, available_seats, version, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		bus.BusNumber, bus.FromCity, bus.ToCity, bus.TravelDate, bus.DepartureTime,
		bus.TotalSeats, bus.Price,
	).Scan(&bus.ID, &bus.AvailableSeats, &bus.Version, &bus.CreatedAt, &bus.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "buses_bus_number_key") {
			return ErrDuplicateBusNumber
		}
		return fmt.Errorf("failed to create bus: %w", err)
	}

	return nil
}

// GetByID retrieves a bus by ID
func (r *BusRepository) GetByID(ctx context.Context, busID string) (*models.Bus, error) {
	query := `SELECT ` + busColumns + ` FROM buses WHERE id = $1`

	bus := &models.Bus{}
	if err := r.db.GetContext(ctx, bus, query, busID); err != nil {
		if err = notFound(err); errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get bus: %w", err)
	}

	return bus, nil
}

// Search returns buses with free seats matching the route (case-insensitive
// substring) and, when given, the exact travel date, ordered by departure
func (r *BusRepository) Search(ctx context.Context, params models.BusSearchParams) ([]models.Bus, error) {
	conditions := []string{"available_seats > 0"}
	args := []interface{}{}

	if from := strings.TrimSpace(params.From); from != "" {
		args = append(args, "%"+escapeLike(from)+"%")
		conditions = append(conditions, fmt.Sprintf("from_city ILIKE $%d", len(args)))
	}
	if to := strings.TrimSpace(params.To); to != "" {
		args = append(args, "%"+escapeLike(to)+"%")
		conditions = append(conditions, fmt.Sprintf("to_city ILIKE $%d", len(args)))
	}
	if params.Date != nil {
		args = append(args, *params.Date)
		conditions = append(conditions, fmt.Sprintf("travel_date = $%d", len(args)))
	}

	query := `SELECT ` + busColumns + ` FROM buses WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY travel_date, departure_time`

	buses := []models.Bus{}
	if err := r.db.SelectContext(ctx, &buses, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search buses: %w", err)
	}

	return buses, nil
}

// List returns every bus for the admin console
func (r *BusRepository) List(ctx context.Context) ([]models.Bus, error) {
	query := `SELECT ` + busColumns + ` FROM buses ORDER BY travel_date, departure_time, bus_number`

	buses := []models.Bus{}
	if err := r.db.SelectContext(ctx, &buses, query); err != nil {
		return nil, fmt.Errorf("failed to list buses: %w", err)
	}

	return buses, nil
}

// Update writes the editable fields of bus if its version is unchanged.
// available_seats is recomputed from the seat index so it always equals
// total_seats minus the confirmed seats, and the seat map cannot shrink
// below the highest booked seat number.
func (r *BusRepository) Update(ctx context.Context, bus *models.Bus) error {
	query := `
		UPDATE buses b SET
			bus_number = $2, from_city = $3, to_city = $4, travel_date = $5,
			departure_time = $6, total_seats = $7, price = $8,
			available_seats = $7 - (SELECT COUNT(*) FROM booking_seats s WHERE s.bus_id = b.id),
			version = b.version + 1,
			updated_at = NOW()
		WHERE b.id = $1
		  AND b.version = $9
		  AND $7 >= COALESCE((SELECT MAX(s.seat_number) FROM booking_seats s WHERE s.bus_id = b.id), 0)
		RETURNING available_seats, version, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		bus.ID, bus.BusNumber, bus.FromCity, bus.ToCity, bus.TravelDate,
		bus.DepartureTime, bus.TotalSeats, bus.Price, bus.Version,
	).Scan(&bus.AvailableSeats, &bus.Version, &bus.UpdatedAt)
	if err == nil {
		return nil
	}
	if isUniqueViolation(err, "buses_bus_number_key") {
		return ErrDuplicateBusNumber
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to update bus: %w", err)
	}

	// No row updated: tell apart a missing bus, a stale version and a seat map shrink
	current, getErr := r.GetByID(ctx, bus.ID)
	if getErr != nil {
		return getErr
	}
	if current.Version != bus.Version {
		return ErrVersionConflict
	}
	return ErrSeatsBelowBooked
}

// Delete removes a bus that carries no confirmed bookings
func (r *BusRepository) Delete(ctx context.Context, busID string) error {
	query := `
		DELETE FROM buses b
		WHERE b.id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM bookings bk WHERE bk.bus_id = b.id AND bk.status = 'confirmed'
		  )
	`

	result, err := r.db.ExecContext(ctx, query, busID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return ErrBusHasBookings
		}
		if err = notFound(err); errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete bus: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}

	if _, err := r.GetByID(ctx, busID); err != nil {
		return err
	}
	return ErrBusHasBookings
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

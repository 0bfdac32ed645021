package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/bus-booking-backend/internal/database"
	"github.com/smarttransit/bus-booking-backend/internal/models"
)

// fakeDB backs the handler tests with the same semantics as the Postgres repositories
type fakeDB struct {
	mu       sync.Mutex
	buses    map[string]*models.Bus
	bookings map[string]*models.Booking
	seats    map[string]map[int]string
	users    map[uuid.UUID]*models.User
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		buses:    make(map[string]*models.Bus),
		bookings: make(map[string]*models.Booking),
		seats:    make(map[string]map[int]string),
		users:    make(map[uuid.UUID]*models.User),
	}
}

type fakeBuses struct{ db *fakeDB }
type fakeBookings struct{ db *fakeDB }
type fakeUsers struct{ db *fakeDB }

func (f fakeBuses) Create(ctx context.Context, bus *models.Bus) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, existing := range f.db.buses {
		if existing.BusNumber == bus.BusNumber {
			return database.ErrDuplicateBusNumber
		}
	}
	bus.ID = uuid.NewString()
	bus.CreatedAt = time.Now()
	bus.UpdatedAt = bus.CreatedAt
	stored := *bus
	f.db.buses[bus.ID] = &stored
	f.db.seats[bus.ID] = make(map[int]string)
	return nil
}

func (f fakeBuses) GetByID(ctx context.Context, busID string) (*models.Bus, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	bus, ok := f.db.buses[busID]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *bus
	return &copied, nil
}

func (f fakeBuses) Search(ctx context.Context, params models.BusSearchParams) ([]models.Bus, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []models.Bus{}
	for _, bus := range f.db.buses {
		if bus.AvailableSeats <= 0 {
			continue
		}
		if params.From != "" && !strings.Contains(strings.ToLower(bus.FromCity), strings.ToLower(params.From)) {
			continue
		}
		if params.To != "" && !strings.Contains(strings.ToLower(bus.ToCity), strings.ToLower(params.To)) {
			continue
		}
		if params.Date != nil && bus.TravelDate.String() != params.Date.String() {
			continue
		}
		out = append(out, *bus)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TravelDate.String() != out[j].TravelDate.String() {
			return out[i].TravelDate.Before(out[j].TravelDate)
		}
		return out[i].DepartureTime < out[j].DepartureTime
	})
	return out, nil
}

func (f fakeBuses) List(ctx context.Context) ([]models.Bus, error) {
	return f.Search(ctx, models.BusSearchParams{})
}

func (f fakeBuses) Update(ctx context.Context, bus *models.Bus) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	current, ok := f.db.buses[bus.ID]
	if !ok {
		return database.ErrNotFound
	}
	booked := len(f.db.seats[bus.ID])
	if bus.TotalSeats < booked {
		return database.ErrSeatsBelowBooked
	}
	bus.AvailableSeats = bus.TotalSeats - booked
	bus.Version = current.Version + 1
	stored := *bus
	f.db.buses[bus.ID] = &stored
	return nil
}

func (f fakeBuses) Delete(ctx context.Context, busID string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.buses[busID]; !ok {
		return database.ErrNotFound
	}
	if len(f.db.seats[busID]) > 0 {
		return database.ErrBusHasBookings
	}
	delete(f.db.buses, busID)
	return nil
}

func (f fakeBookings) GetByID(ctx context.Context, bookingID string) (*models.Booking, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	booking, ok := f.db.bookings[bookingID]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *booking
	return &copied, nil
}

func (f fakeBookings) GetConfirmedSeats(ctx context.Context, busID string) ([]int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	seats := []int{}
	for seat := range f.db.seats[busID] {
		seats = append(seats, seat)
	}
	sort.Ints(seats)
	return seats, nil
}

func (f fakeBookings) CreateConfirmed(ctx context.Context, booking *models.Booking, busVersion int64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	bus := f.db.buses[booking.BusID]
	if bus == nil || bus.Version != busVersion || bus.AvailableSeats < len(booking.SeatsBooked) {
		return database.ErrVersionConflict
	}
	for _, seat := range booking.SeatsBooked {
		if _, taken := f.db.seats[bus.ID][seat]; taken {
			return database.ErrSeatTaken
		}
	}
	booking.ID = uuid.NewString()
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt
	stored := *booking
	f.db.bookings[booking.ID] = &stored
	for _, seat := range booking.SeatsBooked {
		f.db.seats[bus.ID][seat] = booking.ID
	}
	bus.AvailableSeats -= len(booking.SeatsBooked)
	bus.Version++
	return nil
}

func (f fakeBookings) CancelConfirmed(ctx context.Context, booking *models.Booking) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	stored := f.db.bookings[booking.ID]
	if stored == nil || !stored.IsConfirmed() {
		return database.ErrBookingNotConfirmed
	}
	now := time.Now()
	stored.Status = models.BookingStatusCancelled
	stored.CancelledAt = &now
	for seat, owner := range f.db.seats[stored.BusID] {
		if owner == stored.ID {
			delete(f.db.seats[stored.BusID], seat)
			f.db.buses[stored.BusID].AvailableSeats++
		}
	}
	f.db.buses[stored.BusID].Version++
	booking.Status = stored.Status
	booking.CancelledAt = stored.CancelledAt
	return nil
}

func (f fakeBookings) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Booking, error) {
	all, _ := f.ListAll(ctx)
	out := []models.Booking{}
	for _, booking := range all {
		if booking.UserID == userID {
			out = append(out, booking)
		}
	}
	return out, nil
}

func (f fakeBookings) ListAll(ctx context.Context) ([]models.Booking, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []models.Booking{}
	for _, booking := range f.db.bookings {
		copied := *booking
		if bus, ok := f.db.buses[booking.BusID]; ok {
			copied.Bus = bus.Summary()
		}
		out = append(out, copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f fakeUsers) Create(ctx context.Context, user *models.User) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, existing := range f.db.users {
		if existing.Email == user.Email {
			return database.ErrDuplicateEmail
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	f.db.users[user.ID] = &stored
	return nil
}

func (f fakeUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, user := range f.db.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, database.ErrNotFound
}

func (f fakeUsers) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	user, ok := f.db.users[userID]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

type fakeReconciler struct {
	drifts []database.SeatDrift
}

func (f *fakeReconciler) ReconcileAvailableSeats(ctx context.Context) ([]database.SeatDrift, error) {
	return f.drifts, nil
}

func (f *fakeReconciler) CleanupOldAuditLogs(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/bus-booking-backend/internal/database"
	"github.com/smarttransit/bus-booking-backend/internal/models"
	"golang.org/x/sync/singleflight"
)

// BusStore is the read side of the bus catalog used by reservations
type BusStore interface {
	GetByID(ctx context.Context, busID string) (*models.Bus, error)
}

// BookingStore persists bookings together with the seat index and the bus counter
type BookingStore interface {
	GetByID(ctx context.Context, bookingID string) (*models.Booking, error)
	GetConfirmedSeats(ctx context.Context, busID string) ([]int, error)
	CreateConfirmed(ctx context.Context, booking *models.Booking, busVersion int64) error
	CancelConfirmed(ctx context.Context, booking *models.Booking) error
}

// UserDirectory resolves booking owners
type UserDirectory interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// SeatCache is an advisory cache of booked seat numbers per bus version
type SeatCache interface {
	Get(ctx context.Context, busID string, version int64) ([]int, bool, error)
	Set(ctx context.Context, busID string, version int64, seats []int) error
	Invalidate(ctx context.Context, busID string, version int64) error
}

// BookingEventPublisher announces committed reservations and cancellations
type BookingEventPublisher interface {
	BookingConfirmed(ctx context.Context, booking *models.Booking, bus *models.Bus) error
	BookingCancelled(ctx context.Context, booking *models.Booking, bus *models.Bus) error
}

// ReservationConfig holds the booking rules
type ReservationConfig struct {
	Location     *time.Location
	CancelCutoff time.Duration
	MaxAttempts  int
}

// DefaultReservationConfig returns UTC, a two hour cutoff and three attempts
func DefaultReservationConfig() ReservationConfig {
	return ReservationConfig{
		Location:     time.UTC,
		CancelCutoff: 2 * time.Hour,
		MaxAttempts:  3,
	}
}

// ReservationService creates and cancels bookings without ever double-booking a seat.
//
// Writes for one bus are serialized in-process by busLocks. Across processes
// the store conditions every capacity change on the bus version read during
// validation, so a commit built on stale state fails and is retried from a
// fresh read, up to MaxAttempts times. The booking_seats unique index backs
// both.
type ReservationService struct {
	buses    BusStore
	bookings BookingStore
	users    UserDirectory
	cache    SeatCache
	events   BookingEventPublisher
	config   ReservationConfig
	locks    *busLocks
	seatLoad singleflight.Group
	now      func() time.Time
	logger   *logrus.Logger
}

// NewReservationService creates a new reservation service
func NewReservationService(
	buses BusStore,
	bookings BookingStore,
	users UserDirectory,
	config ReservationConfig,
	logger *logrus.Logger,
) *ReservationService {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &ReservationService{
		buses:    buses,
		bookings: bookings,
		users:    users,
		config:   config,
		locks:    newBusLocks(),
		now:      time.Now,
		logger:   logger,
	}
}

// WithSeatCache attaches the advisory seat-map cache
func (s *ReservationService) WithSeatCache(cache SeatCache) *ReservationService {
	s.cache = cache
	return s
}

// WithEventPublisher attaches the domain event publisher
func (s *ReservationService) WithEventPublisher(events BookingEventPublisher) *ReservationService {
	s.events = events
	return s
}

// WithClock replaces the wall clock
func (s *ReservationService) WithClock(now func() time.Time) *ReservationService {
	s.now = now
	return s
}

// Today returns the current calendar day in the booking timezone
func (s *ReservationService) Today() models.Date {
	return models.DateOf(s.now().In(s.config.Location))
}

// CreateBooking reserves seats on a bus for callerID.
//
// Checks run in this order and the first failure is returned: the bus exists,
// at least one seat is requested and none twice, every seat is on the seat map,
// the travel date is not in the past, enough seats remain, and no seat is
// held by another confirmed booking.
func (s *ReservationService) CreateBooking(ctx context.Context, callerID uuid.UUID, req models.CreateBookingRequest) (*models.Booking, error) {
	busID := strings.TrimSpace(req.BusID)
	if _, err := uuid.Parse(busID); err != nil {
		return nil, newReservationError(CodeNotFound, "bus not found")
	}

	unlock := s.locks.lock(busID)
	defer unlock()

	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		bus, err := s.checkReservation(ctx, busID, req.SeatsBooked)
		if err != nil {
			return nil, err
		}

		seats := append(models.IntArray(nil), req.SeatsBooked...)
		booking := &models.Booking{
			UserID:        callerID,
			BusID:         bus.ID,
			SeatsBooked:   seats,
			TotalAmount:   fareFor(len(seats), bus.Price),
			Status:        models.BookingStatusConfirmed,
			PaymentStatus: models.PaymentStatusCompleted,
		}

		err = s.bookings.CreateConfirmed(ctx, booking, bus.Version)
		if err == nil {
			bus.AvailableSeats -= len(seats)
			bus.Version++
			s.afterCommit(ctx, booking, bus, true)

			booking.Bus = bus.Summary()
			booking.User = s.userSummary(ctx, callerID)

			s.logger.WithFields(logrus.Fields{
				"booking_id": booking.ID,
				"bus_id":     bus.ID,
				"user_id":    callerID,
				"seats":      []int(seats),
				"attempt":    attempt,
			}).Info("Booking confirmed")
			return booking, nil
		}

		if !errors.Is(err, database.ErrVersionConflict) && !errors.Is(err, database.ErrSeatTaken) {
			return nil, fmt.Errorf("failed to store booking: %w", err)
		}

		s.logger.WithFields(logrus.Fields{
			"bus_id":  busID,
			"attempt": attempt,
			"reason":  err.Error(),
		}).Warn("Reservation lost a concurrent update, retrying")
	}

	// Out of attempts: report what the current state says is wrong, if anything
	if _, err := s.checkReservation(ctx, busID, req.SeatsBooked); err != nil {
		return nil, err
	}
	return nil, newReservationError(CodeConflict, "the bus is being booked by other passengers, please try again")
}

// checkReservation loads the bus and runs every reservation check against it
func (s *ReservationService) checkReservation(ctx context.Context, busID string, seats []int) (*models.Bus, error) {
	bus, err := s.buses.GetByID(ctx, busID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, newReservationError(CodeNotFound, "bus not found")
		}
		return nil, fmt.Errorf("failed to load bus: %w", err)
	}

	if len(seats) == 0 {
		return nil, newReservationError(CodeInvalidRequest, "at least one seat must be selected")
	}
	if dup, ok := firstDuplicate(seats); ok {
		return nil, newReservationError(CodeInvalidRequest, "seat %d is selected more than once", dup)
	}

	var invalid []int
	for _, seat := range seats {
		if seat < 1 || seat > bus.TotalSeats {
			invalid = append(invalid, seat)
		}
	}
	if len(invalid) > 0 {
		e := newReservationError(CodeInvalidSeat, "invalid seat numbers: %s (bus has seats 1-%d)", joinSeats(invalid), bus.TotalSeats)
		e.Seats = invalid
		return nil, e
	}

	if bus.TravelDate.Before(s.Today()) {
		return nil, newReservationError(CodePastDate, "cannot book a bus that departed on %s", bus.TravelDate)
	}

	if len(seats) > bus.AvailableSeats {
		e := newReservationError(CodeInsufficientCapacity, "only %d seats available", bus.AvailableSeats)
		e.Remaining = bus.AvailableSeats
		return nil, e
	}

	booked, err := s.bookings.GetConfirmedSeats(ctx, busID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booked seats: %w", err)
	}
	taken := make(map[int]struct{}, len(booked))
	for _, seat := range booked {
		taken[seat] = struct{}{}
	}
	var conflicts []int
	for _, seat := range seats {
		if _, ok := taken[seat]; ok {
			conflicts = append(conflicts, seat)
		}
	}
	if len(conflicts) > 0 {
		e := newReservationError(CodeSeatConflict, "seats already booked: %s", joinSeats(conflicts))
		e.Seats = conflicts
		return nil, e
	}

	return bus, nil
}

// CancelBooking cancels a confirmed booking owned by callerID (or any booking
// when callerIsAdmin) no later than CancelCutoff before departure, and
// returns its seats to the bus.
func (s *ReservationService) CancelBooking(ctx context.Context, callerID uuid.UUID, bookingID string, callerIsAdmin bool) (*models.Booking, error) {
	if _, err := uuid.Parse(bookingID); err != nil {
		return nil, newReservationError(CodeNotFound, "booking not found")
	}

	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(booking.BusID)
	defer unlock()

	// Re-read under the bus lock so a cancellation that just finished is seen
	booking, err = s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if booking.UserID != callerID && !callerIsAdmin {
		return nil, newReservationError(CodeForbidden, "you can only cancel your own bookings")
	}
	if !booking.IsConfirmed() {
		return nil, newReservationError(CodeAlreadyCancelled, "booking is already cancelled")
	}

	bus, err := s.buses.GetByID(ctx, booking.BusID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, newReservationError(CodeNotFound, "bus for this booking no longer exists")
		}
		return nil, fmt.Errorf("failed to load bus: %w", err)
	}

	departure, err := bus.DepartureAt(s.config.Location)
	if err != nil {
		return nil, fmt.Errorf("bus %s has an invalid departure time: %w", bus.ID, err)
	}
	deadline := departure.Add(-s.config.CancelCutoff)
	if !s.now().Before(deadline) {
		return nil, newReservationError(CodeTooLateToCancel,
			"bookings can only be cancelled up to %s before departure", formatCutoff(s.config.CancelCutoff))
	}

	// The cancel is not version-conditioned: releasing seats is valid whatever
	// else happened to the bus, and the booking status guards against doing it twice
	if err := s.bookings.CancelConfirmed(ctx, booking); err != nil {
		if errors.Is(err, database.ErrBookingNotConfirmed) {
			return nil, newReservationError(CodeAlreadyCancelled, "booking is already cancelled")
		}
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}

	bus.AvailableSeats += len(booking.SeatsBooked)
	bus.Version++
	s.afterCommit(ctx, booking, bus, false)

	booking.Bus = bus.Summary()
	booking.User = s.userSummary(ctx, booking.UserID)

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"bus_id":     bus.ID,
		"user_id":    callerID,
		"by_admin":   callerIsAdmin && booking.UserID != callerID,
	}).Info("Booking cancelled")

	return booking, nil
}

// GetBookedSeats returns the seats held by confirmed bookings of a bus, ascending.
// The answer is advisory: it may be stale by the time a reservation is attempted.
func (s *ReservationService) GetBookedSeats(ctx context.Context, busID string) ([]int, error) {
	if _, err := uuid.Parse(busID); err != nil {
		return nil, newReservationError(CodeNotFound, "bus not found")
	}
	bus, err := s.buses.GetByID(ctx, busID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, newReservationError(CodeNotFound, "bus not found")
		}
		return nil, fmt.Errorf("failed to load bus: %w", err)
	}

	// Seats are read after the bus, so an entry stored under a version holds
	// that version's seats or newer ones, never older.
	version := bus.Version
	if s.cache != nil {
		seats, ok, err := s.cache.Get(ctx, busID, version)
		if err != nil {
			s.logger.WithError(err).WithField("bus_id", busID).Warn("Seat cache read failed")
		} else if ok {
			return seats, nil
		}
	}

	// Concurrent misses for one bus version share a single store read, which
	// must not fail for all of them when the first caller goes away
	loadCtx := context.WithoutCancel(ctx)
	loaded, err, _ := s.seatLoad.Do(fmt.Sprintf("%s:%d", busID, version), func() (interface{}, error) {
		seats, err := s.bookings.GetConfirmedSeats(loadCtx, busID)
		if err != nil {
			return nil, err
		}
		sort.Ints(seats)

		if s.cache != nil {
			if err := s.cache.Set(loadCtx, busID, version, seats); err != nil {
				s.logger.WithError(err).WithField("bus_id", busID).Warn("Seat cache write failed")
			}
		}
		return seats, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load booked seats: %w", err)
	}

	shared := loaded.([]int)
	seats := make([]int, len(shared))
	copy(seats, shared)
	return seats, nil
}

func (s *ReservationService) loadBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, newReservationError(CodeNotFound, "booking not found")
		}
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	return booking, nil
}

// afterCommit runs side effects that must never change the outcome of a committed write
func (s *ReservationService) afterCommit(ctx context.Context, booking *models.Booking, bus *models.Bus, confirmed bool) {
	entry := s.logger.WithFields(logrus.Fields{"booking_id": booking.ID, "bus_id": bus.ID})

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, bus.ID, bus.Version-1); err != nil {
			entry.WithError(err).Warn("Failed to invalidate seat cache")
		}
	}

	if s.events != nil {
		var err error
		if confirmed {
			err = s.events.BookingConfirmed(ctx, booking, bus)
		} else {
			err = s.events.BookingCancelled(ctx, booking, bus)
		}
		if err != nil {
			entry.WithError(err).Error("Failed to publish booking event")
		}
	}
}

func (s *ReservationService) userSummary(ctx context.Context, userID uuid.UUID) *models.UserSummary {
	if s.users == nil {
		return nil
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to load booking owner")
		return nil
	}
	return user.Summary()
}

func fareFor(seatCount int, price float64) float64 {
	return math.Round(float64(seatCount)*price*100) / 100
}

func firstDuplicate(seats []int) (int, bool) {
	seen := make(map[int]struct{}, len(seats))
	for _, seat := range seats {
		if _, ok := seen[seat]; ok {
			return seat, true
		}
		seen[seat] = struct{}{}
	}
	return 0, false
}

func joinSeats(seats []int) string {
	parts := make([]string, len(seats))
	for i, seat := range seats {
		parts[i] = fmt.Sprint(seat)
	}
	return strings.Join(parts, ", ")
}

func formatCutoff(d time.Duration) string {
	if d%time.Hour == 0 {
		hours := int(d / time.Hour)
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	return fmt.Sprintf("%d minutes", int(d/time.Minute))
}

package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smarttransit/bus-booking-backend/pkg/validator"
)

const (
	// MaxSeatsPerBus is the largest seat map a bus may carry
	MaxSeatsPerBus = 60
	// MinFare is the smallest per-seat price accepted
	MinFare = 1
)

// Bus represents a single scheduled departure with its own seat map
type Bus struct {
	ID             string    `json:"id" db:"id"`
	BusNumber      string    `json:"bus_number" db:"bus_number"`
	FromCity       string    `json:"from" db:"from_city"`
	ToCity         string    `json:"to" db:"to_city"`
	TravelDate     Date      `json:"date" db:"travel_date"`
	DepartureTime  string    `json:"time" db:"departure_time"`
	TotalSeats     int       `json:"total_seats" db:"total_seats"`
	AvailableSeats int       `json:"available_seats" db:"available_seats"`
	Price          float64   `json:"price" db:"price"`
	Version        int64     `json:"-" db:"version"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// DepartureAt combines the travel date and HH:MM departure time in loc
func (b *Bus) DepartureAt(loc *time.Location) (time.Time, error) {
	hour, minute, err := validator.ParseClock(b.DepartureTime)
	if err != nil {
		return time.Time{}, err
	}
	return b.TravelDate.At(loc, hour, minute), nil
}

// Summary returns the fields embedded in booking responses
func (b *Bus) Summary() *BusSummary {
	return &BusSummary{
		ID:        b.ID,
		BusNumber: b.BusNumber,
		From:      b.FromCity,
		To:        b.ToCity,
		Date:      b.TravelDate,
		Time:      b.DepartureTime,
		Price:     b.Price,
	}
}

// BusSummary is the trimmed bus view attached to bookings
type BusSummary struct {
	ID        string  `json:"id" db:"bus_id"`
	BusNumber string  `json:"bus_number" db:"bus_number"`
	From      string  `json:"from" db:"from_city"`
	To        string  `json:"to" db:"to_city"`
	Date      Date    `json:"date" db:"travel_date"`
	Time      string  `json:"time" db:"departure_time"`
	Price     float64 `json:"price" db:"price"`
}

// BusSearchParams filters the public bus search
type BusSearchParams struct {
	From string
	To   string
	Date *Date
}

// CreateBusRequest represents the request to schedule a new bus
type CreateBusRequest struct {
	BusNumber  string  `json:"bus_number" binding:"required"`
	From       string  `json:"from" binding:"required"`
	To         string  `json:"to" binding:"required"`
	Date       string  `json:"date" binding:"required"` // Format: YYYY-MM-DD
	Time       string  `json:"time" binding:"required"` // Format: HH:MM
	TotalSeats int     `json:"total_seats" binding:"required"`
	Price      float64 `json:"price" binding:"required"`
}

// Validate checks the request against today's date and returns the bus to insert
func (req *CreateBusRequest) Validate(today Date) (*Bus, error) {
	busNumber, err := validator.NormalizeBusNumber(req.BusNumber)
	if err != nil {
		return nil, err
	}

	from := strings.TrimSpace(req.From)
	to := strings.TrimSpace(req.To)
	if from == "" || to == "" {
		return nil, errors.New("from and to are required")
	}
	if strings.EqualFold(from, to) {
		return nil, errors.New("from and to must be different cities")
	}

	date, err := ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if date.Before(today) {
		return nil, errors.New("date cannot be in the past")
	}

	departure, err := normalizeClock(req.Time)
	if err != nil {
		return nil, err
	}

	if err := validateSeatsAndPrice(req.TotalSeats, req.Price); err != nil {
		return nil, err
	}

	return &Bus{
		BusNumber:      busNumber,
		FromCity:       from,
		ToCity:         to,
		TravelDate:     date,
		DepartureTime:  departure,
		TotalSeats:     req.TotalSeats,
		AvailableSeats: req.TotalSeats,
		Price:          req.Price,
	}, nil
}

// UpdateBusRequest represents a partial update of a bus; nil fields are left unchanged
type UpdateBusRequest struct {
	BusNumber  *string  `json:"bus_number,omitempty"`
	From       *string  `json:"from,omitempty"`
	To         *string  `json:"to,omitempty"`
	Date       *string  `json:"date,omitempty"`
	Time       *string  `json:"time,omitempty"`
	TotalSeats *int     `json:"total_seats,omitempty"`
	Price      *float64 `json:"price,omitempty"`
}

// Apply validates the request and applies it to bus in place.
// AvailableSeats is not touched; the repository derives it from the booked count.
func (req *UpdateBusRequest) Apply(bus *Bus, today Date) error {
	if req.BusNumber != nil {
		busNumber, err := validator.NormalizeBusNumber(*req.BusNumber)
		if err != nil {
			return err
		}
		bus.BusNumber = busNumber
	}
	if req.From != nil {
		bus.FromCity = strings.TrimSpace(*req.From)
	}
	if req.To != nil {
		bus.ToCity = strings.TrimSpace(*req.To)
	}
	if bus.FromCity == "" || bus.ToCity == "" {
		return errors.New("from and to are required")
	}
	if strings.EqualFold(bus.FromCity, bus.ToCity) {
		return errors.New("from and to must be different cities")
	}
	if req.Date != nil {
		date, err := ParseDate(*req.Date)
		if err != nil {
			return err
		}
		if date.Before(today) {
			return errors.New("date cannot be in the past")
		}
		bus.TravelDate = date
	}
	if req.Time != nil {
		departure, err := normalizeClock(*req.Time)
		if err != nil {
			return err
		}
		bus.DepartureTime = departure
	}
	if req.TotalSeats != nil {
		bus.TotalSeats = *req.TotalSeats
	}
	if req.Price != nil {
		bus.Price = *req.Price
	}
	return validateSeatsAndPrice(bus.TotalSeats, bus.Price)
}

// normalizeClock zero-pads the hour so departure times sort lexically
func normalizeClock(value string) (string, error) {
	hour, minute, err := validator.ParseClock(value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}

func validateSeatsAndPrice(totalSeats int, price float64) error {
	if totalSeats < 1 || totalSeats > MaxSeatsPerBus {
		return errors.New("total_seats must be between 1 and 60")
	}
	if price < MinFare {
		return errors.New("price must be at least 1")
	}
	return nil
}

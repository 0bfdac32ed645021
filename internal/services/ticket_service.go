package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/phpdave11/gofpdf"
	"github.com/smarttransit/bus-booking-backend/internal/database"
	"github.com/smarttransit/bus-booking-backend/internal/models"
)

// TicketService renders PDF e-tickets for confirmed bookings
type TicketService struct {
	buses    BusStore
	bookings BookingStore
	users    UserDirectory
}

// NewTicketService creates a new ticket service
func NewTicketService(buses BusStore, bookings BookingStore, users UserDirectory) *TicketService {
	return &TicketService{buses: buses, bookings: bookings, users: users}
}

// Ticket is a rendered e-ticket
type Ticket struct {
	Filename string
	PDF      []byte
}

// GenerateTicket renders the e-ticket of a booking owned by callerID (any booking for admins)
func (s *TicketService) GenerateTicket(ctx context.Context, callerID uuid.UUID, bookingID string, callerIsAdmin bool) (*Ticket, error) {
	if _, err := uuid.Parse(bookingID); err != nil {
		return nil, newReservationError(CodeNotFound, "booking not found")
	}

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, newReservationError(CodeNotFound, "booking not found")
		}
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking.UserID != callerID && !callerIsAdmin {
		return nil, newReservationError(CodeForbidden, "you can only download your own tickets")
	}
	if !booking.IsConfirmed() {
		return nil, newReservationError(CodeAlreadyCancelled, "tickets are only issued for confirmed bookings")
	}

	bus, err := s.buses.GetByID(ctx, booking.BusID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, newReservationError(CodeNotFound, "bus for this booking no longer exists")
		}
		return nil, fmt.Errorf("failed to load bus: %w", err)
	}

	passenger, err := s.users.GetByID(ctx, booking.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load passenger: %w", err)
	}

	pdf, err := renderTicket(booking, bus, passenger)
	if err != nil {
		return nil, fmt.Errorf("failed to render ticket: %w", err)
	}

	return &Ticket{
		Filename: fmt.Sprintf("ETICKET_%s_%s.pdf", bus.BusNumber, shortID(booking.ID)),
		PDF:      pdf,
	}, nil
}

func renderTicket(booking *models.Booking, bus *models.Bus, passenger *models.User) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("E-Ticket "+shortID(booking.ID), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "BUS E-TICKET")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		fmt.Sprintf("Booking        : %s", strings.ToUpper(shortID(booking.ID))),
		fmt.Sprintf("Passenger      : %s", passenger.Name),
		fmt.Sprintf("Phone          : %s", passenger.Phone),
		fmt.Sprintf("Bus            : %s", bus.BusNumber),
		fmt.Sprintf("Route          : %s -> %s", bus.FromCity, bus.ToCity),
		fmt.Sprintf("Departure      : %s %s", bus.TravelDate, bus.DepartureTime),
		fmt.Sprintf("Seats          : %s", joinSeats(booking.SeatsBooked)),
		fmt.Sprintf("Fare per seat  : %.2f", bus.Price),
		fmt.Sprintf("Total paid     : %.2f", booking.TotalAmount),
		fmt.Sprintf("Booked at      : %s", booking.CreatedAt.Format("2006-01-02 15:04")),
	}
	for _, line := range lines {
		pdf.Cell(0, 7, line)
		pdf.Ln(7)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, "Please carry a photo ID and show this ticket when boarding. "+
		"Cancellations are accepted up to 2 hours before departure.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

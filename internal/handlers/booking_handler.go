package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/bus-booking-backend/internal/middleware"
	"github.com/smarttransit/bus-booking-backend/internal/models"
	"github.com/smarttransit/bus-booking-backend/internal/services"
)

// BookingLister lists bookings with their summaries; *database.BookingRepository implements it
type BookingLister interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Booking, error)
	ListAll(ctx context.Context) ([]models.Booking, error)
}

// BookingHandler handles reservation HTTP requests
type BookingHandler struct {
	reservations *services.ReservationService
	tickets      *services.TicketService
	bookings     BookingLister
	audit        AuditLogger
	logger       *logrus.Logger
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(
	reservations *services.ReservationService,
	tickets *services.TicketService,
	bookings BookingLister,
	audit AuditLogger,
	logger *logrus.Logger,
) *BookingHandler {
	return &BookingHandler{
		reservations: reservations,
		tickets:      tickets,
		bookings:     bookings,
		audit:        auditOrNop(audit),
		logger:       logger,
	}
}

// CreateBooking handles POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	ctx := c.Request.Context()
	meta := requestMeta(c)

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "bus_id and seats_booked are required")
		return
	}

	booking, err := h.reservations.CreateBooking(ctx, userCtx.UserID, req)
	if err != nil {
		if re, ok := services.AsReservationError(err); ok {
			logAuditError(h.logger, "LogBookingRejected", h.audit.LogBookingRejected(ctx, userCtx.UserID, "booking_create", re, meta))
		}
		respondError(c, h.logger, err, "Failed to create booking")
		return
	}

	logAuditError(h.logger, "LogBookingCreated", h.audit.LogBookingCreated(ctx, userCtx.UserID, booking, meta))

	c.JSON(http.StatusCreated, gin.H{
		"message": "Booking created successfully",
		"booking": booking,
	})
}

// MyBookings handles GET /api/v1/bookings/my
func (h *BookingHandler) MyBookings(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	bookings, err := h.bookings.ListByUser(c.Request.Context(), userCtx.UserID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to retrieve bookings")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Bookings retrieved successfully",
		"bookings": bookings,
	})
}

// CancelBooking handles PATCH /api/v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	ctx := c.Request.Context()
	meta := requestMeta(c)

	booking, err := h.reservations.CancelBooking(ctx, userCtx.UserID, c.Param("id"), userCtx.IsAdmin())
	if err != nil {
		if re, ok := services.AsReservationError(err); ok {
			logAuditError(h.logger, "LogBookingRejected", h.audit.LogBookingRejected(ctx, userCtx.UserID, "booking_cancel", re, meta))
		}
		respondError(c, h.logger, err, "Failed to cancel booking")
		return
	}

	logAuditError(h.logger, "LogBookingCancelled", h.audit.LogBookingCancelled(ctx, userCtx.UserID, booking, meta))

	c.JSON(http.StatusOK, gin.H{
		"message": "Booking cancelled successfully",
		"booking": booking,
	})
}

// DownloadTicket handles GET /api/v1/bookings/:id/ticket.pdf
func (h *BookingHandler) DownloadTicket(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	ticket, err := h.tickets.GenerateTicket(c.Request.Context(), userCtx.UserID, c.Param("id"), userCtx.IsAdmin())
	if err != nil {
		respondError(c, h.logger, err, "Failed to generate ticket")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, ticket.Filename))
	c.Data(http.StatusOK, "application/pdf", ticket.PDF)
}

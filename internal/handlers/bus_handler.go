package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/bus-booking-backend/internal/database"
	"github.com/smarttransit/bus-booking-backend/internal/middleware"
	"github.com/smarttransit/bus-booking-backend/internal/models"
	"github.com/smarttransit/bus-booking-backend/internal/services"
)

// BusCatalog stores scheduled buses; *database.BusRepository implements it
type BusCatalog interface {
	Create(ctx context.Context, bus *models.Bus) error
	GetByID(ctx context.Context, busID string) (*models.Bus, error)
	Search(ctx context.Context, params models.BusSearchParams) ([]models.Bus, error)
	List(ctx context.Context) ([]models.Bus, error)
	Update(ctx context.Context, bus *models.Bus) error
	Delete(ctx context.Context, busID string) error
}

// BusHandler handles bus catalog HTTP requests
type BusHandler struct {
	buses        BusCatalog
	reservations *services.ReservationService
	audit        AuditLogger
	logger       *logrus.Logger
}

// NewBusHandler creates a new bus handler
func NewBusHandler(buses BusCatalog, reservations *services.ReservationService, audit AuditLogger, logger *logrus.Logger) *BusHandler {
	return &BusHandler{
		buses:        buses,
		reservations: reservations,
		audit:        auditOrNop(audit),
		logger:       logger,
	}
}

func busNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, ErrorResponse{
		Error:   "not_found",
		Message: "Bus not found",
		Code:    string(services.CodeNotFound),
	})
}

// SearchBuses handles GET /api/v1/buses/search?from=&to=&date=
func (h *BusHandler) SearchBuses(c *gin.Context) {
	params := models.BusSearchParams{
		From: c.Query("from"),
		To:   c.Query("to"),
	}
	if raw := c.Query("date"); raw != "" {
		date, err := models.ParseDate(raw)
		if err != nil {
			badRequest(c, "Invalid date format, expected YYYY-MM-DD")
			return
		}
		params.Date = &date
	}

	buses, err := h.buses.Search(c.Request.Context(), params)
	if err != nil {
		respondError(c, h.logger, err, "Failed to search buses")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Buses retrieved successfully",
		"buses":   buses,
		"count":   len(buses),
	})
}

// GetBus handles GET /api/v1/buses/:id
func (h *BusHandler) GetBus(c *gin.Context) {
	bus, err := h.buses.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			busNotFound(c)
			return
		}
		respondError(c, h.logger, err, "Failed to fetch bus")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Bus retrieved successfully",
		"bus":     bus,
	})
}

// GetBookedSeats handles GET /api/v1/buses/:id/booked-seats
func (h *BusHandler) GetBookedSeats(c *gin.Context) {
	seats, err := h.reservations.GetBookedSeats(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to retrieve booked seats")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Booked seats retrieved successfully",
		"booked_seats": seats,
	})
}

// ListBuses handles GET /api/v1/admin/buses
func (h *BusHandler) ListBuses(c *gin.Context) {
	buses, err := h.buses.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "Failed to retrieve buses")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "All buses retrieved successfully",
		"buses":   buses,
	})
}

// CreateBus handles POST /api/v1/admin/buses
func (h *BusHandler) CreateBus(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	var req models.CreateBusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "bus_number, from, to, date, time, total_seats and price are required")
		return
	}

	bus, err := req.Validate(h.reservations.Today())
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := h.buses.Create(c.Request.Context(), bus); err != nil {
		if errors.Is(err, database.ErrDuplicateBusNumber) {
			duplicateBusNumber(c)
			return
		}
		respondError(c, h.logger, err, "Failed to create bus")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"bus_id":     bus.ID,
		"bus_number": bus.BusNumber,
		"admin_id":   userCtx.UserID,
	}).Info("Bus created")
	logAuditError(h.logger, "LogBusChange", h.audit.LogBusChange(c.Request.Context(), userCtx.UserID, "created", bus, requestMeta(c)))

	c.JSON(http.StatusCreated, gin.H{
		"message": "Bus created successfully",
		"bus":     bus,
	})
}

// UpdateBus handles PUT /api/v1/admin/buses/:id
func (h *BusHandler) UpdateBus(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	ctx := c.Request.Context()

	var req models.UpdateBusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	bus, err := h.buses.GetByID(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			busNotFound(c)
			return
		}
		respondError(c, h.logger, err, "Failed to fetch bus")
		return
	}

	if err := req.Apply(bus, h.reservations.Today()); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := h.buses.Update(ctx, bus); err != nil {
		switch {
		case errors.Is(err, database.ErrNotFound):
			busNotFound(c)
		case errors.Is(err, database.ErrDuplicateBusNumber):
			duplicateBusNumber(c)
		case errors.Is(err, database.ErrSeatsBelowBooked):
			badRequest(c, "total_seats cannot be lower than the number of booked seats")
		case errors.Is(err, database.ErrVersionConflict):
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "conflict",
				Message: "Bus was modified concurrently, please retry",
				Code:    string(services.CodeConflict),
			})
		default:
			respondError(c, h.logger, err, "Failed to update bus")
		}
		return
	}

	logAuditError(h.logger, "LogBusChange", h.audit.LogBusChange(ctx, userCtx.UserID, "updated", bus, requestMeta(c)))

	c.JSON(http.StatusOK, gin.H{
		"message": "Bus updated successfully",
		"bus":     bus,
	})
}

// DeleteBus handles DELETE /api/v1/admin/buses/:id
func (h *BusHandler) DeleteBus(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	ctx := c.Request.Context()

	bus, err := h.buses.GetByID(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			busNotFound(c)
			return
		}
		respondError(c, h.logger, err, "Failed to fetch bus")
		return
	}

	if err := h.buses.Delete(ctx, bus.ID); err != nil {
		switch {
		case errors.Is(err, database.ErrNotFound):
			busNotFound(c)
		case errors.Is(err, database.ErrBusHasBookings):
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "bus_has_bookings",
				Message: "Bus has confirmed bookings and cannot be deleted",
				Code:    "BUS_HAS_BOOKINGS",
			})
		default:
			respondError(c, h.logger, err, "Failed to delete bus")
		}
		return
	}

	logAuditError(h.logger, "LogBusChange", h.audit.LogBusChange(ctx, userCtx.UserID, "deleted", bus, requestMeta(c)))

	c.JSON(http.StatusOK, gin.H{"message": "Bus deleted successfully"})
}

func duplicateBusNumber(c *gin.Context) {
	c.JSON(http.StatusConflict, ErrorResponse{
		Error:   "duplicate_bus_number",
		Message: "Bus with this number already exists",
		Code:    "DUPLICATE_BUS_NUMBER",
	})
}

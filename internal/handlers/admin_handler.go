package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/bus-booking-backend/internal/middleware"
	"github.com/smarttransit/bus-booking-backend/internal/services"
)

// AdminHandler handles administrator-only booking and maintenance requests
type AdminHandler struct {
	bookings BookingLister
	cron     *services.CronService
	audit    AuditLogger
	logger   *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(bookings BookingLister, cron *services.CronService, audit AuditLogger, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		bookings: bookings,
		cron:     cron,
		audit:    auditOrNop(audit),
		logger:   logger,
	}
}

// ListAllBookings handles GET /api/v1/admin/bookings
func (h *AdminHandler) ListAllBookings(c *gin.Context) {
	bookings, err := h.bookings.ListAll(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "Failed to retrieve bookings")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "All bookings retrieved successfully",
		"bookings": bookings,
		"count":    len(bookings),
	})
}

// ReconcileSeats handles POST /api/v1/admin/maintenance/reconcile
func (h *AdminHandler) ReconcileSeats(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)
	ctx := c.Request.Context()

	report, err := h.cron.RunReconcileNow(ctx)
	if err != nil {
		respondError(c, h.logger, err, "Failed to reconcile seat counters")
		return
	}

	logAuditError(h.logger, "LogMaintenance", h.audit.LogMaintenance(ctx, &userCtx.UserID, "reconcile_seats", map[string]interface{}{
		"corrected": len(report.Corrected),
		"trigger":   "manual",
	}))

	c.JSON(http.StatusOK, gin.H{
		"message": "Seat counters reconciled",
		"report":  report,
	})
}

// JobStatus handles GET /api/v1/admin/maintenance/jobs
func (h *AdminHandler) JobStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.cron.GetJobStatus())
}

package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/bus-booking-backend/internal/models"
	"github.com/smarttransit/bus-booking-backend/internal/services"
	"github.com/smarttransit/bus-booking-backend/internal/utils"
)

// AuditLogger records security and booking events; *services.AuditService implements it
type AuditLogger interface {
	LogSignup(ctx context.Context, user *models.User, meta services.RequestMeta) error
	LogLogin(ctx context.Context, userID *uuid.UUID, email string, success bool, meta services.RequestMeta) error
	LogTokenRefresh(ctx context.Context, userID uuid.UUID, success bool, meta services.RequestMeta) error
	LogBookingCreated(ctx context.Context, actorID uuid.UUID, booking *models.Booking, meta services.RequestMeta) error
	LogBookingRejected(ctx context.Context, actorID uuid.UUID, action string, rejection *services.ReservationError, meta services.RequestMeta) error
	LogBookingCancelled(ctx context.Context, actorID uuid.UUID, booking *models.Booking, meta services.RequestMeta) error
	LogBusChange(ctx context.Context, actorID uuid.UUID, action string, bus *models.Bus, meta services.RequestMeta) error
	LogMaintenance(ctx context.Context, actorID *uuid.UUID, job string, details map[string]interface{}) error
}

type nopAudit struct{}

func (nopAudit) LogSignup(context.Context, *models.User, services.RequestMeta) error { return nil }
func (nopAudit) LogLogin(context.Context, *uuid.UUID, string, bool, services.RequestMeta) error {
	return nil
}
func (nopAudit) LogTokenRefresh(context.Context, uuid.UUID, bool, services.RequestMeta) error {
	return nil
}
func (nopAudit) LogBookingCreated(context.Context, uuid.UUID, *models.Booking, services.RequestMeta) error {
	return nil
}
func (nopAudit) LogBookingRejected(context.Context, uuid.UUID, string, *services.ReservationError, services.RequestMeta) error {
	return nil
}
func (nopAudit) LogBookingCancelled(context.Context, uuid.UUID, *models.Booking, services.RequestMeta) error {
	return nil
}
func (nopAudit) LogBusChange(context.Context, uuid.UUID, string, *models.Bus, services.RequestMeta) error {
	return nil
}
func (nopAudit) LogMaintenance(context.Context, *uuid.UUID, string, map[string]interface{}) error {
	return nil
}

func auditOrNop(audit AuditLogger) AuditLogger {
	if audit == nil {
		return nopAudit{}
	}
	return audit
}

func requestMeta(c *gin.Context) services.RequestMeta {
	return services.RequestMeta{
		IPAddress: utils.GetRealIP(c),
		UserAgent: utils.GetUserAgent(c),
	}
}

// logAuditError logs audit failures without failing the request
func logAuditError(logger *logrus.Logger, operation string, err error) {
	if err != nil {
		logger.WithFields(logrus.Fields{
			"operation": operation,
			"error":     err.Error(),
		}).Error("Audit log write failed")
	}
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/bus-booking-backend/internal/services"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Seats   []int  `json:"seats,omitempty"`
	// Remaining is only set for INSUFFICIENT_CAPACITY
	Remaining *int `json:"remaining,omitempty"`
}

func statusForCode(code services.ErrorCode) int {
	switch code {
	case services.CodeNotFound:
		return http.StatusNotFound
	case services.CodeForbidden:
		return http.StatusForbidden
	case services.CodeSeatConflict, services.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// respondError writes a ReservationError with its mapped status, anything else as a 500
func respondError(c *gin.Context, logger *logrus.Logger, err error, fallback string) {
	if re, ok := services.AsReservationError(err); ok {
		resp := ErrorResponse{
			Error:   "reservation_error",
			Message: re.Message,
			Code:    string(re.Code),
			Seats:   re.Seats,
		}
		if re.Code == services.CodeInsufficientCapacity {
			remaining := re.Remaining
			resp.Remaining = &remaining
		}
		c.JSON(statusForCode(re.Code), resp)
		return
	}

	logger.WithFields(logrus.Fields{
		"path":  c.Request.URL.Path,
		"error": err.Error(),
	}).Error(fallback)
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: fallback,
		Code:    "INTERNAL_ERROR",
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "validation_error",
		Message: message,
		Code:    string(services.CodeInvalidRequest),
	})
}

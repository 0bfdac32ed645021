package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/bus-booking-backend/internal/middleware"
	"github.com/smarttransit/bus-booking-backend/internal/models"
	"github.com/smarttransit/bus-booking-backend/internal/services"
)

// LoginLimiter throttles repeated failed logins; *services.RateLimitService implements it
type LoginLimiter interface {
	CheckLogin(ctx context.Context, email, ip string) error
	RecordFailure(ctx context.Context, email, ip string) error
	ClearEmail(ctx context.Context, email string) error
}

// ActivityReader lists a user's recent audit events; *services.AuditService implements it
type ActivityReader interface {
	GetRecentEvents(ctx context.Context, userID uuid.UUID, limit int) ([]services.AuditLogEntry, error)
}

const (
	defaultActivityLimit = 20
	maxActivityLimit     = 100
)

// AuthHandler handles account HTTP requests
type AuthHandler struct {
	authService *services.AuthService
	limiter     LoginLimiter
	activity    ActivityReader
	audit       AuditLogger
	logger      *logrus.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *services.AuthService, audit AuditLogger, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		audit:       auditOrNop(audit),
		logger:      logger,
	}
}

// WithLoginLimiter enables failed-login throttling
func (h *AuthHandler) WithLoginLimiter(limiter LoginLimiter) *AuthHandler {
	h.limiter = limiter
	return h
}

// WithActivity enables the account activity endpoint
func (h *AuthHandler) WithActivity(activity ActivityReader) *AuthHandler {
	h.activity = activity
	return h
}

// Signup handles POST /api/v1/auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name, email, phone and password are required")
		return
	}

	resp, err := h.authService.Signup(c.Request.Context(), req)
	if err != nil {
		var validationErr *services.ValidationError
		switch {
		case errors.As(err, &validationErr):
			badRequest(c, validationErr.Message)
		case errors.Is(err, services.ErrEmailTaken):
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "email_taken",
				Message: "An account with this email already exists",
				Code:    "EMAIL_TAKEN",
			})
		default:
			respondError(c, h.logger, err, "Failed to create account")
		}
		return
	}

	logAuditError(h.logger, "LogSignup", h.audit.LogSignup(c.Request.Context(), resp.User, requestMeta(c)))

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"auth":    resp,
	})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}

	ctx := c.Request.Context()
	meta := requestMeta(c)

	if h.limiter != nil {
		if err := h.limiter.CheckLogin(ctx, req.Email, meta.IPAddress); err != nil {
			var limitErr *services.RateLimitError
			if errors.As(err, &limitErr) {
				retryAfter := int(time.Until(limitErr.RetryAfter).Seconds()) + 1
				c.Header("Retry-After", strconv.Itoa(retryAfter))
				c.JSON(http.StatusTooManyRequests, ErrorResponse{
					Error:   "rate_limited",
					Message: limitErr.Message,
					Code:    "TOO_MANY_ATTEMPTS",
				})
				return
			}
			h.logger.WithError(err).Warn("Login rate limit check failed, continuing")
		}
	}

	resp, err := h.authService.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			if h.limiter != nil {
				if err := h.limiter.RecordFailure(ctx, req.Email, meta.IPAddress); err != nil {
					h.logger.WithError(err).Warn("Failed to record login failure")
				}
			}
			h.logger.WithFields(logrus.Fields{
				"email": req.Email,
				"ip":    meta.IPAddress,
			}).Warn("Login failed")
			logAuditError(h.logger, "LogLogin", h.audit.LogLogin(ctx, h.authService.FindUserID(ctx, req.Email), req.Email, false, meta))
			c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_credentials",
				Message: "Invalid email or password",
				Code:    "INVALID_CREDENTIALS",
			})
			return
		}
		respondError(c, h.logger, err, "Failed to log in")
		return
	}

	if h.limiter != nil {
		if err := h.limiter.ClearEmail(ctx, resp.User.Email); err != nil {
			h.logger.WithError(err).Warn("Failed to clear login failures")
		}
	}
	logAuditError(h.logger, "LogLogin", h.audit.LogLogin(ctx, &resp.User.ID, resp.User.Email, true, meta))

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"auth":    resp,
	})
}

// Refresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "refresh_token is required")
		return
	}

	resp, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, services.ErrInvalidRefreshToken) || errors.Is(err, services.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_refresh_token",
				Message: "Refresh token is invalid or expired",
				Code:    "INVALID_REFRESH_TOKEN",
			})
			return
		}
		respondError(c, h.logger, err, "Failed to refresh token")
		return
	}

	logAuditError(h.logger, "LogTokenRefresh", h.audit.LogTokenRefresh(c.Request.Context(), resp.User.ID, true, requestMeta(c)))

	c.JSON(http.StatusOK, gin.H{
		"message": "Token refreshed successfully",
		"auth":    resp,
	})
}

// Profile handles GET /api/v1/auth/profile
func (h *AuthHandler) Profile(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	user, err := h.authService.Profile(c.Request.Context(), userCtx.UserID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "User not found",
				Code:    string(services.CodeNotFound),
			})
			return
		}
		respondError(c, h.logger, err, "Failed to load profile")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Profile retrieved successfully",
		"user":    user,
	})
}

// Activity handles GET /api/v1/auth/activity?limit=
func (h *AuthHandler) Activity(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	limit := defaultActivityLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			badRequest(c, "limit must be a positive number")
			return
		}
		limit = parsed
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}

	events := []services.AuditLogEntry{}
	if h.activity != nil {
		var err error
		events, err = h.activity.GetRecentEvents(c.Request.Context(), userCtx.UserID, limit)
		if err != nil {
			respondError(c, h.logger, err, "Failed to load account activity")
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Activity retrieved successfully",
		"count":   len(events),
		"events":  events,
	})
}

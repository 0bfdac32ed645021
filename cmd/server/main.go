package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/bus-booking-backend/internal/cache"
	"github.com/smarttransit/bus-booking-backend/internal/config"
	"github.com/smarttransit/bus-booking-backend/internal/database"
	"github.com/smarttransit/bus-booking-backend/internal/events"
	"github.com/smarttransit/bus-booking-backend/internal/handlers"
	"github.com/smarttransit/bus-booking-backend/internal/middleware"
	"github.com/smarttransit/bus-booking-backend/internal/services"
	"github.com/smarttransit/bus-booking-backend/pkg/jwt"
	"github.com/smarttransit/bus-booking-backend/pkg/sms"
	"golang.org/x/sync/errgroup"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting bus booking backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	location, err := cfg.Booking.Location()
	if err != nil {
		logger.Fatalf("Invalid booking timezone: %v", err)
	}

	// Database
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	if cfg.Database.AutoMigrate {
		pg, ok := db.(*database.PostgresDB)
		if !ok {
			logger.Fatal("Migrations need a PostgresDB connection")
		}
		schemaVersion, err := database.RunMigrations(pg)
		if err != nil {
			logger.Fatalf("Failed to run migrations: %v", err)
		}
		logger.WithField("schema_version", schemaVersion).Info("Database migrations applied")
	}

	busRepository := database.NewBusRepository(db)
	bookingRepository := database.NewBookingRepository(db)
	userRepository := database.NewUserRepository(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis is optional: without it events stay in-process and the seat cache is off
	watermillLogger := events.NewLogrusAdapter(logger)
	var (
		transport        *events.Transport
		seatCache        *cache.SeatCache
		idempotencyStore middleware.RedisClient
	)
	if cfg.Redis.URL != "" {
		redisClient, err := cache.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()

		transport, err = events.NewRedisTransport(redisClient, watermillLogger)
		if err != nil {
			logger.Fatalf("Failed to create event transport: %v", err)
		}
		seatCache = cache.NewSeatCache(redisClient, cfg.Redis.SeatCacheTTL)
		idempotencyStore = redisClient
		logger.Info("Redis connected: events on redis streams, seat cache enabled")
	} else {
		transport = events.NewInMemoryTransport(watermillLogger, false)
		logger.Warn("REDIS_URL not set: events delivered in-process, seat cache and idempotency keys disabled")
	}

	// SMS
	var smsGateway sms.Gateway
	if cfg.SMS.Mode == "production" {
		smsGateway = sms.NewHTTPGateway(sms.HTTPConfig{
			APIURL:   cfg.SMS.APIURL,
			Username: cfg.SMS.Username,
			Password: cfg.SMS.Password,
			SenderID: cfg.SMS.SenderID,
			Timeout:  10 * time.Second,
		}, logger)
	} else {
		smsGateway = sms.NewLogGateway(logger)
	}
	logger.WithField("gateway", smsGateway.GetName()).Info("SMS gateway configured")

	// Services
	jwtService := jwt.NewService(
		cfg.JWT.Secret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
	)
	auditService := services.NewAuditService(db)
	authService := services.NewAuthService(userRepository, jwtService, cfg.Security.BcryptCost, logger)
	notificationService := services.NewNotificationService(userRepository, smsGateway, logger)
	rateLimitService := services.NewRateLimitService(db, services.DefaultRateLimitConfig())

	eventService, err := events.NewService(transport, watermillLogger)
	if err != nil {
		logger.Fatalf("Failed to create event service: %v", err)
	}
	if err := eventService.AddHandlers(events.NotificationHandlers(notificationService)...); err != nil {
		logger.Fatalf("Failed to register event handlers: %v", err)
	}

	reservationService := services.NewReservationService(
		busRepository,
		bookingRepository,
		userRepository,
		services.ReservationConfig{
			Location:     location,
			CancelCutoff: cfg.Booking.CancelCutoff,
			MaxAttempts:  cfg.Booking.MaxAttempts,
		},
		logger,
	).WithEventPublisher(eventService)
	ticketService := services.NewTicketService(busRepository, bookingRepository, userRepository)

	cronService := services.NewCronService(bookingRepository, auditService, cfg.Jobs.ReconcileSchedule, logger).
		WithLoginAttemptPruner(rateLimitService)
	if seatCache != nil {
		reservationService.WithSeatCache(seatCache)
		cronService.WithSeatCache(seatCache)
	}
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}

	var audit handlers.AuditLogger
	if cfg.Security.EnableAuditLog {
		audit = auditService
	}

	// Handlers
	authHandler := handlers.NewAuthHandler(authService, audit, logger).
		WithLoginLimiter(rateLimitService).
		WithActivity(auditService)
	busHandler := handlers.NewBusHandler(busRepository, reservationService, audit, logger)
	bookingHandler := handlers.NewBookingHandler(reservationService, ticketService, bookingRepository, audit, logger)
	adminHandler := handlers.NewAdminHandler(bookingRepository, cronService, audit, logger)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Security.EnableRequestLog {
		router.Use(middleware.RequestLogger(logger))
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthCheckHandler(db))

	requireAuth := middleware.AuthMiddleware(jwtService, logger)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/signup", authHandler.Signup)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.GET("/profile", requireAuth, authHandler.Profile)
			auth.GET("/activity", requireAuth, authHandler.Activity)
		}

		buses := v1.Group("/buses")
		{
			buses.GET("/search", busHandler.SearchBuses)
			buses.GET("/:id", busHandler.GetBus)
			buses.GET("/:id/booked-seats", busHandler.GetBookedSeats)
		}

		bookings := v1.Group("/bookings", requireAuth)
		{
			idempotency := middleware.Idempotency(middleware.IdempotencyConfig{
				Redis:  idempotencyStore,
				Logger: logger,
			})
			bookings.POST("", idempotency, bookingHandler.CreateBooking)
			bookings.GET("/my", bookingHandler.MyBookings)
			bookings.PATCH("/:id/cancel", bookingHandler.CancelBooking)
			bookings.GET("/:id/ticket.pdf", bookingHandler.DownloadTicket)
		}

		admin := v1.Group("/admin", requireAuth, middleware.RequireRole(middleware.RoleAdmin))
		{
			admin.GET("/buses", busHandler.ListBuses)
			admin.POST("/buses", busHandler.CreateBus)
			admin.PUT("/buses/:id", busHandler.UpdateBus)
			admin.DELETE("/buses/:id", busHandler.DeleteBus)
			admin.GET("/bookings", adminHandler.ListAllBookings)
			admin.POST("/maintenance/reconcile", adminHandler.ReconcileSeats)
			admin.GET("/maintenance/jobs", adminHandler.JobStatus)
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// The router, the HTTP server and shutdown run as one group: the first
	// failure or a signal cancels gctx and brings the others down.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eventService.Run(gctx)
	})

	g.Go(func() error {
		select {
		case <-eventService.Running():
		case <-gctx.Done():
			return nil
		}
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server forced to shutdown: %v", err)
		}

		logger.Info("Stopping cron service...")
		cronService.Stop()

		logger.Info("Stopping event router...")
		return eventService.Close()
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("Server stopped with error: %v", err)
	}

	logger.Info("Server exited successfully")
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}

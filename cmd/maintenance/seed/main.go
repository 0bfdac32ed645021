package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/bus-booking-backend/internal/config"
	"github.com/smarttransit/bus-booking-backend/internal/database"
	"github.com/smarttransit/bus-booking-backend/internal/models"
	"github.com/smarttransit/bus-booking-backend/internal/services"
	"github.com/smarttransit/bus-booking-backend/internal/utils"
	"github.com/smarttransit/bus-booking-backend/pkg/jwt"
)

type sampleBus struct {
	number     string
	from, to   string
	dayOffset  int
	time       string
	totalSeats int
	price      float64
}

var sampleBuses = []sampleBus{
	{"MH12AB1234", "Mumbai", "Pune", 1, "08:00", 40, 500},
	{"DL01CD5678", "Delhi", "Jaipur", 1, "10:30", 45, 600},
	{"KA03EF9012", "Bangalore", "Chennai", 1, "14:15", 50, 750},
	{"MH14GH3456", "Mumbai", "Goa", 2, "22:00", 35, 800},
	{"UP16IJ7890", "Delhi", "Agra", 1, "06:30", 40, 400},
}

func main() {
	var (
		adminEmail string
		adminPhone string
		skipAdmin  bool
	)
	flag.StringVar(&adminEmail, "admin-email", "admin@busbooking.local", "email of the administrator account to create")
	flag.StringVar(&adminPhone, "admin-phone", "9876543210", "phone number of the administrator account")
	flag.BoolVar(&skipAdmin, "skip-admin", false, "only insert sample buses")
	flag.Parse()

	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	location, err := cfg.Booking.Location()
	if err != nil {
		log.Fatalf("Invalid booking timezone: %v", err)
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	busRepository := database.NewBusRepository(db)
	today := models.DateOf(time.Now().In(location))

	for _, sample := range sampleBuses {
		travel := today.AddDate(0, 0, sample.dayOffset)
		req := models.CreateBusRequest{
			BusNumber:  sample.number,
			From:       sample.from,
			To:         sample.to,
			Date:       travel.Format(models.DateLayout),
			Time:       sample.time,
			TotalSeats: sample.totalSeats,
			Price:      sample.price,
		}
		bus, err := req.Validate(today)
		if err != nil {
			log.Fatalf("Invalid sample bus %s: %v", sample.number, err)
		}
		if err := busRepository.Create(ctx, bus); err != nil {
			if errors.Is(err, database.ErrDuplicateBusNumber) {
				fmt.Printf("  %s already exists, skipped\n", sample.number)
				continue
			}
			log.Fatalf("Failed to create bus %s: %v", sample.number, err)
		}
		fmt.Printf("  %s %s -> %s on %s at %s\n", bus.BusNumber, bus.FromCity, bus.ToCity, bus.TravelDate, bus.DepartureTime)
	}

	if skipAdmin {
		return
	}

	password, err := utils.GeneratePassword(12)
	if err != nil {
		log.Fatalf("Failed to generate password: %v", err)
	}

	userRepository := database.NewUserRepository(db)
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.RefreshSecret, cfg.JWT.AccessTokenExpiry, cfg.JWT.RefreshTokenExpiry)
	authService := services.NewAuthService(userRepository, jwtService, cfg.Security.BcryptCost, logger)

	resp, err := authService.Signup(ctx, models.SignupRequest{
		Name:     "Administrator",
		Email:    adminEmail,
		Phone:    adminPhone,
		Password: password,
	})
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			fmt.Printf("Admin account %s already exists, left unchanged\n", adminEmail)
			return
		}
		log.Fatalf("Failed to create admin account: %v", err)
	}
	if err := userRepository.PromoteToAdmin(ctx, resp.User.ID); err != nil {
		log.Fatalf("Failed to promote admin account: %v", err)
	}

	fmt.Println()
	fmt.Printf("Admin account created: %s\n", resp.User.Email)
	fmt.Printf("Password: %s\n", password)
	fmt.Println("Store it now; it is not shown again.")
}

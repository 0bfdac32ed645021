package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/smarttransit/bus-booking-backend/internal/config"
	"github.com/smarttransit/bus-booking-backend/internal/database"
)

func main() {
	var (
		dbURLFlag string
		all       bool
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.BoolVar(&all, "all", false, "also truncate buses, users and audit logs")
	flag.Parse()

	// .env is optional; it keeps secrets off the command line
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	deleted, err := database.NewBookingRepository(db).DeleteAllBookings(ctx)
	if err != nil {
		log.Fatalf("failed to clear bookings: %v", err)
	}
	fmt.Printf("Deleted %d bookings and restored every bus to full capacity.\n", deleted)

	tables := []string{"bookings", "booking_seats", "buses", "users", "audit_logs", "login_attempts"}

	if all {
		truncateSQL := `TRUNCATE TABLE booking_seats, bookings, buses, audit_logs, login_attempts, users RESTART IDENTITY CASCADE`
		if _, err := db.ExecContext(ctx, truncateSQL); err != nil {
			log.Fatalf("failed to truncate tables: %v", err)
		}
		fmt.Println("All data cleared (tables truncated, identities reset).")
	}

	fmt.Println("Post-clear row counts:")
	for _, t := range tables {
		var count int
		if err := db.GetContext(ctx, &count, fmt.Sprintf("SELECT COUNT(*) FROM %s", t)); err != nil {
			fmt.Printf("  %s: error: %v\n", t, err)
			continue
		}
		fmt.Printf("  %s: %d\n", t, count)
	}
}

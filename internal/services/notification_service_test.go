package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/smarttransit/bus-booking-backend/internal/events"
	"github.com/smarttransit/bus-booking-backend/internal/models"
	"github.com/smarttransit/bus-booking-backend/pkg/sms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingGateway struct{}

func (failingGateway) Send(ctx context.Context, phone, message string) (int64, error) {
	return 0, errors.New("provider down")
}

func (failingGateway) GetName() string { return "failing" }

func confirmedEvent(userID uuid.UUID) *events.BookingConfirmed {
	return &events.BookingConfirmed{
		Header:      events.NewHeader(),
		BookingID:   "0f8fad5b-d9cb-469f-a165-70867728950e",
		UserID:      userID,
		Seats:       []int{3, 4},
		TotalAmount: 1000,
		Trip: events.Trip{
			BusNumber: "MH12AB1234", From: "Mumbai", To: "Pune", Date: "2026-06-02", Time: "08:00",
		},
	}
}

func TestNotificationService_SendsConfirmation(t *testing.T) {
	db := newMemoryDB()
	userID := db.addUser(models.UserRoleUser)
	gateway := sms.NewLogGateway(testLogger())
	service := NewNotificationService(memoryUsers{db}, gateway, testLogger())

	require.NoError(t, service.NotifyBookingConfirmed(context.Background(), confirmedEvent(userID)))

	sent := gateway.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "9876543210", sent[0].Phone)
	assert.Contains(t, sent[0].Message, "0f8fad5b confirmed")
	assert.Contains(t, sent[0].Message, "seats 3, 4")
	assert.Contains(t, sent[0].Message, "Rs 1000.00")
}

func TestNotificationService_SendsCancellation(t *testing.T) {
	db := newMemoryDB()
	userID := db.addUser(models.UserRoleUser)
	gateway := sms.NewLogGateway(testLogger())
	service := NewNotificationService(memoryUsers{db}, gateway, testLogger())

	err := service.NotifyBookingCancelled(context.Background(), &events.BookingCancelled{
		Header: events.NewHeader(), BookingID: "abc", UserID: userID, RefundAmount: 500,
		Trip: events.Trip{BusNumber: "MH12AB1234", Date: "2026-06-02"},
	})
	require.NoError(t, err)
	require.Len(t, gateway.Sent(), 1)
	assert.Contains(t, gateway.Sent()[0].Message, "cancelled")
}

func TestNotificationService_SkipsUnknownOrPhonelessUsers(t *testing.T) {
	db := newMemoryDB()
	gateway := sms.NewLogGateway(testLogger())
	service := NewNotificationService(memoryUsers{db}, gateway, testLogger())

	assert.NoError(t, service.NotifyBookingConfirmed(context.Background(), confirmedEvent(uuid.New())))

	userID := db.addUser(models.UserRoleUser)
	db.users[userID].Phone = ""
	assert.NoError(t, service.NotifyBookingConfirmed(context.Background(), confirmedEvent(userID)))

	assert.Empty(t, gateway.Sent())
}

func TestNotificationService_GatewayFailureIsReturned(t *testing.T) {
	db := newMemoryDB()
	userID := db.addUser(models.UserRoleUser)
	service := NewNotificationService(memoryUsers{db}, failingGateway{}, testLogger())

	err := service.NotifyBookingConfirmed(context.Background(), confirmedEvent(userID))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider down")
}

package services

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/smarttransit/bus-booking-backend/internal/database"
	"github.com/smarttransit/bus-booking-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jsonDetails matches the details argument when it decodes to a map containing want
type jsonDetails map[string]interface{}

func (want jsonDetails) Match(v driver.Value) bool {
	raw, ok := v.(string)
	if !ok {
		return false
	}
	var got map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		return false
	}
	for k, expected := range want {
		if got[k] != expected {
			return false
		}
	}
	return true
}

func newAuditService(t *testing.T) (*AuditService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAuditService(database.NewFromSQL(db)), mock
}

var testMeta = RequestMeta{IPAddress: "203.0.113.9", UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"}

func TestAuditService_LogLogin(t *testing.T) {
	service, mock := newAuditService(t)
	userID := uuid.New()

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(userID.String(), "login", "user", userID.String(), testMeta.IPAddress, testMeta.UserAgent,
			jsonDetails{"email": "asha@example.com", "success": true}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := service.LogLogin(context.Background(), &userID, "asha@example.com", true, testMeta)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_LogFailedLoginWithoutUser(t *testing.T) {
	service, mock := newAuditService(t)

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(nil, "login_failed", "user", "", testMeta.IPAddress, testMeta.UserAgent,
			jsonDetails{"success": false}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := service.LogLogin(context.Background(), nil, "nobody@example.com", false, testMeta)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_LogBookingCancelledOnBehalf(t *testing.T) {
	service, mock := newAuditService(t)
	admin := uuid.New()
	booking := &models.Booking{ID: uuid.NewString(), UserID: uuid.New(), BusID: uuid.NewString(), SeatsBooked: models.IntArray{1, 2}}

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(admin.String(), "booking_cancelled", "booking", booking.ID, sqlmock.AnyArg(), sqlmock.AnyArg(),
			jsonDetails{"on_behalf_of": true, "bus_id": booking.BusID}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := service.LogBookingCancelled(context.Background(), admin, booking, testMeta)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_LogBookingRejected(t *testing.T) {
	service, mock := newAuditService(t)
	userID := uuid.New()
	rejection := newReservationError(CodeSeatConflict, "seats already booked: 5")
	rejection.Seats = []int{5}

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(userID.String(), "booking_create_rejected", "booking", "", sqlmock.AnyArg(), sqlmock.AnyArg(),
			jsonDetails{"code": "SEAT_CONFLICT"}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := service.LogBookingRejected(context.Background(), userID, "booking_create", rejection, testMeta)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_DatabaseError(t *testing.T) {
	service, mock := newAuditService(t)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnError(errors.New("connection reset"))

	err := service.LogMaintenance(context.Background(), nil, "reconcile", map[string]interface{}{"corrected": 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to log audit event")
}

func TestAuditService_CleanupOldAuditLogs(t *testing.T) {
	service, mock := newAuditService(t)

	mock.ExpectExec("DELETE FROM audit_logs WHERE created_at <").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 7))

	deleted, err := service.CleanupOldAuditLogs(context.Background(), 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)
}

func TestAuditService_GetRecentEvents(t *testing.T) {
	service, mock := newAuditService(t)
	userID := uuid.New()
	bookingID := uuid.NewString()

	rows := sqlmock.NewRows([]string{"action", "entity_type", "entity_id", "ip_address", "details", "created_at"}).
		AddRow("booking_created", "booking", bookingID, "203.0.113.9", []byte(`{"seats":[3,4]}`), time.Now()).
		AddRow("login", "user", userID.String(), nil, []byte(`{}`), time.Now())
	mock.ExpectQuery("SELECT action, entity_type, entity_id, ip_address, details, created_at FROM audit_logs").
		WithArgs(userID, 2).
		WillReturnRows(rows)

	events, err := service.GetRecentEvents(context.Background(), userID, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "booking_created", events[0].Action)
	require.NotNil(t, events[0].EntityID)
	assert.Equal(t, bookingID, *events[0].EntityID)
	assert.JSONEq(t, `{"seats":[3,4]}`, string(events[0].Details))
	assert.Nil(t, events[1].IPAddress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

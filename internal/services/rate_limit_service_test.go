package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/smarttransit/bus-booking-backend/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRateLimitTest(t *testing.T) (*RateLimitService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	service := NewRateLimitService(database.NewFromSQL(db), DefaultRateLimitConfig())
	service.now = func() time.Time { return fixedNow }
	return service, mock
}

func countRows(count int, last time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"count", "last_attempt"}).AddRow(count, last)
}

func TestCheckLogin_NoFailures(t *testing.T) {
	service, mock := setupRateLimitTest(t)

	mock.ExpectQuery("SELECT COUNT(.+) FROM login_attempts").
		WithArgs("asha@example.com", "email", fixedNow.Add(-15*time.Minute)).
		WillReturnRows(countRows(0, fixedNow))
	mock.ExpectQuery("SELECT COUNT(.+) FROM login_attempts").
		WithArgs("203.0.113.9", "ip", fixedNow.Add(-time.Hour)).
		WillReturnRows(countRows(0, fixedNow))

	err := service.CheckLogin(context.Background(), " Asha@Example.com ", "203.0.113.9")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckLogin_EmailExceeded(t *testing.T) {
	service, mock := setupRateLimitTest(t)
	last := fixedNow.Add(-5 * time.Minute)

	mock.ExpectQuery("SELECT COUNT(.+) FROM login_attempts").
		WithArgs("asha@example.com", "email", sqlmock.AnyArg()).
		WillReturnRows(countRows(5, last))

	err := service.CheckLogin(context.Background(), "asha@example.com", "203.0.113.9")
	require.Error(t, err)

	rateLimitErr, ok := err.(*RateLimitError)
	require.True(t, ok, "Error should be RateLimitError")
	assert.Equal(t, "email", rateLimitErr.Type)
	assert.Equal(t, last.Add(15*time.Minute), rateLimitErr.RetryAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckLogin_IPExceeded(t *testing.T) {
	service, mock := setupRateLimitTest(t)
	last := fixedNow.Add(-30 * time.Minute)

	mock.ExpectQuery("SELECT COUNT(.+) FROM login_attempts").
		WithArgs("asha@example.com", "email", sqlmock.AnyArg()).
		WillReturnRows(countRows(2, last))
	mock.ExpectQuery("SELECT COUNT(.+) FROM login_attempts").
		WithArgs("203.0.113.9", "ip", sqlmock.AnyArg()).
		WillReturnRows(countRows(20, last))

	err := service.CheckLogin(context.Background(), "asha@example.com", "203.0.113.9")
	rateLimitErr, ok := err.(*RateLimitError)
	require.True(t, ok)
	assert.Equal(t, "ip", rateLimitErr.Type)
	assert.Contains(t, rateLimitErr.Message, "from this IP address")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckLogin_DatabaseError(t *testing.T) {
	service, mock := setupRateLimitTest(t)

	mock.ExpectQuery("SELECT COUNT(.+) FROM login_attempts").
		WillReturnError(assert.AnError)

	err := service.CheckLogin(context.Background(), "asha@example.com", "")
	require.Error(t, err)
	_, isLimit := err.(*RateLimitError)
	assert.False(t, isLimit)
}

func TestRecordFailure(t *testing.T) {
	service, mock := setupRateLimitTest(t)

	mock.ExpectExec("INSERT INTO login_attempts").
		WithArgs("asha@example.com", "email").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO login_attempts").
		WithArgs("203.0.113.9", "ip").
		WillReturnResult(sqlmock.NewResult(2, 1))

	assert.NoError(t, service.RecordFailure(context.Background(), "ASHA@example.com", "203.0.113.9"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearEmailAndCleanup(t *testing.T) {
	service, mock := setupRateLimitTest(t)

	mock.ExpectExec("DELETE FROM login_attempts WHERE identifier").
		WithArgs("asha@example.com").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM login_attempts WHERE created_at").
		WithArgs(fixedNow.Add(-time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 7))

	require.NoError(t, service.ClearEmail(context.Background(), "asha@example.com"))
	deleted, err := service.CleanupExpiredAttempts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

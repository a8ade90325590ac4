package data

import (
	"context"
	"errors"
	"testing"
	"time"

	dberrors "PuckRelay/pkg/errors"

	"github.com/DATA-DOG/go-sqlmock"
	gomysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMySQLRateLimitRepo_GetHitDate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMySQLRateLimitRepo(db, newTestLogger())
	ctx := context.Background()

	mock.ExpectQuery("SELECT \\* FROM `provider_rate_limits` WHERE provider = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"provider", "hit_date", "updated_at"}).
			AddRow("gemini", "2026-10-16", time.Now()))

	day, found, err := repo.GetHitDate(ctx, "gemini")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2026-10-16", day)

	// no row
	mock.ExpectQuery("SELECT \\* FROM `provider_rate_limits` WHERE provider = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"provider", "hit_date", "updated_at"}))

	day, found, err = repo.GetHitDate(ctx, "relay")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, day)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLRateLimitRepo_GetHitDate_Error(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMySQLRateLimitRepo(db, newTestLogger())

	mock.ExpectQuery("SELECT \\* FROM `provider_rate_limits`").
		WillReturnError(&gomysql.MySQLError{Number: 1146, Message: "Table 'puckrelay.provider_rate_limits' doesn't exist"})

	_, _, err := repo.GetHitDate(context.Background(), "gemini")
	require.Error(t, err)

	var dbErr *dberrors.DatabaseError
	require.True(t, errors.As(err, &dbErr))
	assert.Equal(t, dberrors.ErrorTypeSchema, dbErr.Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLRateLimitRepo_SetHitDate_Upsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMySQLRateLimitRepo(db, newTestLogger())

	mock.ExpectExec("INSERT INTO `provider_rate_limits` .* ON DUPLICATE KEY UPDATE").
		WithArgs("gemini", "2026-10-16", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetHitDate(context.Background(), "gemini", "2026-10-16"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLRateLimitRepo_SetHitDate_RetriesDeadlock(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMySQLRateLimitRepo(db, newTestLogger())

	mock.ExpectExec("INSERT INTO `provider_rate_limits`").
		WillReturnError(&gomysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"})
	mock.ExpectExec("INSERT INTO `provider_rate_limits`").
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.SetHitDate(context.Background(), "gemini", "2026-10-16"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLRateLimitRepo_SetHitDate_NoRetryOnPermanentError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMySQLRateLimitRepo(db, newTestLogger())

	mock.ExpectExec("INSERT INTO `provider_rate_limits`").
		WillReturnError(&gomysql.MySQLError{Number: 1054, Message: "Unknown column 'hit_date'"})

	err := repo.SetHitDate(context.Background(), "gemini", "2026-10-16")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown column")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLRateLimitRepo_ClearHitDate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMySQLRateLimitRepo(db, newTestLogger())
	ctx := context.Background()

	mock.ExpectExec("DELETE FROM `provider_rate_limits` WHERE provider = \\? AND hit_date = \\?").
		WithArgs("gemini", "2026-10-15").
		WillReturnResult(sqlmock.NewResult(0, 1))
	cleared, err := repo.ClearHitDate(ctx, "gemini", "2026-10-15")
	require.NoError(t, err)
	assert.True(t, cleared)

	// a newer day was written in between
	mock.ExpectExec("DELETE FROM `provider_rate_limits` WHERE provider = \\? AND hit_date = \\?").
		WithArgs("gemini", "2026-10-15").
		WillReturnResult(sqlmock.NewResult(0, 0))
	cleared, err = repo.ClearHitDate(ctx, "gemini", "2026-10-15")
	require.NoError(t, err)
	assert.False(t, cleared)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLRateLimitRepo_DeleteHitDate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMySQLRateLimitRepo(db, newTestLogger())

	mock.ExpectExec("DELETE FROM `provider_rate_limits` WHERE provider = \\?").
		WithArgs("gemini").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.DeleteHitDate(context.Background(), "gemini"))

	mock.ExpectExec("DELETE FROM `provider_rate_limits`").
		WillReturnError(errors.New("dial tcp 10.0.0.5:3306: connect: connection refused"))
	err := repo.DeleteHitDate(context.Background(), "gemini")
	require.Error(t, err)
	assert.True(t, dberrors.IsRetryable(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

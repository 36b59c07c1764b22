package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmesh/timetable-api/internal/models"
)

func newTokenRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTokenRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newTokenRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO refresh_tokens")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	token := &models.RefreshToken{
		UserID:    "u-1",
		TokenHash: "0f3c4a",
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	require.NoError(t, repo.Create(context.Background(), token))
	assert.NotEmpty(t, token.ID)
	assert.False(t, token.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryFindByHash(t *testing.T) {
	db, mock, cleanup := newTokenRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "created_at", "revoked", "revoked_at", "ip_address", "user_agent"}).
		AddRow("rt-1", "u-1", "0f3c4a", time.Now().Add(time.Hour), time.Now(), false, nil, "127.0.0.1", "cli")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, token_hash, expires_at, created_at, revoked, revoked_at, ip_address, user_agent FROM refresh_tokens WHERE token_hash = $1 LIMIT 1")).
		WithArgs("0f3c4a").
		WillReturnRows(rows)

	token, err := repo.FindByHash(context.Background(), "0f3c4a")
	require.NoError(t, err)
	assert.Equal(t, "u-1", token.UserID)
	assert.False(t, token.Revoked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryFindByHashMissing(t *testing.T) {
	db, mock, cleanup := newTokenRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, token_hash, expires_at, created_at, revoked, revoked_at, ip_address, user_agent FROM refresh_tokens WHERE token_hash = $1 LIMIT 1")).
		WithArgs("deadbeef").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByHash(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryRevokeForUser(t *testing.T) {
	db, mock, cleanup := newTokenRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE")).
		WithArgs("u-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 3))

	require.NoError(t, repo.RevokeForUser(context.Background(), "u-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryDeleteExpired(t *testing.T) {
	db, mock, cleanup := newTokenRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE expires_at < $1")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := repo.DeleteExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

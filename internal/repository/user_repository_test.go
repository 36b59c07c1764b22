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

func newUserRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestUserRepositoryFindByUsername(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "role", "active", "last_login_at", "created_at", "updated_at"}).
		AddRow("u-1", "admin", "admin@example.edu", "hash", string(models.RoleAdmin), true, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, username, email, password_hash, role, active, last_login_at, created_at, updated_at FROM users WHERE LOWER(username) = LOWER($1) LIMIT 1")).
		WithArgs("Admin").
		WillReturnRows(rows)

	user, err := repo.FindByUsername(context.Background(), "Admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Username)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByUsernameNotFound(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, username, email, password_hash, role, active, last_login_at, created_at, updated_at FROM users WHERE LOWER(username) = LOWER($1) LIMIT 1")).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryExistsByUsername(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM users WHERE LOWER(username) = LOWER($1) AND id <> $2 LIMIT 1")).
		WithArgs("admin", "u-2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(1))

	exists, err := repo.ExistsByUsername(context.Background(), "admin", "u-2")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM users WHERE LOWER(username) = LOWER($1) LIMIT 1")).
		WithArgs("fresh").
		WillReturnError(sql.ErrNoRows)

	exists, err = repo.ExistsByUsername(context.Background(), "fresh", "")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreateFillsDefaults(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	user := &models.User{
		Username:     "scheduler",
		Email:        "scheduler@example.edu",
		PasswordHash: "hash",
		Role:         models.RoleFaculty,
		Active:       true,
	}
	require.NoError(t, repo.Create(context.Background(), user))
	assert.NotEmpty(t, user.ID)
	assert.False(t, user.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryListFiltersByRole(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "role", "active", "last_login_at", "created_at", "updated_at"}).
		AddRow("u-1", "viewer1", "v1@example.edu", "hash", string(models.RoleViewer), true, nil, now, now).
		AddRow("u-2", "viewer2", "v2@example.edu", "hash", string(models.RoleViewer), true, nil, now, now)
	mock.ExpectQuery("SELECT id, username, email, password_hash, role, active, last_login_at, created_at, updated_at FROM users WHERE 1=1 AND role = \\$1 ORDER BY created_at DESC LIMIT 20 OFFSET 0").
		WithArgs(models.RoleViewer).
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users WHERE 1=1 AND role = \\$1").
		WithArgs(models.RoleViewer).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	role := models.RoleViewer
	users, total, err := repo.List(context.Background(), models.UserFilter{Role: &role})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, 2, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryDeleteDeactivates(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET active = FALSE, updated_at = $2 WHERE id = $1")).
		WithArgs("u-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Delete(context.Background(), "u-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmesh/timetable-api/internal/models"
)

func newConstraintRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestConstraintRepositoryList(t *testing.T) {
	db, mock, cleanup := newConstraintRepoMock(t)
	defer cleanup()
	repo := NewConstraintRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "kind", "enabled", "weight", "description", "updated_at"}).
		AddRow("c-1", "no_faculty_conflict", "hard", true, 0.0, "a faculty member teaches at most once per period", time.Now()).
		AddRow("c-2", "minimize_faculty_gaps", "soft", true, 2.0, "penalize idle periods between faculty sessions", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, kind, enabled, weight, description, updated_at FROM constraint_configs ORDER BY kind ASC, name ASC")).
		WillReturnRows(rows)

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "hard", list[0].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConstraintRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newConstraintRepoMock(t)
	defer cleanup()
	repo := NewConstraintRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE constraint_configs SET enabled = :enabled, weight = :weight, updated_at = :updated_at WHERE name = :name")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	config := &models.ConstraintConfig{Name: "minimize_batch_gaps", Enabled: false, Weight: 3.5}
	require.NoError(t, repo.Update(context.Background(), config))
	assert.False(t, config.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConstraintRepositorySeedDefaultsInsertsMissing(t *testing.T) {
	db, mock, cleanup := newConstraintRepoMock(t)
	defer cleanup()
	repo := NewConstraintRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO constraint_configs")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO constraint_configs")).
		WillReturnResult(sqlmock.NewResult(1, 0))
	mock.ExpectCommit()

	defaults := []models.ConstraintConfig{
		{Name: "no_room_conflict", Kind: "hard", Enabled: true},
		{Name: "room_capacity", Kind: "hard", Enabled: true},
	}
	require.NoError(t, repo.SeedDefaults(context.Background(), defaults))
	assert.NotEmpty(t, defaults[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConstraintRepositorySeedDefaultsEmpty(t *testing.T) {
	db, mock, cleanup := newConstraintRepoMock(t)
	defer cleanup()
	repo := NewConstraintRepository(db)

	require.NoError(t, repo.SeedDefaults(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmesh/timetable-api/internal/models"
)

func newTimetableRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTimetableRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetables")).
		WithArgs(sqlmock.AnyArg(), "Autumn draft", "csp", string(models.TimetableStatusDraft), 1000.0, sqlmock.AnyArg(), nil, int64(42), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	payload := &models.Timetable{
		Name:         "Autumn draft",
		Algorithm:    "csp",
		FitnessScore: 1000,
		BatchIDs:     types.JSONText(`["b-1"]`),
		ElapsedMs:    42,
	}
	err := repo.Create(context.Background(), nil, payload)
	require.NoError(t, err)
	assert.NotEmpty(t, payload.ID)
	assert.Equal(t, models.TimetableStatusDraft, payload.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryInsertSlots(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_slots")).
		WithArgs(sqlmock.AnyArg(), "tt-1", "b-1", "s-1", "f-1", "r-1", 0, 1, "theory", false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_slots")).
		WithArgs(sqlmock.AnyArg(), "tt-1", "b-1", "s-2", "f-2", "r-2", 1, 2, "lab", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	slots := []models.TimetableSlot{
		{TimetableID: "tt-1", BatchID: "b-1", SubjectID: "s-1", FacultyID: "f-1", RoomID: "r-1", DayIndex: 0, PeriodIndex: 1, Kind: "theory"},
		{TimetableID: "tt-1", BatchID: "b-1", SubjectID: "s-2", FacultyID: "f-2", RoomID: "r-2", DayIndex: 1, PeriodIndex: 2, Kind: "lab", IsFixed: true},
	}
	require.NoError(t, repo.InsertSlots(context.Background(), nil, slots))
	assert.NotEmpty(t, slots[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryList(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "algorithm", "status", "fitness_score", "batch_ids", "created_by", "elapsed_ms", "created_at", "updated_at"}).
		AddRow("tt-1", "Autumn draft", "genetic_cpu", "draft", 942.5, types.JSONText(`["b-1"]`), nil, int64(1200), time.Now(), time.Now())
	mock.ExpectQuery("SELECT id, name, algorithm, status, fitness_score, batch_ids, created_by, elapsed_ms, created_at, updated_at FROM timetables WHERE 1=1 AND status = \\$1 ORDER BY created_at DESC LIMIT 20 OFFSET 0").
		WithArgs("draft").
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM timetables WHERE 1=1 AND status = \\$1").
		WithArgs("draft").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.TimetableFilter{Status: "draft"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "genetic_cpu", list[0].Algorithm)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryUpdateStatusNotFound(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetables SET status = $1, updated_at = $2 WHERE id = $3")).
		WithArgs(string(models.TimetableStatusActive), sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(1, 0))

	err := repo.UpdateStatus(context.Background(), nil, "missing", models.TimetableStatusActive)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryArchiveActive(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetables SET status = 'archived', updated_at = $1 WHERE status = 'active' AND id <> $2")).
		WithArgs(sqlmock.AnyArg(), "tt-2").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.ArchiveActive(context.Background(), nil, "tt-2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryDeleteNotFound(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetables WHERE id = $1")).
		WithArgs("tt-9").
		WillReturnResult(sqlmock.NewResult(1, 0))

	err := repo.Delete(context.Background(), "tt-9")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusmesh/timetable-api/internal/domain"
	"github.com/campusmesh/timetable-api/internal/models"
	appErrors "github.com/campusmesh/timetable-api/pkg/errors"
)

type fakeTimetableRepo struct {
	timetables map[string]*models.Timetable
	slots      map[string][]models.TimetableSlot
	archived   []string
	statuses   []models.TimetableStatus
	deleted    []string
}

func newFakeTimetableRepo(timetables ...*models.Timetable) *fakeTimetableRepo {
	repo := &fakeTimetableRepo{
		timetables: map[string]*models.Timetable{},
		slots:      map[string][]models.TimetableSlot{},
	}
	for _, t := range timetables {
		repo.timetables[t.ID] = t
	}
	return repo
}

func (f *fakeTimetableRepo) List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, int, error) {
	var out []models.Timetable
	for _, t := range f.timetables {
		out = append(out, *t)
	}
	return out, len(out), nil
}

func (f *fakeTimetableRepo) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	t, ok := f.timetables[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	found := *t
	return &found, nil
}

func (f *fakeTimetableRepo) ListSlots(ctx context.Context, timetableID string) ([]models.TimetableSlot, error) {
	return f.slots[timetableID], nil
}

func (f *fakeTimetableRepo) CountSlots(ctx context.Context, timetableID string) (int, error) {
	return len(f.slots[timetableID]), nil
}

func (f *fakeTimetableRepo) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus) error {
	t, ok := f.timetables[id]
	if !ok {
		return sql.ErrNoRows
	}
	t.Status = status
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeTimetableRepo) ArchiveActive(ctx context.Context, exec sqlx.ExtContext, exceptID string) error {
	f.archived = append(f.archived, exceptID)
	for id, t := range f.timetables {
		if id != exceptID && t.Status == models.TimetableStatusActive {
			t.Status = models.TimetableStatusArchived
		}
	}
	return nil
}

func (f *fakeTimetableRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.timetables[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.timetables, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type stubCalendarSource struct {
	cal domain.Calendar
	err error
}

func (s *stubCalendarSource) Calendar(ctx context.Context) (domain.Calendar, error) {
	return s.cal, s.err
}

type stubBatchList struct{ items []models.Batch }

func (s *stubBatchList) ListAll(ctx context.Context) ([]models.Batch, error) { return s.items, nil }

type stubSubjectList struct{ items []models.Subject }

func (s *stubSubjectList) ListAll(ctx context.Context) ([]models.Subject, error) {
	return s.items, nil
}

type stubFacultyList struct{ items []models.Faculty }

func (s *stubFacultyList) ListAll(ctx context.Context) ([]models.Faculty, error) {
	return s.items, nil
}

type stubRoomList struct{ items []models.Room }

func (s *stubRoomList) ListAll(ctx context.Context) ([]models.Room, error) { return s.items, nil }

func newTimetableFixture(t *testing.T, repo *fakeTimetableRepo) (*TimetableService, sqlmock.Sqlmock, *mockActivityLog) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	audit := &mockActivityLog{}
	svc := NewTimetableService(
		repo,
		sqlx.NewDb(db, "sqlmock"),
		&stubSnapshots{snap: schedulingSnapshot()},
		&stubCalendarSource{cal: domain.NewCalendar(
			[]string{"monday", "tuesday", "wednesday"},
			[]string{"09:00", "10:00", "11:00", "12:00"},
		)},
		&stubBatchList{items: []models.Batch{{ID: "b1", Name: "CS-3A"}}},
		&stubSubjectList{items: []models.Subject{{ID: "s-dsa", Code: "CS301", Name: "Data Structures"}}},
		&stubFacultyList{items: []models.Faculty{{ID: "f1", Name: "Asha Rao"}}},
		&stubRoomList{items: []models.Room{{ID: "r1", Name: "C-101"}}},
		nil,
		audit,
		zap.NewNop(),
	)
	return svc, mock, audit
}

func TestTimetableViewByBatch(t *testing.T) {
	repo := newFakeTimetableRepo(&models.Timetable{ID: "t1", Name: "Week 1", Status: models.TimetableStatusDraft})
	repo.slots["t1"] = []models.TimetableSlot{
		{TimetableID: "t1", BatchID: "b1", SubjectID: "s-dsa", FacultyID: "f1", RoomID: "r1", DayIndex: 0, PeriodIndex: 0, Kind: "theory"},
		{TimetableID: "t1", BatchID: "b1", SubjectID: "s-dsa", FacultyID: "f1", RoomID: "r1", DayIndex: 1, PeriodIndex: 2, Kind: "theory", IsFixed: true},
		{TimetableID: "t1", BatchID: "b2", SubjectID: "s-dsa", FacultyID: "f1", RoomID: "r1", DayIndex: 0, PeriodIndex: 1, Kind: "theory"},
	}
	svc, _, _ := newTimetableFixture(t, repo)

	view, err := svc.View(context.Background(), "t1", "batch", "b1")
	require.NoError(t, err)

	assert.Equal(t, "CS-3A", view.EntityName)
	assert.Equal(t, []string{"monday", "tuesday", "wednesday"}, view.Days)
	require.Len(t, view.Rows, 3)
	require.Len(t, view.Rows[0].Cells, 4)

	cell := view.Rows[0].Cells[0]
	require.NotNil(t, cell)
	assert.Equal(t, "CS301", cell.SubjectCode)
	assert.Equal(t, "Data Structures", cell.SubjectName)
	assert.Equal(t, "Asha Rao", cell.FacultyName)
	assert.Equal(t, "C-101", cell.RoomName)
	assert.Empty(t, cell.BatchName, "batch views leave the batch implicit")
	assert.False(t, cell.IsFixed)

	pinned := view.Rows[1].Cells[2]
	require.NotNil(t, pinned)
	assert.True(t, pinned.IsFixed)

	// The other batch's slot and unoccupied periods stay empty.
	assert.Nil(t, view.Rows[0].Cells[1])
	assert.Nil(t, view.Rows[2].Cells[0])
}

func TestTimetableViewByFacultyKeepsBatchName(t *testing.T) {
	repo := newFakeTimetableRepo(&models.Timetable{ID: "t1", Status: models.TimetableStatusDraft})
	repo.slots["t1"] = []models.TimetableSlot{
		{TimetableID: "t1", BatchID: "b1", SubjectID: "s-dsa", FacultyID: "f1", RoomID: "r1", DayIndex: 0, PeriodIndex: 0, Kind: "theory"},
	}
	svc, _, _ := newTimetableFixture(t, repo)

	view, err := svc.View(context.Background(), "t1", "faculty", "f1")
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", view.EntityName)

	cell := view.Rows[0].Cells[0]
	require.NotNil(t, cell)
	assert.Equal(t, "CS-3A", cell.BatchName)
}

func TestTimetableViewRejectsBadInput(t *testing.T) {
	repo := newFakeTimetableRepo(&models.Timetable{ID: "t1", Status: models.TimetableStatusDraft})
	svc, _, _ := newTimetableFixture(t, repo)

	_, err := svc.View(context.Background(), "t1", "semester", "b1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.View(context.Background(), "t1", "batch", "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.View(context.Background(), "missing", "batch", "b1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTimetableActivateArchivesPrevious(t *testing.T) {
	repo := newFakeTimetableRepo(
		&models.Timetable{ID: "t-old", Name: "Week 1", Status: models.TimetableStatusActive},
		&models.Timetable{ID: "t-new", Name: "Week 2", Status: models.TimetableStatusDraft},
	)
	svc, mock, audit := newTimetableFixture(t, repo)

	mock.ExpectBegin()
	mock.ExpectCommit()

	activated, err := svc.Activate(context.Background(), models.Actor{ID: "u1", Username: "admin"}, "t-new")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, models.TimetableStatusActive, activated.Status)
	assert.Equal(t, models.TimetableStatusArchived, repo.timetables["t-old"].Status)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.ActivityTimetableActivate, audit.entries[0].Action)

	// Re-activating is a no-op without another transaction.
	again, err := svc.Activate(context.Background(), models.Actor{ID: "u1"}, "t-new")
	require.NoError(t, err)
	assert.Equal(t, models.TimetableStatusActive, again.Status)
	assert.Len(t, repo.statuses, 1)
}

func TestTimetableDelete(t *testing.T) {
	repo := newFakeTimetableRepo(
		&models.Timetable{ID: "t-draft", Name: "Draft", Status: models.TimetableStatusDraft},
		&models.Timetable{ID: "t-active", Name: "Live", Status: models.TimetableStatusActive},
	)
	svc, _, audit := newTimetableFixture(t, repo)

	err := svc.Delete(context.Background(), models.Actor{ID: "u1"}, "t-active")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Delete(context.Background(), models.Actor{ID: "u1"}, "t-draft"))
	assert.Equal(t, []string{"t-draft"}, repo.deleted)
	require.NotEmpty(t, audit.entries)
	assert.Equal(t, models.ActivityTimetableDelete, audit.entries[len(audit.entries)-1].Action)

	err = svc.Delete(context.Background(), models.Actor{ID: "u1"}, "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTimetableGetCountsSlots(t *testing.T) {
	repo := newFakeTimetableRepo(&models.Timetable{ID: "t1", Status: models.TimetableStatusDraft})
	repo.slots["t1"] = []models.TimetableSlot{
		{TimetableID: "t1", BatchID: "b1", DayIndex: 0, PeriodIndex: 0},
		{TimetableID: "t1", BatchID: "b1", DayIndex: 1, PeriodIndex: 0},
	}
	svc, _, _ := newTimetableFixture(t, repo)

	timetable, count, err := svc.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", timetable.ID)
	assert.Equal(t, 2, count)

	_, _, err = svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTimetableValidateReportsConflicts(t *testing.T) {
	repo := newFakeTimetableRepo(&models.Timetable{ID: "t1", Status: models.TimetableStatusDraft})
	repo.slots["t1"] = []models.TimetableSlot{
		{TimetableID: "t1", BatchID: "b1", SubjectID: "s-dsa", FacultyID: "f1", RoomID: "r1", DayIndex: 0, PeriodIndex: 0},
		{TimetableID: "t1", BatchID: "b2", SubjectID: "s-dsa", FacultyID: "f1", RoomID: "r1", DayIndex: 0, PeriodIndex: 0},
	}
	svc, _, _ := newTimetableFixture(t, repo)

	report, err := svc.Validate(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, report.Valid)

	constraints := map[string]bool{}
	for _, conflict := range report.Conflicts {
		constraints[conflict.Constraint] = true
		assert.NotEmpty(t, conflict.Message)
	}
	assert.True(t, constraints[domain.ConstraintNoFacultyConflict])
	assert.True(t, constraints[domain.ConstraintNoRoomConflict])
}

func TestTimetableValidateCleanSchedule(t *testing.T) {
	repo := newFakeTimetableRepo(&models.Timetable{ID: "t1", Status: models.TimetableStatusDraft})
	repo.slots["t1"] = []models.TimetableSlot{
		{TimetableID: "t1", BatchID: "b1", SubjectID: "s-dsa", FacultyID: "f1", RoomID: "r1", DayIndex: 0, PeriodIndex: 0},
		{TimetableID: "t1", BatchID: "b1", SubjectID: "s-dsa", FacultyID: "f1", RoomID: "r1", DayIndex: 1, PeriodIndex: 0},
	}
	svc, _, _ := newTimetableFixture(t, repo)

	report, err := svc.Validate(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Empty(t, report.Conflicts)
}

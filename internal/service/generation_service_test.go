package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusmesh/timetable-api/internal/domain"
	"github.com/campusmesh/timetable-api/internal/dto"
	"github.com/campusmesh/timetable-api/internal/models"
	appErrors "github.com/campusmesh/timetable-api/pkg/errors"
	"github.com/campusmesh/timetable-api/pkg/jobs"
)

type stubSnapshots struct {
	snap *domain.Snapshot
	err  error
}

func (s *stubSnapshots) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	return s.snap, s.err
}

type recordingTimetableStore struct {
	created   *models.Timetable
	slots     []models.TimetableSlot
	statuses  []models.TimetableStatus
	archived  []string
	createErr error
}

func (r *recordingTimetableStore) Create(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.created = timetable
	return nil
}

func (r *recordingTimetableStore) InsertSlots(ctx context.Context, exec sqlx.ExtContext, slots []models.TimetableSlot) error {
	r.slots = slots
	return nil
}

func (r *recordingTimetableStore) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus) error {
	r.statuses = append(r.statuses, status)
	return nil
}

func (r *recordingTimetableStore) ArchiveActive(ctx context.Context, exec sqlx.ExtContext, exceptID string) error {
	r.archived = append(r.archived, exceptID)
	return nil
}

type captureQueue struct {
	jobs []jobs.Job
	err  error
}

func (q *captureQueue) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func schedulingSnapshot() *domain.Snapshot {
	return domain.NewSnapshot(
		domain.NewCalendar(
			[]string{"monday", "tuesday", "wednesday"},
			[]string{"09:00", "10:00", "11:00", "12:00"},
		),
		[]domain.Batch{{ID: "b1", Name: "CS-3A", Headcount: 30}},
		[]domain.Subject{{ID: "s-dsa", Code: "CS301", Name: "Data Structures", Type: domain.SubjectTheory, Credits: 3, TheoryHours: 2}},
		[]domain.Faculty{{ID: "f1", Name: "Asha Rao"}},
		[]domain.Room{{ID: "r1", Name: "C-101", Kind: domain.RoomClassroom, Capacity: 60}},
		[]domain.Allocation{{BatchID: "b1", SubjectID: "s-dsa", FacultyID: "f1"}},
		nil,
		domain.NewConstraintSet(domain.DefaultConstraints()),
	)
}

func newGenerationFixture(t *testing.T, cfg GenerationConfig) (*GenerationService, *recordingTimetableStore, sqlmock.Sqlmock, *mockActivityLog) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := &recordingTimetableStore{}
	audit := &mockActivityLog{}
	svc := NewGenerationService(
		&stubSnapshots{snap: schedulingSnapshot()},
		store,
		sqlx.NewDb(db, "sqlmock"),
		nil,
		nil,
		audit,
		validator.New(),
		zap.NewNop(),
		cfg,
	)
	return svc, store, mock, audit
}

func mustGenerate(t *testing.T, svc *GenerationService) *dto.GenerationRun {
	t.Helper()
	run, err := svc.Generate(context.Background(), models.Actor{ID: "u1", Username: "admin"}, dto.GenerateRequest{BatchIDs: []string{"b1"}})
	require.NoError(t, err)
	require.Equal(t, dto.RunStatusCompleted, run.Status)
	return run
}

func TestGenerateSyncCompletes(t *testing.T) {
	svc, _, _, audit := newGenerationFixture(t, GenerationConfig{RunTTL: time.Minute})

	run, err := svc.Generate(context.Background(), models.Actor{ID: "u1", Username: "admin"}, dto.GenerateRequest{BatchIDs: []string{"b1"}})
	require.NoError(t, err)

	assert.Equal(t, dto.RunStatusCompleted, run.Status)
	assert.Equal(t, "csp", run.Algorithm)
	assert.False(t, run.Async)
	require.NotNil(t, run.Result)
	assert.Equal(t, "csp", run.Result.Method)
	assert.Equal(t, 2, run.Result.SlotCount)
	assert.Empty(t, run.Result.Conflicts)
	assert.Empty(t, run.Result.Warnings)

	days := map[string]bool{}
	for _, slot := range run.Result.Slots {
		days[slot.Day] = true
		assert.Equal(t, "09:00", slot.Period)
		assert.Equal(t, "theory", slot.Kind)
		assert.Equal(t, "r1", slot.RoomID)
	}
	assert.Len(t, days, 2, "theory hours should land on distinct days")

	require.NotNil(t, run.Progress)
	assert.Equal(t, 2, run.Progress.Total)

	polled, err := svc.Run(run.ID)
	require.NoError(t, err)
	assert.Equal(t, dto.RunStatusCompleted, polled.Status)

	require.NotEmpty(t, audit.entries)
	assert.Equal(t, models.ActivityGenerate, audit.entries[0].Action)
	assert.Equal(t, "timetables", audit.entries[0].Entity)
}

func TestGenerateRejectsInvalidPayload(t *testing.T) {
	svc, _, _, _ := newGenerationFixture(t, GenerationConfig{RunTTL: time.Minute})

	_, err := svc.Generate(context.Background(), models.Actor{}, dto.GenerateRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGenerateRejectsUnknownAlgorithm(t *testing.T) {
	svc, _, _, _ := newGenerationFixture(t, GenerationConfig{RunTTL: time.Minute})

	_, err := svc.Generate(context.Background(), models.Actor{}, dto.GenerateRequest{
		Algorithm: "simulated_annealing",
		BatchIDs:  []string{"b1"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSolverConfig.Code, appErrors.FromError(err).Code)
}

func TestGenerateRejectsUnknownBatch(t *testing.T) {
	svc, _, _, _ := newGenerationFixture(t, GenerationConfig{RunTTL: time.Minute})

	_, err := svc.Generate(context.Background(), models.Actor{}, dto.GenerateRequest{BatchIDs: []string{"ghost"}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSolverConfig.Code, appErrors.FromError(err).Code)
}

func TestGenerateAsyncLifecycle(t *testing.T) {
	svc, _, _, _ := newGenerationFixture(t, GenerationConfig{RunTTL: time.Minute})
	queue := &captureQueue{}
	svc.SetQueue(queue)

	run, err := svc.Generate(context.Background(), models.Actor{ID: "u1"}, dto.GenerateRequest{
		BatchIDs: []string{"b1"},
		Async:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, dto.RunStatusPending, run.Status)
	assert.True(t, run.Async)
	assert.Nil(t, run.Result)

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, JobKindGenerate, queue.jobs[0].Kind)
	assert.Equal(t, run.ID, queue.jobs[0].ID)

	require.NoError(t, svc.HandleJob(context.Background(), queue.jobs[0]))

	polled, err := svc.Run(run.ID)
	require.NoError(t, err)
	assert.Equal(t, dto.RunStatusCompleted, polled.Status)
	require.NotNil(t, polled.Result)
	assert.Equal(t, 2, polled.Result.SlotCount)
}

func TestGenerateAsyncWithoutQueue(t *testing.T) {
	svc, _, _, _ := newGenerationFixture(t, GenerationConfig{RunTTL: time.Minute})

	_, err := svc.Generate(context.Background(), models.Actor{}, dto.GenerateRequest{
		BatchIDs: []string{"b1"},
		Async:    true,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestHandleJobSwallowsSolveFailures(t *testing.T) {
	svc, _, _, _ := newGenerationFixture(t, GenerationConfig{RunTTL: time.Minute})

	// Unknown run ids must not bubble an error back to the queue.
	assert.NoError(t, svc.HandleJob(context.Background(), jobs.Job{ID: "gone", Kind: JobKindGenerate, Payload: "gone"}))
}

func TestRunNotFound(t *testing.T) {
	svc, _, _, _ := newGenerationFixture(t, GenerationConfig{RunTTL: time.Minute})

	_, err := svc.Run("missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRunExpiresAfterTTL(t *testing.T) {
	svc, _, _, _ := newGenerationFixture(t, GenerationConfig{RunTTL: 10 * time.Millisecond})

	run := mustGenerate(t, svc)
	time.Sleep(30 * time.Millisecond)

	_, err := svc.Run(run.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSaveActivatesTimetable(t *testing.T) {
	svc, store, mock, audit := newGenerationFixture(t, GenerationConfig{RunTTL: time.Minute})
	run := mustGenerate(t, svc)

	mock.ExpectBegin()
	mock.ExpectCommit()

	saved, err := svc.Save(context.Background(), models.Actor{ID: "u1", Username: "admin"}, run.ID, dto.SaveRunRequest{
		Name:     "Autumn draft",
		Activate: true,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "Autumn draft", saved.Name)
	assert.Equal(t, models.TimetableStatusActive, saved.Status)
	assert.Equal(t, run.Result.BestFitness, saved.FitnessScore)
	require.NotNil(t, saved.CreatedBy)
	assert.Equal(t, "u1", *saved.CreatedBy)

	require.NotNil(t, store.created)
	assert.Len(t, store.slots, 2)
	for _, slot := range store.slots {
		assert.Equal(t, saved.ID, slot.TimetableID)
		assert.Equal(t, "theory", slot.Kind)
	}
	require.Len(t, store.archived, 1)
	assert.Equal(t, saved.ID, store.archived[0])
	require.Len(t, store.statuses, 1)
	assert.Equal(t, models.TimetableStatusActive, store.statuses[0])

	// The run is consumed once persisted.
	_, err = svc.Run(run.ID)
	require.Error(t, err)

	last := audit.entries[len(audit.entries)-1]
	assert.Equal(t, models.ActivityTimetableSave, last.Action)
}

func TestSaveKeepsDraftWhenNotActivating(t *testing.T) {
	svc, store, mock, _ := newGenerationFixture(t, GenerationConfig{RunTTL: time.Minute})
	run := mustGenerate(t, svc)

	mock.ExpectBegin()
	mock.ExpectCommit()

	saved, err := svc.Save(context.Background(), models.Actor{ID: "u1"}, run.ID, dto.SaveRunRequest{Name: "Draft only"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, models.TimetableStatusDraft, saved.Status)
	assert.Empty(t, store.archived)
	assert.Empty(t, store.statuses)
}

func TestSaveUnknownRun(t *testing.T) {
	svc, _, _, _ := newGenerationFixture(t, GenerationConfig{RunTTL: time.Minute})

	_, err := svc.Save(context.Background(), models.Actor{}, "missing", dto.SaveRunRequest{Name: "x"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSaveRollsBackOnStoreFailure(t *testing.T) {
	svc, store, mock, _ := newGenerationFixture(t, GenerationConfig{RunTTL: time.Minute})
	run := mustGenerate(t, svc)
	store.createErr = errors.New("insert failed")

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Save(context.Background(), models.Actor{}, run.ID, dto.SaveRunRequest{Name: "broken"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	// A failed save leaves the run available for another attempt.
	polled, err := svc.Run(run.ID)
	require.NoError(t, err)
	assert.Equal(t, dto.RunStatusCompleted, polled.Status)
}

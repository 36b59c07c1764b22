package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusmesh/timetable-api/internal/domain"
	"github.com/campusmesh/timetable-api/internal/models"
	appErrors "github.com/campusmesh/timetable-api/pkg/errors"
)

type snapBatchSource struct {
	items []models.Batch
	calls int
}

func (s *snapBatchSource) ListActive(_ context.Context) ([]models.Batch, error) {
	s.calls++
	return s.items, nil
}

type snapSubjectSource struct{ items []models.Subject }

func (s *snapSubjectSource) ListAll(_ context.Context) ([]models.Subject, error) {
	return s.items, nil
}

type snapFacultySource struct{ items []models.Faculty }

func (s *snapFacultySource) ListActive(_ context.Context) ([]models.Faculty, error) {
	return s.items, nil
}

type snapRoomSource struct{ items []models.Room }

func (s *snapRoomSource) ListAll(_ context.Context) ([]models.Room, error) {
	return s.items, nil
}

type snapAllocationSource struct {
	allocs []models.Allocation
	fixed  []models.FixedSlot
}

func (s *snapAllocationSource) ListPlain(_ context.Context) ([]models.Allocation, error) {
	return s.allocs, nil
}

func (s *snapAllocationSource) ListFixedSlots(_ context.Context) ([]models.FixedSlot, error) {
	return s.fixed, nil
}

type snapCollegeSource struct {
	college *models.College
	err     error
	calls   int
}

func (s *snapCollegeSource) Get(_ context.Context) (*models.College, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.college, nil
}

type snapConstraintSource struct{ items []models.ConstraintConfig }

func (s *snapConstraintSource) List(_ context.Context) ([]models.ConstraintConfig, error) {
	return s.items, nil
}

type snapshotFixture struct {
	svc     *SnapshotService
	batches *snapBatchSource
	college *snapCollegeSource
}

func newSnapshotFixture(t *testing.T, cache *CacheService) *snapshotFixture {
	t.Helper()

	college := &snapCollegeSource{college: &models.College{
		ID:          "col-1",
		Name:        "Test College",
		WorkingDays: types.JSONText(`["monday","tuesday"]`),
		TimeSlots:   types.JSONText(`["09:00-10:00","10:00-11:00","11:00-12:00"]`),
	}}
	batches := &snapBatchSource{items: []models.Batch{
		{ID: "b-1", Name: "CS-3A", Headcount: 55},
	}}
	subjects := &snapSubjectSource{items: []models.Subject{
		{ID: "s-1", Code: "CS301", Name: "Algorithms", SubjectType: models.SubjectTypeTheory, Credits: 4, TheoryHours: 3},
		{ID: "s-2", Code: "CS302", Name: "OS Lab", SubjectType: models.SubjectTypePractical, Credits: 2, LabHours: 2},
	}}
	faculty := &snapFacultySource{items: []models.Faculty{{ID: "f-1", Name: "Dr. Rao"}}}
	rooms := &snapRoomSource{items: []models.Room{
		{ID: "r-1", Name: "C-101", Kind: models.RoomKindClassroom, Capacity: 60},
		{ID: "r-2", Name: "L-1", Kind: models.RoomKindLab, Capacity: 30},
	}}
	allocations := &snapAllocationSource{
		allocs: []models.Allocation{{ID: "a-1", BatchID: "b-1", SubjectID: "s-1", FacultyID: "f-1"}},
		fixed: []models.FixedSlot{
			{ID: "fx-1", BatchID: "b-1", SubjectID: "s-2", FacultyID: "f-1", RoomID: "r-2", Day: "monday", Period: "09:00-10:00"},
		},
	}
	constraints := &snapConstraintSource{items: []models.ConstraintConfig{
		{Name: "no_faculty_conflict", Kind: "hard", Enabled: true, Weight: 10},
		{Name: "minimize_gaps", Kind: "soft", Enabled: false, Weight: 2.5},
	}}

	svc := NewSnapshotService(batches, subjects, faculty, rooms, allocations, college, constraints, cache, time.Minute, zap.NewNop())
	return &snapshotFixture{svc: svc, batches: batches, college: college}
}

func TestSnapshotServiceBuildsDomainSnapshot(t *testing.T) {
	fix := newSnapshotFixture(t, nil)

	snap, err := fix.svc.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"monday", "tuesday"}, snap.Calendar.Days)
	assert.Len(t, snap.Calendar.Periods, 3)

	require.Len(t, snap.Batches, 1)
	assert.Equal(t, 55, snap.Batches[0].Headcount)

	algo, ok := snap.SubjectByID("s-1")
	require.True(t, ok)
	assert.Equal(t, domain.SubjectTheory, algo.Type)
	lab, ok := snap.SubjectByID("s-2")
	require.True(t, ok)
	assert.Equal(t, domain.SubjectPractical, lab.Type)
	assert.Equal(t, 2, lab.LabHours)

	assert.Len(t, snap.Classrooms(), 1)
	assert.Len(t, snap.Labs(), 1)

	require.Len(t, snap.FixedSlots, 1)
	assert.Equal(t, domain.RoomLab, snap.FixedSlots[0].RoomKind)
	assert.Equal(t, "monday", snap.FixedSlots[0].Day)

	assert.True(t, snap.Constraints.Enabled("no_faculty_conflict"))
	assert.False(t, snap.Constraints.Enabled("minimize_gaps"))
	assert.Equal(t, 10.0, snap.Constraints.Weight("no_faculty_conflict", 0))
}

func TestSnapshotServiceCachesUntilInvalidated(t *testing.T) {
	cache := NewCacheService(&stubCacheRepo{}, nil, time.Minute, zap.NewNop(), true)
	fix := newSnapshotFixture(t, cache)
	ctx := context.Background()

	first, err := fix.svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fix.college.calls)
	assert.Equal(t, 1, fix.batches.calls)

	second, err := fix.svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fix.college.calls, "second read must come from cache")
	assert.Equal(t, 1, fix.batches.calls)
	assert.Equal(t, first.Calendar.Days, second.Calendar.Days)
	assert.Len(t, second.Batches, len(first.Batches))

	invalidateCatalogCache(ctx, cache, zap.NewNop())

	_, err = fix.svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fix.college.calls, "catalog invalidation must force a reload")
	assert.Equal(t, 2, fix.batches.calls)
}

func TestSnapshotServiceRequiresCollegeProfile(t *testing.T) {
	fix := newSnapshotFixture(t, nil)
	fix.college.err = sql.ErrNoRows

	_, err := fix.svc.Snapshot(context.Background())
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

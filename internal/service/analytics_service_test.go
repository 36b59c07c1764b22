package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusmesh/timetable-api/internal/models"
	appErrors "github.com/campusmesh/timetable-api/pkg/errors"
)

type stubCacheRepo struct {
	store map[string][]byte
}

func (s *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	if s.store == nil {
		return appErrors.ErrCacheMiss
	}
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range s.store {
		if strings.HasPrefix(key, prefix) {
			delete(s.store, key)
		}
	}
	return nil
}

type fixedCounter struct {
	n     int
	err   error
	calls int
}

func (c *fixedCounter) Count(_ context.Context) (int, error) {
	c.calls++
	return c.n, c.err
}

type analyticsFacultyStub struct {
	fixedCounter
	items []models.Faculty
}

func (s *analyticsFacultyStub) ListAll(_ context.Context) ([]models.Faculty, error) {
	return s.items, nil
}

type analyticsRoomStub struct {
	fixedCounter
	items []models.Room
}

func (s *analyticsRoomStub) ListAll(_ context.Context) ([]models.Room, error) {
	return s.items, nil
}

type analyticsTimetableStub struct {
	fixedCounter
	active        *models.Timetable
	activeErr     error
	slots         []models.TimetableSlot
	slotCount     int
	listSlotCalls int
}

func (s *analyticsTimetableStub) FindActive(_ context.Context) (*models.Timetable, error) {
	if s.activeErr != nil {
		return nil, s.activeErr
	}
	if s.active == nil {
		return nil, sql.ErrNoRows
	}
	copyOf := *s.active
	return &copyOf, nil
}

func (s *analyticsTimetableStub) ListSlots(_ context.Context, _ string) ([]models.TimetableSlot, error) {
	s.listSlotCalls++
	return s.slots, nil
}

func (s *analyticsTimetableStub) CountSlots(_ context.Context, _ string) (int, error) {
	return s.slotCount, nil
}

type activityListStub struct {
	logs      []models.ActivityLog
	total     int
	gotFilter models.ActivityLogFilter
}

func (s *activityListStub) List(_ context.Context, filter models.ActivityLogFilter) ([]models.ActivityLog, int, error) {
	s.gotFilter = filter
	return s.logs, s.total, nil
}

type analyticsFixture struct {
	svc        *AnalyticsService
	batches    *fixedCounter
	timetables *analyticsTimetableStub
	activity   *activityListStub
}

func newAnalyticsFixture(t *testing.T, withCache bool) *analyticsFixture {
	t.Helper()

	var cache *CacheService
	if withCache {
		cache = NewCacheService(&stubCacheRepo{}, nil, time.Minute, zap.NewNop(), true)
	}

	batches := &fixedCounter{n: 4}
	subjects := &fixedCounter{n: 6}
	allocations := &fixedCounter{n: 9}
	faculty := &analyticsFacultyStub{
		fixedCounter: fixedCounter{n: 2},
		items: []models.Faculty{
			{ID: "f1", Name: "Asha Rao"},
			{ID: "f2", Name: "Vikram Iyer"},
		},
	}
	rooms := &analyticsRoomStub{
		fixedCounter: fixedCounter{n: 2},
		items: []models.Room{
			{ID: "r1", Name: "C-101"},
			{ID: "r2", Name: "Lab-1"},
		},
	}
	timetables := &analyticsTimetableStub{fixedCounter: fixedCounter{n: 3}}
	activity := &activityListStub{}

	svc := NewAnalyticsService(batches, subjects, faculty, rooms, allocations, timetables, activity,
		&stubSnapshots{snap: schedulingSnapshot()}, cache, nil, zap.NewNop())
	return &analyticsFixture{svc: svc, batches: batches, timetables: timetables, activity: activity}
}

func TestDashboardCountsAndActiveOverview(t *testing.T) {
	fx := newAnalyticsFixture(t, true)
	fx.timetables.active = &models.Timetable{ID: "t1", Name: "Autumn 2026", Algorithm: "csp", FitnessScore: 0.92}
	fx.timetables.slotCount = 18

	summary, fromCache, err := fx.svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, 4, summary.Batches)
	assert.Equal(t, 6, summary.Subjects)
	assert.Equal(t, 2, summary.Faculty)
	assert.Equal(t, 2, summary.Rooms)
	assert.Equal(t, 9, summary.Allocations)
	assert.Equal(t, 3, summary.Timetables)
	require.NotNil(t, summary.ActiveTimetable)
	assert.Equal(t, "Autumn 2026", summary.ActiveTimetable.Name)
	assert.Equal(t, 18, summary.ActiveTimetable.SlotCount)
	assert.False(t, summary.GeneratedAt.IsZero())

	cached, fromCache, err := fx.svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, summary.Batches, cached.Batches)
	assert.Equal(t, 1, fx.batches.calls)
}

func TestDashboardWithoutActiveTimetable(t *testing.T) {
	fx := newAnalyticsFixture(t, false)

	summary, fromCache, err := fx.svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Nil(t, summary.ActiveTimetable)
}

func TestAnalyticsComputesLoadsAndUtilization(t *testing.T) {
	fx := newAnalyticsFixture(t, false)
	fx.timetables.active = &models.Timetable{ID: "t1", Name: "Autumn 2026", Algorithm: "csp"}
	fx.timetables.slots = []models.TimetableSlot{
		{BatchID: "b1", SubjectID: "s-dsa", FacultyID: "f1", RoomID: "r1", DayIndex: 0, PeriodIndex: 0},
		{BatchID: "b1", SubjectID: "s-dsa", FacultyID: "f1", RoomID: "r1", DayIndex: 0, PeriodIndex: 2},
		{BatchID: "b1", SubjectID: "s-dsa", FacultyID: "f2", RoomID: "r1", DayIndex: 1, PeriodIndex: 1},
	}

	analytics, fromCache, err := fx.svc.Analytics(context.Background())
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, "t1", analytics.Timetable.ID)
	assert.Equal(t, 3, analytics.Timetable.SlotCount)
	assert.Equal(t, []int{2, 1, 0}, analytics.SlotsPerDay)

	require.Len(t, analytics.FacultyLoads, 2)
	asha := analytics.FacultyLoads[0]
	assert.Equal(t, "Asha Rao", asha.FacultyName)
	assert.Equal(t, 2, asha.TotalPeriods)
	assert.Equal(t, []int{2, 0, 0}, asha.PerDay)
	assert.Equal(t, 1, asha.GapCount)
	vikram := analytics.FacultyLoads[1]
	assert.Equal(t, "Vikram Iyer", vikram.FacultyName)
	assert.Equal(t, 1, vikram.TotalPeriods)
	assert.Equal(t, 0, vikram.GapCount)

	require.Len(t, analytics.RoomUtilization, 2)
	classroom := analytics.RoomUtilization[0]
	assert.Equal(t, "C-101", classroom.RoomName)
	assert.Equal(t, 3, classroom.UsedPeriods)
	assert.Equal(t, 12, classroom.TotalCells)
	assert.InDelta(t, 0.25, classroom.Utilization, 1e-9)
	lab := analytics.RoomUtilization[1]
	assert.Equal(t, "Lab-1", lab.RoomName)
	assert.Equal(t, 0, lab.UsedPeriods)
	assert.Zero(t, lab.Utilization)

	assert.Zero(t, analytics.ConflictCount)
}

func TestAnalyticsCountsConflicts(t *testing.T) {
	fx := newAnalyticsFixture(t, false)
	fx.timetables.active = &models.Timetable{ID: "t1", Name: "Autumn 2026", Algorithm: "csp"}
	fx.timetables.slots = []models.TimetableSlot{
		{BatchID: "b1", SubjectID: "s-dsa", FacultyID: "f1", RoomID: "r1", DayIndex: 0, PeriodIndex: 0},
		{BatchID: "b1", SubjectID: "s-dsa", FacultyID: "f1", RoomID: "r1", DayIndex: 0, PeriodIndex: 0},
	}

	analytics, _, err := fx.svc.Analytics(context.Background())
	require.NoError(t, err)
	// Batch, faculty and room are each double-booked in the same cell.
	assert.Equal(t, 3, analytics.ConflictCount)
}

func TestAnalyticsRequiresActiveTimetable(t *testing.T) {
	fx := newAnalyticsFixture(t, false)

	_, _, err := fx.svc.Analytics(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAnalyticsServedFromCache(t *testing.T) {
	fx := newAnalyticsFixture(t, true)
	fx.timetables.active = &models.Timetable{ID: "t1", Name: "Autumn 2026", Algorithm: "csp"}
	fx.timetables.slots = []models.TimetableSlot{
		{BatchID: "b1", SubjectID: "s-dsa", FacultyID: "f1", RoomID: "r1", DayIndex: 0, PeriodIndex: 0},
	}

	_, fromCache, err := fx.svc.Analytics(context.Background())
	require.NoError(t, err)
	assert.False(t, fromCache)

	again, fromCache, err := fx.svc.Analytics(context.Background())
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, 1, fx.timetables.listSlotCalls)
	assert.Equal(t, []int{1, 0, 0}, again.SlotsPerDay)
}

func TestActivityLogsNormalisesPaging(t *testing.T) {
	fx := newAnalyticsFixture(t, false)
	fx.activity.logs = []models.ActivityLog{{ID: "a1", Action: models.ActivityLogin}}
	fx.activity.total = 45

	logs, page, err := fx.svc.ActivityLogs(context.Background(), models.ActivityLogFilter{Page: 0, PageSize: 500})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 1, fx.activity.gotFilter.Page)
	assert.Equal(t, 20, fx.activity.gotFilter.PageSize)
	assert.Equal(t, 45, page.TotalCount)
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/campusmesh/timetable-api/internal/domain"
	"github.com/campusmesh/timetable-api/internal/models"
	"github.com/campusmesh/timetable-api/internal/solver"
	appErrors "github.com/campusmesh/timetable-api/pkg/errors"
)

type entityCounter interface {
	Count(ctx context.Context) (int, error)
}

type analyticsTimetableSource interface {
	Count(ctx context.Context) (int, error)
	FindActive(ctx context.Context) (*models.Timetable, error)
	ListSlots(ctx context.Context, timetableID string) ([]models.TimetableSlot, error)
	CountSlots(ctx context.Context, timetableID string) (int, error)
}

type analyticsFacultySource interface {
	Count(ctx context.Context) (int, error)
	ListAll(ctx context.Context) ([]models.Faculty, error)
}

type analyticsRoomSource interface {
	Count(ctx context.Context) (int, error)
	ListAll(ctx context.Context) ([]models.Room, error)
}

type activityLogSource interface {
	List(ctx context.Context, filter models.ActivityLogFilter) ([]models.ActivityLog, int, error)
}

// AnalyticsService aggregates dashboard counts, active-timetable analytics
// and the activity trail. Aggregates are cached; catalog and timetable
// mutations invalidate them.
type AnalyticsService struct {
	batches     entityCounter
	subjects    entityCounter
	faculty     analyticsFacultySource
	rooms       analyticsRoomSource
	allocations entityCounter
	timetables  analyticsTimetableSource
	activity    activityLogSource
	snapshots   snapshotProvider
	cache       *CacheService
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewAnalyticsService constructs an AnalyticsService.
func NewAnalyticsService(batches entityCounter, subjects entityCounter, faculty analyticsFacultySource, rooms analyticsRoomSource, allocations entityCounter, timetables analyticsTimetableSource, activity activityLogSource, snapshots snapshotProvider, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{
		batches:     batches,
		subjects:    subjects,
		faculty:     faculty,
		rooms:       rooms,
		allocations: allocations,
		timetables:  timetables,
		activity:    activity,
		snapshots:   snapshots,
		cache:       cache,
		metrics:     metrics,
		logger:      logger,
	}
}

// Dashboard returns catalog counts and a glance at the active timetable.
// The boolean reports whether the payload came from cache; live service
// metrics are attached after either path.
func (s *AnalyticsService) Dashboard(ctx context.Context) (*models.DashboardSummary, bool, error) {
	if s.cache != nil && s.cache.Enabled() {
		var cached models.DashboardSummary
		hit, err := s.cache.Get(ctx, cacheKeyDashboard, &cached)
		if err != nil {
			s.logger.Warn("dashboard cache read failed", zap.Error(err))
		} else if hit {
			s.attachMetrics(&cached)
			return &cached, true, nil
		}
	}

	summary := &models.DashboardSummary{GeneratedAt: time.Now().UTC()}
	var err error
	if summary.Batches, err = s.batches.Count(ctx); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count batches")
	}
	if summary.Subjects, err = s.subjects.Count(ctx); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count subjects")
	}
	if summary.Faculty, err = s.faculty.Count(ctx); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count faculty")
	}
	if summary.Rooms, err = s.rooms.Count(ctx); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count rooms")
	}
	if summary.Allocations, err = s.allocations.Count(ctx); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count allocations")
	}
	if summary.Timetables, err = s.timetables.Count(ctx); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count timetables")
	}

	active, err := s.timetables.FindActive(ctx)
	switch {
	case err == nil:
		slots, countErr := s.timetables.CountSlots(ctx, active.ID)
		if countErr != nil {
			return nil, false, appErrors.Wrap(countErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count timetable slots")
		}
		summary.ActiveTimetable = &models.TimetableOverview{
			ID:           active.ID,
			Name:         active.Name,
			Algorithm:    active.Algorithm,
			FitnessScore: active.FitnessScore,
			SlotCount:    slots,
		}
	case errors.Is(err, sql.ErrNoRows):
		// No active timetable yet.
	default:
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active timetable")
	}

	s.cacheSet(ctx, cacheKeyDashboard, summary)
	s.attachMetrics(summary)
	return summary, false, nil
}

// Analytics computes faculty loads, room utilization and the per-day slot
// spread of the active timetable.
func (s *AnalyticsService) Analytics(ctx context.Context) (*models.TimetableAnalytics, bool, error) {
	if s.cache != nil && s.cache.Enabled() {
		var cached models.TimetableAnalytics
		hit, err := s.cache.Get(ctx, cacheKeyAnalytics, &cached)
		if err != nil {
			s.logger.Warn("analytics cache read failed", zap.Error(err))
		} else if hit {
			return &cached, true, nil
		}
	}

	active, err := s.timetables.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "no active timetable")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active timetable")
	}
	slots, err := s.timetables.ListSlots(ctx, active.ID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable slots")
	}
	snap, err := s.snapshots.Snapshot(ctx)
	if err != nil {
		return nil, false, err
	}
	facultyList, err := s.faculty.ListAll(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
	}
	roomList, err := s.rooms.ListAll(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rooms")
	}

	cal := snap.Calendar
	analytics := &models.TimetableAnalytics{
		Timetable: models.TimetableOverview{
			ID:           active.ID,
			Name:         active.Name,
			Algorithm:    active.Algorithm,
			FitnessScore: active.FitnessScore,
			SlotCount:    len(slots),
		},
		SlotsPerDay: make([]int, len(cal.Days)),
		GeneratedAt: time.Now().UTC(),
	}

	facultyNames := make(map[string]string, len(facultyList))
	for _, f := range facultyList {
		facultyNames[f.ID] = f.Name
	}

	loads := map[string]*models.FacultyLoad{}
	facultyPeriods := map[string]map[int]map[int]struct{}{}
	roomUsed := map[string]int{}
	scheduled := make([]domain.ScheduledSlot, 0, len(slots))

	for _, slot := range slots {
		entry := domain.ScheduledSlot{
			BatchID:     slot.BatchID,
			DayIndex:    slot.DayIndex,
			PeriodIndex: slot.PeriodIndex,
			SubjectID:   slot.SubjectID,
			FacultyID:   slot.FacultyID,
			RoomID:      slot.RoomID,
			Fixed:       slot.IsFixed,
		}
		if room, ok := snap.RoomByID(slot.RoomID); ok {
			entry.RoomKind = room.Kind
		}
		scheduled = append(scheduled, entry)

		if slot.DayIndex < 0 || slot.DayIndex >= len(cal.Days) || slot.PeriodIndex < 0 || slot.PeriodIndex >= len(cal.Periods) {
			continue
		}
		analytics.SlotsPerDay[slot.DayIndex]++
		roomUsed[slot.RoomID]++

		load, ok := loads[slot.FacultyID]
		if !ok {
			load = &models.FacultyLoad{
				FacultyID:   slot.FacultyID,
				FacultyName: facultyNames[slot.FacultyID],
				PerDay:      make([]int, len(cal.Days)),
			}
			loads[slot.FacultyID] = load
			facultyPeriods[slot.FacultyID] = map[int]map[int]struct{}{}
		}
		load.TotalPeriods++
		load.PerDay[slot.DayIndex]++

		day := facultyPeriods[slot.FacultyID]
		if day[slot.DayIndex] == nil {
			day[slot.DayIndex] = map[int]struct{}{}
		}
		day[slot.DayIndex][slot.PeriodIndex] = struct{}{}
	}

	for id, days := range facultyPeriods {
		loads[id].GapCount = countGaps(days)
	}

	analytics.FacultyLoads = make([]models.FacultyLoad, 0, len(loads))
	for _, load := range loads {
		analytics.FacultyLoads = append(analytics.FacultyLoads, *load)
	}
	sort.Slice(analytics.FacultyLoads, func(i, j int) bool {
		a, b := analytics.FacultyLoads[i], analytics.FacultyLoads[j]
		if a.FacultyName != b.FacultyName {
			return a.FacultyName < b.FacultyName
		}
		return a.FacultyID < b.FacultyID
	})

	totalCells := len(cal.Days) * len(cal.Periods)
	analytics.RoomUtilization = make([]models.RoomUtilization, 0, len(roomList))
	for _, room := range roomList {
		used := roomUsed[room.ID]
		utilization := 0.0
		if totalCells > 0 {
			utilization = float64(used) / float64(totalCells)
		}
		analytics.RoomUtilization = append(analytics.RoomUtilization, models.RoomUtilization{
			RoomID:      room.ID,
			RoomName:    room.Name,
			UsedPeriods: used,
			TotalCells:  totalCells,
			Utilization: utilization,
		})
	}
	sort.Slice(analytics.RoomUtilization, func(i, j int) bool {
		a, b := analytics.RoomUtilization[i], analytics.RoomUtilization[j]
		if a.RoomName != b.RoomName {
			return a.RoomName < b.RoomName
		}
		return a.RoomID < b.RoomID
	})

	analytics.ConflictCount = len(solver.ValidateSchedule(snap, scheduled))

	s.cacheSet(ctx, cacheKeyAnalytics, analytics)
	return analytics, false, nil
}

// ActivityLogs returns the audit trail newest first.
func (s *AnalyticsService) ActivityLogs(ctx context.Context, filter models.ActivityLogFilter) ([]models.ActivityLog, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	logs, total, err := s.activity.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activity logs")
	}
	return logs, paginationFor(filter.Page, filter.PageSize, total), nil
}

func (s *AnalyticsService) attachMetrics(summary *models.DashboardSummary) {
	if s.metrics == nil {
		return
	}
	snapshot := s.metrics.Snapshot()
	summary.Metrics = &snapshot
}

func (s *AnalyticsService) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil || !s.cache.Enabled() {
		return
	}
	if err := s.cache.Set(ctx, key, value, 0); err != nil {
		s.logger.Warn("failed to cache analytics payload", zap.String("key", key), zap.Error(err))
	}
}

// countGaps sums, over every day, the free periods strictly between a
// faculty member's first and last booked period.
func countGaps(days map[int]map[int]struct{}) int {
	gaps := 0
	for _, periods := range days {
		if len(periods) < 2 {
			continue
		}
		first, last := -1, -1
		for p := range periods {
			if first == -1 || p < first {
				first = p
			}
			if p > last {
				last = p
			}
		}
		gaps += (last - first + 1) - len(periods)
	}
	return gaps
}

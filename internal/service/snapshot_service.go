package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/campusmesh/timetable-api/internal/domain"
	"github.com/campusmesh/timetable-api/internal/models"
	appErrors "github.com/campusmesh/timetable-api/pkg/errors"
)

type snapshotBatchSource interface {
	ListActive(ctx context.Context) ([]models.Batch, error)
}

type snapshotSubjectSource interface {
	ListAll(ctx context.Context) ([]models.Subject, error)
}

type snapshotFacultySource interface {
	ListActive(ctx context.Context) ([]models.Faculty, error)
}

type snapshotRoomSource interface {
	ListAll(ctx context.Context) ([]models.Room, error)
}

type snapshotAllocationSource interface {
	ListPlain(ctx context.Context) ([]models.Allocation, error)
	ListFixedSlots(ctx context.Context) ([]models.FixedSlot, error)
}

type snapshotCollegeSource interface {
	Get(ctx context.Context) (*models.College, error)
}

type snapshotConstraintSource interface {
	List(ctx context.Context) ([]models.ConstraintConfig, error)
}

// snapshotPayload is the cache-serializable form of the catalogue. The domain
// snapshot is rebuilt from it because its lookup indexes do not survive JSON.
type snapshotPayload struct {
	Days        []string                  `json:"days"`
	Periods     []string                  `json:"periods"`
	Batches     []models.Batch            `json:"batches"`
	Subjects    []models.Subject          `json:"subjects"`
	Faculty     []models.Faculty          `json:"faculty"`
	Rooms       []models.Room             `json:"rooms"`
	Allocations []models.Allocation       `json:"allocations"`
	FixedSlots  []models.FixedSlot        `json:"fixed_slots"`
	Constraints []models.ConstraintConfig `json:"constraints"`
}

// SnapshotService assembles the immutable catalogue snapshot the solvers
// consume. Snapshots are cached until the next catalog mutation.
type SnapshotService struct {
	batches     snapshotBatchSource
	subjects    snapshotSubjectSource
	faculty     snapshotFacultySource
	rooms       snapshotRoomSource
	allocations snapshotAllocationSource
	college     snapshotCollegeSource
	constraints snapshotConstraintSource
	cache       *CacheService
	ttl         time.Duration
	logger      *zap.Logger
}

// NewSnapshotService creates a SnapshotService instance.
func NewSnapshotService(batches snapshotBatchSource, subjects snapshotSubjectSource, faculty snapshotFacultySource, rooms snapshotRoomSource, allocations snapshotAllocationSource, college snapshotCollegeSource, constraints snapshotConstraintSource, cache *CacheService, ttl time.Duration, logger *zap.Logger) *SnapshotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SnapshotService{
		batches:     batches,
		subjects:    subjects,
		faculty:     faculty,
		rooms:       rooms,
		allocations: allocations,
		college:     college,
		constraints: constraints,
		cache:       cache,
		ttl:         ttl,
		logger:      logger,
	}
}

// Snapshot returns the current scheduling input, from cache when possible.
func (s *SnapshotService) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	if s.cache != nil && s.cache.Enabled() {
		var payload snapshotPayload
		hit, err := s.cache.Get(ctx, cacheKeySnapshot, &payload)
		if err != nil {
			s.logger.Warn("snapshot cache read failed", zap.Error(err))
		}
		if hit {
			return buildSnapshot(payload), nil
		}
	}

	payload, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.cache.Enabled() {
		if err := s.cache.Set(ctx, cacheKeySnapshot, payload, s.ttl); err != nil {
			s.logger.Warn("snapshot cache write failed", zap.Error(err))
		}
	}

	return buildSnapshot(payload), nil
}

func (s *SnapshotService) load(ctx context.Context) (snapshotPayload, error) {
	var payload snapshotPayload

	college, err := s.college.Get(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return payload, appErrors.Clone(appErrors.ErrValidation, "college profile not configured")
		}
		return payload, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load college profile")
	}
	days, periods, err := college.Calendar()
	if err != nil {
		return payload, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode college calendar")
	}
	payload.Days = days
	payload.Periods = periods

	if payload.Batches, err = s.batches.ListActive(ctx); err != nil {
		return payload, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batches")
	}
	if payload.Subjects, err = s.subjects.ListAll(ctx); err != nil {
		return payload, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	if payload.Faculty, err = s.faculty.ListActive(ctx); err != nil {
		return payload, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
	}
	if payload.Rooms, err = s.rooms.ListAll(ctx); err != nil {
		return payload, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rooms")
	}
	if payload.Allocations, err = s.allocations.ListPlain(ctx); err != nil {
		return payload, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocations")
	}
	if payload.FixedSlots, err = s.allocations.ListFixedSlots(ctx); err != nil {
		return payload, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fixed slots")
	}
	if payload.Constraints, err = s.constraints.List(ctx); err != nil {
		return payload, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load constraints")
	}

	return payload, nil
}

func buildSnapshot(payload snapshotPayload) *domain.Snapshot {
	cal := domain.NewCalendar(payload.Days, payload.Periods)

	batches := make([]domain.Batch, 0, len(payload.Batches))
	for _, b := range payload.Batches {
		batches = append(batches, domain.Batch{ID: b.ID, Name: b.Name, Headcount: b.Headcount})
	}

	subjects := make([]domain.Subject, 0, len(payload.Subjects))
	for _, sub := range payload.Subjects {
		subjectType := domain.SubjectTheory
		if sub.SubjectType == models.SubjectTypePractical {
			subjectType = domain.SubjectPractical
		}
		subjects = append(subjects, domain.Subject{
			ID:          sub.ID,
			Code:        sub.Code,
			Name:        sub.Name,
			Type:        subjectType,
			Credits:     sub.Credits,
			TheoryHours: sub.TheoryHours,
			LabHours:    sub.LabHours,
		})
	}

	faculty := make([]domain.Faculty, 0, len(payload.Faculty))
	for _, f := range payload.Faculty {
		faculty = append(faculty, domain.Faculty{ID: f.ID, Name: f.Name})
	}

	roomKinds := make(map[string]domain.RoomKind, len(payload.Rooms))
	rooms := make([]domain.Room, 0, len(payload.Rooms))
	for _, r := range payload.Rooms {
		kind := domain.RoomClassroom
		if r.Kind == models.RoomKindLab {
			kind = domain.RoomLab
		}
		roomKinds[r.ID] = kind
		rooms = append(rooms, domain.Room{ID: r.ID, Name: r.Name, Kind: kind, Capacity: r.Capacity})
	}

	allocations := make([]domain.Allocation, 0, len(payload.Allocations))
	for _, a := range payload.Allocations {
		allocations = append(allocations, domain.Allocation{BatchID: a.BatchID, SubjectID: a.SubjectID, FacultyID: a.FacultyID})
	}

	fixed := make([]domain.FixedSlot, 0, len(payload.FixedSlots))
	for _, fs := range payload.FixedSlots {
		fixed = append(fixed, domain.FixedSlot{
			BatchID:   fs.BatchID,
			SubjectID: fs.SubjectID,
			FacultyID: fs.FacultyID,
			RoomID:    fs.RoomID,
			RoomKind:  roomKinds[fs.RoomID],
			Day:       fs.Day,
			Period:    fs.Period,
		})
	}

	specs := make([]domain.ConstraintSpec, 0, len(payload.Constraints))
	for _, c := range payload.Constraints {
		specs = append(specs, domain.ConstraintSpec{
			Name:        c.Name,
			Kind:        domain.ConstraintKind(c.Kind),
			Enabled:     c.Enabled,
			Weight:      c.Weight,
			Description: c.Description,
		})
	}
	constraints := domain.NewConstraintSet(specs)

	return domain.NewSnapshot(cal, batches, subjects, faculty, rooms, allocations, fixed, constraints)
}

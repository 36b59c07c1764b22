package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusmesh/timetable-api/internal/domain"
	"github.com/campusmesh/timetable-api/internal/models"
	appErrors "github.com/campusmesh/timetable-api/pkg/errors"
)

type allocationRepository interface {
	List(ctx context.Context) ([]models.AllocationDetail, error)
	FindByID(ctx context.Context, id string) (*models.Allocation, error)
	Exists(ctx context.Context, batchID, subjectID, facultyID string) (bool, error)
	Create(ctx context.Context, allocation *models.Allocation) error
	Delete(ctx context.Context, id string) error
	ListFixedSlots(ctx context.Context) ([]models.FixedSlot, error)
	FixedSlotOccupied(ctx context.Context, batchID, day, period string) (bool, error)
	CreateFixedSlot(ctx context.Context, slot *models.FixedSlot) error
	DeleteFixedSlot(ctx context.Context, id string) error
}

type batchFinder interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
}

type subjectFinder interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type facultyFinder interface {
	FindByID(ctx context.Context, id string) (*models.Faculty, error)
}

type roomFinder interface {
	FindByID(ctx context.Context, id string) (*models.Room, error)
}

type calendarProvider interface {
	Calendar(ctx context.Context) (domain.Calendar, error)
}

// CreateAllocationRequest payload linking a batch, subject and faculty member.
type CreateAllocationRequest struct {
	BatchID   string `json:"batch_id" validate:"required"`
	SubjectID string `json:"subject_id" validate:"required"`
	FacultyID string `json:"faculty_id" validate:"required"`
}

// CreateFixedSlotRequest pins an allocation to a calendar cell.
type CreateFixedSlotRequest struct {
	BatchID   string `json:"batch_id" validate:"required"`
	SubjectID string `json:"subject_id" validate:"required"`
	FacultyID string `json:"faculty_id" validate:"required"`
	RoomID    string `json:"room_id" validate:"required"`
	Day       string `json:"day" validate:"required"`
	Period    string `json:"period" validate:"required"`
}

// AllocationService manages teaching assignments and pinned slots.
type AllocationService struct {
	repo      allocationRepository
	batches   batchFinder
	subjects  subjectFinder
	faculty   facultyFinder
	rooms     roomFinder
	college   calendarProvider
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAllocationService creates an AllocationService instance.
func NewAllocationService(repo allocationRepository, batches batchFinder, subjects subjectFinder, faculty facultyFinder, rooms roomFinder, college calendarProvider, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *AllocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AllocationService{
		repo:      repo,
		batches:   batches,
		subjects:  subjects,
		faculty:   faculty,
		rooms:     rooms,
		college:   college,
		cache:     cache,
		validator: validate,
		logger:    logger,
	}
}

// List returns all allocations with display names.
func (s *AllocationService) List(ctx context.Context) ([]models.AllocationDetail, error) {
	allocations, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list allocations")
	}
	return allocations, nil
}

// Create adds a new allocation after checking the referenced entities exist
// and the triple is not already allocated.
func (s *AllocationService) Create(ctx context.Context, req CreateAllocationRequest) (*models.Allocation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid allocation payload")
	}

	if _, err := s.batches.FindByID(ctx, req.BatchID); err != nil {
		return nil, referenceError(err, "batch")
	}
	if _, err := s.subjects.FindByID(ctx, req.SubjectID); err != nil {
		return nil, referenceError(err, "subject")
	}
	if _, err := s.faculty.FindByID(ctx, req.FacultyID); err != nil {
		return nil, referenceError(err, "faculty member")
	}

	exists, err := s.repo.Exists(ctx, req.BatchID, req.SubjectID, req.FacultyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check allocation uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "allocation already exists")
	}

	allocation := &models.Allocation{
		ID:        uuid.NewString(),
		BatchID:   req.BatchID,
		SubjectID: req.SubjectID,
		FacultyID: req.FacultyID,
	}

	if err := s.repo.Create(ctx, allocation); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create allocation")
	}

	invalidateCatalogCache(ctx, s.cache, s.logger)
	return allocation, nil
}

// Delete removes an allocation together with any fixed slots pinned to it.
func (s *AllocationService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "allocation not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocation")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete allocation")
	}

	invalidateCatalogCache(ctx, s.cache, s.logger)
	return nil
}

// ListFixedSlots returns all pinned slots ordered by day and period.
func (s *AllocationService) ListFixedSlots(ctx context.Context) ([]models.FixedSlot, error) {
	slots, err := s.repo.ListFixedSlots(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fixed slots")
	}
	return slots, nil
}

// CreateFixedSlot pins an allocation to a day and period. The triple must be
// allocated, the labels must exist in the college calendar and the batch cell
// must be free.
func (s *AllocationService) CreateFixedSlot(ctx context.Context, req CreateFixedSlotRequest) (*models.FixedSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fixed slot payload")
	}

	allocated, err := s.repo.Exists(ctx, req.BatchID, req.SubjectID, req.FacultyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check allocation")
	}
	if !allocated {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no allocation exists for this batch, subject and faculty")
	}

	if _, err := s.rooms.FindByID(ctx, req.RoomID); err != nil {
		return nil, referenceError(err, "room")
	}

	cal, err := s.college.Calendar(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := cal.DayIndex(req.Day); !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown working day label")
	}
	if _, ok := cal.PeriodIndex(req.Period); !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown time slot label")
	}

	occupied, err := s.repo.FixedSlotOccupied(ctx, req.BatchID, req.Day, req.Period)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check fixed slot cell")
	}
	if occupied {
		return nil, appErrors.Clone(appErrors.ErrConflict, "batch already has a fixed slot at this day and period")
	}

	slot := &models.FixedSlot{
		ID:        uuid.NewString(),
		BatchID:   req.BatchID,
		SubjectID: req.SubjectID,
		FacultyID: req.FacultyID,
		RoomID:    req.RoomID,
		Day:       req.Day,
		Period:    req.Period,
	}

	if err := s.repo.CreateFixedSlot(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create fixed slot")
	}

	invalidateCatalogCache(ctx, s.cache, s.logger)
	return slot, nil
}

// DeleteFixedSlot removes a pinned slot.
func (s *AllocationService) DeleteFixedSlot(ctx context.Context, id string) error {
	if err := s.repo.DeleteFixedSlot(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "fixed slot not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete fixed slot")
	}

	invalidateCatalogCache(ctx, s.cache, s.logger)
	return nil
}

func referenceError(err error, noun string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrValidation, "unknown "+noun)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load "+noun)
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusmesh/timetable-api/internal/models"
	appErrors "github.com/campusmesh/timetable-api/pkg/errors"
)

type batchRepository interface {
	List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error)
	FindByID(ctx context.Context, id string) (*models.Batch, error)
	Create(ctx context.Context, batch *models.Batch) error
	Update(ctx context.Context, batch *models.Batch) error
	Delete(ctx context.Context, id string) error
	CountAllocations(ctx context.Context, id string) (int, error)
}

// CreateBatchRequest payload for creating a batch.
type CreateBatchRequest struct {
	Name       string `json:"name" validate:"required"`
	Department string `json:"department" validate:"required"`
	Semester   int    `json:"semester" validate:"required,min=1,max=12"`
	Headcount  int    `json:"headcount" validate:"required,min=1"`
	Active     *bool  `json:"active"`
}

// UpdateBatchRequest payload for updating a batch.
type UpdateBatchRequest struct {
	Name       string `json:"name" validate:"required"`
	Department string `json:"department" validate:"required"`
	Semester   int    `json:"semester" validate:"required,min=1,max=12"`
	Headcount  int    `json:"headcount" validate:"required,min=1"`
	Active     *bool  `json:"active"`
}

// BatchService manages student cohorts.
type BatchService struct {
	repo      batchRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBatchService creates a BatchService instance.
func NewBatchService(repo batchRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *BatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &BatchService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// List returns paginated batches.
func (s *BatchService) List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, *models.Pagination, error) {
	batches, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batches")
	}
	return batches, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a batch by ID.
func (s *BatchService) Get(ctx context.Context, id string) (*models.Batch, error) {
	batch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	return batch, nil
}

// Create adds a new batch. New batches are active unless the payload says
// otherwise.
func (s *BatchService) Create(ctx context.Context, req CreateBatchRequest) (*models.Batch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	batch := &models.Batch{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(req.Name),
		Department: strings.TrimSpace(req.Department),
		Semester:   req.Semester,
		Headcount:  req.Headcount,
		Active:     active,
	}

	if err := s.repo.Create(ctx, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create batch")
	}

	invalidateCatalogCache(ctx, s.cache, s.logger)
	return batch, nil
}

// Update modifies an existing batch.
func (s *BatchService) Update(ctx context.Context, id string, req UpdateBatchRequest) (*models.Batch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}

	batch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}

	batch.Name = strings.TrimSpace(req.Name)
	batch.Department = strings.TrimSpace(req.Department)
	batch.Semester = req.Semester
	batch.Headcount = req.Headcount
	if req.Active != nil {
		batch.Active = *req.Active
	}

	if err := s.repo.Update(ctx, batch); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update batch")
	}

	invalidateCatalogCache(ctx, s.cache, s.logger)
	return batch, nil
}

// Delete removes a batch that has no allocations.
func (s *BatchService) Delete(ctx context.Context, id string) error {
	count, err := s.repo.CountAllocations(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check batch allocations")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "batch has allocations, remove them first")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete batch")
	}

	invalidateCatalogCache(ctx, s.cache, s.logger)
	return nil
}

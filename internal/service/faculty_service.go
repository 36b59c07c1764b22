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

type facultyRepository interface {
	List(ctx context.Context, filter models.FacultyFilter) ([]models.Faculty, int, error)
	FindByID(ctx context.Context, id string) (*models.Faculty, error)
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)
	Create(ctx context.Context, member *models.Faculty) error
	Update(ctx context.Context, member *models.Faculty) error
	Delete(ctx context.Context, id string) error
	CountAllocations(ctx context.Context, id string) (int, error)
}

// CreateFacultyRequest payload for creating a faculty member.
type CreateFacultyRequest struct {
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Department string `json:"department" validate:"required"`
	Active     *bool  `json:"active"`
}

// UpdateFacultyRequest payload for updating a faculty member.
type UpdateFacultyRequest struct {
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Department string `json:"department" validate:"required"`
	Active     *bool  `json:"active"`
}

// FacultyService manages instructor records.
type FacultyService struct {
	repo      facultyRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFacultyService creates a FacultyService instance.
func NewFacultyService(repo facultyRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *FacultyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &FacultyService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// List returns paginated faculty.
func (s *FacultyService) List(ctx context.Context, filter models.FacultyFilter) ([]models.Faculty, *models.Pagination, error) {
	members, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list faculty")
	}
	return members, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a faculty member by ID.
func (s *FacultyService) Get(ctx context.Context, id string) (*models.Faculty, error) {
	member, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "faculty member not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty member")
	}
	return member, nil
}

// Create adds a new faculty member.
func (s *FacultyService) Create(ctx context.Context, req CreateFacultyRequest) (*models.Faculty, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid faculty payload")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	exists, err := s.repo.ExistsByEmail(ctx, email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check faculty email uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "faculty email already exists")
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	member := &models.Faculty{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(req.Name),
		Email:      email,
		Department: strings.TrimSpace(req.Department),
		Active:     active,
	}

	if err := s.repo.Create(ctx, member); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create faculty member")
	}

	invalidateCatalogCache(ctx, s.cache, s.logger)
	return member, nil
}

// Update modifies an existing faculty member.
func (s *FacultyService) Update(ctx context.Context, id string, req UpdateFacultyRequest) (*models.Faculty, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid faculty payload")
	}

	member, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "faculty member not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty member")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email != member.Email {
		exists, err := s.repo.ExistsByEmail(ctx, email, member.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check faculty email uniqueness")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "faculty email already exists")
		}
	}

	member.Name = strings.TrimSpace(req.Name)
	member.Email = email
	member.Department = strings.TrimSpace(req.Department)
	if req.Active != nil {
		member.Active = *req.Active
	}

	if err := s.repo.Update(ctx, member); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "faculty member not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update faculty member")
	}

	invalidateCatalogCache(ctx, s.cache, s.logger)
	return member, nil
}

// Delete removes a faculty member that has no allocations.
func (s *FacultyService) Delete(ctx context.Context, id string) error {
	count, err := s.repo.CountAllocations(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check faculty allocations")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "faculty member has allocations, remove them first")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "faculty member not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete faculty member")
	}

	invalidateCatalogCache(ctx, s.cache, s.logger)
	return nil
}

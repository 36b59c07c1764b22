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

type subjectRepository interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error)
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
	Delete(ctx context.Context, id string) error
	CountAllocations(ctx context.Context, id string) (int, error)
}

// CreateSubjectRequest payload for creating a subject.
type CreateSubjectRequest struct {
	Code        string `json:"code" validate:"required"`
	Name        string `json:"name" validate:"required"`
	SubjectType string `json:"subject_type" validate:"required,oneof=theory practical"`
	Credits     int    `json:"credits" validate:"required,min=1,max=10"`
	TheoryHours int    `json:"theory_hours" validate:"min=0,max=20"`
	LabHours    int    `json:"lab_hours" validate:"min=0,max=8"`
	Department  string `json:"department" validate:"required"`
}

// UpdateSubjectRequest payload for updating a subject.
type UpdateSubjectRequest struct {
	Code        string `json:"code" validate:"required"`
	Name        string `json:"name" validate:"required"`
	SubjectType string `json:"subject_type" validate:"required,oneof=theory practical"`
	Credits     int    `json:"credits" validate:"required,min=1,max=10"`
	TheoryHours int    `json:"theory_hours" validate:"min=0,max=20"`
	LabHours    int    `json:"lab_hours" validate:"min=0,max=8"`
	Department  string `json:"department" validate:"required"`
}

// SubjectService manages the subject catalogue.
type SubjectService struct {
	repo      subjectRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService creates a SubjectService instance.
func NewSubjectService(repo subjectRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SubjectService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// List returns paginated subjects.
func (s *SubjectService) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, *models.Pagination, error) {
	subjects, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a subject by ID.
func (s *SubjectService) Get(ctx context.Context, id string) (*models.Subject, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

// Create adds a new subject. Practical subjects need lab hours, theory
// subjects need theory hours.
func (s *SubjectService) Create(ctx context.Context, req CreateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	if err := validateSubjectHours(req.SubjectType, req.TheoryHours, req.LabHours); err != nil {
		return nil, err
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	exists, err := s.repo.ExistsByCode(ctx, code, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject code uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "subject code already exists")
	}

	subject := &models.Subject{
		ID:          uuid.NewString(),
		Code:        code,
		Name:        strings.TrimSpace(req.Name),
		SubjectType: req.SubjectType,
		Credits:     req.Credits,
		TheoryHours: req.TheoryHours,
		LabHours:    req.LabHours,
		Department:  strings.TrimSpace(req.Department),
	}

	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}

	invalidateCatalogCache(ctx, s.cache, s.logger)
	return subject, nil
}

// Update modifies an existing subject.
func (s *SubjectService) Update(ctx context.Context, id string, req UpdateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	if err := validateSubjectHours(req.SubjectType, req.TheoryHours, req.LabHours); err != nil {
		return nil, err
	}

	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code != subject.Code {
		exists, err := s.repo.ExistsByCode(ctx, code, subject.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject code uniqueness")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "subject code already exists")
		}
	}

	subject.Code = code
	subject.Name = strings.TrimSpace(req.Name)
	subject.SubjectType = req.SubjectType
	subject.Credits = req.Credits
	subject.TheoryHours = req.TheoryHours
	subject.LabHours = req.LabHours
	subject.Department = strings.TrimSpace(req.Department)

	if err := s.repo.Update(ctx, subject); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}

	invalidateCatalogCache(ctx, s.cache, s.logger)
	return subject, nil
}

// Delete removes a subject that has no allocations.
func (s *SubjectService) Delete(ctx context.Context, id string) error {
	count, err := s.repo.CountAllocations(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject allocations")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "subject has allocations, remove them first")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject")
	}

	invalidateCatalogCache(ctx, s.cache, s.logger)
	return nil
}

func validateSubjectHours(subjectType string, theoryHours, labHours int) error {
	switch subjectType {
	case models.SubjectTypePractical:
		if labHours < 1 {
			return appErrors.Clone(appErrors.ErrValidation, "practical subjects require lab hours")
		}
	default:
		if theoryHours < 1 {
			return appErrors.Clone(appErrors.ErrValidation, "theory subjects require theory hours")
		}
	}
	return nil
}

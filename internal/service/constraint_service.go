package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusmesh/timetable-api/internal/domain"
	"github.com/campusmesh/timetable-api/internal/models"
	appErrors "github.com/campusmesh/timetable-api/pkg/errors"
)

type constraintRepository interface {
	List(ctx context.Context) ([]models.ConstraintConfig, error)
	FindByName(ctx context.Context, name string) (*models.ConstraintConfig, error)
	Update(ctx context.Context, config *models.ConstraintConfig) error
	SeedDefaults(ctx context.Context, defaults []models.ConstraintConfig) error
}

// ConstraintService manages the runtime-tunable scheduling rule catalogue.
type ConstraintService struct {
	repo      constraintRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewConstraintService creates a ConstraintService instance.
func NewConstraintService(repo constraintRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ConstraintService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ConstraintService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// List returns every constraint configuration.
func (s *ConstraintService) List(ctx context.Context) ([]models.ConstraintConfig, error) {
	configs, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list constraints")
	}
	return configs, nil
}

// Update tunes one constraint. Only the enabled flag and weight change; names
// and kinds are part of the solver contract.
func (s *ConstraintService) Update(ctx context.Context, req models.ConstraintUpdate) (*models.ConstraintConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid constraint payload")
	}

	config, err := s.repo.FindByName(ctx, req.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "constraint not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load constraint")
	}

	if req.Enabled != nil {
		config.Enabled = *req.Enabled
	}
	if req.Weight != nil {
		config.Weight = *req.Weight
	}

	if err := s.repo.Update(ctx, config); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update constraint")
	}

	invalidateCatalogCache(ctx, s.cache, s.logger)
	return config, nil
}

// SeedDefaults inserts any stock constraints missing from the table. Existing
// rows keep their tuned values.
func (s *ConstraintService) SeedDefaults(ctx context.Context) error {
	specs := domain.DefaultConstraints()
	defaults := make([]models.ConstraintConfig, 0, len(specs))
	for _, spec := range specs {
		defaults = append(defaults, models.ConstraintConfig{
			Name:        spec.Name,
			Kind:        string(spec.Kind),
			Enabled:     spec.Enabled,
			Weight:      spec.Weight,
			Description: spec.Description,
		})
	}
	if err := s.repo.SeedDefaults(ctx, defaults); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to seed constraint defaults")
	}
	return nil
}

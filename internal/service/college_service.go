package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/campusmesh/timetable-api/internal/domain"
	"github.com/campusmesh/timetable-api/internal/models"
	appErrors "github.com/campusmesh/timetable-api/pkg/errors"
)

type collegeRepository interface {
	Get(ctx context.Context) (*models.College, error)
	Upsert(ctx context.Context, college *models.College) error
}

// UpdateCollegeRequest payload for the institution profile. Day and period
// order is significant: it defines the chronological indexes every timetable
// is stored against.
type UpdateCollegeRequest struct {
	Name        string   `json:"name" validate:"required"`
	WorkingDays []string `json:"working_days" validate:"required,min=1,dive,required"`
	TimeSlots   []string `json:"time_slots" validate:"required,min=1,dive,required"`
}

// CollegeService manages the singleton institution profile.
type CollegeService struct {
	repo      collegeRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCollegeService creates a CollegeService instance.
func NewCollegeService(repo collegeRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *CollegeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CollegeService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// Get returns the institution profile.
func (s *CollegeService) Get(ctx context.Context) (*models.College, error) {
	college, err := s.repo.Get(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "college profile not configured")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load college profile")
	}
	return college, nil
}

// Update replaces the institution profile, creating it on first call.
func (s *CollegeService) Update(ctx context.Context, req UpdateCollegeRequest) (*models.College, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid college payload")
	}
	if err := validateCalendarLabels(req.WorkingDays, "working day"); err != nil {
		return nil, err
	}
	if err := validateCalendarLabels(req.TimeSlots, "time slot"); err != nil {
		return nil, err
	}

	days, _ := json.Marshal(req.WorkingDays)
	slots, _ := json.Marshal(req.TimeSlots)

	college, err := s.repo.Get(ctx)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load college profile")
		}
		college = &models.College{ID: uuid.NewString()}
	}

	college.Name = strings.TrimSpace(req.Name)
	college.WorkingDays = types.JSONText(days)
	college.TimeSlots = types.JSONText(slots)

	if err := s.repo.Upsert(ctx, college); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save college profile")
	}

	invalidateCatalogCache(ctx, s.cache, s.logger)
	return college, nil
}

// Calendar loads the configured day and period labels as a scheduling
// calendar.
func (s *CollegeService) Calendar(ctx context.Context) (domain.Calendar, error) {
	college, err := s.repo.Get(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Calendar{}, appErrors.Clone(appErrors.ErrNotFound, "college profile not configured")
		}
		return domain.Calendar{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load college profile")
	}
	days, periods, err := college.Calendar()
	if err != nil {
		return domain.Calendar{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode college calendar")
	}
	return domain.NewCalendar(days, periods), nil
}

func validateCalendarLabels(labels []string, noun string) error {
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		trimmed := strings.TrimSpace(label)
		if trimmed == "" {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s labels cannot be blank", noun))
		}
		if _, dup := seen[trimmed]; dup {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate %s label: %s", noun, trimmed))
		}
		seen[trimmed] = struct{}{}
	}
	return nil
}

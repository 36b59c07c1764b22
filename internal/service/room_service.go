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

type roomRepository interface {
	List(ctx context.Context, filter models.RoomFilter) ([]models.Room, int, error)
	FindByID(ctx context.Context, id string) (*models.Room, error)
	Create(ctx context.Context, room *models.Room) error
	Update(ctx context.Context, room *models.Room) error
	Delete(ctx context.Context, id string) error
}

// CreateRoomRequest payload for creating a room.
type CreateRoomRequest struct {
	Name     string `json:"name" validate:"required"`
	Kind     string `json:"kind" validate:"required,oneof=classroom lab"`
	Capacity int    `json:"capacity" validate:"required,min=1"`
	Building string `json:"building"`
}

// UpdateRoomRequest payload for updating a room.
type UpdateRoomRequest struct {
	Name     string `json:"name" validate:"required"`
	Kind     string `json:"kind" validate:"required,oneof=classroom lab"`
	Capacity int    `json:"capacity" validate:"required,min=1"`
	Building string `json:"building"`
}

// RoomService manages teaching spaces.
type RoomService struct {
	repo      roomRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRoomService creates a RoomService instance.
func NewRoomService(repo roomRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *RoomService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &RoomService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// List returns paginated rooms.
func (s *RoomService) List(ctx context.Context, filter models.RoomFilter) ([]models.Room, *models.Pagination, error) {
	rooms, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rooms")
	}
	return rooms, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a room by ID.
func (s *RoomService) Get(ctx context.Context, id string) (*models.Room, error) {
	room, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	return room, nil
}

// Create adds a new room.
func (s *RoomService) Create(ctx context.Context, req CreateRoomRequest) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid room payload")
	}

	room := &models.Room{
		ID:       uuid.NewString(),
		Name:     strings.TrimSpace(req.Name),
		Kind:     req.Kind,
		Capacity: req.Capacity,
		Building: strings.TrimSpace(req.Building),
	}

	if err := s.repo.Create(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create room")
	}

	invalidateCatalogCache(ctx, s.cache, s.logger)
	return room, nil
}

// Update modifies an existing room.
func (s *RoomService) Update(ctx context.Context, id string, req UpdateRoomRequest) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid room payload")
	}

	room, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}

	room.Name = strings.TrimSpace(req.Name)
	room.Kind = req.Kind
	room.Capacity = req.Capacity
	room.Building = strings.TrimSpace(req.Building)

	if err := s.repo.Update(ctx, room); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update room")
	}

	invalidateCatalogCache(ctx, s.cache, s.logger)
	return room, nil
}

// Delete removes a room.
func (s *RoomService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete room")
	}

	invalidateCatalogCache(ctx, s.cache, s.logger)
	return nil
}

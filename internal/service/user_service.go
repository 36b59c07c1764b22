package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusmesh/timetable-api/internal/models"
	appErrors "github.com/campusmesh/timetable-api/pkg/errors"
)

// DefaultAdminUsername is the bootstrap account created on an empty users table.
const DefaultAdminUsername = "admin"

const defaultAdminPassword = "admin123"

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	ExistsByUsername(ctx context.Context, username string, excludeID string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	Count(ctx context.Context) (int, error)
}

// CreateUserRequest represents payload for creating users.
type CreateUserRequest struct {
	Username string          `json:"username" validate:"required,min=3"`
	Email    string          `json:"email" validate:"required,email"`
	Password string          `json:"password" validate:"required,min=6"`
	Role     models.UserRole `json:"role" validate:"required,oneof=admin faculty viewer"`
	Active   bool            `json:"active"`
}

// UpdateUserRequest payload for updating users.
type UpdateUserRequest struct {
	Email  string          `json:"email" validate:"required,email"`
	Role   models.UserRole `json:"role" validate:"required,oneof=admin faculty viewer"`
	Active *bool           `json:"active"`
}

// ResetPasswordRequest payload for an admin-issued password reset.
type ResetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// UserService handles user management workflows.
type UserService struct {
	repo      userRepository
	audit     activityRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, audit activityRecorder, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	pagination := &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	}

	return users, pagination, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create adds a new user.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest, actor models.Actor) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	exists, err := s.repo.ExistsByUsername(ctx, username, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check username uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "username already exists")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        strings.ToLower(req.Email),
		Role:         req.Role,
		Active:       req.Active,
		PasswordHash: string(passwordHash),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.recordUserActivity(ctx, actor, models.ActivityUserCreate, user.ID, map[string]interface{}{"username": user.Username, "role": user.Role})

	return user, nil
}

// Update modifies the mutable user attributes.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest, actor models.Actor) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	user.Email = strings.ToLower(req.Email)
	user.Role = req.Role
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.recordUserActivity(ctx, actor, models.ActivityUserUpdate, user.ID, map[string]interface{}{"role": user.Role, "active": user.Active})

	return user, nil
}

// Delete performs a soft delete (inactive) on a user. Users cannot delete
// their own account.
func (s *UserService) Delete(ctx context.Context, id string, actor models.Actor) error {
	if id == actor.ID {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot delete own account")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	s.recordUserActivity(ctx, actor, models.ActivityUserDelete, user.ID, map[string]interface{}{"username": user.Username, "active": false})

	return nil
}

// ResetPassword sets a new password for the target user and revokes nothing;
// the auth layer revokes sessions on the next refresh attempt.
func (s *UserService) ResetPassword(ctx context.Context, id string, req ResetPasswordRequest, actor models.Actor) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reset password payload")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	if err := s.repo.UpdatePassword(ctx, user.ID, string(passwordHash), time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset password")
	}

	s.recordUserActivity(ctx, actor, models.ActivityPasswordChange, user.ID, map[string]interface{}{"reset_by": actor.Username})

	return nil
}

// EnsureDefaultAdmin seeds a bootstrap administrator when the users table is
// empty so a fresh deployment can be logged into.
func (s *UserService) EnsureDefaultAdmin(ctx context.Context) error {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count users")
	}
	if count > 0 {
		return nil
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(defaultAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash bootstrap password")
	}

	admin := &models.User{
		ID:           uuid.NewString(),
		Username:     DefaultAdminUsername,
		Email:        "admin@localhost",
		Role:         models.RoleAdmin,
		Active:       true,
		PasswordHash: string(passwordHash),
	}

	if err := s.repo.Create(ctx, admin); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to seed bootstrap admin")
	}

	s.logger.Warn("seeded default admin account, change its password immediately",
		zap.String("username", DefaultAdminUsername))

	return nil
}

func (s *UserService) recordUserActivity(ctx context.Context, actor models.Actor, action, entityID string, detail map[string]interface{}) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(detail)
	entry := &models.ActivityLog{
		Username:  actor.Username,
		Action:    action,
		Entity:    "users",
		Detail:    types.JSONText(payload),
		IPAddress: actor.IP,
		UserAgent: actor.UserAgent,
	}
	if actor.ID != "" {
		entry.UserID = &actor.ID
	}
	if entityID != "" {
		entry.EntityID = &entityID
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record user activity", zap.String("action", action), zap.Error(err))
	}
}

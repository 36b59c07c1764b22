package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusmesh/timetable-api/internal/models"
	appErrors "github.com/campusmesh/timetable-api/pkg/errors"
)

type mockUserRepo struct {
	users     map[string]*models.User
	passwords map[string]string
	listErr   error
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var users []models.User
	for _, u := range m.users {
		users = append(users, *u)
	}
	return users, len(users), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		copyOf := *user
		return &copyOf, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) ExistsByUsername(ctx context.Context, username, excludeID string) (bool, error) {
	for _, u := range m.users {
		if u.Username == username && u.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	copyOf := *user
	m.users[user.ID] = &copyOf
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	copyOf := *user
	m.users[user.ID] = &copyOf
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	if user, ok := m.users[id]; ok {
		user.Active = false
		return nil
	}
	return sql.ErrNoRows
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, _ time.Time) error {
	if m.passwords == nil {
		m.passwords = make(map[string]string)
	}
	m.passwords[id] = passwordHash
	return nil
}

func (m *mockUserRepo) Count(ctx context.Context) (int, error) {
	return len(m.users), nil
}

func newUserFixture(users map[string]*models.User) (*UserService, *mockUserRepo, *mockActivityLog) {
	repo := &mockUserRepo{users: users}
	audit := &mockActivityLog{}
	return NewUserService(repo, audit, validator.New(), zap.NewNop()), repo, audit
}

func TestUserServiceList(t *testing.T) {
	svc, _, _ := newUserFixture(map[string]*models.User{"u1": {ID: "u1", Username: "admin"}})

	users, pagination, err := svc.List(context.Background(), models.UserFilter{Page: 0, PageSize: 0})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestUserServiceCreate(t *testing.T) {
	svc, repo, audit := newUserFixture(map[string]*models.User{})

	user, err := svc.Create(context.Background(), CreateUserRequest{
		Username: "  Registrar  ",
		Email:    "REGISTRAR@CAMPUS.EDU",
		Password: "secret1",
		Role:     models.RoleFaculty,
		Active:   true,
	}, models.Actor{ID: "admin-id", Username: "admin"})
	require.NoError(t, err)

	assert.Equal(t, "registrar", user.Username)
	assert.Equal(t, "registrar@campus.edu", user.Email)
	assert.NotEmpty(t, user.ID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users[user.ID].PasswordHash), []byte("secret1")))

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.ActivityUserCreate, audit.entries[0].Action)
	assert.Equal(t, "users", audit.entries[0].Entity)
}

func TestUserServiceCreateRejectsDuplicateUsername(t *testing.T) {
	svc, _, _ := newUserFixture(map[string]*models.User{"u1": {ID: "u1", Username: "registrar"}})

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Username: "Registrar",
		Email:    "registrar@campus.edu",
		Password: "secret1",
		Role:     models.RoleViewer,
	}, models.Actor{ID: "admin-id"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserServiceCreateRejectsBadPayload(t *testing.T) {
	svc, _, _ := newUserFixture(map[string]*models.User{})

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Username: "ok",
		Email:    "not-an-email",
		Password: "secret1",
		Role:     "superuser",
	}, models.Actor{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceUpdate(t *testing.T) {
	svc, repo, audit := newUserFixture(map[string]*models.User{
		"u1": {ID: "u1", Username: "registrar", Email: "old@campus.edu", Role: models.RoleViewer, Active: true},
	})

	inactive := false
	user, err := svc.Update(context.Background(), "u1", UpdateUserRequest{
		Email:  "new@campus.edu",
		Role:   models.RoleFaculty,
		Active: &inactive,
	}, models.Actor{ID: "admin-id", Username: "admin"})
	require.NoError(t, err)

	assert.Equal(t, models.RoleFaculty, user.Role)
	assert.False(t, user.Active)
	assert.Equal(t, "new@campus.edu", repo.users["u1"].Email)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.ActivityUserUpdate, audit.entries[0].Action)
}

func TestUserServiceDeleteRefusesSelf(t *testing.T) {
	svc, repo, _ := newUserFixture(map[string]*models.User{
		"u1": {ID: "u1", Username: "admin", Active: true},
	})

	err := svc.Delete(context.Background(), "u1", models.Actor{ID: "u1", Username: "admin"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.True(t, repo.users["u1"].Active)
}

func TestUserServiceDelete(t *testing.T) {
	svc, repo, audit := newUserFixture(map[string]*models.User{
		"u1": {ID: "u1", Username: "admin", Active: true},
		"u2": {ID: "u2", Username: "registrar", Active: true},
	})

	require.NoError(t, svc.Delete(context.Background(), "u2", models.Actor{ID: "u1", Username: "admin"}))
	assert.False(t, repo.users["u2"].Active)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.ActivityUserDelete, audit.entries[0].Action)

	err := svc.Delete(context.Background(), "ghost", models.Actor{ID: "u1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUserServiceResetPassword(t *testing.T) {
	svc, repo, audit := newUserFixture(map[string]*models.User{
		"u2": {ID: "u2", Username: "registrar", Active: true},
	})

	err := svc.ResetPassword(context.Background(), "u2", ResetPasswordRequest{NewPassword: "fresh-secret"}, models.Actor{ID: "u1", Username: "admin"})
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.passwords["u2"]), []byte("fresh-secret")))
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.ActivityPasswordChange, audit.entries[0].Action)

	err = svc.ResetPassword(context.Background(), "u2", ResetPasswordRequest{NewPassword: "tiny"}, models.Actor{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEnsureDefaultAdminSeedsEmptyTable(t *testing.T) {
	svc, repo, _ := newUserFixture(map[string]*models.User{})

	require.NoError(t, svc.EnsureDefaultAdmin(context.Background()))
	require.Len(t, repo.users, 1)
	for _, user := range repo.users {
		assert.Equal(t, DefaultAdminUsername, user.Username)
		assert.Equal(t, models.RoleAdmin, user.Role)
		assert.True(t, user.Active)
	}

	// A second call must not add another account.
	require.NoError(t, svc.EnsureDefaultAdmin(context.Background()))
	assert.Len(t, repo.users, 1)
}

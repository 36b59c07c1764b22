package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusmesh/timetable-api/internal/models"
	"github.com/campusmesh/timetable-api/internal/service"
)

type userSourceStub struct {
	user *models.User
}

func (s *userSourceStub) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	if s.user == nil || s.user.Username != username {
		return nil, sql.ErrNoRows
	}
	copyOf := *s.user
	return &copyOf, nil
}

func (s *userSourceStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, sql.ErrNoRows
	}
	copyOf := *s.user
	return &copyOf, nil
}

func (s *userSourceStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (s *userSourceStub) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	return nil
}

type tokenSinkStub struct {
	tokens map[string]*models.RefreshToken
}

func (s *tokenSinkStub) Create(ctx context.Context, token *models.RefreshToken) error {
	if s.tokens == nil {
		s.tokens = make(map[string]*models.RefreshToken)
	}
	s.tokens[token.TokenHash] = token
	return nil
}

func (s *tokenSinkStub) FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	if token, ok := s.tokens[tokenHash]; ok {
		return token, nil
	}
	return nil, sql.ErrNoRows
}

func (s *tokenSinkStub) Revoke(ctx context.Context, id string, revokedAt time.Time) error {
	return nil
}

func (s *tokenSinkStub) RevokeForUser(ctx context.Context, userID string) error {
	return nil
}

func newAuthHandler(user *models.User) *AuthHandler {
	svc := service.NewAuthService(
		&userSourceStub{user: user},
		&tokenSinkStub{},
		nil,
		validator.New(),
		zap.NewNop(),
		service.AuthConfig{
			AccessTokenSecret:  "test-secret",
			AccessTokenExpiry:  time.Hour,
			RefreshTokenExpiry: 24 * time.Hour,
		},
	)
	return NewAuthHandler(svc)
}

func TestAuthHandlerLoginSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	require.NoError(t, err)
	handler := newAuthHandler(&models.User{
		ID:           "u1",
		Username:     "admin",
		Email:        "admin@campus.edu",
		Role:         models.RoleAdmin,
		Active:       true,
		PasswordHash: string(hash),
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(models.LoginRequest{Username: "admin", Password: "password"})
	req, _ := http.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Login(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.LoginResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.NotEmpty(t, envelope.Data.AccessToken)
	assert.NotEmpty(t, envelope.Data.RefreshToken)
	assert.Equal(t, "admin", envelope.Data.User.Username)
}

func TestAuthHandlerLoginWrongPassword(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	require.NoError(t, err)
	handler := newAuthHandler(&models.User{
		ID:           "u1",
		Username:     "admin",
		Active:       true,
		PasswordHash: string(hash),
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(models.LoginRequest{Username: "admin", Password: "nope"})
	req, _ := http.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Login(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerLoginRejectsInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newAuthHandler(nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader([]byte(`{`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Login(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

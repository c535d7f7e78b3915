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

	"github.com/noah-isme/iotd-api/internal/models"
	appErrors "github.com/noah-isme/iotd-api/pkg/errors"
)

type mockAuthRepo struct {
	userByEmail      *models.User
	findByEmailErr   error
	lastLoginUpdated bool
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.userByEmail == nil || m.userByEmail.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func newAuthFixture(user *models.User) (*AuthService, *mockAuthRepo, *auditRecorderStub) {
	repo := &mockAuthRepo{userByEmail: user}
	audit := &auditRecorderStub{}
	svc := NewAuthService(repo, audit, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret: "secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "iotd-api",
	})
	return svc, repo, audit
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	svc, repo, audit := newAuthFixture(&models.User{ID: "123", Email: "judge@example.com", PasswordHash: string(password), Active: true, Role: models.RoleJudge})

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "judge@example.com", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.EqualValues(t, 3600, res.ExpiresIn)
	assert.Equal(t, models.RoleJudge, res.User.Role)
	assert.True(t, repo.lastLoginUpdated)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionLogin, audit.logs[0].Action)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "123", claims.UserID)
	assert.Equal(t, models.RoleJudge, claims.Role)
}

func TestAuthServiceLoginFailures(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)

	svc, _, _ := newAuthFixture(&models.User{ID: "123", Email: "user@example.com", PasswordHash: string(password), Active: false})
	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)

	svc, _, _ = newAuthFixture(&models.User{ID: "123", Email: "user@example.com", PasswordHash: string(password), Active: true})
	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "wrong"})
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email", Password: "x"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	svc, repo, _ := newAuthFixture(nil)
	repo.findByEmailErr = sql.ErrNoRows
	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "ghost@example.com", Password: "x"})
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenRejectsForeignTokens(t *testing.T) {
	svc, _, _ := newAuthFixture(nil)
	token, _, err := svc.generateAccessToken(&models.User{ID: "u1", Role: models.RoleAdmin})
	require.NoError(t, err)

	other := NewAuthService(&mockAuthRepo{}, nil, nil, nil, AuthConfig{AccessTokenSecret: "other", Issuer: "iotd-api"})
	_, err = other.ValidateToken(token)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	wrongIssuer := NewAuthService(&mockAuthRepo{}, nil, nil, nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "someone-else"})
	_, err = wrongIssuer.ValidateToken(token)
	assert.Error(t, err)
}

func TestAuthServiceMe(t *testing.T) {
	svc, _, _ := newAuthFixture(&models.User{ID: "u1", Email: "a@example.com", Role: models.RoleReviewer})
	info, err := svc.Me(context.Background(), &models.JWTClaims{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", info.Email)

	_, err = svc.Me(context.Background(), &models.JWTClaims{UserID: "gone"})
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

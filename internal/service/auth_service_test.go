package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/campus-outpass-api/internal/models"
	appErrors "github.com/noah-isme/campus-outpass-api/pkg/errors"
)

type mockAuthRepo struct {
	users          map[string]*models.User
	allowedEmails  map[string]bool
	createdProfile *models.StudentProfile
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		users:         make(map[string]*models.User),
		allowedEmails: make(map[string]bool),
	}
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := m.users[email]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) IsEmailAllowed(ctx context.Context, email string) (bool, error) {
	return m.allowedEmails[email], nil
}

func (m *mockAuthRepo) CreateStudent(ctx context.Context, user *models.User, profile *models.StudentProfile) error {
	m.users[user.Email] = user
	m.createdProfile = profile
	return nil
}

func newAuthTestService(repo *mockAuthRepo, audit *auditStub) *AuthService {
	return NewAuthService(repo, audit, validator.New(), zap.NewNop(), AuthConfig{
		Secret: "secret",
		Expiry: time.Hour,
		Issuer: "campus-outpass-api",
	})
}

func TestAuthServiceSignupAllowListed(t *testing.T) {
	repo := newMockAuthRepo()
	repo.allowedEmails["asha@campus.edu"] = true
	audit := &auditStub{}
	svc := newAuthTestService(repo, audit)

	res, err := svc.Signup(context.Background(), models.SignupRequest{
		FullName:   "Asha Rao",
		Email:      "Asha@Campus.edu",
		Password:   "secret1",
		RollNo:     "21CS042",
		Department: "CSE",
		Branch:     "AI",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.Equal(t, models.RoleStudent, res.User.Role)
	require.Equal(t, "asha@campus.edu", res.User.Email)
	require.Equal(t, "21CS042", repo.createdProfile.RollNo)
	require.Nil(t, repo.createdProfile.ClassTeacherID)
	require.Equal(t, []string{models.AuditActionSignup}, audit.actions())
}

func TestAuthServiceSignupRejectsUnknownEmail(t *testing.T) {
	repo := newMockAuthRepo()
	svc := newAuthTestService(repo, &auditStub{})

	_, err := svc.Signup(context.Background(), models.SignupRequest{
		FullName:   "Asha Rao",
		Email:      "outsider@example.com",
		Password:   "secret1",
		RollNo:     "21CS042",
		Department: "CSE",
		Branch:     "AI",
	})
	requireAppError(t, err, appErrors.ErrEmailNotAllowed.Code)
}

func TestAuthServiceSignupRejectsDuplicate(t *testing.T) {
	repo := newMockAuthRepo()
	repo.allowedEmails["asha@campus.edu"] = true
	repo.users["asha@campus.edu"] = &models.User{ID: "u-1", Email: "asha@campus.edu"}
	svc := newAuthTestService(repo, &auditStub{})

	_, err := svc.Signup(context.Background(), models.SignupRequest{
		FullName:   "Asha Rao",
		Email:      "asha@campus.edu",
		Password:   "secret1",
		RollNo:     "21CS042",
		Department: "CSE",
		Branch:     "AI",
	})
	requireAppError(t, err, appErrors.ErrValidation.Code)
}

func TestAuthServiceLoginAndValidate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	require.NoError(t, err)

	repo := newMockAuthRepo()
	repo.users["guard@campus.edu"] = &models.User{
		ID:           "u-9",
		Email:        "guard@campus.edu",
		PasswordHash: string(hash),
		FullName:     "Gate Guard",
		Role:         models.RoleSecurity,
		Active:       true,
	}
	audit := &auditStub{}
	svc := newAuthTestService(repo, audit)

	res, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "guard@campus.edu",
		Password: "password",
	})
	require.NoError(t, err)
	require.Equal(t, int64(3600), res.ExpiresIn)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "u-9", claims.UserID)
	require.Equal(t, models.RoleSecurity, claims.Role)
	require.Equal(t, []string{models.AuditActionLogin}, audit.actions())
}

func TestAuthServiceLoginFailures(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	require.NoError(t, err)

	repo := newMockAuthRepo()
	repo.users["asha@campus.edu"] = &models.User{
		ID:           "u-1",
		Email:        "asha@campus.edu",
		PasswordHash: string(hash),
		Role:         models.RoleStudent,
		Active:       true,
	}
	repo.users["old@campus.edu"] = &models.User{
		ID:           "u-2",
		Email:        "old@campus.edu",
		PasswordHash: string(hash),
		Role:         models.RoleStudent,
		Active:       false,
	}
	svc := newAuthTestService(repo, &auditStub{})
	ctx := context.Background()

	_, err = svc.Login(ctx, models.LoginRequest{Email: "asha@campus.edu", Password: "wrong"})
	requireAppError(t, err, appErrors.ErrInvalidCredentials.Code)

	_, err = svc.Login(ctx, models.LoginRequest{Email: "nobody@campus.edu", Password: "password"})
	requireAppError(t, err, appErrors.ErrInvalidCredentials.Code)

	_, err = svc.Login(ctx, models.LoginRequest{Email: "old@campus.edu", Password: "password"})
	requireAppError(t, err, appErrors.ErrForbidden.Code)
}

func TestAuthServiceValidateTokenRejectsTampering(t *testing.T) {
	repo := newMockAuthRepo()
	svc := newAuthTestService(repo, &auditStub{})

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	require.NoError(t, err)
	repo.users["asha@campus.edu"] = &models.User{
		ID:           "u-1",
		Email:        "asha@campus.edu",
		PasswordHash: string(hash),
		Role:         models.RoleStudent,
		Active:       true,
	}

	res, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "asha@campus.edu",
		Password: "password",
	})
	require.NoError(t, err)

	tampered := res.AccessToken[:len(res.AccessToken)-2] + "xx"
	_, err = svc.ValidateToken(tampered)
	requireAppError(t, err, appErrors.ErrUnauthorized.Code)

	other := newAuthTestService(repo, &auditStub{})
	other.config.Secret = "different"
	_, err = other.ValidateToken(res.AccessToken)
	requireAppError(t, err, appErrors.ErrUnauthorized.Code)

	require.True(t, strings.Count(res.AccessToken, ".") == 2)
}

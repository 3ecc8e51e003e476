package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/multiverse-license/internal/lib/jwt"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/password"
	"github.com/magabrotheeeer/multiverse-license/internal/models"
	services "github.com/magabrotheeeer/multiverse-license/internal/services/auth"
)

// Мок для UserRepository
type UserRepoMock struct {
	mock.Mock
}

func (m *UserRepoMock) CreateUser(ctx context.Context, user models.User) (*models.User, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *UserRepoMock) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *UserRepoMock) ListUsers(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

func (m *UserRepoMock) SetAdmin(ctx context.Context, email string, isAdmin bool) error {
	args := m.Called(ctx, email, isAdmin)
	return args.Error(0)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newMaker(c *clock) *jwt.MakerImpl {
	return jwt.NewJWTMaker("test-secret", 30*time.Minute, 30*24*time.Hour).WithClock(c.Now)
}

func mustHash(t *testing.T, raw string) string {
	t.Helper()
	h, err := password.GetHash(raw)
	require.NoError(t, err)
	return h
}

func TestAuthService_Register(t *testing.T) {
	tests := []struct {
		name       string
		email      string
		admins     []string
		setupMocks func(r *UserRepoMock)
		wantErr    error
	}{
		{
			name:  "successful registration normalizes email",
			email: "  A@X.com ",
			setupMocks: func(r *UserRepoMock) {
				r.On("CreateUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
					return u.Email == "a@x.com" && !u.IsAdmin &&
						password.CompareHash(u.PasswordHash, "secret1") == nil
				})).Return(&models.User{UUID: "uid-1", Email: "a@x.com"}, nil).Once()
			},
		},
		{
			name:   "bootstrap admin",
			email:  "root@x.com",
			admins: []string{"root@x.com"},
			setupMocks: func(r *UserRepoMock) {
				r.On("CreateUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
					return u.IsAdmin
				})).Return(&models.User{UUID: "uid-2", Email: "root@x.com", IsAdmin: true}, nil).Once()
			},
		},
		{
			name:  "duplicate email",
			email: "a@x.com",
			setupMocks: func(r *UserRepoMock) {
				r.On("CreateUser", mock.Anything, mock.Anything).
					Return(nil, models.ErrDuplicateEmail).Once()
			},
			wantErr: models.ErrDuplicateEmail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(UserRepoMock)
			tt.setupMocks(repo)
			admins := tt.admins
			svc := services.NewAuthService(repo, newMaker(&clock{t: time.Now()}), func(email string) bool {
				for _, a := range admins {
					if a == email {
						return true
					}
				}
				return false
			})

			user, err := svc.Register(context.Background(), tt.email, "secret1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
			} else {
				require.NoError(t, err)
				assert.NotEmpty(t, user.UUID)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestAuthService_Authenticate(t *testing.T) {
	hash := mustHash(t, "secret1")

	tests := []struct {
		name       string
		password   string
		setupMocks func(r *UserRepoMock)
		wantErr    error
	}{
		{
			name:     "valid credentials",
			password: "secret1",
			setupMocks: func(r *UserRepoMock) {
				r.On("GetUserByEmail", mock.Anything, "a@x.com").
					Return(&models.User{Email: "a@x.com", PasswordHash: hash}, nil).Once()
			},
		},
		{
			name:     "wrong password",
			password: "nope",
			setupMocks: func(r *UserRepoMock) {
				r.On("GetUserByEmail", mock.Anything, "a@x.com").
					Return(&models.User{Email: "a@x.com", PasswordHash: hash}, nil).Once()
			},
			wantErr: models.ErrInvalidCredentials,
		},
		{
			name:     "unknown email looks the same as wrong password",
			password: "secret1",
			setupMocks: func(r *UserRepoMock) {
				r.On("GetUserByEmail", mock.Anything, "a@x.com").
					Return(nil, models.ErrUserNotFound).Once()
			},
			wantErr: models.ErrInvalidCredentials,
		},
		{
			name:     "storage failure is not masked",
			password: "secret1",
			setupMocks: func(r *UserRepoMock) {
				r.On("GetUserByEmail", mock.Anything, "a@x.com").
					Return(nil, errors.New("db down")).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(UserRepoMock)
			tt.setupMocks(repo)
			svc := services.NewAuthService(repo, newMaker(&clock{t: time.Now()}), nil)

			user, err := svc.Authenticate(context.Background(), "A@x.com", tt.password)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
			case tt.name == "storage failure is not masked":
				require.Error(t, err)
				assert.NotErrorIs(t, err, models.ErrInvalidCredentials)
			default:
				require.NoError(t, err)
				assert.Equal(t, "a@x.com", user.Email)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestAuthService_LoginRefreshVerify(t *testing.T) {
	c := &clock{t: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)}
	repo := new(UserRepoMock)
	user := &models.User{Email: "a@x.com", PasswordHash: mustHash(t, "secret1")}
	repo.On("GetUserByEmail", mock.Anything, "a@x.com").Return(user, nil)

	svc := services.NewAuthService(repo, newMaker(c), nil)
	ctx := context.Background()

	access, refresh, err := svc.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	email, err := svc.VerifyAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", email)

	_, err = svc.VerifyAccessToken(refresh)
	assert.ErrorIs(t, err, models.ErrWrongTokenType, "refresh token must not authorize requests")

	_, err = svc.Refresh(ctx, access)
	assert.ErrorIs(t, err, models.ErrWrongTokenType, "access token must not refresh")

	c.Advance(31 * time.Minute)
	_, err = svc.VerifyAccessToken(access)
	assert.ErrorIs(t, err, models.ErrTokenExpired)

	newAccess, err := svc.Refresh(ctx, refresh)
	require.NoError(t, err)
	email, err = svc.VerifyAccessToken(newAccess)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", email)

	c.Advance(30 * 24 * time.Hour)
	_, err = svc.Refresh(ctx, refresh)
	assert.ErrorIs(t, err, models.ErrTokenExpired)

	_, err = svc.VerifyAccessToken("garbage")
	assert.ErrorIs(t, err, models.ErrInvalidToken)
}

func TestAuthService_Refresh_DeletedUser(t *testing.T) {
	c := &clock{t: time.Now()}
	maker := newMaker(c)
	refresh, err := maker.GenerateRefreshToken("gone@x.com")
	require.NoError(t, err)

	repo := new(UserRepoMock)
	repo.On("GetUserByEmail", mock.Anything, "gone@x.com").Return(nil, models.ErrUserNotFound).Once()

	svc := services.NewAuthService(repo, maker, nil)
	_, err = svc.Refresh(context.Background(), refresh)
	assert.ErrorIs(t, err, models.ErrInvalidToken)
	assert.NotErrorIs(t, err, models.ErrUserNotFound)
	repo.AssertExpectations(t)
}

func TestAuthService_RequireAdmin(t *testing.T) {
	tests := []struct {
		name    string
		user    *models.User
		repoErr error
		admins  map[string]bool
		wantErr error
	}{
		{name: "admin", user: &models.User{Email: "root@x.com", IsAdmin: true}},
		{
			name:    "listed in config but flag cleared",
			user:    &models.User{Email: "owner@x.com", IsAdmin: false},
			admins:  map[string]bool{"owner@x.com": true},
			wantErr: models.ErrForbidden,
		},
		{name: "regular user", user: &models.User{Email: "a@x.com"}, wantErr: models.ErrForbidden},
		{name: "unknown user", repoErr: models.ErrUserNotFound, wantErr: models.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(UserRepoMock)
			if tt.user != nil {
				repo.On("GetUserByEmail", mock.Anything, tt.user.Email).Return(tt.user, nil).Once()
			} else {
				repo.On("GetUserByEmail", mock.Anything, mock.Anything).Return(nil, tt.repoErr).Once()
			}
			admins := tt.admins
			svc := services.NewAuthService(repo, newMaker(&clock{t: time.Now()}), func(e string) bool { return admins[e] })

			email := "x@x.com"
			if tt.user != nil {
				email = tt.user.Email
			}
			err := svc.RequireAdmin(context.Background(), email)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestAuthService_GrantAdminAndList(t *testing.T) {
	repo := new(UserRepoMock)
	repo.On("SetAdmin", mock.Anything, "b@x.com", true).Return(nil).Once()
	repo.On("SetAdmin", mock.Anything, "missing@x.com", true).Return(models.ErrUserNotFound).Once()
	repo.On("ListUsers", mock.Anything).Return([]*models.User{{Email: "b@x.com", IsAdmin: true}}, nil).Once()

	svc := services.NewAuthService(repo, newMaker(&clock{t: time.Now()}), nil)
	ctx := context.Background()

	require.NoError(t, svc.GrantAdmin(ctx, " B@x.com"))
	assert.ErrorIs(t, svc.GrantAdmin(ctx, "missing@x.com"), models.ErrUserNotFound)

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
	repo.AssertExpectations(t)
}

func TestAuthService_SeedAdmins(t *testing.T) {
	repo := new(UserRepoMock)
	repo.On("SetAdmin", mock.Anything, "boot@x.com", true).Return(nil).Once()
	repo.On("SetAdmin", mock.Anything, "later@x.com", true).Return(models.ErrUserNotFound).Once()

	svc := services.NewAuthService(repo, newMaker(&clock{t: time.Now()}), nil)

	granted, err := svc.SeedAdmins(context.Background(), []string{" Boot@x.com", "", "later@x.com"})
	require.NoError(t, err)
	assert.Equal(t, 1, granted)
	repo.AssertExpectations(t)
}

func TestAuthService_SeedAdmins_StorageError(t *testing.T) {
	repo := new(UserRepoMock)
	boom := errors.New("db down")
	repo.On("SetAdmin", mock.Anything, "boot@x.com", true).Return(boom).Once()

	svc := services.NewAuthService(repo, newMaker(&clock{t: time.Now()}), nil)

	_, err := svc.SeedAdmins(context.Background(), []string{"boot@x.com"})
	assert.ErrorIs(t, err, boom)
}

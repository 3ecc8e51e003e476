// Package services содержит логику учётных записей: регистрацию, вход,
// выпуск и обновление JWT, а также административные операции.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/magabrotheeeer/multiverse-license/internal/lib/jwt"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/password"
	"github.com/magabrotheeeer/multiverse-license/internal/models"
)

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	// CreateUser сохраняет нового пользователя, при занятом email возвращает ErrDuplicateEmail.
	CreateUser(ctx context.Context, user models.User) (*models.User, error)
	// GetUserByEmail возвращает пользователя или ErrUserNotFound.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// ListUsers возвращает всех пользователей.
	ListUsers(ctx context.Context) ([]*models.User, error)
	// SetAdmin меняет признак администратора.
	SetAdmin(ctx context.Context, email string, isAdmin bool) error
}

// AdminPolicy сообщает, входит ли email в список администраторов из конфигурации.
type AdminPolicy func(email string) bool

// AuthService отвечает за регистрацию, авторизацию и валидацию JWT.
type AuthService struct {
	users    UserRepository
	jwtMaker jwt.Maker
	isAdmin  AdminPolicy

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService создает новый экземпляр AuthService. isAdmin может быть nil.
func NewAuthService(users UserRepository, jwtMaker jwt.Maker, isAdmin AdminPolicy) *AuthService {
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &AuthService{
		users:    users,
		jwtMaker: jwtMaker,
		isAdmin:  isAdmin,
	}
}

// NormalizeEmail приводит email к каноническому виду для хранения и поиска.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register создаёт пользователя с bcrypt-хэшем пароля.
func (s *AuthService) Register(ctx context.Context, email, rawPassword string) (*models.User, error) {
	const op = "services.auth.Register"
	email = NormalizeEmail(email)
	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user, err := s.users.CreateUser(ctx, models.User{
		Email:        email,
		PasswordHash: hashed,
		IsAdmin:      s.isAdmin(email),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// Authenticate проверяет пару email/пароль. Неизвестный email и неверный пароль
// неразличимы: оба дают ErrInvalidCredentials.
func (s *AuthService) Authenticate(ctx context.Context, email, rawPassword string) (*models.User, error) {
	const op = "services.auth.Authenticate"
	user, err := s.users.GetUserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, models.ErrUserNotFound) {
		// Сравнение с фиктивным хэшем выравнивает время ответа.
		_ = password.CompareHash(s.fakeHash(), rawPassword)
		return nil, fmt.Errorf("%s: %w", op, models.ErrInvalidCredentials)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return nil, fmt.Errorf("%s: %w", op, models.ErrInvalidCredentials)
	}
	return user, nil
}

// Login проверяет пароль пользователя и выпускает токены доступа и обновления.
func (s *AuthService) Login(ctx context.Context, email, rawPassword string) (access, refresh string, err error) {
	const op = "services.auth.Login"
	user, err := s.Authenticate(ctx, email, rawPassword)
	if err != nil {
		return "", "", err
	}
	access, err = s.jwtMaker.GenerateAccessToken(user.Email)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}
	refresh, err = s.jwtMaker.GenerateRefreshToken(user.Email)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}
	return access, refresh, nil
}

// Refresh выпускает новый токен доступа по токену обновления. Пользователь
// ищется заново: токен удалённого пользователя отклоняется как ErrInvalidToken.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	const op = "services.auth.Refresh"
	claims, err := s.jwtMaker.ParseToken(refreshToken)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if claims.Type != jwt.TypeRefresh {
		return "", fmt.Errorf("%s: %w", op, models.ErrWrongTokenType)
	}
	user, err := s.users.GetUserByEmail(ctx, claims.Email())
	if errors.Is(err, models.ErrUserNotFound) {
		return "", fmt.Errorf("%s: %w", op, models.ErrInvalidToken)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	access, err := s.jwtMaker.GenerateAccessToken(user.Email)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return access, nil
}

// VerifyAccessToken проверяет токен доступа и возвращает email владельца.
// Токен обновления в качестве токена доступа не принимается.
func (s *AuthService) VerifyAccessToken(token string) (string, error) {
	const op = "services.auth.VerifyAccessToken"
	claims, err := s.jwtMaker.ParseToken(token)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if claims.Type != jwt.TypeAccess {
		return "", fmt.Errorf("%s: %w", op, models.ErrWrongTokenType)
	}
	return claims.Email(), nil
}

// Me возвращает учётную запись текущего пользователя.
func (s *AuthService) Me(ctx context.Context, email string) (*models.User, error) {
	const op = "services.auth.Me"
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// RequireAdmin возвращает ErrForbidden, если пользователь не администратор.
func (s *AuthService) RequireAdmin(ctx context.Context, email string) error {
	const op = "services.auth.RequireAdmin"
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, models.ErrUserNotFound) {
		return fmt.Errorf("%s: %w", op, models.ErrForbidden)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !user.IsAdmin {
		return fmt.Errorf("%s: %w", op, models.ErrForbidden)
	}
	return nil
}

// ListUsers возвращает всех пользователей.
func (s *AuthService) ListUsers(ctx context.Context) ([]*models.User, error) {
	const op = "services.auth.ListUsers"
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}

// GrantAdmin выдаёт права администратора пользователю с указанным email.
func (s *AuthService) GrantAdmin(ctx context.Context, email string) error {
	const op = "services.auth.GrantAdmin"
	if err := s.users.SetAdmin(ctx, NormalizeEmail(email), true); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SeedAdmins выставляет is_admin уже зарегистрированным пользователям из списка.
// Отсутствующие пользователи пропускаются: им признак выдаётся при создании.
func (s *AuthService) SeedAdmins(ctx context.Context, emails []string) (int, error) {
	const op = "services.auth.SeedAdmins"
	granted := 0
	for _, email := range emails {
		email = NormalizeEmail(email)
		if email == "" {
			continue
		}
		err := s.users.SetAdmin(ctx, email, true)
		if errors.Is(err, models.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return granted, fmt.Errorf("%s: %w", op, err)
		}
		granted++
	}
	return granted, nil
}

func (s *AuthService) fakeHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = password.GetHash("multiverse-dummy-password")
	})
	return s.dummyHash
}

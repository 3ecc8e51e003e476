// Package services реализует учёт лицензий: активацию на машине при действующей
// подписке и проверку срока действия в момент запроса.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/multiverse-license/internal/models"
)

// LicenseRepository описывает хранилище лицензий.
type LicenseRepository interface {
	// ActivateLicense атомарно проверяет активную подписку и создаёт лицензию.
	ActivateLicense(ctx context.Context, userUID, machineID, plan string, now, validUntil time.Time) (*models.License, error)
	// FindActiveLicense возвращает активную лицензию пары (пользователь, машина).
	FindActiveLicense(ctx context.Context, userUID, machineID string) (*models.License, error)
	// ListLicenses возвращает все лицензии пользователя.
	ListLicenses(ctx context.Context, userUID string) ([]*models.License, error)
}

// UserProvider возвращает пользователя по email.
type UserProvider interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// LicenseService бизнес-логика лицензий.
type LicenseService struct {
	licenses LicenseRepository
	users    UserProvider
	period   time.Duration
	now      func() time.Time
}

// NewLicenseService создаёт сервис лицензий; period срок действия новой лицензии.
func NewLicenseService(licenses LicenseRepository, users UserProvider, period time.Duration) *LicenseService {
	return &LicenseService{
		licenses: licenses,
		users:    users,
		period:   period,
		now:      time.Now,
	}
}

// WithClock подменяет источник времени.
func (s *LicenseService) WithClock(now func() time.Time) *LicenseService {
	s.now = now
	return s
}

// Activate выдаёт лицензию на машину machineID сроком period от текущего момента.
// Пустой plan означает тариф активной подписки.
func (s *LicenseService) Activate(ctx context.Context, email, machineID, plan string) (*models.License, error) {
	const op = "services.license.Activate"
	if _, ok := models.LookupPlan(plan); plan != "" && !ok {
		return nil, fmt.Errorf("%s: %w: %q", op, models.ErrUnknownPlan, plan)
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	now := s.now()
	lic, err := s.licenses.ActivateLicense(ctx, user.UUID, machineID, plan, now, now.Add(s.period))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return lic, nil
}

// Validate проверяет лицензию пары (пользователь, машина). Истечение срока
// определяется в момент вызова, флаг is_active при этом не меняется.
func (s *LicenseService) Validate(ctx context.Context, email, machineID string) (models.LicenseStatus, error) {
	const op = "services.license.Validate"
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return models.LicenseStatus{}, fmt.Errorf("%s: %w", op, err)
	}
	lic, err := s.licenses.FindActiveLicense(ctx, user.UUID, machineID)
	if err != nil {
		return models.LicenseStatus{}, fmt.Errorf("%s: %w", op, err)
	}
	if !lic.IsValidAt(s.now()) {
		return models.LicenseStatus{ExpiresAt: lic.ValidUntil}, fmt.Errorf("%s: %w", op, models.ErrLicenseExpired)
	}
	return models.LicenseStatus{Valid: true, ExpiresAt: lic.ValidUntil}, nil
}

// List возвращает лицензии пользователя.
func (s *LicenseService) List(ctx context.Context, email string) ([]*models.License, error) {
	const op = "services.license.List"
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	lics, err := s.licenses.ListLicenses(ctx, user.UUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return lics, nil
}

// Package services реализует восстановление пароля по одноразовому токену,
// отправляемому на почту.
package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/magabrotheeeer/multiverse-license/internal/lib/password"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/sl"
	"github.com/magabrotheeeer/multiverse-license/internal/models"
)

// tokenBytes энтропия токена сброса.
const tokenBytes = 32

// Repository хранилище пользователей и токенов сброса.
type Repository interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateResetToken(ctx context.Context, token models.PasswordResetToken) error
	ConsumeResetToken(ctx context.Context, token string, now time.Time, passwordHash string) error
}

// Throttle ограничивает число попыток по ключу за окно.
type Throttle interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Publisher публикует письмо для сервиса рассылки.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// Config параметры восстановления пароля.
type Config struct {
	TokenTTL   time.Duration
	BaseURL    string
	MaxPerHour int
}

// Service восстановление пароля.
type Service struct {
	repo     Repository
	throttle Throttle
	mail     Publisher
	cfg      Config
	log      *slog.Logger
	now      func() time.Time
}

// New создаёт сервис восстановления пароля.
func New(repo Repository, throttle Throttle, mail Publisher, cfg Config, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		throttle: throttle,
		mail:     mail,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// WithClock подменяет источник времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RequestReset выпускает токен сброса и отправляет ссылку на email. Результат
// для вызывающего не зависит от того, зарегистрирован ли email: неизвестный
// адрес, превышение лимита и сбой отправки письма одинаково возвращают nil.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	const op = "services.passwordreset.RequestReset"
	email = strings.ToLower(strings.TrimSpace(email))
	log := s.log.With(slog.String("op", op), slog.String("email", email))

	allowed, err := s.throttle.Allow(ctx, "forgot-password:"+email, s.cfg.MaxPerHour, time.Hour)
	if err != nil {
		log.Warn("throttle unavailable, request not limited", sl.Err(err))
		allowed = true
	}
	if !allowed {
		log.Info("reset request throttled")
		return nil
	}

	if _, err := s.repo.GetUserByEmail(ctx, email); err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			log.Debug("reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	token, err := newToken()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	expiresAt := s.now().Add(s.cfg.TokenTTL)
	if err := s.repo.CreateResetToken(ctx, models.PasswordResetToken{
		Email:     email,
		Token:     token,
		ExpiresAt: expiresAt,
	}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	msg := models.PasswordResetMail{
		Email:     email,
		ResetURL:  s.resetURL(token),
		ExpiresAt: expiresAt,
	}
	if err := s.mail.Publish(ctx, rabbitmq.RoutingKeyPasswordReset, msg); err != nil {
		log.Error("failed to publish reset mail", sl.Err(err))
		return nil
	}
	log.Info("reset mail queued")
	return nil
}

// ConsumeReset устанавливает новый пароль по действующему токену. Токен
// удаляется вместе со сменой пароля; при ошибке он остаётся пригодным.
func (s *Service) ConsumeReset(ctx context.Context, token, newPassword string) error {
	const op = "services.passwordreset.ConsumeReset"
	if token == "" {
		return fmt.Errorf("%s: %w", op, models.ErrInvalidOrExpiredToken)
	}
	hash, err := password.GetHash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.ConsumeResetToken(ctx, token, s.now(), hash); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Service) resetURL(token string) string {
	sep := "?"
	if strings.Contains(s.cfg.BaseURL, "?") {
		sep = "&"
	}
	return s.cfg.BaseURL + sep + "token=" + url.QueryEscape(token)
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Package services содержит бизнес-логику подписок: создание по подтверждённому
// платежу и отмену, согласованную с платёжным провайдером.
package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/multiverse-license/internal/lib/month"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/password"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/sl"
	"github.com/magabrotheeeer/multiverse-license/internal/models"
	"github.com/magabrotheeeer/multiverse-license/internal/paymentprovider"
)

// SubscriptionRepository определяет методы для работы с подписками в хранилище.
type SubscriptionRepository interface {
	// CreatePaidSubscription находит или создаёт пользователя и записывает подписку по платежу.
	CreatePaidSubscription(ctx context.Context, newUser models.User, sub models.Subscription) (*models.Subscription, bool, error)
	// GetSubscription возвращает подписку по ID.
	GetSubscription(ctx context.Context, id int) (*models.Subscription, error)
	// GetActiveSubscription возвращает действующую подписку пользователя.
	GetActiveSubscription(ctx context.Context, userUID string, now time.Time) (*models.Subscription, error)
	// CancelSubscription отменяет подписку и деактивирует лицензии пользователя.
	CancelSubscription(ctx context.Context, id int, userUID string, now time.Time) error
}

// UserProvider возвращает пользователя по email.
type UserProvider interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// ProviderResolver возвращает платёжного провайдера по имени.
type ProviderResolver interface {
	Get(name string) (paymentprovider.Provider, error)
}

// SubscriptionService реализует бизнес-логику работы с подписками.
type SubscriptionService struct {
	repo          SubscriptionRepository
	users         UserProvider
	providers     ProviderResolver
	log           *slog.Logger
	isAdmin       func(email string) bool
	cancelTimeout time.Duration
	now           func() time.Time
}

// NewSubscriptionService создает новый экземпляр SubscriptionService.
// cancelTimeout ограничивает запрос отмены к провайдеру.
func NewSubscriptionService(repo SubscriptionRepository, users UserProvider, providers ProviderResolver,
	log *slog.Logger, isAdmin func(email string) bool, cancelTimeout time.Duration) *SubscriptionService {
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &SubscriptionService{
		repo:          repo,
		users:         users,
		providers:     providers,
		log:           log,
		isAdmin:       isAdmin,
		cancelTimeout: cancelTimeout,
		now:           time.Now,
	}
}

// WithClock подменяет источник времени.
func (s *SubscriptionService) WithClock(now func() time.Time) *SubscriptionService {
	s.now = now
	return s
}

// OnApprovedPayment создаёт активную подписку по подтверждённому платежу провайдера.
// Email и тариф берутся из канонической записи платежа. Пользователь, которого ещё
// нет, создаётся со случайным паролем и входит в систему после сброса пароля.
// Повторная обработка того же платежа возвращает существующую подписку.
func (s *SubscriptionService) OnApprovedPayment(ctx context.Context, provider string, payment models.Payment) (*models.Subscription, error) {
	const op = "services.subscription.OnApprovedPayment"
	if payment.Status != models.PaymentApproved {
		return nil, fmt.Errorf("%s: %w: status %q", op, models.ErrPaymentNotApproved, payment.Status)
	}
	plan, ok := models.LookupPlan(payment.Plan)
	if !ok {
		return nil, fmt.Errorf("%s: %w: %q", op, models.ErrUnknownPlan, payment.Plan)
	}
	email := strings.ToLower(strings.TrimSpace(payment.PayerEmail))
	if email == "" || payment.ID == "" {
		return nil, fmt.Errorf("%s: %w: payment without payer email or id", op, models.ErrMalformedEvent)
	}

	hash, err := unusablePasswordHash()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	start := s.now()
	sub, created, err := s.repo.CreatePaidSubscription(ctx,
		models.User{Email: email, PasswordHash: hash, IsAdmin: s.isAdmin(email)},
		models.Subscription{
			Plan:        plan.Name,
			Status:      models.SubscriptionActive,
			StartDate:   start,
			EndDate:     month.End(start, plan.Months),
			Provider:    provider,
			PaymentID:   payment.ID,
			ProviderRef: payment.ProviderRef,
		})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if created {
		s.log.Info("subscription activated",
			slog.String("email", email), slog.String("plan", plan.Name),
			slog.String("provider", provider), slog.Int("subscription_id", sub.ID))
	} else {
		s.log.Info("payment already processed",
			slog.String("provider", provider), slog.Int("subscription_id", sub.ID))
	}
	return sub, nil
}

// Cancel отменяет подписку subscriptionID пользователя email. Сначала регулярное
// списание останавливается у провайдера, и только при его успехе подписка
// отменяется локально.
func (s *SubscriptionService) Cancel(ctx context.Context, email string, subscriptionID int) error {
	const op = "services.subscription.Cancel"
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	sub, err := s.repo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if sub.UserUID != user.UUID {
		return fmt.Errorf("%s: %w", op, models.ErrNotOwner)
	}
	if sub.Status != models.SubscriptionActive {
		return fmt.Errorf("%s: %w", op, models.ErrSubscriptionNotActive)
	}

	provider, err := s.providers.Get(sub.Provider)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, models.ErrProviderCancelFailed, err)
	}
	cancelCtx, cancel := context.WithTimeout(ctx, s.cancelTimeout)
	defer cancel()
	if err := provider.CancelRecurring(cancelCtx, sub.ProviderRef); err != nil {
		s.log.Warn("provider refused cancellation",
			slog.String("provider", sub.Provider), slog.Int("subscription_id", sub.ID), sl.Err(err))
		return fmt.Errorf("%s: %w: %w", op, models.ErrProviderCancelFailed, err)
	}

	if err := s.repo.CancelSubscription(ctx, sub.ID, user.UUID, s.now()); err != nil {
		s.log.Error("subscription cancelled at provider but not locally",
			slog.String("provider", sub.Provider), slog.Int("subscription_id", sub.ID), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("subscription cancelled", slog.String("email", user.Email), slog.Int("subscription_id", sub.ID))
	return nil
}

// GetActive возвращает действующую подписку пользователя или ErrSubscriptionNotFound.
func (s *SubscriptionService) GetActive(ctx context.Context, email string) (*models.Subscription, error) {
	const op = "services.subscription.GetActive"
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sub, err := s.repo.GetActiveSubscription(ctx, user.UUID, s.now())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// unusablePasswordHash хэш случайного пароля, который никому не сообщается.
func unusablePasswordHash() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return password.GetHash(hex.EncodeToString(buf))
}

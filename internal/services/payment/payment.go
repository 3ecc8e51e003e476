// Package payment обрабатывает входящие уведомления платёжных провайдеров
// и создаёт страницы оплаты тарифов.
package payment

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/magabrotheeeer/multiverse-license/internal/lib/signature"
	"github.com/magabrotheeeer/multiverse-license/internal/models"
	"github.com/magabrotheeeer/multiverse-license/internal/paymentprovider"
)

// SubscriptionActivator создаёт подписку по подтверждённому платежу.
type SubscriptionActivator interface {
	OnApprovedPayment(ctx context.Context, provider string, payment models.Payment) (*models.Subscription, error)
}

// ProviderResolver возвращает платёжного провайдера по имени.
type ProviderResolver interface {
	Get(name string) (paymentprovider.Provider, error)
}

// PaymentService проверяет и применяет webhook-уведомления.
type PaymentService struct {
	providers ProviderResolver
	subs      SubscriptionActivator
	secrets   map[string]string
	timeout   time.Duration
	tolerance time.Duration
	now       func() time.Time
	log       *slog.Logger
}

// DefaultSignatureTolerance допустимое расхождение метки времени подписи.
const DefaultSignatureTolerance = 5 * time.Minute

// New создаёт сервис. secrets общие секреты подписи уведомлений по имени провайдера,
// timeout ограничивает каждый запрос к API провайдера.
func New(providers ProviderResolver, subs SubscriptionActivator, secrets map[string]string,
	timeout time.Duration, log *slog.Logger) *PaymentService {
	return &PaymentService{
		providers: providers,
		subs:      subs,
		secrets:   secrets,
		timeout:   timeout,
		tolerance: DefaultSignatureTolerance,
		now:       time.Now,
		log:       log,
	}
}

// WithClock подменяет источник времени.
func (s *PaymentService) WithClock(now func() time.Time) *PaymentService {
	s.now = now
	return s
}

// WithSignatureTolerance задаёт окно свежести подписи, 0 отключает проверку.
func (s *PaymentService) WithSignatureTolerance(d time.Duration) *PaymentService {
	s.tolerance = d
	return s
}

// WebhookResult итог обработки уведомления.
type WebhookResult struct {
	Event        *models.WebhookEvent
	Subscription *models.Subscription
	// Ignored уведомление принято, но не меняет состояние (не платёжное событие
	// или платёж ещё не подтверждён).
	Ignored bool
}

// HandleWebhook проверяет подпись тела rawBody до любого разбора, затем по
// идентификатору из уведомления получает платёж из API провайдера и только
// подтверждённый платёж передаёт в учёт подписок. Поля платежа из самого
// уведомления не используются.
func (s *PaymentService) HandleWebhook(ctx context.Context, providerName string, rawBody []byte,
	header http.Header) (*WebhookResult, error) {
	const op = "services.payment.HandleWebhook"

	provider, err := s.providers.Get(providerName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	secret := s.secrets[provider.Name()]
	if secret == "" {
		return nil, fmt.Errorf("%s: %w: webhooks for %s are not configured", op, models.ErrUnknownProvider, provider.Name())
	}
	if err := signature.VerifyFresh(rawBody, header.Get(provider.SignatureHeader()), secret, s.now(), s.tolerance); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	event, err := provider.ParseEvent(rawBody)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	result := &WebhookResult{Event: event}
	if !provider.Actionable(event.Kind) {
		result.Ignored = true
		return result, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	payment, err := provider.FetchPayment(fetchCtx, event.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if payment.Status != models.PaymentApproved {
		s.log.Info("payment not approved yet",
			slog.String("provider", provider.Name()),
			slog.String("payment_id", payment.ID),
			slog.String("status", payment.Status))
		result.Ignored = true
		return result, nil
	}

	sub, err := s.subs.OnApprovedPayment(ctx, provider.Name(), *payment)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	result.Subscription = sub
	return result, nil
}

// Checkout создаёт у провайдера страницу оплаты тарифа planName для email.
func (s *PaymentService) Checkout(ctx context.Context, email, providerName, planName string) (string, error) {
	const op = "services.payment.Checkout"
	plan, ok := models.LookupPlan(planName)
	if !ok {
		return "", fmt.Errorf("%s: %w: %q", op, models.ErrUnknownPlan, planName)
	}
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	url, err := provider.CreateCheckout(ctx, strings.ToLower(strings.TrimSpace(email)), plan)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return url, nil
}

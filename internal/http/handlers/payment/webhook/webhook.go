// Package webhook принимает уведомления платёжных провайдеров.
//
// Тело читается целиком без разбора и передаётся на проверку подписи.
// Неподтверждённые уведомления отклоняются, а не игнорируются.
package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/multiverse-license/internal/http/response"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/sl"
	"github.com/magabrotheeeer/multiverse-license/internal/metrics"
	"github.com/magabrotheeeer/multiverse-license/internal/models"
	paymentservice "github.com/magabrotheeeer/multiverse-license/internal/services/payment"
)

// MaxBodyBytes предел размера тела уведомления.
const MaxBodyBytes = 1 << 20

// Service описывает обработку уведомления.
type Service interface {
	HandleWebhook(ctx context.Context, provider string, rawBody []byte, header http.Header) (*paymentservice.WebhookResult, error)
}

// Handler обрабатывает POST /webhooks/{provider}.
type Handler struct {
	log     *slog.Logger
	service Service
	metrics *metrics.Metrics
}

// New создает новый экземпляр Handler. m может быть nil.
func New(log *slog.Logger, service Service, m *metrics.Metrics) *Handler {
	return &Handler{log: log, service: service, metrics: m}
}

// ServeHTTP godoc
// @Summary Уведомление платёжного провайдера
// @Tags Payment
// @Accept  json
// @Produce  json
// @Param provider path string true "mercadopago или paypal"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Подпись или событие повреждены"
// @Failure 403 {object} response.ErrorResponse "Подпись не совпадает"
// @Failure 502 {object} response.ErrorResponse "Провайдер недоступен"
// @Router /webhooks/{provider} [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"

	provider := chi.URLParam(r, "provider")
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("provider", provider),
	)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	result, err := h.service.HandleWebhook(r.Context(), provider, body, r.Header)
	if err != nil {
		code, msg := response.FromError(err)
		label := provider
		if errors.Is(err, models.ErrUnknownProvider) {
			label = "unknown"
		}
		if code >= http.StatusInternalServerError {
			h.metrics.WebhookEvent(label, metrics.ResultError)
			log.Error("webhook processing failed", sl.Err(err))
		} else {
			h.metrics.WebhookEvent(label, metrics.ResultRejected)
			log.Warn("webhook rejected", sl.Err(err))
		}
		render.Status(r, code)
		render.JSON(w, r, response.Error(msg))
		return
	}

	data := map[string]any{
		"event":   result.Event.Kind,
		"ignored": result.Ignored,
	}
	if result.Ignored {
		h.metrics.WebhookEvent(provider, metrics.ResultIgnored)
		log.Info("webhook acknowledged without changes", slog.String("event", result.Event.Kind))
	} else {
		h.metrics.WebhookEvent(provider, metrics.ResultOK)
		data["subscription_id"] = result.Subscription.ID
		log.Info("webhook applied",
			slog.String("event", result.Event.Kind),
			slog.Int("subscription_id", result.Subscription.ID))
	}
	render.JSON(w, r, response.StatusOKWithData(data))
}

// Package cancel отменяет подписку пользователя у провайдера и локально.
package cancel

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/multiverse-license/internal/http/middlewarectx"
	"github.com/magabrotheeeer/multiverse-license/internal/http/response"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/sl"
	"github.com/magabrotheeeer/multiverse-license/internal/models"
)

// Request: идентификатор отменяемой подписки.
type Request struct {
	SubscriptionID int `json:"subscription_id" validate:"required,gt=0"`
}

// Service описывает отмену подписки.
type Service interface {
	Cancel(ctx context.Context, email string, subscriptionID int) error
}

// Handler обрабатывает POST /subscription/cancel.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Отмена подписки
// @Description Сначала останавливает регулярное списание у провайдера, затем отменяет подписку и лицензии.
// @Tags Subscription
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Подписка"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.ErrorResponse "Чужая подписка"
// @Failure 404 {object} response.ErrorResponse "Подписка не найдена"
// @Failure 502 {object} response.ErrorResponse "Провайдер не отменил списание"
// @Router /subscription/cancel [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.cancel"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	email, ok := middlewarectx.EmailFromContext(r.Context())
	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("user identification missing"))
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	if err := h.service.Cancel(r.Context(), email, req.SubscriptionID); err != nil {
		code, msg := response.FromError(err)
		log.Error("subscription cancel failed",
			slog.String("email", email), slog.Int("subscription_id", req.SubscriptionID), sl.Err(err))
		render.Status(r, code)
		render.JSON(w, r, response.Error(msg))
		return
	}

	log.Info("subscription cancelled", slog.String("email", email), slog.Int("subscription_id", req.SubscriptionID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"subscription_id": req.SubscriptionID,
		"status":          models.SubscriptionCancelled,
	}))
}

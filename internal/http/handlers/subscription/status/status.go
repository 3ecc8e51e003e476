// Package status возвращает действующую подписку пользователя.
package status

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/multiverse-license/internal/http/middlewarectx"
	"github.com/magabrotheeeer/multiverse-license/internal/http/response"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/month"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/sl"
	"github.com/magabrotheeeer/multiverse-license/internal/models"
)

// Service описывает получение активной подписки.
type Service interface {
	GetActive(ctx context.Context, email string) (*models.Subscription, error)
}

// Handler обрабатывает GET /subscription.
type Handler struct {
	log     *slog.Logger
	service Service
	now     func() time.Time
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service, now: time.Now}
}

// ServeHTTP godoc
// @Summary Текущая подписка
// @Tags Subscription
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Нет активной подписки"
// @Router /subscription [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.status"

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

	sub, err := h.service.GetActive(r.Context(), email)
	if err != nil {
		code, msg := response.FromError(err)
		if code == http.StatusInternalServerError {
			log.Error("failed to get subscription", sl.Err(err))
		}
		render.Status(r, code)
		render.JSON(w, r, response.Error(msg))
		return
	}

	remaining := 0
	if plan, ok := models.LookupPlan(sub.Plan); ok {
		remaining = month.Remaining(sub.StartDate, plan.Months, h.now())
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"id":               sub.ID,
		"plan":             sub.Plan,
		"status":           sub.Status,
		"provider":         sub.Provider,
		"start_date":       sub.StartDate,
		"end_date":         sub.EndDate,
		"months_remaining": remaining,
	}))
}

// Package list возвращает лицензии пользователя по всем его машинам.
package list

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/multiverse-license/internal/http/middlewarectx"
	"github.com/magabrotheeeer/multiverse-license/internal/http/response"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/sl"
	"github.com/magabrotheeeer/multiverse-license/internal/models"
)

// Service описывает получение лицензий пользователя.
type Service interface {
	List(ctx context.Context, email string) ([]*models.License, error)
}

// Item лицензия в ответе. Valid вычисляется на момент запроса.
type Item struct {
	MachineID string    `json:"machine_id"`
	Plan      string    `json:"plan"`
	Expires   time.Time `json:"expires"`
	Active    bool      `json:"is_active"`
	Valid     bool      `json:"valid"`
}

// Handler обрабатывает GET /licenses.
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
// @Summary Лицензии пользователя
// @Tags License
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /licenses [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.license.list"

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

	lics, err := h.service.List(r.Context(), email)
	if err != nil {
		code, msg := response.FromError(err)
		if code == http.StatusInternalServerError {
			log.Error("failed to list licenses", sl.Err(err))
		}
		render.Status(r, code)
		render.JSON(w, r, response.Error(msg))
		return
	}

	now := h.now()
	items := make([]Item, 0, len(lics))
	for _, l := range lics {
		items = append(items, Item{
			MachineID: l.MachineID,
			Plan:      l.Plan,
			Expires:   l.ValidUntil,
			Active:    l.IsActive,
			Valid:     l.IsValidAt(now),
		})
	}
	render.JSON(w, r, response.StatusOKWithData(items))
}

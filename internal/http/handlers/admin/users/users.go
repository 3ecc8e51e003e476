// Package users возвращает список учётных записей для администратора.
package users

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/multiverse-license/internal/http/response"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/sl"
	"github.com/magabrotheeeer/multiverse-license/internal/models"
)

// Item: пользователь в ответе списка. Хэш пароля не отдаётся.
type Item struct {
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// Service описывает получение списка пользователей.
type Service interface {
	ListUsers(ctx context.Context) ([]*models.User, error)
}

// Handler обрабатывает GET /admin/users.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Список пользователей
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse "Требуются права администратора"
// @Router /admin/users [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.users"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	list, err := h.service.ListUsers(r.Context())
	if err != nil {
		status, msg := response.FromError(err)
		log.Error("failed to list users", sl.Err(err))
		render.Status(r, status)
		render.JSON(w, r, response.Error(msg))
		return
	}

	items := make([]Item, 0, len(list))
	for _, u := range list {
		items = append(items, Item{Email: u.Email, IsAdmin: u.IsAdmin, CreatedAt: u.CreatedAt})
	}
	log.Debug("users listed", slog.Int("count", len(items)))
	render.JSON(w, r, response.StatusOKWithData(items))
}

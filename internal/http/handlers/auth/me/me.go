// Package me возвращает данные текущего пользователя.
package me

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/multiverse-license/internal/http/middlewarectx"
	"github.com/magabrotheeeer/multiverse-license/internal/http/response"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/sl"
	"github.com/magabrotheeeer/multiverse-license/internal/models"
)

// Service описывает получение пользователя.
type Service interface {
	Me(ctx context.Context, email string) (*models.User, error)
}

// Handler обрабатывает GET /auth/me.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Текущий пользователь
// @Tags Auth
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse
// @Router /auth/me [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.me"

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

	user, err := h.service.Me(r.Context(), email)
	if err != nil {
		status, msg := response.FromError(err)
		log.Error("failed to get user", sl.Err(err))
		render.Status(r, status)
		render.JSON(w, r, response.Error(msg))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"email":    user.Email,
		"is_admin": user.IsAdmin,
	}))
}

// Package grant выдаёт права администратора другому пользователю.
package grant

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/multiverse-license/internal/http/middlewarectx"
	"github.com/magabrotheeeer/multiverse-license/internal/http/response"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/sl"
)

// Service описывает выдачу прав администратора.
type Service interface {
	GrantAdmin(ctx context.Context, email string) error
}

// Handler обрабатывает POST /admin/users/{email}/admin.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Выдать права администратора
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Param email path string true "Email пользователя"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.ErrorResponse "Требуются права администратора"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Router /admin/users/{email}/admin [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.grant"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	target := chi.URLParam(r, "email")
	if target == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("email is required"))
		return
	}

	if err := h.service.GrantAdmin(r.Context(), target); err != nil {
		status, msg := response.FromError(err)
		log.Warn("failed to grant admin", slog.String("target", target), sl.Err(err))
		render.Status(r, status)
		render.JSON(w, r, response.Error(msg))
		return
	}

	granter, _ := middlewarectx.EmailFromContext(r.Context())
	log.Info("admin granted", slog.String("target", target), slog.String("granted_by", granter))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"email":    target,
		"is_admin": true,
	}))
}

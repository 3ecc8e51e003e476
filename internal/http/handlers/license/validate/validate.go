// Package validate проверяет лицензию текущего пользователя для машины.
package validate

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
	"github.com/magabrotheeeer/multiverse-license/internal/metrics"
	"github.com/magabrotheeeer/multiverse-license/internal/models"
)

// Request: идентификатор машины.
type Request struct {
	MachineID string `json:"machine_id" validate:"required,max=128"`
}

// Service описывает проверку лицензии.
type Service interface {
	Validate(ctx context.Context, email, machineID string) (models.LicenseStatus, error)
}

// Handler обрабатывает POST /validate-license.
type Handler struct {
	log      *slog.Logger
	service  Service
	metrics  *metrics.Metrics
	validate *validator.Validate
}

// New создает новый экземпляр Handler. m может быть nil.
func New(log *slog.Logger, service Service, m *metrics.Metrics) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		metrics:  m,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Проверка лицензии
// @Tags License
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Идентификатор машины"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.ErrorResponse "Лицензия истекла"
// @Failure 404 {object} response.ErrorResponse "Лицензия не найдена"
// @Router /validate-license [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.license.validate"

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

	status, err := h.service.Validate(r.Context(), email, req.MachineID)
	if err != nil {
		code, msg := response.FromError(err)
		if code == http.StatusInternalServerError {
			h.metrics.LicenseValidation(metrics.ResultError)
			log.Error("license validation failed", sl.Err(err))
		} else {
			h.metrics.LicenseValidation(metrics.ResultRejected)
			log.Info("license rejected", slog.String("email", email), slog.String("reason", msg))
		}
		render.Status(r, code)
		render.JSON(w, r, response.Error(msg))
		return
	}

	h.metrics.LicenseValidation(metrics.ResultOK)
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"status":  "valid",
		"expires": status.ExpiresAt,
	}))
}

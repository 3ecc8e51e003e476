// Package activate выдаёт лицензию на машину при активной подписке.
package activate

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

// Request: машина и тариф лицензии.
type Request struct {
	MachineID string `json:"machine_id" validate:"required,max=128"`
	Plan      string `json:"plan,omitempty"`
}

// Service описывает активацию лицензии.
type Service interface {
	Activate(ctx context.Context, email, machineID, plan string) (*models.License, error)
}

// Handler обрабатывает POST /license/activate.
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
// @Summary Активация лицензии
// @Tags License
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Машина и тариф"
// @Success 201 {object} response.Response
// @Failure 403 {object} response.ErrorResponse "Нет активной подписки или тариф не совпадает"
// @Failure 409 {object} response.ErrorResponse "Лицензия уже активна"
// @Router /license/activate [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.license.activate"

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

	license, err := h.service.Activate(r.Context(), email, req.MachineID, req.Plan)
	if err != nil {
		code, msg := response.FromError(err)
		if code == http.StatusInternalServerError {
			h.metrics.LicenseActivation(metrics.ResultError)
			log.Error("license activation failed", sl.Err(err))
		} else {
			h.metrics.LicenseActivation(metrics.ResultRejected)
			log.Info("license activation rejected", slog.String("email", email), slog.String("reason", msg))
		}
		render.Status(r, code)
		render.JSON(w, r, response.Error(msg))
		return
	}

	h.metrics.LicenseActivation(metrics.ResultOK)
	log.Info("license activated", slog.String("email", email), slog.Int("license_id", license.ID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"machine_id": license.MachineID,
		"plan":       license.Plan,
		"expires":    license.ValidUntil,
	}))
}

// Package response содержит вспомогательные типы и функции для формирования
// унифицированных JSON‑ответов HTTP‑обработчиков. Пакет упрощает возврат
// успешных ответов, ошибок и сообщений валидации в едином формате.
package response

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/multiverse-license/internal/models"
)

// Response описывает стандартную структуру JSON‑ответа сервера.
// Поле Status: статус запроса ("OK" или "Error").
// Поле Error: текст ошибки (опционально, при неуспехе).
// Поле Data: данные ответа (опционально, при успехе).
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// ErrorResponse: структура ошибки для Swagger-документации.
type ErrorResponse struct {
	Status string `json:"status" example:"Error"`
	Error  string `json:"error" example:"invalid request body"`
}

const (
	// StatusOK: значение статуса для успешного ответа.
	StatusOK = "OK"
	// StatusError: значение статуса для ответа с ошибкой.
	StatusError = "Error"
)

// StatusOKWithData возвращает успешный Response с переданными данными.
func StatusOKWithData(data any) Response {
	return Response{
		Status: StatusOK,
		Data:   data,
	}
}

// Error возвращает Response с ошибкой и переданным сообщением.
func Error(msg string) ErrorResponse {
	return ErrorResponse{
		Status: StatusError,
		Error:  msg,
	}
}

// ValidationError формирует Response со статусом Error на основе ошибок валидации.
// Каждое нарушение формируется в человеко‑читаемый текст, объединённый через запятую.
func ValidationError(errs validator.ValidationErrors) Response {
	var errsMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "email":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be a valid email", err.Field()))
		case "min":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be at least %s characters long", err.Field(), err.Param()))
		case "max":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be at most %s characters long", err.Field(), err.Param()))
		case "oneof":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be one of: %s", err.Field(), err.Param()))
		case "gt":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be greater than %s", err.Field(), err.Param()))
		default:
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is not a valid", err.Field()))
		}
	}
	return Response{
		Status: StatusError,
		Error:  strings.Join(errsMsgs, ", "),
	}
}

type mapping struct {
	target  error
	status  int
	message string
}

// Порядок важен: ошибка провайдера при отмене оборачивает ErrUpstream.
var mappings = []mapping{
	{models.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
	{models.ErrInvalidToken, http.StatusUnauthorized, "invalid or expired token"},
	{models.ErrTokenExpired, http.StatusUnauthorized, "invalid or expired token"},
	{models.ErrWrongTokenType, http.StatusUnauthorized, "invalid or expired token"},

	{models.ErrForbidden, http.StatusForbidden, "access denied"},
	{models.ErrNotOwner, http.StatusForbidden, "subscription belongs to another user"},
	{models.ErrNoActiveSubscription, http.StatusForbidden, "no active subscription"},
	{models.ErrLicenseExpired, http.StatusForbidden, "license expired"},
	{models.ErrPlanMismatch, http.StatusForbidden, "plan does not match active subscription"},
	{models.ErrSignatureMismatch, http.StatusForbidden, "invalid webhook signature"},
	{models.ErrStaleSignature, http.StatusForbidden, "stale webhook signature"},

	{models.ErrMissingSignature, http.StatusBadRequest, "missing webhook signature"},
	{models.ErrMalformedSignature, http.StatusBadRequest, "malformed webhook signature"},
	{models.ErrMalformedEvent, http.StatusBadRequest, "malformed webhook event"},
	{models.ErrDuplicateEmail, http.StatusBadRequest, "email already registered"},
	{models.ErrInvalidOrExpiredToken, http.StatusBadRequest, "invalid or expired reset token"},

	{models.ErrUserNotFound, http.StatusNotFound, "user not found"},
	{models.ErrNoMatchingLicense, http.StatusNotFound, "no matching license"},
	{models.ErrSubscriptionNotFound, http.StatusNotFound, "subscription not found"},
	{models.ErrUnknownProvider, http.StatusNotFound, "unknown payment provider"},

	{models.ErrLicenseAlreadyActive, http.StatusConflict, "license already active for this machine"},
	{models.ErrSubscriptionNotActive, http.StatusConflict, "subscription is not active"},

	{models.ErrUnknownPlan, http.StatusUnprocessableEntity, "unknown plan"},
	{models.ErrPaymentNotApproved, http.StatusUnprocessableEntity, "payment not approved"},

	{models.ErrTooManyRequests, http.StatusTooManyRequests, "too many requests"},

	{models.ErrProviderCancelFailed, http.StatusBadGateway, ""},
	{models.ErrUpstream, http.StatusBadGateway, ""},
}

// FromError сопоставляет ошибку бизнес-логики HTTP-статусу и сообщению для клиента.
// Для ошибок провайдера сообщение содержит текст ошибки, чтобы было видно,
// какой провайдер отказал. Неизвестные ошибки дают 500 без подробностей.
func FromError(err error) (int, string) {
	for _, m := range mappings {
		if errors.Is(err, m.target) {
			if m.message == "" {
				return m.status, upstreamMessage(err)
			}
			return m.status, m.message
		}
	}
	return http.StatusInternalServerError, "internal error"
}

// upstreamMessage отрезает op-префиксы внутренних слоёв.
func upstreamMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{models.ErrProviderCancelFailed, models.ErrUpstream} {
		if i := strings.Index(msg, sentinel.Error()); i >= 0 {
			return msg[i:]
		}
	}
	return msg
}

// Package licenseserver собирает HTTP и gRPC серверы сервиса лицензий.
package licenseserver

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	// Описание API для swagger UI.
	_ "github.com/magabrotheeeer/multiverse-license/docs"
	"github.com/magabrotheeeer/multiverse-license/internal/http/handlers/admin/grant"
	"github.com/magabrotheeeer/multiverse-license/internal/http/handlers/admin/users"
	"github.com/magabrotheeeer/multiverse-license/internal/http/handlers/auth/forgotpassword"
	"github.com/magabrotheeeer/multiverse-license/internal/http/handlers/auth/me"
	"github.com/magabrotheeeer/multiverse-license/internal/http/handlers/auth/refresh"
	"github.com/magabrotheeeer/multiverse-license/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/multiverse-license/internal/http/handlers/auth/resetpassword"
	"github.com/magabrotheeeer/multiverse-license/internal/http/handlers/auth/token"
	"github.com/magabrotheeeer/multiverse-license/internal/http/handlers/health"
	"github.com/magabrotheeeer/multiverse-license/internal/http/handlers/license/activate"
	"github.com/magabrotheeeer/multiverse-license/internal/http/handlers/license/list"
	"github.com/magabrotheeeer/multiverse-license/internal/http/handlers/license/validate"
	"github.com/magabrotheeeer/multiverse-license/internal/http/handlers/payment/checkout"
	"github.com/magabrotheeeer/multiverse-license/internal/http/handlers/payment/webhook"
	"github.com/magabrotheeeer/multiverse-license/internal/http/handlers/subscription/cancel"
	"github.com/magabrotheeeer/multiverse-license/internal/http/handlers/subscription/status"
	"github.com/magabrotheeeer/multiverse-license/internal/http/middlewarectx"
	"github.com/magabrotheeeer/multiverse-license/internal/metrics"
	authservice "github.com/magabrotheeeer/multiverse-license/internal/services/auth"
	licenseservice "github.com/magabrotheeeer/multiverse-license/internal/services/license"
	resetservice "github.com/magabrotheeeer/multiverse-license/internal/services/passwordreset"
	paymentservice "github.com/magabrotheeeer/multiverse-license/internal/services/payment"
	subservice "github.com/magabrotheeeer/multiverse-license/internal/services/subscription"
)

// Services зависимости HTTP-маршрутов.
type Services struct {
	Auth          *authservice.AuthService
	License       *licenseservice.LicenseService
	Subscription  *subservice.SubscriptionService
	Payment       *paymentservice.PaymentService
	PasswordReset *resetservice.Service
	Storage       health.Pinger
	Metrics       *metrics.Metrics
	// Limiter ограничивает открытые конечные точки аутентификации.
	Limiter *middlewarectx.RateLimiter
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, s Services) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
	)

	// Открытые конечные точки
	r.Group(func(r chi.Router) {
		r.Use(middlewarectx.RateLimitMiddleware(logger, s.Limiter))
		r.Post("/register", register.New(logger, s.Auth).ServeHTTP)
		r.Post("/token", token.New(logger, s.Auth, s.Metrics).ServeHTTP)
		r.Post("/token/refresh", refresh.New(logger, s.Auth).ServeHTTP)
		r.Post("/auth/forgot-password", forgotpassword.New(logger, s.PasswordReset).ServeHTTP)
		r.Post("/auth/reset-password", resetpassword.New(logger, s.PasswordReset).ServeHTTP)
	})

	// Группа с JWT аутентификацией
	r.Group(func(r chi.Router) {
		r.Use(middlewarectx.JWTMiddleware(s.Auth, logger))
		r.Get("/auth/me", me.New(logger, s.Auth).ServeHTTP)
		r.Post("/validate-license", validate.New(logger, s.License, s.Metrics).ServeHTTP)
		r.Post("/license/activate", activate.New(logger, s.License, s.Metrics).ServeHTTP)
		r.Get("/licenses", list.New(logger, s.License).ServeHTTP)
		r.Get("/subscription", status.New(logger, s.Subscription).ServeHTTP)
		r.Post("/subscription/cancel", cancel.New(logger, s.Subscription).ServeHTTP)
		r.Post("/payments/checkout", checkout.New(logger, s.Payment).ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.AdminOnly(s.Auth, logger))
			r.Get("/admin/users", users.New(logger, s.Auth).ServeHTTP)
			r.Post("/admin/users/{email}/admin", grant.New(logger, s.Auth).ServeHTTP)
		})
	})

	// Уведомления провайдеров подписываются HMAC, JWT не требуется
	r.Post("/webhooks/{provider}", webhook.New(logger, s.Payment, s.Metrics).ServeHTTP)

	r.Get("/health", health.New(logger, s.Storage).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)
}

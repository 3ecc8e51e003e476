package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/multiverse-license/internal/http/response"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/sl"
)

// AdminChecker проверяет права администратора.
type AdminChecker interface {
	RequireAdmin(ctx context.Context, email string) error
}

// AdminOnly пропускает только администраторов. Ставится после JWTMiddleware.
func AdminOnly(checker AdminChecker, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.AdminOnly"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			email, ok := EmailFromContext(r.Context())
			if !ok {
				log.Error("user identification missing")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("user identification missing"))
				return
			}

			if err := checker.RequireAdmin(r.Context(), email); err != nil {
				status, msg := response.FromError(err)
				log.Warn("admin access denied", slog.String("email", email), sl.Err(err))
				render.Status(r, status)
				render.JSON(w, r, response.Error(msg))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

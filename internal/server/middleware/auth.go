package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/securehub/internal/models"
	"github.com/iudanet/securehub/internal/server/handlers"
	"github.com/iudanet/securehub/pkg/api"
)

// IdentityResolver turns a bearer token into the current caller
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (models.Identity, error)
}

// AuthMiddleware создает middleware для проверки bearer токена.
// Пользователь перечитывается из хранилища на каждом запросе, поэтому
// удалённый пользователь теряет доступ сразу, а не по истечении токена.
func AuthMiddleware(logger *slog.Logger, resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				logger.Warn("missing or malformed Authorization header", "path", r.URL.Path)
				writeError(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			id, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				logger.Warn("invalid session token", "error", err)
				writeError(w, "invalid or expired session", http.StatusUnauthorized)
				return
			}

			logger.Debug("user authenticated", "user_id", id.UserID, "role", id.Role)

			next.ServeHTTP(w, r.WithContext(handlers.WithIdentity(r.Context(), id)))
		})
	}
}

// RequireAdmin пропускает только администраторов. Ставится после AuthMiddleware.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := handlers.IdentityFromContext(r.Context())
			if !ok {
				writeError(w, "authentication required", http.StatusUnauthorized)
				return
			}
			if !id.IsAdmin() {
				logger.Warn("admin route denied", "user_id", id.UserID, "path", r.URL.Path)
				writeError(w, "admin access required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken извлекает токен из заголовка "Authorization: Bearer <token>"
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// writeError отвечает в том же формате, что и handlers
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	})
}

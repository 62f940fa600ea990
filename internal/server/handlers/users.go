package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/iudanet/securehub/internal/models"
	"github.com/iudanet/securehub/pkg/api"
)

// UserLister returns the user directory
type UserLister interface {
	ListUsers(ctx context.Context) ([]*models.User, error)
}

// UsersHandler обрабатывает GET /api/users
type UsersHandler struct {
	responder
	users UserLister
}

// NewUsersHandler создает handler справочника пользователей
func NewUsersHandler(logger *slog.Logger, users UserLister) *UsersHandler {
	return &UsersHandler{responder: responder{logger: logger}, users: users}
}

// List returns users ordered by department, then name
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.identity(w, r); !ok {
		return
	}

	users, err := h.users.ListUsers(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list users", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := make([]api.User, 0, len(users))
	for _, u := range users {
		resp = append(resp, toAPIUser(u))
	}
	h.sendJSON(w, resp, http.StatusOK)
}

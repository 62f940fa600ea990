package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iudanet/securehub/internal/server/storage"
	"github.com/iudanet/securehub/pkg/api"
)

const defaultDeadLetterLimit = 100

// AdminHandler обрабатывает служебные запросы администратора
type AdminHandler struct {
	responder
	deadLetters storage.DeadLetterStorage
}

// NewAdminHandler создает handler администратора
func NewAdminHandler(logger *slog.Logger, deadLetters storage.DeadLetterStorage) *AdminHandler {
	return &AdminHandler{responder: responder{logger: logger}, deadLetters: deadLetters}
}

// DeadLetters обрабатывает GET /api/admin/mail/dead-letters?limit=N
// Доступ проверяется middleware.RequireAdmin.
func (h *AdminHandler) DeadLetters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := defaultDeadLetterLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.sendError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	letters, err := h.deadLetters.ListDeadLetters(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list dead letters", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := make([]api.DeadLetter, 0, len(letters))
	for _, l := range letters {
		resp = append(resp, api.DeadLetter{
			CreatedAt: l.CreatedAt,
			ID:        l.ID,
			Recipient: l.Recipient,
			Subject:   l.Subject,
			Kind:      l.Kind,
			LastError: l.LastError,
			Attempts:  l.Attempts,
		})
	}
	h.sendJSON(w, resp, http.StatusOK)
}

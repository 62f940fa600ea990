package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/iudanet/securehub/internal/models"
	"github.com/iudanet/securehub/pkg/api"
)

// responder содержит общие методы ответа для всех handlers
type responder struct {
	logger *slog.Logger
}

// sendJSON отправляет JSON ответ
func (h responder) sendJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError отправляет JSON ответ с ошибкой
func (h responder) sendError(w http.ResponseWriter, message string, statusCode int) {
	resp := api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	}
	h.sendJSON(w, resp, statusCode)
}

// identity возвращает пользователя из контекста или отвечает 401
func (h responder) identity(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		h.sendError(w, "authentication required", http.StatusUnauthorized)
	}
	return id, ok
}

func toAPIUser(u *models.User) api.User {
	return api.User{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Department: string(u.Department),
		Role:       string(u.Role),
	}
}

func toAPIFile(f *models.File) api.File {
	out := api.File{
		CreatedAt:          f.CreatedAt,
		ID:                 f.ID,
		Name:               f.Name,
		ContentType:        f.ContentType,
		ReceiverType:       string(f.Scope),
		ReceiverDepartment: string(f.TargetDepartment),
		ReceiverUser:       f.TargetUserID,
		Size:               f.Size,
	}
	if f.Uploader != nil {
		out.UploadedBy = &api.Uploader{
			ID:         f.Uploader.ID,
			Name:       f.Uploader.Name,
			Email:      f.Uploader.Email,
			Department: string(f.Uploader.Department),
		}
	}
	return out
}

func toAPIDownloadLog(e *models.DownloadLogEntry) api.DownloadLog {
	return api.DownloadLog{
		CreatedAt: e.CreatedAt,
		ID:        e.ID,
		FileID:    e.FileID,
		FileName:  e.FileName,
		UserID:    e.UserID,
		UserName:  e.UserName,
		UserEmail: e.UserEmail,
		DeviceID:  e.DeviceID,
		IPAddress: e.IPAddress,
		UserAgent: e.UserAgent,
	}
}

package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/iudanet/securehub/internal/models"
	"github.com/iudanet/securehub/internal/server/files"
	"github.com/iudanet/securehub/pkg/api"
)

// DefaultMaxUploadBytes лимит размера загружаемого файла
const DefaultMaxUploadBytes int64 = 50 << 20

// multipart parts larger than this spill to temp files
const multipartMemory = 8 << 20

// FileService is the subset of files.Service used by FilesHandler
type FileService interface {
	Upload(ctx context.Context, actor models.Identity, req files.UploadRequest) (*models.File, error)
	ListVisible(ctx context.Context, actor models.Identity) ([]*models.File, error)
	Download(ctx context.Context, actor models.Identity, fileID string, meta files.DownloadMeta) (*files.Download, error)
	Delete(ctx context.Context, actor models.Identity, fileID string) error
	ListDownloadLogs(ctx context.Context, actor models.Identity) ([]*models.DownloadLogEntry, error)
	ListMyDownloadLogs(ctx context.Context, actor models.Identity) ([]*models.DownloadLogEntry, error)
}

// FilesHandler обрабатывает запросы к файлам
type FilesHandler struct {
	responder
	svc      FileService
	maxBytes int64
}

// NewFilesHandler создает handler; maxBytes <= 0 означает DefaultMaxUploadBytes
func NewFilesHandler(logger *slog.Logger, svc FileService, maxBytes int64) *FilesHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &FilesHandler{
		responder: responder{logger: logger},
		svc:       svc,
		maxBytes:  maxBytes,
	}
}

// List обрабатывает GET /api/files
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}

	list, err := h.svc.ListVisible(ctx, actor)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list files", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := make([]api.File, 0, len(list))
	for _, f := range list {
		resp = append(resp, toAPIFile(f))
	}
	h.sendJSON(w, resp, http.StatusOK)
}

// Upload обрабатывает POST /api/files/upload (multipart/form-data)
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}

	// Запас на заголовки multipart и поля формы
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.sendError(w, fmt.Sprintf("file exceeds %d bytes", h.maxBytes), http.StatusRequestEntityTooLarge)
			return
		}
		h.sendError(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile(api.FormFile)
	if err != nil {
		h.sendError(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		h.sendError(w, fmt.Sprintf("file exceeds %d bytes", h.maxBytes), http.StatusRequestEntityTooLarge)
		return
	}

	created, err := h.svc.Upload(ctx, actor, files.UploadRequest{
		Content:     file,
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Visibility: models.Visibility{
			Scope:            models.Scope(r.FormValue(api.FormReceiverType)),
			TargetDepartment: models.Department(r.FormValue(api.FormReceiverDepartment)),
			TargetUserID:     r.FormValue(api.FormReceiverUser),
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, files.ErrInvalidScope), errors.Is(err, files.ErrEmptyFile):
			h.sendError(w, err.Error(), http.StatusBadRequest)
		default:
			h.logger.ErrorContext(ctx, "failed to upload file", slog.Any("error", err))
			h.sendError(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.sendJSON(w, api.UploadResponse{
		Message: "file uploaded",
		File:    toAPIFile(created),
	}, http.StatusOK)
}

// Download обрабатывает GET /api/files/{id}/download
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}

	fileID := mux.Vars(r)["id"]
	d, err := h.svc.Download(ctx, actor, fileID, files.DownloadMeta{
		DeviceID:  r.Header.Get(api.HeaderDeviceID),
		IPAddress: ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		switch {
		case errors.Is(err, files.ErrNotFound):
			h.sendError(w, "file not found", http.StatusNotFound)
		case errors.Is(err, files.ErrMissingOnDisk):
			h.sendError(w, "file missing on server", http.StatusNotFound)
		case errors.Is(err, files.ErrForbidden):
			h.sendError(w, "you do not have access to this file", http.StatusForbidden)
		default:
			h.logger.ErrorContext(ctx, "failed to download file", slog.Any("error", err))
			h.sendError(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}
	defer d.Content.Close()

	w.Header().Set("Content-Type", d.File.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.File.Name}))
	if d.File.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(d.File.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, d.Content); err != nil {
		// Заголовки уже отправлены, остаётся только залогировать
		h.logger.WarnContext(ctx, "download interrupted",
			slog.String("file_id", fileID),
			slog.Any("error", err))
	}
}

// Delete обрабатывает DELETE /api/files/{id}
func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}

	err := h.svc.Delete(ctx, actor, mux.Vars(r)["id"])
	if err != nil {
		switch {
		case errors.Is(err, files.ErrForbidden):
			h.sendError(w, "admin access required", http.StatusForbidden)
		case errors.Is(err, files.ErrNotFound):
			h.sendError(w, "file not found", http.StatusNotFound)
		default:
			h.logger.ErrorContext(ctx, "failed to delete file", slog.Any("error", err))
			h.sendError(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.sendJSON(w, api.MessageResponse{Message: "file deleted"}, http.StatusOK)
}

// AllLogs обрабатывает GET /api/files/logs/all
func (h *FilesHandler) AllLogs(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}
	h.sendLogs(w, r, func(ctx context.Context) ([]*models.DownloadLogEntry, error) {
		return h.svc.ListDownloadLogs(ctx, actor)
	})
}

// MyLogs обрабатывает GET /api/files/logs/mine
func (h *FilesHandler) MyLogs(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}
	h.sendLogs(w, r, func(ctx context.Context) ([]*models.DownloadLogEntry, error) {
		return h.svc.ListMyDownloadLogs(ctx, actor)
	})
}

func (h *FilesHandler) sendLogs(w http.ResponseWriter, r *http.Request, list func(context.Context) ([]*models.DownloadLogEntry, error)) {
	ctx := r.Context()

	entries, err := list(ctx)
	if err != nil {
		if errors.Is(err, files.ErrForbidden) {
			h.sendError(w, "admin access required", http.StatusForbidden)
			return
		}
		h.logger.ErrorContext(ctx, "failed to list download logs", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := make([]api.DownloadLog, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toAPIDownloadLog(e))
	}
	h.sendJSON(w, resp, http.StatusOK)
}

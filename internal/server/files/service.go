// Package files implements upload, scoped listing, audited download and deletion.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/iudanet/securehub/internal/models"
	"github.com/iudanet/securehub/internal/server/blob"
	"github.com/iudanet/securehub/internal/server/metrics"
	"github.com/iudanet/securehub/internal/server/notify"
	"github.com/iudanet/securehub/internal/server/storage"
)

const (
	maxNameLen = 255 // байт, как у большинства файловых систем
	maxExtLen  = 16  // более длинный суффикс не считается расширением
)

// UploadRequest describes an incoming file
type UploadRequest struct {
	Content     io.Reader
	Name        string
	ContentType string
	Visibility  models.Visibility
	Size        int64
}

// DownloadMeta is the request context recorded in the audit log
type DownloadMeta struct {
	DeviceID  string
	IPAddress string
	UserAgent string
}

// Download is an opened file. The caller must close Content.
type Download struct {
	File    *models.File
	Content io.ReadCloser
}

// SharedEvent is the payload of the file:shared event
type SharedEvent struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	UploadedBy string            `json:"uploadedBy"`
	Visibility models.Visibility `json:"visibility"`
	Size       int64             `json:"size"`
}

// Service implements the file distribution flow
type Service struct {
	files    storage.FileStorage
	logs     storage.DownloadLogStorage
	users    storage.UserStorage
	blobs    blob.Store
	notifier notify.Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewService creates the file service. A nil notifier disables events.
func NewService(
	logger *slog.Logger,
	files storage.FileStorage,
	logs storage.DownloadLogStorage,
	users storage.UserStorage,
	blobs blob.Store,
	notifier notify.Notifier,
	m *metrics.Metrics,
) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		files:    files,
		logs:     logs,
		users:    users,
		blobs:    blobs,
		notifier: notifier,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// storedName returns a unique blob name keeping the original extension
func storedName(original string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(original))
	if len(ext) > maxExtLen || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + uuid.New().String() + ext
}

// cleanName strips any client supplied directory from the original name
func cleanName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = strings.TrimSpace(filepath.Base("/" + name))
	if name == "/" || name == "." {
		return ""
	}
	if len(name) <= maxNameLen {
		return name
	}

	// Режем основу имени по границе руны, расширение сохраняем
	ext := filepath.Ext(name)
	if len(ext) > maxExtLen {
		ext = ""
	}
	stem := strings.TrimSuffix(name, ext)
	limit := maxNameLen - len(ext)
	for limit > 0 && !utf8.RuneStart(stem[limit]) {
		limit--
	}
	return stem[:limit] + ext
}

// Upload stores the bytes and the metadata, then notifies the audience
func (s *Service) Upload(ctx context.Context, actor models.Identity, req UploadRequest) (*models.File, error) {
	name := cleanName(req.Name)
	if req.Content == nil || name == "" {
		return nil, ErrEmptyFile
	}

	vis := req.Visibility
	if err := vis.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScope, err)
	}
	if vis.Scope == models.ScopeUser {
		if _, err := s.users.GetUserByID(ctx, vis.TargetUserID); err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				return nil, fmt.Errorf("%w: receiverUser does not exist", ErrInvalidScope)
			}
			return nil, fmt.Errorf("failed to get target user: %w", err)
		}
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	now := s.now().UTC()
	file := &models.File{
		ID:          uuid.New().String(),
		Name:        name,
		StoredName:  storedName(name, now),
		ContentType: contentType,
		UploadedBy:  actor.UserID,
		Visibility:  vis,
		Size:        req.Size,
		CreatedAt:   now,
	}

	if err := s.blobs.Put(ctx, file.StoredName, req.Content, req.Size); err != nil {
		return nil, fmt.Errorf("failed to store file content: %w", err)
	}

	if err := s.files.CreateFile(ctx, file); err != nil {
		// Не оставляем байты без метаданных
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), file.StoredName); delErr != nil {
			s.logger.ErrorContext(ctx, "failed to remove orphaned blob",
				slog.String("stored_name", file.StoredName),
				slog.Any("error", delErr))
		}
		return nil, fmt.Errorf("failed to save file metadata: %w", err)
	}

	file.Uploader = &models.Uploader{
		ID:         actor.UserID,
		Name:       actor.Name,
		Email:      actor.Email,
		Department: actor.Department,
	}

	s.metrics.ObserveUpload()
	s.logger.InfoContext(ctx, "file uploaded",
		slog.String("file_id", file.ID),
		slog.String("user_id", actor.UserID),
		slog.String("scope", string(vis.Scope)),
		slog.Int64("size", file.Size))

	s.notifier.Publish(ctx, notify.AudienceFor(vis), notify.Event{
		Type: notify.EventFileShared,
		Time: now,
		Payload: SharedEvent{
			ID:         file.ID,
			Name:       file.Name,
			UploadedBy: actor.Name,
			Visibility: vis,
			Size:       file.Size,
		},
	})

	return file, nil
}

// ListVisible returns every file the actor may see, newest first
func (s *Service) ListVisible(ctx context.Context, actor models.Identity) ([]*models.File, error) {
	files, err := s.files.ListVisibleFiles(ctx, actor.UserID, actor.Department)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

// Download authorizes the actor, writes one audit row and opens the content
func (s *Service) Download(ctx context.Context, actor models.Identity, fileID string, meta DownloadMeta) (*Download, error) {
	file, err := s.files.GetFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			s.metrics.ObserveDownload("not_found")
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	if !file.VisibleTo(actor) {
		s.metrics.ObserveDownload("forbidden")
		s.logger.WarnContext(ctx, "download forbidden",
			slog.String("file_id", file.ID),
			slog.String("user_id", actor.UserID))
		return nil, ErrForbidden
	}

	content, err := s.blobs.Open(ctx, file.StoredName)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			s.metrics.ObserveDownload("missing")
			s.logger.ErrorContext(ctx, "file content missing",
				slog.String("file_id", file.ID),
				slog.String("stored_name", file.StoredName))
			return nil, ErrMissingOnDisk
		}
		return nil, fmt.Errorf("failed to open file content: %w", err)
	}

	entry := &models.DownloadLog{
		ID:        uuid.New().String(),
		FileID:    file.ID,
		UserID:    actor.UserID,
		DeviceID:  meta.DeviceID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: s.now().UTC(),
	}
	if err := s.logs.AppendDownloadLog(ctx, entry); err != nil {
		content.Close()
		return nil, fmt.Errorf("failed to write download log: %w", err)
	}

	s.metrics.ObserveDownload("ok")
	s.logger.InfoContext(ctx, "file downloaded",
		slog.String("file_id", file.ID),
		slog.String("user_id", actor.UserID))

	return &Download{File: file, Content: content}, nil
}

// Delete removes the metadata and then the bytes. Admin only.
func (s *Service) Delete(ctx context.Context, actor models.Identity, fileID string) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}

	file, err := s.files.GetFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get file: %w", err)
	}

	if err := s.files.DeleteFile(ctx, file.ID); err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete file metadata: %w", err)
	}

	if err := s.blobs.Delete(ctx, file.StoredName); err != nil {
		s.logger.ErrorContext(ctx, "failed to delete file content",
			slog.String("file_id", file.ID),
			slog.String("stored_name", file.StoredName),
			slog.Any("error", err))
	}

	s.logger.InfoContext(ctx, "file deleted",
		slog.String("file_id", file.ID),
		slog.String("user_id", actor.UserID))
	return nil
}

// ListDownloadLogs returns the whole audit log. Admin only.
func (s *Service) ListDownloadLogs(ctx context.Context, actor models.Identity) ([]*models.DownloadLogEntry, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	logs, err := s.logs.ListDownloadLogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list download logs: %w", err)
	}
	return logs, nil
}

// ListMyDownloadLogs returns the actor's own downloads
func (s *Service) ListMyDownloadLogs(ctx context.Context, actor models.Identity) ([]*models.DownloadLogEntry, error) {
	logs, err := s.logs.ListUserDownloadLogs(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list download logs: %w", err)
	}
	return logs, nil
}

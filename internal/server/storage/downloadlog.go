package storage

import (
	"context"

	"github.com/iudanet/securehub/internal/models"
)

// DownloadLogStorage defines interface for the append-only download audit
type DownloadLogStorage interface {
	// AppendDownloadLog adds one audit row
	AppendDownloadLog(ctx context.Context, log *models.DownloadLog) error

	// ListDownloadLogs returns every audit row, newest first
	ListDownloadLogs(ctx context.Context) ([]*models.DownloadLogEntry, error)

	// ListUserDownloadLogs returns audit rows of one user, newest first
	ListUserDownloadLogs(ctx context.Context, userID string) ([]*models.DownloadLogEntry, error)
}

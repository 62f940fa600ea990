package storage

import (
	"context"

	"github.com/iudanet/securehub/internal/models"
)

// FileStorage defines interface for the file catalog
type FileStorage interface {
	// CreateFile stores metadata of an uploaded file
	CreateFile(ctx context.Context, file *models.File) error

	// GetFile retrieves file metadata by ID
	// Returns ErrFileNotFound if file doesn't exist
	GetFile(ctx context.Context, fileID string) (*models.File, error)

	// ListVisibleFiles returns files shared with everyone, with department,
	// or with userID, newest first, with the uploader populated
	ListVisibleFiles(ctx context.Context, userID string, department models.Department) ([]*models.File, error)

	// DeleteFile removes file metadata
	// Returns ErrFileNotFound if file doesn't exist
	DeleteFile(ctx context.Context, fileID string) error
}

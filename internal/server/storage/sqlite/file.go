package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iudanet/securehub/internal/models"
	"github.com/iudanet/securehub/internal/server/storage"
)

// CreateFile stores metadata of an uploaded file
func (s *Storage) CreateFile(ctx context.Context, file *models.File) error {
	query := `
		INSERT INTO files (id, name, stored_name, size, content_type, uploaded_by,
			scope, target_department, target_user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		file.ID,
		file.Name,
		file.StoredName,
		file.Size,
		file.ContentType,
		file.UploadedBy,
		string(file.Scope),
		nullString(string(file.TargetDepartment)),
		nullString(file.TargetUserID),
		utc(file.CreatedAt),
	)

	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}

	return nil
}

// GetFile retrieves file metadata by ID
func (s *Storage) GetFile(ctx context.Context, fileID string) (*models.File, error) {
	query := `
		SELECT f.id, f.name, f.stored_name, f.size, f.content_type, f.uploaded_by,
			f.scope, f.target_department, f.target_user_id, f.created_at,
			u.id, u.name, u.email, u.department
		FROM files f
		JOIN users u ON u.id = f.uploaded_by
		WHERE f.id = ?
	`

	file, err := scanFile(s.db.QueryRowContext(ctx, query, fileID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	return file, nil
}

// ListVisibleFiles returns files the given user may see, newest first
func (s *Storage) ListVisibleFiles(ctx context.Context, userID string, department models.Department) ([]*models.File, error) {
	query := `
		SELECT f.id, f.name, f.stored_name, f.size, f.content_type, f.uploaded_by,
			f.scope, f.target_department, f.target_user_id, f.created_at,
			u.id, u.name, u.email, u.department
		FROM files f
		JOIN users u ON u.id = f.uploaded_by
		WHERE f.scope = 'everyone'
			OR (f.scope = 'department' AND f.target_department = ?)
			OR (f.scope = 'user' AND f.target_user_id = ?)
		ORDER BY f.created_at DESC, f.rowid DESC
	`

	rows, err := s.db.QueryContext(ctx, query, string(department), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	files := make([]*models.File, 0)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, file)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return files, nil
}

// DeleteFile removes file metadata
func (s *Storage) DeleteFile(ctx context.Context, fileID string) error {
	query := `DELETE FROM files WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return storage.ErrFileNotFound
	}

	return nil
}

func scanFile(row rowScanner) (*models.File, error) {
	file := &models.File{Uploader: &models.Uploader{}}
	var scope, uploaderDepartment string
	var targetDepartment, targetUserID sql.NullString

	err := row.Scan(
		&file.ID,
		&file.Name,
		&file.StoredName,
		&file.Size,
		&file.ContentType,
		&file.UploadedBy,
		&scope,
		&targetDepartment,
		&targetUserID,
		&file.CreatedAt,
		&file.Uploader.ID,
		&file.Uploader.Name,
		&file.Uploader.Email,
		&uploaderDepartment,
	)
	if err != nil {
		return nil, err
	}

	file.Scope = models.Scope(scope)
	file.TargetDepartment = models.Department(targetDepartment.String)
	file.TargetUserID = targetUserID.String
	file.Uploader.Department = models.Department(uploaderDepartment)
	return file, nil
}

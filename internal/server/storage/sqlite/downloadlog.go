package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iudanet/securehub/internal/models"
)

// AppendDownloadLog adds one audit row
func (s *Storage) AppendDownloadLog(ctx context.Context, log *models.DownloadLog) error {
	query := `
		INSERT INTO download_logs (id, file_id, user_id, device_id, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		log.ID,
		log.FileID,
		log.UserID,
		log.DeviceID,
		log.IPAddress,
		log.UserAgent,
		utc(log.CreatedAt),
	)

	if err != nil {
		return fmt.Errorf("failed to insert download log: %w", err)
	}

	return nil
}

const downloadLogSelect = `
	SELECT l.id, l.file_id, l.user_id, l.device_id, l.ip_address, l.user_agent, l.created_at,
		f.name, u.name, u.email
	FROM download_logs l
	LEFT JOIN files f ON f.id = l.file_id
	JOIN users u ON u.id = l.user_id
`

// ListDownloadLogs returns every audit row, newest first
func (s *Storage) ListDownloadLogs(ctx context.Context) ([]*models.DownloadLogEntry, error) {
	query := downloadLogSelect + ` ORDER BY l.created_at DESC, l.rowid DESC`
	return s.queryDownloadLogs(ctx, query)
}

// ListUserDownloadLogs returns audit rows of one user, newest first
func (s *Storage) ListUserDownloadLogs(ctx context.Context, userID string) ([]*models.DownloadLogEntry, error) {
	query := downloadLogSelect + ` WHERE l.user_id = ? ORDER BY l.created_at DESC, l.rowid DESC`
	return s.queryDownloadLogs(ctx, query, userID)
}

func (s *Storage) queryDownloadLogs(ctx context.Context, query string, args ...any) ([]*models.DownloadLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query download logs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	entries := make([]*models.DownloadLogEntry, 0)
	for rows.Next() {
		entry := &models.DownloadLogEntry{}
		var fileName sql.NullString
		if err := rows.Scan(
			&entry.ID,
			&entry.FileID,
			&entry.UserID,
			&entry.DeviceID,
			&entry.IPAddress,
			&entry.UserAgent,
			&entry.CreatedAt,
			&fileName,
			&entry.UserName,
			&entry.UserEmail,
		); err != nil {
			return nil, fmt.Errorf("failed to scan download log: %w", err)
		}
		entry.FileName = fileName.String
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return entries, nil
}

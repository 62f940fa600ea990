package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/securehub/internal/models"
)

func setupTestStorage(t *testing.T) (*Storage, func()) {
	ctx := context.Background()

	// Используем in-memory database для тестов
	storage, err := New(ctx, ":memory:")
	require.NoError(t, err)

	cleanup := func() {
		_ = storage.Close()
	}

	return storage, cleanup
}

func createTestUser(t *testing.T, ctx context.Context, s *Storage, department models.Department) *models.User {
	userID := uuid.New().String()
	now := time.Now()
	user := &models.User{
		ID:           userID,
		Name:         "user " + userID[:8],
		Email:        "user_" + userID[:8] + "@example.com",
		PasswordHash: "hash",
		Department:   department,
		Role:         models.RoleEmployee,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.CreateUser(ctx, user)
	require.NoError(t, err)

	return user
}

func createTestFile(t *testing.T, ctx context.Context, s *Storage, uploader string, v models.Visibility, createdAt time.Time) *models.File {
	file := &models.File{
		ID:          uuid.New().String(),
		Name:        "report.pdf",
		StoredName:  uuid.New().String() + ".pdf",
		ContentType: "application/pdf",
		UploadedBy:  uploader,
		Visibility:  v,
		Size:        1024,
		CreatedAt:   createdAt,
	}

	err := s.CreateFile(ctx, file)
	require.NoError(t, err)

	return file
}

// listTestOTPs returns tokens issued for (userID, deviceID), newest first
func listTestOTPs(t *testing.T, ctx context.Context, s *Storage, userID, deviceID string) []*models.OTPToken {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, device_id, code, purpose, expires_at, used, created_at
		FROM otp_tokens
		WHERE user_id = ? AND device_id = ?
		ORDER BY created_at DESC
	`, userID, deviceID)
	require.NoError(t, err)
	defer func() {
		_ = rows.Close()
	}()

	var tokens []*models.OTPToken
	for rows.Next() {
		token := &models.OTPToken{}
		var purpose string
		require.NoError(t, rows.Scan(
			&token.ID,
			&token.UserID,
			&token.DeviceID,
			&token.Code,
			&purpose,
			&token.ExpiresAt,
			&token.Used,
			&token.CreatedAt,
		))
		token.Purpose = models.OTPPurpose(purpose)
		tokens = append(tokens, token)
	}
	require.NoError(t, rows.Err())

	return tokens
}

// countTestDownloads returns number of audit rows for a file
func countTestDownloads(t *testing.T, ctx context.Context, s *Storage, fileID string) int {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM download_logs WHERE file_id = ?`, fileID).Scan(&count)
	require.NoError(t, err)
	return count
}

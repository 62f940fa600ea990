package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/securehub/internal/models"
	"github.com/iudanet/securehub/internal/server/storage"
)

// SaveOTP stores a freshly issued token
func (s *Storage) SaveOTP(ctx context.Context, token *models.OTPToken) error {
	query := `
		INSERT INTO otp_tokens (id, user_id, device_id, code, purpose, expires_at, used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.DeviceID,
		token.Code,
		string(token.Purpose),
		utc(token.ExpiresAt),
		token.Used,
		utc(token.CreatedAt),
	)

	if err != nil {
		return fmt.Errorf("failed to save otp token: %w", err)
	}

	return nil
}

// ConsumeOTP atomically marks a matching usable token as used.
// The conditional UPDATE on used = 0 is the compare-and-set: of two concurrent
// verifications of the same code only one sees a row affected.
func (s *Storage) ConsumeOTP(ctx context.Context, userID, deviceID, code string, purpose models.OTPPurpose, now time.Time) (*models.OTPToken, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	selectQuery := `
		SELECT id, user_id, device_id, code, purpose, expires_at, used, created_at
		FROM otp_tokens
		WHERE user_id = ? AND device_id = ? AND code = ? AND purpose = ?
			AND used = 0 AND expires_at > ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	token := &models.OTPToken{}
	var tokenPurpose string

	err = tx.QueryRowContext(ctx, selectQuery, userID, deviceID, code, string(purpose), utc(now)).Scan(
		&token.ID,
		&token.UserID,
		&token.DeviceID,
		&token.Code,
		&tokenPurpose,
		&token.ExpiresAt,
		&token.Used,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrOTPNotFound
		}
		return nil, fmt.Errorf("failed to get otp token: %w", err)
	}

	result, err := tx.ExecContext(ctx, `UPDATE otp_tokens SET used = 1 WHERE id = ? AND used = 0`, token.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to consume otp token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows != 1 {
		return nil, storage.ErrOTPNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit otp consumption: %w", err)
	}

	token.Purpose = models.OTPPurpose(tokenPurpose)
	token.Used = true
	return token, nil
}

// RecordOTPFailure counts one wrong code against every live token of
// (userID, deviceID, purpose). A token reaching maxAttempts is marked used.
func (s *Storage) RecordOTPFailure(ctx context.Context, userID, deviceID string, purpose models.OTPPurpose, now time.Time, maxAttempts int) (int, error) {
	// В SET справа видны старые значения колонок
	query := `
		UPDATE otp_tokens
		SET attempts = attempts + 1,
			used = CASE WHEN attempts + 1 >= ? THEN 1 ELSE used END
		WHERE user_id = ? AND device_id = ? AND purpose = ?
			AND used = 0 AND expires_at > ?
	`

	result, err := s.db.ExecContext(ctx, query, maxAttempts, userID, deviceID, string(purpose), utc(now))
	if err != nil {
		return 0, fmt.Errorf("failed to record otp failure: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}

// DeleteExpiredOTPs removes tokens expired before now
func (s *Storage) DeleteExpiredOTPs(ctx context.Context, now time.Time) (int, error) {
	query := `DELETE FROM otp_tokens WHERE expires_at <= ?`

	result, err := s.db.ExecContext(ctx, query, utc(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired otp tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}

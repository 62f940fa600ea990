package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iudanet/securehub/internal/models"
	"github.com/iudanet/securehub/internal/server/storage"
)

// CreateDevice inserts a new device record
func (s *Storage) CreateDevice(ctx context.Context, device *models.Device) error {
	query := `
		INSERT INTO devices (id, user_id, device_id, ip_address, user_agent, host_name,
			is_approved, first_seen_at, last_seen_at, approved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		device.ID,
		device.UserID,
		device.DeviceID,
		device.IPAddress,
		device.UserAgent,
		device.HostName,
		device.IsApproved,
		utc(device.FirstSeenAt),
		utc(device.LastSeenAt),
		nullTime(device.ApprovedAt),
	)

	if err != nil {
		// Конкурентный первый вход с того же устройства
		if isUniqueViolation(err) {
			return storage.ErrDeviceAlreadyExists
		}
		return fmt.Errorf("failed to insert device: %w", err)
	}

	return nil
}

// GetDevice retrieves the device registered for (userID, deviceID)
func (s *Storage) GetDevice(ctx context.Context, userID, deviceID string) (*models.Device, error) {
	query := `
		SELECT id, user_id, device_id, ip_address, user_agent, host_name,
			is_approved, first_seen_at, last_seen_at, approved_at
		FROM devices
		WHERE user_id = ? AND device_id = ?
	`

	device := &models.Device{}
	var approvedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, userID, deviceID).Scan(
		&device.ID,
		&device.UserID,
		&device.DeviceID,
		&device.IPAddress,
		&device.UserAgent,
		&device.HostName,
		&device.IsApproved,
		&device.FirstSeenAt,
		&device.LastSeenAt,
		&approvedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	device.ApprovedAt = timePtr(approvedAt)
	return device, nil
}

// UpdateDevice overwrites the mutable fields of an existing device.
// is_approved is OR-ed so a concurrent pending refresh cannot revoke an approval.
func (s *Storage) UpdateDevice(ctx context.Context, device *models.Device) error {
	query := `
		UPDATE devices
		SET ip_address = ?, user_agent = ?, host_name = ?, last_seen_at = ?,
			is_approved = (is_approved OR ?),
			approved_at = COALESCE(?, approved_at)
		WHERE user_id = ? AND device_id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		device.IPAddress,
		device.UserAgent,
		device.HostName,
		utc(device.LastSeenAt),
		device.IsApproved,
		nullTime(device.ApprovedAt),
		device.UserID,
		device.DeviceID,
	)

	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return storage.ErrDeviceNotFound
	}

	return nil
}

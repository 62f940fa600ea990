package storage

import (
	"context"

	"github.com/iudanet/securehub/internal/models"
)

// DeviceStorage defines interface for the device registry
type DeviceStorage interface {
	// CreateDevice inserts a new device record
	// Returns ErrDeviceAlreadyExists if (user_id, device_id) is taken
	CreateDevice(ctx context.Context, device *models.Device) error

	// GetDevice retrieves the device registered for (userID, deviceID)
	// Returns ErrDeviceNotFound if device doesn't exist
	GetDevice(ctx context.Context, userID, deviceID string) (*models.Device, error)

	// UpdateDevice overwrites the mutable fields of an existing device
	// Approval is sticky: an approved device is never reset to pending
	// Returns ErrDeviceNotFound if device doesn't exist
	UpdateDevice(ctx context.Context, device *models.Device) error
}

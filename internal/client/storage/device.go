package storage

import "context"

//go:generate moq -out device_mock.go . DeviceStorage

// DeviceStorage хранит fingerprint этого клиента.
// Fingerprint переживает logout, иначе каждый вход требовал бы новый OTP.
type DeviceStorage interface {
	// DeviceID returns the stored fingerprint, generating and saving one on first use
	DeviceID(ctx context.Context) (string, error)
}

package storage

import "errors"

// Common storage errors
var (
	// ErrUserNotFound indicates that user was not found in storage
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates that user with this email already exists
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrDeviceNotFound indicates that no device is registered for (user, fingerprint)
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDeviceAlreadyExists indicates a lost race on the (user, fingerprint) unique key
	ErrDeviceAlreadyExists = errors.New("device already exists")

	// ErrOTPNotFound indicates that no usable one-time code matched
	ErrOTPNotFound = errors.New("otp token not found")

	// ErrFileNotFound indicates that file metadata was not found
	ErrFileNotFound = errors.New("file not found")
)

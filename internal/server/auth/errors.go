package auth

import "errors"

var (
	// ErrInvalidCredentials returned for unknown email or wrong password alike
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidOrExpiredOTP returned when no unused, unexpired code matches
	ErrInvalidOrExpiredOTP = errors.New("invalid or expired OTP")
	// ErrDeviceNotFound returned when a code is verified for an unknown device
	ErrDeviceNotFound = errors.New("device not found")
	// ErrEmailTaken returned on registration with an existing email
	ErrEmailTaken = errors.New("email already registered")
	// ErrValidation wraps field validation failures
	ErrValidation = errors.New("validation failed")
	// ErrInvalidSession returned when a session token does not resolve to a user
	ErrInvalidSession = errors.New("invalid session")
)

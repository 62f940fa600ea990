package files

import "errors"

var (
	// ErrInvalidScope returned for a malformed visibility or unknown target user
	ErrInvalidScope = errors.New("invalid scope")
	// ErrForbidden returned when the caller may not access the file or operation
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound returned when no file metadata exists
	ErrNotFound = errors.New("file not found")
	// ErrMissingOnDisk returned when metadata exists but the bytes are gone
	ErrMissingOnDisk = errors.New("file missing on disk")
	// ErrEmptyFile returned when no upload is provided
	ErrEmptyFile = errors.New("file is required")
)

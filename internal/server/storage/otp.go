package storage

import (
	"context"
	"time"

	"github.com/iudanet/securehub/internal/models"
)

// OTPStorage defines interface for the one-time code ledger
type OTPStorage interface {
	// SaveOTP stores a freshly issued token
	SaveOTP(ctx context.Context, token *models.OTPToken) error

	// ConsumeOTP atomically marks as used one token matching
	// (userID, deviceID, code, purpose) that is unused and not expired at now.
	// Returns ErrOTPNotFound if no such token exists.
	ConsumeOTP(ctx context.Context, userID, deviceID, code string, purpose models.OTPPurpose, now time.Time) (*models.OTPToken, error)

	// RecordOTPFailure counts a wrong code against every live token of
	// (userID, deviceID, purpose) and burns tokens that reach maxAttempts.
	// Returns number of tokens touched.
	RecordOTPFailure(ctx context.Context, userID, deviceID string, purpose models.OTPPurpose, now time.Time, maxAttempts int) (int, error)

	// DeleteExpiredOTPs removes tokens expired before now
	// Returns number of deleted tokens
	DeleteExpiredOTPs(ctx context.Context, now time.Time) (int, error)
}

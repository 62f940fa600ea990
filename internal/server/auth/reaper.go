package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/iudanet/securehub/internal/server/storage"
)

// Reaper periodically deletes expired OTP tokens.
// Expiry is enforced at verification time; reaping only keeps the table small.
type Reaper struct {
	otps     storage.OTPStorage
	logger   *slog.Logger
	now      func() time.Time
	interval time.Duration
}

// NewReaper creates a reaper running every interval
func NewReaper(otps storage.OTPStorage, logger *slog.Logger, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Reaper{otps: otps, logger: logger, interval: interval, now: time.Now}
}

// Run blocks until ctx is cancelled
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReapOnce(ctx)
		}
	}
}

// ReapOnce deletes expired tokens and returns how many were removed
func (r *Reaper) ReapOnce(ctx context.Context) int {
	deleted, err := r.otps.DeleteExpiredOTPs(ctx, r.now().UTC())
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to delete expired otps", slog.Any("error", err))
		return 0
	}
	if deleted > 0 {
		r.logger.InfoContext(ctx, "expired otps deleted", slog.Int("count", deleted))
	}
	return deleted
}

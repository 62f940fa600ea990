package storage

import (
	"context"

	"github.com/iudanet/securehub/internal/models"
)

// DeadLetterStorage keeps outbound mails that exhausted their retries
type DeadLetterStorage interface {
	// SaveDeadLetter stores an undeliverable mail
	SaveDeadLetter(ctx context.Context, letter *models.MailDeadLetter) error

	// ListDeadLetters returns the most recent dead letters, newest first
	ListDeadLetters(ctx context.Context, limit int) ([]*models.MailDeadLetter, error)
}

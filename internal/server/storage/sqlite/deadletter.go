package sqlite

import (
	"context"
	"fmt"

	"github.com/iudanet/securehub/internal/models"
)

// SaveDeadLetter stores an undeliverable mail
func (s *Storage) SaveDeadLetter(ctx context.Context, letter *models.MailDeadLetter) error {
	query := `
		INSERT INTO mail_dead_letters (id, recipient, subject, kind, attempts, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		letter.ID,
		letter.Recipient,
		letter.Subject,
		letter.Kind,
		letter.Attempts,
		letter.LastError,
		utc(letter.CreatedAt),
	)

	if err != nil {
		return fmt.Errorf("failed to save dead letter: %w", err)
	}

	return nil
}

// ListDeadLetters returns the most recent dead letters, newest first
func (s *Storage) ListDeadLetters(ctx context.Context, limit int) ([]*models.MailDeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, recipient, subject, kind, attempts, last_error, created_at
		FROM mail_dead_letters
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	letters := make([]*models.MailDeadLetter, 0)
	for rows.Next() {
		letter := &models.MailDeadLetter{}
		if err := rows.Scan(
			&letter.ID,
			&letter.Recipient,
			&letter.Subject,
			&letter.Kind,
			&letter.Attempts,
			&letter.LastError,
			&letter.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		letters = append(letters, letter)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return letters, nil
}

package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/iudanet/securehub/internal/models"
	"github.com/iudanet/securehub/internal/server/metrics"
	"github.com/iudanet/securehub/internal/server/storage"
)

// ErrQueueFull is recorded as the dead letter reason when Enqueue cannot buffer
var ErrQueueFull = errors.New("mail queue full")

// ErrStopped returned by Enqueue after Stop
var ErrStopped = errors.New("mail dispatcher stopped")

// DispatcherConfig настройки очереди и повторов
type DispatcherConfig struct {
	Workers    int
	QueueSize  int
	MaxRetries uint64
	BaseDelay  time.Duration
}

func (c *DispatcherConfig) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 100
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
}

// Dispatcher owns a bounded queue drained by worker goroutines.
// Each message is retried with exponential backoff; a message that still
// fails, or that finds the queue full, is written to the dead letter table.
type Dispatcher struct {
	sender      Sender
	deadLetters storage.DeadLetterStorage
	logger      *slog.Logger
	metrics     *metrics.Metrics
	queue       chan Message
	wg          sync.WaitGroup
	cfg         DispatcherConfig
	mu          sync.RWMutex
	stopped     bool
}

// NewDispatcher creates a dispatcher. Call Start before Enqueue.
func NewDispatcher(sender Sender, deadLetters storage.DeadLetterStorage, logger *slog.Logger, m *metrics.Metrics, cfg DispatcherConfig) *Dispatcher {
	cfg.setDefaults()
	return &Dispatcher{
		sender:      sender,
		deadLetters: deadLetters,
		logger:      logger,
		metrics:     m,
		queue:       make(chan Message, cfg.QueueSize),
		cfg:         cfg,
	}
}

// Start launches the workers. They exit after Stop drains the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for msg := range d.queue {
				d.deliver(ctx, msg)
			}
		}()
	}
}

// Enqueue buffers the message without blocking
func (d *Dispatcher) Enqueue(ctx context.Context, msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}

	select {
	case d.queue <- msg:
		return nil
	default:
		d.logger.WarnContext(ctx, "mail queue full, dead-lettering message",
			slog.String("to", msg.To),
			slog.String("kind", msg.Kind))
		d.deadLetter(ctx, msg, 0, ErrQueueFull)
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for in-flight messages
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	backoff := retry.WithMaxRetries(d.cfg.MaxRetries, retry.NewExponential(d.cfg.BaseDelay))

	attempts := 0
	var lastErr error
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if err := d.sender.Send(ctx, msg); err != nil {
			lastErr = err
			d.logger.WarnContext(ctx, "mail delivery attempt failed",
				slog.String("to", msg.To),
				slog.String("kind", msg.Kind),
				slog.Int("attempt", attempts),
				slog.Any("error", err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err == nil {
		d.metrics.ObserveMail("sent")
		d.logger.InfoContext(ctx, "mail sent",
			slog.String("to", msg.To),
			slog.String("kind", msg.Kind))
		return
	}

	if lastErr == nil {
		lastErr = err
	}
	d.logger.ErrorContext(ctx, "mail delivery failed, dead-lettering",
		slog.String("to", msg.To),
		slog.String("kind", msg.Kind),
		slog.Int("attempts", attempts),
		slog.Any("error", lastErr))
	d.deadLetter(ctx, msg, attempts, lastErr)
}

func (d *Dispatcher) deadLetter(ctx context.Context, msg Message, attempts int, cause error) {
	d.metrics.ObserveMail("dead_letter")

	letter := &models.MailDeadLetter{
		ID:        uuid.New().String(),
		Recipient: msg.To,
		Subject:   msg.Subject,
		Kind:      msg.Kind,
		LastError: cause.Error(),
		Attempts:  attempts,
		CreatedAt: time.Now().UTC(),
	}
	// Запись не должна теряться при отмене контекста запроса или shutdown
	if err := d.deadLetters.SaveDeadLetter(context.WithoutCancel(ctx), letter); err != nil {
		d.logger.ErrorContext(ctx, "failed to save dead letter",
			slog.String("to", msg.To),
			slog.Any("error", fmt.Errorf("save dead letter: %w", err)))
	}
}

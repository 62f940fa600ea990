package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/iudanet/securehub/internal/models"
)

// DefaultSubjectPrefix is used when no prefix is configured
const DefaultSubjectPrefix = "securehub.events"

// NATSConn is the subset of *nats.Conn used by the publisher
type NATSConn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher forwards events to NATS so other services can react to them.
// Subjects are <prefix>.everyone, <prefix>.department.<dept>, <prefix>.user.<id>.
type NATSPublisher struct {
	conn   NATSConn
	logger *slog.Logger
	prefix string
}

// ConnectNATS dials the server with reconnects enabled
func ConnectNATS(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("securehub"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return conn, nil
}

// NewNATSPublisher creates a publisher on an established connection
func NewNATSPublisher(conn NATSConn, prefix string, logger *slog.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: conn, prefix: prefix, logger: logger}
}

// Subject returns the NATS subject for the audience
func (p *NATSPublisher) Subject(audience Audience) string {
	switch audience.Scope {
	case models.ScopeDepartment:
		return p.prefix + ".department." + audience.Target
	case models.ScopeUser:
		return p.prefix + ".user." + audience.Target
	default:
		return p.prefix + "." + RoomEveryone
	}
}

func (p *NATSPublisher) Publish(ctx context.Context, audience Audience, event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to marshal event", slog.Any("error", err))
		return
	}

	subject := p.Subject(audience)
	// nats.Conn.Publish буферизует и не блокирует
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.ErrorContext(ctx, "failed to publish event",
			slog.String("subject", subject),
			slog.Any("error", err))
	}
}

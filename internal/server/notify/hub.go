package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/iudanet/securehub/internal/models"
)

const (
	subscriberBuffer = 32
	writeTimeout     = 5 * time.Second
)

// IdentityResolver turns a session token into the caller identity
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (models.Identity, error)
}

// Subscription receives events for the rooms it joined
type Subscription struct {
	events chan Event
	rooms  []string
}

// Events returns the delivery channel. It is closed by Unsubscribe.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Hub keeps websocket subscribers grouped by room
type Hub struct {
	logger   *slog.Logger
	resolver IdentityResolver
	rooms    map[string]map[*Subscription]struct{}
	origins  []string
	dropped  func()
	mu       sync.RWMutex
}

// HubOption configures a Hub
type HubOption func(*Hub)

// WithOriginPatterns allows cross-origin websocket handshakes from the given hosts
func WithOriginPatterns(patterns []string) HubOption {
	return func(h *Hub) {
		h.origins = patterns
	}
}

// WithDropCounter is called every time an event is dropped for a slow subscriber
func WithDropCounter(fn func()) HubOption {
	return func(h *Hub) {
		h.dropped = fn
	}
}

// NewHub creates an empty hub
func NewHub(logger *slog.Logger, resolver IdentityResolver, opts ...HubOption) *Hub {
	h := &Hub{
		logger:   logger,
		resolver: resolver,
		rooms:    make(map[string]map[*Subscription]struct{}),
		dropped:  func() {},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe joins the given rooms
func (h *Hub) Subscribe(rooms ...string) *Subscription {
	sub := &Subscription{
		events: make(chan Event, subscriberBuffer),
		rooms:  rooms,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range rooms {
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[*Subscription]struct{})
			h.rooms[room] = members
		}
		members[sub] = struct{}{}
	}
	return sub
}

// Unsubscribe leaves all rooms and closes the event channel
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range sub.rooms {
		members := h.rooms[room]
		delete(members, sub)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	close(sub.events)
}

// Publish delivers the event to every subscriber of the audience room.
// A subscriber whose buffer is full misses the event.
func (h *Hub) Publish(ctx context.Context, audience Audience, event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.rooms[audience.Room()] {
		select {
		case sub.events <- event:
		default:
			h.dropped()
			h.logger.WarnContext(ctx, "dropping event for slow subscriber",
				slog.String("room", audience.Room()),
				slog.String("type", event.Type))
		}
	}
}

// ServeHTTP handles GET /ws?token=<session token>
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Unauthorized: missing token", http.StatusUnauthorized)
		return
	}
	id, err := h.resolver.Resolve(ctx, token)
	if err != nil {
		h.logger.WarnContext(ctx, "websocket handshake rejected", slog.Any("error", err))
		http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.WarnContext(ctx, "websocket accept failed", slog.Any("error", err))
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub := h.Subscribe(RoomsFor(id)...)
	defer h.Unsubscribe(sub)

	h.logger.InfoContext(ctx, "websocket connected", slog.String("user_id", id.UserID))

	// Входящие сообщения не обрабатываются, читаем только чтобы заметить закрытие
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case evt := <-sub.events:
			writeCtx, cancelWrite := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, evt)
			cancelWrite()
			if err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}

// Package notify fans realtime events out to the audience a file was shared with.
package notify

import (
	"context"
	"time"

	"github.com/iudanet/securehub/internal/models"
)

// EventFileShared is published after a successful upload
const EventFileShared = "file:shared"

// RoomEveryone is joined by every connected user
const RoomEveryone = "everyone"

// Audience is the set of users an event is addressed to
type Audience struct {
	Scope  models.Scope
	Target string // department или user id; пусто для everyone
}

// Everyone addresses every user
func Everyone() Audience {
	return Audience{Scope: models.ScopeEveryone}
}

// Department addresses all members of dept
func Department(dept models.Department) Audience {
	return Audience{Scope: models.ScopeDepartment, Target: string(dept)}
}

// User addresses a single user
func User(userID string) Audience {
	return Audience{Scope: models.ScopeUser, Target: userID}
}

// AudienceFor maps a file visibility onto the matching audience
func AudienceFor(v models.Visibility) Audience {
	switch v.Scope {
	case models.ScopeDepartment:
		return Department(v.TargetDepartment)
	case models.ScopeUser:
		return User(v.TargetUserID)
	default:
		return Everyone()
	}
}

// Room returns the websocket room name: everyone, department:<dept> or user:<id>
func (a Audience) Room() string {
	switch a.Scope {
	case models.ScopeDepartment:
		return "department:" + a.Target
	case models.ScopeUser:
		return "user:" + a.Target
	default:
		return RoomEveryone
	}
}

// RoomsFor returns every room an identity belongs to
func RoomsFor(id models.Identity) []string {
	return []string{
		RoomEveryone,
		Department(id.Department).Room(),
		User(id.UserID).Room(),
	}
}

// Event is the payload delivered to subscribers
type Event struct {
	Time    time.Time `json:"time"`
	Payload any       `json:"payload,omitempty"`
	Type    string    `json:"type"`
}

// Notifier publishes events. Publish never blocks the caller on slow consumers
// and failures are handled by the implementation.
type Notifier interface {
	Publish(ctx context.Context, audience Audience, event Event)
}

// Nop discards every event
type Nop struct{}

func (Nop) Publish(context.Context, Audience, Event) {}

// Multi publishes to every wrapped notifier in order
type Multi []Notifier

func (m Multi) Publish(ctx context.Context, audience Audience, event Event) {
	for _, n := range m {
		n.Publish(ctx, audience, event)
	}
}

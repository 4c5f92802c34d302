package events

import (
	"context"
	"time"
)

const TopicSessionEvents = "session_events"

const (
	TypeUserRegistered = "user.registered"
	TypeLoggedIn       = "session.loggedIn"
	TypeLoggedOut      = "session.loggedOut"
)

type SessionEvent struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"`
	UserID uint      `json:"user_id"`
	At     time.Time `json:"at"`
}

// Publisher is the fire-and-forget outbound port. Callers never block a
// request on subscriber completion; failures are logged, not returned to
// the client.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, event interface{}) error
}

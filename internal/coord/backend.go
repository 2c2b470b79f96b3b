// Package coord holds shared session state and the lifecycle event channel.
//
// A Store talks to one Backend (redis or sqlite). When the backend cannot be
// reached the store switches to an in-process map for the rest of its life.
package coord

import (
	"context"
	"time"
)

// SessionKeyPrefix prefixes every session hash key.
const SessionKeyPrefix = "nexus:session:"

// DefaultChannel is the pub/sub channel used for lifecycle events.
const DefaultChannel = "nexus:events"

// SessionKey returns the backend key for a session.
func SessionKey(sessionID string) string {
	return SessionKeyPrefix + sessionID
}

// Backend is a shared key/value and pub/sub service.
type Backend interface {
	// Name identifies the backend in logs and status output.
	Name() string
	Ping(ctx context.Context) error
	// SaveSession merges fields into the session record and refreshes its TTL.
	// A zero ttl keeps the record forever.
	SaveSession(ctx context.Context, sessionID string, fields map[string]string, ttl time.Duration) error
	// LoadSession returns all fields, or ErrSessionNotFound.
	LoadSession(ctx context.Context, sessionID string) (map[string]string, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Close() error
}

// Subscription is an open subscriber connection.
type Subscription interface {
	// Messages is closed when the subscription ends.
	Messages() <-chan []byte
	Close() error
}

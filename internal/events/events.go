package events

import (
	"context"
	"strings"

	"github.com/safespace/server/internal/model"
)

// TopicAuthAll matches every auth topic
const TopicAuthAll = "safespace.auth.>"

const (
	TopicSignedIn             = "safespace.auth.signed_in"
	TopicSignedOut            = "safespace.auth.signed_out"
	TopicTokenRefreshed       = "safespace.auth.token_refreshed"
	TopicMFAChallengeVerified = "safespace.auth.mfa_challenge_verified"
	TopicUserUpdated          = "safespace.auth.user_updated"

	TopicUserCreated    = "safespace.auth.user_created"
	TopicUserDeleted    = "safespace.auth.user_deleted"
	TopicFactorEnrolled = "safespace.auth.factor_enrolled"
	TopicIdentityLinked = "safespace.auth.identity_linked"
)

// TopicFor maps a session event to its topic
func TopicFor(t model.AuthEventType) string {
	switch t {
	case model.EventSignedIn:
		return TopicSignedIn
	case model.EventSignedOut:
		return TopicSignedOut
	case model.EventTokenRefreshed:
		return TopicTokenRefreshed
	case model.EventMFAChallengeVerified:
		return TopicMFAChallengeVerified
	default:
		return TopicUserUpdated
	}
}

// Topic payloads not covered by model.AuthEvent

type UserCreated struct {
	UserID string `json:"user_id"`
}

type UserDeleted struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

type FactorEnrolled struct {
	UserID   string `json:"user_id"`
	FactorID string `json:"factor_id"`
}

type IdentityLinked struct {
	UserID   string `json:"user_id"`
	Provider string `json:"provider"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers raw event payloads on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}

// IsAuthTopic reports whether topic belongs to the auth namespace
func IsAuthTopic(topic string) bool {
	return strings.HasPrefix(topic, "safespace.auth.")
}

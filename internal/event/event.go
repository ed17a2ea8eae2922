package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeLoginSucceeded   Type = "auth.login"
	TypeLoginFailed      Type = "auth.login_failed"
	TypeLoggedOut        Type = "auth.logout"
	TypeIdentityRestored Type = "auth.restored"
	TypeRecordDiscarded  Type = "auth.record_discarded"

	TypeSessionStarted   Type = "session.started"
	TypeSessionActivity  Type = "session.activity"
	TypeSessionReset     Type = "session.reset"
	TypeSessionWarning   Type = "session.warning"
	TypeSessionCountdown Type = "session.countdown"
	TypeSessionExpired   Type = "session.expired"
	TypeSessionEnded     Type = "session.ended"

	TypeTransferCompleted Type = "transfer.completed"
	TypeTransferFailed    Type = "transfer.failed"
)

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp string `json:"timestamp"`
	ActorID   string `json:"actor_id,omitempty"` // identity the event concerns
}

func New(t Type, actorID string, payload any, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   payload,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		ActorID:   actorID,
	}
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}

// Discard is a Bus that drops everything.
type Discard struct{}

func (Discard) Publish(Event) {}

func (Discard) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event)
	return ch, func() {}
}

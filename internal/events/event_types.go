package events

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketAssigned      EventType = "ticket_assigned"
)

// AllEventTypes lists every published event type.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketStatusChanged,
	EventTicketAssigned,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

// ActorFrom converts a workflow actor.
func ActorFrom(actor domain.Actor) Actor {
	return Actor{UserID: actor.UserID, Role: actor.Role.String()}
}

// Event represents a domain event emitted by services after commit.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  int64       `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Subject string `json:"subject"`
	OwnerID int64  `json:"owner_id"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	CommentID     int64                 `json:"comment_id"`
	OldStatus     domain.TicketStatus   `json:"old_status"`
	NewStatus     domain.TicketStatus   `json:"new_status"`
	ClosingReason *domain.ClosingReason `json:"closing_reason,omitempty"`
	OwnerID       int64                 `json:"owner_id"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	OldOwnerID   int64  `json:"old_owner_id"`
	NewOwnerID   int64  `json:"new_owner_id"`
	NewOwnerName string `json:"new_owner_name"`
}

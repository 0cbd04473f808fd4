package dto

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// CreateTicketRequest payload. OwnerID defaults to the caller.
type CreateTicketRequest struct {
	Subject            string          `json:"subject"`
	Description        string          `json:"description"`
	AuthorName         string          `json:"author_name"`
	OrderID            *int64          `json:"order_id"`
	OrderPayload       json.RawMessage `json:"order_payload"`
	ProcessInstanceKey *int64          `json:"process_instance_key"`
	OwnerID            int64           `json:"owner_id"`
}

// TransitionRequest payload for POST /tickets/:id/transitions.
type TransitionRequest struct {
	Status        domain.TicketStatus   `json:"status"`
	Comment       string                `json:"comment"`
	ClosingReason *domain.ClosingReason `json:"closing_reason"`
}

// AssignRequest payload for PUT /tickets/:id/assignee.
type AssignRequest struct {
	UserID int64 `json:"user_id"`
}

// TicketSummary response.
type TicketSummary struct {
	ID         int64               `json:"id"`
	Subject    string              `json:"subject"`
	AuthorName string              `json:"author_name"`
	OwnerID    int64               `json:"owner_id"`
	Status     domain.TicketStatus `json:"status"`
	Version    int64               `json:"version"`
	CreatedAt  time.Time           `json:"created_at"`
	AcceptedAt *time.Time          `json:"accepted_at"`
	ClosedAt   *time.Time          `json:"closed_at"`
}

// TicketDetailResponse provides full ticket info with its history, most recent first.
type TicketDetailResponse struct {
	TicketSummary
	Description        string                `json:"description"`
	OrderID            *int64                `json:"order_id"`
	OrderPayload       json.RawMessage       `json:"order_payload,omitempty"`
	ProcessInstanceKey *int64                `json:"process_instance_key"`
	AllowedTransitions []domain.TicketStatus `json:"allowed_transitions"`
	Comments           []CommentResponse     `json:"comments"`
}

// CommentResponse represents one status change.
type CommentResponse struct {
	ID            int64                 `json:"id"`
	UserID        *int64                `json:"user_id"`
	Body          string                `json:"body"`
	Status        domain.TicketStatus   `json:"status"`
	ClosingReason *domain.ClosingReason `json:"closing_reason,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}

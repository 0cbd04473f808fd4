package domain

import (
	"encoding/json"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "NEW"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusPostponed  TicketStatus = "POSTPONED"
	TicketStatusCompleted  TicketStatus = "COMPLETED"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusNew, TicketStatusInProgress, TicketStatusPostponed, TicketStatusCompleted:
		return true
	}
	return false
}

// ClosingReason explains why a ticket was completed.
type ClosingReason string

const (
	ClosingReasonResolved             ClosingReason = "RESOLVED"
	ClosingReasonTransferredToClaims  ClosingReason = "TRANSFERRED_TO_CLAIMS"
	ClosingReasonTransferredToService ClosingReason = "TRANSFERRED_TO_SERVICE"
	ClosingReasonTransferredToOP      ClosingReason = "TRANSFERRED_TO_OP"
)

// Valid reports whether r is a known closing reason.
func (r ClosingReason) Valid() bool {
	switch r {
	case ClosingReasonResolved, ClosingReasonTransferredToClaims, ClosingReasonTransferredToService, ClosingReasonTransferredToOP:
		return true
	}
	return false
}

// MaxInProgressPerUser caps how many tickets one user may hold IN_PROGRESS.
const MaxInProgressPerUser = 3

// Ticket is the aggregate for support requests.
//
// Status is derived from the comment history on every read and is never
// persisted on the ticket row.
type Ticket struct {
	ID                 int64
	Subject            string
	Description        string
	AuthorName         string
	OrderID            *int64
	OrderPayload       json.RawMessage
	ProcessInstanceKey *int64
	OwnerID            int64
	Status             TicketStatus
	Version            int64
	CreatedAt          time.Time
	AcceptedAt         *time.Time
	ClosedAt           *time.Time
}

// IsTerminal reports whether no further transitions are possible.
func (t *Ticket) IsTerminal() bool {
	return t.Status == TicketStatusCompleted
}

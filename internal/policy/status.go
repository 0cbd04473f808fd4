package policy

import "github.com/spec-kit/support-desk/internal/domain"

// Rejection names why a transition is not allowed. The zero value means allowed.
type Rejection string

const (
	Allowed                 Rejection = ""
	InvalidTransition       Rejection = "INVALID_TRANSITION"
	MissingComment          Rejection = "MISSING_COMMENT"
	MissingClosingReason    Rejection = "MISSING_CLOSING_REASON"
	UnexpectedClosingReason Rejection = "UNEXPECTED_CLOSING_REASON"
)

type edge struct {
	from domain.TicketStatus
	to   domain.TicketStatus
}

// commentOptional is true for acceptance edges, false for every other legal edge.
var transitionTable = map[edge]bool{
	{domain.TicketStatusNew, domain.TicketStatusInProgress}:       true,
	{domain.TicketStatusInProgress, domain.TicketStatusPostponed}: false,
	{domain.TicketStatusInProgress, domain.TicketStatusCompleted}: false,
	{domain.TicketStatusPostponed, domain.TicketStatusInProgress}: true,
	{domain.TicketStatusPostponed, domain.TicketStatusCompleted}:  false,
}

// EvaluateTransition checks the edge, then the comment, then the closing reason.
func EvaluateTransition(current, requested domain.TicketStatus, hasComment, hasClosingReason bool) Rejection {
	commentOptional, ok := transitionTable[edge{current, requested}]
	if !ok {
		return InvalidTransition
	}
	if !commentOptional && !hasComment {
		return MissingComment
	}
	if requested == domain.TicketStatusCompleted && !hasClosingReason {
		return MissingClosingReason
	}
	if requested != domain.TicketStatusCompleted && hasClosingReason {
		return UnexpectedClosingReason
	}
	return Allowed
}

// IsLegalTransition reports whether the edge exists in the table.
func IsLegalTransition(current, requested domain.TicketStatus) bool {
	_, ok := transitionTable[edge{current, requested}]
	return ok
}

var statusOrder = []domain.TicketStatus{
	domain.TicketStatusNew,
	domain.TicketStatusInProgress,
	domain.TicketStatusPostponed,
	domain.TicketStatusCompleted,
}

// AllowedTargets lists statuses reachable from current in a stable order.
func AllowedTargets(current domain.TicketStatus) []domain.TicketStatus {
	targets := []domain.TicketStatus{}
	for _, candidate := range statusOrder {
		if IsLegalTransition(current, candidate) {
			targets = append(targets, candidate)
		}
	}
	return targets
}

package policy

import "github.com/spec-kit/support-desk/internal/domain"

// Visibility scopes ticket queries for an actor.
type Visibility struct {
	// All grants every ticket.
	All bool
	// OwnerID, when non-zero, grants tickets owned by that user.
	OwnerID int64
	// IncludeUnclaimed grants tickets whose history is still empty.
	IncludeUnclaimed bool
}

// None reports whether the visibility grants nothing.
func (v Visibility) None() bool {
	return !v.All && v.OwnerID == 0 && !v.IncludeUnclaimed
}

// Allows evaluates the scope against a loaded ticket.
func (v Visibility) Allows(ticket *domain.Ticket) bool {
	if ticket == nil {
		return false
	}
	if v.All {
		return true
	}
	if v.OwnerID != 0 && ticket.OwnerID == v.OwnerID {
		return true
	}
	return v.IncludeUnclaimed && ticket.Status == domain.TicketStatusNew
}

// VisibilityFor returns the ticket scope of an actor.
func VisibilityFor(actor domain.Actor) Visibility {
	switch actor.Role {
	case domain.RoleAdmin, domain.RoleManager:
		return Visibility{All: true}
	case domain.RoleEmployee:
		return Visibility{OwnerID: actor.UserID, IncludeUnclaimed: true}
	default:
		return Visibility{}
	}
}

// CanRead reports whether the actor may see the ticket.
func CanRead(actor domain.Actor, ticket *domain.Ticket) bool {
	return VisibilityFor(actor).Allows(ticket)
}

// CanTransition reports whether the actor may move the ticket to requested.
// Employees act on their own tickets or claim a NEW one.
func CanTransition(actor domain.Actor, ticket *domain.Ticket, requested domain.TicketStatus) bool {
	if ticket == nil {
		return false
	}
	switch actor.Role {
	case domain.RoleAdmin, domain.RoleManager:
		return true
	case domain.RoleEmployee:
		if ticket.OwnerID == actor.UserID {
			return true
		}
		return ticket.Status == domain.TicketStatusNew && requested == domain.TicketStatusInProgress
	default:
		return false
	}
}

// CanAssign reports whether the actor may change ticket ownership.
func CanAssign(actor domain.Actor) bool {
	return actor.IsSupervisor()
}

// CanCreate reports whether the actor may open tickets on behalf of customers.
func CanCreate(actor domain.Actor) bool {
	return actor.Role != domain.RoleNone
}

// CanViewReports reports whether the actor may read SLA reports.
func CanViewReports(actor domain.Actor) bool {
	return actor.IsSupervisor()
}

package domain

import "strings"

// Role is the strongest support role held by an actor.
type Role int

const (
	RoleNone Role = iota
	RoleEmployee
	RoleManager
	RoleAdmin
)

// Role names as issued by the identity provider.
const (
	RoleNameEmployee = "SUPPORT_EMPLOYEE"
	RoleNameManager  = "SUPPORT_MANAGER"
	RoleNameAdmin    = "ADMIN"
)

func (r Role) String() string {
	switch r {
	case RoleEmployee:
		return RoleNameEmployee
	case RoleManager:
		return RoleNameManager
	case RoleAdmin:
		return RoleNameAdmin
	default:
		return "NONE"
	}
}

// RoleFromNames picks the strongest known role from an identity role set.
// Unknown names are ignored.
func RoleFromNames(names []string) Role {
	role := RoleNone
	for _, name := range names {
		var candidate Role
		switch strings.ToUpper(strings.TrimSpace(name)) {
		case RoleNameAdmin:
			candidate = RoleAdmin
		case RoleNameManager:
			candidate = RoleManager
		case RoleNameEmployee:
			candidate = RoleEmployee
		default:
			continue
		}
		if candidate > role {
			role = candidate
		}
	}
	return role
}

// Actor is the caller of a workflow operation.
type Actor struct {
	UserID int64
	Role   Role
}

// IsSupervisor reports whether the actor may act on any ticket.
func (a Actor) IsSupervisor() bool {
	return a.Role == RoleManager || a.Role == RoleAdmin
}

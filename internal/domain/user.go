package domain

import "strings"

// User is a support staff member that can own tickets.
type User struct {
	ID        int64
	Email     string
	FirstName string
	LastName  string
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

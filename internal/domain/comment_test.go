package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCurrentStatus_EmptyHistoryIsNew(t *testing.T) {
	assert.Equal(t, TicketStatusNew, CurrentStatus(nil))
	assert.Equal(t, TicketStatusNew, CurrentStatus([]Comment{}))
}

func TestCurrentStatus_LatestCommentWinsInAnyOrder(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	history := []Comment{
		{ID: 1, Status: TicketStatusInProgress, CreatedAt: base},
		{ID: 2, Status: TicketStatusPostponed, CreatedAt: base.Add(time.Minute)},
		{ID: 3, Status: TicketStatusInProgress, CreatedAt: base.Add(2 * time.Minute)},
		{ID: 4, Status: TicketStatusCompleted, CreatedAt: base.Add(3 * time.Minute)},
	}

	for _, perm := range permutations(len(history)) {
		shuffled := make([]Comment, len(history))
		for i, idx := range perm {
			shuffled[i] = history[idx]
		}
		assert.Equal(t, TicketStatusCompleted, CurrentStatus(shuffled), "order %v", perm)
	}
}

func TestCurrentStatus_EqualTimestampsPreferHigherID(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	history := []Comment{
		{ID: 8, Status: TicketStatusPostponed, CreatedAt: at},
		{ID: 7, Status: TicketStatusInProgress, CreatedAt: at},
	}
	assert.Equal(t, TicketStatusPostponed, CurrentStatus(history))
}

func TestRoleFromNames(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  Role
	}{
		{name: "empty", roles: nil, want: RoleNone},
		{name: "unknown", roles: []string{"CUSTOMER"}, want: RoleNone},
		{name: "employee", roles: []string{"support_employee"}, want: RoleEmployee},
		{name: "strongest wins", roles: []string{RoleNameEmployee, RoleNameAdmin, RoleNameManager}, want: RoleAdmin},
		{name: "manager", roles: []string{"x", RoleNameManager}, want: RoleManager},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RoleFromNames(tt.roles))
		})
	}
}

func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for i := 0; i <= len(p); i++ {
			next := make([]int, 0, n)
			next = append(next, p[:i]...)
			next = append(next, n-1)
			next = append(next, p[i:]...)
			out = append(out, next)
		}
	}
	return out
}

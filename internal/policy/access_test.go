package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/support-desk/internal/domain"
)

func TestVisibilityFor(t *testing.T) {
	tickets := []*domain.Ticket{
		{ID: 1, OwnerID: 10, Status: domain.TicketStatusNew},
		{ID: 2, OwnerID: 10, Status: domain.TicketStatusInProgress},
		{ID: 3, OwnerID: 20, Status: domain.TicketStatusInProgress},
		{ID: 4, OwnerID: 20, Status: domain.TicketStatusNew},
		{ID: 5, OwnerID: 30, Status: domain.TicketStatusCompleted},
	}

	tests := []struct {
		name  string
		actor domain.Actor
		want  []int64
	}{
		{name: "admin sees all", actor: domain.Actor{UserID: 99, Role: domain.RoleAdmin}, want: []int64{1, 2, 3, 4, 5}},
		{name: "manager sees all", actor: domain.Actor{UserID: 98, Role: domain.RoleManager}, want: []int64{1, 2, 3, 4, 5}},
		{name: "employee sees own and unclaimed", actor: domain.Actor{UserID: 10, Role: domain.RoleEmployee}, want: []int64{1, 2, 4}},
		{name: "employee without tickets sees only new", actor: domain.Actor{UserID: 77, Role: domain.RoleEmployee}, want: []int64{1, 4}},
		{name: "no role sees nothing", actor: domain.Actor{UserID: 10}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vis := VisibilityFor(tt.actor)
			var got []int64
			for _, ticket := range tickets {
				if vis.Allows(ticket) {
					got = append(got, ticket.ID)
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}

	assert.True(t, VisibilityFor(domain.Actor{UserID: 1}).None())
	assert.False(t, VisibilityFor(domain.Actor{UserID: 1, Role: domain.RoleEmployee}).None())
}

func TestCanTransition(t *testing.T) {
	owned := &domain.Ticket{OwnerID: 10, Status: domain.TicketStatusInProgress}
	fresh := &domain.Ticket{OwnerID: 20, Status: domain.TicketStatusNew}
	employee := domain.Actor{UserID: 10, Role: domain.RoleEmployee}
	other := domain.Actor{UserID: 11, Role: domain.RoleEmployee}
	manager := domain.Actor{UserID: 50, Role: domain.RoleManager}

	assert.True(t, CanTransition(employee, owned, domain.TicketStatusPostponed))
	assert.False(t, CanTransition(other, owned, domain.TicketStatusPostponed))
	assert.False(t, CanTransition(other, owned, domain.TicketStatusInProgress))
	assert.True(t, CanTransition(other, fresh, domain.TicketStatusInProgress))
	assert.False(t, CanTransition(other, fresh, domain.TicketStatusCompleted))
	assert.True(t, CanTransition(manager, owned, domain.TicketStatusCompleted))
	assert.False(t, CanTransition(domain.Actor{UserID: 10}, owned, domain.TicketStatusPostponed))
	assert.False(t, CanTransition(employee, nil, domain.TicketStatusInProgress))
}

func TestCanAssign(t *testing.T) {
	assert.True(t, CanAssign(domain.Actor{Role: domain.RoleAdmin}))
	assert.True(t, CanAssign(domain.Actor{Role: domain.RoleManager}))
	assert.False(t, CanAssign(domain.Actor{Role: domain.RoleEmployee}))
	assert.False(t, CanAssign(domain.Actor{}))
}

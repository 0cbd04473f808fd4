package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/repository"
)

type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), step: time.Minute}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordedEvents) handle(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordedEvents) ofType(eventType events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []events.Event{}
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type deskFixture struct {
	store       *repository.MemoryStore
	clock       *stepClock
	recorded    *recordedEvents
	tickets     *TicketService
	transitions *TransitionService
	assignments *AssignmentService

	employeeA domain.Actor
	employeeB domain.Actor
	manager   domain.Actor
	admin     domain.Actor
}

func newDeskFixture(t *testing.T) *deskFixture {
	t.Helper()

	store := repository.NewMemoryStore()
	clock := newStepClock()
	dispatcher := events.NewInMemoryDispatcher(nil)
	recorded := &recordedEvents{}
	for _, eventType := range events.AllEventTypes {
		dispatcher.Subscribe(eventType, recorded.handle)
	}

	f := &deskFixture{
		store:    store,
		clock:    clock,
		recorded: recorded,
		tickets: NewTicketService(TicketDependencies{
			Store: store, Dispatcher: dispatcher, Clock: clock.Now,
		}),
		transitions: NewTransitionService(TransitionDependencies{
			Store: store, Dispatcher: dispatcher, Clock: clock.Now,
		}),
		assignments: NewAssignmentService(AssignmentDependencies{
			Store: store, Dispatcher: dispatcher,
		}),
	}
	f.employeeA = f.addUser(t, "anna@desk.test", domain.RoleEmployee)
	f.employeeB = f.addUser(t, "boris@desk.test", domain.RoleEmployee)
	f.manager = f.addUser(t, "maria@desk.test", domain.RoleManager)
	f.admin = f.addUser(t, "root@desk.test", domain.RoleAdmin)
	return f
}

func (f *deskFixture) addUser(t *testing.T, email string, role domain.Role) domain.Actor {
	t.Helper()
	user := &domain.User{Email: email, FirstName: "Test", LastName: role.String()}
	require.NoError(t, f.store.Users().Create(context.Background(), user))
	return domain.Actor{UserID: user.ID, Role: role}
}

// newTicket creates a NEW ticket owned by ownerID.
func (f *deskFixture) newTicket(t *testing.T, subject string, ownerID int64) *domain.Ticket {
	t.Helper()
	ticket, err := f.tickets.Create(context.Background(), f.manager, TicketCreateInput{
		Subject: subject,
		OwnerID: ownerID,
	})
	require.NoError(t, err)
	return ticket
}

func (f *deskFixture) move(t *testing.T, ticketID int64, actor domain.Actor, status domain.TicketStatus, comment string, reason *domain.ClosingReason) {
	t.Helper()
	_, err := f.transitions.Transition(context.Background(), TransitionInput{
		TicketID:      ticketID,
		Actor:         actor,
		Status:        status,
		Comment:       comment,
		ClosingReason: reason,
	})
	require.NoError(t, err)
}

func (f *deskFixture) reload(t *testing.T, ticketID int64) *domain.Ticket {
	t.Helper()
	ticket, err := f.store.Tickets().GetByID(context.Background(), ticketID)
	require.NoError(t, err)
	return ticket
}

func reasonPtr(r domain.ClosingReason) *domain.ClosingReason {
	return &r
}

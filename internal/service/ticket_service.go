package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/policy"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

// TicketService covers ticket intake and visibility-scoped reads.
type TicketService struct {
	store      repository.Store
	dispatcher events.Dispatcher
	now        Clock
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	Store      repository.Store
	Dispatcher events.Dispatcher
	Clock      Clock
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Subject            string
	Description        string
	AuthorName         string
	OrderID            *int64
	OrderPayload       json.RawMessage
	ProcessInstanceKey *int64
	// OwnerID defaults to the creating actor.
	OwnerID int64
}

// TicketListFilter describes listing filters applied on top of visibility.
type TicketListFilter struct {
	OwnerID     *int64
	Statuses    []domain.TicketStatus
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		now:        clockOrDefault(deps.Clock),
	}
}

// Create opens a ticket. Its status is NEW until the first comment.
func (s *TicketService) Create(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	if !policy.CanCreate(actor) {
		return nil, apperrors.NewForbidden("support role required")
	}
	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		return nil, apperrors.NewValidationError("subject required", map[string]any{"field": "subject"})
	}
	if len(input.OrderPayload) > 0 && !json.Valid(input.OrderPayload) {
		return nil, apperrors.NewValidationError("order payload must be valid JSON", map[string]any{"field": "order_payload"})
	}
	ownerID := input.OwnerID
	if ownerID == 0 {
		ownerID = actor.UserID
	}
	if _, err := s.store.Users().GetByID(ctx, ownerID); err != nil {
		return nil, mapStoreError(err, "user", map[string]any{"user_id": ownerID})
	}

	ticket := &domain.Ticket{
		Subject:            subject,
		Description:        strings.TrimSpace(input.Description),
		AuthorName:         strings.TrimSpace(input.AuthorName),
		OrderID:            input.OrderID,
		OrderPayload:       input.OrderPayload,
		ProcessInstanceKey: input.ProcessInstanceKey,
		OwnerID:            ownerID,
		CreatedAt:          s.now(),
	}
	if err := s.store.Tickets().Create(ctx, ticket); err != nil {
		return nil, mapStoreError(err, "ticket", nil)
	}

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.ActorFrom(actor),
		Payload: events.TicketCreatedPayload{
			Subject: ticket.Subject,
			OwnerID: ticket.OwnerID,
		},
	})
	return ticket, nil
}

// ListVisible returns the tickets the actor may see.
func (s *TicketService) ListVisible(ctx context.Context, actor domain.Actor, filter TicketListFilter) ([]domain.Ticket, error) {
	tickets, err := s.store.Tickets().List(ctx, repository.TicketFilter{
		Scope:       policy.VisibilityFor(actor),
		OwnerID:     filter.OwnerID,
		Statuses:    filter.Statuses,
		SearchTerm:  filter.SearchTerm,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	})
	if err != nil {
		return nil, mapStoreError(err, "ticket", nil)
	}
	return tickets, nil
}

// Get returns a ticket and its history, most recent comment first.
func (s *TicketService) Get(ctx context.Context, actor domain.Actor, ticketID int64) (*domain.Ticket, []domain.Comment, error) {
	ticket, err := s.store.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		return nil, nil, mapStoreError(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	if !policy.CanRead(actor, ticket) {
		return nil, nil, apperrors.NewForbidden("access denied")
	}
	history, err := s.store.Comments().ListByTicketDescending(ctx, ticket.ID)
	if err != nil {
		return nil, nil, mapStoreError(err, "ticket", nil)
	}
	return ticket, history, nil
}

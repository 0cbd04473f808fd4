package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/policy"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

// AssignmentService handles ticket ownership changes.
type AssignmentService struct {
	store      repository.Store
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	Store      repository.Store
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	return &AssignmentService{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		logger:     loggerOrNop(deps.Logger),
	}
}

// Assign hands the ticket to targetUserID. Only managers and admins may
// reassign, and completed tickets keep their last owner. No comment is written.
func (s *AssignmentService) Assign(ctx context.Context, ticketID int64, actor domain.Actor, targetUserID int64) error {
	if !policy.CanAssign(actor) {
		return apperrors.NewForbidden("insufficient role for assignment")
	}

	var (
		oldOwner int64
		assignee *domain.User
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		ticket, err := repos.Tickets().GetByID(ctx, ticketID)
		if err != nil {
			return mapStoreError(err, "ticket", map[string]any{"ticket_id": ticketID})
		}
		history, err := repos.Comments().ListByTicketDescending(ctx, ticket.ID)
		if err != nil {
			return err
		}
		ticket.Status = domain.CurrentStatus(history)
		if ticket.IsTerminal() {
			return apperrors.NewInvalidState("completed tickets cannot be reassigned", map[string]any{
				"ticket_id": ticket.ID,
				"status":    ticket.Status,
			})
		}
		user, err := repos.Users().GetByID(ctx, targetUserID)
		if err != nil {
			return mapStoreError(err, "user", map[string]any{"user_id": targetUserID})
		}
		assignee = user
		oldOwner = ticket.OwnerID
		return repos.Tickets().SetOwner(ctx, ticket, targetUserID)
	})
	if err != nil {
		err = mapStoreError(err, "ticket", map[string]any{"ticket_id": ticketID})
		if apperrors.IsCode(err, apperrors.CodeStorageUnavailable) {
			s.logger.Error("ticket assignment failed", zap.Int64("ticket_id", ticketID), zap.Error(err))
		}
		return err
	}

	s.logger.Info("ticket assigned",
		zap.Int64("ticket_id", ticketID),
		zap.Int64("actor_id", actor.UserID),
		zap.Int64("old_owner_id", oldOwner),
		zap.Int64("new_owner_id", targetUserID))

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticketID,
		Actor:    events.ActorFrom(actor),
		Payload: events.TicketAssignedPayload{
			OldOwnerID:   oldOwner,
			NewOwnerID:   targetUserID,
			NewOwnerName: assignee.FullName(),
		},
	})
	return nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/policy"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

// TransitionService moves tickets through their status lifecycle.
type TransitionService struct {
	store      repository.Store
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        Clock
}

// TransitionDependencies bundles collaborators for the transition service.
type TransitionDependencies struct {
	Store      repository.Store
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      Clock
}

// TransitionInput describes a requested status change.
type TransitionInput struct {
	TicketID      int64
	Actor         domain.Actor
	Status        domain.TicketStatus
	Comment       string
	ClosingReason *domain.ClosingReason
}

// NewTransitionService constructs the service.
func NewTransitionService(deps TransitionDependencies) *TransitionService {
	return &TransitionService{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     loggerOrNop(deps.Logger),
		now:        clockOrDefault(deps.Clock),
	}
}

// Transition validates and records a status change as a new comment. The
// read of the current status, the work-in-progress count and the append
// commit together or not at all.
func (s *TransitionService) Transition(ctx context.Context, input TransitionInput) (*domain.Comment, error) {
	if !input.Status.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": input.Status})
	}
	if input.ClosingReason != nil && !input.ClosingReason.Valid() {
		return nil, apperrors.NewValidationError("unknown closing reason", map[string]any{"closing_reason": *input.ClosingReason})
	}

	var (
		created  *domain.Comment
		previous domain.TicketStatus
		ownerID  int64
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		ticket, err := repos.Tickets().GetByID(ctx, input.TicketID)
		if err != nil {
			return mapStoreError(err, "ticket", map[string]any{"ticket_id": input.TicketID})
		}
		history, err := repos.Comments().ListByTicketDescending(ctx, ticket.ID)
		if err != nil {
			return err
		}
		ticket.Status = domain.CurrentStatus(history)
		previous = ticket.Status

		if !policy.CanTransition(input.Actor, ticket, input.Status) {
			return apperrors.NewForbidden("not allowed to change the status of this ticket")
		}

		body := strings.TrimSpace(input.Comment)
		if rejection := policy.EvaluateTransition(ticket.Status, input.Status, body != "", input.ClosingReason != nil); rejection != policy.Allowed {
			return rejectionError(rejection, ticket.Status, input.Status)
		}

		if input.Status == domain.TicketStatusInProgress {
			if err := s.enforceWorkInProgressCap(ctx, repos, input.Actor.UserID, ticket.ID); err != nil {
				return err
			}
		}

		now := s.now()
		// keep history ordered even if this node's clock lags the previous writer
		if latest := domain.LatestComment(history); latest != nil && now.Before(latest.CreatedAt) {
			now = latest.CreatedAt
		}

		// an employee accepting a NEW ticket takes it over; supervisors leave ownership to assignment
		if ticket.Status == domain.TicketStatusNew && input.Status == domain.TicketStatusInProgress &&
			input.Actor.Role == domain.RoleEmployee && ticket.OwnerID != input.Actor.UserID {
			if err := repos.Tickets().SetOwner(ctx, ticket, input.Actor.UserID); err != nil {
				return err
			}
		}
		if input.Status == domain.TicketStatusInProgress && ticket.AcceptedAt == nil {
			ticket.AcceptedAt = &now
		}
		if input.Status == domain.TicketStatusCompleted {
			ticket.ClosedAt = &now
		}

		actorID := input.Actor.UserID
		comment := &domain.Comment{
			TicketID:      ticket.ID,
			UserID:        &actorID,
			Body:          body,
			Status:        input.Status,
			ClosingReason: input.ClosingReason,
			CreatedAt:     now,
		}
		if err := repos.Comments().Append(ctx, comment); err != nil {
			return err
		}
		if err := repos.Tickets().UpdateTimestamps(ctx, ticket); err != nil {
			return err
		}
		created = comment
		ownerID = ticket.OwnerID
		return nil
	})
	if err != nil {
		err = mapStoreError(err, "ticket", map[string]any{"ticket_id": input.TicketID})
		s.recordFailure(input, err)
		return nil, err
	}

	s.metrics.RecordTransition(string(input.Status), "ok")
	s.logger.Info("ticket status changed",
		zap.Int64("ticket_id", input.TicketID),
		zap.Int64("actor_id", input.Actor.UserID),
		zap.String("from", string(previous)),
		zap.String("to", string(input.Status)))

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: input.TicketID,
		Actor:    events.ActorFrom(input.Actor),
		Payload: events.TicketStatusChangedPayload{
			CommentID:     created.ID,
			OldStatus:     previous,
			NewStatus:     created.Status,
			ClosingReason: created.ClosingReason,
			OwnerID:       ownerID,
		},
	})
	return created, nil
}

func (s *TransitionService) enforceWorkInProgressCap(ctx context.Context, repos repository.Repositories, userID, ticketID int64) error {
	// serializes concurrent claims by the same user so the count stays exact
	if _, err := repos.Users().LockByID(ctx, userID); err != nil {
		return mapStoreError(err, "user", map[string]any{"user_id": userID})
	}
	count, err := repos.Tickets().CountByOwnerInStatus(ctx, userID, domain.TicketStatusInProgress, ticketID)
	if err != nil {
		return err
	}
	if count < domain.MaxInProgressPerUser {
		return nil
	}
	blocking, err := repos.Tickets().FirstByOwnerInStatus(ctx, userID, domain.TicketStatusInProgress, ticketID)
	if errors.Is(err, repository.ErrNotFound) {
		// the blocking tickets moved on between count and lookup
		return apperrors.NewConflict("in-progress tickets changed concurrently; retry", map[string]any{"user_id": userID})
	}
	if err != nil {
		return err
	}
	return apperrors.NewTooManyInProgress(domain.MaxInProgressPerUser, blocking.ID, blocking.Subject)
}

func (s *TransitionService) recordFailure(input TransitionInput, err error) {
	code := apperrors.CodeOf(err)
	s.metrics.RecordTransition(string(input.Status), code)
	fields := []zap.Field{
		zap.Int64("ticket_id", input.TicketID),
		zap.Int64("actor_id", input.Actor.UserID),
		zap.String("to", string(input.Status)),
		zap.String("code", code),
	}
	if code == apperrors.CodeStorageUnavailable {
		s.logger.Error("ticket transition failed", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Debug("ticket transition rejected", fields...)
}

func rejectionError(rejection policy.Rejection, current, requested domain.TicketStatus) error {
	details := map[string]any{"current_status": current, "requested_status": requested}
	switch rejection {
	case policy.MissingComment:
		details["field"] = "comment"
		return apperrors.NewWorkflowError(apperrors.CodeMissingComment, "a comment is required for this status change", details)
	case policy.MissingClosingReason:
		details["field"] = "closing_reason"
		return apperrors.NewWorkflowError(apperrors.CodeMissingClosingReason, "a closing reason is required to complete a ticket", details)
	case policy.UnexpectedClosingReason:
		details["field"] = "closing_reason"
		return apperrors.NewWorkflowError(apperrors.CodeUnexpectedClosingReason, "a closing reason is only allowed when completing a ticket", details)
	default:
		details["allowed"] = policy.AllowedTargets(current)
		return apperrors.NewWorkflowError(apperrors.CodeInvalidTransition,
			fmt.Sprintf("cannot move ticket from %s to %s", current, requested), details)
	}
}

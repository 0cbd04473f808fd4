package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/policy"
	"github.com/spec-kit/support-desk/internal/service"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

// TicketsHandler exposes ticket reads and workflow operations.
type TicketsHandler struct {
	tickets     *service.TicketService
	transitions *service.TransitionService
	assignments *service.AssignmentService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, transitions *service.TransitionService, assignments *service.AssignmentService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, transitions: transitions, assignments: assignments}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.tickets.Create(c.UserContext(), actor, service.TicketCreateInput{
		Subject:            req.Subject,
		Description:        req.Description,
		AuthorName:         req.AuthorName,
		OrderID:            req.OrderID,
		OrderPayload:       req.OrderPayload,
		ProcessInstanceKey: req.ProcessInstanceKey,
		OwnerID:            req.OwnerID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	filter, err := parseTicketListQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.tickets.ListVisible(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	ticket, comments, err := h.tickets.Get(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, comments)})
}

// TransitionTicket POST /tickets/:id/transitions.
func (h *TicketsHandler) TransitionTicket(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	comment, err := h.transitions.Transition(c.UserContext(), service.TransitionInput{
		TicketID:      id,
		Actor:         actor,
		Status:        req.Status,
		Comment:       req.Comment,
		ClosingReason: req.ClosingReason,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": commentResponse(comment)})
}

// AssignTicket PUT /tickets/:id/assignee.
func (h *TicketsHandler) AssignTicket(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil || req.UserID <= 0 {
		return apperrors.NewValidationError("user_id required", map[string]any{"field": "user_id"})
	}
	if err := h.assignments.Assign(c.UserContext(), id, actor, req.UserID); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func ticketIDParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid ticket id", map[string]any{"field": "id"})
	}
	return id, nil
}

func parseTicketListQuery(c *fiber.Ctx) (service.TicketListFilter, error) {
	filter := service.TicketListFilter{}
	if statuses := c.Query("status"); statuses != "" {
		for _, part := range strings.Split(statuses, ",") {
			status := domain.TicketStatus(strings.ToUpper(strings.TrimSpace(part)))
			if !status.Valid() {
				return filter, apperrors.NewValidationError("unknown status", map[string]any{"status": part})
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if owner := c.Query("owner_id"); owner != "" {
		ownerID, err := strconv.ParseInt(owner, 10, 64)
		if err != nil {
			return filter, apperrors.NewValidationError("invalid owner_id", map[string]any{"field": "owner_id"})
		}
		filter.OwnerID = &ownerID
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		filter.SearchTerm = &search
	}
	filter.CreatedFrom = parseTime(c.Query("created_from"))
	filter.CreatedTo = parseTime(c.Query("created_to"))
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, nil
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:         ticket.ID,
		Subject:    ticket.Subject,
		AuthorName: ticket.AuthorName,
		OwnerID:    ticket.OwnerID,
		Status:     ticket.Status,
		Version:    ticket.Version,
		CreatedAt:  ticket.CreatedAt,
		AcceptedAt: ticket.AcceptedAt,
		ClosedAt:   ticket.ClosedAt,
	}
}

func ticketDetail(ticket *domain.Ticket, comments []domain.Comment) dto.TicketDetailResponse {
	history := make([]dto.CommentResponse, 0, len(comments))
	for i := range comments {
		history = append(history, commentResponse(&comments[i]))
	}
	return dto.TicketDetailResponse{
		TicketSummary:      ticketSummary(ticket),
		Description:        ticket.Description,
		OrderID:            ticket.OrderID,
		OrderPayload:       ticket.OrderPayload,
		ProcessInstanceKey: ticket.ProcessInstanceKey,
		AllowedTransitions: policy.AllowedTargets(ticket.Status),
		Comments:           history,
	}
}

func commentResponse(comment *domain.Comment) dto.CommentResponse {
	return dto.CommentResponse{
		ID:            comment.ID,
		UserID:        comment.UserID,
		Body:          comment.Body,
		Status:        comment.Status,
		ClosingReason: comment.ClosingReason,
		CreatedAt:     comment.CreatedAt,
	}
}

package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-desk/internal/domain"
)

const ticketSelect = `
        SELECT t.id, t.subject, t.description, t.author_name, t.order_id, t.order_payload,
               t.process_instance_key, t.owner_id, t.version, t.created_at, t.accepted_at, t.closed_at,
               COALESCE(cs.status, 'NEW') AS status
        FROM tickets t
        LEFT JOIN LATERAL (
            SELECT c.status FROM ticket_comments c
            WHERE c.ticket_id = t.id
            ORDER BY c.created_at DESC, c.id DESC
            LIMIT 1
        ) cs ON TRUE`

const currentStatusExpr = "COALESCE(cs.status, 'NEW')"

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (subject, description, author_name, order_id, order_payload, process_instance_key, owner_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, version, created_at`
	var payload []byte
	if len(ticket.OrderPayload) > 0 {
		payload = ticket.OrderPayload
	}
	if err := r.db.QueryRow(ctx, query,
		ticket.Subject,
		ticket.Description,
		ticket.AuthorName,
		ticket.OrderID,
		payload,
		ticket.ProcessInstanceKey,
		ticket.OwnerID,
	).Scan(&ticket.ID, &ticket.Version, &ticket.CreatedAt); err != nil {
		return err
	}
	ticket.Status = domain.TicketStatusNew
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	rows, err := r.db.Query(ctx, ticketSelect+` WHERE t.id=$1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &tickets[0], nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	if filter.Scope.None() {
		return []domain.Ticket{}, nil
	}
	clauses := []string{"1=1"}
	args := []any{}

	if !filter.Scope.All {
		scope := []string{}
		if filter.Scope.OwnerID != 0 {
			args = append(args, filter.Scope.OwnerID)
			scope = append(scope, fmt.Sprintf("t.owner_id=$%d", len(args)))
		}
		if filter.Scope.IncludeUnclaimed {
			scope = append(scope, "cs.status IS NULL")
		}
		clauses = append(clauses, "("+strings.Join(scope, " OR ")+")")
	}
	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		clauses = append(clauses, fmt.Sprintf("t.owner_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, string(status))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("%s IN (%s)", currentStatusExpr, strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("t.created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("t.created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(t.subject) LIKE %s OR LOWER(t.description) LIKE %s)", placeholder, placeholder))
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`%s WHERE %s ORDER BY t.created_at DESC, t.id DESC LIMIT %d OFFSET %d`,
		ticketSelect, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) UpdateTimestamps(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET accepted_at=$1, closed_at=$2, version=version+1
        WHERE id=$3 AND version=$4
        RETURNING version`
	return r.versionedUpdate(ctx, ticket, query, ticket.AcceptedAt, ticket.ClosedAt, ticket.ID, ticket.Version)
}

func (r *ticketRepository) SetOwner(ctx context.Context, ticket *domain.Ticket, ownerID int64) error {
	const query = `
        UPDATE tickets SET owner_id=$1, version=version+1
        WHERE id=$2 AND version=$3
        RETURNING version`
	if err := r.versionedUpdate(ctx, ticket, query, ownerID, ticket.ID, ticket.Version); err != nil {
		return err
	}
	ticket.OwnerID = ownerID
	return nil
}

func (r *ticketRepository) versionedUpdate(ctx context.Context, ticket *domain.Ticket, query string, args ...any) error {
	var version int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&version); err != nil {
		if err == pgx.ErrNoRows {
			return ErrVersionConflict
		}
		return err
	}
	ticket.Version = version
	return nil
}

func (r *ticketRepository) CountByOwnerInStatus(ctx context.Context, ownerID int64, status domain.TicketStatus, excludeTicketID int64) (int, error) {
	query := `SELECT COUNT(*) FROM (` + ticketSelect + `
        WHERE t.owner_id=$1 AND t.id<>$2 AND ` + currentStatusExpr + `=$3) owned`
	var count int
	if err := r.db.QueryRow(ctx, query, ownerID, excludeTicketID, string(status)).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ticketRepository) FirstByOwnerInStatus(ctx context.Context, ownerID int64, status domain.TicketStatus, excludeTicketID int64) (*domain.Ticket, error) {
	query := ticketSelect + `
        WHERE t.owner_id=$1 AND t.id<>$2 AND ` + currentStatusExpr + `=$3
        ORDER BY t.accepted_at ASC NULLS LAST, t.id ASC LIMIT 1`
	rows, err := r.db.Query(ctx, query, ownerID, excludeTicketID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &tickets[0], nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	result := []domain.Ticket{}
	for rows.Next() {
		var (
			ticket  domain.Ticket
			payload []byte
			status  string
		)
		if err := rows.Scan(
			&ticket.ID,
			&ticket.Subject,
			&ticket.Description,
			&ticket.AuthorName,
			&ticket.OrderID,
			&payload,
			&ticket.ProcessInstanceKey,
			&ticket.OwnerID,
			&ticket.Version,
			&ticket.CreatedAt,
			&ticket.AcceptedAt,
			&ticket.ClosedAt,
			&status,
		); err != nil {
			return nil, err
		}
		ticket.OrderPayload = payload
		ticket.Status = domain.TicketStatus(status)
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

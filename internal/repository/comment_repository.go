package repository

import (
	"context"

	"github.com/spec-kit/support-desk/internal/domain"
)

type commentRepository struct {
	db DBTX
}

// NewCommentRepository builds repository.
func NewCommentRepository(db DBTX) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Append(ctx context.Context, comment *domain.Comment) error {
	const query = `
        INSERT INTO ticket_comments (ticket_id, user_id, body, status, closing_reason, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id`
	var reason *string
	if comment.ClosingReason != nil {
		value := string(*comment.ClosingReason)
		reason = &value
	}
	return r.db.QueryRow(ctx, query,
		comment.TicketID,
		comment.UserID,
		comment.Body,
		string(comment.Status),
		reason,
		comment.CreatedAt,
	).Scan(&comment.ID)
}

func (r *commentRepository) ListByTicketDescending(ctx context.Context, ticketID int64) ([]domain.Comment, error) {
	const query = `
        SELECT id, ticket_id, user_id, body, status, closing_reason, created_at
        FROM ticket_comments WHERE ticket_id=$1
        ORDER BY created_at DESC, id DESC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Comment{}
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, comment)
	}
	return result, rows.Err()
}

func (r *commentRepository) ListByTickets(ctx context.Context, ticketIDs []int64) (map[int64][]domain.Comment, error) {
	result := make(map[int64][]domain.Comment, len(ticketIDs))
	if len(ticketIDs) == 0 {
		return result, nil
	}
	const query = `
        SELECT id, ticket_id, user_id, body, status, closing_reason, created_at
        FROM ticket_comments WHERE ticket_id = ANY($1)
        ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, ticketIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		result[comment.TicketID] = append(result[comment.TicketID], comment)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComment(row rowScanner) (domain.Comment, error) {
	var (
		comment domain.Comment
		status  string
		reason  *string
	)
	if err := row.Scan(
		&comment.ID,
		&comment.TicketID,
		&comment.UserID,
		&comment.Body,
		&status,
		&reason,
		&comment.CreatedAt,
	); err != nil {
		return domain.Comment{}, err
	}
	comment.Status = domain.TicketStatus(status)
	if reason != nil {
		cr := domain.ClosingReason(*reason)
		comment.ClosingReason = &cr
	}
	return comment, nil
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/policy"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = pgx.ErrNoRows

// ErrVersionConflict is returned when a ticket changed after it was read in
// the current transaction.
var ErrVersionConflict = errors.New("ticket version conflict")

// ErrEmailTaken is returned when an email already belongs to another user.
var ErrEmailTaken = errors.New("email already belongs to another user")

// TicketFilter captures listing parameters.
type TicketFilter struct {
	Scope       policy.Visibility
	OwnerID     *int64
	Statuses    []domain.TicketStatus
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// TicketRepository encapsulates ticket persistence. Returned tickets carry
// the status derived from their comment history.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// UpdateTimestamps writes AcceptedAt and ClosedAt if ticket.Version still
	// matches and bumps the version.
	UpdateTimestamps(ctx context.Context, ticket *domain.Ticket) error
	// SetOwner reassigns the ticket under the same version check.
	SetOwner(ctx context.Context, ticket *domain.Ticket, ownerID int64) error
	CountByOwnerInStatus(ctx context.Context, ownerID int64, status domain.TicketStatus, excludeTicketID int64) (int, error)
	FirstByOwnerInStatus(ctx context.Context, ownerID int64, status domain.TicketStatus, excludeTicketID int64) (*domain.Ticket, error)
}

// CommentRepository stores the append-only status history.
type CommentRepository interface {
	Append(ctx context.Context, comment *domain.Comment) error
	ListByTicketDescending(ctx context.Context, ticketID int64) ([]domain.Comment, error)
	ListByTickets(ctx context.Context, ticketIDs []int64) (map[int64][]domain.Comment, error)
}

// UserRepository defines persistence access for support users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	// Upsert inserts the user under its own id or refreshes the stored
	// profile. Blank fields keep their stored values.
	Upsert(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	// LockByID loads the user and holds it until the transaction ends.
	LockByID(ctx context.Context, id int64) (*domain.User, error)
}

// Repositories bundles repositories bound to one connection or transaction.
type Repositories interface {
	Tickets() TicketRepository
	Comments() CommentRepository
	Users() UserRepository
}

// Store is the shared persistence entry point.
type Store interface {
	Repositories
	// WithinTx runs fn in a transaction and commits when fn returns nil.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	Ping(ctx context.Context) error
}

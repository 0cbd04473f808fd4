package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgRepositories struct {
	tickets  TicketRepository
	comments CommentRepository
	users    UserRepository
}

func newPGRepositories(db DBTX) *pgRepositories {
	return &pgRepositories{
		tickets:  NewTicketRepository(db),
		comments: NewCommentRepository(db),
		users:    NewUserRepository(db),
	}
}

func (r *pgRepositories) Tickets() TicketRepository   { return r.tickets }
func (r *pgRepositories) Comments() CommentRepository { return r.comments }
func (r *pgRepositories) Users() UserRepository       { return r.users }

// PostgresStore implements Store over a pgx pool.
type PostgresStore struct {
	*pgRepositories
	pool *pgxpool.Pool
}

// NewPostgresStore wraps the pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pgRepositories: newPGRepositories(pool), pool: pool}
}

// WithinTx runs fn at READ COMMITTED. Ticket rows are protected by their
// version column and user rows by explicit locks, so serialization and
// deadlock failures surface as ErrVersionConflict.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, newPGRepositories(tx)); err != nil {
		return translatePGError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return translatePGError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errors.New("postgres pool not configured")
	}
	return s.pool.Ping(ctx)
}

func translatePGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", ErrVersionConflict, pgErr.Message)
		}
	}
	return err
}

package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// MemoryStore is an in-process Store used when no database is configured
// and in tests. Transactions buffer their writes and validate ticket
// versions and user locks on commit, mirroring the Postgres store.
type MemoryStore struct {
	mu            sync.Mutex
	nextTicketID  int64
	nextCommentID int64
	nextUserID    int64
	tickets       map[int64]domain.Ticket
	comments      map[int64][]domain.Comment
	users         map[int64]domain.User
	userVersions  map[int64]int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets:      make(map[int64]domain.Ticket),
		comments:     make(map[int64][]domain.Comment),
		users:        make(map[int64]domain.User),
		userVersions: make(map[int64]int64),
	}
}

func (s *MemoryStore) Tickets() TicketRepository   { return memoryTickets{s.direct()} }
func (s *MemoryStore) Comments() CommentRepository { return memoryComments{s.direct()} }
func (s *MemoryStore) Users() UserRepository       { return memoryUsers{s.direct()} }

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// WithinTx runs fn against a buffered view and commits if no ticket or
// locked user changed underneath it.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	tx := &memoryTx{
		tickets:  make(map[int64]domain.Ticket),
		expected: make(map[int64]int64),
		created:  make(map[int64]bool),
		users:    make(map[int64]int64),
	}
	if err := fn(ctx, &memoryRepos{store: s, tx: tx}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemoryStore) direct() *memoryRepos {
	return &memoryRepos{store: s}
}

func (s *MemoryStore) commit(tx *memoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, version := range tx.expected {
		if current, ok := s.tickets[id]; !ok || current.Version != version {
			return ErrVersionConflict
		}
	}
	for id, version := range tx.users {
		if s.userVersions[id] != version {
			return ErrVersionConflict
		}
	}
	for id, ticket := range tx.tickets {
		s.tickets[id] = ticket
	}
	for _, comment := range tx.comments {
		s.comments[comment.TicketID] = append(s.comments[comment.TicketID], comment)
	}
	for id := range tx.users {
		s.userVersions[id]++
	}
	return nil
}

type memoryTx struct {
	tickets  map[int64]domain.Ticket
	expected map[int64]int64
	created  map[int64]bool
	comments []domain.Comment
	users    map[int64]int64
}

type memoryRepos struct {
	store *MemoryStore
	tx    *memoryTx
}

func (r *memoryRepos) Tickets() TicketRepository   { return memoryTickets{r} }
func (r *memoryRepos) Comments() CommentRepository { return memoryComments{r} }
func (r *memoryRepos) Users() UserRepository       { return memoryUsers{r} }

// The helpers below expect store.mu to be held.

func (r *memoryRepos) ticket(id int64) (domain.Ticket, bool) {
	if r.tx != nil {
		if t, ok := r.tx.tickets[id]; ok {
			return t, true
		}
	}
	t, ok := r.store.tickets[id]
	return t, ok
}

func (r *memoryRepos) ticketIDs() []int64 {
	ids := make([]int64, 0, len(r.store.tickets))
	for id := range r.store.tickets {
		ids = append(ids, id)
	}
	if r.tx != nil {
		for id := range r.tx.created {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *memoryRepos) history(ticketID int64) []domain.Comment {
	stored := r.store.comments[ticketID]
	history := make([]domain.Comment, 0, len(stored))
	history = append(history, stored...)
	if r.tx != nil {
		for _, c := range r.tx.comments {
			if c.TicketID == ticketID {
				history = append(history, c)
			}
		}
	}
	return history
}

func (r *memoryRepos) withStatus(t domain.Ticket) domain.Ticket {
	t.Status = domain.CurrentStatus(r.history(t.ID))
	return t
}

func (r *memoryRepos) putTicket(current, next domain.Ticket) {
	if r.tx == nil {
		r.store.tickets[next.ID] = next
		return
	}
	if _, seen := r.tx.expected[next.ID]; !seen && !r.tx.created[next.ID] {
		r.tx.expected[next.ID] = current.Version
	}
	r.tx.tickets[next.ID] = next
}

type memoryTickets struct{ *memoryRepos }

func (r memoryTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.nextTicketID++
	ticket.ID = r.store.nextTicketID
	ticket.Version = 1
	ticket.Status = domain.TicketStatusNew
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}
	stored := *ticket
	stored.Status = ""
	if r.tx != nil {
		r.tx.created[stored.ID] = true
		r.tx.tickets[stored.ID] = stored
		return nil
	}
	r.store.tickets[stored.ID] = stored
	return nil
}

func (r memoryTickets) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	t, ok := r.ticket(id)
	if !ok {
		return nil, ErrNotFound
	}
	t = r.withStatus(t)
	return &t, nil
}

func (r memoryTickets) List(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	if filter.Scope.None() {
		return []domain.Ticket{}, nil
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	search := ""
	if filter.SearchTerm != nil {
		search = strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
	}
	matched := []domain.Ticket{}
	for _, id := range r.ticketIDs() {
		t, _ := r.ticket(id)
		t = r.withStatus(t)
		if !filter.Scope.Allows(&t) {
			continue
		}
		if filter.OwnerID != nil && t.OwnerID != *filter.OwnerID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		if filter.CreatedFrom != nil && t.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		if filter.CreatedTo != nil && t.CreatedAt.After(*filter.CreatedTo) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.Subject), search) &&
			!strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		matched = append(matched, t)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	if offset >= len(matched) {
		return []domain.Ticket{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r memoryTickets) UpdateTimestamps(_ context.Context, ticket *domain.Ticket) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, err := r.checkVersion(ticket)
	if err != nil {
		return err
	}
	next := current
	next.AcceptedAt = ticket.AcceptedAt
	next.ClosedAt = ticket.ClosedAt
	next.Version++
	r.putTicket(current, next)
	ticket.Version = next.Version
	return nil
}

func (r memoryTickets) SetOwner(_ context.Context, ticket *domain.Ticket, ownerID int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, err := r.checkVersion(ticket)
	if err != nil {
		return err
	}
	next := current
	next.OwnerID = ownerID
	next.Version++
	r.putTicket(current, next)
	ticket.OwnerID = ownerID
	ticket.Version = next.Version
	return nil
}

func (r memoryTickets) checkVersion(ticket *domain.Ticket) (domain.Ticket, error) {
	current, ok := r.ticket(ticket.ID)
	if !ok {
		return domain.Ticket{}, ErrNotFound
	}
	if current.Version != ticket.Version {
		return domain.Ticket{}, ErrVersionConflict
	}
	if r.tx != nil && !r.tx.created[ticket.ID] {
		if stored, ok := r.store.tickets[ticket.ID]; ok {
			if expected, seen := r.tx.expected[ticket.ID]; seen && stored.Version != expected {
				return domain.Ticket{}, ErrVersionConflict
			}
		}
	}
	return current, nil
}

func (r memoryTickets) CountByOwnerInStatus(_ context.Context, ownerID int64, status domain.TicketStatus, excludeTicketID int64) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return len(r.ownedInStatus(ownerID, status, excludeTicketID)), nil
}

func (r memoryTickets) FirstByOwnerInStatus(_ context.Context, ownerID int64, status domain.TicketStatus, excludeTicketID int64) (*domain.Ticket, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	owned := r.ownedInStatus(ownerID, status, excludeTicketID)
	if len(owned) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(owned, func(i, j int) bool {
		a, b := owned[i].AcceptedAt, owned[j].AcceptedAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return owned[i].ID < owned[j].ID
	})
	return &owned[0], nil
}

func (r memoryTickets) ownedInStatus(ownerID int64, status domain.TicketStatus, excludeTicketID int64) []domain.Ticket {
	owned := []domain.Ticket{}
	for _, id := range r.ticketIDs() {
		if id == excludeTicketID {
			continue
		}
		t, _ := r.ticket(id)
		if t.OwnerID != ownerID {
			continue
		}
		t = r.withStatus(t)
		if t.Status == status {
			owned = append(owned, t)
		}
	}
	return owned
}

type memoryComments struct{ *memoryRepos }

func (r memoryComments) Append(_ context.Context, comment *domain.Comment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.ticket(comment.TicketID); !ok {
		return ErrNotFound
	}
	r.store.nextCommentID++
	comment.ID = r.store.nextCommentID
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	if r.tx != nil {
		r.tx.comments = append(r.tx.comments, *comment)
		return nil
	}
	r.store.comments[comment.TicketID] = append(r.store.comments[comment.TicketID], *comment)
	return nil
}

func (r memoryComments) ListByTicketDescending(_ context.Context, ticketID int64) ([]domain.Comment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	history := r.history(ticketID)
	sort.Slice(history, func(i, j int) bool {
		if !history[i].CreatedAt.Equal(history[j].CreatedAt) {
			return history[i].CreatedAt.After(history[j].CreatedAt)
		}
		return history[i].ID > history[j].ID
	})
	return history, nil
}

func (r memoryComments) ListByTickets(_ context.Context, ticketIDs []int64) (map[int64][]domain.Comment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	result := make(map[int64][]domain.Comment, len(ticketIDs))
	for _, id := range ticketIDs {
		history := r.history(id)
		if len(history) == 0 {
			continue
		}
		sort.Slice(history, func(i, j int) bool {
			if !history[i].CreatedAt.Equal(history[j].CreatedAt) {
				return history[i].CreatedAt.Before(history[j].CreatedAt)
			}
			return history[i].ID < history[j].ID
		})
		result[id] = history
	}
	return result, nil
}

type memoryUsers struct{ *memoryRepos }

func (r memoryUsers) Create(_ context.Context, user *domain.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.emailTaken(user.Email, 0) {
		return fmt.Errorf("%w: %s", ErrEmailTaken, user.Email)
	}
	r.store.nextUserID++
	user.ID = r.store.nextUserID
	r.store.users[user.ID] = *user
	return nil
}

func (r memoryUsers) Upsert(_ context.Context, user *domain.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if user.ID <= 0 {
		return fmt.Errorf("upsert user: invalid id %d", user.ID)
	}
	if r.emailTaken(user.Email, user.ID) {
		return fmt.Errorf("%w: %s", ErrEmailTaken, user.Email)
	}
	merged := *user
	if current, ok := r.store.users[user.ID]; ok {
		merged.Email = firstNonBlank(user.Email, current.Email)
		merged.FirstName = firstNonBlank(user.FirstName, current.FirstName)
		merged.LastName = firstNonBlank(user.LastName, current.LastName)
	}
	r.store.users[user.ID] = merged
	if user.ID > r.store.nextUserID {
		r.store.nextUserID = user.ID
	}
	*user = merged
	return nil
}

func (r memoryUsers) emailTaken(email string, exceptID int64) bool {
	if email == "" {
		return false
	}
	for id, existing := range r.store.users {
		if id != exceptID && strings.EqualFold(existing.Email, email) {
			return true
		}
	}
	return false
}

func firstNonBlank(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func (r memoryUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	user, ok := r.store.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (r memoryUsers) LockByID(_ context.Context, id int64) (*domain.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	user, ok := r.store.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.tx != nil {
		if _, held := r.tx.users[id]; !held {
			r.tx.users[id] = r.store.userVersions[id]
		}
	}
	return &user, nil
}

func containsStatus(statuses []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

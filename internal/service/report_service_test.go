package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

type memoryCache struct {
	mu       sync.Mutex
	snapshot *domain.SLASnapshot
	sets     int
}

func (c *memoryCache) Get(context.Context) (*domain.SLASnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot, nil
}

func (c *memoryCache) Set(_ context.Context, snapshot *domain.SLASnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = snapshot
	c.sets++
	return nil
}

func (c *memoryCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = nil
	return nil
}

func TestBuildSLASnapshot(t *testing.T) {
	base := time.Date(2024, 4, 2, 8, 0, 0, 0, time.UTC)
	resolved := domain.ClosingReasonResolved
	user := int64(3)

	tickets := []domain.Ticket{
		{ID: 1, CreatedAt: base},
		{ID: 2, CreatedAt: base},
		{ID: 3, CreatedAt: base},
		{ID: 4, CreatedAt: base.Add(3 * time.Hour)},
	}
	histories := map[int64][]domain.Comment{
		2: {
			{ID: 10, TicketID: 2, UserID: &user, Status: domain.TicketStatusInProgress, CreatedAt: base.Add(10 * time.Minute)},
		},
		3: {
			{ID: 11, TicketID: 3, UserID: &user, Status: domain.TicketStatusInProgress, CreatedAt: base.Add(30 * time.Minute)},
			{ID: 12, TicketID: 3, UserID: &user, Status: domain.TicketStatusPostponed, CreatedAt: base.Add(40 * time.Minute)},
			{ID: 13, TicketID: 3, UserID: &user, Status: domain.TicketStatusInProgress, CreatedAt: base.Add(50 * time.Minute)},
			{ID: 14, TicketID: 3, UserID: &user, Status: domain.TicketStatusCompleted, ClosingReason: &resolved, CreatedAt: base.Add(2 * time.Hour)},
		},
	}
	now := base.Add(3*time.Hour + 30*time.Minute)

	snapshot := BuildSLASnapshot(now, time.Hour, tickets, histories)

	assert.Equal(t, 4, snapshot.TotalTickets)
	assert.Equal(t, 2, snapshot.ByStatus[domain.TicketStatusNew])
	assert.Equal(t, 1, snapshot.ByStatus[domain.TicketStatusInProgress])
	assert.Equal(t, 1, snapshot.ByStatus[domain.TicketStatusCompleted])
	assert.Equal(t, 1, snapshot.ByClosingReason[domain.ClosingReasonResolved])

	assert.Equal(t, 2, snapshot.AcceptedTickets)
	assert.InDelta(t, (20 * time.Minute).Seconds(), snapshot.MeanAcceptanceSeconds, 0.001)
	assert.InDelta(t, (30 * time.Minute).Seconds(), snapshot.MaxAcceptanceSeconds, 0.001)

	assert.Equal(t, 1, snapshot.ResolvedTickets)
	assert.InDelta(t, (2 * time.Hour).Seconds(), snapshot.MeanResolutionSeconds, 0.001)

	// ticket 4 is only 30 minutes old
	assert.Equal(t, []int64{1}, snapshot.AwaitingAcceptanceBreach)
}

func TestReportServiceCachesSnapshot(t *testing.T) {
	f := newDeskFixture(t)
	ctx := context.Background()
	cache := &memoryCache{}
	reports := NewReportService(ReportDependencies{Store: f.store, Cache: cache, AcceptanceSLA: time.Hour, Clock: f.clock.Now})

	f.ticketIn(t, domain.TicketStatusCompleted)
	f.newTicket(t, "waiting", f.manager.UserID)

	_, err := reports.SLASnapshot(ctx, f.employeeA)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden), "got %v", err)

	first, err := reports.SLASnapshot(ctx, f.manager)
	require.NoError(t, err)
	assert.Equal(t, 2, first.TotalTickets)
	assert.Equal(t, 1, first.ByStatus[domain.TicketStatusCompleted])
	assert.Equal(t, 1, cache.sets)

	f.newTicket(t, "another", f.manager.UserID)
	cached, err := reports.SLASnapshot(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, 2, cached.TotalTickets)

	require.NoError(t, reports.Invalidate(ctx))
	fresh, err := reports.SLASnapshot(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, 3, fresh.TotalTickets)
	assert.Equal(t, 2, cache.sets)
}

func TestReportServiceWithoutCache(t *testing.T) {
	f := newDeskFixture(t)
	reports := NewReportService(ReportDependencies{Store: f.store})
	f.ticketIn(t, domain.TicketStatusPostponed)

	snapshot, err := reports.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.ByStatus[domain.TicketStatusPostponed])
	assert.Equal(t, 1, snapshot.AcceptedTickets)
	assert.Empty(t, snapshot.AwaitingAcceptanceBreach)
	require.NoError(t, reports.Invalidate(context.Background()))
}

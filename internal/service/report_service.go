package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/policy"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

const reportPageSize = 500

// SnapshotCache stores the latest SLA snapshot.
type SnapshotCache interface {
	Get(ctx context.Context) (*domain.SLASnapshot, error)
	Set(ctx context.Context, snapshot *domain.SLASnapshot) error
	Invalidate(ctx context.Context) error
}

// ReportService derives SLA metrics from comment histories.
type ReportService struct {
	store         repository.Store
	cache         SnapshotCache
	acceptanceSLA time.Duration
	logger        *zap.Logger
	now           Clock
}

// ReportDependencies bundles collaborators for reporting.
type ReportDependencies struct {
	Store         repository.Store
	Cache         SnapshotCache
	AcceptanceSLA time.Duration
	Logger        *zap.Logger
	Clock         Clock
}

// NewReportService constructs the service. Cache may be nil.
func NewReportService(deps ReportDependencies) *ReportService {
	return &ReportService{
		store:         deps.Store,
		cache:         deps.Cache,
		acceptanceSLA: deps.AcceptanceSLA,
		logger:        loggerOrNop(deps.Logger),
		now:           clockOrDefault(deps.Clock),
	}
}

// SLASnapshot returns the cached snapshot or computes a fresh one.
func (s *ReportService) SLASnapshot(ctx context.Context, actor domain.Actor) (*domain.SLASnapshot, error) {
	if !policy.CanViewReports(actor) {
		return nil, apperrors.NewForbidden("reports require a manager role")
	}
	if s.cache != nil {
		cached, err := s.cache.Get(ctx)
		if err != nil {
			s.logger.Warn("sla snapshot cache read failed", zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}
	return s.Refresh(ctx)
}

// Refresh recomputes the snapshot and stores it in the cache.
func (s *ReportService) Refresh(ctx context.Context) (*domain.SLASnapshot, error) {
	agg := newSLAAggregator(s.now(), s.acceptanceSLA)
	for offset := 0; ; offset += reportPageSize {
		page, err := s.store.Tickets().List(ctx, repository.TicketFilter{
			Scope:  policy.Visibility{All: true},
			Limit:  reportPageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, mapStoreError(err, "ticket", nil)
		}
		if len(page) == 0 {
			break
		}
		ids := make([]int64, 0, len(page))
		for _, t := range page {
			ids = append(ids, t.ID)
		}
		histories, err := s.store.Comments().ListByTickets(ctx, ids)
		if err != nil {
			return nil, mapStoreError(err, "ticket", nil)
		}
		for i := range page {
			agg.add(&page[i], histories[page[i].ID])
		}
		if len(page) < reportPageSize {
			break
		}
	}

	snapshot := agg.snapshot()
	if s.cache != nil {
		if err := s.cache.Set(ctx, snapshot); err != nil {
			s.logger.Warn("sla snapshot cache write failed", zap.Error(err))
		}
	}
	return snapshot, nil
}

// Invalidate drops the cached snapshot.
func (s *ReportService) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx)
}

// BuildSLASnapshot folds tickets and their histories (ascending) into a snapshot.
func BuildSLASnapshot(now time.Time, acceptanceSLA time.Duration, tickets []domain.Ticket, histories map[int64][]domain.Comment) *domain.SLASnapshot {
	agg := newSLAAggregator(now, acceptanceSLA)
	for i := range tickets {
		agg.add(&tickets[i], histories[tickets[i].ID])
	}
	return agg.snapshot()
}

type slaAggregator struct {
	now             time.Time
	acceptanceSLA   time.Duration
	result          domain.SLASnapshot
	acceptanceTotal time.Duration
	resolutionTotal time.Duration
}

func newSLAAggregator(now time.Time, acceptanceSLA time.Duration) *slaAggregator {
	return &slaAggregator{
		now:           now,
		acceptanceSLA: acceptanceSLA,
		result: domain.SLASnapshot{
			GeneratedAt:              now,
			ByStatus:                 map[domain.TicketStatus]int{},
			ByClosingReason:          map[domain.ClosingReason]int{},
			AwaitingAcceptanceBreach: []int64{},
		},
	}
}

func (a *slaAggregator) add(ticket *domain.Ticket, history []domain.Comment) {
	status := domain.CurrentStatus(history)
	a.result.TotalTickets++
	a.result.ByStatus[status]++

	if accepted, ok := firstWithStatus(history, domain.TicketStatusInProgress); ok {
		d := nonNegative(accepted.CreatedAt.Sub(ticket.CreatedAt))
		a.result.AcceptedTickets++
		a.acceptanceTotal += d
		if d.Seconds() > a.result.MaxAcceptanceSeconds {
			a.result.MaxAcceptanceSeconds = d.Seconds()
		}
	} else if status == domain.TicketStatusNew && a.acceptanceSLA > 0 && a.now.Sub(ticket.CreatedAt) > a.acceptanceSLA {
		a.result.AwaitingAcceptanceBreach = append(a.result.AwaitingAcceptanceBreach, ticket.ID)
	}

	if status == domain.TicketStatusCompleted {
		closing := domain.LatestComment(history)
		if closing.ClosingReason != nil {
			a.result.ByClosingReason[*closing.ClosingReason]++
		}
		d := nonNegative(closing.CreatedAt.Sub(ticket.CreatedAt))
		a.result.ResolvedTickets++
		a.resolutionTotal += d
		if d.Seconds() > a.result.MaxResolutionSeconds {
			a.result.MaxResolutionSeconds = d.Seconds()
		}
	}
}

func (a *slaAggregator) snapshot() *domain.SLASnapshot {
	out := a.result
	if out.AcceptedTickets > 0 {
		out.MeanAcceptanceSeconds = a.acceptanceTotal.Seconds() / float64(out.AcceptedTickets)
	}
	if out.ResolvedTickets > 0 {
		out.MeanResolutionSeconds = a.resolutionTotal.Seconds() / float64(out.ResolvedTickets)
	}
	sort.Slice(out.AwaitingAcceptanceBreach, func(i, j int) bool {
		return out.AwaitingAcceptanceBreach[i] < out.AwaitingAcceptanceBreach[j]
	})
	return &out
}

func firstWithStatus(history []domain.Comment, status domain.TicketStatus) (domain.Comment, bool) {
	var (
		first domain.Comment
		found bool
	)
	for _, c := range history {
		if c.Status != status {
			continue
		}
		if !found || c.CreatedAt.Before(first.CreatedAt) || (c.CreatedAt.Equal(first.CreatedAt) && c.ID < first.ID) {
			first = c
			found = true
		}
	}
	return first, found
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

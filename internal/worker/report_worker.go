package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
)

const refreshTimeout = 30 * time.Second

// SnapshotRefresher is the part of the report service driven by the worker.
type SnapshotRefresher interface {
	Refresh(ctx context.Context) (*domain.SLASnapshot, error)
	Invalidate(ctx context.Context) error
}

// ReportWorker refreshes the SLA snapshot on a schedule and drops it when
// ticket state changes.
type ReportWorker struct {
	reports   SnapshotRefresher
	scheduler *cron.Cron
	entryID   cron.EntryID
	logger    *zap.Logger
}

// StartReportWorker validates the schedule, subscribes to ticket events and
// starts the scheduler.
func StartReportWorker(reports SnapshotRefresher, dispatcher events.Dispatcher, schedule string, logger *zap.Logger) (*ReportWorker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid report refresh schedule %q: %w", schedule, err)
	}

	w := &ReportWorker{
		reports:   reports,
		scheduler: cron.New(),
		logger:    logger,
	}
	entryID, err := w.scheduler.AddFunc(schedule, w.RunOnce)
	if err != nil {
		return nil, fmt.Errorf("schedule report refresh: %w", err)
	}
	w.entryID = entryID

	if dispatcher != nil {
		for _, eventType := range events.AllEventTypes {
			dispatcher.Subscribe(eventType, w.invalidate)
		}
	}

	w.scheduler.Start()
	logger.Info("report worker started",
		zap.String("schedule", schedule),
		zap.Time("next_run", w.nextRun()),
	)
	return w, nil
}

// RunOnce recomputes the snapshot.
func (w *ReportWorker) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	snapshot, err := w.reports.Refresh(ctx)
	if err != nil {
		w.logger.Error("sla snapshot refresh failed", zap.Error(err))
		return
	}
	w.logger.Info("sla snapshot refreshed",
		zap.Int("tickets", snapshot.TotalTickets),
		zap.Int("acceptance_breaches", len(snapshot.AwaitingAcceptanceBreach)),
		zap.Time("next_run", w.nextRun()),
	)
}

func (w *ReportWorker) nextRun() time.Time {
	return w.scheduler.Entry(w.entryID).Next
}

// Stop halts the scheduler and waits for a running refresh.
func (w *ReportWorker) Stop() {
	<-w.scheduler.Stop().Done()
	w.logger.Info("report worker stopped")
}

func (w *ReportWorker) invalidate(ctx context.Context, _ events.Event) error {
	return w.reports.Invalidate(ctx)
}

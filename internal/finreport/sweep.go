package finreport

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/finreport/internal/jobs"
	"github.com/odyssey-erp/finreport/jobs"
)

// Enqueuer submits report generation tasks.
type Enqueuer interface {
	EnqueueReport(ctx context.Context, reportID int64) (*asynq.TaskInfo, error)
}

// Sweeper re-enqueues reports that stayed PENDING past a grace period, which
// happens when the API stored a request but could not reach the queue. It also
// reclaims IN_PROGRESS reports whose worker died before recording an outcome.
type Sweeper struct {
	service    *Service
	queue      Enqueuer
	grace      time.Duration
	stuckAfter time.Duration
	metrics    *jobmetrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewSweeper constructs a Sweeper. A non-positive grace defaults to ten minutes.
func NewSweeper(service *Service, queue Enqueuer, grace time.Duration, metrics *jobmetrics.Metrics, logger *slog.Logger) *Sweeper {
	if grace <= 0 {
		grace = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		service:    service,
		queue:      queue,
		grace:      grace,
		stuckAfter: 2 * jobs.ReportTimeout,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (s *Sweeper) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	tracker := s.metrics.Track(jobs.TaskReportSweep)
	defer func() {
		err = tracker.End(err)
	}()
	_, err = s.Sweep(ctx)
	return err
}

// Sweep returns abandoned in-progress reports to PENDING, then enqueues stale
// pending reports and returns how many were submitted.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	reclaimed, err := s.service.ReclaimStale(ctx, now.Add(-s.stuckAfter))
	if err != nil {
		return 0, err
	}
	if len(reclaimed) > 0 {
		s.logger.Warn("interrupted reports reclaimed", slog.Any("report_ids", reclaimed))
	}
	pending, err := s.service.List(ctx, ListFilter{Status: StatusPending, Limit: 200})
	if err != nil {
		return 0, err
	}
	cutoff := now.Add(-s.grace)
	submitted := 0
	for _, rep := range pending {
		if rep.CreatedAt.After(cutoff) {
			continue
		}
		if _, err := s.queue.EnqueueReport(ctx, rep.ID); err != nil {
			return submitted, err
		}
		submitted++
	}
	if submitted > 0 {
		s.logger.Info("stale reports re-enqueued", slog.Int("count", submitted))
	}
	return submitted, nil
}

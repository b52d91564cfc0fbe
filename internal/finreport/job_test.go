package finreport

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/finreport/internal/jobs"
	"github.com/odyssey-erp/finreport/internal/ledger"
	"github.com/odyssey-erp/finreport/jobs"
)

type jobFixture struct {
	store   *memStore
	service *Service
	job     *Job
	reg     *prometheus.Registry
}

func newJobFixture(t *testing.T, source ledger.Source, tpl Template) jobFixture {
	t.Helper()
	gen, _ := newTestGenerator(t, source, nil)
	store := newMemStore(tpl)
	svc := NewService(store, nil)
	reg := prometheus.NewRegistry()
	job := NewJob(JobConfig{Service: svc, Generator: gen, Metrics: jobmetrics.NewMetrics(reg)})
	return jobFixture{store: store, service: svc, job: job, reg: reg}
}

func (f jobFixture) request(t *testing.T) Report {
	t.Helper()
	rep, err := f.service.Create(context.Background(), CreateRequest{TemplateID: 1, Month: "06", Year: 2024, Branch: "HQ", Ledger: "MAIN"})
	require.NoError(t, err)
	return rep
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func reportTask(t *testing.T, id int64) *asynq.Task {
	t.Helper()
	task, err := jobs.NewReportGenerateTask(id)
	require.NoError(t, err)
	return task
}

func TestJobCompletesReport(t *testing.T) {
	f := newJobFixture(t, ledgerFixture(), testTemplate())
	rep := f.request(t)

	require.NoError(t, f.job.Handle(context.Background(), reportTask(t, rep.ID)))

	got, err := f.service.Get(context.Background(), rep.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.FileExists(t, got.OutputPath)
	require.NotNil(t, got.GeneratedAt)
	require.Equal(t, "Monthly P&L", got.Metadata["template"])
	require.Equal(t, 8, got.Metadata["tokens"])

	require.Equal(t, float64(1), counterValue(t, f.reg, "finreport_jobs_total"))
	require.Equal(t, float64(1), counterValue(t, f.reg, "finreport_tokens_unresolved_total"))

	// a completed report is not generated twice
	require.NoError(t, f.job.Handle(context.Background(), reportTask(t, rep.ID)))
	again, err := f.service.Get(context.Background(), rep.ID)
	require.NoError(t, err)
	require.Equal(t, got.OutputPath, again.OutputPath)
}

func TestJobConfigurationFailureSkipsRetry(t *testing.T) {
	tpl := testTemplate()
	tpl.FileRef = "deleted.docx"
	f := newJobFixture(t, ledgerFixture(), tpl)
	rep := f.request(t)

	err := f.job.Handle(context.Background(), reportTask(t, rep.ID))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.ErrorIs(t, err, ErrConfiguration)

	got, err := f.service.Get(context.Background(), rep.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, "report configuration is invalid: check the template file, tenant and period", got.ErrorMessage)
	require.NotContains(t, got.ErrorMessage, "deleted.docx")
}

func TestJobUpstreamFailureIsRetried(t *testing.T) {
	var healthy atomic.Bool
	source := ledger.SourceFunc(func(ctx context.Context, q ledger.Query) (ledger.Dataset, error) {
		if !healthy.Load() {
			return ledger.Dataset{}, ledger.ErrUpstream
		}
		return ledgerFixture()(ctx, q)
	})
	f := newJobFixture(t, source, testTemplate())
	rep := f.request(t)

	err := f.job.Handle(context.Background(), reportTask(t, rep.ID))
	require.ErrorIs(t, err, ledger.ErrUpstream)
	require.False(t, errors.Is(err, asynq.SkipRetry))
	got, _ := f.service.Get(context.Background(), rep.ID)
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, "ledger source is unavailable, the report will be retried", got.ErrorMessage)

	healthy.Store(true)
	require.NoError(t, f.job.Handle(context.Background(), reportTask(t, rep.ID)))
	got, _ = f.service.Get(context.Background(), rep.ID)
	require.Equal(t, StatusCompleted, got.Status)
	require.Empty(t, got.ErrorMessage)
	require.Equal(t, float64(1), counterValue(t, f.reg, "finreport_jobs_failures_total"))
}

// deadlineStore refuses status writes once the caller's context is done, as a
// database pool does.
type deadlineStore struct {
	*memStore
}

func (s deadlineStore) MarkFailed(ctx context.Context, id int64, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.memStore.MarkFailed(ctx, id, msg)
}

func TestJobRecordsFailureAfterDeadline(t *testing.T) {
	source := ledger.SourceFunc(func(ctx context.Context, _ ledger.Query) (ledger.Dataset, error) {
		<-ctx.Done()
		return ledger.Dataset{}, ctx.Err()
	})
	gen, _ := newTestGenerator(t, source, nil)
	svc := NewService(deadlineStore{newMemStore(testTemplate())}, nil)
	job := NewJob(JobConfig{Service: svc, Generator: gen})
	rep, err := svc.Create(context.Background(), CreateRequest{TemplateID: 1, Month: "06", Year: 2024, Branch: "HQ", Ledger: "MAIN"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = job.Handle(ctx, reportTask(t, rep.ID))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, errors.Is(err, asynq.SkipRetry))

	got, err := svc.Get(context.Background(), rep.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, "report generation timed out", got.ErrorMessage)
	// the retry can claim the report again
	require.NoError(t, svc.MarkInProgress(context.Background(), rep.ID))
}

func TestJobRejectsBadTasks(t *testing.T) {
	f := newJobFixture(t, ledgerFixture(), testTemplate())

	err := f.job.Handle(context.Background(), asynq.NewTask(jobs.TaskReportGenerate, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.ErrorIs(t, err, jobs.ErrInvalidPayload)

	err = f.job.Handle(context.Background(), reportTask(t, 99))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.ErrorIs(t, err, ErrReportNotFound)
}

func TestUserMessageHidesDetails(t *testing.T) {
	require.Equal(t, "ledger source rejected the configured credentials", userMessage(ledger.ErrUnauthorized))
	require.Equal(t, "report generation timed out", userMessage(context.DeadlineExceeded))
	require.Equal(t, "report generation failed", userMessage(errors.New("pq: connection refused")))
}

package finreport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/finreport/internal/jobs"
	"github.com/odyssey-erp/finreport/internal/ledger"
	"github.com/odyssey-erp/finreport/jobs"
)

// failureWriteTimeout bounds the status write after a failed attempt. It runs on a
// context detached from the task so an expired deadline still records FAILED.
const failureWriteTimeout = 10 * time.Second

// JobConfig wires dependencies required by the worker job.
type JobConfig struct {
	Service   *Service
	Generator *Generator
	Metrics   *jobmetrics.Metrics
	Logger    *slog.Logger
}

// Job processes report generation requests coming from the queue.
type Job struct {
	service   *Service
	generator *Generator
	metrics   *jobmetrics.Metrics
	logger    *slog.Logger
}

// NewJob constructs a Job handler.
func NewJob(cfg JobConfig) *Job {
	return &Job{service: cfg.Service, generator: cfg.Generator, metrics: cfg.Metrics, logger: cfg.Logger}
}

// Handle fulfils the asynq.HandlerFunc contract. Configuration failures are
// marked FAILED and not retried; upstream failures are marked FAILED and returned
// so asynq retries them.
func (j *Job) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.service == nil || j.generator == nil {
		return fmt.Errorf("finreport job not configured")
	}
	payload, err := jobs.DecodeReportPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics.Track(jobs.TaskReportGenerate)
	defer func() {
		err = tracker.End(err)
	}()

	rep, err := j.service.Get(ctx, payload.ReportID)
	if err != nil {
		if errors.Is(err, ErrReportNotFound) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	if rep.Status == StatusCompleted {
		return nil
	}
	if err := j.service.MarkInProgress(ctx, rep.ID); err != nil {
		if errors.Is(err, ErrInvalidStatus) {
			current, loadErr := j.service.Get(ctx, rep.ID)
			if loadErr == nil && (current.Status == StatusInProgress || current.Status == StatusCompleted) {
				return nil
			}
		}
		return err
	}
	log := j.log().With(slog.Int64("report_id", rep.ID), slog.String("tenant", rep.Tenant))

	tpl, err := j.service.GetTemplate(ctx, rep.TemplateID)
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			err = fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		return j.fail(ctx, log, rep, err)
	}
	res, err := j.generator.Generate(ctx, rep, tpl)
	if err != nil {
		return j.fail(ctx, log, rep, err)
	}
	j.metrics.AddDefaulted(rep.Tenant, res.Defaulted)
	j.metrics.AddUnresolved(rep.Tenant, len(res.Merge.Unresolved))
	if _, err := j.service.MarkCompleted(ctx, rep, res); err != nil {
		return j.fail(ctx, log, rep, err)
	}
	log.Info("financial report completed", slog.String("file", res.Output.Path), slog.Bool("pdf", res.Output.PDFPath != ""))
	return nil
}

func (j *Job) fail(ctx context.Context, log *slog.Logger, rep Report, cause error) error {
	log.Error("financial report failed", slog.Any("error", cause))
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()
	if err := j.service.MarkFailed(wctx, rep.ID, userMessage(cause)); err != nil {
		log.Warn("mark report failed", slog.Any("error", err))
	}
	if errors.Is(cause, ErrConfiguration) {
		return fmt.Errorf("%w: %w", cause, asynq.SkipRetry)
	}
	return cause
}

// userMessage turns a pipeline error into the message stored on the record.
// Details stay in the logs.
func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrConfiguration):
		return "report configuration is invalid: check the template file, tenant and period"
	case errors.Is(err, ledger.ErrUnauthorized):
		return "ledger source rejected the configured credentials"
	case errors.Is(err, ledger.ErrUpstream):
		return "ledger source is unavailable, the report will be retried"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "report generation timed out"
	default:
		return "report generation failed"
	}
}

func (j *Job) log() *slog.Logger {
	if j.logger == nil {
		return slog.Default()
	}
	return j.logger
}

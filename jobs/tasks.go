package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReportGenerate generates one financial report.
	TaskReportGenerate = "report:generate"
	// TaskReportSweep re-enqueues reports stuck in PENDING or IN_PROGRESS.
	TaskReportSweep = "report:sweep"
)

// ReportPayload identifies the report to generate.
type ReportPayload struct {
	ReportID int64 `json:"report_id"`
}

// ReportTimeout bounds a single generation attempt.
const ReportTimeout = 10 * time.Minute

// ErrInvalidPayload is returned for tasks that can never be processed.
var ErrInvalidPayload = errors.New("jobs: invalid payload")

// NewReportGenerateTask constructs an Asynq task. Generation is retried a few
// times for upstream failures and is unique per report while queued.
func NewReportGenerateTask(reportID int64) (*asynq.Task, error) {
	if reportID <= 0 {
		return nil, ErrInvalidPayload
	}
	body, err := json.Marshal(ReportPayload{ReportID: reportID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportGenerate, body,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.Timeout(ReportTimeout),
		asynq.Unique(15*time.Minute),
	), nil
}

// DecodeReportPayload parses a task payload.
func DecodeReportPayload(t *asynq.Task) (ReportPayload, error) {
	var payload ReportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return ReportPayload{}, errors.Join(ErrInvalidPayload, err)
	}
	if payload.ReportID <= 0 {
		return ReportPayload{}, ErrInvalidPayload
	}
	return payload, nil
}

// NewReportSweepTask constructs the periodic sweep task.
func NewReportSweepTask() *asynq.Task {
	return asynq.NewTask(TaskReportSweep, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(0))
}

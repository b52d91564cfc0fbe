package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/finreport/jobs"
)

// Queue is the subset of the asynq inspector the CLI reads.
type Queue interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListRetryTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// Enqueuer submits report generation tasks.
type Enqueuer interface {
	EnqueueReport(ctx context.Context, reportID int64) (*asynq.TaskInfo, error)
}

// JobsCLI wraps manual management helpers for report jobs.
type JobsCLI struct {
	client    Enqueuer
	inspector Queue
	closers   []io.Closer
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client, err := jobs.NewClient(opts)
	if err != nil {
		return nil, err
	}
	inspector := asynq.NewInspector(opts)
	return &JobsCLI{client: client, inspector: inspector, closers: []io.Closer{client, inspector}}, nil
}

// NewJobsCLIWith wires explicit collaborators.
func NewJobsCLIWith(client Enqueuer, inspector Queue) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	for _, closer := range c.closers {
		if closeErr := closer.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Enqueue submits generation of a report. A report already queued is reported
// as such rather than failing.
func (c *JobsCLI) Enqueue(ctx context.Context, reportID int64, stdout io.Writer) error {
	if c == nil || c.client == nil {
		return errors.New("jobs cli: client not configured")
	}
	info, err := c.client.EnqueueReport(ctx, reportID)
	if err != nil {
		return err
	}
	if info == nil {
		_, _ = fmt.Fprintf(stdout, "report %d is already queued\n", reportID)
		return nil
	}
	_, _ = fmt.Fprintf(stdout, "enqueued report %d as task %s on %s\n", reportID, info.ID, info.Queue)
	return nil
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string   `json:"queue"`
	Pending   int      `json:"pending"`
	Active    int      `json:"active"`
	Scheduled int      `json:"scheduled"`
	Retry     int      `json:"retry"`
	Archived  int      `json:"archived"`
	Retrying  []string `json:"retrying,omitempty"`
}

// InspectQueue reports the default queue metrics and the ids of tasks waiting
// for a retry.
func (c *JobsCLI) InspectQueue(ctx context.Context, retrySample int) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	if stats.Retry == 0 || retrySample <= 0 {
		return stats, nil
	}
	tasks, err := c.inspector.ListRetryTasks(jobs.QueueDefault, asynq.PageSize(retrySample), asynq.Page(1))
	if err != nil {
		return stats, err
	}
	for _, task := range tasks {
		line := task.Type
		if payload, err := jobs.DecodeReportPayload(asynq.NewTask(task.Type, task.Payload)); err == nil {
			line = fmt.Sprintf("%s report=%d", task.Type, payload.ReportID)
		}
		if task.LastErr != "" {
			line += ": " + task.LastErr
		}
		stats.Retrying = append(stats.Retrying, line)
	}
	return stats, nil
}

// QueueOptions defines the flags of the queue command.
type QueueOptions struct {
	RetrySample int
	JSONOutput  bool
	Stdout      io.Writer
	Stderr      io.Writer
}

// QueueCommand prints queue statistics and returns the process exit code.
func (c *JobsCLI) QueueCommand(ctx context.Context, opts QueueOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	stats, err := c.InspectQueue(ctx, opts.RetrySample)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "queue: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(stats); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "queue: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "queue %s: pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	for _, line := range stats.Retrying {
		_, _ = fmt.Fprintf(opts.Stdout, "  retry %s\n", line)
	}
	return 0
}

package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestReportTaskRoundTrip(t *testing.T) {
	task, err := NewReportGenerateTask(42)
	require.NoError(t, err)
	require.Equal(t, TaskReportGenerate, task.Type())

	payload, err := DecodeReportPayload(task)
	require.NoError(t, err)
	require.Equal(t, int64(42), payload.ReportID)

	_, err = NewReportGenerateTask(0)
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDecodeReportPayloadRejectsGarbage(t *testing.T) {
	for _, body := range []string{"", "{", `{"report_id":-1}`, `{"report_id":"7"}`} {
		_, err := DecodeReportPayload(asynq.NewTask(TaskReportGenerate, []byte(body)))
		require.ErrorIs(t, err, ErrInvalidPayload, body)
	}
}

func TestClientRequiresConfiguration(t *testing.T) {
	var c *Client
	_, err := c.EnqueueReport(context.Background(), 1)
	require.Error(t, err)
	require.NoError(t, c.Close())
}

func TestQueueHealth(t *testing.T) {
	got := QueueHealthFrom(&asynq.QueueInfo{Queue: QueueDefault, Pending: 2, Active: 1, Retry: 3, Processed: 10, Failed: 1})
	require.Equal(t, QueueHealth{Queue: QueueDefault, Pending: 2, Active: 1, Retry: 3, Processed: 10, Failed: 1}, got)
	require.Equal(t, QueueHealth{Queue: QueueDefault}, QueueHealthFrom(nil))

	r := chi.NewRouter()
	NewHandler(nil, nil).MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body QueueHealth
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, QueueDefault, body.Queue)
}

func TestRetryDelay(t *testing.T) {
	task, err := NewReportGenerateTask(1)
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, RetryDelay(0, nil, task))
	require.Equal(t, 2*time.Minute, RetryDelay(1, nil, task))
	require.Equal(t, 8*time.Minute, RetryDelay(2, nil, task))
	require.Equal(t, 8*time.Minute, RetryDelay(7, nil, task))

	require.Positive(t, RetryDelay(1, nil, NewReportSweepTask()))
}

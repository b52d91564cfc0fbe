package finreport

import (
	"context"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type queueRecorder struct {
	ids []int64
}

func (q *queueRecorder) EnqueueReport(_ context.Context, id int64) (*asynq.TaskInfo, error) {
	q.ids = append(q.ids, id)
	return &asynq.TaskInfo{}, nil
}

func TestSweepEnqueuesStalePendingReports(t *testing.T) {
	now := time.Date(2024, time.July, 3, 12, 0, 0, 0, time.UTC)
	store := newMemStore(testTemplate())
	store.reports = map[int64]Report{
		1: {ID: 1, Status: StatusPending, CreatedAt: now.Add(-time.Hour)},
		2: {ID: 2, Status: StatusPending, CreatedAt: now.Add(-time.Minute)},
		3: {ID: 3, Status: StatusFailed, CreatedAt: now.Add(-time.Hour)},
	}
	store.nextID = 3
	queue := &queueRecorder{}
	sweeper := NewSweeper(NewService(store, nil), queue, 10*time.Minute, nil, nil)
	sweeper.now = func() time.Time { return now }

	n, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []int64{1}, queue.ids)

	require.NoError(t, sweeper.Handle(context.Background(), asynq.NewTask("report:sweep", nil)))
	require.Equal(t, []int64{1, 1}, queue.ids)
}

func TestSweepReclaimsInterruptedReports(t *testing.T) {
	now := time.Date(2024, time.July, 3, 12, 0, 0, 0, time.UTC)
	store := newMemStore(testTemplate())
	store.reports = map[int64]Report{
		1: {ID: 1, Status: StatusInProgress, CreatedAt: now.Add(-time.Hour), UpdatedAt: now.Add(-30 * time.Minute)},
		2: {ID: 2, Status: StatusInProgress, CreatedAt: now.Add(-time.Hour), UpdatedAt: now.Add(-5 * time.Minute)},
		3: {ID: 3, Status: StatusCompleted, CreatedAt: now.Add(-time.Hour), UpdatedAt: now.Add(-time.Hour)},
	}
	store.nextID = 3
	queue := &queueRecorder{}
	sweeper := NewSweeper(NewService(store, nil), queue, 10*time.Minute, nil, nil)
	sweeper.now = func() time.Time { return now }

	n, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []int64{1}, queue.ids)

	require.Equal(t, StatusPending, store.reports[1].Status)
	require.Equal(t, "report generation was interrupted, the report will be retried", store.reports[1].ErrorMessage)
	require.Equal(t, StatusInProgress, store.reports[2].Status)
	require.Equal(t, StatusCompleted, store.reports[3].Status)
}

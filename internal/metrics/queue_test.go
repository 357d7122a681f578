package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/cabinet/cabinet/internal/model"
)

type stubTaskCounter struct {
	counts map[model.TaskStatus]int64
	err    error
}

func (s stubTaskCounter) CountTasksByStatus(ctx context.Context) (map[model.TaskStatus]int64, error) {
	return s.counts, s.err
}

func TestTaskQueueCollector(t *testing.T) {
	c := NewTaskQueueCollector(stubTaskCounter{counts: map[model.TaskStatus]int64{
		model.TaskPending: 4,
		model.TaskClaimed: 1,
	}}, 0)

	expected := `
# HELP cabinet_engagement_tasks Engagement tasks by status.
# TYPE cabinet_engagement_tasks gauge
cabinet_engagement_tasks{status="claimed"} 1
cabinet_engagement_tasks{status="done"} 0
cabinet_engagement_tasks{status="exhausted"} 0
cabinet_engagement_tasks{status="failed"} 0
cabinet_engagement_tasks{status="pending"} 4
# HELP cabinet_engagement_tasks_count_up Whether the last task count query succeeded.
# TYPE cabinet_engagement_tasks_count_up gauge
cabinet_engagement_tasks_count_up 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))
}

func TestTaskQueueCollector_CountFailure(t *testing.T) {
	c := NewTaskQueueCollector(stubTaskCounter{err: errors.New("db down")}, 0)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	expected := `
# HELP cabinet_engagement_tasks_count_up Whether the last task count query succeeded.
# TYPE cabinet_engagement_tasks_count_up gauge
cabinet_engagement_tasks_count_up 0
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected)))
}

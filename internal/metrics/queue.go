package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cabinet/cabinet/internal/model"
)

// TaskCounter counts engagement tasks per status.
type TaskCounter interface {
	CountTasksByStatus(ctx context.Context) (map[model.TaskStatus]int64, error)
}

var taskStatuses = []model.TaskStatus{
	model.TaskPending,
	model.TaskClaimed,
	model.TaskDone,
	model.TaskFailed,
	model.TaskExhausted,
}

// TaskQueueCollector reports the engagement queue depth on every scrape.
// A failed count is reported through the up gauge instead of failing the
// scrape.
type TaskQueueCollector struct {
	counter TaskCounter
	timeout time.Duration
	depth   *prometheus.Desc
	up      *prometheus.Desc
}

// NewTaskQueueCollector creates a TaskQueueCollector.
func NewTaskQueueCollector(counter TaskCounter, timeout time.Duration) *TaskQueueCollector {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &TaskQueueCollector{
		counter: counter,
		timeout: timeout,
		depth: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "engagement", "tasks"),
			"Engagement tasks by status.",
			[]string{"status"}, nil,
		),
		up: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "engagement", "tasks_count_up"),
			"Whether the last task count query succeeded.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *TaskQueueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.depth
	ch <- c.up
}

// Collect implements prometheus.Collector.
func (c *TaskQueueCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	counts, err := c.counter.CountTasksByStatus(ctx)
	if err != nil {
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)
	for _, s := range taskStatuses {
		ch <- prometheus.MustNewConstMetric(c.depth, prometheus.GaugeValue, float64(counts[s]), string(s))
	}
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cabinet"

// PrometheusRecorder exports metrics through a dedicated Prometheus registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	redditRequests *prometheus.CounterVec
	redditDuration *prometheus.HistogramVec
	scrapes        *prometheus.CounterVec
	importedRows   *prometheus.CounterVec
	taskEvents     *prometheus.CounterVec
	syncWrites     *prometheus.CounterVec
	syncReads      *prometheus.CounterVec
	invitations    *prometheus.CounterVec
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
}

// NewPrometheus creates a PrometheusRecorder with Go runtime and process
// collectors registered.
func NewPrometheus() *PrometheusRecorder {
	p := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "route"}),
		redditRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reddit",
			Name:      "requests_total",
			Help:      "Total number of outbound Reddit requests.",
		}, []string{"endpoint", "status"}),
		redditDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reddit",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound Reddit requests, including throttling.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"endpoint"}),
		scrapes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "accounts",
			Name:      "scrapes_total",
			Help:      "Account profile scrapes by result.",
		}, []string{"result"}),
		importedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "accounts",
			Name:      "imported_rows_total",
			Help:      "Rows processed by bulk imports by result.",
		}, []string{"result"}),
		taskEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engagement",
			Name:      "task_events_total",
			Help:      "Engagement task lifecycle events.",
		}, []string{"event"}),
		syncWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "writes_total",
			Help:      "Sync store writes by result.",
		}, []string{"result"}),
		syncReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "reads_total",
			Help:      "Sync store reads by the store that answered.",
		}, []string{"source"}),
		invitations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cabinet",
			Name:      "invitation_events_total",
			Help:      "Cabinet invitation lifecycle events.",
		}, []string{"event"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by outcome.",
		}, []string{"job", "success"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled job runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10), // 10ms to ~45m
		}, []string{"job"}),
	}

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.httpRequests,
		p.httpDuration,
		p.redditRequests,
		p.redditDuration,
		p.scrapes,
		p.importedRows,
		p.taskEvents,
		p.syncWrites,
		p.syncReads,
		p.invitations,
		p.jobRuns,
		p.jobDuration,
	)
	return p
}

// Registry returns the underlying registry.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *PrometheusRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) ObserveRedditRequest(endpoint string, status int, duration time.Duration) {
	p.redditRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	p.redditDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) IncAccountScrape(result string) {
	p.scrapes.WithLabelValues(result).Inc()
}

func (p *PrometheusRecorder) AddImportedRows(result string, count int) {
	if count <= 0 {
		return
	}
	p.importedRows.WithLabelValues(result).Add(float64(count))
}

func (p *PrometheusRecorder) IncTaskEvent(event string) {
	p.taskEvents.WithLabelValues(event).Inc()
}

func (p *PrometheusRecorder) IncSyncWrite(result string) {
	p.syncWrites.WithLabelValues(result).Inc()
}

func (p *PrometheusRecorder) IncSyncRead(source string) {
	p.syncReads.WithLabelValues(source).Inc()
}

func (p *PrometheusRecorder) IncInvitation(event string) {
	p.invitations.WithLabelValues(event).Inc()
}

func (p *PrometheusRecorder) ObserveJobRun(job string, duration time.Duration, err error) {
	p.jobRuns.WithLabelValues(job, strconv.FormatBool(err == nil)).Inc()
	p.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

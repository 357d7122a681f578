package metrics

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
// Labeled counters are keyed by their label value.
type Snapshot struct {
	HTTPRequests          uint64
	HTTPServerErrors      uint64
	HTTPDurationTotalNs   int64
	RedditRequests        uint64
	RedditDurationTotalNs int64
	AccountScrapes        map[string]uint64
	ImportedRows          map[string]uint64
	TaskEvents            map[string]uint64
	SyncWrites            map[string]uint64
	SyncReads             map[string]uint64
	Invitations           map[string]uint64
	JobRuns               map[string]uint64
	JobFailures           map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	httpRequests          uint64
	httpServerErrors      uint64
	httpDurationTotalNs   int64
	redditRequests        uint64
	redditDurationTotalNs int64

	mu       sync.Mutex
	counters map[string]map[string]uint64
}

const (
	familyScrapes     = "scrapes"
	familyImports     = "imports"
	familyTasks       = "tasks"
	familySyncWrites  = "sync_writes"
	familySyncReads   = "sync_reads"
	familyInvitations = "invitations"
	familyJobRuns     = "job_runs"
	familyJobFailures = "job_failures"
)

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{counters: make(map[string]map[string]uint64)}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		HTTPRequests:          atomic.LoadUint64(&m.httpRequests),
		HTTPServerErrors:      atomic.LoadUint64(&m.httpServerErrors),
		HTTPDurationTotalNs:   atomic.LoadInt64(&m.httpDurationTotalNs),
		RedditRequests:        atomic.LoadUint64(&m.redditRequests),
		RedditDurationTotalNs: atomic.LoadInt64(&m.redditDurationTotalNs),
		AccountScrapes:        m.copyFamily(familyScrapes),
		ImportedRows:          m.copyFamily(familyImports),
		TaskEvents:            m.copyFamily(familyTasks),
		SyncWrites:            m.copyFamily(familySyncWrites),
		SyncReads:             m.copyFamily(familySyncReads),
		Invitations:           m.copyFamily(familyInvitations),
		JobRuns:               m.copyFamily(familyJobRuns),
		JobFailures:           m.copyFamily(familyJobFailures),
	}
}

func (m *InMemoryRecorder) copyFamily(family string) map[string]uint64 {
	out := make(map[string]uint64, len(m.counters[family]))
	maps.Copy(out, m.counters[family])
	return out
}

func (m *InMemoryRecorder) add(family, label string, n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[family]
	if !ok {
		c = make(map[string]uint64)
		m.counters[family] = c
	}
	c[label] += n
}

// ObserveHTTPRequest counts a served request.
func (m *InMemoryRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	atomic.AddUint64(&m.httpRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&m.httpServerErrors, 1)
	}
	atomic.AddInt64(&m.httpDurationTotalNs, duration.Nanoseconds())
}

// ObserveRedditRequest counts an outbound Reddit request.
func (m *InMemoryRecorder) ObserveRedditRequest(endpoint string, status int, duration time.Duration) {
	atomic.AddUint64(&m.redditRequests, 1)
	atomic.AddInt64(&m.redditDurationTotalNs, duration.Nanoseconds())
}

// IncAccountScrape increments the scrape counter for result.
func (m *InMemoryRecorder) IncAccountScrape(result string) {
	m.add(familyScrapes, result, 1)
}

// AddImportedRows adds count rows to the import counter for result.
func (m *InMemoryRecorder) AddImportedRows(result string, count int) {
	if count <= 0 {
		return
	}
	m.add(familyImports, result, uint64(count))
}

// IncTaskEvent increments the engagement task counter for event.
func (m *InMemoryRecorder) IncTaskEvent(event string) {
	m.add(familyTasks, event, 1)
}

// IncSyncWrite increments the sync write counter for result.
func (m *InMemoryRecorder) IncSyncWrite(result string) {
	m.add(familySyncWrites, result, 1)
}

// IncSyncRead increments the sync read counter for source.
func (m *InMemoryRecorder) IncSyncRead(source string) {
	m.add(familySyncReads, source, 1)
}

// IncInvitation increments the invitation counter for event.
func (m *InMemoryRecorder) IncInvitation(event string) {
	m.add(familyInvitations, event, 1)
}

// ObserveJobRun counts a scheduler job run and its failure.
func (m *InMemoryRecorder) ObserveJobRun(job string, duration time.Duration, err error) {
	m.add(familyJobRuns, job, 1)
	if err != nil {
		m.add(familyJobFailures, job, 1)
	}
}

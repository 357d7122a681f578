package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// ObserveHTTPRequest is a no-op.
func (n *NoopRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {}

// ObserveRedditRequest is a no-op.
func (n *NoopRecorder) ObserveRedditRequest(endpoint string, status int, duration time.Duration) {}

// IncAccountScrape is a no-op.
func (n *NoopRecorder) IncAccountScrape(result string) {}

// AddImportedRows is a no-op.
func (n *NoopRecorder) AddImportedRows(result string, count int) {}

// IncTaskEvent is a no-op.
func (n *NoopRecorder) IncTaskEvent(event string) {}

// IncSyncWrite is a no-op.
func (n *NoopRecorder) IncSyncWrite(result string) {}

// IncSyncRead is a no-op.
func (n *NoopRecorder) IncSyncRead(source string) {}

// IncInvitation is a no-op.
func (n *NoopRecorder) IncInvitation(event string) {}

// ObserveJobRun is a no-op.
func (n *NoopRecorder) ObserveJobRun(job string, duration time.Duration, err error) {}

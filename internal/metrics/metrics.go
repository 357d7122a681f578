// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// HTTP metrics
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)

	// Reddit scraping metrics
	ObserveRedditRequest(endpoint string, status int, duration time.Duration)
	IncAccountScrape(result string) // result: "success", "suspended", "failed"

	// Bulk import metrics
	AddImportedRows(result string, n int) // result: "imported", "updated", "skipped", "failed"

	// Engagement task metrics
	IncTaskEvent(event string) // event: "created", "claimed", "done", "failed", "exhausted", "released"

	// Sync store metrics
	IncSyncWrite(result string) // result: "accepted", "conflict"
	IncSyncRead(source string)  // source: "cache", "database"

	// Cabinet metrics
	IncInvitation(event string) // event: "created", "accepted", "declined", "revoked", "expired"

	// Scheduler metrics
	ObserveJobRun(job string, duration time.Duration, err error)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}

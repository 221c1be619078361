// Package auditlog records proxy activity into a local append-only file
// and publishes it to a version-controlled remote. The writer buffers
// entries and flushes them asynchronously; the publisher stages, commits
// and pushes the log artifact idempotently.
package auditlog

import "time"

// Entry is one audit record. Entries are appended to the log file as JSON
// lines; the publisher treats the file as an opaque byte-append target.
type Entry struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Status    int       `json:"status"`
	LatencyMS int64     `json:"latency_ms"`
	ClientIP  string    `json:"client_ip,omitempty"`
	Error     string    `json:"error,omitempty"`
}

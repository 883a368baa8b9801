package models

import "time"

// JobRecord is the persisted snapshot of a terminal job, kept for audit and
// debugging after the in-memory job has been evicted.
type JobRecord struct {
	Timestamp  time.Time `json:"ts"`
	JobID      string    `json:"job_id"`
	TraceID    string    `json:"trace_id"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	Payload    string    `json:"payload"`
	Error      string    `json:"error"`
	DurationMs int64     `json:"dur_ms"`
}

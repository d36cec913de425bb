package domain

import "time"

type IngestStatus string

const (
	IngestRunning   IngestStatus = "running"
	IngestSucceeded IngestStatus = "succeeded"
	IngestFailed    IngestStatus = "failed"

	FileIndexed IngestStatus = "indexed"
	FileSkipped IngestStatus = "skipped"
	FileEmpty   IngestStatus = "empty"
)

// IngestRun describes one full index rebuild.
type IngestRun struct {
	ID           string       `json:"id"`
	Trigger      string       `json:"trigger"`
	Status       IngestStatus `json:"status"`
	Generation   string       `json:"generation,omitempty"`
	FilesTotal   int          `json:"files_total"`
	FilesSkipped int          `json:"files_skipped"`
	Pages        int          `json:"pages"`
	Chunks       int          `json:"chunks"`
	Error        string       `json:"error,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   *time.Time   `json:"finished_at,omitempty"`
	Files        []IngestFile `json:"files,omitempty"`
}

// IngestFile is the per-PDF outcome of a rebuild.
type IngestFile struct {
	Source string       `json:"source"`
	Status IngestStatus `json:"status"`
	Pages  int          `json:"pages"`
	Chunks int          `json:"chunks"`
	Error  string       `json:"error,omitempty"`
}

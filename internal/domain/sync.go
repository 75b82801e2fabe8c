package domain

import "time"

// SyncSummary is the aggregate of one sync run. It only lives for the
// duration of the process; the CSV export is the durable artifact.
type SyncSummary struct {
	RunID         string     `json:"run_id"`
	DryRun        bool       `json:"dry_run"`
	Created       int        `json:"created"`
	Updated       int        `json:"updated"`
	Batches       int        `json:"batches"`
	FailedBatches int        `json:"failed_batches"`
	FailedItems   int        `json:"failed_items"`
	Linked        int        `json:"linked"`
	LinkFailures  int        `json:"link_failures"`
	TotalExpected *int       `json:"total_expected,omitempty"`
	ExportPath    string     `json:"export_path,omitempty"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// Processed returns the number of items that reached a reconcile step
func (s *SyncSummary) Processed() int {
	return s.Created + s.Updated + s.FailedItems
}

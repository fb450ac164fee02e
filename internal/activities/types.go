package activities

// WriteSyncRunInput identifies the run to write.
type WriteSyncRunInput struct {
	RunID string `json:"runId"`
}

// WriteSyncRunResult is the final state of a written run.
type WriteSyncRunResult struct {
	RunID     string `json:"runId"`
	Status    string `json:"status"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

// PruneReportsInput configures report retention.
type PruneReportsInput struct {
	RetentionDays int `json:"retentionDays"`
}

// SyncRunWorkflowInput is the input of SyncRunWorkflow.
type SyncRunWorkflowInput struct {
	RunID                string `json:"runId"`
	ReportsRetentionDays int    `json:"reportsRetentionDays,omitempty"`
}

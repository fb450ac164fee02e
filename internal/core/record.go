package core

// RecordStatus is the delivery state of a record.
type RecordStatus string

const (
	RecordPending RecordStatus = "pending"
	RecordSuccess RecordStatus = "success"
	RecordFailed  RecordStatus = "failed"
)

// Action is the per-record intent carried from the source diff.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// Record is one source row queued for delivery in a run.
type Record struct {
	ID      int64          `json:"id"`
	RunID   string         `json:"runId"`
	Payload map[string]any `json:"payload"`
	Action  Action         `json:"action"`
	Status  RecordStatus   `json:"status"`
	Log     *LogEntry      `json:"log,omitempty"`
}

// Settle sets the final status of the current attempt. A record that is
// already settled keeps its status.
func (r *Record) Settle(status RecordStatus, log *LogEntry) bool {
	if r.Status != RecordPending && r.Status != "" {
		return false
	}
	r.Status = status
	r.Log = log
	return true
}

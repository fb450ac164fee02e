package core

import (
	"fmt"
)

// RunStatus is the lifecycle state of a sync run.
type RunStatus string

const (
	RunPending    RunStatus = "pending"
	RunStarted    RunStatus = "started"
	RunQuerying   RunStatus = "querying"
	RunQueued     RunStatus = "queued"
	RunInProgress RunStatus = "in_progress"
	RunSuccess    RunStatus = "success"
	RunFailed     RunStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s RunStatus) Terminal() bool {
	return s == RunSuccess || s == RunFailed
}

// RunTotals is the aggregate outcome of a run.
type RunTotals struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Run is one execution of a sync.
type Run struct {
	ID     string      `json:"id"`
	SyncID string      `json:"syncId"`
	Status RunStatus   `json:"status"`
	Sync   *SyncConfig `json:"sync,omitempty"`
	Totals RunTotals   `json:"totals"`
	Error  string      `json:"error,omitempty"`
}

// CanProgress reports whether the run may move to in_progress.
func (r *Run) CanProgress() bool {
	switch r.Status {
	case RunStarted, RunQuerying, RunQueued:
		return true
	}
	return false
}

// Progress moves the run to in_progress.
func (r *Run) Progress() error {
	if !r.CanProgress() {
		return fmt.Errorf("run %s cannot progress from %q", r.ID, r.Status)
	}
	r.Status = RunInProgress
	return nil
}

// Complete moves an in-progress run to success, or to failed when every
// attempted record failed.
func (r *Run) Complete(totals RunTotals) {
	r.Totals = totals
	if totals.Failed > 0 && totals.Succeeded == 0 {
		r.Status = RunFailed
		return
	}
	r.Status = RunSuccess
}

// Fail marks the run failed with a reason.
func (r *Run) Fail(reason string) {
	r.Status = RunFailed
	r.Error = reason
}

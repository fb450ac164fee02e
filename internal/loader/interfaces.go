package loader

import (
	"context"

	"github.com/igualparatodos/multiwoven/internal/core"
)

// Store persists runs and their records.
type Store interface {
	// GetRun loads a run together with its sync configuration.
	GetRun(ctx context.Context, runID string) (*core.Run, error)

	// UpdateRunStatus persists the run's status and error.
	UpdateRunStatus(ctx context.Context, run *core.Run) error

	// SaveRunTotals persists the aggregate counts of a run.
	SaveRunTotals(ctx context.Context, runID string, totals core.RunTotals) error

	// PendingRecords returns up to limit pending records with an id greater
	// than afterID, ordered by id.
	PendingRecords(ctx context.Context, runID string, afterID int64, limit int) ([]*core.Record, error)

	// UpdateRecord persists one record's status and log.
	UpdateRecord(ctx context.Context, rec *core.Record) error

	// BulkUpdateStatus persists the status and log of many records.
	BulkUpdateStatus(ctx context.Context, recs []*core.Record) error
}

// HeartbeatResponse is the host's answer to a heartbeat.
type HeartbeatResponse struct {
	CancelRequested bool
}

// Host is the process running the loader. It receives a heartbeat after
// every unit of work and may request cancellation.
type Host interface {
	Heartbeat(ctx context.Context) HeartbeatResponse
}

// ReportSink archives settled records and run summaries.
type ReportSink interface {
	Append(ctx context.Context, runID string, recs []*core.Record) (string, error)
	WriteSummary(ctx context.Context, run *core.Run) (string, error)
}

// NoCancelHost never requests cancellation.
type NoCancelHost struct{}

func (NoCancelHost) Heartbeat(context.Context) HeartbeatResponse {
	return HeartbeatResponse{}
}

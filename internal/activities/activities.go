// Package activities exposes the loader as Temporal activities and defines
// the workflow that drives them.
package activities

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/igualparatodos/multiwoven/internal/core"
	"github.com/igualparatodos/multiwoven/internal/loader"
	"github.com/igualparatodos/multiwoven/internal/reportstore"
)

// Activities holds the write pipeline activities.
type Activities struct {
	store   loader.Store
	loader  *loader.Loader
	reports *reportstore.Store
}

// NewActivities creates the activities. The loader heartbeats through the
// activity context; reports may be nil.
func NewActivities(store loader.Store, reports *reportstore.Store, opts ...loader.Option) *Activities {
	if reports != nil {
		opts = append(opts, loader.WithReportSink(reports))
	}
	return &Activities{
		store:   store,
		loader:  loader.New(store, TemporalHost{}, opts...),
		reports: reports,
	}
}

// =============================================================================
// ACTIVITY 1: WriteSyncRun
// =============================================================================

// WriteSyncRun loads a run and writes its pending records.
func (a *Activities) WriteSyncRun(ctx context.Context, in WriteSyncRunInput) (*WriteSyncRunResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("writing sync run", "runId", in.RunID)

	run, err := a.store.GetRun(ctx, in.RunID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", in.RunID, err)
	}

	if err := a.loader.Write(ctx, run); err != nil {
		logger.Error("sync run failed", "runId", run.ID, "status", run.Status, "error", err)
		return nil, toApplicationError(run, err)
	}

	logger.Info("sync run written",
		"runId", run.ID,
		"status", run.Status,
		"succeeded", run.Totals.Succeeded,
		"failed", run.Totals.Failed,
	)
	return &WriteSyncRunResult{
		RunID:     run.ID,
		Status:    string(run.Status),
		Total:     run.Totals.Total,
		Succeeded: run.Totals.Succeeded,
		Failed:    run.Totals.Failed,
	}, nil
}

// =============================================================================
// ACTIVITY 2: PruneReports
// =============================================================================

// PruneReports deletes archived run reports older than the retention.
func (a *Activities) PruneReports(ctx context.Context, in PruneReportsInput) (int, error) {
	logger := activity.GetLogger(ctx)
	if a.reports == nil || in.RetentionDays <= 0 {
		logger.Info("report-prune-skip", "reason", "retention<=0 or no archive")
		return 0, nil
	}
	removed, err := a.reports.Prune(ctx, in.RetentionDays)
	if err != nil {
		logger.Warn("report-prune-failed", "error", err)
		return 0, err
	}
	logger.Info("report-prune-done", "removed", removed, "retentionDays", in.RetentionDays)
	return removed, nil
}

// toApplicationError keeps store failures that happened before the run was
// marked failed retryable. Everything else ends the workflow.
func toApplicationError(run *core.Run, err error) error {
	errType := "WriteFailed"
	var coded *core.Error
	switch {
	case errors.Is(err, core.ErrRunFatal):
		errType = core.CodeDestinationFatal
	case errors.Is(err, core.ErrRunAborted):
		errType = core.CodeRunAborted
	case errors.As(err, &coded):
		errType = coded.Code
		if coded.Retryable && run.Status != core.RunFailed {
			return temporal.NewApplicationError(err.Error(), errType, err)
		}
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), errType, err)
}

// =============================================================================
// HOST
// =============================================================================

// TemporalHost heartbeats the current activity and reports cancellation once
// the activity context is done.
type TemporalHost struct{}

var _ loader.Host = TemporalHost{}

func (TemporalHost) Heartbeat(ctx context.Context) loader.HeartbeatResponse {
	activity.RecordHeartbeat(ctx)
	return loader.HeartbeatResponse{CancelRequested: ctx.Err() != nil}
}

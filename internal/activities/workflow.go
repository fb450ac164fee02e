package activities

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// SyncRunWorkflowName is the registered name of SyncRunWorkflow.
const SyncRunWorkflowName = "syncRunWorkflow"

var writeActivityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: 6 * time.Hour,
	HeartbeatTimeout:    2 * time.Minute,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    5 * time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    5 * time.Minute,
		MaximumAttempts:    3,
	},
}

var pruneActivityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: 10 * time.Minute,
	RetryPolicy: &temporal.RetryPolicy{
		MaximumAttempts: 1,
	},
}

// SyncRunWorkflow writes one run and then prunes old reports. A prune
// failure does not fail the workflow.
func SyncRunWorkflow(ctx workflow.Context, in SyncRunWorkflowInput) (*WriteSyncRunResult, error) {
	var a *Activities

	writeCtx := workflow.WithActivityOptions(ctx, writeActivityOptions)
	var result WriteSyncRunResult
	if err := workflow.ExecuteActivity(writeCtx, a.WriteSyncRun, WriteSyncRunInput{RunID: in.RunID}).Get(ctx, &result); err != nil {
		return nil, err
	}

	if in.ReportsRetentionDays > 0 {
		pruneCtx := workflow.WithActivityOptions(ctx, pruneActivityOptions)
		var removed int
		if err := workflow.ExecuteActivity(pruneCtx, a.PruneReports, PruneReportsInput{RetentionDays: in.ReportsRetentionDays}).Get(ctx, &removed); err != nil {
			workflow.GetLogger(ctx).Warn("report prune failed", "runId", in.RunID, "error", err)
		}
	}
	return &result, nil
}

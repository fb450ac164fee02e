package activities

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/igualparatodos/multiwoven/internal/core"
	"github.com/igualparatodos/multiwoven/internal/endpoint"
	"github.com/igualparatodos/multiwoven/internal/handler"
	"github.com/igualparatodos/multiwoven/internal/loader"
	"github.com/igualparatodos/multiwoven/internal/objectstore"
	"github.com/igualparatodos/multiwoven/internal/reportstore"
	"github.com/igualparatodos/multiwoven/internal/store/memory"
)

// =============================================================================
// MOCK TYPES
// =============================================================================

// stubDestination answers every write with the message built by reply.
type stubDestination struct {
	reply func(req *endpoint.WriteRequest) *core.Message
}

func (d *stubDestination) ID() string { return "stub" }

func (d *stubDestination) ValidateConfig(context.Context) (*endpoint.ValidationResult, error) {
	return &endpoint.ValidationResult{Valid: true}, nil
}

func (d *stubDestination) GetCapabilities() *endpoint.Capabilities {
	return &endpoint.Capabilities{SupportsInsert: true}
}

func (d *stubDestination) GetDescriptor() *endpoint.Descriptor {
	return &endpoint.Descriptor{ID: "stub"}
}

func (d *stubDestination) Write(_ context.Context, req *endpoint.WriteRequest) *core.Message {
	return d.reply(req)
}

func (d *stubDestination) Close() error { return nil }

func succeedAll(req *endpoint.WriteRequest) *core.Message {
	report := core.NewTrackingReport()
	report.Succeed(len(req.Records), nil)
	return core.TrackingMessage(report)
}

func newActivities(t *testing.T, dest *stubDestination) (*Activities, *memory.Store, *reportstore.Store) {
	t.Helper()
	store := memory.New()
	reports := reportstore.New(objectstore.NewLocalStore(t.TempDir()), "reports", "runs", nil)

	destinations := endpoint.NewRegistry()
	destinations.Register("stub", func(map[string]any) (endpoint.Destination, error) {
		return dest, nil
	})
	acts := NewActivities(store, reports,
		loader.WithDestinations(destinations),
		loader.WithHandlers(handler.NewRegistry()),
	)
	return acts, store, reports
}

func seedRun(t *testing.T, store *memory.Store, n int) {
	t.Helper()
	cfg := &core.SyncConfig{
		ID:                  "sync-1",
		DestinationSyncMode: core.SyncInsert,
		Mapping:             map[string]string{"id": "external_id"},
		Stream:              core.StreamConfig{BatchSupport: true, BatchSize: 2},
		Destination:         core.DestinationConfig{Connector: "stub"},
	}
	require.NoError(t, cfg.Prepare())
	store.AddRun(&core.Run{ID: "run-1", SyncID: cfg.ID, Status: core.RunQueued, Sync: cfg})

	payloads := make([]map[string]any, n)
	for i := range payloads {
		payloads[i] = map[string]any{"id": i}
	}
	store.AddRecords("run-1", payloads, core.ActionCreate)
}

// =============================================================================
// ACTIVITY TESTS
// =============================================================================

func TestWriteSyncRun_Unit_Success(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()

	acts, store, reports := newActivities(t, &stubDestination{reply: succeedAll})
	seedRun(t, store, 5)
	env.RegisterActivity(acts)

	val, err := env.ExecuteActivity(acts.WriteSyncRun, WriteSyncRunInput{RunID: "run-1"})
	require.NoError(t, err)

	var result WriteSyncRunResult
	require.NoError(t, val.Get(&result))
	assert.Equal(t, string(core.RunSuccess), result.Status)
	assert.Equal(t, 5, result.Succeeded)

	lines, err := reports.ReadRecords(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Len(t, lines, 5)
}

func TestWriteSyncRun_Unit_FatalIsNonRetryable(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()

	acts, store, _ := newActivities(t, &stubDestination{reply: func(*endpoint.WriteRequest) *core.Message {
		return core.ControlFailure("invalid api key")
	}})
	seedRun(t, store, 3)
	env.RegisterActivity(acts)

	_, err := env.ExecuteActivity(acts.WriteSyncRun, WriteSyncRunInput{RunID: "run-1"})
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.NonRetryable())
	assert.Equal(t, core.CodeDestinationFatal, appErr.Type())

	run, _ := store.GetRun(context.Background(), "run-1")
	assert.Equal(t, core.RunFailed, run.Status)
}

func TestWriteSyncRun_Unit_MissingRun(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()

	acts, _, _ := newActivities(t, &stubDestination{reply: succeedAll})
	env.RegisterActivity(acts)

	_, err := env.ExecuteActivity(acts.WriteSyncRun, WriteSyncRunInput{RunID: "missing"})
	assert.Error(t, err)
}

func TestPruneReports_Unit_SkipsWithoutRetention(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()

	acts, _, _ := newActivities(t, &stubDestination{reply: succeedAll})
	env.RegisterActivity(acts)

	val, err := env.ExecuteActivity(acts.PruneReports, PruneReportsInput{})
	require.NoError(t, err)
	var removed int
	require.NoError(t, val.Get(&removed))
	assert.Zero(t, removed)
}

func TestToApplicationError_Unit(t *testing.T) {
	running := &core.Run{Status: core.RunInProgress}
	failed := &core.Run{Status: core.RunFailed}

	var appErr *temporal.ApplicationError

	err := toApplicationError(running, core.NewError(core.CodeStore, true, errors.New("conn reset")))
	require.True(t, errors.As(err, &appErr))
	assert.False(t, appErr.NonRetryable())
	assert.Equal(t, core.CodeStore, appErr.Type())

	err = toApplicationError(failed, core.NewError(core.CodeStore, true, errors.New("conn reset")))
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.NonRetryable())

	finished := &core.Run{Status: core.RunSuccess}
	err = toApplicationError(finished, core.NewError(core.CodeStore, false, errors.New("persist final status: conn reset")))
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.NonRetryable())
	assert.Equal(t, core.CodeStore, appErr.Type())

	err = toApplicationError(failed, core.ErrRunAborted)
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, core.CodeRunAborted, appErr.Type())
}

// =============================================================================
// WORKFLOW TESTS
// =============================================================================

func TestSyncRunWorkflow_Unit_WritesThenPrunes(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	var a *Activities
	env.RegisterActivity(&Activities{})
	env.OnActivity(a.WriteSyncRun, mock.Anything, WriteSyncRunInput{RunID: "run-1"}).
		Return(&WriteSyncRunResult{RunID: "run-1", Status: "success", Succeeded: 2}, nil).Once()
	env.OnActivity(a.PruneReports, mock.Anything, PruneReportsInput{RetentionDays: 7}).
		Return(0, errors.New("bucket unavailable")).Once()

	env.ExecuteWorkflow(SyncRunWorkflow, SyncRunWorkflowInput{RunID: "run-1", ReportsRetentionDays: 7})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result WriteSyncRunResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, 2, result.Succeeded)
	env.AssertExpectations(t)
}

func TestSyncRunWorkflow_Unit_WriteFailure(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	var a *Activities
	env.RegisterActivity(&Activities{})
	env.OnActivity(a.WriteSyncRun, mock.Anything, mock.Anything).
		Return(nil, temporal.NewNonRetryableApplicationError("fatal", core.CodeDestinationFatal, nil))

	env.ExecuteWorkflow(SyncRunWorkflow, SyncRunWorkflowInput{RunID: "run-1"})
	require.True(t, env.IsWorkflowCompleted())
	assert.Error(t, env.GetWorkflowError())
}

package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igualparatodos/multiwoven/internal/core"
)

func skipIfNoDatabase(t *testing.T) string {
	t.Helper()
	url := os.Getenv("MULTIWOVEN_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Skipping integration test: MULTIWOVEN_TEST_DATABASE_URL not set")
	}
	return url
}

func TestLogJSON_Unit(t *testing.T) {
	assert.Nil(t, logJSON(nil))
	data := logJSON(&core.LogEntry{Level: core.LevelError, Message: "bad", RecordIndex: 2})
	assert.JSONEq(t, `{"level":"error","message":"bad","recordIndex":2}`, string(data))
}

func TestStore_Integration_RunLifecycle(t *testing.T) {
	url := skipIfNoDatabase(t)
	ctx := context.Background()

	s, err := Open(ctx, url)
	require.NoError(t, err)
	defer s.Close()

	runID := fmt.Sprintf("run-%d", time.Now().UnixNano())
	cfg := &core.SyncConfig{
		ID:                  "sync-1",
		DestinationSyncMode: core.SyncUpsert,
		Mapping:             map[string]string{"email": "Email"},
		Destination:         core.DestinationConfig{Connector: "airtable"},
	}
	require.NoError(t, s.CreateRun(ctx, &core.Run{ID: runID, SyncID: cfg.ID, Status: core.RunQueued, Sync: cfg}))
	require.NoError(t, s.EnqueueRecords(ctx, runID, []map[string]any{
		{"email": "a@example.com"},
		{"email": "b@example.com"},
		{"email": "c@example.com"},
	}, core.ActionCreate))

	run, err := s.GetRun(ctx, runID)
	require.NoError(t, err)
	require.NotNil(t, run.Sync)
	assert.Equal(t, core.SyncUpsert, run.Sync.DestinationSyncMode)
	assert.Len(t, run.Sync.FieldMappings(), 1)

	page, err := s.PendingRecords(ctx, runID, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "a@example.com", page[0].Payload["email"])

	page[0].Settle(core.RecordSuccess, nil)
	require.NoError(t, s.UpdateRecord(ctx, page[0]))
	page[1].Settle(core.RecordFailed, &core.LogEntry{Level: core.LevelError, Message: "422"})
	require.NoError(t, s.BulkUpdateStatus(ctx, page[1:]))

	rest, err := s.PendingRecords(ctx, runID, 0, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "c@example.com", rest[0].Payload["email"])

	run.Complete(core.RunTotals{Total: 2, Succeeded: 1, Failed: 1})
	require.NoError(t, s.SaveRunTotals(ctx, runID, run.Totals))
	require.NoError(t, s.UpdateRunStatus(ctx, run))

	stored, err := s.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, core.RunSuccess, stored.Status)
	assert.Equal(t, 1, stored.Totals.Failed)
}

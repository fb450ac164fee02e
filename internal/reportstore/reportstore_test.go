package reportstore

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igualparatodos/multiwoven/internal/core"
	"github.com/igualparatodos/multiwoven/internal/objectstore"
)

func newStore(t *testing.T) (*Store, *objectstore.LocalStore) {
	t.Helper()
	objects := objectstore.NewLocalStore(t.TempDir())
	return New(objects, "reports", "runs", nil), objects
}

func TestStore_Unit_AppendAndRead(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	recs := []*core.Record{
		{ID: 1, Action: core.ActionCreate, Status: core.RecordSuccess},
		{ID: 2, Action: core.ActionCreate, Status: core.RecordFailed, Log: &core.LogEntry{Level: core.LevelError, Message: "422"}},
	}
	uri, err := s.Append(ctx, "run-1", recs)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "s3://reports/runs/run-1/records-"), uri)
	assert.True(t, strings.HasSuffix(uri, ".jsonl"), uri)

	_, err = s.Append(ctx, "run-1", recs[:1])
	require.NoError(t, err)

	lines, err := s.ReadRecords(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, lines, 3)

	failed := 0
	for _, line := range lines {
		assert.Equal(t, "run-1", line.RunID)
		if line.Status == core.RecordFailed {
			failed++
			assert.Equal(t, "422", line.Log.Message)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestStore_Unit_AppendEmptyIsNoop(t *testing.T) {
	s, objects := newStore(t)
	uri, err := s.Append(context.Background(), "run-1", nil)
	require.NoError(t, err)
	assert.Empty(t, uri)

	keys, err := objects.ListPrefix(context.Background(), "reports", "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_Unit_WriteSummary(t *testing.T) {
	ctx := context.Background()
	s, objects := newStore(t)

	run := &core.Run{ID: "run-1", SyncID: "sync-1", Status: core.RunFailed, Error: "boom", Totals: core.RunTotals{Total: 3, Failed: 3}}
	uri, err := s.WriteSummary(ctx, run)
	require.NoError(t, err)

	key := strings.TrimPrefix(uri, "s3://reports/")
	data, err := objects.GetObject(ctx, "reports", key)
	require.NoError(t, err)

	var summary Summary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, core.RunFailed, summary.Status)
	assert.Equal(t, "boom", summary.Error)
	assert.Equal(t, 3, summary.Totals.Failed)
}

func TestStore_Unit_PruneRemovesOldObjects(t *testing.T) {
	ctx := context.Background()
	s, objects := newStore(t)

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now.Add(-10 * 24 * time.Hour) }
	_, err := s.Append(ctx, "old", []*core.Record{{ID: 1, Status: core.RecordSuccess}})
	require.NoError(t, err)
	_, err = s.WriteSummary(ctx, &core.Run{ID: "old", Status: core.RunSuccess})
	require.NoError(t, err)

	s.now = func() time.Time { return now }
	_, err = s.Append(ctx, "new", []*core.Record{{ID: 2, Status: core.RecordSuccess}})
	require.NoError(t, err)

	removed, err := s.Prune(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	keys, err := objects.ListPrefix(ctx, "reports", "runs/")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "runs/new/")

	removed, err = s.Prune(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestObjectTime_Unit(t *testing.T) {
	ts, ok := objectTime("runs/r/records-1700000000000000000-abc.jsonl")
	require.True(t, ok)
	assert.Equal(t, int64(1700000000000000000), ts.UnixNano())

	_, ok = objectTime("runs/r/notes.txt")
	assert.False(t, ok)
}

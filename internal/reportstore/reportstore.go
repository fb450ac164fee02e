// Package reportstore archives settled record outcomes and run summaries to
// an object store, one JSONL object per page and one summary per run.
//
// Layout:
//
//	<prefix>/<runId>/records-<unixNano>-<uuid>.jsonl
//	<prefix>/<runId>/summary-<unixNano>.json
package reportstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/igualparatodos/multiwoven/internal/core"
	"github.com/igualparatodos/multiwoven/internal/objectstore"
)

// Line is one archived record outcome.
type Line struct {
	RunID    string            `json:"runId"`
	RecordID int64             `json:"recordId"`
	Action   core.Action       `json:"action"`
	Status   core.RecordStatus `json:"status"`
	Log      *core.LogEntry    `json:"log,omitempty"`
	At       string            `json:"at"`
}

// Summary is the archived final state of a run.
type Summary struct {
	RunID  string         `json:"runId"`
	SyncID string         `json:"syncId"`
	Status core.RunStatus `json:"status"`
	Error  string         `json:"error,omitempty"`
	Totals core.RunTotals `json:"totals"`
	At     string         `json:"at"`
}

// Store writes reports into one bucket under a base prefix.
type Store struct {
	objects objectstore.ObjectStore
	bucket  string
	prefix  string
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a report store.
func New(objects objectstore.ObjectStore, bucket, prefix string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		objects: objects,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		logger:  logger,
		now:     time.Now,
	}
}

// Append writes one JSONL object with the outcome of recs and returns its URI.
func (s *Store) Append(ctx context.Context, runID string, recs []*core.Record) (string, error) {
	if len(recs) == 0 {
		return "", nil
	}
	now := s.now().UTC()
	at := now.Format(time.RFC3339Nano)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range recs {
		line := Line{
			RunID:    runID,
			RecordID: rec.ID,
			Action:   rec.Action,
			Status:   rec.Status,
			Log:      rec.Log,
			At:       at,
		}
		if err := enc.Encode(line); err != nil {
			return "", fmt.Errorf("encode record %d: %w", rec.ID, err)
		}
	}

	key := s.key(runID, fmt.Sprintf("records-%d-%s.jsonl", now.UnixNano(), uuid.NewString()))
	return s.put(ctx, key, buf.Bytes())
}

// WriteSummary writes the run's final state and returns its URI.
func (s *Store) WriteSummary(ctx context.Context, run *core.Run) (string, error) {
	now := s.now().UTC()
	data, err := json.Marshal(Summary{
		RunID:  run.ID,
		SyncID: run.SyncID,
		Status: run.Status,
		Error:  run.Error,
		Totals: run.Totals,
		At:     now.Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", err
	}
	key := s.key(run.ID, fmt.Sprintf("summary-%d.json", now.UnixNano()))
	return s.put(ctx, key, data)
}

// ReadRecords returns every archived line of a run.
func (s *Store) ReadRecords(ctx context.Context, runID string) ([]Line, error) {
	keys, err := s.objects.ListPrefix(ctx, s.bucket, s.key(runID, "records-"))
	if err != nil {
		return nil, err
	}
	var out []Line
	for _, key := range keys {
		data, err := s.objects.GetObject(ctx, s.bucket, key)
		if err != nil {
			return nil, err
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		for dec.More() {
			var line Line
			if err := dec.Decode(&line); err != nil {
				return nil, fmt.Errorf("decode %s: %w", key, err)
			}
			out = append(out, line)
		}
	}
	return out, nil
}

// Prune deletes report objects older than retentionDays and returns how
// many were removed. A non-positive retention keeps everything.
func (s *Store) Prune(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	keys, err := s.objects.ListPrefix(ctx, s.bucket, s.prefix)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range keys {
		ts, ok := objectTime(key)
		if !ok || !ts.Before(cutoff) {
			continue
		}
		if err := s.objects.DeleteObject(ctx, s.bucket, key); err != nil {
			s.logger.Warn("failed to prune report object", "key", key, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

func (s *Store) put(ctx context.Context, key string, data []byte) (string, error) {
	if err := s.objects.EnsureBucket(ctx, s.bucket); err != nil {
		return "", err
	}
	if err := s.objects.PutObject(ctx, s.bucket, key, data); err != nil {
		return "", err
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func (s *Store) key(runID, file string) string {
	return strings.TrimPrefix(path.Join(s.prefix, runID, file), "/")
}

// objectTime extracts the nanosecond timestamp following the first dash of
// an object's base name.
func objectTime(key string) (time.Time, bool) {
	base := path.Base(key)
	base = strings.TrimSuffix(strings.TrimSuffix(base, ".jsonl"), ".json")
	fields := strings.Split(base, "-")
	if len(fields) < 2 {
		return time.Time{}, false
	}
	ns, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

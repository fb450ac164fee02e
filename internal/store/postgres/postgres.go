// Package postgres stores sync runs and their records in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/igualparatodos/multiwoven/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_runs (
  id text PRIMARY KEY,
  sync_id text NOT NULL,
  status text NOT NULL,
  error text NOT NULL DEFAULT '',
  sync_config jsonb,
  total_rows integer NOT NULL DEFAULT 0,
  successful_rows integer NOT NULL DEFAULT 0,
  failed_rows integer NOT NULL DEFAULT 0,
  updated_at timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS sync_records (
  id bigserial PRIMARY KEY,
  run_id text NOT NULL REFERENCES sync_runs(id) ON DELETE CASCADE,
  payload jsonb NOT NULL,
  action text NOT NULL DEFAULT 'create',
  status text NOT NULL DEFAULT 'pending',
  log jsonb,
  updated_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS sync_records_pending_idx ON sync_records (run_id, id) WHERE status = 'pending';
`

// Store implements the loader store on a pgx pool.
type Store struct {
	db *pgxpool.Pool
}

// Open connects to dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("database url is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool reuses an existing pool.
func NewWithPool(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{db: pool}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// CreateRun inserts a run together with its sync configuration.
func (s *Store) CreateRun(ctx context.Context, run *core.Run) error {
	cfg, err := json.Marshal(run.Sync)
	if err != nil {
		return fmt.Errorf("encode sync config: %w", err)
	}
	_, err = s.db.Exec(ctx, `INSERT INTO sync_runs (id, sync_id, status, sync_config) VALUES ($1,$2,$3,$4)
ON CONFLICT (id) DO UPDATE SET sync_id = EXCLUDED.sync_id, status = EXCLUDED.status, sync_config = EXCLUDED.sync_config, updated_at = now()`,
		run.ID, run.SyncID, string(run.Status), cfg)
	return err
}

// EnqueueRecords inserts pending records for a run in one batch.
func (s *Store) EnqueueRecords(ctx context.Context, runID string, payloads []map[string]any, action core.Action) error {
	batch := &pgx.Batch{}
	for _, p := range payloads {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		batch.Queue(`INSERT INTO sync_records (run_id, payload, action) VALUES ($1,$2,$3)`, runID, data, string(action))
	}
	return s.sendBatch(ctx, batch)
}

func (s *Store) GetRun(ctx context.Context, runID string) (*core.Run, error) {
	var (
		run    core.Run
		status string
		cfg    []byte
	)
	err := s.db.QueryRow(ctx, `SELECT id, sync_id, status, error, sync_config, total_rows, successful_rows, failed_rows
FROM sync_runs WHERE id = $1`, runID).Scan(
		&run.ID, &run.SyncID, &status, &run.Error, &cfg,
		&run.Totals.Total, &run.Totals.Succeeded, &run.Totals.Failed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("run %s not found", runID)
		}
		return nil, err
	}
	run.Status = core.RunStatus(status)

	if len(cfg) > 0 && string(cfg) != "null" {
		var sync core.SyncConfig
		if err := json.Unmarshal(cfg, &sync); err != nil {
			return nil, fmt.Errorf("decode sync config of run %s: %w", runID, err)
		}
		if err := sync.Prepare(); err != nil {
			return nil, err
		}
		run.Sync = &sync
	}
	return &run, nil
}

func (s *Store) UpdateRunStatus(ctx context.Context, run *core.Run) error {
	tag, err := s.db.Exec(ctx, `UPDATE sync_runs SET status = $1, error = $2, updated_at = now() WHERE id = $3`,
		string(run.Status), run.Error, run.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

func (s *Store) SaveRunTotals(ctx context.Context, runID string, totals core.RunTotals) error {
	_, err := s.db.Exec(ctx, `UPDATE sync_runs SET total_rows = $1, successful_rows = $2, failed_rows = $3, updated_at = now() WHERE id = $4`,
		totals.Total, totals.Succeeded, totals.Failed, runID)
	return err
}

func (s *Store) PendingRecords(ctx context.Context, runID string, afterID int64, limit int) ([]*core.Record, error) {
	rows, err := s.db.Query(ctx, `SELECT id, payload, action FROM sync_records
WHERE run_id = $1 AND status = 'pending' AND id > $2
ORDER BY id LIMIT $3`, runID, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.Record
	for rows.Next() {
		var (
			rec     = &core.Record{RunID: runID, Status: core.RecordPending}
			payload []byte
			action  string
		)
		if err := rows.Scan(&rec.ID, &payload, &action); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &rec.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of record %d: %w", rec.ID, err)
		}
		rec.Action = core.Action(action)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) UpdateRecord(ctx context.Context, rec *core.Record) error {
	_, err := s.db.Exec(ctx, updateRecordSQL, string(rec.Status), logJSON(rec.Log), rec.ID)
	return err
}

func (s *Store) BulkUpdateStatus(ctx context.Context, recs []*core.Record) error {
	batch := &pgx.Batch{}
	for _, rec := range recs {
		batch.Queue(updateRecordSQL, string(rec.Status), logJSON(rec.Log), rec.ID)
	}
	return s.sendBatch(ctx, batch)
}

const updateRecordSQL = `UPDATE sync_records SET status = $1, log = $2, updated_at = now() WHERE id = $3`

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func logJSON(entry *core.LogEntry) []byte {
	if entry == nil {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil
	}
	return data
}

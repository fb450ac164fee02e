package loader

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/igualparatodos/multiwoven/internal/core"
	"github.com/igualparatodos/multiwoven/internal/endpoint"
	"github.com/igualparatodos/multiwoven/internal/lookup"
	"github.com/igualparatodos/multiwoven/internal/transform"
)

// =============================================================================
// INDIVIDUAL STRATEGY
// =============================================================================

// writeIndividually fans each page of pending records out on a bounded pool.
// After the first fatal error or cancellation no new record is started;
// records already in flight finish.
func (l *Loader) writeIndividually(ctx context.Context, state *runState, logger *slog.Logger) error {
	limit := l.concurrency(state.sync)
	var afterID int64

	for {
		page, err := l.store.PendingRecords(ctx, state.run.ID, afterID, l.cfg.PageSize)
		if err != nil {
			return pageError(ctx, err)
		}
		if len(page) == 0 {
			return nil
		}
		afterID = page[len(page)-1].ID

		var (
			g    errgroup.Group
			stop atomic.Bool
		)
		g.SetLimit(limit)
		for _, rec := range page {
			if stop.Load() {
				break
			}
			g.Go(func() error {
				if stop.Load() {
					return nil
				}
				if err := l.writeRecord(state, rec, logger); err != nil {
					stop.Store(true)
					return err
				}
				if err := l.heartbeat(ctx); err != nil {
					stop.Store(true)
					return err
				}
				return nil
			})
		}
		err = g.Wait()
		l.archive(state.work, state.run.ID, settledOnly(page), logger)
		if err != nil {
			return err
		}
		if len(page) < l.cfg.PageSize {
			return nil
		}
	}
}

// writeRecord transforms and writes one record, then persists its outcome.
// Only a fatal destination failure is returned.
func (l *Loader) writeRecord(state *runState, rec *core.Record, logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("record write panicked", "recordId", rec.ID, "error", fmt.Sprint(r))
			l.settle(state, rec, core.RecordFailed, &core.LogEntry{
				Level:   core.LevelError,
				Message: fmt.Sprintf("internal error: %v", r),
			}, logger)
			err = nil
		}
	}()

	payload := l.transformer.Transform(state.work, transform.Input{
		Sync:   state.sync,
		Record: rec.Payload,
		Run:    state.run,
		Cache:  state.cache,
	})
	msg := state.dest.Write(state.work, &endpoint.WriteRequest{
		Sync:    state.sync,
		Records: []map[string]any{payload},
		Action:  rec.Action,
		Run:     state.run,
		Cache:   state.cache,
	})

	report, ackErr := msg.Acknowledgment()
	if ackErr != nil {
		l.settle(state, rec, core.RecordFailed, &core.LogEntry{
			Level:   core.LevelError,
			Message: ackErr.Error(),
		}, logger)
		return ackErr
	}

	status := core.RecordFailed
	if report.SuccessCount > 0 {
		status = core.RecordSuccess
	}
	l.settle(state, rec, status, report.LastLog(), logger)
	return nil
}

func (l *Loader) settle(state *runState, rec *core.Record, status core.RecordStatus, log *core.LogEntry, logger *slog.Logger) {
	if !rec.Settle(status, log) {
		return
	}
	state.tally.add(status, 1)
	if err := l.store.UpdateRecord(state.work, rec); err != nil {
		logger.Error("failed to persist record status", "recordId", rec.ID, "status", status, "error", err)
	}
}

// =============================================================================
// BATCH STRATEGY
// =============================================================================

// writeBatches writes one page per call. A page succeeds as a whole when the
// destination reports at least one success. Statuses are persisted in bulk
// once every page has been written, or when the run stops early.
func (l *Loader) writeBatches(ctx context.Context, state *runState, logger *slog.Logger) error {
	preload, err := l.handlers.HandlerFor(state.sync.Destination.Connector).
		BuildCustomMappingIndexes(state.work, state.sync, state.run, state.cache)
	if err != nil {
		logger.Warn("custom mapping indexes unavailable", "error", err)
	}
	if preload == nil {
		preload = lookup.PreloadIndexes{}
	}

	size := l.batchSize(state.sync)
	var (
		afterID int64
		settled []*core.Record
		runErr  error
	)

	for {
		page, err := l.store.PendingRecords(ctx, state.run.ID, afterID, size)
		if err != nil {
			runErr = pageError(ctx, err)
			break
		}
		if len(page) == 0 {
			break
		}
		afterID = page[len(page)-1].ID

		if err := l.writePage(state, preload, page); err != nil {
			settled = append(settled, page...)
			runErr = err
			break
		}
		settled = append(settled, page...)

		if err := l.heartbeat(ctx); err != nil {
			runErr = err
			break
		}
		if len(page) < size {
			break
		}
	}

	if len(settled) > 0 {
		if err := l.store.BulkUpdateStatus(state.work, settled); err != nil {
			logger.Error("failed to persist record statuses", "records", len(settled), "error", err)
			if runErr == nil {
				runErr = core.NewError(core.CodeStore, true, fmt.Errorf("bulk update statuses: %w", err))
			}
		}
		l.archive(state.work, state.run.ID, settled, logger)
	}
	return runErr
}

// pageError classifies a failure to load the next page. A cancelled caller
// aborts the run instead of reporting a store failure.
func pageError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return core.ErrRunAborted
	}
	return core.NewError(core.CodeStore, true, fmt.Errorf("load pending records: %w", err))
}

// writePage transforms and writes one page and settles every record of it.
// Only a fatal destination failure is returned.
func (l *Loader) writePage(state *runState, preload lookup.PreloadIndexes, page []*core.Record) error {
	payloads := make([]map[string]any, len(page))
	for i, rec := range page {
		payloads[i] = l.transformer.Transform(state.work, transform.Input{
			Sync:    state.sync,
			Record:  rec.Payload,
			Run:     state.run,
			Cache:   state.cache,
			Preload: preload,
		})
	}

	msg := state.dest.Write(state.work, &endpoint.WriteRequest{
		Sync:    state.sync,
		Records: payloads,
		Action:  page[0].Action,
		Run:     state.run,
		Cache:   state.cache,
	})

	report, ackErr := msg.Acknowledgment()
	if ackErr != nil {
		entry := &core.LogEntry{Level: core.LevelError, Message: ackErr.Error()}
		for _, rec := range page {
			if rec.Settle(core.RecordFailed, entry) {
				state.tally.add(core.RecordFailed, 1)
			}
		}
		return ackErr
	}

	status := core.RecordFailed
	if report.SuccessCount > 0 {
		status = core.RecordSuccess
	}
	logs := logsByRecord(report)
	for i, rec := range page {
		entry := logs[i]
		if entry == nil {
			entry = report.LastLog()
		}
		if rec.Settle(status, entry) {
			state.tally.add(status, 1)
		}
	}
	return nil
}

// logsByRecord keeps the last log entry of each record index.
func logsByRecord(report *core.TrackingReport) map[int]*core.LogEntry {
	out := make(map[int]*core.LogEntry, len(report.Logs))
	for _, entry := range report.Logs {
		if entry != nil {
			out[entry.RecordIndex] = entry
		}
	}
	return out
}

// settledOnly returns the records of page that reached a final status.
func settledOnly(page []*core.Record) []*core.Record {
	out := make([]*core.Record, 0, len(page))
	for _, rec := range page {
		if rec.Status == core.RecordSuccess || rec.Status == core.RecordFailed {
			out = append(out, rec)
		}
	}
	return out
}

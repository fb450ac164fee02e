// Package loader runs one sync run end to end: it pages pending records,
// transforms them, hands them to the destination and settles their status.
//
// Two strategies exist. Destinations that declare batch support receive one
// write per page, with custom mapping indexes preloaded once for the run.
// Other destinations receive one write per record, fanned out on a bounded
// worker pool. Both heartbeat the host after each unit of work.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/igualparatodos/multiwoven/internal/core"
	"github.com/igualparatodos/multiwoven/internal/endpoint"
	"github.com/igualparatodos/multiwoven/internal/handler"
	"github.com/igualparatodos/multiwoven/internal/lookup"
	"github.com/igualparatodos/multiwoven/internal/transform"
)

const (
	// DefaultPageSize is the keyset page size of the individual strategy.
	DefaultPageSize = 1000

	// DefaultConcurrency bounds the individual strategy's worker pool when
	// the stream declares none.
	DefaultConcurrency = 10

	// DefaultBatchSize is used when a batch stream declares no batch size.
	DefaultBatchSize = 100

	// DefaultStatusAttempts bounds the writes of a run's final status.
	DefaultStatusAttempts = 3

	// DefaultStatusBackoff is the first pause between final status writes;
	// it doubles per attempt.
	DefaultStatusBackoff = 200 * time.Millisecond
)

// Config tunes a Loader. Zero values take the defaults.
type Config struct {
	PageSize           int
	DefaultConcurrency int
	DefaultBatchSize   int
	StatusAttempts     int
	StatusBackoff      time.Duration
}

func (c *Config) withDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.DefaultConcurrency <= 0 {
		c.DefaultConcurrency = DefaultConcurrency
	}
	if c.DefaultBatchSize <= 0 {
		c.DefaultBatchSize = DefaultBatchSize
	}
	if c.StatusAttempts <= 0 {
		c.StatusAttempts = DefaultStatusAttempts
	}
	if c.StatusBackoff <= 0 {
		c.StatusBackoff = DefaultStatusBackoff
	}
}

// Loader writes runs. A Loader is safe for concurrent use by several runs.
type Loader struct {
	store        Store
	host         Host
	destinations *endpoint.Registry
	handlers     *handler.Registry
	transformer  *transform.Transformer
	reports      ReportSink
	logger       *slog.Logger
	cfg          Config
}

// Option configures a Loader.
type Option func(*Loader)

// WithConfig sets paging and concurrency defaults.
func WithConfig(cfg Config) Option {
	return func(l *Loader) { l.cfg = cfg }
}

// WithDestinations sets the destination registry.
func WithDestinations(r *endpoint.Registry) Option {
	return func(l *Loader) { l.destinations = r }
}

// WithHandlers sets the custom mapping handler registry.
func WithHandlers(r *handler.Registry) Option {
	return func(l *Loader) { l.handlers = r }
}

// WithTransformer sets the record transformer.
func WithTransformer(t *transform.Transformer) Option {
	return func(l *Loader) { l.transformer = t }
}

// WithReportSink archives settled records and the run summary.
func WithReportSink(s ReportSink) Option {
	return func(l *Loader) { l.reports = s }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// New creates a Loader backed by store and heartbeating host.
func New(store Store, host Host, opts ...Option) *Loader {
	l := &Loader{
		store:        store,
		host:         host,
		destinations: endpoint.DefaultRegistry(),
		handlers:     handler.DefaultRegistry(),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.host == nil {
		l.host = NoCancelHost{}
	}
	if l.transformer == nil {
		l.transformer = transform.New(transform.WithHandlers(l.handlers), transform.WithLogger(l.logger))
	}
	l.cfg.withDefaults()
	return l
}

// tally counts settled records across workers.
type tally struct {
	succeeded atomic.Int64
	failed    atomic.Int64
}

func (t *tally) add(status core.RecordStatus, n int) {
	if status == core.RecordSuccess {
		t.succeeded.Add(int64(n))
		return
	}
	t.failed.Add(int64(n))
}

func (t *tally) totals() core.RunTotals {
	s, f := int(t.succeeded.Load()), int(t.failed.Load())
	return core.RunTotals{Total: s + f, Succeeded: s, Failed: f}
}

// runState is everything one run's workers share. work is never cancelled:
// transforms, destination calls and record outcomes run on it so that calls
// already in flight complete. Cancellation is observed at heartbeats only.
type runState struct {
	work  context.Context
	run   *core.Run
	sync  *core.SyncConfig
	dest  endpoint.Destination
	cache *lookup.Cache
	tally tally
}

// Write executes a run. A run that cannot progress is logged and left
// untouched. A fatal destination failure or a cancellation marks the run
// failed and is returned; every other failure is counted per record.
func (l *Loader) Write(ctx context.Context, run *core.Run) error {
	logger := l.logger.With("runId", run.ID, "syncId", run.SyncID)

	if !run.CanProgress() {
		logger.Warn("run cannot progress, skipping write", "status", run.Status)
		return nil
	}
	if run.Sync == nil {
		err := core.NewError(core.CodeInvalidConfig, false, errors.New("run has no sync configuration"))
		l.finishFailed(ctx, run, nil, err)
		return err
	}
	if err := run.Progress(); err != nil {
		return core.NewError(core.CodeRunNotProgressing, false, err)
	}
	if err := l.store.UpdateRunStatus(ctx, run); err != nil {
		return core.NewError(core.CodeStore, true, fmt.Errorf("persist in_progress: %w", err))
	}

	dest, err := l.destinations.Create(run.Sync.Destination.Connector, run.Sync.Destination.Config)
	if err != nil {
		l.finishFailed(ctx, run, nil, err)
		return err
	}
	defer dest.Close()

	state := &runState{
		work:  context.WithoutCancel(ctx),
		run:   run,
		sync:  run.Sync,
		dest:  dest,
		cache: lookup.NewCache(run.ID),
	}

	if run.Sync.Stream.BatchSupport {
		logger.Info("writing run in batches", "batchSize", l.batchSize(run.Sync))
		err = l.writeBatches(ctx, state, logger)
	} else {
		logger.Info("writing run record by record", "concurrency", l.concurrency(run.Sync))
		err = l.writeIndividually(ctx, state, logger)
	}
	if err != nil {
		l.finishFailed(ctx, run, &state.tally, err)
		return err
	}

	totals := state.tally.totals()
	run.Complete(totals)
	if err := l.store.SaveRunTotals(state.work, run.ID, totals); err != nil {
		logger.Error("failed to save run totals", "error", err)
	}
	// The run is in_progress in the store until this write lands, and a
	// retried activity cannot resume an in_progress run, so the error is
	// not retryable.
	if err := l.persistStatus(state.work, run); err != nil {
		return core.NewError(core.CodeStore, false, fmt.Errorf("persist final status: %w", err))
	}
	l.archiveSummary(state.work, run, logger)

	logger.Info("run finished",
		"status", run.Status,
		"total", totals.Total,
		"succeeded", totals.Succeeded,
		"failed", totals.Failed,
	)
	return nil
}

// finishFailed marks the run failed with err and persists what is known.
func (l *Loader) finishFailed(ctx context.Context, run *core.Run, t *tally, err error) {
	ctx = context.WithoutCancel(ctx)
	logger := l.logger.With("runId", run.ID)
	if t != nil {
		run.Totals = t.totals()
		if saveErr := l.store.SaveRunTotals(ctx, run.ID, run.Totals); saveErr != nil {
			logger.Error("failed to save run totals", "error", saveErr)
		}
	}
	run.Fail(err.Error())
	if updErr := l.persistStatus(ctx, run); updErr != nil {
		logger.Error("failed to mark run failed", "error", updErr)
	}
	l.archiveSummary(ctx, run, logger)

	switch {
	case errors.Is(err, core.ErrRunAborted):
		logger.Warn("run aborted", "error", err)
	default:
		logger.Error("run failed", "error", err)
	}
}

// persistStatus writes the run status, retrying with backoff.
func (l *Loader) persistStatus(ctx context.Context, run *core.Run) error {
	backoff := l.cfg.StatusBackoff
	var err error
	for attempt := 1; attempt <= l.cfg.StatusAttempts; attempt++ {
		if err = l.store.UpdateRunStatus(ctx, run); err == nil {
			return nil
		}
		if attempt == l.cfg.StatusAttempts {
			break
		}
		l.logger.Warn("run status write failed, retrying",
			"runId", run.ID, "status", run.Status, "attempt", attempt, "error", err)
		time.Sleep(backoff)
		backoff *= 2
	}
	return err
}

func (l *Loader) concurrency(sync *core.SyncConfig) int {
	if n := sync.Stream.RequestRateConcurrency; n > 0 {
		return n
	}
	return l.cfg.DefaultConcurrency
}

func (l *Loader) batchSize(sync *core.SyncConfig) int {
	if n := sync.Stream.BatchSize; n > 0 {
		return n
	}
	return l.cfg.DefaultBatchSize
}

// heartbeat signals the host and converts a cancellation into ErrRunAborted.
func (l *Loader) heartbeat(ctx context.Context) error {
	if l.host.Heartbeat(ctx).CancelRequested {
		return core.ErrRunAborted
	}
	return nil
}

func (l *Loader) archive(ctx context.Context, runID string, recs []*core.Record, logger *slog.Logger) {
	if l.reports == nil || len(recs) == 0 {
		return
	}
	if _, err := l.reports.Append(ctx, runID, recs); err != nil {
		logger.Warn("failed to archive record outcomes", "error", err)
	}
}

func (l *Loader) archiveSummary(ctx context.Context, run *core.Run, logger *slog.Logger) {
	if l.reports == nil {
		return
	}
	if _, err := l.reports.WriteSummary(ctx, run); err != nil {
		logger.Warn("failed to archive run summary", "error", err)
	}
}

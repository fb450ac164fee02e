package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/igualparatodos/multiwoven/internal/config"
	"github.com/igualparatodos/multiwoven/internal/core"
	"github.com/igualparatodos/multiwoven/internal/endpoint"
	"github.com/igualparatodos/multiwoven/internal/handler"
	"github.com/igualparatodos/multiwoven/internal/loader"
	"github.com/igualparatodos/multiwoven/internal/reportstore"
	"github.com/igualparatodos/multiwoven/internal/store/memory"
	"github.com/igualparatodos/multiwoven/internal/store/postgres"
	"github.com/igualparatodos/multiwoven/internal/transform"

	_ "github.com/igualparatodos/multiwoven/internal/connector/airtable"
)

type runFlags struct {
	configPath  string
	recordsPath string
	storeKind   string
	runID       string
	action      string
	noReports   bool
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync-run",
		Short: "Write reverse-ETL sync runs to a destination",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newRunCmd(), newValidateCmd(), newConnectorsCmd())
	return cmd
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Write one run and print its summary as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runSync(ctx, cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "Path to sync config (.yaml or .json)")
	cmd.Flags().StringVarP(&f.recordsPath, "records", "r", "", "Path to source records (JSON lines)")
	cmd.Flags().StringVar(&f.storeKind, "store", "memory", "Run store: memory or postgres")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "Run id; with --store postgres and no --records an existing run is written")
	cmd.Flags().StringVar(&f.action, "action", string(core.ActionCreate), "Record action: create or update")
	cmd.Flags().BoolVar(&f.noReports, "no-reports", false, "Skip the run report archive")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a sync config and probe its destination",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("missing required flag: --config")
			}
			sync, err := config.LoadSyncConfig(configPath)
			if err != nil {
				return err
			}
			dest, err := endpoint.DefaultRegistry().Create(sync.Destination.Connector, sync.Destination.Config)
			if err != nil {
				return err
			}
			defer dest.Close()

			result, err := dest.ValidateConfig(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"connector": dest.ID(),
				"valid":     result.Valid,
				"message":   result.Message,
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to sync config (.yaml or .json)")
	return cmd
}

func newConnectorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connectors",
		Short: "List registered destination connectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := make([]map[string]any, 0)
			for _, name := range endpoint.DefaultRegistry().List() {
				out = append(out, map[string]any{
					"id":            name,
					"customMapping": handler.DefaultRegistry().Has(name),
				})
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func runSync(ctx context.Context, out io.Writer, f runFlags) error {
	cfg := config.Load()
	logger := cfg.Logger()

	var (
		store loader.Store
		run   *core.Run
	)
	switch f.storeKind {
	case "memory":
		if f.configPath == "" || f.recordsPath == "" {
			return fmt.Errorf("--config and --records are required with the memory store")
		}
		mem := memory.New()
		r, payloads, err := newRun(f)
		if err != nil {
			return err
		}
		mem.AddRun(r)
		mem.AddRecords(r.ID, payloads, core.Action(f.action))
		store, run = mem, r

	case "postgres":
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		store = pg

		if f.recordsPath != "" {
			r, payloads, err := newRun(f)
			if err != nil {
				return err
			}
			if err := pg.CreateRun(ctx, r); err != nil {
				return fmt.Errorf("create run: %w", err)
			}
			if err := pg.EnqueueRecords(ctx, r.ID, payloads, core.Action(f.action)); err != nil {
				return fmt.Errorf("enqueue records: %w", err)
			}
			run = r
		} else {
			if f.runID == "" {
				return fmt.Errorf("--run-id or --records is required with the postgres store")
			}
			if run, err = pg.GetRun(ctx, f.runID); err != nil {
				return err
			}
		}

	default:
		return fmt.Errorf("unknown store %q", f.storeKind)
	}

	opts := []loader.Option{
		loader.WithConfig(cfg.LoaderConfig()),
		loader.WithLogger(logger),
		loader.WithTransformer(transform.New(
			transform.WithHandlers(handler.DefaultRegistry()),
			transform.WithEmbedders(cfg.Embedders()),
			transform.WithLogger(logger),
		)),
	}
	if !f.noReports {
		objects, err := cfg.ObjectStore()
		if err != nil {
			return err
		}
		opts = append(opts, loader.WithReportSink(reportstore.New(objects, cfg.ReportsBucket, cfg.ReportsPrefix, logger)))
	}

	writeErr := loader.New(store, loader.NoCancelHost{}, opts...).Write(ctx, run)
	summary := map[string]any{
		"runId":     run.ID,
		"status":    run.Status,
		"total":     run.Totals.Total,
		"succeeded": run.Totals.Succeeded,
		"failed":    run.Totals.Failed,
	}
	if run.Error != "" {
		summary["error"] = run.Error
	}
	if err := writeJSON(out, summary); err != nil {
		return err
	}
	return writeErr
}

// newRun builds a queued run from the config file and reads its records.
func newRun(f runFlags) (*core.Run, []map[string]any, error) {
	sync, err := config.LoadSyncConfig(f.configPath)
	if err != nil {
		return nil, nil, err
	}
	payloads, err := readRecords(f.recordsPath)
	if err != nil {
		return nil, nil, err
	}
	runID := f.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	syncID := sync.ID
	if syncID == "" {
		syncID = strings.TrimSuffix(filepath.Base(f.configPath), filepath.Ext(f.configPath))
	}
	return &core.Run{ID: runID, SyncID: syncID, Status: core.RunQueued, Sync: sync}, payloads, nil
}

func readRecords(path string) ([]map[string]any, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open records: %w", err)
	}
	defer file.Close()

	var out []map[string]any
	dec := json.NewDecoder(bufio.NewReader(file))
	for dec.More() {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

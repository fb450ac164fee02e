// Package main runs the reverse-ETL Temporal worker.
package main

import (
	"context"
	"log/slog"
	"os"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/igualparatodos/multiwoven/internal/activities"
	"github.com/igualparatodos/multiwoven/internal/config"
	"github.com/igualparatodos/multiwoven/internal/handler"
	"github.com/igualparatodos/multiwoven/internal/loader"
	"github.com/igualparatodos/multiwoven/internal/reportstore"
	"github.com/igualparatodos/multiwoven/internal/store/postgres"
	"github.com/igualparatodos/multiwoven/internal/transform"

	_ "github.com/igualparatodos/multiwoven/internal/connector/airtable"
)

func main() {
	cfg := config.Load()
	logger := cfg.Logger()
	slog.SetDefault(logger)

	logger.Info("starting worker",
		"address", cfg.TemporalAddress,
		"namespace", cfg.TemporalNamespace,
		"queue", cfg.TemporalTaskQueue,
	)

	ctx := context.Background()
	store, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal(logger, "failed to open run store", err)
	}
	defer store.Close()

	objects, err := cfg.ObjectStore()
	if err != nil {
		fatal(logger, "failed to create object store", err)
	}
	reports := reportstore.New(objects, cfg.ReportsBucket, cfg.ReportsPrefix, logger)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    tlog.NewStructuredLogger(logger),
	})
	if err != nil {
		fatal(logger, "failed to create Temporal client", err)
	}
	defer c.Close()

	transformer := transform.New(
		transform.WithHandlers(handler.DefaultRegistry()),
		transform.WithEmbedders(cfg.Embedders()),
		transform.WithLogger(logger),
	)
	acts := activities.NewActivities(store, reports,
		loader.WithConfig(cfg.LoaderConfig()),
		loader.WithTransformer(transformer),
		loader.WithLogger(logger),
	)

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterActivity(acts)
	w.RegisterWorkflowWithOptions(activities.SyncRunWorkflow, workflow.RegisterOptions{Name: activities.SyncRunWorkflowName})

	logger.Info("registered workflow and activities", "workflow", activities.SyncRunWorkflowName)

	if err := w.Run(worker.InterruptCh()); err != nil {
		fatal(logger, "worker failed", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

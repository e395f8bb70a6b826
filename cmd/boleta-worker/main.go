package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"boleta/internal/amqp"
	"boleta/internal/cli"
	"boleta/internal/services"
	"boleta/internal/sheets"
	gsheet "boleta/internal/sheets/google"
	"boleta/internal/sheets/memory"
	"boleta/internal/worker"
)

// exporter is what the worker pushes payslips into.
type exporter interface {
	sheets.PayslipExporter
	sheets.PayslipRemover
	sheets.ExportLister
}

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	logger.Info("Starting boleta-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	var out exporter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		out = client
		logger.Info("Exporting to Google Sheets",
			"spreadsheet_id", cfg.GoogleSpreadsheetID,
			"sheet", cfg.GoogleSheetName)
	} else {
		out = memory.DirExporter{Dir: cfg.ExportDirectory}
		logger.Info("Google Sheets disabled, exporting YAML documents", "dir", cfg.ExportDirectory)
	}

	engine := services.NewEngine(cli.RuleConfig(cfg))
	syncWorker := worker.NewSyncWorker(repo, out, out, engine, repo)

	procCfg := services.DefaultSyncProcessorConfig()
	procCfg.BatchSize = cfg.SyncBatchSize
	procCfg.PollInterval = cfg.SyncInterval
	processor := services.NewSyncProcessor(repo, syncWorker, procCfg)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	// Catch up on anything missed while the worker was down.
	if _, err := syncWorker.Reconcile(ctx, repo, out); err != nil {
		logger.Error("Startup reconciliation failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := processor.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return processor.Stop(stopCtx)
	})

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer client.Close()

		g.Go(func() error {
			err := client.ConsumePayslipRecalculated(gctx, syncWorker.HandleRecalculated)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("AMQP disabled, relying on the sync queue only")
	}

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}

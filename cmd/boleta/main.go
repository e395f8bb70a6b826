package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"boleta/internal/backend"
	"boleta/internal/cache"
	"boleta/internal/cli"
	"boleta/internal/core"
	apphttp "boleta/internal/http"
	"boleta/internal/log"
	"boleta/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	engine := services.NewEngine(cli.RuleConfig(cfg))
	if res.Publisher != nil {
		engine.AddPublisher(res.Publisher)
	}

	totals := cache.NewLRUCache[core.FormattedTotals](cfg.TotalsCacheSize, cfg.TotalsCacheTTL)
	caches := cache.NewManager()
	caches.Register(totals)
	caches.StartCleanup(cfg.TotalsCacheTTL)

	payslips := services.NewPayslipService(res.Backend, engine, totals)

	requestLogger := log.New(log.Config{Handler: logger.Handler(), Component: log.ComponentHTTP})

	opts := []apphttp.Option{apphttp.WithLogger(requestLogger)}
	if res.Ready != nil {
		opts = append(opts, apphttp.WithReadyCheck("store", apphttp.ReadyCheck(res.Ready)))
	}
	srv := apphttp.NewServer(":"+cfg.Port, payslips, opts...)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		caches.Stop()
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", "error", err)
			}
		}
	})

	logger.Info("Starting boleta server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"base_concept", cfg.BaseConcept,
		"default_rate", cfg.DefaultRate().String(),
		"amqp", res.Publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

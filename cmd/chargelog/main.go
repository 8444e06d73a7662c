package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"chargelog/internal/backend"
	"chargelog/internal/cli"
	apphttp "chargelog/internal/http"
	"chargelog/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	cfg := cli.LoadAndValidateConfig(logger, nil)

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Failed to create backend config", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendConfig)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	// both already checked by Validate
	recordsPolicy, _ := services.ParseImportPolicy(cfg.RecordsImportPolicy)
	maintenancePolicy, _ := services.ParseImportPolicy(cfg.MaintenanceImportPolicy)

	srv := apphttp.NewServer(":"+cfg.Port, res.Service, apphttp.Options{
		RecordsPolicy:     recordsPolicy,
		MaintenancePolicy: maintenancePolicy,
		Logger:            logger,
		TrustedProxies:    cfg.TrustedProxies,
	})
	srv.ReadTimeout = 15 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting chargelog server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"backups", res.AMQP != nil,
		"records_import_policy", recordsPolicy,
		"maintenance_import_policy", maintenancePolicy)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

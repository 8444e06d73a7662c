package main

import (
	"context"
	"errors"
	"os"
	"time"

	"chargelog/internal/backend"
	"chargelog/internal/cli"
	"chargelog/internal/config"
	"chargelog/internal/drive"
	"chargelog/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	logger.Info("Starting chargelog-worker")

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

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
	if res.AMQP == nil {
		logger.Error("AMQP broker unreachable, the worker cannot receive backup requests", "url_set", cfg.AMQPEnabled())
		_ = res.Cleanup()
		os.Exit(1)
	}

	driveClient, err := drive.New(context.Background(), drive.Credentials{
		ClientJSON: cfg.GoogleOAuthClientJSON,
		ClientFile: cfg.GoogleOAuthClientFile,
		TokenJSON:  cfg.GoogleOAuthTokenJSON,
		TokenFile:  cfg.GoogleOAuthTokenFile,
	}, cfg.GoogleDriveFolderID)
	if err != nil {
		logger.Error("Failed to initialize Google Drive client", "error", err)
		_ = res.Cleanup()
		os.Exit(1)
	}

	w := worker.NewBackupWorker(res.Service, driveClient)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	// catch up on changes made while the worker was down
	if err := w.Backup(ctx, "startup"); err != nil {
		logger.Error("Startup backup failed", "error", err)
	}

	go func() {
		if err := res.AMQP.ConsumeBackupRequests(ctx, w.HandleBackupRequest); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Backup request consumption failed", "error", err)
		}
	}()

	if cfg.BackupInterval > 0 {
		logger.Info("Scheduled backups enabled", "interval", cfg.BackupInterval)
		go w.RunPeriodic(ctx, cfg.BackupInterval)
	} else {
		logger.Info("Scheduled backups disabled")
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped", "last_backup", w.LastBackup())
}

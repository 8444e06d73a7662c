package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"chargelog/internal/amqp"
	"chargelog/internal/services"
)

type (
	// Exporter renders the CSV files to back up.
	Exporter interface {
		ExportRecordsCSV(ctx context.Context) (services.Export, error)
		ExportMaintenanceCSV(ctx context.Context) (services.Export, error)
	}

	// Uploader stores a file remotely and returns its ID.
	Uploader interface {
		Upload(ctx context.Context, name string, content []byte) (string, error)
	}
)

var _ Exporter = (*services.LogService)(nil)

// BackupWorker copies the charging and maintenance logs to Drive.
type BackupWorker struct {
	exporter Exporter
	uploader Uploader
	now      func() time.Time

	mu sync.Mutex
	// start time of the last successful backup
	lastBackup time.Time
}

func NewBackupWorker(exporter Exporter, uploader Uploader) *BackupWorker {
	return &BackupWorker{
		exporter: exporter,
		uploader: uploader,
		now:      time.Now,
	}
}

// HandleBackupRequest processes one backup request from AMQP. Requests
// issued before the last completed backup started are already covered and
// are skipped.
func (w *BackupWorker) HandleBackupRequest(ctx context.Context, msg *amqp.BackupRequestMessage) error {
	w.mu.Lock()
	last := w.lastBackup
	w.mu.Unlock()

	if !msg.Timestamp.IsZero() && !last.IsZero() && msg.Timestamp.Before(last) {
		slog.DebugContext(ctx, "Skipping backup request covered by a later backup",
			"component", "worker",
			"reason", msg.Reason,
			"requested_at", msg.Timestamp,
			"last_backup", last)
		return nil
	}
	return w.Backup(ctx, msg.Reason)
}

// Backup exports both logs concurrently and uploads them.
func (w *BackupWorker) Backup(ctx context.Context, reason string) error {
	started := w.now()
	slog.InfoContext(ctx, "Starting backup", "component", "worker", "reason", reason)

	var records, maintenance services.Export
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = w.exporter.ExportRecordsCSV(gctx)
		if err != nil {
			return fmt.Errorf("export records: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		maintenance, err = w.exporter.ExportMaintenanceCSV(gctx)
		if err != nil {
			return fmt.Errorf("export maintenance: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	ids := make([]string, 2)
	g, gctx = errgroup.WithContext(ctx)
	for i, exp := range []services.Export{records, maintenance} {
		g.Go(func() error {
			id, err := w.uploader.Upload(gctx, exp.Name, exp.Content)
			if err != nil {
				return fmt.Errorf("upload %s: %w", exp.Name, err)
			}
			ids[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w.mu.Lock()
	if started.After(w.lastBackup) {
		w.lastBackup = started
	}
	w.mu.Unlock()

	slog.InfoContext(ctx, "Backup completed",
		"component", "worker",
		"reason", reason,
		"records_file", records.Name,
		"records_file_id", ids[0],
		"maintenance_file", maintenance.Name,
		"maintenance_file_id", ids[1],
		"duration", w.now().Sub(started))
	return nil
}

// LastBackup returns the start time of the last successful backup.
func (w *BackupWorker) LastBackup() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastBackup
}

// RunPeriodic backs up every interval until ctx is done. Failures are
// logged and retried on the next tick.
func (w *BackupWorker) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Backup(ctx, "scheduled"); err != nil {
				slog.ErrorContext(ctx, "Scheduled backup failed", "component", "worker", "error", err)
			}
		}
	}
}

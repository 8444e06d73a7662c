package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chargelog/internal/cache"
	"chargelog/internal/csvio"
	"chargelog/internal/stats"
	"chargelog/internal/store"
)

// ErrValidation marks errors caused by bad input. The underlying sentinel
// from core stays reachable with errors.Is.
var ErrValidation = errors.New("validation failed")

// ErrBackupUnavailable is returned by RequestBackup without a backup queue.
var ErrBackupUnavailable = errors.New("backup queue not configured")

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

// ImportPolicy decides what happens to existing data on CSV import.
type ImportPolicy string

const (
	// PolicyReplace clears the collection and inserts the file in one unit.
	PolicyReplace ImportPolicy = "replace"
	// PolicyAppend adds the file's rows to the collection.
	PolicyAppend ImportPolicy = "append"
)

func ParseImportPolicy(s string) (ImportPolicy, error) {
	switch ImportPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyReplace:
		return PolicyReplace, nil
	case PolicyAppend:
		return PolicyAppend, nil
	}
	return "", fmt.Errorf("unknown import policy %q", s)
}

// BackupPublisher queues a backup of the data set. The AMQP client
// implements it.
type BackupPublisher interface {
	PublishBackupRequest(ctx context.Context, reason string) error
}

// Options configures a LogService. Zero values fall back to defaults.
type Options struct {
	Publisher  BackupPublisher
	Locale     csvio.Locale
	StatsCache cache.Cache[stats.Report]
	Now        func() time.Time
}

// LogService is the charging log application service. It owns the record
// store and is shared by the HTTP handlers and the backup worker.
type LogService struct {
	store     store.Store
	publisher BackupPublisher
	locale    csvio.Locale
	reports   cache.Cache[stats.Report]
	now       func() time.Time
}

func NewLogService(st store.Store, opts Options) *LogService {
	s := &LogService{
		store:     st,
		publisher: opts.Publisher,
		locale:    opts.Locale,
		reports:   opts.StatsCache,
		now:       opts.Now,
	}
	if s.locale == "" {
		s.locale = csvio.LocaleZhTW
	}
	if s.reports == nil {
		s.reports = cache.NewLRUCache[stats.Report](32, 10*time.Minute)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Store exposes the underlying record store.
func (s *LogService) Store() store.Store {
	return s.store
}

// Ping checks that the record store is reachable.
func (s *LogService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// changed runs after every successful mutation: cached statistics are
// dropped and a backup is requested.
func (s *LogService) changed(ctx context.Context, reason string) {
	s.reports.Purge()
	s.requestBackup(ctx, reason)
}

func (s *LogService) requestBackup(ctx context.Context, reason string) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping backup request", "reason", reason)
		return
	}
	if err := s.publisher.PublishBackupRequest(ctx, reason); err != nil {
		// the change is already persisted
		slog.ErrorContext(ctx, "Failed to publish backup request", "reason", reason, "error", err)
	}
}

// RequestBackup queues a backup on demand.
func (s *LogService) RequestBackup(ctx context.Context) error {
	if s.publisher == nil {
		return ErrBackupUnavailable
	}
	return s.publisher.PublishBackupRequest(ctx, "manual")
}

// Close closes the record store.
func (s *LogService) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return fmt.Errorf("close store: %w", err)
		}
	}
	return nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"chargelog/internal/core"
	"chargelog/internal/derive"
	"chargelog/internal/stats"
)

// SavedRecord is a persisted record with the derivation that produced it.
type SavedRecord struct {
	Record     core.ChargingRecord `json:"record"`
	Derivation derive.Result       `json:"derivation"`
}

// AddRecord derives the dependent fields of rec against the session that
// precedes it, then stores it under a fresh ID. A record without a vehicle
// is assigned to the default vehicle.
func (s *LogService) AddRecord(ctx context.Context, rec core.ChargingRecord) (SavedRecord, error) {
	if rec.VehicleID == "" {
		id, err := s.store.DefaultVehicleID(ctx)
		if err != nil {
			return SavedRecord{}, fmt.Errorf("default vehicle: %w", err)
		}
		rec.VehicleID = id
	}
	now := s.now()
	rec.ID = core.NewID()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	saved, err := s.prepare(ctx, rec)
	if err != nil {
		return SavedRecord{}, err
	}
	if err := s.store.AddRecord(ctx, saved.Record); err != nil {
		return SavedRecord{}, fmt.Errorf("save record: %w", err)
	}

	s.ensureStation(ctx, saved.Record)
	s.changed(ctx, "record created")
	return saved, nil
}

// UpdateRecord re-derives and replaces an existing record. The creation
// time is kept.
func (s *LogService) UpdateRecord(ctx context.Context, rec core.ChargingRecord) (SavedRecord, error) {
	existing, err := s.store.GetRecord(ctx, rec.ID)
	if err != nil {
		return SavedRecord{}, fmt.Errorf("get record %s: %w", rec.ID, err)
	}
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = s.now()

	saved, err := s.prepare(ctx, rec)
	if err != nil {
		return SavedRecord{}, err
	}
	if err := s.store.UpdateRecord(ctx, saved.Record); err != nil {
		return SavedRecord{}, fmt.Errorf("update record %s: %w", rec.ID, err)
	}

	s.ensureStation(ctx, saved.Record)
	s.changed(ctx, "record updated")
	return saved, nil
}

func (s *LogService) prepare(ctx context.Context, rec core.ChargingRecord) (SavedRecord, error) {
	rec.Vendor = strings.TrimSpace(rec.Vendor)
	rec.StationName = strings.TrimSpace(rec.StationName)
	if err := rec.Validate(); err != nil {
		return SavedRecord{}, invalid(err)
	}

	previous, err := s.previousMileage(ctx, rec)
	if err != nil {
		return SavedRecord{}, err
	}
	derived, res := derive.Apply(rec, previous)
	if res.HasWarning(derive.WarnNegativeMileage) {
		slog.WarnContext(ctx, "Odometer reading lower than previous session",
			"record_id", rec.ID, "current", rec.CurrentMileage, "previous", previous)
	}
	return SavedRecord{Record: derived, Derivation: res}, nil
}

// previousMileage returns the odometer reading of the session preceding
// rec. Without one, rec's own reading is returned so the delta is zero.
func (s *LogService) previousMileage(ctx context.Context, rec core.ChargingRecord) (float64, error) {
	records, err := s.store.ListRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("list records: %w", err)
	}
	prev, ok := stats.Previous(records, rec)
	if !ok {
		return rec.CurrentMileage, nil
	}
	return prev.CurrentMileage, nil
}

// PreviewRecord derives rec as AddRecord would, looking up the previous
// odometer reading from the store.
func (s *LogService) PreviewRecord(ctx context.Context, rec core.ChargingRecord) (derive.Result, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	if err := rec.ValidateValues(); errors.Is(err, core.ErrOutOfRange) {
		return derive.Result{}, invalid(err)
	}
	previous, err := s.previousMileage(ctx, rec)
	if err != nil {
		return derive.Result{}, err
	}
	return derive.All(derive.InputFrom(rec, previous)), nil
}

func (s *LogService) DeleteRecord(ctx context.Context, id string) error {
	if err := s.store.DeleteRecord(ctx, id); err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	s.changed(ctx, "record deleted")
	return nil
}

func (s *LogService) GetRecord(ctx context.Context, id string) (core.ChargingRecord, error) {
	rec, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return core.ChargingRecord{}, fmt.Errorf("get record %s: %w", id, err)
	}
	return rec, nil
}

// ListRecords returns one page of history, newest first.
func (s *LogService) ListRecords(ctx context.Context, q stats.Query) (stats.Page, error) {
	month, err := core.NormalizeMonth(q.Month)
	if err != nil {
		return stats.Page{}, invalid(err)
	}
	q.Month = month
	records, err := s.store.ListRecords(ctx)
	if err != nil {
		return stats.Page{}, fmt.Errorf("list records: %w", err)
	}
	return stats.History(records, q), nil
}

// Months lists the months that have records, newest first.
func (s *LogService) Months(ctx context.Context) ([]string, error) {
	records, err := s.store.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return stats.Months(records), nil
}

// MonthlyStats aggregates the records of month (YYYY-MM).
func (s *LogService) MonthlyStats(ctx context.Context, month string) (core.Stats, error) {
	r, err := s.StatsReport(ctx, month)
	if err != nil {
		return core.Stats{}, err
	}
	return r.Summary, nil
}

// TotalStats aggregates every record.
func (s *LogService) TotalStats(ctx context.Context) (core.Stats, error) {
	r, err := s.StatsReport(ctx, "")
	if err != nil {
		return core.Stats{}, err
	}
	return r.Lifetime, nil
}

// StatsReport builds the statistics page for month, or for all time when
// month is empty. Reports are cached until the next mutation.
func (s *LogService) StatsReport(ctx context.Context, month string) (stats.Report, error) {
	month, err := core.NormalizeMonth(month)
	if err != nil {
		return stats.Report{}, invalid(err)
	}
	key := "report:" + month
	if r, ok := s.reports.Get(key); ok {
		return r, nil
	}
	records, err := s.store.ListRecords(ctx)
	if err != nil {
		return stats.Report{}, fmt.Errorf("list records: %w", err)
	}
	r := stats.BuildReport(records, month)
	s.reports.Set(key, r)
	return r, nil
}

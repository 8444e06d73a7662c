package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"chargelog/internal/core"
)

// ListStations returns every known station, sorted by vendor then name.
func (s *LogService) ListStations(ctx context.Context) ([]core.Station, error) {
	st, err := s.store.ListStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	return st, nil
}

// AddStation stores a station unless one with the same vendor and name
// exists already, in which case the existing one is returned.
func (s *LogService) AddStation(ctx context.Context, st core.Station) (core.Station, error) {
	st.Vendor = strings.TrimSpace(st.Vendor)
	st.Name = strings.TrimSpace(st.Name)
	if err := st.Validate(); err != nil {
		return core.Station{}, invalid(err)
	}
	existing, err := s.store.ListStations(ctx)
	if err != nil {
		return core.Station{}, fmt.Errorf("list stations: %w", err)
	}
	for _, e := range existing {
		if strings.EqualFold(e.Vendor, st.Vendor) && strings.EqualFold(e.Name, st.Name) {
			return e, nil
		}
	}
	st.ID = core.NewID()
	if err := s.store.AddStation(ctx, st); err != nil {
		return core.Station{}, fmt.Errorf("save station: %w", err)
	}
	return st, nil
}

// ensureStation adds the vendor and station of rec to the station list.
// Failures are logged; the record is already saved.
func (s *LogService) ensureStation(ctx context.Context, rec core.ChargingRecord) {
	_, err := s.AddStation(ctx, core.Station{
		Vendor:               rec.Vendor,
		Name:                 rec.StationName,
		DefaultSpecification: rec.Specification,
		DefaultPricePerUnit:  rec.PricePerUnit,
	})
	if err != nil {
		slog.WarnContext(ctx, "Failed to record station", "vendor", rec.Vendor, "station", rec.StationName, "error", err)
	}
}

func (s *LogService) ListMaintenance(ctx context.Context) ([]core.MaintenanceRecord, error) {
	ms, err := s.store.ListMaintenance(ctx)
	if err != nil {
		return nil, fmt.Errorf("list maintenance: %w", err)
	}
	return ms, nil
}

// AddMaintenance stores a maintenance record with line totals and the
// record total recomputed from its items.
func (s *LogService) AddMaintenance(ctx context.Context, m core.MaintenanceRecord) (core.MaintenanceRecord, error) {
	if m.VehicleID == "" {
		id, err := s.store.DefaultVehicleID(ctx)
		if err != nil {
			return core.MaintenanceRecord{}, fmt.Errorf("default vehicle: %w", err)
		}
		m.VehicleID = id
	}
	m = m.WithTotals()
	if err := m.Validate(); err != nil {
		return core.MaintenanceRecord{}, invalid(err)
	}
	m.ID = core.NewID()
	m.CreatedAt = s.now()
	if err := s.store.AddMaintenance(ctx, m); err != nil {
		return core.MaintenanceRecord{}, fmt.Errorf("save maintenance: %w", err)
	}
	s.changed(ctx, "maintenance created")
	return m, nil
}

func (s *LogService) UpdateMaintenance(ctx context.Context, m core.MaintenanceRecord) (core.MaintenanceRecord, error) {
	existing, err := s.store.GetMaintenance(ctx, m.ID)
	if err != nil {
		return core.MaintenanceRecord{}, fmt.Errorf("get maintenance %s: %w", m.ID, err)
	}
	m = m.WithTotals()
	if err := m.Validate(); err != nil {
		return core.MaintenanceRecord{}, invalid(err)
	}
	m.CreatedAt = existing.CreatedAt
	if err := s.store.UpdateMaintenance(ctx, m); err != nil {
		return core.MaintenanceRecord{}, fmt.Errorf("update maintenance %s: %w", m.ID, err)
	}
	s.changed(ctx, "maintenance updated")
	return m, nil
}

func (s *LogService) DeleteMaintenance(ctx context.Context, id string) error {
	if err := s.store.DeleteMaintenance(ctx, id); err != nil {
		return fmt.Errorf("delete maintenance %s: %w", id, err)
	}
	s.changed(ctx, "maintenance deleted")
	return nil
}

// DueMaintenance lists the maintenance reminders that have come due at now.
// Only the newest record of each vehicle and type is considered, and the
// odometer is the highest reading from charging or maintenance records.
func (s *LogService) DueMaintenance(ctx context.Context, now time.Time) ([]DueItem, error) {
	ms, err := s.store.ListMaintenance(ctx)
	if err != nil {
		return nil, fmt.Errorf("list maintenance: %w", err)
	}
	records, err := s.store.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	odometer := map[string]float64{}
	for _, r := range records {
		if r.CurrentMileage > odometer[r.VehicleID] {
			odometer[r.VehicleID] = r.CurrentMileage
		}
	}
	for _, m := range ms {
		if m.Mileage > odometer[m.VehicleID] {
			odometer[m.VehicleID] = m.Mileage
		}
	}

	// ms is newest first, so the first of each key wins
	seen := map[string]bool{}
	var due []DueItem
	for _, m := range ms {
		key := m.VehicleID + "\x00" + strings.ToLower(strings.TrimSpace(m.Type))
		if seen[key] {
			continue
		}
		seen[key] = true
		if item, ok := checkDue(m, Reading{Odometer: odometer[m.VehicleID], Now: now}); ok {
			due = append(due, item)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return urgency(due[i]) < urgency(due[j])
	})
	return due, nil
}

// urgency orders due items, most pressing first. A day counts as 100 km.
func urgency(d DueItem) float64 {
	u := 1e12
	if d.DaysLeft != nil {
		u = float64(*d.DaysLeft) * 100
	}
	if d.RemainingDistance != nil && *d.RemainingDistance < u {
		u = *d.RemainingDistance
	}
	return u
}

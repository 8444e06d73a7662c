package store

import (
	"context"
	"errors"

	"chargelog/internal/core"
)

var ErrNotFound = errors.New("not found")

// Ports for the record store.
type (
	ChargingRecords interface {
		AddRecord(ctx context.Context, r core.ChargingRecord) error
		UpdateRecord(ctx context.Context, r core.ChargingRecord) error
		DeleteRecord(ctx context.Context, id string) error
		GetRecord(ctx context.Context, id string) (core.ChargingRecord, error)
		// ListRecords returns every record, oldest first.
		ListRecords(ctx context.Context) ([]core.ChargingRecord, error)
		// ReplaceRecords clears the collection and inserts records as one unit.
		ReplaceRecords(ctx context.Context, records []core.ChargingRecord) error
		// AppendRecords inserts records as one unit.
		AppendRecords(ctx context.Context, records []core.ChargingRecord) error
	}

	Vehicles interface {
		AddVehicle(ctx context.Context, v core.Vehicle) error
		UpdateVehicle(ctx context.Context, v core.Vehicle) error
		// DeleteVehicle also clears the default setting when it pointed at id.
		DeleteVehicle(ctx context.Context, id string) error
		GetVehicle(ctx context.Context, id string) (core.Vehicle, error)
		// ListVehicles returns vehicles with IsDefault filled from the setting.
		ListVehicles(ctx context.Context) ([]core.Vehicle, error)
		// SetDefaultVehicle stores id as the single default in one write.
		SetDefaultVehicle(ctx context.Context, id string) error
		// DefaultVehicleID returns "" when no default is set.
		DefaultVehicleID(ctx context.Context) (string, error)
	}

	Maintenance interface {
		AddMaintenance(ctx context.Context, m core.MaintenanceRecord) error
		UpdateMaintenance(ctx context.Context, m core.MaintenanceRecord) error
		DeleteMaintenance(ctx context.Context, id string) error
		GetMaintenance(ctx context.Context, id string) (core.MaintenanceRecord, error)
		// ListMaintenance returns every record, newest first.
		ListMaintenance(ctx context.Context) ([]core.MaintenanceRecord, error)
		ReplaceMaintenance(ctx context.Context, records []core.MaintenanceRecord) error
		AppendMaintenance(ctx context.Context, records []core.MaintenanceRecord) error
	}

	Stations interface {
		AddStation(ctx context.Context, s core.Station) error
		DeleteStation(ctx context.Context, id string) error
		// ListStations returns stations sorted by vendor then name.
		ListStations(ctx context.Context) ([]core.Station, error)
	}

	// Store is the complete record store.
	Store interface {
		ChargingRecords
		Vehicles
		Maintenance
		Stations
		Ping(ctx context.Context) error
		Close() error
	}
)

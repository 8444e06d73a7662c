package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chargelog/internal/core"
	"chargelog/internal/store"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "chargelog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func sampleRecord(id string, day int) core.ChargingRecord {
	created := time.Date(2024, 3, day, 23, 0, 0, 0, time.UTC)
	return core.ChargingRecord{
		ID:               id,
		VehicleID:        "v1",
		Date:             core.NewDate(2024, 3, day),
		StartTime:        core.NewTimeOfDay(22, 0),
		EndTime:          core.NewTimeOfDay(23, 30),
		Duration:         90,
		Vendor:           "Tesla",
		StationName:      "Taipei 101",
		Specification:    core.SpecTPC,
		Power:            15,
		Unit:             core.DefaultUnit,
		PricePerUnit:     6.5,
		ChargingFee:      97.5,
		ParkingFee:       20,
		CurrentMileage:   12150,
		IncreasedMileage: 150,
		Notes:            "note",
		CreatedAt:        created,
		UpdatedAt:        created,
	}
}

func TestRecordCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := sampleRecord("r1", 1)
	require.NoError(t, repo.AddRecord(ctx, rec))

	got, err := repo.GetRecord(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	rec.ChargingFee = 100
	rec.StartTime = core.TimeOfDay{}
	require.NoError(t, repo.UpdateRecord(ctx, rec))
	got, err = repo.GetRecord(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.ChargingFee)
	assert.False(t, got.StartTime.Valid())

	require.NoError(t, repo.DeleteRecord(ctx, "r1"))
	_, err = repo.GetRecord(ctx, "r1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteRecord(ctx, "r1"), store.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateRecord(ctx, rec), store.ErrNotFound)
}

func TestListRecordsOldestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	late := sampleRecord("late", 5)
	early := sampleRecord("early", 2)
	sameDay := sampleRecord("morning", 5)
	sameDay.StartTime = core.NewTimeOfDay(7, 0)
	for _, r := range []core.ChargingRecord{late, early, sameDay} {
		require.NoError(t, repo.AddRecord(ctx, r))
	}

	list, err := repo.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"early", "morning", "late"}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestReplaceRecordsIsAtomic(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.AddRecord(ctx, sampleRecord("keep", 1)))

	err := repo.ReplaceRecords(ctx, []core.ChargingRecord{sampleRecord("a", 2), sampleRecord("a", 3)})
	require.Error(t, err)

	list, err := repo.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "keep", list[0].ID)

	require.NoError(t, repo.ReplaceRecords(ctx, []core.ChargingRecord{sampleRecord("a", 2), sampleRecord("b", 3)}))
	require.NoError(t, repo.AppendRecords(ctx, []core.ChargingRecord{sampleRecord("c", 4)}))
	list, err = repo.ListRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestDefaultVehicle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.AddVehicle(ctx, core.Vehicle{ID: "v1", Name: "Model 3", CreatedAt: now}))
	require.NoError(t, repo.AddVehicle(ctx, core.Vehicle{
		ID: "v2", Name: "Ioniq 5", PurchaseDate: core.NewDate(2023, 5, 1), CreatedAt: now.Add(time.Second),
	}))

	id, err := repo.DefaultVehicleID(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	assert.ErrorIs(t, repo.SetDefaultVehicle(ctx, "ghost"), store.ErrNotFound)
	require.NoError(t, repo.SetDefaultVehicle(ctx, "v1"))
	require.NoError(t, repo.SetDefaultVehicle(ctx, "v2"))

	vs, err := repo.ListVehicles(ctx)
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.False(t, vs[0].IsDefault)
	assert.True(t, vs[1].IsDefault)
	assert.Equal(t, "2023-05-01", vs[1].PurchaseDate.String())

	v, err := repo.GetVehicle(ctx, "v2")
	require.NoError(t, err)
	assert.True(t, v.IsDefault)

	require.NoError(t, repo.DeleteVehicle(ctx, "v2"))
	id, err = repo.DefaultVehicleID(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	_, err = repo.GetVehicle(ctx, "v2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMaintenanceRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	m := core.MaintenanceRecord{
		ID:              "m1",
		Date:            core.NewDate(2024, 2, 1),
		Mileage:         20000,
		Type:            "service",
		Location:        "Dealer",
		Items:           []core.MaintenanceItem{{Name: "wiper", Quantity: 2, Price: 350, Total: 700}},
		TotalCost:       700,
		NextMaintenance: 40000,
		NextDate:        core.NewDate(2025, 2, 1),
		CreatedAt:       time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.AddMaintenance(ctx, m))
	require.NoError(t, repo.AddMaintenance(ctx, core.MaintenanceRecord{
		ID: "m2", Date: core.NewDate(2024, 6, 1), Type: "tyres", CreatedAt: time.Now().UTC(),
	}))

	got, err := repo.GetMaintenance(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, m, got)

	list, err := repo.ListMaintenance(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "m2", list[0].ID)
	assert.Empty(t, list[0].Items)

	require.NoError(t, repo.ReplaceMaintenance(ctx, nil))
	list, err = repo.ListMaintenance(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStations(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.AddStation(ctx, core.Station{ID: "s2", Vendor: "Tesla", Name: "B"}))
	require.NoError(t, repo.AddStation(ctx, core.Station{ID: "s1", Vendor: "Ionna", Name: "Z", DefaultSpecification: core.SpecCCS1}))
	require.Error(t, repo.AddStation(ctx, core.Station{ID: "s3", Vendor: "Tesla", Name: "B"}))

	list, err := repo.ListStations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Ionna", list[0].Vendor)
	assert.Equal(t, core.SpecCCS1, list[0].DefaultSpecification)

	require.NoError(t, repo.DeleteStation(ctx, "s1"))
	assert.ErrorIs(t, repo.DeleteStation(ctx, "s1"), store.ErrNotFound)
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.db")
	require.NoError(t, RunMigrations(path))
	require.NoError(t, RunMigrations(path))
}

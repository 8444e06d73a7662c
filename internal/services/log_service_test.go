package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chargelog/internal/core"
	"chargelog/internal/csvio"
	"chargelog/internal/derive"
	"chargelog/internal/stats"
	"chargelog/internal/store"
	"chargelog/internal/store/memory"
)

type fakePublisher struct {
	mu      sync.Mutex
	reasons []string
	err     error
}

func (f *fakePublisher) PublishBackupRequest(_ context.Context, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reasons = append(f.reasons, reason)
	return f.err
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reasons)
}

// failingStore rejects every write so tests can check that nothing leaks.
type failingStore struct {
	*memory.Store
}

var errDisk = errors.New("disk full")

func (failingStore) AddRecord(context.Context, core.ChargingRecord) error { return errDisk }

func newService(t *testing.T) (*LogService, *fakePublisher) {
	t.Helper()
	pub := &fakePublisher{}
	clock := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	svc := NewLogService(memory.New(), Options{
		Publisher: pub,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	return svc, pub
}

func session(day int, start, end string, power, ppu, mileage float64) core.ChargingRecord {
	st, _ := core.ParseTimeOfDay(start)
	et, _ := core.ParseTimeOfDay(end)
	return core.ChargingRecord{
		Date:           core.NewDate(2024, 3, day),
		StartTime:      st,
		EndTime:        et,
		Vendor:         "Tesla",
		StationName:    "Taipei 101",
		Specification:  core.SpecTPC,
		Power:          power,
		PricePerUnit:   ppu,
		CurrentMileage: mileage,
	}
}

func TestAddRecordDerivesAndPersists(t *testing.T) {
	svc, pub := newService(t)
	ctx := context.Background()

	first, err := svc.AddRecord(ctx, session(1, "08:00", "09:00", 10, 5, 12000))
	require.NoError(t, err)
	assert.Equal(t, 60, first.Record.Duration)
	assert.Equal(t, 50.0, first.Record.ChargingFee)
	assert.Equal(t, 0.0, first.Record.IncreasedMileage, "first session has no previous reading")
	assert.Equal(t, core.DefaultUnit, first.Record.Unit)

	second, err := svc.AddRecord(ctx, session(2, "22:00", "23:30", 15, 6.5, 12150))
	require.NoError(t, err)
	assert.Equal(t, 90, second.Record.Duration)
	assert.Equal(t, 97.5, second.Record.ChargingFee)
	assert.Equal(t, 150.0, second.Record.IncreasedMileage)
	require.NotNil(t, second.Derivation.CostPerDistance)
	assert.Equal(t, 0.65, *second.Derivation.CostPerDistance)
	require.NotNil(t, second.Derivation.AveragePrice)
	assert.Equal(t, 6.5, *second.Derivation.AveragePrice)

	stored, err := svc.GetRecord(ctx, second.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, second.Record, stored)

	stations, err := svc.ListStations(ctx)
	require.NoError(t, err)
	require.Len(t, stations, 1, "the station is created once")
	assert.Equal(t, "Tesla", stations[0].Vendor)

	assert.Equal(t, 2, pub.count())
}

func TestAddRecordOvernightSession(t *testing.T) {
	svc, _ := newService(t)
	saved, err := svc.AddRecord(context.Background(), session(5, "23:50", "00:10", 0, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 20, saved.Record.Duration)
	assert.True(t, saved.Derivation.HasWarning(derive.WarnFeeNotDerived))
}

func TestAddRecordNegativeMileagePassesThrough(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.AddRecord(ctx, session(1, "08:00", "09:00", 10, 5, 12000))
	require.NoError(t, err)

	saved, err := svc.AddRecord(ctx, session(2, "08:00", "09:00", 10, 5, 11900))
	require.NoError(t, err)
	assert.Equal(t, -100.0, saved.Record.IncreasedMileage)
	assert.True(t, saved.Derivation.HasWarning(derive.WarnNegativeMileage))
	assert.Nil(t, saved.Derivation.CostPerDistance)
}

func TestAddRecordValidation(t *testing.T) {
	svc, pub := newService(t)
	ctx := context.Background()

	bad := session(1, "08:00", "09:00", -1, 5, 0)
	_, err := svc.AddRecord(ctx, bad)
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, core.ErrNegativePower)

	noStart := session(1, "", "09:00", 1, 5, 0)
	_, err = svc.AddRecord(ctx, noStart)
	assert.ErrorIs(t, err, core.ErrMissingStartTime)

	page, err := svc.ListRecords(ctx, stats.Query{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Zero(t, pub.count())
}

func TestOversizedValuesAreRejected(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	huge := session(1, "08:00", "09:00", 1e308, 6.5, 0)
	require.NotPanics(t, func() {
		_, err := svc.AddRecord(ctx, huge)
		assert.ErrorIs(t, err, core.ErrOutOfRange)
	})

	overflow := session(1, "08:00", "09:00", 1e300, 1e10, 0)
	require.NotPanics(t, func() {
		_, err := svc.PreviewRecord(ctx, overflow)
		assert.ErrorIs(t, err, ErrValidation)
	})

	_, err := svc.AddMaintenance(ctx, core.MaintenanceRecord{
		Date:  core.NewDate(2024, 3, 1),
		Type:  "service",
		Items: []core.MaintenanceItem{{Name: "tyre", Quantity: 1e9, Price: 1e9}},
	})
	assert.ErrorIs(t, err, core.ErrOutOfRange)

	rep, err := svc.StatsReport(ctx, "2024-03")
	require.NoError(t, err)
	assert.Zero(t, rep.Summary.ChargingCount)
}

func TestAddRecordStoreFailureLeavesNoTrace(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewLogService(failingStore{memory.New()}, Options{Publisher: pub})
	ctx := context.Background()

	_, err := svc.AddRecord(ctx, session(1, "08:00", "09:00", 10, 5, 0))
	require.ErrorIs(t, err, errDisk)

	st, err := svc.ListStations(ctx)
	require.NoError(t, err)
	assert.Empty(t, st)
	assert.Zero(t, pub.count())
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	svc, pub := newService(t)
	pub.err = errors.New("broker down")
	_, err := svc.AddRecord(context.Background(), session(1, "08:00", "09:00", 10, 5, 0))
	assert.NoError(t, err)
}

func TestUpdateRecordKeepsCreationAndRederives(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	saved, err := svc.AddRecord(ctx, session(1, "08:00", "09:00", 10, 5, 0))
	require.NoError(t, err)

	rec := saved.Record
	rec.Power = 20
	updated, err := svc.UpdateRecord(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, 100.0, updated.Record.ChargingFee)
	assert.Equal(t, saved.Record.CreatedAt, updated.Record.CreatedAt)
	assert.True(t, updated.Record.UpdatedAt.After(saved.Record.UpdatedAt))

	rec.ID = "missing"
	_, err = svc.UpdateRecord(ctx, rec)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStatsCacheIsPurgedOnMutation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	st, err := svc.MonthlyStats(ctx, "2024-03")
	require.NoError(t, err)
	assert.Equal(t, core.Stats{}, st)

	saved, err := svc.AddRecord(ctx, session(1, "08:00", "09:00", 10, 5, 0))
	require.NoError(t, err)
	st, err = svc.MonthlyStats(ctx, "2024-3")
	require.NoError(t, err)
	assert.Equal(t, 1, st.ChargingCount)
	assert.Equal(t, 50.0, st.TotalCost)

	require.NoError(t, svc.DeleteRecord(ctx, saved.Record.ID))
	total, err := svc.TotalStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, total.ChargingCount)

	_, err = svc.MonthlyStats(ctx, "March")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestVehicles(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	a, err := svc.AddVehicle(ctx, core.Vehicle{Name: " Model 3 "})
	require.NoError(t, err)
	assert.Equal(t, "Model 3", a.Name)
	assert.Equal(t, "2024-03-20", a.PurchaseDate.String(), "purchase date defaults to today")

	_, err = svc.AddVehicle(ctx, core.Vehicle{Name: "model 3"})
	assert.ErrorIs(t, err, core.ErrDuplicateVehicleName)
	_, err = svc.AddVehicle(ctx, core.Vehicle{Name: "   "})
	assert.ErrorIs(t, err, core.ErrEmptyVehicleName)

	b, err := svc.AddVehicle(ctx, core.Vehicle{Name: "Ioniq 5"})
	require.NoError(t, err)

	_, ok, err := svc.DefaultVehicle(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.SetDefaultVehicle(ctx, a.ID))
	require.NoError(t, svc.SetDefaultVehicle(ctx, b.ID))
	def, ok, err := svc.DefaultVehicle(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b.ID, def.ID)

	vs, err := svc.ListVehicles(ctx)
	require.NoError(t, err)
	defaults := 0
	for _, v := range vs {
		if v.IsDefault {
			defaults++
		}
	}
	assert.Equal(t, 1, defaults)

	saved, err := svc.AddRecord(ctx, session(1, "08:00", "09:00", 1, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, b.ID, saved.Record.VehicleID, "records default to the default vehicle")

	_, err = svc.UpdateVehicle(ctx, core.Vehicle{ID: b.ID, Name: "Model 3"})
	assert.ErrorIs(t, err, core.ErrDuplicateVehicleName)

	require.NoError(t, svc.DeleteVehicle(ctx, b.ID))
	_, ok, err = svc.DefaultVehicle(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "deleting the default leaves none")
}

func TestRecordsFollowPreviousOfSameVehicle(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	r1 := session(1, "08:00", "09:00", 1, 1, 1000)
	r1.VehicleID = "car-a"
	r2 := session(2, "08:00", "09:00", 1, 1, 50000)
	r2.VehicleID = "car-b"
	r3 := session(3, "08:00", "09:00", 1, 1, 1100)
	r3.VehicleID = "car-a"
	for _, r := range []core.ChargingRecord{r1, r2} {
		_, err := svc.AddRecord(ctx, r)
		require.NoError(t, err)
	}
	saved, err := svc.AddRecord(ctx, r3)
	require.NoError(t, err)
	assert.Equal(t, 100.0, saved.Record.IncreasedMileage)
}

func TestMaintenanceTotalsAndDue(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	m, err := svc.AddMaintenance(ctx, core.MaintenanceRecord{
		Date:            core.NewDate(2024, 1, 10),
		Mileage:         10000,
		Type:            "tyres",
		Items:           []core.MaintenanceItem{{Name: "tyre", Quantity: 4, Price: 2499.99}, {Name: "valve", Quantity: 2, Price: 0.335}},
		NextMaintenance: 40000,
	})
	require.NoError(t, err)
	assert.Equal(t, 9999.96, m.Items[0].Total)
	assert.Equal(t, 0.67, m.Items[1].Total)
	assert.Equal(t, 10000.63, m.TotalCost)

	_, err = svc.AddMaintenance(ctx, core.MaintenanceRecord{
		Date:     core.NewDate(2024, 2, 1),
		Type:     "inspection",
		NextDate: core.NewDate(2024, 3, 25),
	})
	require.NoError(t, err)

	_, err = svc.AddMaintenance(ctx, core.MaintenanceRecord{Date: core.NewDate(2024, 2, 1)})
	assert.ErrorIs(t, err, core.ErrEmptyMaintenanceType)

	now := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	due, err := svc.DueMaintenance(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "inspection", due[0].Record.Type)

	_, err = svc.AddRecord(ctx, session(15, "08:00", "09:00", 1, 1, 39700))
	require.NoError(t, err)
	due, err = svc.DueMaintenance(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "tyres", due[0].Record.Type, "300 km left outranks five days left")
	assert.Equal(t, []DueKind{DueByMileage}, due[0].Kinds)
	require.NotNil(t, due[0].RemainingDistance)
	assert.Equal(t, 300.0, *due[0].RemainingDistance)
	require.NotNil(t, due[1].DaysLeft)
	assert.Equal(t, 5, *due[1].DaysLeft)
}

func TestExportImportRoundTrip(t *testing.T) {
	svc, pub := newService(t)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		_, err := svc.AddRecord(ctx, session(i, "08:00", "09:00", float64(i), 5, float64(1000*i)))
		require.NoError(t, err)
	}

	exp, err := svc.ExportRecordsCSV(ctx)
	require.NoError(t, err)
	assert.Equal(t, "charging-records_2024-03-20.csv", exp.Name)
	assert.True(t, bytes.HasPrefix(exp.Content, []byte("\ufeff日期")))

	before := pub.count()
	res, err := svc.ImportRecordsCSV(ctx, bytes.NewReader(exp.Content), PolicyReplace)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
	assert.Equal(t, before+1, pub.count())

	page, err := svc.ListRecords(ctx, stats.Query{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)

	res, err = svc.ImportRecordsCSV(ctx, bytes.NewReader(exp.Content), PolicyAppend)
	require.NoError(t, err)
	page, err = svc.ListRecords(ctx, stats.Query{})
	require.NoError(t, err)
	assert.Equal(t, 6, page.Total)
}

func TestImportPartialAndEmpty(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.AddRecord(ctx, session(1, "08:00", "09:00", 1, 1, 0))
	require.NoError(t, err)

	file := "h\n2024-03-02,0,0,08:00,09:00,60,V,S,,1,kWh,1,0,1,0,\nbroken,0\n"
	res, err := svc.ImportRecordsCSV(ctx, strings.NewReader(file), PolicyReplace)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	require.Len(t, res.Rejected, 1)
	assert.Contains(t, res.Errors()[0], "line 3")

	_, err = svc.ImportRecordsCSV(ctx, strings.NewReader("h\nbroken\n"), PolicyReplace)
	require.ErrorIs(t, err, ErrValidation)
	var ie *csvio.ImportError
	assert.ErrorAs(t, err, &ie)

	page, err := svc.ListRecords(ctx, stats.Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total, "a failed import leaves the data untouched")

	_, err = svc.ImportRecordsCSV(ctx, strings.NewReader("h\n2024-03-02\n"), ImportPolicy("merge"))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestImportRejectsInvalidValues(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	file := "h\n" +
		"2024-03-02,0,0,08:00,09:00,60,V,S,,10,kWh,5,0,50,0,\n" +
		"2024-03-01,0,0,,,-30,,,,-5,kWh,0,0,-10,0,\n" +
		"2024-03-03,0,0,08:00,09:00,60,V,S,,1e308,kWh,0,0,1e308,1e308,\n"
	res, err := svc.ImportRecordsCSV(ctx, strings.NewReader(file), PolicyAppend)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	require.Len(t, res.Rejected, 2)
	assert.ErrorIs(t, res.Rejected[0], core.ErrNegativeDuration)
	assert.ErrorIs(t, res.Rejected[1], core.ErrOutOfRange)

	st, err := svc.MonthlyStats(ctx, "2024-03")
	require.NoError(t, err)
	assert.Equal(t, 1, st.ChargingCount)
	assert.Equal(t, 50.0, st.TotalCost)
	assert.Equal(t, 10.0, st.TotalPower)

	_, err = svc.ExportRecordsCSV(ctx)
	require.NoError(t, err)

	_, err = svc.ImportMaintenanceCSV(ctx, strings.NewReader("h\n2024-01-01,100,service,here,-10,,,\n"), PolicyAppend)
	require.ErrorIs(t, err, ErrValidation)
	var ie *csvio.ImportError
	require.ErrorAs(t, err, &ie)
	assert.ErrorIs(t, ie.Rows[0], core.ErrNegativeFee)
}

func TestMaintenanceImportAppends(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.AddMaintenance(ctx, core.MaintenanceRecord{Date: core.NewDate(2024, 1, 1), Type: "wash", TotalCost: 10})
	require.NoError(t, err)

	exp, err := svc.ExportMaintenanceCSV(ctx)
	require.NoError(t, err)
	assert.Equal(t, "maintenance-records_2024-03-20.csv", exp.Name)

	_, err = svc.ImportMaintenanceCSV(ctx, bytes.NewReader(exp.Content), PolicyAppend)
	require.NoError(t, err)
	ms, err := svc.ListMaintenance(ctx)
	require.NoError(t, err)
	assert.Len(t, ms, 2)
}

func TestParseImportPolicy(t *testing.T) {
	p, err := ParseImportPolicy(" Replace ")
	require.NoError(t, err)
	assert.Equal(t, PolicyReplace, p)
	_, err = ParseImportPolicy("merge")
	assert.Error(t, err)
}

package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"chargelog/internal/core"
	"chargelog/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps every entity in process memory. It is used for the memory
// backend and as a test double.
type Store struct {
	mu             sync.Mutex
	records        map[string]core.ChargingRecord
	vehicles       map[string]core.Vehicle
	maintenance    map[string]core.MaintenanceRecord
	stations       map[string]core.Station
	defaultVehicle string
}

func New() *Store {
	return &Store{
		records:     make(map[string]core.ChargingRecord),
		vehicles:    make(map[string]core.Vehicle),
		maintenance: make(map[string]core.MaintenanceRecord),
		stations:    make(map[string]core.Station),
	}
}

// NewFromFiles seeds the station list from base/seed_stations.txt. Each line
// is "vendor|station|specification"; blank lines and # comments are skipped.
func NewFromFiles(base string) *Store {
	s := New()
	lines := readLines(filepath.Join(base, "seed_stations.txt"))
	for i, line := range lines {
		parts := strings.Split(line, "|")
		st := core.Station{ID: fmt.Sprintf("seed:%d", i+1), Vendor: strings.TrimSpace(parts[0])}
		if len(parts) > 1 {
			st.Name = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			if spec, err := core.ParseSpecification(parts[2]); err == nil {
				st.DefaultSpecification = spec
			}
		}
		if st.Validate() == nil {
			s.stations[st.ID] = st
		}
	}
	return s
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) AddRecord(_ context.Context, r core.ChargingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; ok {
		return fmt.Errorf("record %s already exists", r.ID)
	}
	s.records[r.ID] = r
	return nil
}

func (s *Store) UpdateRecord(_ context.Context, r core.ChargingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; !ok {
		return store.ErrNotFound
	}
	s.records[r.ID] = r
	return nil
}

func (s *Store) DeleteRecord(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *Store) GetRecord(_ context.Context, id string) (core.ChargingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return core.ChargingRecord{}, store.ErrNotFound
	}
	return r, nil
}

func (s *Store) ListRecords(_ context.Context) ([]core.ChargingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.ChargingRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (s *Store) ReplaceRecords(_ context.Context, records []core.ChargingRecord) error {
	next := make(map[string]core.ChargingRecord, len(records))
	for _, r := range records {
		if _, ok := next[r.ID]; ok {
			return fmt.Errorf("duplicate record id %s", r.ID)
		}
		next[r.ID] = r
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = next
	return nil
}

func (s *Store) AppendRecords(_ context.Context, records []core.ChargingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if _, ok := s.records[r.ID]; ok {
			return fmt.Errorf("record %s already exists", r.ID)
		}
	}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return nil
}

func (s *Store) AddVehicle(_ context.Context, v core.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vehicles[v.ID]; ok {
		return fmt.Errorf("vehicle %s already exists", v.ID)
	}
	v.IsDefault = false
	s.vehicles[v.ID] = v
	return nil
}

func (s *Store) UpdateVehicle(_ context.Context, v core.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vehicles[v.ID]; !ok {
		return store.ErrNotFound
	}
	v.IsDefault = false
	s.vehicles[v.ID] = v
	return nil
}

func (s *Store) DeleteVehicle(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vehicles[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.vehicles, id)
	if s.defaultVehicle == id {
		s.defaultVehicle = ""
	}
	return nil
}

func (s *Store) GetVehicle(_ context.Context, id string) (core.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok {
		return core.Vehicle{}, store.ErrNotFound
	}
	v.IsDefault = id == s.defaultVehicle
	return v, nil
}

func (s *Store) ListVehicles(_ context.Context) ([]core.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Vehicle, 0, len(s.vehicles))
	for id, v := range s.vehicles {
		v.IsDefault = id == s.defaultVehicle
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) SetDefaultVehicle(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vehicles[id]; !ok {
		return store.ErrNotFound
	}
	s.defaultVehicle = id
	return nil
}

func (s *Store) DefaultVehicleID(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultVehicle, nil
}

func (s *Store) AddMaintenance(_ context.Context, m core.MaintenanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.maintenance[m.ID]; ok {
		return fmt.Errorf("maintenance %s already exists", m.ID)
	}
	s.maintenance[m.ID] = cloneMaintenance(m)
	return nil
}

func (s *Store) UpdateMaintenance(_ context.Context, m core.MaintenanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.maintenance[m.ID]; !ok {
		return store.ErrNotFound
	}
	s.maintenance[m.ID] = cloneMaintenance(m)
	return nil
}

func (s *Store) DeleteMaintenance(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.maintenance[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.maintenance, id)
	return nil
}

func (s *Store) GetMaintenance(_ context.Context, id string) (core.MaintenanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.maintenance[id]
	if !ok {
		return core.MaintenanceRecord{}, store.ErrNotFound
	}
	return cloneMaintenance(m), nil
}

func (s *Store) ListMaintenance(_ context.Context) ([]core.MaintenanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.MaintenanceRecord, 0, len(s.maintenance))
	for _, m := range s.maintenance {
		out = append(out, cloneMaintenance(m))
	}
	sortMaintenance(out)
	return out, nil
}

func (s *Store) ReplaceMaintenance(_ context.Context, records []core.MaintenanceRecord) error {
	next := make(map[string]core.MaintenanceRecord, len(records))
	for _, m := range records {
		if _, ok := next[m.ID]; ok {
			return fmt.Errorf("duplicate maintenance id %s", m.ID)
		}
		next[m.ID] = cloneMaintenance(m)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maintenance = next
	return nil
}

func (s *Store) AppendMaintenance(_ context.Context, records []core.MaintenanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range records {
		if _, ok := s.maintenance[m.ID]; ok {
			return fmt.Errorf("maintenance %s already exists", m.ID)
		}
	}
	for _, m := range records {
		s.maintenance[m.ID] = cloneMaintenance(m)
	}
	return nil
}

func (s *Store) AddStation(_ context.Context, st core.Station) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stations[st.ID]; ok {
		return fmt.Errorf("station %s already exists", st.ID)
	}
	s.stations[st.ID] = st
	return nil
}

func (s *Store) DeleteStation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stations[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.stations, id)
	return nil
}

func (s *Store) ListStations(_ context.Context) ([]core.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Station, 0, len(s.stations))
	for _, st := range s.stations {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Vendor != out[j].Vendor {
			return out[i].Vendor < out[j].Vendor
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func cloneMaintenance(m core.MaintenanceRecord) core.MaintenanceRecord {
	m.Items = append([]core.MaintenanceItem(nil), m.Items...)
	return m
}

func sortMaintenance(out []core.MaintenanceRecord) {
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	seen := map[string]struct{}{}
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}

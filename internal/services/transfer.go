package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"chargelog/internal/core"
	"chargelog/internal/csvio"
)

// Export is a rendered CSV file.
type Export struct {
	Name    string
	Content []byte
}

// ImportResult summarises a CSV import. Rejected rows are listed in
// Rejected; the accepted ones were stored.
type ImportResult struct {
	Policy   ImportPolicy     `json:"policy"`
	Imported int              `json:"imported"`
	Rejected []csvio.RowError `json:"-"`
}

// Errors renders the rejected rows for API responses.
func (r ImportResult) Errors() []string {
	out := make([]string, 0, len(r.Rejected))
	for _, e := range r.Rejected {
		out = append(out, e.Error())
	}
	return out
}

// ExportRecordsCSV renders every charging record, oldest first.
func (s *LogService) ExportRecordsCSV(ctx context.Context) (Export, error) {
	records, err := s.store.ListRecords(ctx)
	if err != nil {
		return Export{}, fmt.Errorf("list records: %w", err)
	}
	var buf bytes.Buffer
	if err := csvio.WriteRecords(&buf, s.locale, records); err != nil {
		return Export{}, fmt.Errorf("write records csv: %w", err)
	}
	return Export{Name: csvio.RecordsFileName(s.now()), Content: buf.Bytes()}, nil
}

// ExportMaintenanceCSV renders every maintenance record, newest first.
func (s *LogService) ExportMaintenanceCSV(ctx context.Context) (Export, error) {
	ms, err := s.store.ListMaintenance(ctx)
	if err != nil {
		return Export{}, fmt.Errorf("list maintenance: %w", err)
	}
	var buf bytes.Buffer
	if err := csvio.WriteMaintenance(&buf, s.locale, ms); err != nil {
		return Export{}, fmt.Errorf("write maintenance csv: %w", err)
	}
	return Export{Name: csvio.MaintenanceFileName(s.now()), Content: buf.Bytes()}, nil
}

// ImportRecordsCSV loads a charging export. Valid rows are stored in one
// unit according to policy; malformed rows are reported in the result.
// A file without a single valid row leaves the store untouched.
func (s *LogService) ImportRecordsCSV(ctx context.Context, r io.Reader, policy ImportPolicy) (ImportResult, error) {
	records, rejected, err := splitImport(csvio.ReadRecords(r))
	if err != nil {
		return ImportResult{}, err
	}
	res := ImportResult{Policy: policy, Imported: len(records), Rejected: rejected}
	if len(records) == 0 {
		return res, emptyImport(rejected)
	}
	if err := s.assignDefaultVehicle(ctx, records); err != nil {
		return ImportResult{}, err
	}

	switch policy {
	case PolicyReplace:
		err = s.store.ReplaceRecords(ctx, records)
	case PolicyAppend:
		err = s.store.AppendRecords(ctx, records)
	default:
		return ImportResult{}, invalid(fmt.Errorf("unknown import policy %q", policy))
	}
	if err != nil {
		return ImportResult{}, fmt.Errorf("import records: %w", err)
	}

	slog.InfoContext(ctx, "Charging records imported",
		"component", "csv", "policy", policy, "count", len(records), "rejected", len(rejected))
	s.changed(ctx, "records imported")
	return res, nil
}

// ImportMaintenanceCSV loads a maintenance export like ImportRecordsCSV.
func (s *LogService) ImportMaintenanceCSV(ctx context.Context, r io.Reader, policy ImportPolicy) (ImportResult, error) {
	ms, rejected, err := splitImport(csvio.ReadMaintenance(r))
	if err != nil {
		return ImportResult{}, err
	}
	res := ImportResult{Policy: policy, Imported: len(ms), Rejected: rejected}
	if len(ms) == 0 {
		return res, emptyImport(rejected)
	}

	defaultVehicle, err := s.store.DefaultVehicleID(ctx)
	if err != nil {
		return ImportResult{}, fmt.Errorf("default vehicle: %w", err)
	}
	for i := range ms {
		ms[i].VehicleID = defaultVehicle
	}

	switch policy {
	case PolicyReplace:
		err = s.store.ReplaceMaintenance(ctx, ms)
	case PolicyAppend:
		err = s.store.AppendMaintenance(ctx, ms)
	default:
		return ImportResult{}, invalid(fmt.Errorf("unknown import policy %q", policy))
	}
	if err != nil {
		return ImportResult{}, fmt.Errorf("import maintenance: %w", err)
	}

	slog.InfoContext(ctx, "Maintenance records imported",
		"component", "csv", "policy", policy, "count", len(ms), "rejected", len(rejected))
	s.changed(ctx, "maintenance imported")
	return res, nil
}

var errNothingToImport = errors.New("no valid rows to import")

func emptyImport(rejected []csvio.RowError) error {
	if len(rejected) == 0 {
		return invalid(errNothingToImport)
	}
	return invalid(&csvio.ImportError{Rows: rejected})
}

// splitImport separates row-level rejections from fatal read errors.
func splitImport[T any](rows []T, err error) ([]T, []csvio.RowError, error) {
	if err == nil {
		return rows, nil, nil
	}
	var ie *csvio.ImportError
	if errors.As(err, &ie) {
		return rows, ie.Rows, nil
	}
	return nil, nil, invalid(fmt.Errorf("read csv: %w", err))
}

// assignDefaultVehicle gives imported records the current default vehicle.
func (s *LogService) assignDefaultVehicle(ctx context.Context, records []core.ChargingRecord) error {
	id, err := s.store.DefaultVehicleID(ctx)
	if err != nil {
		return fmt.Errorf("default vehicle: %w", err)
	}
	for i := range records {
		if records[i].VehicleID == "" {
			records[i].VehicleID = id
		}
	}
	return nil
}

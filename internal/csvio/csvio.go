// Package csvio reads and writes charging and maintenance records as CSV
// files compatible with spreadsheet tools: UTF-8 with a byte order mark and
// a localized header row.
package csvio

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"chargelog/internal/core"
)

// Locale selects the language of the header row.
type Locale string

const (
	LocaleZhTW Locale = "zh-TW"
	LocaleEN   Locale = "en"
)

const bom = "\ufeff"

// Column counts of the two file kinds.
const (
	RecordColumns      = 16
	MaintenanceColumns = 8
)

var (
	recordHeaders = map[Locale][]string{
		LocaleZhTW: {"日期", "當前里程", "增加里程", "開始時間", "結束時間", "充電時長", "充電店家", "充電站",
			"充電規格", "電量", "單位", "每度電價", "每分鐘價格", "充電費用", "停車費用", "備註"},
		LocaleEN: {"date", "currentMileage", "increasedMileage", "startTime", "endTime", "duration", "vendor",
			"stationName", "specification", "power", "unit", "pricePerUnit", "pricePerMinute", "chargingFee",
			"parkingFee", "notes"},
	}
	maintenanceHeaders = map[Locale][]string{
		LocaleZhTW: {"日期", "里程", "維修類型", "維修地點", "維修費用", "維修內容", "下次保養里程", "備註"},
		LocaleEN:   {"date", "mileage", "type", "location", "cost", "description", "nextMaintenance", "notes"},
	}
)

// ParseLocale accepts "zh-TW" and "en" case-insensitively. Empty means zh-TW.
func ParseLocale(s string) (Locale, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "zh-tw", "zh_tw":
		return LocaleZhTW, nil
	case "en":
		return LocaleEN, nil
	}
	return "", fmt.Errorf("unknown csv locale %q", s)
}

func RecordHeader(l Locale) []string {
	if h, ok := recordHeaders[l]; ok {
		return h
	}
	return recordHeaders[LocaleZhTW]
}

func MaintenanceHeader(l Locale) []string {
	if h, ok := maintenanceHeaders[l]; ok {
		return h
	}
	return maintenanceHeaders[LocaleZhTW]
}

// RecordsFileName is the download name of a charging export made on day.
func RecordsFileName(day time.Time) string {
	return "charging-records_" + day.Format("2006-01-02") + ".csv"
}

// MaintenanceFileName is the download name of a maintenance export made on day.
func MaintenanceFileName(day time.Time) string {
	return "maintenance-records_" + day.Format("2006-01-02") + ".csv"
}

// RowError describes one row that could not be imported.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// ImportError is returned alongside the successfully parsed rows when some
// rows were rejected.
type ImportError struct {
	Rows []RowError
}

func (e *ImportError) Error() string {
	if len(e.Rows) == 1 {
		return "1 row rejected: " + e.Rows[0].Error()
	}
	msgs := make([]string, 0, len(e.Rows))
	for _, r := range e.Rows {
		msgs = append(msgs, r.Error())
	}
	return fmt.Sprintf("%d rows rejected: %s", len(e.Rows), strings.Join(msgs, "; "))
}

// ErrColumnCount is reported for rows with more fields than the format has.
var ErrColumnCount = errors.New("unexpected number of columns")

// WriteRecords writes the BOM, the header row and one row per record.
func WriteRecords(w io.Writer, l Locale, records []core.ChargingRecord) error {
	return write(w, RecordHeader(l), len(records), func(i int) []string {
		r := records[i]
		return []string{
			r.Date.String(),
			core.FormatDecimal(r.CurrentMileage, 2),
			core.FormatDecimal(r.IncreasedMileage, 2),
			r.StartTime.String(),
			r.EndTime.String(),
			strconv.Itoa(r.Duration),
			r.Vendor,
			r.StationName,
			string(r.Specification),
			core.FormatDecimal(r.Power, 3),
			r.Unit,
			core.FormatDecimal(r.PricePerUnit, 3),
			core.FormatDecimal(r.PricePerMinute, 3),
			core.FormatDecimal(r.ChargingFee, 2),
			core.FormatDecimal(r.ParkingFee, 2),
			r.Notes,
		}
	})
}

// WriteMaintenance writes the BOM, the header row and one row per record.
func WriteMaintenance(w io.Writer, l Locale, records []core.MaintenanceRecord) error {
	return write(w, MaintenanceHeader(l), len(records), func(i int) []string {
		m := records[i]
		next := ""
		if m.NextMaintenance > 0 {
			next = core.FormatDecimal(m.NextMaintenance, 2)
		}
		return []string{
			m.Date.String(),
			core.FormatDecimal(m.Mileage, 2),
			m.Type,
			m.Location,
			core.FormatDecimal(m.TotalCost, 2),
			m.Description,
			next,
			m.Notes,
		}
	})
}

func write(w io.Writer, header []string, n int, row func(i int) []string) error {
	if _, err := io.WriteString(w, bom); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := 0; i < n; i++ {
		if err := cw.Write(row(i)); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadRecords parses a charging export. The first row is the header and is
// skipped whatever its language. Every imported record gets a fresh ID.
// When some rows are malformed the valid ones are still returned together
// with an *ImportError.
func ReadRecords(r io.Reader) ([]core.ChargingRecord, error) {
	var out []core.ChargingRecord
	err := read(r, RecordColumns, func(f fields) error {
		rec, err := parseRecord(f)
		if err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// ReadMaintenance parses a maintenance export with the same rules as
// ReadRecords.
func ReadMaintenance(r io.Reader) ([]core.MaintenanceRecord, error) {
	var out []core.MaintenanceRecord
	err := read(r, MaintenanceColumns, func(f fields) error {
		m, err := parseMaintenance(f)
		if err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	return out, err
}

func read(r io.Reader, columns int, handle func(fields) error) error {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(bom)); err == nil && bytes.Equal(head, []byte(bom)) {
		_, _ = br.Discard(len(bom))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var rowErrs []RowError
	header := true
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				rowErrs = append(rowErrs, RowError{Line: perr.StartLine, Err: perr.Err})
				continue
			}
			return fmt.Errorf("read csv: %w", err)
		}
		if header {
			header = false
			continue
		}
		line, _ := cr.FieldPos(0)
		if blank(row) {
			continue
		}
		if len(row) > columns {
			rowErrs = append(rowErrs, RowError{Line: line, Err: fmt.Errorf("%w: got %d, want %d", ErrColumnCount, len(row), columns)})
			continue
		}
		if err := handle(fields(row)); err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Err: err})
		}
	}
	if len(rowErrs) > 0 {
		return &ImportError{Rows: rowErrs}
	}
	return nil
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// fields tolerates short rows: missing trailing columns read as empty.
type fields []string

func (f fields) at(i int) string {
	if i < len(f) {
		return strings.TrimSpace(f[i])
	}
	return ""
}

func (f fields) number(i int, name string) (float64, error) {
	v, err := core.ParseDecimal(f.at(i))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

func parseRecord(f fields) (core.ChargingRecord, error) {
	var (
		rec core.ChargingRecord
		err error
	)
	if rec.Date, err = core.ParseDate(f.at(0)); err != nil {
		return rec, err
	}
	if rec.CurrentMileage, err = f.number(1, "current mileage"); err != nil {
		return rec, err
	}
	if rec.IncreasedMileage, err = f.number(2, "increased mileage"); err != nil {
		return rec, err
	}
	if rec.StartTime, err = core.ParseTimeOfDay(f.at(3)); err != nil {
		return rec, fmt.Errorf("start time: %w", err)
	}
	if rec.EndTime, err = core.ParseTimeOfDay(f.at(4)); err != nil {
		return rec, fmt.Errorf("end time: %w", err)
	}
	duration, err := f.number(5, "duration")
	if err != nil {
		return rec, err
	}
	if !core.InRange(duration) {
		return rec, fmt.Errorf("duration: %w", core.ErrOutOfRange)
	}
	rec.Duration = int(duration)
	rec.Vendor = f.at(6)
	rec.StationName = f.at(7)
	if rec.Specification, err = core.ParseSpecification(f.at(8)); err != nil {
		return rec, err
	}
	if rec.Power, err = f.number(9, "power"); err != nil {
		return rec, err
	}
	rec.Unit = f.at(10)
	if rec.Unit == "" {
		rec.Unit = core.DefaultUnit
	}
	if rec.PricePerUnit, err = f.number(11, "price per unit"); err != nil {
		return rec, err
	}
	if rec.PricePerMinute, err = f.number(12, "price per minute"); err != nil {
		return rec, err
	}
	if rec.ChargingFee, err = f.number(13, "charging fee"); err != nil {
		return rec, err
	}
	if rec.ParkingFee, err = f.number(14, "parking fee"); err != nil {
		return rec, err
	}
	rec.Notes = f.at(15)
	if err := rec.ValidateValues(); err != nil {
		return rec, err
	}

	now := time.Now()
	rec.ID = core.NewID()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return rec, nil
}

func parseMaintenance(f fields) (core.MaintenanceRecord, error) {
	var (
		m   core.MaintenanceRecord
		err error
	)
	if m.Date, err = core.ParseDate(f.at(0)); err != nil {
		return m, err
	}
	if m.Mileage, err = f.number(1, "mileage"); err != nil {
		return m, err
	}
	m.Type = f.at(2)
	m.Location = f.at(3)
	if m.TotalCost, err = f.number(4, "cost"); err != nil {
		return m, err
	}
	m.TotalCost = core.Round2(m.TotalCost)
	m.Description = f.at(5)
	if m.NextMaintenance, err = f.number(6, "next maintenance"); err != nil {
		return m, err
	}
	m.Notes = f.at(7)
	if err := m.Validate(); err != nil {
		return m, err
	}
	m.ID = core.NewID()
	m.CreatedAt = time.Now()
	return m, nil
}

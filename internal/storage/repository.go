package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"chargelog/internal/core"
	"chargelog/internal/store"

	_ "modernc.org/sqlite"
)

const (
	settingDefaultVehicle = "default_vehicle_id"
	// fixed width so created_at sorts lexically
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

var _ store.Store = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// single writer keeps import transactions from hitting SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Charging records

const recordColumns = `id, vehicle_id, date, start_minutes, end_minutes, duration, vendor, station_name,
	specification, power, unit, price_per_unit, price_per_minute, charging_fee, parking_fee,
	current_mileage, increased_mileage, notes, created_at, updated_at`

func (r *SQLiteRepository) AddRecord(ctx context.Context, rec core.ChargingRecord) error {
	if err := insertRecord(ctx, r.db, rec); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Charging record saved to SQLite",
		"id", rec.ID,
		"date", rec.Date.String(),
		"station", rec.StationName,
		"fee", rec.ChargingFee)
	return nil
}

func insertRecord(ctx context.Context, ex execer, rec core.ChargingRecord) error {
	_, err := ex.ExecContext(ctx, `INSERT INTO charging_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.VehicleID, rec.Date.String(), nullMinutes(rec.StartTime), nullMinutes(rec.EndTime),
		rec.Duration, rec.Vendor, rec.StationName, string(rec.Specification), rec.Power, rec.Unit,
		rec.PricePerUnit, rec.PricePerMinute, rec.ChargingFee, rec.ParkingFee,
		rec.CurrentMileage, rec.IncreasedMileage, rec.Notes,
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert charging record %s: %w", rec.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateRecord(ctx context.Context, rec core.ChargingRecord) error {
	res, err := r.db.ExecContext(ctx, `UPDATE charging_records SET
		vehicle_id = ?, date = ?, start_minutes = ?, end_minutes = ?, duration = ?, vendor = ?,
		station_name = ?, specification = ?, power = ?, unit = ?, price_per_unit = ?,
		price_per_minute = ?, charging_fee = ?, parking_fee = ?, current_mileage = ?,
		increased_mileage = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		rec.VehicleID, rec.Date.String(), nullMinutes(rec.StartTime), nullMinutes(rec.EndTime),
		rec.Duration, rec.Vendor, rec.StationName, string(rec.Specification), rec.Power, rec.Unit,
		rec.PricePerUnit, rec.PricePerMinute, rec.ChargingFee, rec.ParkingFee,
		rec.CurrentMileage, rec.IncreasedMileage, rec.Notes, formatTime(rec.UpdatedAt), rec.ID)
	if err != nil {
		return fmt.Errorf("update charging record %s: %w", rec.ID, err)
	}
	return affectedOrNotFound(res)
}

func (r *SQLiteRepository) DeleteRecord(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM charging_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete charging record %s: %w", id, err)
	}
	if err := affectedOrNotFound(res); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Charging record deleted from SQLite", "id", id)
	return nil
}

func (r *SQLiteRepository) GetRecord(ctx context.Context, id string) (core.ChargingRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM charging_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ChargingRecord{}, store.ErrNotFound
	}
	return rec, err
}

func (r *SQLiteRepository) ListRecords(ctx context.Context) ([]core.ChargingRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM charging_records
		ORDER BY date ASC, COALESCE(start_minutes, 0) ASC, created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list charging records: %w", err)
	}
	defer rows.Close()

	var out []core.ChargingRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ReplaceRecords(ctx context.Context, records []core.ChargingRecord) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM charging_records`); err != nil {
			return fmt.Errorf("clear charging records: %w", err)
		}
		for _, rec := range records {
			if err := insertRecord(ctx, tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Charging records replaced", "count", len(records))
	return nil
}

func (r *SQLiteRepository) AppendRecords(ctx context.Context, records []core.ChargingRecord) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range records {
			if err := insertRecord(ctx, tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Charging records appended", "count", len(records))
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (core.ChargingRecord, error) {
	var (
		rec                  core.ChargingRecord
		date, spec           string
		start, end           sql.NullInt64
		createdAt, updatedAt string
	)
	err := s.Scan(&rec.ID, &rec.VehicleID, &date, &start, &end, &rec.Duration, &rec.Vendor,
		&rec.StationName, &spec, &rec.Power, &rec.Unit, &rec.PricePerUnit, &rec.PricePerMinute,
		&rec.ChargingFee, &rec.ParkingFee, &rec.CurrentMileage, &rec.IncreasedMileage, &rec.Notes,
		&createdAt, &updatedAt)
	if err != nil {
		return core.ChargingRecord{}, fmt.Errorf("scan charging record: %w", err)
	}
	rec.Date = parseStoredDate(date)
	rec.StartTime = minutesOf(start)
	rec.EndTime = minutesOf(end)
	rec.Specification = core.Specification(spec)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return rec, nil
}

// Vehicles

func (r *SQLiteRepository) AddVehicle(ctx context.Context, v core.Vehicle) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO vehicles (id, name, image_url, purchase_date, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		v.ID, v.Name, v.ImageURL, v.PurchaseDate.String(), formatTime(v.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert vehicle %s: %w", v.ID, err)
	}
	slog.InfoContext(ctx, "Vehicle saved to SQLite", "id", v.ID, "name", v.Name)
	return nil
}

func (r *SQLiteRepository) UpdateVehicle(ctx context.Context, v core.Vehicle) error {
	res, err := r.db.ExecContext(ctx, `UPDATE vehicles SET name = ?, image_url = ?, purchase_date = ? WHERE id = ?`,
		v.Name, v.ImageURL, v.PurchaseDate.String(), v.ID)
	if err != nil {
		return fmt.Errorf("update vehicle %s: %w", v.ID, err)
	}
	return affectedOrNotFound(res)
}

func (r *SQLiteRepository) DeleteVehicle(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM vehicles WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete vehicle %s: %w", id, err)
		}
		if err := affectedOrNotFound(res); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM settings WHERE key = ? AND value = ?`,
			settingDefaultVehicle, id); err != nil {
			return fmt.Errorf("clear default vehicle: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) GetVehicle(ctx context.Context, id string) (core.Vehicle, error) {
	row := r.db.QueryRowContext(ctx, `SELECT v.id, v.name, v.image_url, v.purchase_date, v.created_at,
		COALESCE(s.value = v.id, 0)
		FROM vehicles v LEFT JOIN settings s ON s.key = ?
		WHERE v.id = ?`, settingDefaultVehicle, id)
	v, err := scanVehicle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Vehicle{}, store.ErrNotFound
	}
	return v, err
}

func (r *SQLiteRepository) ListVehicles(ctx context.Context) ([]core.Vehicle, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT v.id, v.name, v.image_url, v.purchase_date, v.created_at,
		COALESCE(s.value = v.id, 0)
		FROM vehicles v LEFT JOIN settings s ON s.key = ?
		ORDER BY v.created_at ASC, v.name ASC`, settingDefaultVehicle)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var out []core.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanVehicle(s scanner) (core.Vehicle, error) {
	var (
		v                   core.Vehicle
		purchase, createdAt string
	)
	if err := s.Scan(&v.ID, &v.Name, &v.ImageURL, &purchase, &createdAt, &v.IsDefault); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Vehicle{}, err
		}
		return core.Vehicle{}, fmt.Errorf("scan vehicle: %w", err)
	}
	v.PurchaseDate = parseStoredDate(purchase)
	v.CreatedAt = parseTime(createdAt)
	return v, nil
}

func (r *SQLiteRepository) SetDefaultVehicle(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM vehicles WHERE id = ?`, id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check vehicle %s: %w", id, err)
		}
		if exists == 0 {
			return store.ErrNotFound
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, settingDefaultVehicle, id)
		if err != nil {
			return fmt.Errorf("set default vehicle: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) DefaultVehicleID(ctx context.Context) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, settingDefaultVehicle).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get default vehicle: %w", err)
	}
	return id, nil
}

// Maintenance

const maintenanceColumns = `id, vehicle_id, date, mileage, type, location, description, items,
	total_cost, next_maintenance, next_date, notes, created_at`

func (r *SQLiteRepository) AddMaintenance(ctx context.Context, m core.MaintenanceRecord) error {
	if err := insertMaintenance(ctx, r.db, m); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Maintenance record saved to SQLite", "id", m.ID, "type", m.Type, "total", m.TotalCost)
	return nil
}

func insertMaintenance(ctx context.Context, ex execer, m core.MaintenanceRecord) error {
	items, err := encodeItems(m.Items)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, `INSERT INTO maintenance_records (`+maintenanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.VehicleID, m.Date.String(), m.Mileage, m.Type, m.Location, m.Description, items,
		m.TotalCost, m.NextMaintenance, m.NextDate.String(), m.Notes, formatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert maintenance record %s: %w", m.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateMaintenance(ctx context.Context, m core.MaintenanceRecord) error {
	items, err := encodeItems(m.Items)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE maintenance_records SET
		vehicle_id = ?, date = ?, mileage = ?, type = ?, location = ?, description = ?, items = ?,
		total_cost = ?, next_maintenance = ?, next_date = ?, notes = ?
		WHERE id = ?`,
		m.VehicleID, m.Date.String(), m.Mileage, m.Type, m.Location, m.Description, items,
		m.TotalCost, m.NextMaintenance, m.NextDate.String(), m.Notes, m.ID)
	if err != nil {
		return fmt.Errorf("update maintenance record %s: %w", m.ID, err)
	}
	return affectedOrNotFound(res)
}

func (r *SQLiteRepository) DeleteMaintenance(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM maintenance_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete maintenance record %s: %w", id, err)
	}
	return affectedOrNotFound(res)
}

func (r *SQLiteRepository) GetMaintenance(ctx context.Context, id string) (core.MaintenanceRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+maintenanceColumns+` FROM maintenance_records WHERE id = ?`, id)
	m, err := scanMaintenance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MaintenanceRecord{}, store.ErrNotFound
	}
	return m, err
}

func (r *SQLiteRepository) ListMaintenance(ctx context.Context) ([]core.MaintenanceRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+maintenanceColumns+` FROM maintenance_records
		ORDER BY date DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list maintenance records: %w", err)
	}
	defer rows.Close()

	var out []core.MaintenanceRecord
	for rows.Next() {
		m, err := scanMaintenance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ReplaceMaintenance(ctx context.Context, records []core.MaintenanceRecord) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM maintenance_records`); err != nil {
			return fmt.Errorf("clear maintenance records: %w", err)
		}
		for _, m := range records {
			if err := insertMaintenance(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) AppendMaintenance(ctx context.Context, records []core.MaintenanceRecord) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		for _, m := range records {
			if err := insertMaintenance(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

func scanMaintenance(s scanner) (core.MaintenanceRecord, error) {
	var (
		m                          core.MaintenanceRecord
		date, items, next, created string
	)
	err := s.Scan(&m.ID, &m.VehicleID, &date, &m.Mileage, &m.Type, &m.Location, &m.Description,
		&items, &m.TotalCost, &m.NextMaintenance, &next, &m.Notes, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.MaintenanceRecord{}, err
		}
		return core.MaintenanceRecord{}, fmt.Errorf("scan maintenance record: %w", err)
	}
	if err := json.Unmarshal([]byte(items), &m.Items); err != nil {
		return core.MaintenanceRecord{}, fmt.Errorf("decode maintenance items for %s: %w", m.ID, err)
	}
	m.Date = parseStoredDate(date)
	m.NextDate = parseStoredDate(next)
	m.CreatedAt = parseTime(created)
	return m, nil
}

func encodeItems(items []core.MaintenanceItem) (string, error) {
	if items == nil {
		items = []core.MaintenanceItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode maintenance items: %w", err)
	}
	return string(b), nil
}

// Stations

func (r *SQLiteRepository) AddStation(ctx context.Context, st core.Station) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO stations (id, vendor, name, specification, price_per_unit)
		VALUES (?, ?, ?, ?, ?)`,
		st.ID, st.Vendor, st.Name, string(st.DefaultSpecification), st.DefaultPricePerUnit)
	if err != nil {
		return fmt.Errorf("insert station %s/%s: %w", st.Vendor, st.Name, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteStation(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM stations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete station %s: %w", id, err)
	}
	return affectedOrNotFound(res)
}

func (r *SQLiteRepository) ListStations(ctx context.Context) ([]core.Station, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, vendor, name, specification, price_per_unit
		FROM stations ORDER BY vendor ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	defer rows.Close()

	var out []core.Station
	for rows.Next() {
		var (
			st   core.Station
			spec string
		)
		if err := rows.Scan(&st.ID, &st.Vendor, &st.Name, &spec, &st.DefaultPricePerUnit); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		st.DefaultSpecification = core.Specification(spec)
		out = append(out, st)
	}
	return out, rows.Err()
}

// Column helpers

func nullMinutes(t core.TimeOfDay) sql.NullInt64 {
	if !t.Valid() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(t.Minutes()), Valid: true}
}

func minutesOf(n sql.NullInt64) core.TimeOfDay {
	if !n.Valid {
		return core.TimeOfDay{}
	}
	return core.NewTimeOfDay(0, int(n.Int64))
}

func parseStoredDate(s string) core.Date {
	if s == "" {
		return core.Date{}
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}
	}
	return d
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

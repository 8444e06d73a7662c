package core

import (
	"errors"
	"strings"
	"time"
)

// Connector and charging-speed types a session can be tagged with.
const (
	SpecNone  Specification = ""
	SpecJ1772 Specification = "J1772"
	SpecType2 Specification = "Type2"
	SpecTPC   Specification = "TPC"
	SpecCCS2  Specification = "CCS2"
	SpecCCS1  Specification = "CCS1"
)

// DefaultUnit is the energy unit label used when a record does not carry one.
const DefaultUnit = "kWh"

type (
	Specification string

	ChargingRecord struct {
		ID               string        `json:"id"`
		VehicleID        string        `json:"vehicleId,omitempty"`
		Date             Date          `json:"date"`
		StartTime        TimeOfDay     `json:"startTime"`
		EndTime          TimeOfDay     `json:"endTime"`
		Duration         int           `json:"duration"` // minutes
		Vendor           string        `json:"vendor"`
		StationName      string        `json:"stationName"`
		Specification    Specification `json:"specification"`
		Power            float64       `json:"power"` // kWh
		Unit             string        `json:"unit"`
		PricePerUnit     float64       `json:"pricePerUnit"`
		PricePerMinute   float64       `json:"pricePerMinute"`
		ChargingFee      float64       `json:"chargingFee"`
		ParkingFee       float64       `json:"parkingFee"`
		CurrentMileage   float64       `json:"currentMileage"`
		IncreasedMileage float64       `json:"increasedMileage"`
		Notes            string        `json:"notes,omitempty"`
		CreatedAt        time.Time     `json:"createdAt"`
		UpdatedAt        time.Time     `json:"updatedAt"`
	}

	Vehicle struct {
		ID           string    `json:"id"`
		Name         string    `json:"name"`
		ImageURL     string    `json:"imageUrl,omitempty"` // data URI
		PurchaseDate Date      `json:"purchaseDate"`
		IsDefault    bool      `json:"isDefault"` // computed from the default-vehicle setting
		CreatedAt    time.Time `json:"createdAt"`
	}

	MaintenanceItem struct {
		Name     string  `json:"name"`
		Quantity float64 `json:"quantity"`
		Price    float64 `json:"price"`
		Total    float64 `json:"total"`
	}

	MaintenanceRecord struct {
		ID              string            `json:"id"`
		VehicleID       string            `json:"vehicleId,omitempty"`
		Date            Date              `json:"date"`
		Mileage         float64           `json:"mileage"`
		Type            string            `json:"type"`
		Location        string            `json:"location"`
		Description     string            `json:"description"`
		Items           []MaintenanceItem `json:"items"`
		TotalCost       float64           `json:"totalCost"`
		NextMaintenance float64           `json:"nextMaintenance,omitempty"` // odometer threshold, 0 when unset
		NextDate        Date              `json:"nextDate"`
		Notes           string            `json:"notes,omitempty"`
		CreatedAt       time.Time         `json:"createdAt"`
	}

	Station struct {
		ID                   string        `json:"id"`
		Vendor               string        `json:"vendor"`
		Name                 string        `json:"name"`
		DefaultSpecification Specification `json:"specification"`
		DefaultPricePerUnit  float64       `json:"pricePerUnit,omitempty"`
	}

	// Stats summarises a set of charging records. It is never persisted.
	Stats struct {
		TotalCost     float64 `json:"totalCost"`
		TotalPower    float64 `json:"totalPower"`
		ChargingCount int     `json:"chargingCount"`
		AveragePrice  float64 `json:"averagePrice"`
	}
)

var (
	ErrMissingDate          = errors.New("missing date")
	ErrMissingStartTime     = errors.New("missing start time")
	ErrMissingEndTime       = errors.New("missing end time")
	ErrEmptyVendor          = errors.New("empty vendor")
	ErrEmptyStationName     = errors.New("empty station name")
	ErrInvalidSpecification = errors.New("invalid specification")
	ErrNegativePower        = errors.New("power cannot be negative")
	ErrNegativePrice        = errors.New("price cannot be negative")
	ErrNegativeFee          = errors.New("fee cannot be negative")
	ErrNegativeMileage      = errors.New("mileage cannot be negative")
	ErrNegativeDuration     = errors.New("duration cannot be negative")
	ErrEmptyVehicleName     = errors.New("empty vehicle name")
	ErrEmptyMaintenanceType = errors.New("empty maintenance type")
	ErrEmptyItemName        = errors.New("empty maintenance item name")
	ErrNegativeItemQuantity = errors.New("maintenance item quantity cannot be negative")
	ErrEmptyStationVendor   = errors.New("empty station vendor")
	ErrDuplicateVehicleName = errors.New("vehicle name already exists")
	ErrNotesTooLong         = errors.New("notes too long (max 500 characters)")
	ErrVehicleNameTooLong   = errors.New("vehicle name too long (max 100 characters)")
)

// Specifications lists the selectable connector types in display order.
func Specifications() []Specification {
	return []Specification{SpecJ1772, SpecType2, SpecTPC, SpecCCS2, SpecCCS1}
}

// Valid reports whether s is a known specification or empty.
func (s Specification) Valid() bool {
	switch s {
	case SpecNone, SpecJ1772, SpecType2, SpecTPC, SpecCCS2, SpecCCS1:
		return true
	}
	return false
}

// Label returns a human readable description of the connector.
func (s Specification) Label() string {
	switch s {
	case SpecJ1772:
		return "AC slow - J1772"
	case SpecType2:
		return "AC slow - Type 2"
	case SpecTPC:
		return "DC fast - TPC (NACS)"
	case SpecCCS2:
		return "DC fast - CCS2"
	case SpecCCS1:
		return "DC fast - CCS1"
	}
	return ""
}

// ParseSpecification accepts the canonical value case-insensitively, plus
// "Type 2" with a space as written on most station signage.
func ParseSpecification(s string) (Specification, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SpecNone, nil
	}
	norm := strings.ToUpper(strings.ReplaceAll(s, " ", ""))
	for _, spec := range Specifications() {
		if strings.ToUpper(string(spec)) == norm {
			return spec, nil
		}
	}
	return SpecNone, ErrInvalidSpecification
}

func (r ChargingRecord) Validate() error {
	if r.Date.IsZero() {
		return ErrMissingDate
	}
	if !r.StartTime.Valid() {
		return ErrMissingStartTime
	}
	if !r.EndTime.Valid() {
		return ErrMissingEndTime
	}
	if strings.TrimSpace(r.Vendor) == "" {
		return ErrEmptyVendor
	}
	if strings.TrimSpace(r.StationName) == "" {
		return ErrEmptyStationName
	}
	return r.ValidateValues()
}

// ValidateValues checks the numeric and enumerated fields of r. Rows from
// older exports may leave the time and station columns empty, so imports
// check only these.
func (r ChargingRecord) ValidateValues() error {
	if r.Date.IsZero() {
		return ErrMissingDate
	}
	if !r.Specification.Valid() {
		return ErrInvalidSpecification
	}
	for _, v := range []float64{r.Power, r.PricePerUnit, r.PricePerMinute, r.ChargingFee,
		r.ParkingFee, r.CurrentMileage, r.IncreasedMileage, float64(r.Duration)} {
		if !InRange(v) {
			return ErrOutOfRange
		}
	}
	if r.Duration < 0 {
		return ErrNegativeDuration
	}
	if r.Power < 0 {
		return ErrNegativePower
	}
	if r.PricePerUnit < 0 || r.PricePerMinute < 0 {
		return ErrNegativePrice
	}
	if r.ChargingFee < 0 || r.ParkingFee < 0 {
		return ErrNegativeFee
	}
	if r.CurrentMileage < 0 {
		return ErrNegativeMileage
	}
	if len(r.Notes) > 500 {
		return ErrNotesTooLong
	}
	return nil
}

// TotalFee is the amount paid for the session including parking.
func (r ChargingRecord) TotalFee() float64 {
	return r.ChargingFee + r.ParkingFee
}

// Before orders records chronologically by date, start time and creation.
func (r ChargingRecord) Before(o ChargingRecord) bool {
	if !r.Date.Equal(o.Date.Time) {
		return r.Date.Before(o.Date.Time)
	}
	if r.StartTime.Minutes() != o.StartTime.Minutes() {
		return r.StartTime.Minutes() < o.StartTime.Minutes()
	}
	return r.CreatedAt.Before(o.CreatedAt)
}

func (v Vehicle) Validate() error {
	name := strings.TrimSpace(v.Name)
	if name == "" {
		return ErrEmptyVehicleName
	}
	if len(name) > 100 {
		return ErrVehicleNameTooLong
	}
	return nil
}

func (i MaintenanceItem) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return ErrEmptyItemName
	}
	if !InRange(i.Quantity) || !InRange(i.Price) {
		return ErrOutOfRange
	}
	if i.Quantity < 0 {
		return ErrNegativeItemQuantity
	}
	if i.Price < 0 {
		return ErrNegativePrice
	}
	return nil
}

func (m MaintenanceRecord) Validate() error {
	if m.Date.IsZero() {
		return ErrMissingDate
	}
	if strings.TrimSpace(m.Type) == "" {
		return ErrEmptyMaintenanceType
	}
	if !InRange(m.Mileage) || !InRange(m.NextMaintenance) || !InRange(m.TotalCost) {
		return ErrOutOfRange
	}
	if m.Mileage < 0 || m.NextMaintenance < 0 {
		return ErrNegativeMileage
	}
	if m.TotalCost < 0 {
		return ErrNegativeFee
	}
	for _, item := range m.Items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	if len(m.Notes) > 500 {
		return ErrNotesTooLong
	}
	return nil
}

// WithTotals returns a copy with every line total and the record total
// recomputed from quantity and price. A record without items keeps the
// total cost it was given.
func (m MaintenanceRecord) WithTotals() MaintenanceRecord {
	if len(m.Items) == 0 {
		m.TotalCost = Round2(m.TotalCost)
		return m
	}
	items := make([]MaintenanceItem, len(m.Items))
	sum := 0.0
	for i, item := range m.Items {
		item.Total = Mul2(item.Quantity, item.Price)
		sum += item.Total
		items[i] = item
	}
	m.Items = items
	m.TotalCost = Round2(sum)
	return m
}

func (s Station) Validate() error {
	if strings.TrimSpace(s.Vendor) == "" {
		return ErrEmptyStationVendor
	}
	if !s.DefaultSpecification.Valid() {
		return ErrInvalidSpecification
	}
	if !InRange(s.DefaultPricePerUnit) {
		return ErrOutOfRange
	}
	if s.DefaultPricePerUnit < 0 {
		return ErrNegativePrice
	}
	return nil
}

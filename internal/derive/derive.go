// Package derive computes the dependent fields of a charging session from
// what the user typed in. Every function here is pure: nothing reads or
// writes the record store, so the same functions back the live form preview
// and the final values persisted on submit.
package derive

import (
	"chargelog/internal/core"
)

const minutesPerDay = 24 * 60

// Warning flags suspicious input that is still accepted.
type Warning string

const (
	// WarnNegativeMileage is raised when the odometer reading is lower than
	// the previous session's. The negative delta is kept as entered.
	WarnNegativeMileage Warning = "negative_mileage"
	// WarnFeeNotDerived is raised when neither rate basis is usable and the
	// fee is left for manual entry.
	WarnFeeNotDerived Warning = "fee_not_derived"
)

// Input is the partial session as composed in a form.
type Input struct {
	StartTime       core.TimeOfDay `json:"startTime"`
	EndTime         core.TimeOfDay `json:"endTime"`
	Duration        int            `json:"duration"` // used when the times are incomplete
	Power           float64        `json:"power"`
	PricePerUnit    float64        `json:"pricePerUnit"`
	PricePerMinute  float64        `json:"pricePerMinute"`
	ChargingFee     float64        `json:"chargingFee"` // manual fee, kept when no rate applies
	CurrentMileage  float64        `json:"currentMileage"`
	PreviousMileage float64        `json:"previousMileage"`
}

// Result holds every derived field. Optional values are nil when undefined.
type Result struct {
	Duration        int       `json:"duration"`
	ChargingFee     float64   `json:"chargingFee"`
	FeeDerived      bool      `json:"feeDerived"`
	AveragePrice    *float64  `json:"averagePrice"`
	MileageDelta    float64   `json:"increasedMileage"`
	CostPerDistance *float64  `json:"costPerDistance"`
	Warnings        []Warning `json:"warnings,omitempty"`
}

// Duration returns the session length in minutes. An end time earlier than
// the start time is read as falling on the next day; equal times are 0.
func Duration(start, end core.TimeOfDay) int {
	d := end.Minutes() - start.Minutes()
	if d < 0 {
		d += minutesPerDay
	}
	return d
}

// Fee prefers the per-unit rate and falls back to the per-minute rate. The
// second return value is false when neither basis is complete, in which case
// the fee is left for manual entry.
func Fee(power, pricePerUnit float64, duration int, pricePerMinute float64) (float64, bool) {
	if power > 0 && pricePerUnit > 0 {
		return core.Mul2(power, pricePerUnit), true
	}
	if duration > 0 && pricePerMinute > 0 {
		return core.Mul2(float64(duration), pricePerMinute), true
	}
	return 0, false
}

// AveragePrice is fee per kWh rounded to 3 decimals, defined for power > 0.
func AveragePrice(fee, power float64) (float64, bool) {
	if power <= 0 {
		return 0, false
	}
	return core.Div(fee, power, 3), true
}

// MileageDelta is not clamped: a lower odometer reading yields a negative delta.
func MileageDelta(current, previous float64) float64 {
	return core.Sum(2, current, -previous)
}

// CostPerDistance is fee per unit of distance, defined for delta > 0.
func CostPerDistance(fee, delta float64) (float64, bool) {
	if delta <= 0 {
		return 0, false
	}
	return core.Div(fee, delta, 2), true
}

// All runs every derivation over in.
func All(in Input) Result {
	var res Result

	res.Duration = in.Duration
	if in.StartTime.Valid() && in.EndTime.Valid() {
		res.Duration = Duration(in.StartTime, in.EndTime)
	}
	if res.Duration < 0 {
		res.Duration = 0
	}

	if fee, ok := Fee(in.Power, in.PricePerUnit, res.Duration, in.PricePerMinute); ok {
		res.ChargingFee = fee
		res.FeeDerived = true
	} else {
		res.ChargingFee = core.Round2(in.ChargingFee)
		res.Warnings = append(res.Warnings, WarnFeeNotDerived)
	}

	if avg, ok := AveragePrice(res.ChargingFee, in.Power); ok {
		res.AveragePrice = &avg
	}

	if in.CurrentMileage > 0 {
		res.MileageDelta = MileageDelta(in.CurrentMileage, in.PreviousMileage)
		if res.MileageDelta < 0 {
			res.Warnings = append(res.Warnings, WarnNegativeMileage)
		}
	}

	if cpd, ok := CostPerDistance(res.ChargingFee, res.MileageDelta); ok {
		res.CostPerDistance = &cpd
	}

	return res
}

// HasWarning reports whether w was raised.
func (r Result) HasWarning(w Warning) bool {
	for _, got := range r.Warnings {
		if got == w {
			return true
		}
	}
	return false
}

// InputFrom builds the derivation input for rec, with previous being the
// odometer reading of the session that precedes it.
func InputFrom(rec core.ChargingRecord, previous float64) Input {
	return Input{
		StartTime:       rec.StartTime,
		EndTime:         rec.EndTime,
		Duration:        rec.Duration,
		Power:           rec.Power,
		PricePerUnit:    rec.PricePerUnit,
		PricePerMinute:  rec.PricePerMinute,
		ChargingFee:     rec.ChargingFee,
		CurrentMileage:  rec.CurrentMileage,
		PreviousMileage: previous,
	}
}

// Apply returns rec with its derived fields filled in.
func Apply(rec core.ChargingRecord, previous float64) (core.ChargingRecord, Result) {
	res := All(InputFrom(rec, previous))
	rec.Duration = res.Duration
	rec.ChargingFee = res.ChargingFee
	rec.IncreasedMileage = res.MileageDelta
	rec.ParkingFee = core.Round2(rec.ParkingFee)
	if rec.Unit == "" {
		rec.Unit = core.DefaultUnit
	}
	return rec, res
}

// Package stats summarises charging records. Every function is a pure fold
// over its input and never mutates the records it is given.
package stats

import (
	"sort"
	"strings"

	"chargelog/internal/core"
)

// Aggregate computes totals for the records dated in month (YYYY-MM). An
// empty month includes every record. Missing numbers count as zero.
func Aggregate(records []core.ChargingRecord, month string) core.Stats {
	var (
		costs []float64
		power float64
		count int
	)
	for _, r := range records {
		if !inMonth(r, month) {
			continue
		}
		costs = append(costs, orZero(r.ChargingFee), orZero(r.ParkingFee))
		power += orZero(r.Power)
		count++
	}
	if count == 0 {
		return core.Stats{}
	}

	st := core.Stats{
		TotalCost:     core.Sum(2, costs...),
		TotalPower:    power,
		ChargingCount: count,
	}
	if st.TotalPower > 0 {
		st.AveragePrice = core.Div(st.TotalCost, st.TotalPower, 3)
	}
	return st
}

// Lifetime is Aggregate over every record.
func Lifetime(records []core.ChargingRecord) core.Stats {
	return Aggregate(records, "")
}

// Filter returns the records dated in month, preserving order.
func Filter(records []core.ChargingRecord, month string) []core.ChargingRecord {
	out := make([]core.ChargingRecord, 0, len(records))
	for _, r := range records {
		if inMonth(r, month) {
			out = append(out, r)
		}
	}
	return out
}

// Months lists the distinct months present in records, newest first.
func Months(records []core.ChargingRecord) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		key := r.Date.MonthKey()
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}

func inMonth(r core.ChargingRecord, month string) bool {
	if month == "" {
		return true
	}
	return r.Date.MonthKey() == month
}

// orZero treats NaN and ±Inf as missing values.
func orZero(v float64) float64 {
	if !core.Finite(v) {
		return 0
	}
	return v
}

// DayPoint is one day of the cost and power series.
type DayPoint struct {
	Date  string  `json:"date"`
	Cost  float64 `json:"cost"`
	Power float64 `json:"power"`
	Count int     `json:"count"`
}

// Daily groups records per calendar day, oldest first.
func Daily(records []core.ChargingRecord, month string) []DayPoint {
	byDay := make(map[string]*DayPoint)
	costs := make(map[string][]float64)
	for _, r := range records {
		if !inMonth(r, month) || r.Date.IsZero() {
			continue
		}
		key := r.Date.String()
		p, ok := byDay[key]
		if !ok {
			p = &DayPoint{Date: key}
			byDay[key] = p
		}
		costs[key] = append(costs[key], orZero(r.ChargingFee), orZero(r.ParkingFee))
		p.Power += orZero(r.Power)
		p.Count++
	}

	out := make([]DayPoint, 0, len(byDay))
	for key, p := range byDay {
		p.Cost = core.Sum(2, costs[key]...)
		p.Power = core.Round3(p.Power)
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Bucket counts sessions whose duration falls in [Min, Max) minutes. Max 0
// means unbounded.
type Bucket struct {
	Label string `json:"label"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
	Count int    `json:"count"`
}

// DurationBuckets splits sessions into 0-30 min, 30-60 min, 1-2 h and over 2 h.
func DurationBuckets(records []core.ChargingRecord, month string) []Bucket {
	buckets := []Bucket{
		{Label: "0-30 min", Min: 0, Max: 30},
		{Label: "30-60 min", Min: 30, Max: 60},
		{Label: "1-2 h", Min: 60, Max: 120},
		{Label: "> 2 h", Min: 120},
	}
	for _, r := range records {
		if !inMonth(r, month) {
			continue
		}
		for i := range buckets {
			b := &buckets[i]
			if r.Duration >= b.Min && (b.Max == 0 || r.Duration < b.Max) {
				b.Count++
				break
			}
		}
	}
	return buckets
}

// StationCount is the number of sessions at one station.
type StationCount struct {
	Station string  `json:"station"`
	Vendor  string  `json:"vendor"`
	Count   int     `json:"count"`
	Cost    float64 `json:"cost"`
}

// TopStations returns the n most used stations. Ties are broken by name.
func TopStations(records []core.ChargingRecord, month string, n int) []StationCount {
	byName := make(map[string]*StationCount)
	costs := make(map[string][]float64)
	for _, r := range records {
		name := strings.TrimSpace(r.StationName)
		if !inMonth(r, month) || name == "" {
			continue
		}
		sc, ok := byName[name]
		if !ok {
			sc = &StationCount{Station: name, Vendor: r.Vendor}
			byName[name] = sc
		}
		sc.Count++
		costs[name] = append(costs[name], orZero(r.ChargingFee), orZero(r.ParkingFee))
	}

	out := make([]StationCount, 0, len(byName))
	for name, sc := range byName {
		sc.Cost = core.Sum(2, costs[name]...)
		out = append(out, *sc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Station < out[j].Station
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Report bundles everything the statistics page shows for one month.
type Report struct {
	Month    string         `json:"month"`
	Summary  core.Stats     `json:"summary"`
	Lifetime core.Stats     `json:"lifetime"`
	Daily    []DayPoint     `json:"daily"`
	Duration []Bucket       `json:"duration"`
	Stations []StationCount `json:"topStations"`
}

// BuildReport assembles a Report with the top five stations.
func BuildReport(records []core.ChargingRecord, month string) Report {
	return Report{
		Month:    month,
		Summary:  Aggregate(records, month),
		Lifetime: Lifetime(records),
		Daily:    Daily(records, month),
		Duration: DurationBuckets(records, month),
		Stations: TopStations(records, month, 5),
	}
}

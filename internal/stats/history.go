package stats

import (
	"sort"
	"strings"

	"chargelog/internal/core"
)

// DefaultPageSize matches the history list of the mobile view.
const DefaultPageSize = 10

// Query selects a page of the charging history.
type Query struct {
	Month     string // YYYY-MM, empty for all
	Year      int    // 0 for all; ignored when Month is set
	Keyword   string // matched against station, vendor and notes
	VehicleID string
	Page      int // 1-based
	PageSize  int
}

// Page is one page of history, newest first.
type Page struct {
	Records    []core.ChargingRecord `json:"records"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"pageSize"`
	Total      int                   `json:"total"`
	TotalPages int                   `json:"totalPages"`
	PagePower  float64               `json:"pagePower"`
	PageCost   float64               `json:"pageCost"`
	Summary    core.Stats            `json:"summary"` // over every matching record
}

// Matches reports whether r satisfies the filters of q.
func (q Query) Matches(r core.ChargingRecord) bool {
	if q.Month != "" {
		if r.Date.MonthKey() != q.Month {
			return false
		}
	} else if q.Year != 0 && (r.Date.IsZero() || r.Date.Year() != q.Year) {
		return false
	}
	if q.VehicleID != "" && r.VehicleID != q.VehicleID {
		return false
	}
	kw := strings.ToLower(strings.TrimSpace(q.Keyword))
	if kw == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.StationName), kw) ||
		strings.Contains(strings.ToLower(r.Vendor), kw) ||
		strings.Contains(strings.ToLower(r.Notes), kw)
}

// History filters, sorts newest first and paginates records. Out of range
// pages are clamped to the nearest valid page.
func History(records []core.ChargingRecord, q Query) Page {
	size := q.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}

	matched := make([]core.ChargingRecord, 0, len(records))
	for _, r := range records {
		if q.Matches(r) {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[j].Before(matched[i]) })

	totalPages := (len(matched) + size - 1) / size
	page := q.Page
	if page < 1 {
		page = 1
	}
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}

	start := (page - 1) * size
	end := start + size
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}
	slice := matched[start:end]

	pageStats := Lifetime(slice)
	return Page{
		Records:    slice,
		Page:       page,
		PageSize:   size,
		Total:      len(matched),
		TotalPages: totalPages,
		PagePower:  core.Round3(pageStats.TotalPower),
		PageCost:   pageStats.TotalCost,
		Summary:    Lifetime(matched),
	}
}

// Previous returns the record that chronologically precedes rec among
// records of the same vehicle, skipping rec itself. ok is false when rec
// is the first session.
func Previous(records []core.ChargingRecord, rec core.ChargingRecord) (core.ChargingRecord, bool) {
	var (
		best  core.ChargingRecord
		found bool
	)
	for _, r := range records {
		if r.ID == rec.ID || r.VehicleID != rec.VehicleID {
			continue
		}
		if !r.Before(rec) {
			continue
		}
		if !found || best.Before(r) {
			best = r
			found = true
		}
	}
	return best, found
}

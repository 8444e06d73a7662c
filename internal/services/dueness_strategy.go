// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for maintenance dueness. Each
// kind of reminder (odometer threshold, calendar date) has its own checker.

package services

import (
	"fmt"
	"time"

	"chargelog/internal/core"
)

// DueKind names what made a maintenance record come due.
type DueKind string

const (
	DueByMileage DueKind = "mileage"
	DueByDate    DueKind = "date"
)

// Reading is the state a maintenance record is checked against.
type Reading struct {
	// Odometer is the latest known odometer reading of the vehicle.
	Odometer float64
	Now      time.Time
}

// DuenessChecker is the strategy interface for maintenance reminders.
type DuenessChecker interface {
	// IsDue reports whether m needs attention given the latest reading.
	IsDue(m core.MaintenanceRecord, r Reading) bool
}

// MileageChecker is due once the odometer is within Window of the next
// service mileage.
type MileageChecker struct {
	Window float64
}

func (c MileageChecker) IsDue(m core.MaintenanceRecord, r Reading) bool {
	if m.NextMaintenance <= 0 || r.Odometer <= 0 {
		return false
	}
	return r.Odometer >= m.NextMaintenance-c.Window
}

// DateChecker is due from WindowDays before the next service date.
type DateChecker struct {
	WindowDays int
}

func (c DateChecker) IsDue(m core.MaintenanceRecord, r Reading) bool {
	if m.NextDate.IsZero() {
		return false
	}
	today := core.DateOf(r.Now)
	return !today.Before(m.NextDate.AddDate(0, 0, -c.WindowDays))
}

// duenessStrategies maps reminder kinds to their checkers.
var duenessStrategies = map[DueKind]DuenessChecker{
	DueByMileage: MileageChecker{Window: 500},
	DueByDate:    DateChecker{WindowDays: 14},
}

// dueKinds fixes the evaluation order so results are stable.
var dueKinds = []DueKind{DueByMileage, DueByDate}

// GetDuenessChecker returns the checker for a reminder kind.
func GetDuenessChecker(kind DueKind) (DuenessChecker, error) {
	checker, ok := duenessStrategies[kind]
	if !ok {
		return nil, fmt.Errorf("unknown due kind: %s", kind)
	}
	return checker, nil
}

// DueItem is a maintenance record that came due, with the reasons.
type DueItem struct {
	Record core.MaintenanceRecord `json:"record"`
	Kinds  []DueKind              `json:"kinds"`
	// RemainingDistance is negative once the threshold has been passed.
	RemainingDistance *float64 `json:"remainingDistance,omitempty"`
	// DaysLeft is negative once the date has passed.
	DaysLeft *int `json:"daysLeft,omitempty"`
}

func checkDue(m core.MaintenanceRecord, r Reading) (DueItem, bool) {
	item := DueItem{Record: m}
	for _, kind := range dueKinds {
		checker, err := GetDuenessChecker(kind)
		if err != nil {
			continue
		}
		if checker.IsDue(m, r) {
			item.Kinds = append(item.Kinds, kind)
		}
	}
	if len(item.Kinds) == 0 {
		return DueItem{}, false
	}
	if m.NextMaintenance > 0 && r.Odometer > 0 {
		left := core.Round2(m.NextMaintenance - r.Odometer)
		item.RemainingDistance = &left
	}
	if !m.NextDate.IsZero() {
		days := int(m.NextDate.Sub(core.DateOf(r.Now).Time).Hours() / 24)
		item.DaysLeft = &days
	}
	return item, true
}

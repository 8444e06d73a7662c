package services

import (
	"testing"
	"time"

	"chargelog/internal/core"
)

func TestMileageChecker_IsDue(t *testing.T) {
	checker := MileageChecker{Window: 500}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		next     float64
		odometer float64
		want     bool
	}{
		{name: "no threshold - not due", next: 0, odometer: 50000, want: false},
		{name: "no odometer reading - not due", next: 40000, odometer: 0, want: false},
		{name: "far from threshold - not due", next: 40000, odometer: 30000, want: false},
		{name: "inside window - is due", next: 40000, odometer: 39600, want: true},
		{name: "exactly at window edge - is due", next: 40000, odometer: 39500, want: true},
		{name: "past threshold - is due", next: 40000, odometer: 41000, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := core.MaintenanceRecord{NextMaintenance: tt.next}
			got := checker.IsDue(m, Reading{Odometer: tt.odometer, Now: now})
			if got != tt.want {
				t.Errorf("MileageChecker.IsDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDateChecker_IsDue(t *testing.T) {
	checker := DateChecker{WindowDays: 14}
	now := time.Date(2024, 6, 1, 23, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		next core.Date
		want bool
	}{
		{name: "no date - not due", next: core.Date{}, want: false},
		{name: "a month away - not due", next: core.NewDate(2024, 7, 1), want: false},
		{name: "15 days away - not due", next: core.NewDate(2024, 6, 16), want: false},
		{name: "14 days away - is due", next: core.NewDate(2024, 6, 15), want: true},
		{name: "today - is due", next: core.NewDate(2024, 6, 1), want: true},
		{name: "overdue - is due", next: core.NewDate(2024, 1, 1), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := core.MaintenanceRecord{NextDate: tt.next}
			got := checker.IsDue(m, Reading{Now: now})
			if got != tt.want {
				t.Errorf("DateChecker.IsDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckDue(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	m := core.MaintenanceRecord{NextMaintenance: 40000, NextDate: core.NewDate(2024, 5, 30)}

	item, ok := checkDue(m, Reading{Odometer: 40100, Now: now})
	if !ok {
		t.Fatalf("expected record to be due")
	}
	if len(item.Kinds) != 2 || item.Kinds[0] != DueByMileage || item.Kinds[1] != DueByDate {
		t.Errorf("unexpected kinds: %v", item.Kinds)
	}
	if item.RemainingDistance == nil || *item.RemainingDistance != -100 {
		t.Errorf("unexpected remaining distance: %v", item.RemainingDistance)
	}
	if item.DaysLeft == nil || *item.DaysLeft != -2 {
		t.Errorf("unexpected days left: %v", item.DaysLeft)
	}

	if _, ok := checkDue(core.MaintenanceRecord{}, Reading{Odometer: 1, Now: now}); ok {
		t.Errorf("record without reminders must never be due")
	}
}

func TestGetDuenessChecker(t *testing.T) {
	tests := []struct {
		kind    DueKind
		wantErr bool
	}{
		{DueByMileage, false},
		{DueByDate, false},
		{DueKind("weather"), true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			_, err := GetDuenessChecker(tt.kind)
			if (err != nil) != tt.wantErr {
				t.Errorf("GetDuenessChecker() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

var (
	ErrInvalidDate = errors.New("invalid date")
	ErrInvalidTime = errors.New("invalid time of day")
)

type (
	// Date is a calendar day at UTC midnight.
	Date struct {
		time.Time
	}

	// TimeOfDay is a wall-clock time with minute precision. The zero value
	// means "not set".
	TimeOfDay struct {
		minutes int
		set     bool
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// Today returns the current calendar day in local time.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate accepts YYYY-MM-DD, YYYY/MM/DD and RFC 3339 timestamps.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrInvalidDate
	}
	for _, layout := range []string{dateLayout, "2006/01/02", "2006/1/2", "2006-1-2"} {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t), nil
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// MonthKey normalises the date to YYYY-MM.
func (d Date) MonthKey() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(monthLayout)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// NormalizeMonth turns YYYY-MM, YYYY-M or YYYY/MM into YYYY-MM. An empty
// string stays empty and means "no filter".
func NormalizeMonth(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	s = strings.ReplaceAll(s, "/", "-")
	parts := strings.Split(s, "-")
	if len(parts) < 2 {
		return "", fmt.Errorf("invalid month %q", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil || year < 1 {
		return "", fmt.Errorf("invalid month %q", s)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return "", fmt.Errorf("invalid month %q", s)
	}
	return fmt.Sprintf("%04d-%02d", year, month), nil
}

// NewTimeOfDay builds a time from hour and minute, wrapping at midnight.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	m := ((hour*60+minute)%1440 + 1440) % 1440
	return TimeOfDay{minutes: m, set: true}
}

// ParseTimeOfDay accepts HH:mm, HH:mm:ss and full RFC 3339 timestamps,
// which is how older exports stored session times.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TimeOfDay{}, nil
	}
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTimeOfDay(t.Hour(), t.Minute()), nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.Local()
		return NewTimeOfDay(t.Hour(), t.Minute()), nil
	}
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTimeOfDay(t.Hour(), t.Minute()), nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
}

// Valid reports whether the time was set.
func (t TimeOfDay) Valid() bool {
	return t.set
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.minutes
}

// String renders HH:mm, or an empty string when unset.
func (t TimeOfDay) String() string {
	if !t.set {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", t.minutes/60, t.minutes%60)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

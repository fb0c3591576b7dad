package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// MinutesPerDay is also the largest valid TimeOfDay, used as an exclusive
// end bound ("24:00").
const MinutesPerDay = 24 * 60

// TimeOfDay is a wall-clock time expressed as minutes after midnight.
type TimeOfDay int

var errTimeFormat = errors.New("time must be HH:MM")

// ParseTimeOfDay accepts "H:MM", "HH:MM" and "HH:MM:SS" with zero seconds.
// "24:00" parses to MinutesPerDay so it can be used as an end bound.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) == 3 {
		if parts[2] != "00" {
			return 0, errTimeFormat
		}
		parts = parts[:2]
	}
	if len(parts) != 2 || len(parts[0]) < 1 || len(parts[0]) > 2 || len(parts[1]) != 2 {
		return 0, errTimeFormat
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, errTimeFormat
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, errTimeFormat
	}
	if h == 24 && m == 0 {
		return MinutesPerDay, nil
	}
	if h < 0 || h > 23 {
		return 0, errTimeFormat
	}
	return TimeOfDay(h*60 + m), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) Minutes() int { return int(t) }

// Valid reports whether t is a start-able time of day (00:00..23:59).
func (t TimeOfDay) Valid() bool { return t >= 0 && t < MinutesPerDay }

// Aligned reports whether t sits on a boundary of the given granularity.
func (t TimeOfDay) Aligned(granularity time.Duration) bool {
	step := int(granularity / time.Minute)
	return step > 0 && int(t)%step == 0
}

// ParseDate parses a YYYY-MM-DD calendar date into UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, errors.New("date must be YYYY-MM-DD")
	}
	return d, nil
}

// DateOf truncates t to its calendar date in t's location, returned as UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// At combines a calendar date and a time of day in loc.
func At(date time.Time, t TimeOfDay, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, int(t)/60, int(t)%60, 0, 0, loc)
}

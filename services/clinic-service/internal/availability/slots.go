package availability

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

// DefaultGranularity is the spacing between bookable ticks.
const DefaultGranularity = 20 * time.Minute

// Policy holds the clinic-wide knobs that shape the slot grid.
type Policy struct {
	Granularity time.Duration
	// DayStart and DayEnd clamp every schedule entry. A zero DayEnd means
	// end of day.
	DayStart model.TimeOfDay
	DayEnd   model.TimeOfDay
	Location *time.Location
	// HidePast drops ticks that already started when now is known.
	HidePast bool
}

func (p Policy) step() int {
	g := p.Granularity
	if g <= 0 {
		g = DefaultGranularity
	}
	return int(g / time.Minute)
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Day is everything the calculator needs to know about one calendar date.
type Day struct {
	Date     time.Time
	Closed   bool
	Schedule *model.WorkScheduleEntry
	Blocked  []model.UnavailableTimeRange
	Booked   []model.TimeOfDay
}

// Compute returns the free ticks of day in ascending order. It is a pure
// function of its arguments; a zero now disables the past-slot filter.
//
// Ticks start at the first granularity boundary at or after the schedule
// start and stop before its end. Blocked ranges are half-open.
func Compute(day Day, p Policy, now time.Time) []model.TimeOfDay {
	if day.Closed || day.Schedule == nil || !day.Schedule.Active {
		return []model.TimeOfDay{}
	}

	start, end := day.Schedule.Start, day.Schedule.End
	if p.DayStart > start {
		start = p.DayStart
	}
	if p.DayEnd > 0 && p.DayEnd < end {
		end = p.DayEnd
	}
	if end > model.MinutesPerDay {
		end = model.MinutesPerDay
	}
	step := p.step()
	if rem := int(start) % step; rem != 0 {
		start += model.TimeOfDay(step - rem)
	}

	booked := make(map[model.TimeOfDay]struct{}, len(day.Booked))
	for _, b := range day.Booked {
		booked[b] = struct{}{}
	}

	slots := []model.TimeOfDay{}
	for t := start; t < end; t += model.TimeOfDay(step) {
		if blockedAt(t, day.Blocked) {
			continue
		}
		if _, taken := booked[t]; taken {
			continue
		}
		if p.HidePast && !now.IsZero() && model.At(day.Date, t, p.location()).Before(now) {
			continue
		}
		slots = append(slots, t)
	}
	return slots
}

func blockedAt(t model.TimeOfDay, ranges []model.UnavailableTimeRange) bool {
	for _, r := range ranges {
		if r.Contains(t) {
			return true
		}
	}
	return false
}

// Contains reports whether t is in the ascending slot list.
func Contains(slots []model.TimeOfDay, t model.TimeOfDay) bool {
	i := sort.Search(len(slots), func(i int) bool { return slots[i] >= t })
	return i < len(slots) && slots[i] == t
}

// Strings renders slots as "HH:MM".
func Strings(slots []model.TimeOfDay) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.String()
	}
	return out
}

package availability

import (
	"slices"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

var monday = time.Date(2030, 6, 3, 0, 0, 0, 0, time.UTC)

func nineToFive() *model.WorkScheduleEntry {
	return &model.WorkScheduleEntry{
		ProviderID: "default",
		DayOfWeek:  time.Monday,
		Start:      9 * 60,
		End:        17 * 60,
		Active:     true,
	}
}

func TestCompute_NineToFive(t *testing.T) {
	slots := Compute(Day{Date: monday, Schedule: nineToFive()}, Policy{Granularity: 20 * time.Minute}, time.Time{})
	if len(slots) != 24 {
		t.Fatalf("expected 24 slots, got %d: %v", len(slots), Strings(slots))
	}
	if slots[0].String() != "09:00" || slots[len(slots)-1].String() != "16:40" {
		t.Fatalf("unexpected bounds %s..%s", slots[0], slots[len(slots)-1])
	}
	if Contains(slots, 17*60) {
		t.Fatal("17:00 must not be offered")
	}
	for i, s := range slots {
		if s%20 != 0 {
			t.Fatalf("slot %s not aligned", s)
		}
		if i > 0 && slots[i-1] >= s {
			t.Fatalf("slots not strictly ascending at %d", i)
		}
	}
}

func TestCompute_EightToSix(t *testing.T) {
	entry := nineToFive()
	entry.Start, entry.End = 8*60, 18*60
	slots := Compute(Day{Date: monday, Schedule: entry}, Policy{}, time.Time{})
	if len(slots) != 30 || slots[0].String() != "08:00" || slots[29].String() != "17:40" {
		t.Fatalf("unexpected slots %v", Strings(slots))
	}
}

func TestCompute_EmptyWhenClosedOrUnscheduled(t *testing.T) {
	if got := Compute(Day{Date: monday}, Policy{}, time.Time{}); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice without schedule, got %#v", got)
	}
	if got := Compute(Day{Date: monday, Closed: true, Schedule: nineToFive()}, Policy{}, time.Time{}); len(got) != 0 {
		t.Fatalf("expected no slots on an unavailable day, got %v", Strings(got))
	}
	inactive := nineToFive()
	inactive.Active = false
	if got := Compute(Day{Date: monday, Schedule: inactive}, Policy{}, time.Time{}); len(got) != 0 {
		t.Fatalf("expected no slots for inactive entry, got %v", Strings(got))
	}
}

func TestCompute_BlockedRangeIsHalfOpen(t *testing.T) {
	day := Day{
		Date:     monday,
		Schedule: nineToFive(),
		Blocked:  []model.UnavailableTimeRange{{Date: monday, Start: 12 * 60, End: 13 * 60}},
	}
	slots := Strings(Compute(day, Policy{}, time.Time{}))
	for _, gone := range []string{"12:00", "12:20", "12:40"} {
		if slices.Contains(slots, gone) {
			t.Fatalf("%s should be blocked", gone)
		}
	}
	for _, kept := range []string{"11:40", "13:00"} {
		if !slices.Contains(slots, kept) {
			t.Fatalf("%s should remain", kept)
		}
	}
	if len(slots) != 21 {
		t.Fatalf("expected 21 slots, got %d", len(slots))
	}
}

func TestCompute_BookedRemoved(t *testing.T) {
	day := Day{Date: monday, Schedule: nineToFive(), Booked: []model.TimeOfDay{10 * 60}}
	slots := Compute(day, Policy{}, time.Time{})
	if Contains(slots, 10*60) || len(slots) != 23 {
		t.Fatalf("expected 10:00 removed, got %v", Strings(slots))
	}
}

func TestCompute_UnalignedStartRoundsUp(t *testing.T) {
	entry := nineToFive()
	entry.Start, entry.End = 9*60+10, 10*60
	slots := Strings(Compute(Day{Date: monday, Schedule: entry}, Policy{}, time.Time{}))
	if !slices.Equal(slots, []string{"09:20", "09:40"}) {
		t.Fatalf("unexpected slots %v", slots)
	}
}

func TestCompute_DayBoundsClamp(t *testing.T) {
	slots := Strings(Compute(Day{Date: monday, Schedule: nineToFive()}, Policy{DayStart: 10 * 60, DayEnd: 11 * 60}, time.Time{}))
	if !slices.Equal(slots, []string{"10:00", "10:20", "10:40"}) {
		t.Fatalf("unexpected slots %v", slots)
	}
}

func TestCompute_HidesPast(t *testing.T) {
	now := monday.Add(16*time.Hour + 5*time.Minute)
	slots := Strings(Compute(Day{Date: monday, Schedule: nineToFive()}, Policy{HidePast: true}, now))
	if !slices.Equal(slots, []string{"16:20", "16:40"}) {
		t.Fatalf("unexpected slots %v", slots)
	}
	all := Compute(Day{Date: monday, Schedule: nineToFive()}, Policy{HidePast: false}, now)
	if len(all) != 24 {
		t.Fatalf("expected past filter off, got %d slots", len(all))
	}
}

func TestCompute_Idempotent(t *testing.T) {
	day := Day{Date: monday, Schedule: nineToFive(), Booked: []model.TimeOfDay{9 * 60, 14 * 60}}
	first := Compute(day, Policy{}, time.Time{})
	second := Compute(day, Policy{}, time.Time{})
	if !slices.Equal(first, second) {
		t.Fatalf("expected identical output, got %v and %v", first, second)
	}
}

package model

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	ok := map[string]TimeOfDay{
		"09:00":    540,
		"9:20":     560,
		"16:40:00": 1000,
		"00:00":    0,
		"24:00":    MinutesPerDay,
	}
	for in, want := range ok {
		got, err := ParseTimeOfDay(in)
		if err != nil || got != want {
			t.Fatalf("ParseTimeOfDay(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	for _, in := range []string{"", "9", "25:00", "12:60", "12:00:30", "24:20", "ab:cd", "123:00"} {
		if _, err := ParseTimeOfDay(in); err == nil {
			t.Fatalf("expected %q to be rejected", in)
		}
	}
	if s := TimeOfDay(545).String(); s != "09:05" {
		t.Fatalf("unexpected String(): %s", s)
	}
	if !TimeOfDay(560).Aligned(20*time.Minute) || TimeOfDay(550).Aligned(20*time.Minute) {
		t.Fatal("unexpected alignment result")
	}
}

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("book: %w", SlotConflict("slot_unavailable", "taken"))
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatal("expected wrapped slot conflict to match sentinel")
	}
	if errors.Is(err, ErrInvalidToken) {
		t.Fatal("kinds must not cross-match")
	}
	if KindOf(err) != KindSlotConflict {
		t.Fatalf("unexpected kind %s", KindOf(err))
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatal("plain errors are internal")
	}

	cause := errors.New("driver")
	wrapped := &Error{Kind: KindConflict, Code: "x", Message: "y", Err: cause}
	if !errors.Is(wrapped, cause) {
		t.Fatal("Unwrap must expose the cause")
	}
}

func TestTokenState(t *testing.T) {
	now := time.Now()
	if (CancellationToken{}).State() != TokenIssued {
		t.Fatal("fresh token should be issued")
	}
	if (CancellationToken{ConsumedAt: &now}).State() != TokenConsumed {
		t.Fatal("consumed token")
	}
	if (CancellationToken{RevokedAt: &now}).State() != TokenRevoked {
		t.Fatal("revoked token")
	}
}

func TestScheduledAt(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)
	a := Appointment{Date: time.Date(2030, 6, 3, 0, 0, 0, 0, time.UTC), Time: 10 * 60}
	got := a.ScheduledAt(loc).UTC()
	if want := time.Date(2030, 6, 3, 13, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("ScheduledAt = %s, want %s", got, want)
	}
}

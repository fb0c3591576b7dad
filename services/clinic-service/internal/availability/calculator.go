package availability

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

type ScheduleReader interface {
	ActiveEntry(ctx context.Context, providerID string, day time.Weekday) (model.WorkScheduleEntry, bool, error)
}

type ExceptionReader interface {
	GetUnavailableDay(ctx context.Context, date time.Time) (model.UnavailableDay, error)
	ListTimeRanges(ctx context.Context, date time.Time) ([]model.UnavailableTimeRange, error)
}

type BookingReader interface {
	ScheduledTimes(ctx context.Context, providerID string, date time.Time) ([]model.TimeOfDay, error)
}

// Calculator loads a Day from the stores and runs Compute over it. Results
// are advisory; booking re-validates before writing.
type Calculator struct {
	schedules  ScheduleReader
	exceptions ExceptionReader
	bookings   BookingReader
	policy     Policy
	now        func() time.Time
}

func NewCalculator(schedules ScheduleReader, exceptions ExceptionReader, bookings BookingReader, policy Policy) *Calculator {
	return &Calculator{
		schedules:  schedules,
		exceptions: exceptions,
		bookings:   bookings,
		policy:     policy,
		now:        time.Now,
	}
}

// WithClock replaces the wall clock, for tests.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	c.now = now
	return c
}

func (c *Calculator) Policy() Policy { return c.policy }

// Load gathers the schedule, exceptions and bookings that apply to date.
func (c *Calculator) Load(ctx context.Context, providerID string, date time.Time) (Day, error) {
	date = model.DateOf(date)
	day := Day{Date: date}

	if _, err := c.exceptions.GetUnavailableDay(ctx, date); err == nil {
		day.Closed = true
		return day, nil
	} else if !errors.Is(err, model.ErrNotFound) {
		return Day{}, err
	}

	entry, ok, err := c.schedules.ActiveEntry(ctx, providerID, date.Weekday())
	if err != nil {
		return Day{}, err
	}
	if !ok {
		return day, nil
	}
	day.Schedule = &entry

	if day.Blocked, err = c.exceptions.ListTimeRanges(ctx, date); err != nil {
		return Day{}, err
	}
	if day.Booked, err = c.bookings.ScheduledTimes(ctx, providerID, date); err != nil {
		return Day{}, err
	}
	return day, nil
}

// Slots returns the free ticks for providerID on date.
func (c *Calculator) Slots(ctx context.Context, providerID string, date time.Time) ([]model.TimeOfDay, error) {
	day, err := c.Load(ctx, providerID, date)
	if err != nil {
		return nil, err
	}
	return Compute(day, c.policy, c.now()), nil
}

// IsFree is the point check used right before a booking is written.
func (c *Calculator) IsFree(ctx context.Context, providerID string, date time.Time, t model.TimeOfDay) (bool, error) {
	slots, err := c.Slots(ctx, providerID, date)
	if err != nil {
		return false, err
	}
	return Contains(slots, t), nil
}

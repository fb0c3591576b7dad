// Package schedule administers recurring work hours and one-off exceptions.
package schedule

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/storage"
)

// EntryInput is a work schedule payload after HTTP decoding. Nil or empty
// fields are left unchanged on update.
type EntryInput struct {
	ProviderID string
	DayOfWeek  string
	Start      string
	End        string
	Active     *bool
}

type Service struct {
	schedules       storage.ScheduleStore
	exceptions      storage.ExceptionStore
	defaultProvider string
	logger          *slog.Logger
}

func NewService(schedules storage.ScheduleStore, exceptions storage.ExceptionStore, defaultProvider string, logger *slog.Logger) *Service {
	if defaultProvider == "" {
		defaultProvider = "default"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{schedules: schedules, exceptions: exceptions, defaultProvider: defaultProvider, logger: logger}
}

// ParseWeekday accepts 0..6 (Sunday first) or an English day name.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 6 {
			return 0, model.Validation("invalid_day_of_week", "day_of_week must be 0-6")
		}
		return time.Weekday(n), nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) == 3 && strings.HasPrefix(name, s)) {
			return d, nil
		}
	}
	return 0, model.Validation("invalid_day_of_week", "day_of_week must be 0-6 or a day name")
}

// parseRange validates a [start, end) pair of wall-clock times.
func parseRange(start, end string) (model.TimeOfDay, model.TimeOfDay, error) {
	s, err := model.ParseTimeOfDay(start)
	if err != nil || !s.Valid() {
		return 0, 0, model.Validation("invalid_start_time", "start_time must be HH:MM")
	}
	e, err := model.ParseTimeOfDay(end)
	if err != nil || e <= 0 {
		return 0, 0, model.Validation("invalid_end_time", "end_time must be HH:MM")
	}
	if s >= e {
		return 0, 0, model.Validation("invalid_range", "start_time must be before end_time")
	}
	return s, e, nil
}

func (s *Service) ListEntries(ctx context.Context, providerID string) ([]model.WorkScheduleEntry, error) {
	if providerID = strings.TrimSpace(providerID); providerID == "" {
		providerID = s.defaultProvider
	}
	return s.schedules.ListSchedule(ctx, providerID)
}

func (s *Service) GetEntry(ctx context.Context, id string) (model.WorkScheduleEntry, error) {
	return s.schedules.GetScheduleEntry(ctx, id)
}

func (s *Service) CreateEntry(ctx context.Context, in EntryInput) (model.WorkScheduleEntry, error) {
	day, err := ParseWeekday(in.DayOfWeek)
	if err != nil {
		return model.WorkScheduleEntry{}, err
	}
	start, end, err := parseRange(in.Start, in.End)
	if err != nil {
		return model.WorkScheduleEntry{}, err
	}
	e := model.WorkScheduleEntry{
		ProviderID: strings.TrimSpace(in.ProviderID),
		DayOfWeek:  day,
		Start:      start,
		End:        end,
		Active:     in.Active == nil || *in.Active,
	}
	if e.ProviderID == "" {
		e.ProviderID = s.defaultProvider
	}
	if err := s.schedules.CreateScheduleEntry(ctx, &e); err != nil {
		return model.WorkScheduleEntry{}, err
	}
	s.logger.Info("work schedule created", "entry_id", e.ID, "day", e.DayOfWeek.String(),
		"start", e.Start.String(), "end", e.End.String(), "active", e.Active)
	return e, nil
}

func (s *Service) UpdateEntry(ctx context.Context, id string, in EntryInput) (model.WorkScheduleEntry, error) {
	e, err := s.schedules.GetScheduleEntry(ctx, id)
	if err != nil {
		return model.WorkScheduleEntry{}, err
	}
	if strings.TrimSpace(in.DayOfWeek) != "" {
		if e.DayOfWeek, err = ParseWeekday(in.DayOfWeek); err != nil {
			return model.WorkScheduleEntry{}, err
		}
	}
	start, end := e.Start.String(), e.End.String()
	if in.Start != "" {
		start = in.Start
	}
	if in.End != "" {
		end = in.End
	}
	if e.Start, e.End, err = parseRange(start, end); err != nil {
		return model.WorkScheduleEntry{}, err
	}
	if in.Active != nil {
		e.Active = *in.Active
	}
	if p := strings.TrimSpace(in.ProviderID); p != "" {
		e.ProviderID = p
	}
	if err := s.schedules.UpdateScheduleEntry(ctx, &e); err != nil {
		return model.WorkScheduleEntry{}, err
	}
	s.logger.Info("work schedule updated", "entry_id", e.ID, "active", e.Active)
	return e, nil
}

func (s *Service) DeleteEntry(ctx context.Context, id string) error {
	if err := s.schedules.DeleteScheduleEntry(ctx, id); err != nil {
		return err
	}
	s.logger.Info("work schedule deleted", "entry_id", id)
	return nil
}

func parseDate(raw string) (time.Time, error) {
	d, err := model.ParseDate(raw)
	if err != nil {
		return time.Time{}, model.Validation("invalid_date", "date must be YYYY-MM-DD")
	}
	return d, nil
}

// MarkDayUnavailable blocks a whole date. Marking it again replaces the reason.
func (s *Service) MarkDayUnavailable(ctx context.Context, date, reason string) (model.UnavailableDay, error) {
	d, err := parseDate(date)
	if err != nil {
		return model.UnavailableDay{}, err
	}
	day := model.UnavailableDay{Date: d, Reason: strings.TrimSpace(reason)}
	if err := s.exceptions.UpsertUnavailableDay(ctx, &day); err != nil {
		return model.UnavailableDay{}, err
	}
	s.logger.Info("unavailable day set", "date", model.FormatDate(d))
	return day, nil
}

// ListUnavailableDays filters by an optional inclusive [from, to] window.
func (s *Service) ListUnavailableDays(ctx context.Context, from, to string) ([]model.UnavailableDay, error) {
	var f, t time.Time
	var err error
	if from != "" {
		if f, err = parseDate(from); err != nil {
			return nil, err
		}
	}
	if to != "" {
		if t, err = parseDate(to); err != nil {
			return nil, err
		}
	}
	return s.exceptions.ListUnavailableDays(ctx, f, t)
}

func (s *Service) GetUnavailableDay(ctx context.Context, date string) (model.UnavailableDay, error) {
	d, err := parseDate(date)
	if err != nil {
		return model.UnavailableDay{}, err
	}
	return s.exceptions.GetUnavailableDay(ctx, d)
}

func (s *Service) DeleteUnavailableDay(ctx context.Context, date string) error {
	d, err := parseDate(date)
	if err != nil {
		return err
	}
	return s.exceptions.DeleteUnavailableDay(ctx, d)
}

// AddUnavailableTime blocks [start, end) on date. Ranges on the same date may
// not overlap.
func (s *Service) AddUnavailableTime(ctx context.Context, date, start, end, reason string) (model.UnavailableTimeRange, error) {
	d, err := parseDate(date)
	if err != nil {
		return model.UnavailableTimeRange{}, err
	}
	st, en, err := parseRange(start, end)
	if err != nil {
		return model.UnavailableTimeRange{}, err
	}
	existing, err := s.exceptions.ListTimeRanges(ctx, d)
	if err != nil {
		return model.UnavailableTimeRange{}, err
	}
	for _, r := range existing {
		if r.Overlaps(st, en) {
			return model.UnavailableTimeRange{}, model.Conflict("time_range_overlap",
				"range overlaps "+r.Start.String()+"-"+r.End.String())
		}
	}
	tr := model.UnavailableTimeRange{Date: d, Start: st, End: en, Reason: strings.TrimSpace(reason)}
	if err := s.exceptions.CreateTimeRange(ctx, &tr); err != nil {
		return model.UnavailableTimeRange{}, err
	}
	s.logger.Info("unavailable time added", "range_id", tr.ID, "date", model.FormatDate(d),
		"start", tr.Start.String(), "end", tr.End.String())
	return tr, nil
}

// ListUnavailableTimes lists ranges on date, or every range when date is empty.
func (s *Service) ListUnavailableTimes(ctx context.Context, date string) ([]model.UnavailableTimeRange, error) {
	var d time.Time
	if date != "" {
		var err error
		if d, err = parseDate(date); err != nil {
			return nil, err
		}
	}
	return s.exceptions.ListTimeRanges(ctx, d)
}

func (s *Service) DeleteUnavailableTime(ctx context.Context, id string) error {
	return s.exceptions.DeleteTimeRange(ctx, id)
}

// Package memory is an in-process Store used by tests and by local runs
// without DATABASE_URL. Transactions are serialized and applied to a copy of
// the state that replaces the original only on commit.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/storage"
)

type state struct {
	schedules    map[string]model.WorkScheduleEntry
	days         map[string]model.UnavailableDay
	ranges       map[string]model.UnavailableTimeRange
	patients     map[string]model.Patient
	appointments map[string]model.Appointment
	tokens       map[string]model.CancellationToken
	reference    map[model.ReferenceKind][]model.ReferenceItem
	events       []outbox.Event
}

func (s *state) clone() *state {
	c := &state{
		schedules:    make(map[string]model.WorkScheduleEntry, len(s.schedules)),
		days:         make(map[string]model.UnavailableDay, len(s.days)),
		ranges:       make(map[string]model.UnavailableTimeRange, len(s.ranges)),
		patients:     make(map[string]model.Patient, len(s.patients)),
		appointments: make(map[string]model.Appointment, len(s.appointments)),
		tokens:       make(map[string]model.CancellationToken, len(s.tokens)),
		reference:    s.reference,
		events:       append([]outbox.Event(nil), s.events...),
	}
	for k, v := range s.schedules {
		c.schedules[k] = v
	}
	for k, v := range s.days {
		c.days[k] = v
	}
	for k, v := range s.ranges {
		c.ranges[k] = v
	}
	for k, v := range s.patients {
		c.patients[k] = v
	}
	for k, v := range s.appointments {
		c.appointments[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	return c
}

type Store struct {
	// writeMu serializes every mutation, transactional or not.
	writeMu sync.Mutex
	mu      sync.RWMutex
	st      *state
	now     func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New returns an empty store seeded with the default reference data.
func New() *Store {
	return &Store{
		st: &state{
			schedules:    map[string]model.WorkScheduleEntry{},
			days:         map[string]model.UnavailableDay{},
			ranges:       map[string]model.UnavailableTimeRange{},
			patients:     map[string]model.Patient{},
			appointments: map[string]model.Appointment{},
			tokens:       map[string]model.CancellationToken{},
			reference:    DefaultReference(),
		},
		now: time.Now,
	}
}

// DefaultReference mirrors the rows seeded by the SQL migrations.
func DefaultReference() map[model.ReferenceKind][]model.ReferenceItem {
	return map[model.ReferenceKind][]model.ReferenceItem{
		model.VisitTypes: {
			{ID: 1, Name: "In-Person", Description: "Physical visit at the clinic."},
			{ID: 2, Name: "Online", Description: "Video or telehealth consultation."},
			{ID: 3, Name: "Phone Call", Description: "Consultation via phone call."},
		},
		model.ConsultTypes: {
			{ID: 1, Name: "Initial Consultation", Description: "First appointment to understand the patient's needs."},
			{ID: 2, Name: "Follow-up", Description: "Subsequent appointment for ongoing care."},
			{ID: 3, Name: "Check-up", Description: "Routine health check."},
			{ID: 4, Name: "Emergency Consultation", Description: "Urgent appointment for immediate concerns."},
		},
		model.PracticeTypes: {
			{ID: 1, Name: "Cryosurgery", Description: "Procedure using extreme cold to destroy abnormal tissue."},
			{ID: 2, Name: "Electrocoagulation", Description: "Procedure using electrical current to coagulate tissue."},
			{ID: 3, Name: "Biopsy", Description: "Removal of a tissue sample for examination."},
		},
		model.HealthInsurance: {
			{ID: 1, Name: "Private", Description: "Self-paying patient."},
			{ID: 2, Name: "OSDE"},
			{ID: 3, Name: "Swiss Medical"},
			{ID: 4, Name: "Galeno"},
		},
	}
}

func (s *Store) Schedules() storage.ScheduleStore       { return scheduleStore{s} }
func (s *Store) Exceptions() storage.ExceptionStore     { return exceptionStore{s} }
func (s *Store) Patients() storage.PatientStore         { return patientStore{s} }
func (s *Store) Appointments() storage.AppointmentStore { return appointmentStore{s} }
func (s *Store) Reference() storage.ReferenceStore      { return referenceStore{s} }

// Events returns every event enqueued by committed transactions.
func (s *Store) Events() []outbox.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]outbox.Event(nil), s.st.events...)
}

// Tokens returns a copy of the stored token rows.
func (s *Store) Tokens() []model.CancellationToken {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.CancellationToken, 0, len(s.st.tokens))
	for _, t := range s.st.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	work := s.st.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &tx{st: work, now: s.now}); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

func (s *Store) read(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.st)
}

// write mutates the live state in place; fn must not leave it half-changed
// when it returns an error.
func (s *Store) write(fn func(st *state) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func dateKey(d time.Time) string { return model.FormatDate(d) }

type scheduleStore struct{ s *Store }

func (r scheduleStore) ListSchedule(_ context.Context, providerID string) ([]model.WorkScheduleEntry, error) {
	var out []model.WorkScheduleEntry
	r.s.read(func(st *state) {
		for _, e := range st.schedules {
			if providerID == "" || e.ProviderID == providerID {
				out = append(out, e)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r scheduleStore) GetScheduleEntry(_ context.Context, id string) (model.WorkScheduleEntry, error) {
	var (
		e  model.WorkScheduleEntry
		ok bool
	)
	r.s.read(func(st *state) { e, ok = st.schedules[id] })
	if !ok {
		return model.WorkScheduleEntry{}, model.NotFound("schedule_entry")
	}
	return e, nil
}

func (r scheduleStore) ActiveEntry(_ context.Context, providerID string, day time.Weekday) (model.WorkScheduleEntry, bool, error) {
	var (
		e     model.WorkScheduleEntry
		found bool
	)
	r.s.read(func(st *state) {
		for _, cand := range st.schedules {
			if cand.Active && cand.ProviderID == providerID && cand.DayOfWeek == day {
				e, found = cand, true
				return
			}
		}
	})
	return e, found, nil
}

func activeDayTaken(st *state, e *model.WorkScheduleEntry) bool {
	if !e.Active {
		return false
	}
	for id, other := range st.schedules {
		if id != e.ID && other.Active && other.ProviderID == e.ProviderID && other.DayOfWeek == e.DayOfWeek {
			return true
		}
	}
	return false
}

func (r scheduleStore) CreateScheduleEntry(_ context.Context, e *model.WorkScheduleEntry) error {
	return r.s.write(func(st *state) error {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if activeDayTaken(st, e) {
			return model.Conflict("schedule_day_exists", "an active schedule already exists for "+e.DayOfWeek.String())
		}
		now := r.s.now().UTC()
		e.CreatedAt, e.UpdatedAt = now, now
		st.schedules[e.ID] = *e
		return nil
	})
}

func (r scheduleStore) UpdateScheduleEntry(_ context.Context, e *model.WorkScheduleEntry) error {
	return r.s.write(func(st *state) error {
		prev, ok := st.schedules[e.ID]
		if !ok {
			return model.NotFound("schedule_entry")
		}
		if activeDayTaken(st, e) {
			return model.Conflict("schedule_day_exists", "an active schedule already exists for "+e.DayOfWeek.String())
		}
		e.CreatedAt = prev.CreatedAt
		e.UpdatedAt = r.s.now().UTC()
		st.schedules[e.ID] = *e
		return nil
	})
}

func (r scheduleStore) DeleteScheduleEntry(_ context.Context, id string) error {
	return r.s.write(func(st *state) error {
		if _, ok := st.schedules[id]; !ok {
			return model.NotFound("schedule_entry")
		}
		delete(st.schedules, id)
		return nil
	})
}

type exceptionStore struct{ s *Store }

func (r exceptionStore) UpsertUnavailableDay(_ context.Context, d *model.UnavailableDay) error {
	return r.s.write(func(st *state) error {
		d.Date = model.DateOf(d.Date)
		if prev, ok := st.days[dateKey(d.Date)]; ok {
			d.CreatedAt = prev.CreatedAt
		} else {
			d.CreatedAt = r.s.now().UTC()
		}
		st.days[dateKey(d.Date)] = *d
		return nil
	})
}

func (r exceptionStore) GetUnavailableDay(_ context.Context, date time.Time) (model.UnavailableDay, error) {
	var (
		d  model.UnavailableDay
		ok bool
	)
	r.s.read(func(st *state) { d, ok = st.days[dateKey(date)] })
	if !ok {
		return model.UnavailableDay{}, model.NotFound("unavailable_day")
	}
	return d, nil
}

func (r exceptionStore) ListUnavailableDays(_ context.Context, from, to time.Time) ([]model.UnavailableDay, error) {
	var out []model.UnavailableDay
	r.s.read(func(st *state) {
		for _, d := range st.days {
			if !from.IsZero() && d.Date.Before(from) {
				continue
			}
			if !to.IsZero() && d.Date.After(to) {
				continue
			}
			out = append(out, d)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r exceptionStore) DeleteUnavailableDay(_ context.Context, date time.Time) error {
	return r.s.write(func(st *state) error {
		if _, ok := st.days[dateKey(date)]; !ok {
			return model.NotFound("unavailable_day")
		}
		delete(st.days, dateKey(date))
		return nil
	})
}

func (r exceptionStore) CreateTimeRange(_ context.Context, tr *model.UnavailableTimeRange) error {
	return r.s.write(func(st *state) error {
		tr.Date = model.DateOf(tr.Date)
		for _, other := range st.ranges {
			if other.Date.Equal(tr.Date) && other.Overlaps(tr.Start, tr.End) {
				return model.Conflict("time_range_overlap", "range overlaps "+other.Start.String()+"-"+other.End.String())
			}
		}
		if tr.ID == "" {
			tr.ID = uuid.NewString()
		}
		tr.CreatedAt = r.s.now().UTC()
		st.ranges[tr.ID] = *tr
		return nil
	})
}

func (r exceptionStore) ListTimeRanges(_ context.Context, date time.Time) ([]model.UnavailableTimeRange, error) {
	var out []model.UnavailableTimeRange
	r.s.read(func(st *state) {
		for _, tr := range st.ranges {
			if date.IsZero() || tr.Date.Equal(model.DateOf(date)) {
				out = append(out, tr)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Start < out[j].Start
	})
	return out, nil
}

func (r exceptionStore) DeleteTimeRange(_ context.Context, id string) error {
	return r.s.write(func(st *state) error {
		if _, ok := st.ranges[id]; !ok {
			return model.NotFound("unavailable_time")
		}
		delete(st.ranges, id)
		return nil
	})
}

type patientStore struct{ s *Store }

func patientClash(st *state, p *model.Patient) error {
	for id, other := range st.patients {
		if id == p.ID {
			continue
		}
		if other.Phone == p.Phone {
			return model.DuplicatePatient("phone")
		}
		if p.Email != "" && strings.EqualFold(other.Email, p.Email) {
			return model.DuplicatePatient("email")
		}
	}
	return nil
}

func (r patientStore) CreatePatient(_ context.Context, p *model.Patient) error {
	return r.s.write(func(st *state) error {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if err := patientClash(st, p); err != nil {
			return err
		}
		now := r.s.now().UTC()
		p.CreatedAt, p.UpdatedAt = now, now
		st.patients[p.ID] = *p
		return nil
	})
}

func (r patientStore) GetPatient(_ context.Context, id string) (model.Patient, error) {
	var (
		p  model.Patient
		ok bool
	)
	r.s.read(func(st *state) { p, ok = st.patients[id] })
	if !ok {
		return model.Patient{}, model.NotFound("patient")
	}
	return p, nil
}

func (r patientStore) FindPatientByPhone(_ context.Context, phone string) (model.Patient, error) {
	var (
		p     model.Patient
		found bool
	)
	r.s.read(func(st *state) {
		for _, cand := range st.patients {
			if cand.Phone == phone {
				p, found = cand, true
				return
			}
		}
	})
	if !found {
		return model.Patient{}, model.NotFound("patient")
	}
	return p, nil
}

func (r patientStore) UpdatePatient(_ context.Context, p *model.Patient) error {
	return r.s.write(func(st *state) error {
		prev, ok := st.patients[p.ID]
		if !ok {
			return model.NotFound("patient")
		}
		if err := patientClash(st, p); err != nil {
			return err
		}
		p.CreatedAt = prev.CreatedAt
		p.UpdatedAt = r.s.now().UTC()
		st.patients[p.ID] = *p
		return nil
	})
}

func (r patientStore) DeletePatient(_ context.Context, id string) error {
	return r.s.write(func(st *state) error {
		if _, ok := st.patients[id]; !ok {
			return model.NotFound("patient")
		}
		delete(st.patients, id)
		return nil
	})
}

func (r patientStore) ListPatients(_ context.Context, limit, offset int) ([]model.Patient, error) {
	var all []model.Patient
	r.s.read(func(st *state) {
		for _, p := range st.patients {
			all = append(all, p)
		}
	})
	sort.Slice(all, func(i, j int) bool {
		if all[i].LastName != all[j].LastName {
			return all[i].LastName < all[j].LastName
		}
		return all[i].FirstName < all[j].FirstName
	})
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

type appointmentStore struct{ s *Store }

func (r appointmentStore) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	var (
		a  model.Appointment
		ok bool
	)
	r.s.read(func(st *state) { a, ok = st.appointments[id] })
	if !ok {
		return model.Appointment{}, model.NotFound("appointment")
	}
	return a, nil
}

func (r appointmentStore) ListAppointments(_ context.Context, providerID string, date time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	r.s.read(func(st *state) {
		for _, a := range st.appointments {
			if providerID != "" && a.ProviderID != providerID {
				continue
			}
			if !date.IsZero() && !a.Date.Equal(model.DateOf(date)) {
				continue
			}
			out = append(out, a)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

func (r appointmentStore) ScheduledTimes(_ context.Context, providerID string, date time.Time) ([]model.TimeOfDay, error) {
	var out []model.TimeOfDay
	r.s.read(func(st *state) {
		for _, a := range st.appointments {
			if a.Status == model.StatusScheduled && a.ProviderID == providerID && a.Date.Equal(model.DateOf(date)) {
				out = append(out, a.Time)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r appointmentStore) DeleteAppointment(_ context.Context, id string) error {
	return r.s.write(func(st *state) error {
		if _, ok := st.appointments[id]; !ok {
			return model.NotFound("appointment")
		}
		delete(st.appointments, id)
		for hash, t := range st.tokens {
			if t.AppointmentID == id {
				delete(st.tokens, hash)
			}
		}
		return nil
	})
}

type referenceStore struct{ s *Store }

func (r referenceStore) ListReference(_ context.Context, kind model.ReferenceKind) ([]model.ReferenceItem, error) {
	var out []model.ReferenceItem
	r.s.read(func(st *state) {
		out = append(out, st.reference[kind]...)
	})
	return out, nil
}

func (r referenceStore) ReferenceExists(_ context.Context, kind model.ReferenceKind, id int64) (bool, error) {
	var found bool
	r.s.read(func(st *state) {
		for _, item := range st.reference[kind] {
			if item.ID == id {
				found = true
				return
			}
		}
	})
	return found, nil
}

// tx operates on a private copy of the state owned by one InTx call.
type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) InsertAppointment(_ context.Context, a *model.Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = model.StatusScheduled
	}
	a.Date = model.DateOf(a.Date)
	if a.Status == model.StatusScheduled {
		for _, other := range t.st.appointments {
			if other.Status == model.StatusScheduled && other.ProviderID == a.ProviderID &&
				other.Date.Equal(a.Date) && other.Time == a.Time {
				return model.SlotConflict("slot_conflict", "slot "+a.Time.String()+" on "+model.FormatDate(a.Date)+" is already booked")
			}
		}
	}
	if _, ok := t.st.patients[a.PatientID]; !ok {
		return model.NotFound("patient")
	}
	a.CreatedAt = t.now().UTC()
	t.st.appointments[a.ID] = *a
	return nil
}

func (t *tx) GetAppointmentForUpdate(_ context.Context, id string) (model.Appointment, error) {
	a, ok := t.st.appointments[id]
	if !ok {
		return model.Appointment{}, model.NotFound("appointment")
	}
	return a, nil
}

func (t *tx) MarkAppointmentCancelled(_ context.Context, id string, at time.Time) error {
	a, ok := t.st.appointments[id]
	if !ok {
		return model.NotFound("appointment")
	}
	if a.Status != model.StatusScheduled {
		return model.Conflict("appointment_not_scheduled", "appointment is not scheduled")
	}
	at = at.UTC()
	a.Status = model.StatusCancelled
	a.CancelledAt = &at
	t.st.appointments[id] = a
	return nil
}

func (t *tx) GetPatient(_ context.Context, id string) (model.Patient, error) {
	p, ok := t.st.patients[id]
	if !ok {
		return model.Patient{}, model.NotFound("patient")
	}
	return p, nil
}

func (t *tx) InsertToken(_ context.Context, tok model.CancellationToken) error {
	if _, ok := t.st.tokens[tok.TokenHash]; ok {
		return model.Conflict("token_exists", "cancellation token already exists")
	}
	if _, ok := t.st.appointments[tok.AppointmentID]; !ok {
		return model.NotFound("appointment")
	}
	t.st.tokens[tok.TokenHash] = tok
	return nil
}

func (t *tx) GetTokenForUpdate(_ context.Context, hash string) (model.CancellationToken, error) {
	tok, ok := t.st.tokens[hash]
	if !ok {
		return model.CancellationToken{}, model.NotFound("cancellation_token")
	}
	return tok, nil
}

func (t *tx) ConsumeToken(_ context.Context, hash string, at time.Time) error {
	tok, ok := t.st.tokens[hash]
	if !ok || tok.State() != model.TokenIssued {
		return model.ErrInvalidToken
	}
	at = at.UTC()
	tok.ConsumedAt = &at
	t.st.tokens[hash] = tok
	return nil
}

func (t *tx) RevokeTokens(_ context.Context, appointmentID string, at time.Time) error {
	at = at.UTC()
	for hash, tok := range t.st.tokens {
		if tok.AppointmentID == appointmentID && tok.State() == model.TokenIssued {
			revoked := at
			tok.RevokedAt = &revoked
			t.st.tokens[hash] = tok
		}
	}
	return nil
}

func (t *tx) Enqueue(_ context.Context, evt outbox.Event) error {
	t.st.events = append(t.st.events, evt)
	return nil
}

// Package postgres implements the clinic storage interfaces on pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/storage"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

var _ storage.Store = (*Store)(nil)

func NewStore(pool *db.Pool, repo *outbox.Repository) *Store {
	return &Store{pool: pool, outbox: repo}
}

func (s *Store) Schedules() storage.ScheduleStore       { return scheduleRepo{q: s.pool} }
func (s *Store) Exceptions() storage.ExceptionStore     { return exceptionRepo{q: s.pool} }
func (s *Store) Patients() storage.PatientStore         { return patientRepo{q: s.pool} }
func (s *Store) Appointments() storage.AppointmentStore { return appointmentRepo{q: s.pool} }
func (s *Store) Reference() storage.ReferenceStore      { return referenceRepo{q: s.pool} }

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return s.pool.InTx(ctx, func(pgtx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: pgtx, outbox: s.outbox})
	})
}

type scheduleRepo struct{ q querier }

const scheduleColumns = `id::text, provider_id, day_of_week, start_minute, end_minute, active, created_at, updated_at`

func scanSchedule(row pgx.Row) (model.WorkScheduleEntry, error) {
	var (
		e          model.WorkScheduleEntry
		day        int16
		start, end int
	)
	err := row.Scan(&e.ID, &e.ProviderID, &day, &start, &end, &e.Active, &e.CreatedAt, &e.UpdatedAt)
	e.DayOfWeek = time.Weekday(day)
	e.Start, e.End = model.TimeOfDay(start), model.TimeOfDay(end)
	return e, err
}

func (r scheduleRepo) ListSchedule(ctx context.Context, providerID string) ([]model.WorkScheduleEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM work_schedule
		WHERE $1 = '' OR provider_id = $1
		ORDER BY day_of_week, created_at
	`, providerID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.WorkScheduleEntry, error) {
		return scanSchedule(row)
	})
}

func (r scheduleRepo) GetScheduleEntry(ctx context.Context, id string) (model.WorkScheduleEntry, error) {
	if uuid.Validate(id) != nil {
		return model.WorkScheduleEntry{}, model.NotFound("schedule_entry")
	}
	e, err := scanSchedule(r.q.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM work_schedule WHERE id = $1`, id))
	return e, mapError(err, "schedule_entry")
}

func (r scheduleRepo) ActiveEntry(ctx context.Context, providerID string, day time.Weekday) (model.WorkScheduleEntry, bool, error) {
	e, err := scanSchedule(r.q.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM work_schedule
		WHERE provider_id = $1 AND day_of_week = $2 AND active
	`, providerID, int16(day)))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.WorkScheduleEntry{}, false, nil
	}
	if err != nil {
		return model.WorkScheduleEntry{}, false, err
	}
	return e, true, nil
}

func (r scheduleRepo) CreateScheduleEntry(ctx context.Context, e *model.WorkScheduleEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	err := r.q.QueryRow(ctx, `
		INSERT INTO work_schedule (id, provider_id, day_of_week, start_minute, end_minute, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, e.ID, e.ProviderID, int16(e.DayOfWeek), int(e.Start), int(e.End), e.Active).Scan(&e.CreatedAt, &e.UpdatedAt)
	return mapError(err, "schedule_entry")
}

func (r scheduleRepo) UpdateScheduleEntry(ctx context.Context, e *model.WorkScheduleEntry) error {
	if uuid.Validate(e.ID) != nil {
		return model.NotFound("schedule_entry")
	}
	err := r.q.QueryRow(ctx, `
		UPDATE work_schedule
		SET provider_id = $2,
			day_of_week = $3,
			start_minute = $4,
			end_minute = $5,
			active = $6,
			updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, e.ID, e.ProviderID, int16(e.DayOfWeek), int(e.Start), int(e.End), e.Active).Scan(&e.CreatedAt, &e.UpdatedAt)
	return mapError(err, "schedule_entry")
}

func (r scheduleRepo) DeleteScheduleEntry(ctx context.Context, id string) error {
	return deleteOne(ctx, r.q, `DELETE FROM work_schedule WHERE id = $1`, id, "schedule_entry")
}

type exceptionRepo struct{ q querier }

func (r exceptionRepo) UpsertUnavailableDay(ctx context.Context, d *model.UnavailableDay) error {
	d.Date = model.DateOf(d.Date)
	err := r.q.QueryRow(ctx, `
		INSERT INTO unavailable_days (unavailable_date, reason)
		VALUES ($1, $2)
		ON CONFLICT (unavailable_date) DO UPDATE SET reason = EXCLUDED.reason
		RETURNING created_at
	`, d.Date, d.Reason).Scan(&d.CreatedAt)
	return mapError(err, "unavailable_day")
}

func (r exceptionRepo) GetUnavailableDay(ctx context.Context, date time.Time) (model.UnavailableDay, error) {
	var d model.UnavailableDay
	err := r.q.QueryRow(ctx, `
		SELECT unavailable_date, reason, created_at
		FROM unavailable_days
		WHERE unavailable_date = $1
	`, model.DateOf(date)).Scan(&d.Date, &d.Reason, &d.CreatedAt)
	return d, mapError(err, "unavailable_day")
}

func (r exceptionRepo) ListUnavailableDays(ctx context.Context, from, to time.Time) ([]model.UnavailableDay, error) {
	var fromArg, toArg *time.Time
	if !from.IsZero() {
		fromArg = &from
	}
	if !to.IsZero() {
		toArg = &to
	}
	rows, err := r.q.Query(ctx, `
		SELECT unavailable_date, reason, created_at
		FROM unavailable_days
		WHERE ($1::date IS NULL OR unavailable_date >= $1)
			AND ($2::date IS NULL OR unavailable_date <= $2)
		ORDER BY unavailable_date
	`, fromArg, toArg)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.UnavailableDay, error) {
		var d model.UnavailableDay
		err := row.Scan(&d.Date, &d.Reason, &d.CreatedAt)
		return d, err
	})
}

func (r exceptionRepo) DeleteUnavailableDay(ctx context.Context, date time.Time) error {
	return deleteOne(ctx, r.q, `DELETE FROM unavailable_days WHERE unavailable_date = $1`, model.DateOf(date), "unavailable_day")
}

func (r exceptionRepo) CreateTimeRange(ctx context.Context, tr *model.UnavailableTimeRange) error {
	if tr.ID == "" {
		tr.ID = uuid.NewString()
	}
	tr.Date = model.DateOf(tr.Date)
	err := r.q.QueryRow(ctx, `
		INSERT INTO unavailable_time_ranges (id, unavailable_date, start_minute, end_minute, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, tr.ID, tr.Date, int(tr.Start), int(tr.End), tr.Reason).Scan(&tr.CreatedAt)
	return mapError(err, "unavailable_time")
}

func (r exceptionRepo) ListTimeRanges(ctx context.Context, date time.Time) ([]model.UnavailableTimeRange, error) {
	var dateArg *time.Time
	if !date.IsZero() {
		d := model.DateOf(date)
		dateArg = &d
	}
	rows, err := r.q.Query(ctx, `
		SELECT id::text, unavailable_date, start_minute, end_minute, reason, created_at
		FROM unavailable_time_ranges
		WHERE $1::date IS NULL OR unavailable_date = $1
		ORDER BY unavailable_date, start_minute
	`, dateArg)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.UnavailableTimeRange, error) {
		var (
			tr         model.UnavailableTimeRange
			start, end int
		)
		err := row.Scan(&tr.ID, &tr.Date, &start, &end, &tr.Reason, &tr.CreatedAt)
		tr.Start, tr.End = model.TimeOfDay(start), model.TimeOfDay(end)
		return tr, err
	})
}

func (r exceptionRepo) DeleteTimeRange(ctx context.Context, id string) error {
	return deleteOne(ctx, r.q, `DELETE FROM unavailable_time_ranges WHERE id = $1`, id, "unavailable_time")
}

type patientRepo struct{ q querier }

const patientColumns = `id::text, first_name, last_name, email, phone, birth_date, created_at, updated_at`

func scanPatient(row pgx.Row) (model.Patient, error) {
	var p model.Patient
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.BirthDate, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r patientRepo) CreatePatient(ctx context.Context, p *model.Patient) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := r.q.QueryRow(ctx, `
		INSERT INTO patients (id, first_name, last_name, email, phone, birth_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, p.ID, p.FirstName, p.LastName, p.Email, p.Phone, p.BirthDate).Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapError(err, "patient")
}

func (r patientRepo) GetPatient(ctx context.Context, id string) (model.Patient, error) {
	if uuid.Validate(id) != nil {
		return model.Patient{}, model.NotFound("patient")
	}
	p, err := scanPatient(r.q.QueryRow(ctx, `
		SELECT `+patientColumns+` FROM patients WHERE id = $1 AND deleted_at IS NULL
	`, id))
	return p, mapError(err, "patient")
}

func (r patientRepo) FindPatientByPhone(ctx context.Context, phone string) (model.Patient, error) {
	p, err := scanPatient(r.q.QueryRow(ctx, `
		SELECT `+patientColumns+` FROM patients WHERE phone = $1 AND deleted_at IS NULL
	`, phone))
	return p, mapError(err, "patient")
}

func (r patientRepo) UpdatePatient(ctx context.Context, p *model.Patient) error {
	if uuid.Validate(p.ID) != nil {
		return model.NotFound("patient")
	}
	err := r.q.QueryRow(ctx, `
		UPDATE patients
		SET first_name = $2,
			last_name = $3,
			email = $4,
			phone = $5,
			birth_date = $6,
			updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING created_at, updated_at
	`, p.ID, p.FirstName, p.LastName, p.Email, p.Phone, p.BirthDate).Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapError(err, "patient")
}

// DeletePatient is a soft delete; appointments keep pointing at the row.
func (r patientRepo) DeletePatient(ctx context.Context, id string) error {
	return deleteOne(ctx, r.q, `UPDATE patients SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id, "patient")
}

func (r patientRepo) ListPatients(ctx context.Context, limit, offset int) ([]model.Patient, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.q.Query(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE deleted_at IS NULL
		ORDER BY last_name, first_name
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Patient, error) {
		return scanPatient(row)
	})
}

type appointmentRepo struct{ q querier }

const appointmentColumns = `id::text, provider_id, patient_id::text, appointment_date, slot_minute, visit_type_id,
	consult_type_id, practice_type_id, health_insurance_id, notes, status, created_at, cancelled_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		a      model.Appointment
		slot   int
		status string
	)
	err := row.Scan(&a.ID, &a.ProviderID, &a.PatientID, &a.Date, &slot, &a.VisitTypeID,
		&a.ConsultTypeID, &a.PracticeTypeID, &a.HealthInsuranceID, &a.Notes, &status, &a.CreatedAt, &a.CancelledAt)
	a.Time = model.TimeOfDay(slot)
	a.Status = model.AppointmentStatus(status)
	return a, err
}

func (r appointmentRepo) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	if uuid.Validate(id) != nil {
		return model.Appointment{}, model.NotFound("appointment")
	}
	a, err := scanAppointment(r.q.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	return a, mapError(err, "appointment")
}

func (r appointmentRepo) ListAppointments(ctx context.Context, providerID string, date time.Time) ([]model.Appointment, error) {
	var dateArg *time.Time
	if !date.IsZero() {
		d := model.DateOf(date)
		dateArg = &d
	}
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1 = '' OR provider_id = $1)
			AND ($2::date IS NULL OR appointment_date = $2)
		ORDER BY appointment_date, slot_minute
		LIMIT 500
	`, providerID, dateArg)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Appointment, error) {
		return scanAppointment(row)
	})
}

func (r appointmentRepo) ScheduledTimes(ctx context.Context, providerID string, date time.Time) ([]model.TimeOfDay, error) {
	rows, err := r.q.Query(ctx, `
		SELECT slot_minute
		FROM appointments
		WHERE provider_id = $1 AND appointment_date = $2 AND status = 'scheduled'
		ORDER BY slot_minute
	`, providerID, model.DateOf(date))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.TimeOfDay, error) {
		var m int
		err := row.Scan(&m)
		return model.TimeOfDay(m), err
	})
}

func (r appointmentRepo) DeleteAppointment(ctx context.Context, id string) error {
	return deleteOne(ctx, r.q, `DELETE FROM appointments WHERE id = $1`, id, "appointment")
}

type referenceRepo struct{ q querier }

func referenceTable(kind model.ReferenceKind) (string, error) {
	switch kind {
	case model.VisitTypes, model.ConsultTypes, model.PracticeTypes, model.HealthInsurance:
		return string(kind), nil
	default:
		return "", fmt.Errorf("unknown reference kind %q", kind)
	}
}

func (r referenceRepo) ListReference(ctx context.Context, kind model.ReferenceKind) ([]model.ReferenceItem, error) {
	table, err := referenceTable(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.q.Query(ctx, `SELECT id, name, description FROM `+table+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ReferenceItem, error) {
		var item model.ReferenceItem
		err := row.Scan(&item.ID, &item.Name, &item.Description)
		return item, err
	})
}

func (r referenceRepo) ReferenceExists(ctx context.Context, kind model.ReferenceKind, id int64) (bool, error) {
	table, err := referenceTable(kind)
	if err != nil {
		return false, err
	}
	var ok bool
	err = r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

type txRepo struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *txRepo) InsertAppointment(ctx context.Context, a *model.Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = model.StatusScheduled
	}
	a.Date = model.DateOf(a.Date)
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, provider_id, patient_id, appointment_date, slot_minute, visit_type_id,
			 consult_type_id, practice_type_id, health_insurance_id, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`, a.ID, a.ProviderID, a.PatientID, a.Date, int(a.Time), a.VisitTypeID,
		a.ConsultTypeID, a.PracticeTypeID, a.HealthInsuranceID, a.Notes, string(a.Status)).Scan(&a.CreatedAt)
	return mapError(err, "appointment")
}

func (t *txRepo) GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	if uuid.Validate(id) != nil {
		return model.Appointment{}, model.NotFound("appointment")
	}
	a, err := scanAppointment(t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	return a, mapError(err, "appointment")
}

func (t *txRepo) MarkAppointmentCancelled(ctx context.Context, id string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = $2
		WHERE id = $1 AND status = 'scheduled'
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.Conflict("appointment_not_scheduled", "appointment is not scheduled")
	}
	return nil
}

func (t *txRepo) GetPatient(ctx context.Context, id string) (model.Patient, error) {
	if uuid.Validate(id) != nil {
		return model.Patient{}, model.NotFound("patient")
	}
	p, err := scanPatient(t.tx.QueryRow(ctx, `
		SELECT `+patientColumns+` FROM patients WHERE id = $1 AND deleted_at IS NULL
	`, id))
	return p, mapError(err, "patient")
}

func (t *txRepo) InsertToken(ctx context.Context, tok model.CancellationToken) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO cancellation_tokens (token_hash, appointment_id, issued_at)
		VALUES ($1, $2, $3)
	`, tok.TokenHash, tok.AppointmentID, tok.IssuedAt)
	return mapError(err, "cancellation_token")
}

func (t *txRepo) GetTokenForUpdate(ctx context.Context, hash string) (model.CancellationToken, error) {
	var tok model.CancellationToken
	err := t.tx.QueryRow(ctx, `
		SELECT token_hash, appointment_id::text, issued_at, consumed_at, revoked_at
		FROM cancellation_tokens
		WHERE token_hash = $1
		FOR UPDATE
	`, hash).Scan(&tok.TokenHash, &tok.AppointmentID, &tok.IssuedAt, &tok.ConsumedAt, &tok.RevokedAt)
	return tok, mapError(err, "cancellation_token")
}

func (t *txRepo) ConsumeToken(ctx context.Context, hash string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE cancellation_tokens
		SET consumed_at = $2
		WHERE token_hash = $1 AND consumed_at IS NULL AND revoked_at IS NULL
	`, hash, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrInvalidToken
	}
	return nil
}

func (t *txRepo) RevokeTokens(ctx context.Context, appointmentID string, at time.Time) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE cancellation_tokens
		SET revoked_at = $2
		WHERE appointment_id = $1 AND consumed_at IS NULL AND revoked_at IS NULL
	`, appointmentID, at)
	return err
}

func (t *txRepo) Enqueue(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

func deleteOne(ctx context.Context, q querier, sql string, key any, entity string) error {
	if id, ok := key.(string); ok && uuid.Validate(id) != nil {
		return model.NotFound(entity)
	}
	tag, err := q.Exec(ctx, sql, key)
	if err != nil {
		return mapError(err, entity)
	}
	if tag.RowsAffected() == 0 {
		return model.NotFound(entity)
	}
	return nil
}

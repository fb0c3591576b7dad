package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/outbox"
)

// ScheduleStore holds recurring weekly hours. ActiveEntry is the weekday
// resolution used by availability.
type ScheduleStore interface {
	ListSchedule(ctx context.Context, providerID string) ([]model.WorkScheduleEntry, error)
	GetScheduleEntry(ctx context.Context, id string) (model.WorkScheduleEntry, error)
	ActiveEntry(ctx context.Context, providerID string, day time.Weekday) (model.WorkScheduleEntry, bool, error)
	CreateScheduleEntry(ctx context.Context, e *model.WorkScheduleEntry) error
	UpdateScheduleEntry(ctx context.Context, e *model.WorkScheduleEntry) error
	DeleteScheduleEntry(ctx context.Context, id string) error
}

// ExceptionStore holds one-off unavailable days and time ranges.
type ExceptionStore interface {
	UpsertUnavailableDay(ctx context.Context, d *model.UnavailableDay) error
	GetUnavailableDay(ctx context.Context, date time.Time) (model.UnavailableDay, error)
	ListUnavailableDays(ctx context.Context, from, to time.Time) ([]model.UnavailableDay, error)
	DeleteUnavailableDay(ctx context.Context, date time.Time) error

	CreateTimeRange(ctx context.Context, r *model.UnavailableTimeRange) error
	ListTimeRanges(ctx context.Context, date time.Time) ([]model.UnavailableTimeRange, error)
	DeleteTimeRange(ctx context.Context, id string) error
}

type PatientStore interface {
	CreatePatient(ctx context.Context, p *model.Patient) error
	GetPatient(ctx context.Context, id string) (model.Patient, error)
	FindPatientByPhone(ctx context.Context, phone string) (model.Patient, error)
	UpdatePatient(ctx context.Context, p *model.Patient) error
	DeletePatient(ctx context.Context, id string) error
	ListPatients(ctx context.Context, limit, offset int) ([]model.Patient, error)
}

// AppointmentStore covers reads and administrative writes. Booking and
// cancellation writes go through Tx.
type AppointmentStore interface {
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	ListAppointments(ctx context.Context, providerID string, date time.Time) ([]model.Appointment, error)
	ScheduledTimes(ctx context.Context, providerID string, date time.Time) ([]model.TimeOfDay, error)
	DeleteAppointment(ctx context.Context, id string) error
}

type ReferenceStore interface {
	ListReference(ctx context.Context, kind model.ReferenceKind) ([]model.ReferenceItem, error)
	ReferenceExists(ctx context.Context, kind model.ReferenceKind, id int64) (bool, error)
}

// Tx is the unit of work for the writes that must commit together: an
// appointment with its token and event, or a token consumption with the
// cancellation it authorises.
type Tx interface {
	InsertAppointment(ctx context.Context, a *model.Appointment) error
	GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error)
	MarkAppointmentCancelled(ctx context.Context, id string, at time.Time) error
	GetPatient(ctx context.Context, id string) (model.Patient, error)

	InsertToken(ctx context.Context, t model.CancellationToken) error
	GetTokenForUpdate(ctx context.Context, hash string) (model.CancellationToken, error)
	ConsumeToken(ctx context.Context, hash string, at time.Time) error
	RevokeTokens(ctx context.Context, appointmentID string, at time.Time) error

	Enqueue(ctx context.Context, evt outbox.Event) error
}

// Store aggregates every repository and the transaction runner.
type Store interface {
	Schedules() ScheduleStore
	Exceptions() ExceptionStore
	Patients() PatientStore
	Appointments() AppointmentStore
	Reference() ReferenceStore

	// InTx runs fn in one transaction. Returning an error rolls back every
	// write fn made through tx.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

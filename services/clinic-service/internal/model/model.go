package model

import "time"

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCancelled AppointmentStatus = "cancelled"
)

// WorkScheduleEntry is a provider's recurring hours for one weekday.
// At most one active entry exists per (ProviderID, DayOfWeek).
type WorkScheduleEntry struct {
	ID         string
	ProviderID string
	DayOfWeek  time.Weekday
	Start      TimeOfDay
	End        TimeOfDay
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UnavailableDay blocks a whole calendar date.
type UnavailableDay struct {
	Date      time.Time
	Reason    string
	CreatedAt time.Time
}

// UnavailableTimeRange blocks [Start, End) on Date.
type UnavailableTimeRange struct {
	ID        string
	Date      time.Time
	Start     TimeOfDay
	End       TimeOfDay
	Reason    string
	CreatedAt time.Time
}

func (r UnavailableTimeRange) Contains(t TimeOfDay) bool {
	return r.Start <= t && t < r.End
}

func (r UnavailableTimeRange) Overlaps(start, end TimeOfDay) bool {
	return start < r.End && r.Start < end
}

type Patient struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	BirthDate *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

type Appointment struct {
	ID                string
	ProviderID        string
	PatientID         string
	Date              time.Time
	Time              TimeOfDay
	VisitTypeID       int64
	ConsultTypeID     *int64
	PracticeTypeID    *int64
	HealthInsuranceID *int64
	Notes             string
	Status            AppointmentStatus
	CreatedAt         time.Time
	CancelledAt       *time.Time
}

// ScheduledAt is the appointment start as an instant in the clinic's location.
func (a Appointment) ScheduledAt(loc *time.Location) time.Time {
	return At(a.Date, a.Time, loc)
}

type TokenState string

const (
	TokenIssued   TokenState = "issued"
	TokenConsumed TokenState = "consumed"
	TokenRevoked  TokenState = "revoked"
)

// CancellationToken is the stored half of a cancellation credential. The
// plaintext is never persisted; TokenHash is its hex SHA-256.
type CancellationToken struct {
	TokenHash     string
	AppointmentID string
	IssuedAt      time.Time
	ConsumedAt    *time.Time
	RevokedAt     *time.Time
}

func (t CancellationToken) State() TokenState {
	switch {
	case t.ConsumedAt != nil:
		return TokenConsumed
	case t.RevokedAt != nil:
		return TokenRevoked
	default:
		return TokenIssued
	}
}

// ReferenceKind names one of the lookup tables an appointment points into.
type ReferenceKind string

const (
	VisitTypes      ReferenceKind = "visit_types"
	ConsultTypes    ReferenceKind = "consult_types"
	PracticeTypes   ReferenceKind = "practice_types"
	HealthInsurance ReferenceKind = "health_insurances"
)

type ReferenceItem struct {
	ID          int64
	Name        string
	Description string
}

package handlers

import (
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

type appointmentDTO struct {
	ID                string  `json:"id"`
	ProviderID        string  `json:"provider_id"`
	PatientID         string  `json:"patient_id"`
	AppointmentDate   string  `json:"appointment_date"`
	AppointmentTime   string  `json:"appointment_time"`
	VisitTypeID       int64   `json:"visit_type_id"`
	ConsultTypeID     *int64  `json:"consult_type_id,omitempty"`
	PracticeTypeID    *int64  `json:"practice_type_id,omitempty"`
	HealthInsuranceID *int64  `json:"health_insurance_id,omitempty"`
	Notes             string  `json:"notes,omitempty"`
	Status            string  `json:"status"`
	CreatedAt         string  `json:"created_at,omitempty"`
	CancelledAt       *string `json:"cancelled_at,omitempty"`
}

func toAppointmentDTO(a model.Appointment) appointmentDTO {
	out := appointmentDTO{
		ID:                a.ID,
		ProviderID:        a.ProviderID,
		PatientID:         a.PatientID,
		AppointmentDate:   model.FormatDate(a.Date),
		AppointmentTime:   a.Time.String(),
		VisitTypeID:       a.VisitTypeID,
		ConsultTypeID:     a.ConsultTypeID,
		PracticeTypeID:    a.PracticeTypeID,
		HealthInsuranceID: a.HealthInsuranceID,
		Notes:             a.Notes,
		Status:            string(a.Status),
		CreatedAt:         timestamp(a.CreatedAt),
	}
	if a.CancelledAt != nil {
		s := timestamp(*a.CancelledAt)
		out.CancelledAt = &s
	}
	return out
}

type patientDTO struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone"`
	BirthDate string `json:"birth_date,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func toPatientDTO(p model.Patient) patientDTO {
	out := patientDTO{
		ID:        p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		Phone:     p.Phone,
		CreatedAt: timestamp(p.CreatedAt),
		UpdatedAt: timestamp(p.UpdatedAt),
	}
	if p.BirthDate != nil {
		out.BirthDate = model.FormatDate(*p.BirthDate)
	}
	return out
}

type scheduleDTO struct {
	ID         string `json:"id"`
	ProviderID string `json:"provider_id"`
	DayOfWeek  int    `json:"day_of_week"`
	DayName    string `json:"day_name"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Active     bool   `json:"is_active"`
}

func toScheduleDTO(e model.WorkScheduleEntry) scheduleDTO {
	return scheduleDTO{
		ID:         e.ID,
		ProviderID: e.ProviderID,
		DayOfWeek:  int(e.DayOfWeek),
		DayName:    e.DayOfWeek.String(),
		StartTime:  e.Start.String(),
		EndTime:    e.End.String(),
		Active:     e.Active,
	}
}

type unavailableDayDTO struct {
	Date   string `json:"date"`
	Reason string `json:"reason,omitempty"`
}

type unavailableTimeDTO struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason,omitempty"`
}

func toUnavailableTimeDTO(r model.UnavailableTimeRange) unavailableTimeDTO {
	return unavailableTimeDTO{
		ID:        r.ID,
		Date:      model.FormatDate(r.Date),
		StartTime: r.Start.String(),
		EndTime:   r.End.String(),
		Reason:    r.Reason,
	}
}

type referenceDTO struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// mapSlice converts every element of in, never returning nil so empty
// collections encode as [].
func mapSlice[T, U any](in []T, f func(T) U) []U {
	out := make([]U, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}

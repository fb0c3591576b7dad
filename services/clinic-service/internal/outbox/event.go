package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

// Event types published by the clinic. The Kafka topic name equals EventType.
const (
	AppointmentBooked    = "clinic.appointment.booked.v1"
	AppointmentCancelled = "clinic.appointment.cancelled.v1"
	TokenReissued        = "clinic.cancellation_token.reissued.v1"
)

// Event is the domain event envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// NewEvent marshals payload as JSON into an appointment event.
func NewEvent(eventType, appointmentID string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   appointmentID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}

// AppointmentPayload is the body of booked and cancelled events. It never
// carries cancellation token material.
type AppointmentPayload struct {
	AppointmentID string `json:"appointment_id"`
	ProviderID    string `json:"provider_id"`
	PatientID     string `json:"patient_id"`
	Date          string `json:"appointment_date"`
	Time          string `json:"appointment_time"`
	ScheduledAt   string `json:"scheduled_at"`
	Status        string `json:"status"`
	OccurredAt    string `json:"occurred_at"`
}

// AppointmentEvent builds an eventType event describing a.
func AppointmentEvent(eventType string, a model.Appointment, loc *time.Location, occurredAt time.Time) (Event, error) {
	return NewEvent(eventType, a.ID, AppointmentPayload{
		AppointmentID: a.ID,
		ProviderID:    a.ProviderID,
		PatientID:     a.PatientID,
		Date:          model.FormatDate(a.Date),
		Time:          a.Time.String(),
		ScheduledAt:   a.ScheduledAt(loc).UTC().Format(time.RFC3339),
		Status:        string(a.Status),
		OccurredAt:    occurredAt.UTC().Format(time.RFC3339Nano),
	})
}

package outbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

func TestAppointmentEvent(t *testing.T) {
	appt := model.Appointment{
		ID:         "a-1",
		ProviderID: "default",
		PatientID:  "p-1",
		Date:       time.Date(2030, 6, 3, 0, 0, 0, 0, time.UTC),
		Time:       10 * 60,
		Status:     model.StatusScheduled,
	}
	loc := time.FixedZone("UTC-3", -3*60*60)
	evt, err := AppointmentEvent(AppointmentBooked, appt, loc, time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("AppointmentEvent failed: %v", err)
	}
	if evt.EventType != AppointmentBooked || evt.AggregateID != "a-1" || evt.AggregateType != "appointment" {
		t.Fatalf("unexpected envelope: %+v", evt)
	}

	var payload AppointmentPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if payload.Time != "10:00" || payload.Date != "2030-06-03" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.ScheduledAt != "2030-06-03T13:00:00Z" {
		t.Fatalf("expected scheduled_at in UTC, got %s", payload.ScheduledAt)
	}
}

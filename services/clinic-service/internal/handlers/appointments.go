package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/patients"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/storage"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/telemetry"
)

type AppointmentHandler struct {
	calc            *availability.Calculator
	booking         *booking.Service
	patients        *patients.Service
	appointments    storage.AppointmentStore
	defaultProvider string
	logger          *slog.Logger
	metrics         *telemetry.Metrics
}

func NewAppointmentHandler(calc *availability.Calculator, bookingSvc *booking.Service, patientSvc *patients.Service, appointments storage.AppointmentStore, defaultProvider string, logger *slog.Logger, metrics *telemetry.Metrics) *AppointmentHandler {
	if metrics == nil {
		metrics = telemetry.Nop()
	}
	return &AppointmentHandler{
		calc:            calc,
		booking:         bookingSvc,
		patients:        patientSvc,
		appointments:    appointments,
		defaultProvider: defaultProvider,
		logger:          logger,
		metrics:         metrics,
	}
}

func (h *AppointmentHandler) provider(r *http.Request) string {
	if p := strings.TrimSpace(r.URL.Query().Get("provider_id")); p != "" {
		return p
	}
	return h.defaultProvider
}

// AvailableTimes lists the bookable "HH:MM" starts on a date, ascending.
func (h *AppointmentHandler) AvailableTimes(w http.ResponseWriter, r *http.Request) {
	date, err := model.ParseDate(r.PathValue("date"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return
	}
	slots, err := h.calc.Slots(r.Context(), h.provider(r), date)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	telemetry.Add(r.Context(), h.metrics.SlotQueries, "")
	httpx.WriteJSON(w, http.StatusOK, availability.Strings(slots))
}

type bookResponse struct {
	appointmentDTO
	CancellationToken string `json:"cancellation_token"`
	// Older clients read the camelCase key.
	CancellationTokenCamel string `json:"cancellationToken"`
	PatientCreated         bool   `json:"patient_created"`
}

// Book reserves a slot. Without patient_id the patient is looked up by phone
// and created when unknown.
func (h *AppointmentHandler) Book(w http.ResponseWriter, r *http.Request) {
	p, err := decodePayload(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	req, err := bookingRequest(p)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var created bool
	if req.PatientID == "" {
		in := patientInput(p)
		if in.Phone == "" {
			httpx.WriteError(w, http.StatusBadRequest, "missing_patient", "patient_id or patient phone is required")
			return
		}
		// Reject the booking before a patient row is written for it.
		if err := h.booking.Check(r.Context(), req); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		patient, isNew, err := h.patients.FindOrCreateByPhone(r.Context(), in)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		req.PatientID, created = patient.ID, isNew
	}

	res, err := h.booking.Book(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, bookResponse{
		appointmentDTO:         toAppointmentDTO(res.Appointment),
		CancellationToken:      res.CancellationToken,
		CancellationTokenCamel: res.CancellationToken,
		PatientCreated:         created,
	})
}

func bookingRequest(p payload) (booking.Request, error) {
	req := booking.Request{
		ProviderID: p.str("provider_id", "providerId"),
		PatientID:  p.str("patient_id", "patientId"),
		Notes:      p.str("notes", "observations"),
	}
	rawDate := p.str("appointment_date", "appointmentDate", "date")
	if rawDate == "" {
		return req, model.Validation("invalid_date", "appointment_date is required")
	}
	date, err := model.ParseDate(rawDate)
	if err != nil {
		return req, model.Validation("invalid_date", err.Error())
	}
	req.Date = date

	rawTime := p.str("appointment_time", "appointmentTime", "time")
	if rawTime == "" {
		return req, model.Validation("invalid_time", "appointment_time is required")
	}
	t, err := model.ParseTimeOfDay(rawTime)
	if err != nil {
		return req, model.Validation("invalid_time", err.Error())
	}
	req.Time = t

	visit, err := p.id("visit_type_id", "visit_type_id", "visitTypeId", "visit_type", "visitType")
	if err != nil {
		return req, err
	}
	if visit != nil {
		req.VisitTypeID = *visit
	}
	if req.ConsultTypeID, err = p.id("consult_type_id", "consult_type_id", "consultTypeId", "consult_type", "consultType"); err != nil {
		return req, err
	}
	if req.PracticeTypeID, err = p.id("practice_type_id", "practice_type_id", "practiceTypeId", "practice_type", "practiceType"); err != nil {
		return req, err
	}
	if req.HealthInsuranceID, err = p.id("health_insurance_id", "health_insurance_id", "healthInsuranceId", "health_insurance", "healthInsurance"); err != nil {
		return req, err
	}
	return req, nil
}

type listAppointmentsResponse struct {
	Date         string           `json:"date"`
	Appointments []appointmentDTO `json:"appointments"`
}

// List returns the day's appointments of every status, ordered by time.
func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	date := model.DateOf(time.Now())
	if raw != "" {
		var err error
		if date, err = model.ParseDate(raw); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}
	}
	items, err := h.appointments.ListAppointments(r.Context(), h.provider(r), date)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, listAppointmentsResponse{
		Date:         model.FormatDate(date),
		Appointments: mapSlice(items, toAppointmentDTO),
	})
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.appointments.GetAppointment(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentDTO(a))
}

// Delete removes the appointment row and its tokens. Patients cancel through
// the token flow instead.
func (h *AppointmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.appointments.DeleteAppointment(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.InfoContext(r.Context(), "appointment deleted", "appointment_id", id)
	w.WriteHeader(http.StatusNoContent)
}

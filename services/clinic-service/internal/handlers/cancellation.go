package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/cancellation"
)

type CancellationHandler struct {
	svc    *cancellation.Service
	logger *slog.Logger
}

func NewCancellationHandler(svc *cancellation.Service, logger *slog.Logger) *CancellationHandler {
	return &CancellationHandler{svc: svc, logger: logger}
}

type tokenSummaryResponse struct {
	Appointment        appointmentDTO `json:"appointment"`
	PatientName        string         `json:"patient_name,omitempty"`
	CanCancel          bool           `json:"can_cancel"`
	CancelDeadline     string         `json:"cancel_deadline"`
	MinimumNoticeHours float64        `json:"minimum_notice_hours"`
}

type reissueResponse struct {
	Token         string `json:"token"`
	AppointmentID string `json:"appointment_id"`
}

// Verify has two shapes. With a token it describes the appointment the token
// would cancel. With appointment_id it replaces the appointment's token and
// returns the new one; phone_number, when sent, must match the patient.
func (h *CancellationHandler) Verify(w http.ResponseWriter, r *http.Request) {
	p, err := decodePayload(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if token := p.str("token", "cancellation_token", "cancellationToken"); token != "" {
		sum, err := h.svc.Inspect(r.Context(), token)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		out := tokenSummaryResponse{
			Appointment:        toAppointmentDTO(sum.Appointment),
			CanCancel:          sum.CanCancel,
			CancelDeadline:     sum.Deadline.UTC().Format(time.RFC3339),
			MinimumNoticeHours: h.svc.MinimumNotice().Hours(),
		}
		if sum.Patient.ID != "" {
			out.PatientName = sum.Patient.FullName()
		}
		httpx.WriteJSON(w, http.StatusOK, out)
		return
	}

	id := p.str("appointment_id", "appointmentId")
	phone := p.str("phone_number", "phoneNumber", "phone")
	if id == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_fields", "token or appointment_id is required")
		return
	}
	token, appt, err := h.svc.Reissue(r.Context(), id, phone)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, reissueResponse{Token: token, AppointmentID: appt.ID})
}

type cancelResponse struct {
	Status        string `json:"status"`
	AppointmentID string `json:"appointment_id"`
}

// Cancel redeems a token and cancels its appointment.
func (h *CancellationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	p, err := decodePayload(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	token := p.str("token", "cancellation_token", "cancellationToken")
	if token == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_token", "token is required")
		return
	}
	appt, err := h.svc.VerifyAndCancel(r.Context(), token)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cancelResponse{Status: string(appt.Status), AppointmentID: appt.ID})
}

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/patients"
)

type PatientHandler struct {
	svc    *patients.Service
	logger *slog.Logger
}

func NewPatientHandler(svc *patients.Service, logger *slog.Logger) *PatientHandler {
	return &PatientHandler{svc: svc, logger: logger}
}

func patientInput(p payload) patients.Input {
	return patients.Input{
		FirstName: p.str("first_name", "firstName", "name"),
		LastName:  p.str("last_name", "lastName", "surname"),
		Email:     p.str("email"),
		Phone:     p.str("phone", "phone_number", "phoneNumber"),
		BirthDate: p.str("birth_date", "birthDate"),
	}
}

func (h *PatientHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := decodePayload(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	patient, err := h.svc.Create(r.Context(), patientInput(p))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toPatientDTO(patient))
}

func (h *PatientHandler) Get(w http.ResponseWriter, r *http.Request) {
	patient, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toPatientDTO(patient))
}

func (h *PatientHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context(), queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, mapSlice(items, toPatientDTO))
}

// Update applies the non-empty fields of the payload.
func (h *PatientHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, err := decodePayload(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	patient, err := h.svc.Update(r.Context(), r.PathValue("id"), patientInput(p))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toPatientDTO(patient))
}

func (h *PatientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/schedule"
)

type ScheduleHandler struct {
	svc    *schedule.Service
	logger *slog.Logger
}

func NewScheduleHandler(svc *schedule.Service, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{svc: svc, logger: logger}
}

func entryInput(p payload) (schedule.EntryInput, error) {
	active, err := p.boolean("is_active", "isActive", "active", "is_working_day", "isWorkingDay")
	if err != nil {
		return schedule.EntryInput{}, err
	}
	return schedule.EntryInput{
		ProviderID: p.str("provider_id", "providerId"),
		DayOfWeek:  p.str("day_of_week", "dayOfWeek", "day"),
		Start:      p.str("start_time", "startTime", "start"),
		End:        p.str("end_time", "endTime", "end"),
		Active:     active,
	}, nil
}

func (h *ScheduleHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListEntries(r.Context(), r.URL.Query().Get("provider_id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, mapSlice(items, toScheduleDTO))
}

func (h *ScheduleHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.GetEntry(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toScheduleDTO(e))
}

func (h *ScheduleHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	p, err := decodePayload(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	in, err := entryInput(p)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	e, err := h.svc.CreateEntry(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toScheduleDTO(e))
}

func (h *ScheduleHandler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	p, err := decodePayload(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	in, err := entryInput(p)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	e, err := h.svc.UpdateEntry(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toScheduleDTO(e))
}

func (h *ScheduleHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteEntry(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScheduleHandler) ListUnavailableDays(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days, err := h.svc.ListUnavailableDays(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, mapSlice(days, func(d model.UnavailableDay) unavailableDayDTO {
		return unavailableDayDTO{Date: model.FormatDate(d.Date), Reason: d.Reason}
	}))
}

type unavailableDayStatus struct {
	Date          string `json:"date"`
	IsUnavailable bool   `json:"is_unavailable"`
	Reason        string `json:"reason,omitempty"`
}

// GetUnavailableDay reports whether a date is blocked. A free date is not an
// error.
func (h *ScheduleHandler) GetUnavailableDay(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	d, err := h.svc.GetUnavailableDay(r.Context(), date)
	if model.KindOf(err) == model.KindNotFound {
		httpx.WriteJSON(w, http.StatusOK, unavailableDayStatus{Date: date})
		return
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, unavailableDayStatus{Date: model.FormatDate(d.Date), IsUnavailable: true, Reason: d.Reason})
}

func (h *ScheduleHandler) MarkDayUnavailable(w http.ResponseWriter, r *http.Request) {
	p, err := decodePayload(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	d, err := h.svc.MarkDayUnavailable(r.Context(), p.str("date", "selectedDate", "selected_date", "unavailable_date", "unavailableDate"), p.str("reason"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, unavailableDayDTO{Date: model.FormatDate(d.Date), Reason: d.Reason})
}

func (h *ScheduleHandler) DeleteUnavailableDay(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteUnavailableDay(r.Context(), r.PathValue("date")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListUnavailableTimes takes the date from the path or the query string.
// Without one every range is listed.
func (h *ScheduleHandler) ListUnavailableTimes(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if date == "" {
		date = r.URL.Query().Get("date")
	}
	items, err := h.svc.ListUnavailableTimes(r.Context(), date)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, mapSlice(items, toUnavailableTimeDTO))
}

func (h *ScheduleHandler) AddUnavailableTime(w http.ResponseWriter, r *http.Request) {
	p, err := decodePayload(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	tr, err := h.svc.AddUnavailableTime(r.Context(),
		p.str("date", "selectedDate", "selected_date", "unavailable_date", "unavailableDate"),
		p.str("start_time", "startTime", "start"),
		p.str("end_time", "endTime", "end"),
		p.str("reason"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toUnavailableTimeDTO(tr))
}

func (h *ScheduleHandler) DeleteUnavailableTime(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteUnavailableTime(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

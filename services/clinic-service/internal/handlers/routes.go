// Package handlers is the clinic's HTTP surface. Handlers translate between
// JSON and the core services; they hold no booking logic of their own.
package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

type Routes struct {
	Appointments *AppointmentHandler
	Patients     *PatientHandler
	Cancellation *CancellationHandler
	Reference    *ReferenceHandler
	Schedule     *ScheduleHandler
	Auth         *AuthHandler

	Verifier auth.Verifier
	// Strict guards the token and login endpoints, which are the ones worth
	// brute-forcing. Nil leaves them unthrottled.
	Strict httpx.Middleware
}

// Register mounts every route on mux.
func (rt Routes) Register(mux *http.ServeMux) {
	admin := func(h http.HandlerFunc) http.Handler {
		return httpx.Chain(h, RequireAuth(rt.Verifier), RequireRole(RoleAdmin))
	}
	strict := func(h http.HandlerFunc) http.Handler {
		if rt.Strict == nil {
			return h
		}
		return rt.Strict(h)
	}

	a := rt.Appointments
	mux.HandleFunc("GET /available-times/{date}", a.AvailableTimes)
	mux.HandleFunc("POST /appointments", a.Book)
	mux.HandleFunc("POST /appointments/create", a.Book)
	mux.Handle("GET /appointments", admin(a.List))
	mux.Handle("GET /appointments/{id}", admin(a.Get))
	mux.Handle("DELETE /appointments/{id}", admin(a.Delete))

	p := rt.Patients
	mux.HandleFunc("POST /patients", p.Create)
	mux.Handle("GET /patients", admin(p.List))
	mux.Handle("GET /patients/{id}", admin(p.Get))
	mux.Handle("PUT /patients/{id}", admin(p.Update))
	mux.Handle("DELETE /patients/{id}", admin(p.Delete))

	c := rt.Cancellation
	mux.Handle("POST /cancel-appointment/verify", strict(c.Verify))
	mux.Handle("POST /cancel-appointment", strict(c.Cancel))

	ref := rt.Reference
	mux.HandleFunc("GET /visit-types", ref.List(model.VisitTypes))
	mux.HandleFunc("GET /consult-types", ref.List(model.ConsultTypes))
	mux.HandleFunc("GET /practice-types", ref.List(model.PracticeTypes))
	mux.HandleFunc("GET /health-insurance", ref.List(model.HealthInsurance))

	s := rt.Schedule
	mux.Handle("GET /work-schedule", admin(s.ListEntries))
	mux.Handle("GET /work-schedule/{id}", admin(s.GetEntry))
	mux.Handle("POST /work-schedule", admin(s.CreateEntry))
	mux.Handle("PUT /work-schedule/{id}", admin(s.UpdateEntry))
	mux.Handle("DELETE /work-schedule/{id}", admin(s.DeleteEntry))

	mux.HandleFunc("GET /unavailable-days", s.ListUnavailableDays)
	mux.HandleFunc("GET /unavailable-days/{date}", s.GetUnavailableDay)
	mux.Handle("POST /unavailable-days", admin(s.MarkDayUnavailable))
	mux.Handle("DELETE /unavailable-days/{date}", admin(s.DeleteUnavailableDay))

	mux.HandleFunc("GET /unavailable-times", s.ListUnavailableTimes)
	mux.HandleFunc("GET /unavailable-times/{date}", s.ListUnavailableTimes)
	mux.Handle("POST /unavailable-times", admin(s.AddUnavailableTime))
	mux.Handle("DELETE /unavailable-times/{id}", admin(s.DeleteUnavailableTime))

	if rt.Auth != nil {
		mux.Handle("POST /auth/login", strict(rt.Auth.Login))
	}
}

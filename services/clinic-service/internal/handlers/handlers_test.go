package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/cancellation"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/patients"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/schedule"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/storage/memory"
)

var (
	secret = []byte("test-secret")
	now    = time.Date(2030, 6, 1, 9, 0, 0, 0, time.UTC)
)

const monday = "2030-06-03"

type server struct {
	t     *testing.T
	srv   *httptest.Server
	store *memory.Store
}

func newServer(t *testing.T) *server {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	for day := time.Monday; day <= time.Friday; day++ {
		require.NoError(t, store.Schedules().CreateScheduleEntry(ctx, &model.WorkScheduleEntry{
			ProviderID: "default", DayOfWeek: day, Start: 9 * 60, End: 17 * 60, Active: true,
		}))
	}

	clock := func() time.Time { return now }
	calc := availability.NewCalculator(store.Schedules(), store.Exceptions(), store.Appointments(),
		availability.Policy{Granularity: 20 * time.Minute, HidePast: true}).WithClock(clock)
	tokens := cancellation.NewService(store, cancellation.Config{}, nil, nil).WithClock(clock)
	bookings := booking.NewService(store, calc, tokens, booking.Config{}, nil, nil).WithClock(clock)
	patientSvc := patients.NewService(store.Patients(), nil)
	logger := handlersLogger()

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	mux := http.NewServeMux()
	handlers.Routes{
		Appointments: handlers.NewAppointmentHandler(calc, bookings, patientSvc, store.Appointments(), "default", logger, nil),
		Patients:     handlers.NewPatientHandler(patientSvc, logger),
		Cancellation: handlers.NewCancellationHandler(tokens, logger),
		Reference:    handlers.NewReferenceHandler(store.Reference(), logger),
		Schedule:     handlers.NewScheduleHandler(schedule.NewService(store.Schedules(), store.Exceptions(), "default", logger), logger),
		Auth: handlers.NewAuthHandler(handlers.LoginConfig{
			Email: "admin@clinic.test", PasswordHash: hash, Secret: secret, Issuer: "clinic",
		}, logger),
		Verifier: auth.Verifier{Secret: secret, Issuer: "clinic"},
	}.Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &server{t: t, srv: srv, store: store}
}

func (s *server) do(method, path string, body any, bearer string) (int, []byte) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := s.srv.Client().Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(s.t, err)
	return resp.StatusCode, out.Bytes()
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func (s *server) token(role string) string {
	s.t.Helper()
	tok, err := auth.SignHS256(auth.NewSessionClaims("u1", "u1@clinic.test", role, "clinic", time.Hour, time.Now()), secret)
	require.NoError(s.t, err)
	return tok
}

func (s *server) book(body map[string]any) (int, map[string]any) {
	status, raw := s.do(http.MethodPost, "/appointments", body, "")
	return status, decode[map[string]any](s.t, raw)
}

func bookingBody(at string) map[string]any {
	return map[string]any{
		"appointmentDate": monday,
		"appointmentTime": at,
		"visitTypeId":     "1",
		"firstName":       "Ana",
		"lastName":        "Diaz",
		"phoneNumber":     "+54 11 5555 0000",
	}
}

func TestBookAndCancelFlow(t *testing.T) {
	s := newServer(t)

	status, raw := s.do(http.MethodGet, "/available-times/"+monday, nil, "")
	require.Equal(t, http.StatusOK, status)
	slots := decode[[]string](t, raw)
	require.Len(t, slots, 24)
	assert.Equal(t, "09:00", slots[0])
	assert.Equal(t, "16:40", slots[23])

	status, booked := s.book(bookingBody("10:00"))
	require.Equal(t, http.StatusCreated, status, booked)
	token, _ := booked["cancellation_token"].(string)
	require.Len(t, token, 43)
	assert.Equal(t, token, booked["cancellationToken"])
	assert.Equal(t, true, booked["patient_created"])
	assert.Equal(t, "10:00", booked["appointment_time"])
	assert.Equal(t, "scheduled", booked["status"])

	_, raw = s.do(http.MethodGet, "/available-times/"+monday, nil, "")
	assert.NotContains(t, decode[[]string](t, raw), "10:00")

	status, again := s.book(bookingBody("10:00"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "slot_unavailable", again["code"])

	status, raw = s.do(http.MethodPost, "/cancel-appointment/verify", map[string]any{"token": token}, "")
	require.Equal(t, http.StatusOK, status)
	summary := decode[map[string]any](t, raw)
	assert.Equal(t, true, summary["can_cancel"])
	assert.Equal(t, "Ana Diaz", summary["patient_name"])

	status, raw = s.do(http.MethodPost, "/cancel-appointment", map[string]any{"token": token}, "")
	require.Equal(t, http.StatusOK, status)
	cancelled := decode[map[string]any](t, raw)
	assert.Equal(t, "cancelled", cancelled["status"])
	assert.Equal(t, booked["id"], cancelled["appointment_id"])

	status, raw = s.do(http.MethodPost, "/cancel-appointment", map[string]any{"token": token}, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "token_consumed", decode[map[string]any](t, raw)["code"])

	_, raw = s.do(http.MethodGet, "/available-times/"+monday, nil, "")
	assert.Contains(t, decode[[]string](t, raw), "10:00")
}

func TestBookReusesPatientByPhone(t *testing.T) {
	s := newServer(t)

	status, first := s.book(bookingBody("09:00"))
	require.Equal(t, http.StatusCreated, status)
	status, second := s.book(bookingBody("09:20"))
	require.Equal(t, http.StatusCreated, status)

	assert.Equal(t, first["patient_id"], second["patient_id"])
	assert.Equal(t, false, second["patient_created"])
}

func TestBookRejections(t *testing.T) {
	s := newServer(t)

	cases := []struct {
		name   string
		edit   func(map[string]any)
		status int
		code   string
	}{
		{"misaligned", func(b map[string]any) { b["appointmentTime"] = "10:10" }, http.StatusBadRequest, "misaligned_time"},
		{"bad date", func(b map[string]any) { b["appointmentDate"] = "03/06/2030" }, http.StatusBadRequest, "invalid_date"},
		{"bad time", func(b map[string]any) { b["appointmentTime"] = "25:00" }, http.StatusBadRequest, "invalid_time"},
		{"unknown visit type", func(b map[string]any) { b["visitTypeId"] = 99 }, http.StatusBadRequest, "invalid_visit_types"},
		{"missing visit type", func(b map[string]any) { delete(b, "visitTypeId") }, http.StatusBadRequest, "missing_visit_type"},
		{"outside hours", func(b map[string]any) { b["appointmentTime"] = "17:00" }, http.StatusBadRequest, "slot_unavailable"},
		{"no patient", func(b map[string]any) { delete(b, "phoneNumber") }, http.StatusBadRequest, "missing_patient"},
		{"bad phone", func(b map[string]any) { b["phoneNumber"] = "12" }, http.StatusBadRequest, "invalid_phone"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := bookingBody("11:00")
			tc.edit(body)
			status, out := s.book(body)
			assert.Equal(t, tc.status, status, out)
			assert.Equal(t, tc.code, out["code"])
		})
	}
}

func TestCancelRejectsGarbageToken(t *testing.T) {
	s := newServer(t)

	status, raw := s.do(http.MethodPost, "/cancel-appointment", map[string]any{"token": "not-a-token"}, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "token_invalid", decode[map[string]any](t, raw)["code"])

	status, _ = s.do(http.MethodPost, "/cancel-appointment", map[string]any{}, "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestReissueRevokesOldToken(t *testing.T) {
	s := newServer(t)

	_, booked := s.book(bookingBody("13:00"))
	oldToken := booked["cancellation_token"].(string)

	status, raw := s.do(http.MethodPost, "/cancel-appointment/verify", map[string]any{
		"appointmentId": booked["id"], "phoneNumber": "541155550000",
	}, "")
	require.Equal(t, http.StatusOK, status, string(raw))
	fresh := decode[map[string]any](t, raw)["token"].(string)
	assert.NotEqual(t, oldToken, fresh)

	status, raw = s.do(http.MethodPost, "/cancel-appointment", map[string]any{"token": oldToken}, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "token_revoked", decode[map[string]any](t, raw)["code"])

	status, _ = s.do(http.MethodPost, "/cancel-appointment/verify", map[string]any{
		"appointment_id": booked["id"], "phone_number": "1100000000",
	}, "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(http.MethodPost, "/cancel-appointment", map[string]any{"token": fresh}, "")
	assert.Equal(t, http.StatusOK, status)
}

func TestReissueByAppointmentID(t *testing.T) {
	s := newServer(t)

	_, booked := s.book(bookingBody("14:00"))
	oldToken := booked["cancellation_token"].(string)

	status, raw := s.do(http.MethodPost, "/cancel-appointment/verify", map[string]any{"appointment_id": booked["id"]}, "")
	require.Equal(t, http.StatusOK, status, string(raw))
	fresh := decode[map[string]any](t, raw)["token"].(string)
	assert.NotEqual(t, oldToken, fresh)

	status, raw = s.do(http.MethodPost, "/cancel-appointment/verify", map[string]any{
		"appointmentId": "5b0e3c1e-8a44-4f7e-9c43-0d6d3f1f2a10",
	}, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "appointment_not_found", decode[map[string]any](t, raw)["code"])

	status, _ = s.do(http.MethodPost, "/cancel-appointment", map[string]any{"token": fresh}, "")
	assert.Equal(t, http.StatusOK, status)
}

func TestRejectedBookingCreatesNoPatient(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	status, _ := s.book(bookingBody("15:00"))
	require.Equal(t, http.StatusCreated, status)

	rival := bookingBody("15:00")
	rival["phoneNumber"] = "+54 11 4444 0000"
	status, out := s.book(rival)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "slot_unavailable", out["code"])

	unknownVisit := bookingBody("15:20")
	unknownVisit["phoneNumber"] = "+54 11 3333 0000"
	unknownVisit["visitTypeId"] = 99
	status, _ = s.book(unknownVisit)
	assert.Equal(t, http.StatusBadRequest, status)

	all, err := s.store.Patients().ListPatients(ctx, 50, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	s := newServer(t)
	s.book(bookingBody("09:40"))

	status, _ := s.do(http.MethodGet, "/appointments?date="+monday, nil, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(http.MethodGet, "/appointments?date="+monday, nil, s.token("patient"))
	assert.Equal(t, http.StatusForbidden, status)

	status, raw := s.do(http.MethodGet, "/appointments?date="+monday, nil, s.token(handlers.RoleAdmin))
	require.Equal(t, http.StatusOK, status)
	list := decode[struct {
		Date         string           `json:"date"`
		Appointments []map[string]any `json:"appointments"`
	}](t, raw)
	assert.Equal(t, monday, list.Date)
	require.Len(t, list.Appointments, 1)

	for _, path := range []string{"/work-schedule", "/patients"} {
		status, _ = s.do(http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, status, path)
		status, _ = s.do(http.MethodGet, path, nil, s.token("patient"))
		assert.Equal(t, http.StatusForbidden, status, path)
	}
	status, raw = s.do(http.MethodGet, "/work-schedule", nil, s.token(handlers.RoleAdmin))
	require.Equal(t, http.StatusOK, status)
	entries := decode[[]map[string]any](t, raw)
	require.Len(t, entries, 5)
	status, _ = s.do(http.MethodGet, "/work-schedule/"+entries[0]["id"].(string), nil, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	id := list.Appointments[0]["id"].(string)
	status, _ = s.do(http.MethodDelete, "/appointments/"+id, nil, s.token(handlers.RoleAdmin))
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = s.do(http.MethodGet, "/appointments/"+id, nil, s.token(handlers.RoleAdmin))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestLogin(t *testing.T) {
	s := newServer(t)

	status, _ := s.do(http.MethodPost, "/auth/login", map[string]any{"email": "admin@clinic.test", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, raw := s.do(http.MethodPost, "/auth/login", map[string]any{"email": "Admin@Clinic.test", "password": "s3cret-pass"}, "")
	require.Equal(t, http.StatusOK, status)
	tok := decode[map[string]any](t, raw)["token"].(string)

	status, _ = s.do(http.MethodGet, "/patients", nil, tok)
	assert.Equal(t, http.StatusOK, status)
}

func TestScheduleAdministration(t *testing.T) {
	s := newServer(t)
	admin := s.token(handlers.RoleAdmin)

	status, raw := s.do(http.MethodPost, "/unavailable-times", map[string]any{
		"date": monday, "startTime": "12:00", "endTime": "13:00", "reason": "lunch",
	}, admin)
	require.Equal(t, http.StatusCreated, status, string(raw))

	status, _ = s.do(http.MethodPost, "/unavailable-times", map[string]any{
		"date": monday, "start_time": "12:40", "end_time": "14:00",
	}, admin)
	assert.Equal(t, http.StatusConflict, status)

	status, raw = s.do(http.MethodPost, "/unavailable-times", map[string]any{
		"selectedDate": monday, "startTime": "15:00", "endTime": "15:20",
	}, admin)
	require.Equal(t, http.StatusCreated, status, string(raw))
	assert.Equal(t, monday, decode[map[string]any](t, raw)["date"])

	_, raw = s.do(http.MethodGet, "/available-times/"+monday, nil, "")
	slots := decode[[]string](t, raw)
	assert.Len(t, slots, 20)
	assert.NotContains(t, slots, "12:40")
	assert.Contains(t, slots, "13:00")
	assert.NotContains(t, slots, "15:00")

	status, raw = s.do(http.MethodGet, "/unavailable-days/"+monday, nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, decode[map[string]any](t, raw)["is_unavailable"])

	status, _ = s.do(http.MethodPost, "/unavailable-days", map[string]any{"date": monday, "reason": "holiday"}, admin)
	require.Equal(t, http.StatusCreated, status)

	_, raw = s.do(http.MethodGet, "/available-times/"+monday, nil, "")
	assert.Equal(t, "[]\n", string(raw))

	status, _ = s.do(http.MethodPost, "/work-schedule", map[string]any{
		"dayOfWeek": "saturday", "startTime": "09:00", "endTime": "12:00",
	}, admin)
	assert.Equal(t, http.StatusCreated, status)
	_, raw = s.do(http.MethodGet, "/available-times/2030-06-08", nil, "")
	assert.Len(t, decode[[]string](t, raw), 9)
}

func TestReferenceData(t *testing.T) {
	s := newServer(t)

	status, raw := s.do(http.MethodGet, "/visit-types", nil, "")
	require.Equal(t, http.StatusOK, status)
	items := decode[[]map[string]any](t, raw)
	require.Len(t, items, 3)
	assert.Equal(t, "In-Person", items[0]["name"])

	status, raw = s.do(http.MethodGet, "/health-insurance", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]map[string]any](t, raw), 4)
}

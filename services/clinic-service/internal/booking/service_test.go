package booking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/cancellation"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/storage/memory"
)

var (
	monday = time.Date(2030, 6, 3, 0, 0, 0, 0, time.UTC)
	now    = time.Date(2030, 6, 1, 9, 0, 0, 0, time.UTC)
)

type env struct {
	store     *memory.Store
	calc      *availability.Calculator
	svc       *booking.Service
	patientID string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	for day := time.Monday; day <= time.Friday; day++ {
		require.NoError(t, store.Schedules().CreateScheduleEntry(ctx, &model.WorkScheduleEntry{
			ProviderID: "default", DayOfWeek: day, Start: 9 * 60, End: 17 * 60, Active: true,
		}))
	}
	p := model.Patient{FirstName: "Ana", LastName: "Diaz", Phone: "1122334455"}
	require.NoError(t, store.Patients().CreatePatient(ctx, &p))

	clock := func() time.Time { return now }
	calc := availability.NewCalculator(store.Schedules(), store.Exceptions(), store.Appointments(),
		availability.Policy{Granularity: 20 * time.Minute, HidePast: true}).WithClock(clock)
	tokens := cancellation.NewService(store, cancellation.Config{}, nil, nil).WithClock(clock)
	svc := booking.NewService(store, calc, tokens, booking.Config{}, nil, nil).WithClock(clock)
	return &env{store: store, calc: calc, svc: svc, patientID: p.ID}
}

func (e *env) request(t model.TimeOfDay) booking.Request {
	return booking.Request{PatientID: e.patientID, Date: monday, Time: t, VisitTypeID: 1}
}

func TestBookRemovesSlot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	before, err := e.calc.Slots(ctx, "default", monday)
	require.NoError(t, err)
	require.True(t, availability.Contains(before, 10*60))

	res, err := e.svc.Book(ctx, e.request(10*60))
	require.NoError(t, err)
	assert.NotEmpty(t, res.Appointment.ID)
	assert.NotEmpty(t, res.CancellationToken)
	assert.Equal(t, model.StatusScheduled, res.Appointment.Status)
	assert.Equal(t, "default", res.Appointment.ProviderID)

	after, err := e.calc.Slots(ctx, "default", monday)
	require.NoError(t, err)
	assert.False(t, availability.Contains(after, 10*60))
	assert.Len(t, after, len(before)-1)

	_, err = e.svc.Book(ctx, e.request(10*60))
	require.ErrorIs(t, err, model.ErrSlotConflict)

	events := e.store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, outbox.AppointmentBooked, events[0].EventType)
	assert.Equal(t, res.Appointment.ID, events[0].AggregateID)
}

func TestBookConcurrentSameSlot(t *testing.T) {
	e := newEnv(t)

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := e.svc.Book(context.Background(), e.request(11*60))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case model.KindOf(err) == model.KindSlotConflict:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
	appts, err := e.store.Appointments().ListAppointments(context.Background(), "default", monday)
	require.NoError(t, err)
	assert.Len(t, appts, 1)
}

func TestBookRejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	bogus := int64(999)

	cases := []struct {
		name string
		mut  func(*booking.Request)
		kind model.ErrorKind
		code string
	}{
		{"misaligned", func(r *booking.Request) { r.Time = 10*60 + 10 }, model.KindValidation, "misaligned_time"},
		{"invalid time", func(r *booking.Request) { r.Time = model.MinutesPerDay }, model.KindValidation, "invalid_time"},
		{"missing patient", func(r *booking.Request) { r.PatientID = "" }, model.KindValidation, "missing_patient"},
		{"unknown patient", func(r *booking.Request) { r.PatientID = "nobody" }, model.KindInvalidReference, "invalid_patient"},
		{"past", func(r *booking.Request) { r.Date = time.Date(2030, 5, 27, 0, 0, 0, 0, time.UTC) }, model.KindValidation, "slot_in_past"},
		{"unknown visit type", func(r *booking.Request) { r.VisitTypeID = bogus }, model.KindInvalidReference, "invalid_visit_types"},
		{"unknown insurance", func(r *booking.Request) { r.HealthInsuranceID = &bogus }, model.KindInvalidReference, "invalid_health_insurances"},
		{"outside hours", func(r *booking.Request) { r.Time = 17 * 60 }, model.KindSlotConflict, "slot_unavailable"},
		{"weekend", func(r *booking.Request) { r.Date = time.Date(2030, 6, 8, 0, 0, 0, 0, time.UTC) }, model.KindSlotConflict, "slot_unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := e.request(10 * 60)
			tc.mut(&req)
			_, err := e.svc.Book(ctx, req)
			require.Error(t, err)
			assert.Equal(t, tc.kind, model.KindOf(err))
			var merr *model.Error
			require.ErrorAs(t, err, &merr)
			assert.Equal(t, tc.code, merr.Code)
		})
	}
	assert.Empty(t, e.store.Events())
}

func TestBookBlockedRange(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.store.Exceptions().CreateTimeRange(ctx, &model.UnavailableTimeRange{Date: monday, Start: 12 * 60, End: 13 * 60}))

	_, err := e.svc.Book(ctx, e.request(12*60+40))
	require.ErrorIs(t, err, model.ErrSlotConflict)

	_, err = e.svc.Book(ctx, e.request(13*60))
	require.NoError(t, err)
}

func TestCheckWritesNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	req := e.request(10 * 60)
	req.PatientID = ""
	require.NoError(t, e.svc.Check(ctx, req))

	_, err := e.svc.Book(ctx, e.request(10*60))
	require.NoError(t, err)

	err = e.svc.Check(ctx, req)
	require.ErrorIs(t, err, model.ErrSlotConflict)
	var merr *model.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "slot_unavailable", merr.Code)

	bad := e.request(10*60 + 20)
	bad.VisitTypeID = 99
	require.ErrorIs(t, e.svc.Check(ctx, bad), model.ErrInvalidReference)
	assert.Len(t, e.store.Events(), 1)
}

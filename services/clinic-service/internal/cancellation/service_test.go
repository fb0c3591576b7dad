package cancellation

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/storage"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/storage/memory"
)

var (
	apptDate = time.Date(2030, 6, 3, 0, 0, 0, 0, time.UTC)
	apptTime = model.TimeOfDay(10 * 60)
)

type fixture struct {
	store *memory.Store
	svc   *Service
	now   time.Time
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), now: now}
	f.svc = NewService(f.store, Config{MinimumNotice: 12 * time.Hour}, nil, nil).
		WithClock(func() time.Time { return f.now })
	return f
}

// book stores a scheduled 10:00 appointment and returns its id and token.
func (f *fixture) book(t *testing.T) (string, string) {
	t.Helper()
	ctx := context.Background()
	p := model.Patient{FirstName: "Ana", LastName: "Diaz", Phone: "1122334455"}
	require.NoError(t, f.store.Patients().CreatePatient(ctx, &p))

	var (
		id    string
		token string
	)
	err := f.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		a := model.Appointment{ProviderID: "default", PatientID: p.ID, Date: apptDate, Time: apptTime, VisitTypeID: 1}
		if err := tx.InsertAppointment(ctx, &a); err != nil {
			return err
		}
		id = a.ID
		var err error
		token, err = f.svc.IssueToken(ctx, tx, a.ID)
		return err
	})
	require.NoError(t, err)
	return id, token
}

func TestTokenFormatAndHashOnlyStorage(t *testing.T) {
	f := newFixture(t, apptDate.Add(-48*time.Hour))
	_, token := f.book(t)

	assert.Len(t, token, 43)
	assert.True(t, wellFormed(token))

	stored := f.store.Tokens()
	require.Len(t, stored, 1)
	assert.Equal(t, HashToken(token), stored[0].TokenHash)
	assert.NotContains(t, stored[0].TokenHash, token)
	assert.Len(t, stored[0].TokenHash, 64)
}

func TestVerifyAndCancel_SingleUse(t *testing.T) {
	f := newFixture(t, apptDate.Add(-48*time.Hour))
	id, token := f.book(t)
	ctx := context.Background()

	appt, err := f.svc.VerifyAndCancel(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, id, appt.ID)
	assert.Equal(t, model.StatusCancelled, appt.Status)

	stored, err := f.store.Appointments().GetAppointment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, stored.Status)
	require.NotNil(t, stored.CancelledAt)

	_, err = f.svc.VerifyAndCancel(ctx, token)
	require.ErrorIs(t, err, model.ErrInvalidToken)
	var merr *model.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "token_consumed", merr.Code)

	events := f.store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, outbox.AppointmentCancelled, events[0].EventType)
	assert.NotContains(t, string(events[0].Payload), token)
}

func TestVerifyAndCancel_TooLateLeavesAppointment(t *testing.T) {
	// 11h59m before a 10:00 appointment with a 12h minimum.
	f := newFixture(t, apptDate.Add(10*time.Hour-11*time.Hour-59*time.Minute))
	id, token := f.book(t)
	ctx := context.Background()

	_, err := f.svc.VerifyAndCancel(ctx, token)
	require.ErrorIs(t, err, model.ErrCancellationTooLate)

	stored, err := f.store.Appointments().GetAppointment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, stored.Status)
	assert.Equal(t, model.TokenIssued, f.store.Tokens()[0].State())
	assert.Empty(t, f.store.Events())

	// Exactly at the deadline the cancellation is still accepted.
	f.now = apptDate.Add(10*time.Hour - 12*time.Hour)
	_, err = f.svc.VerifyAndCancel(ctx, token)
	require.NoError(t, err)
}

func TestVerifyAndCancel_RejectsGarbage(t *testing.T) {
	f := newFixture(t, apptDate.Add(-48*time.Hour))
	f.book(t)
	ctx := context.Background()

	for _, tok := range []string{"", "short", strings.Repeat("A", 43)} {
		_, err := f.svc.VerifyAndCancel(ctx, tok)
		require.ErrorIs(t, err, model.ErrInvalidToken, "token %q", tok)
	}
}

func TestVerifyAndCancel_ConcurrentSameToken(t *testing.T) {
	f := newFixture(t, apptDate.Add(-48*time.Hour))
	_, token := f.book(t)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.VerifyAndCancel(context.Background(), token)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case model.KindOf(err) == model.KindInvalidToken:
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, success)
	assert.Equal(t, workers-1, rejected)
	assert.Len(t, f.store.Events(), 1)
}

func TestInspectDoesNotConsume(t *testing.T) {
	f := newFixture(t, apptDate.Add(-48*time.Hour))
	id, token := f.book(t)
	ctx := context.Background()

	sum, err := f.svc.Inspect(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, id, sum.Appointment.ID)
	assert.True(t, sum.CanCancel)
	assert.Equal(t, "Ana", sum.Patient.FirstName)
	assert.Equal(t, apptDate.Add(-2*time.Hour), sum.Deadline)
	assert.Equal(t, model.TokenIssued, f.store.Tokens()[0].State())

	f.now = apptDate.Add(9 * time.Hour)
	sum, err = f.svc.Inspect(ctx, token)
	require.NoError(t, err)
	assert.False(t, sum.CanCancel)
}

func TestReissueRevokesPrevious(t *testing.T) {
	f := newFixture(t, apptDate.Add(-48*time.Hour))
	id, oldToken := f.book(t)
	ctx := context.Background()

	_, _, err := f.svc.Reissue(ctx, id, "0000000000")
	require.ErrorIs(t, err, model.ErrNotFound)
	_, _, err = f.svc.Reissue(ctx, "unknown", "1122334455")
	require.ErrorIs(t, err, model.ErrNotFound)

	newToken, appt, err := f.svc.Reissue(ctx, id, "(11) 2233-4455")
	require.NoError(t, err)
	assert.Equal(t, id, appt.ID)
	assert.NotEqual(t, oldToken, newToken)

	_, err = f.svc.VerifyAndCancel(ctx, oldToken)
	var merr *model.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "token_revoked", merr.Code)

	_, err = f.svc.VerifyAndCancel(ctx, newToken)
	require.NoError(t, err)

	_, _, err = f.svc.Reissue(ctx, id, "1122334455")
	require.ErrorIs(t, err, model.ErrConflict)
}

func TestReissueByAppointmentIDOnly(t *testing.T) {
	f := newFixture(t, apptDate.Add(-48*time.Hour))
	id, oldToken := f.book(t)
	ctx := context.Background()

	newToken, appt, err := f.svc.Reissue(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, id, appt.ID)
	assert.NotEqual(t, oldToken, newToken)

	_, _, err = f.svc.Reissue(ctx, "5b0e3c1e-8a44-4f7e-9c43-0d6d3f1f2a10", "")
	require.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.svc.VerifyAndCancel(ctx, newToken)
	require.NoError(t, err)
}

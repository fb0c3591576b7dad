// Package cancellation issues single-use cancellation tokens and redeems
// them under the clinic's minimum-notice policy.
package cancellation

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/patients"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/storage"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultMinimumNotice is the shortest lead time before an appointment at
// which a patient may still cancel it. Product has not settled between 12h
// and 24h; override with CANCELLATION_MIN_NOTICE.
const DefaultMinimumNotice = 12 * time.Hour

const tokenBytes = 32

type Config struct {
	MinimumNotice time.Duration
	Location      *time.Location
}

type Service struct {
	store     storage.Store
	minNotice time.Duration
	loc       *time.Location
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	now       func() time.Time
}

func NewService(store storage.Store, cfg Config, logger *slog.Logger, metrics *telemetry.Metrics) *Service {
	if cfg.MinimumNotice <= 0 {
		cfg.MinimumNotice = DefaultMinimumNotice
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = telemetry.Nop()
	}
	return &Service{
		store:     store,
		minNotice: cfg.MinimumNotice,
		loc:       cfg.Location,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// WithClock replaces the wall clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) MinimumNotice() time.Duration { return s.minNotice }

// NewToken returns a fresh plaintext token and the hash that is stored for it.
func NewToken() (plain, hash string, err error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate cancellation token: %w", err)
	}
	plain = base64.RawURLEncoding.EncodeToString(buf)
	return plain, HashToken(plain), nil
}

// HashToken is the one-way digest under which a token is stored.
func HashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// wellFormed rejects anything that could not have come from NewToken before
// touching the store.
func wellFormed(plain string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(plain)
	return err == nil && len(raw) == tokenBytes
}

// IssueToken mints a token for appointmentID inside tx and returns the
// plaintext. The plaintext is not recoverable afterwards.
func (s *Service) IssueToken(ctx context.Context, tx storage.Tx, appointmentID string) (string, error) {
	plain, hash, err := NewToken()
	if err != nil {
		return "", err
	}
	if err := tx.InsertToken(ctx, model.CancellationToken{
		TokenHash:     hash,
		AppointmentID: appointmentID,
		IssuedAt:      s.now().UTC(),
	}); err != nil {
		return "", err
	}
	telemetry.Add(ctx, s.metrics.TokensIssued, "")
	return plain, nil
}

// Deadline is the last instant at which a can still be cancelled.
func (s *Service) Deadline(a model.Appointment) time.Time {
	return a.ScheduledAt(s.loc).Add(-s.minNotice)
}

func (s *Service) tooLate(a model.Appointment, now time.Time) bool {
	return a.ScheduledAt(s.loc).Sub(now) < s.minNotice
}

// Summary describes what a token would cancel without redeeming it.
type Summary struct {
	Appointment model.Appointment
	Patient     model.Patient
	CanCancel   bool
	Deadline    time.Time
}

// Inspect resolves token to its appointment. Nothing is consumed.
func (s *Service) Inspect(ctx context.Context, token string) (Summary, error) {
	if !wellFormed(token) {
		return Summary{}, model.ErrInvalidToken
	}
	var out Summary
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		tok, err := s.usableToken(ctx, tx, token)
		if err != nil {
			return err
		}
		appt, err := tx.GetAppointmentForUpdate(ctx, tok.AppointmentID)
		if err != nil {
			return err
		}
		out.Appointment = appt
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	if p, err := s.store.Patients().GetPatient(ctx, out.Appointment.PatientID); err == nil {
		out.Patient = p
	}
	out.Deadline = s.Deadline(out.Appointment)
	out.CanCancel = out.Appointment.Status == model.StatusScheduled && !s.tooLate(out.Appointment, s.now())
	return out, nil
}

// Reissue revokes every outstanding token of the appointment and mints a new
// one. A non-empty phone must belong to the appointment's patient; a mismatch
// is reported as NotFound, the same as an unknown id.
func (s *Service) Reissue(ctx context.Context, appointmentID, phone string) (string, model.Appointment, error) {
	ctx, span := otelx.StartSpan(ctx, telemetry.TracerName, "cancellation.reissue",
		attribute.String("appointment.id", appointmentID))
	var (
		plain string
		appt  model.Appointment
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		a, err := tx.GetAppointmentForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		if phone != "" {
			patient, err := tx.GetPatient(ctx, a.PatientID)
			if err != nil {
				if errors.Is(err, model.ErrNotFound) {
					return model.NotFound("appointment")
				}
				return err
			}
			if !patients.SamePhone(patient.Phone, phone) {
				return model.NotFound("appointment")
			}
		}
		if a.Status != model.StatusScheduled {
			return model.Conflict("appointment_not_scheduled", "appointment is already cancelled")
		}

		now := s.now().UTC()
		if err := tx.RevokeTokens(ctx, a.ID, now); err != nil {
			return err
		}
		if plain, err = s.IssueToken(ctx, tx, a.ID); err != nil {
			return err
		}
		evt, err := outbox.AppointmentEvent(outbox.TokenReissued, a, s.loc, now)
		if err != nil {
			return err
		}
		appt = a
		return tx.Enqueue(ctx, evt)
	})
	otelx.EndSpan(span, err)
	if err != nil {
		return "", model.Appointment{}, err
	}
	s.logger.InfoContext(ctx, "cancellation token reissued", "appointment_id", appt.ID)
	return plain, appt, nil
}

// VerifyAndCancel redeems token and cancels its appointment. Consuming the
// token and cancelling the appointment commit together or not at all.
func (s *Service) VerifyAndCancel(ctx context.Context, token string) (model.Appointment, error) {
	ctx, span := otelx.StartSpan(ctx, telemetry.TracerName, "cancellation.verify_and_cancel")
	appt, err := s.verifyAndCancel(ctx, token)
	otelx.EndSpan(span, err)
	if err != nil {
		reason := model.KindOf(err).String()
		var merr *model.Error
		if errors.As(err, &merr) {
			reason = merr.Code
		}
		telemetry.Add(ctx, s.metrics.CancelRejections, reason)
		s.logger.InfoContext(ctx, "cancellation rejected", "reason", reason, "appointment_id", appt.ID)
		return appt, err
	}
	telemetry.Add(ctx, s.metrics.Cancellations, "")
	s.logger.InfoContext(ctx, "appointment cancelled", "appointment_id", appt.ID,
		"date", model.FormatDate(appt.Date), "time", appt.Time.String())
	return appt, nil
}

func (s *Service) verifyAndCancel(ctx context.Context, token string) (model.Appointment, error) {
	if !wellFormed(token) {
		return model.Appointment{}, model.ErrInvalidToken
	}
	var appt model.Appointment
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		tok, err := s.usableToken(ctx, tx, token)
		if err != nil {
			return err
		}
		a, err := tx.GetAppointmentForUpdate(ctx, tok.AppointmentID)
		if err != nil {
			return err
		}
		appt = a
		if a.Status != model.StatusScheduled {
			return model.InvalidToken("appointment_not_scheduled", "appointment is no longer scheduled")
		}

		now := s.now()
		if s.tooLate(a, now) {
			return &model.Error{
				Kind:    model.KindCancellationTooLate,
				Code:    "cancellation_too_late",
				Message: fmt.Sprintf("appointments can only be cancelled at least %s in advance (deadline %s)", s.minNotice, s.Deadline(a).UTC().Format(time.RFC3339)),
			}
		}

		at := now.UTC()
		if err := tx.ConsumeToken(ctx, tok.TokenHash, at); err != nil {
			return err
		}
		if err := tx.MarkAppointmentCancelled(ctx, a.ID, at); err != nil {
			return err
		}
		appt.Status = model.StatusCancelled
		appt.CancelledAt = &at

		evt, err := outbox.AppointmentEvent(outbox.AppointmentCancelled, appt, s.loc, at)
		if err != nil {
			return err
		}
		return tx.Enqueue(ctx, evt)
	})
	return appt, err
}

// usableToken loads and locks the token row, rejecting unknown, consumed and
// revoked tokens.
func (s *Service) usableToken(ctx context.Context, tx storage.Tx, plain string) (model.CancellationToken, error) {
	tok, err := tx.GetTokenForUpdate(ctx, HashToken(plain))
	if errors.Is(err, model.ErrNotFound) {
		return model.CancellationToken{}, model.ErrInvalidToken
	}
	if err != nil {
		return model.CancellationToken{}, err
	}
	switch tok.State() {
	case model.TokenConsumed:
		return model.CancellationToken{}, model.InvalidToken("token_consumed", "cancellation token was already used")
	case model.TokenRevoked:
		return model.CancellationToken{}, model.InvalidToken("token_revoked", "cancellation token was replaced by a newer one")
	}
	return tok, nil
}

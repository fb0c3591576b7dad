// Package booking reserves appointment slots.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/cancellation"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/storage"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Request is the canonical booking input. Optional references are nil when
// absent.
type Request struct {
	ProviderID        string
	PatientID         string
	Date              time.Time
	Time              model.TimeOfDay
	VisitTypeID       int64
	ConsultTypeID     *int64
	PracticeTypeID    *int64
	HealthInsuranceID *int64
	Notes             string
}

// Result carries the plaintext cancellation token. It is returned exactly
// once and never stored.
type Result struct {
	Appointment       model.Appointment
	CancellationToken string
}

type Service struct {
	store           storage.Store
	calc            *availability.Calculator
	tokens          *cancellation.Service
	defaultProvider string
	loc             *time.Location
	logger          *slog.Logger
	metrics         *telemetry.Metrics
	now             func() time.Time
}

type Config struct {
	DefaultProviderID string
}

func NewService(store storage.Store, calc *availability.Calculator, tokens *cancellation.Service, cfg Config, logger *slog.Logger, metrics *telemetry.Metrics) *Service {
	if cfg.DefaultProviderID == "" {
		cfg.DefaultProviderID = "default"
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = telemetry.Nop()
	}
	loc := calc.Policy().Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:           store,
		calc:            calc,
		tokens:          tokens,
		defaultProvider: cfg.DefaultProviderID,
		loc:             loc,
		logger:          logger,
		metrics:         metrics,
		now:             time.Now,
	}
}

// WithClock replaces the wall clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Book re-validates the slot and writes the appointment, its cancellation
// token and the booked event in one transaction. Losing a race for the slot
// yields a SlotConflict; the caller may re-query availability and retry.
func (s *Service) Book(ctx context.Context, req Request) (Result, error) {
	if req.ProviderID == "" {
		req.ProviderID = s.defaultProvider
	}
	ctx, span := otelx.StartSpan(ctx, telemetry.TracerName, "booking.book",
		attribute.String("provider.id", req.ProviderID),
		attribute.String("appointment.date", model.FormatDate(req.Date)),
		attribute.String("appointment.time", req.Time.String()),
	)
	res, err := s.book(ctx, req)
	otelx.EndSpan(span, err)

	if err != nil {
		reason := model.KindOf(err).String()
		var merr *model.Error
		if errors.As(err, &merr) {
			reason = merr.Code
		}
		telemetry.Add(ctx, s.metrics.BookingRejections, reason)
		if model.KindOf(err) == model.KindSlotConflict {
			s.logger.InfoContext(ctx, "slot conflict", "provider_id", req.ProviderID,
				"date", model.FormatDate(req.Date), "time", req.Time.String(), "reason", reason)
		}
		return Result{}, err
	}
	telemetry.Add(ctx, s.metrics.Bookings, "")
	s.logger.InfoContext(ctx, "appointment booked", "appointment_id", res.Appointment.ID,
		"provider_id", req.ProviderID, "date", model.FormatDate(req.Date), "time", req.Time.String())
	return res, nil
}

// Check applies every booking rule that does not involve the patient: input
// shape, catalogue references and slot availability. It writes nothing, so
// callers can run it before creating a patient for the booking. Book repeats
// it; the slot may still be lost between the two.
func (s *Service) Check(ctx context.Context, req Request) error {
	if req.ProviderID == "" {
		req.ProviderID = s.defaultProvider
	}
	if err := s.validateSlot(req); err != nil {
		return err
	}
	if err := s.checkCatalogue(ctx, req); err != nil {
		return err
	}
	free, err := s.calc.IsFree(ctx, req.ProviderID, req.Date, req.Time)
	if err != nil {
		return err
	}
	if !free {
		return model.SlotConflict("slot_unavailable",
			"slot "+req.Time.String()+" on "+model.FormatDate(req.Date)+" is not available")
	}
	return nil
}

func (s *Service) book(ctx context.Context, req Request) (Result, error) {
	if req.PatientID == "" {
		return Result{}, model.Validation("missing_patient", "patient_id is required")
	}
	if err := s.Check(ctx, req); err != nil {
		return Result{}, err
	}
	if err := s.checkPatient(ctx, req.PatientID); err != nil {
		return Result{}, err
	}

	appt := model.Appointment{
		ProviderID:        req.ProviderID,
		PatientID:         req.PatientID,
		Date:              model.DateOf(req.Date),
		Time:              req.Time,
		VisitTypeID:       req.VisitTypeID,
		ConsultTypeID:     req.ConsultTypeID,
		PracticeTypeID:    req.PracticeTypeID,
		HealthInsuranceID: req.HealthInsuranceID,
		Notes:             req.Notes,
		Status:            model.StatusScheduled,
	}
	var token string
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.InsertAppointment(ctx, &appt); err != nil {
			return err
		}
		var err error
		if token, err = s.tokens.IssueToken(ctx, tx, appt.ID); err != nil {
			return err
		}
		evt, err := outbox.AppointmentEvent(outbox.AppointmentBooked, appt, s.loc, s.now())
		if err != nil {
			return err
		}
		return tx.Enqueue(ctx, evt)
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Appointment: appt, CancellationToken: token}, nil
}

func (s *Service) validateSlot(req Request) error {
	if req.Date.IsZero() {
		return model.Validation("invalid_date", "date must be YYYY-MM-DD")
	}
	if !req.Time.Valid() {
		return model.Validation("invalid_time", "time must be HH:MM")
	}
	policy := s.calc.Policy()
	granularity := policy.Granularity
	if granularity <= 0 {
		granularity = availability.DefaultGranularity
	}
	if !req.Time.Aligned(granularity) {
		return model.Validation("misaligned_time", "time must fall on a "+granularity.String()+" boundary")
	}
	if req.VisitTypeID <= 0 {
		return model.Validation("missing_visit_type", "visit_type_id is required")
	}
	if model.At(req.Date, req.Time, s.loc).Before(s.now()) {
		return model.Validation("slot_in_past", "appointments cannot be booked in the past")
	}
	return nil
}

func (s *Service) checkCatalogue(ctx context.Context, req Request) error {
	refs := s.store.Reference()
	check := func(kind model.ReferenceKind, id int64) error {
		ok, err := refs.ReferenceExists(ctx, kind, id)
		if err != nil {
			return err
		}
		if !ok {
			return model.InvalidReference(kind, id)
		}
		return nil
	}
	if err := check(model.VisitTypes, req.VisitTypeID); err != nil {
		return err
	}
	optional := []struct {
		kind model.ReferenceKind
		id   *int64
	}{
		{model.ConsultTypes, req.ConsultTypeID},
		{model.PracticeTypes, req.PracticeTypeID},
		{model.HealthInsurance, req.HealthInsuranceID},
	}
	for _, ref := range optional {
		if ref.id == nil {
			continue
		}
		if err := check(ref.kind, *ref.id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) checkPatient(ctx context.Context, id string) error {
	if _, err := s.store.Patients().GetPatient(ctx, id); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return &model.Error{Kind: model.KindInvalidReference, Code: "invalid_patient", Message: "patient does not exist"}
		}
		return err
	}
	return nil
}

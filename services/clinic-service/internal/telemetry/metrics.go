// Package telemetry owns the clinic's OpenTelemetry instruments.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// TracerName names both the meter and the tracer of the domain services.
const TracerName = "github.com/md-rashed-zaman/clinicbook/services/clinic-service"

// Metrics holds the booking engine counters.
type Metrics struct {
	Bookings          metric.Int64Counter
	BookingRejections metric.Int64Counter
	Cancellations     metric.Int64Counter
	CancelRejections  metric.Int64Counter
	TokensIssued      metric.Int64Counter
	SlotQueries       metric.Int64Counter
}

// New registers the instruments on the global meter provider. With no
// provider installed the instruments are no-ops.
func New() (*Metrics, error) {
	return NewWithMeter(otel.Meter(TracerName))
}

func NewWithMeter(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.Bookings, err = meter.Int64Counter("clinic.bookings",
		metric.WithDescription("Appointments booked")); err != nil {
		return nil, err
	}
	if m.BookingRejections, err = meter.Int64Counter("clinic.booking.rejections",
		metric.WithDescription("Booking attempts rejected, by reason")); err != nil {
		return nil, err
	}
	if m.Cancellations, err = meter.Int64Counter("clinic.cancellations",
		metric.WithDescription("Appointments cancelled with a token")); err != nil {
		return nil, err
	}
	if m.CancelRejections, err = meter.Int64Counter("clinic.cancellation.rejections",
		metric.WithDescription("Cancellation attempts rejected, by reason")); err != nil {
		return nil, err
	}
	if m.TokensIssued, err = meter.Int64Counter("clinic.cancellation_tokens.issued",
		metric.WithDescription("Cancellation tokens minted")); err != nil {
		return nil, err
	}
	if m.SlotQueries, err = meter.Int64Counter("clinic.availability.queries",
		metric.WithDescription("Availability lookups")); err != nil {
		return nil, err
	}
	return &m, nil
}

// Nop returns instruments bound to the no-op meter.
func Nop() *Metrics {
	m, _ := NewWithMeter(noop.NewMeterProvider().Meter(TracerName))
	return m
}

// Add is nil-safe so callers can run without metrics configured.
func Add(ctx context.Context, c metric.Int64Counter, reason string) {
	if c == nil {
		return
	}
	if reason == "" {
		c.Add(ctx, 1)
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
